package migration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDialect(t *testing.T) {
	dir, driver, err := resolveDialect("Postgres")
	require.NoError(t, err)
	assert.Equal(t, postgresDir, dir)
	assert.Equal(t, "postgres", driver)

	dir, driver, err = resolveDialect("sqlite")
	require.NoError(t, err)
	assert.Equal(t, sqliteDir, dir)
	assert.Equal(t, "sqlite3", driver)

	_, _, err = resolveDialect("mysql")
	assert.ErrorIs(t, err, ErrUnsupportedDialect)
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil, "postgres"))
}

func TestSQLiteSchema(t *testing.T) {
	stmts, err := SQLiteSchema()
	require.NoError(t, err)
	require.Len(t, stmts, 1)

	schema := stmts[0]
	for _, table := range []string{"tax_rates", "invoices", "invoice_line_items", "invoice_line_item_taxes", "invoice_payments", "payment_taxes", "audit_logs"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
	assert.False(t, strings.Contains(schema, "TIMESTAMPTZ"))
}
