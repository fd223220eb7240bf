package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: invoices.invoice_number")))
	assert.True(t, IsDuplicateKeyErr(errors.New(`ERROR: duplicate key value violates unique constraint "invoices_invoice_number_key"`)))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
}

func TestIsLockErr(t *testing.T) {
	assert.False(t, IsLockErr(nil))
	assert.True(t, IsLockErr(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, IsLockErr(errors.New("ERROR: could not serialize access due to concurrent update")))
	assert.False(t, IsLockErr(errors.New("syntax error")))
}

func TestDialect(t *testing.T) {
	d, err := Dialect(Config{Type: "sqlite", Path: "file::memory:"})
	assert.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	d, err = Dialect(Config{Type: "postgres", Host: "localhost"})
	assert.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	_, err = Dialect(Config{Type: "oracle"})
	assert.Error(t, err)
}
