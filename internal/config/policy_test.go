package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writePolicy(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "payment_policy.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestPaymentPolicyDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	holder, err := NewPaymentPolicyHolder(Config{PolicyConfigPath: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, DefaultPaymentPolicy(), holder.Get())
}

func TestPaymentPolicyFromFile(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	writePolicy(t, dir, "payment:\n  taxBreakdown: Reconcile\n  lockTTL: 3s\n")

	holder, err := NewPaymentPolicyHolder(Config{PolicyConfigPath: dir}, zap.NewNop())
	require.NoError(t, err)

	policy := holder.Get()
	assert.Equal(t, TaxBreakdownReconcile, policy.TaxBreakdown)
	assert.Equal(t, 3*time.Second, policy.LockTTL)
	assert.Equal(t, 100, policy.MaxReferenceLength)
}

func TestPaymentPolicyRejectsUnknownMode(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	writePolicy(t, dir, "payment:\n  taxBreakdown: ignore\n")

	_, err := NewPaymentPolicyHolder(Config{PolicyConfigPath: dir}, zap.NewNop())
	assert.Error(t, err)
}

func TestPaymentPolicyReloadKeepsLastGoodValue(t *testing.T) {
	dir := t.TempDir()
	path := writePolicy(t, dir, "payment:\n  taxBreakdown: strict\n")

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	holder := NewStaticPaymentPolicyHolder(DefaultPaymentPolicy())

	writePolicy(t, dir, "payment:\n  taxBreakdown: reconcile\n  lockTTL: 5s\n  maxReferenceLength: 10\n  maxNotesLength: 10\n")
	require.NoError(t, v.ReadInConfig())
	holder.reload(v, path)
	assert.Equal(t, TaxBreakdownReconcile, holder.Get().TaxBreakdown)

	writePolicy(t, dir, "payment:\n  taxBreakdown: sometimes\n  lockTTL: 5s\n  maxReferenceLength: 10\n  maxNotesLength: 10\n")
	require.NoError(t, v.ReadInConfig())
	holder.reload(v, path)
	assert.Equal(t, TaxBreakdownReconcile, holder.Get().TaxBreakdown)
}
