package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/studioledger/internal/billingtest"
	"github.com/smallbiznis/studioledger/internal/clock"
	taxdomain "github.com/smallbiznis/studioledger/internal/tax/domain"
	taxrepo "github.com/smallbiznis/studioledger/internal/tax/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func snowflakeID(v int64) snowflake.ID { return snowflake.ID(v) }

func newManagementService(t *testing.T) (taxdomain.Service, *clock.FakeClock) {
	t.Helper()

	clk := clock.NewFakeClock(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))
	svc := NewService(ServiceParams{
		Log:   zap.NewNop(),
		GenID: billingtest.NewNode(t),
		Clock: clk,
		Repo:  taxrepo.NewRepository(billingtest.SetupDB(t)),
	})
	return svc, clk
}

func TestCreateTaxRate(t *testing.T) {
	svc, _ := newManagementService(t)
	ctx := context.Background()

	desc := "  county sales tax "
	created, err := svc.Create(ctx, taxdomain.CreateRequest{
		Name:        "Travis County Sales",
		Rate:        decimal.RequireFromString("8.25"),
		Description: &desc,
	})
	require.NoError(t, err)
	assert.Equal(t, "travis-county-sales", created.Code)
	assert.True(t, created.IsEnabled)
	require.NotNil(t, created.Description)
	assert.Equal(t, "county sales tax", *created.Description)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, got.Rate.Equal(decimal.RequireFromString("8.25")))
	assert.Equal(t, created.Code, got.Code)

	_, err = svc.Create(ctx, taxdomain.CreateRequest{Name: "Other", Code: "Travis County Sales", Rate: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, taxdomain.ErrTaxCodeConflict)
}

func TestCreateTaxRateValidation(t *testing.T) {
	svc, _ := newManagementService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, taxdomain.CreateRequest{Name: " ", Rate: decimal.NewFromInt(5)})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidName)

	_, err = svc.Create(ctx, taxdomain.CreateRequest{Name: "Too High", Rate: decimal.NewFromInt(101)})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidTaxRate)

	_, err = svc.Create(ctx, taxdomain.CreateRequest{Name: "Too Precise", Rate: decimal.RequireFromString("1.23456")})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidTaxRate)
}

func TestUpdateAndDisableTaxRate(t *testing.T) {
	svc, clk := newManagementService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, taxdomain.CreateRequest{Name: "VAT", Rate: decimal.NewFromInt(20)})
	require.NoError(t, err)

	clk.Advance(time.Hour)
	newRate := decimal.RequireFromString("17.5")
	newName := "VAT reduced"
	updated, err := svc.Update(ctx, taxdomain.UpdateRequest{ID: created.ID, Name: &newName, Rate: &newRate})
	require.NoError(t, err)
	assert.Equal(t, "VAT reduced", updated.Name)
	assert.Equal(t, "vat", updated.Code)
	assert.True(t, updated.Rate.Equal(newRate))
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	disabled, err := svc.Disable(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, disabled.IsEnabled)

	enabled := true
	list, err := svc.List(ctx, taxdomain.ListRequest{IsEnabled: &enabled})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.Update(ctx, taxdomain.UpdateRequest{ID: "abc"})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidID)

	_, err = svc.Disable(ctx, "12345")
	assert.ErrorIs(t, err, taxdomain.ErrNotFound)
}

func TestResolveKeepsRequestedOrder(t *testing.T) {
	svc, _ := newManagementService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, taxdomain.CreateRequest{Name: "State", Rate: decimal.NewFromInt(6)})
	require.NoError(t, err)
	b, err := svc.Create(ctx, taxdomain.CreateRequest{Name: "City", Rate: decimal.NewFromInt(2)})
	require.NoError(t, err)

	aID, _ := snowflake.ParseString(a.ID)
	bID, _ := snowflake.ParseString(b.ID)

	rates, err := svc.Resolve(ctx, []snowflake.ID{bID, aID})
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, "City", rates[0].Name)
	assert.Equal(t, "State", rates[1].Name)

	_, err = svc.Resolve(ctx, []snowflake.ID{aID, 99})
	assert.ErrorIs(t, err, taxdomain.ErrNotFound)
}

func TestUpdateTaxRateWithoutChangesKeepsTimestamp(t *testing.T) {
	svc, clk := newManagementService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, taxdomain.CreateRequest{Name: "GST", Rate: decimal.NewFromInt(10)})
	require.NoError(t, err)

	clk.Advance(time.Hour)
	sameRate := decimal.RequireFromString("10.00")
	sameName := " GST "
	got, err := svc.Update(ctx, taxdomain.UpdateRequest{ID: created.ID, Name: &sameName, Rate: &sameRate})
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(created.UpdatedAt))

	tooHigh := decimal.NewFromInt(150)
	_, err = svc.Update(ctx, taxdomain.UpdateRequest{ID: created.ID, Rate: &tooHigh})
	assert.ErrorIs(t, err, taxdomain.ErrInvalidTaxRate)
}
