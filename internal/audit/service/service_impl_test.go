package service_test

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/studioledger/internal/audit/domain"
	auditrepo "github.com/smallbiznis/studioledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/studioledger/internal/audit/service"
	"github.com/smallbiznis/studioledger/internal/billingtest"
	"github.com/smallbiznis/studioledger/internal/clock"
	obscontext "github.com/smallbiznis/studioledger/internal/observability/context"
	"github.com/smallbiznis/studioledger/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()

	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	svc := auditservice.NewService(auditservice.Params{
		DB:    billingtest.SetupDB(t),
		Log:   zap.NewNop(),
		GenID: billingtest.NewNode(t),
		Clock: clk,
		Repo:  auditrepo.Provide(),
	})
	return svc, clk
}

func TestAuditLogResolvesActorAndMasksReference(t *testing.T) {
	svc, _ := newService(t)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithActor(ctx, "staff", "17")

	target := "42"
	err := svc.AuditLog(ctx, "", nil, "payment.recorded", "invoice", &target, map[string]any{
		"reference_number": "CHK-10020304",
		"amount_minor":     5000,
	})
	require.NoError(t, err)

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{TargetType: "invoice", TargetID: "42"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "staff", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "17", *entry.ActorID)
	assert.Equal(t, "payment.recorded", entry.Action)
	assert.Equal(t, "****0304", entry.Metadata["reference_number"])
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	assert.False(t, resp.HasMore)
}

func TestAuditLogDefaultsToSystemActor(t *testing.T) {
	svc, _ := newService(t)

	require.NoError(t, svc.AuditLog(context.Background(), "", nil, "invoice.issued", "", nil, nil))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, string(auditdomain.ActorTypeSystem), resp.AuditLogs[0].ActorType)
	assert.Equal(t, "unknown", resp.AuditLogs[0].TargetType)
	assert.Nil(t, resp.AuditLogs[0].ActorID)
}

func TestAuditLogRejectsEmptyAction(t *testing.T) {
	svc, _ := newService(t)
	err := svc.AuditLog(context.Background(), "system", nil, "  ", "invoice", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	svc, clk := newService(t)
	ctx := context.Background()

	for _, action := range []string{"invoice.created", "invoice.issued", "payment.recorded"} {
		require.NoError(t, svc.AuditLog(ctx, "system", nil, action, "invoice", nil, nil))
		clk.Advance(time.Minute)
	}

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, "payment.recorded", first.AuditLogs[0].Action)
	assert.Equal(t, "invoice.issued", first.AuditLogs[1].Action)
	require.NotEmpty(t, first.NextPageToken)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.Equal(t, "invoice.created", second.AuditLogs[0].Action)
	assert.False(t, second.HasMore)
}

func TestListValidatesInput(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Pagination: pagination.Pagination{PageToken: "not-a-token"}})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)

	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}

func TestListFiltersByActionNamesAndPrefixes(t *testing.T) {
	svc, clk := newService(t)
	ctx := context.Background()

	for _, action := range []string{"invoice.created", "payment.recorded", "tax_rate.created", "payment.tax_breakdown_pending"} {
		require.NoError(t, svc.AuditLog(ctx, "system", nil, action, "invoice", nil, nil))
		clk.Advance(time.Second)
	}

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "payment.*"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 2)
	assert.Equal(t, "payment.tax_breakdown_pending", resp.AuditLogs[0].Action)
	assert.Equal(t, "payment.recorded", resp.AuditLogs[1].Action)

	resp, err = svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "invoice.created, tax_rate.created"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 2)
	assert.Equal(t, "tax_rate.created", resp.AuditLogs[0].Action)

	resp, err = svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "invoice.*,payment.recorded"})
	require.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 2)

	for _, bad := range []string{"*", "pay*ment.*", "payment.%"} {
		_, err = svc.List(ctx, auditdomain.ListAuditLogRequest{Action: bad})
		assert.ErrorIs(t, err, auditdomain.ErrInvalidAction, bad)
	}
}
