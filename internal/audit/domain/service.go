package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/studioledger/pkg/db/pagination"
)

// ListAuditLogRequest filters the audit trail. Action takes a comma separated
// list where an entry ending in "*" matches every action with that prefix,
// e.g. "payment.*,invoice.cancelled".
type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

// Service records and reads ledger audit entries. AuditLog falls back to the
// actor carried on ctx when actorType is empty.
type Service interface {
	AuditLog(ctx context.Context, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
