package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/studioledger/internal/audit/domain"
	"github.com/smallbiznis/studioledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert runs on whatever handle it is given so ledger writes can record
// their audit entry inside the same transaction.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	var logs []*domain.AuditLog
	err := db.WithContext(ctx).
		Model(&domain.AuditLog{}).
		Scopes(
			byActions(filter.Actions, filter.ActionPrefixes),
			byColumn("target_type", filter.TargetType),
			byColumn("target_id", filter.TargetID),
			byColumn("actor_type", filter.ActorType),
			createdBetween(filter),
			after(filter.Cursor),
		).
		Order("created_at desc, id desc").
		Scopes(peekLimit(filter.Limit)).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func byColumn(column, value string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if value == "" {
			return tx
		}
		return tx.Where(column+" = ?", value)
	}
}

// byActions ORs exact action names with "payment."-style prefixes.
func byActions(actions, prefixes []string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		var (
			conds []string
			args  []any
		)
		if len(actions) > 0 {
			conds = append(conds, "action IN ?")
			args = append(args, actions)
		}
		for _, prefix := range prefixes {
			conds = append(conds, "action LIKE ?")
			args = append(args, prefix+"%")
		}
		if len(conds) == 0 {
			return tx
		}
		return tx.Where("("+strings.Join(conds, " OR ")+")", args...)
	}
}

func createdBetween(filter domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if filter.StartAt != nil {
			tx = tx.Where("created_at >= ?", filter.StartAt.UTC())
		}
		if filter.EndAt != nil {
			tx = tx.Where("created_at <= ?", filter.EndAt.UTC())
		}
		return tx
	}
}

func after(cursor *pagination.Keyset) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if cursor == nil {
			return tx
		}
		return tx.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
}

// peekLimit fetches one extra row so callers can tell whether another page exists.
func peekLimit(limit int) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return tx
		}
		return tx.Limit(limit + 1)
	}
}
