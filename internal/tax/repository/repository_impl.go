package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	taxdomain "github.com/smallbiznis/studioledger/internal/tax/domain"
	"gorm.io/gorm"
)

const taxRateColumns = `id, code, name, rate, description, is_enabled, created_at, updated_at`

var sortableColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"name":       true,
	"code":       true,
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) taxdomain.Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, rate *taxdomain.TaxRate) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO tax_rates (`+taxRateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rate.ID,
		rate.Code,
		rate.Name,
		rate.Rate,
		rate.Description,
		rate.IsEnabled,
		rate.CreatedAt,
		rate.UpdatedAt,
	).Error
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*taxdomain.TaxRate, error) {
	var rate taxdomain.TaxRate
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+taxRateColumns+` FROM tax_rates WHERE id = ?`,
		id,
	).Scan(&rate).Error
	if err != nil {
		return nil, err
	}
	if rate.ID == 0 {
		return nil, nil
	}
	return &rate, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []snowflake.ID) ([]taxdomain.TaxRate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rates []taxdomain.TaxRate
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+taxRateColumns+` FROM tax_rates WHERE id IN ? ORDER BY id ASC`,
		ids,
	).Scan(&rates).Error
	if err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *repository) List(ctx context.Context, filter taxdomain.ListRequest) ([]taxdomain.TaxRate, error) {
	var items []taxdomain.TaxRate
	stmt := r.db.WithContext(ctx).Model(&taxdomain.TaxRate{})

	if filter.Name != "" {
		stmt = stmt.Where("name = ?", filter.Name)
	}
	if filter.Code != "" {
		stmt = stmt.Where("code = ?", filter.Code)
	}
	if filter.IsEnabled != nil {
		stmt = stmt.Where("is_enabled = ?", *filter.IsEnabled)
	}

	stmt = stmt.Order(orderClause(filter.SortBy, filter.OrderBy))

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) Update(ctx context.Context, rate *taxdomain.TaxRate) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE tax_rates
		 SET name = ?, rate = ?, description = ?, is_enabled = ?, updated_at = ?
		 WHERE id = ?`,
		rate.Name,
		rate.Rate,
		rate.Description,
		rate.IsEnabled,
		rate.UpdatedAt,
		rate.ID,
	).Error
}

func orderClause(sortBy, orderBy string) string {
	column := strings.ToLower(strings.TrimSpace(sortBy))
	if !sortableColumns[column] {
		column = "created_at"
	}
	direction := "ASC"
	if strings.EqualFold(strings.TrimSpace(orderBy), "desc") {
		direction = "DESC"
	}
	return fmt.Sprintf("%s %s, id %s", column, direction, direction)
}
