package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/studioledger/internal/invoice/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const invoiceColumns = `id, invoice_number, entity_id, currency, status, issue_date, due_date,
	subtotal_amount, tax_amount, total_amount, amount_paid, notes,
	issued_at, paid_at, cancelled_at, cancel_reason, created_at, updated_at`

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

func (r *repo) NextSequence(ctx context.Context, db *gorm.DB, period string) (int64, error) {
	var next int64
	if err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(invoice_seq), 0) + 1 FROM invoices WHERE invoice_period = ?`,
		period,
	).Scan(&next).Error; err != nil {
		return 0, err
	}
	return next, nil
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, inv *invoicedomain.Invoice, period string, seq int64) error {
	if err := db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, invoice_period, invoice_seq, invoice_number, entity_id, currency, status, issue_date, due_date,
			subtotal_amount, tax_amount, total_amount, amount_paid, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID,
		period,
		seq,
		inv.InvoiceNumber,
		inv.EntityID,
		inv.Currency,
		string(inv.Status),
		inv.IssueDate,
		inv.DueDate,
		inv.SubtotalAmount.Amount(),
		inv.TaxAmount.Amount(),
		inv.TotalAmount.Amount(),
		inv.AmountPaid.Amount(),
		inv.Notes,
		inv.CreatedAt,
		inv.UpdatedAt,
	).Error; err != nil {
		return err
	}

	for _, line := range inv.LineItems {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO invoice_line_items (
				id, invoice_id, position, item_type, description, quantity, unit_price, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			line.ID,
			inv.ID,
			line.SortOrder,
			line.ItemType,
			line.Description,
			line.Quantity,
			line.UnitPrice.Amount(),
			inv.CreatedAt,
		).Error; err != nil {
			return err
		}

		for _, lt := range line.Taxes {
			if err := db.WithContext(ctx).Exec(
				`INSERT INTO invoice_line_item_taxes (
					id, invoice_id, line_item_id, position, tax_rate_id,
					name_snapshot, rate_snapshot, tax_amount, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				lt.ID,
				inv.ID,
				line.ID,
				lt.SortOrder,
				lt.TaxRateID,
				lt.NameSnapshot,
				lt.RateSnapshot,
				lt.TaxAmount.Amount(),
				inv.CreatedAt,
			).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.find(db.WithContext(ctx), id)
}

// FindByIDForUpdate takes a row lock on the invoice for the rest of the
// transaction. Dialects without row locks ignore the clause.
func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.find(db.WithContext(ctx).Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}), id)
}

func (r *repo) find(stmt *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	var row invoiceRow
	err := stmt.Table("invoices").Select(invoiceColumns).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (r *repo) LoadLineItems(ctx context.Context, db *gorm.DB, inv *invoicedomain.Invoice) error {
	var lineRows []lineItemRow
	if err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, position, item_type, description, quantity, unit_price
		 FROM invoice_line_items
		 WHERE invoice_id = ?
		 ORDER BY position ASC`,
		inv.ID,
	).Scan(&lineRows).Error; err != nil {
		return err
	}

	var taxRows []lineItemTaxRow
	if err := db.WithContext(ctx).Raw(
		`SELECT t.id, t.invoice_id, t.line_item_id, t.position, t.tax_rate_id,
		        t.name_snapshot, t.rate_snapshot, t.tax_amount
		 FROM invoice_line_item_taxes t
		 JOIN invoice_line_items l ON l.id = t.line_item_id
		 WHERE t.invoice_id = ?
		 ORDER BY l.position ASC, t.position ASC`,
		inv.ID,
	).Scan(&taxRows).Error; err != nil {
		return err
	}

	lines := make([]invoicedomain.LineItem, 0, len(lineRows))
	index := make(map[snowflake.ID]int, len(lineRows))
	for i := range lineRows {
		line, err := lineRows[i].toDomain(inv.Currency)
		if err != nil {
			return err
		}
		index[line.ID] = len(lines)
		lines = append(lines, line)
	}
	for i := range taxRows {
		lt, err := taxRows[i].toDomain(inv.Currency)
		if err != nil {
			return err
		}
		pos, ok := index[lt.LineItemID]
		if !ok {
			return malformed("line_item_id", lt.ID)
		}
		lines[pos].Taxes = append(lines[pos].Taxes, lt)
	}

	inv.LineItems = lines
	if len(lines) == 0 {
		return malformed("line_items", inv.ID)
	}
	return inv.Validate()
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter invoicedomain.ListFilter) ([]*invoicedomain.Invoice, error) {
	stmt := db.WithContext(ctx).Table("invoices").Select(invoiceColumns)

	if entityID := strings.TrimSpace(filter.EntityID); entityID != "" {
		stmt = stmt.Where("entity_id = ?", entityID)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", string(filter.Status))
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var rows []invoiceRow
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*invoicedomain.Invoice, 0, len(rows))
	for i := range rows {
		inv, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, inv *invoicedomain.Invoice, from invoicedomain.InvoiceStatus) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET status = ?, issued_at = ?, cancelled_at = ?, cancel_reason = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(inv.Status),
		inv.IssuedAt,
		inv.CancelledAt,
		inv.CancelReason,
		inv.UpdatedAt,
		inv.ID,
		string(from),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ApplyPayment(ctx context.Context, db *gorm.DB, update invoicedomain.PaymentUpdate) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET amount_paid = ?, status = ?, paid_at = ?, updated_at = ?
		 WHERE id = ? AND amount_paid = ? AND status NOT IN (?, ?)`,
		update.AmountPaid,
		string(update.Status),
		update.PaidAt,
		update.UpdatedAt,
		update.InvoiceID,
		update.ExpectedPaid,
		string(invoicedomain.InvoiceStatusPaid),
		string(invoicedomain.InvoiceStatusCancelled),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
