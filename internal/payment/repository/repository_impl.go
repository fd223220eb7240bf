package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/studioledger/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() paymentdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *paymentdomain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoice_payments (
			id, invoice_id, amount, currency, method, payment_date,
			reference_number, notes, tax_breakdown_status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.InvoiceID,
		p.Amount.Amount(),
		p.Amount.Currency(),
		string(p.Method),
		p.PaymentDate,
		p.ReferenceNumber,
		p.Notes,
		string(p.TaxBreakdownStatus),
		p.CreatedAt,
	).Error
}

func (r *repo) InsertTaxes(ctx context.Context, db *gorm.DB, taxes []paymentdomain.PaymentTax) error {
	for _, tax := range taxes {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO payment_taxes (
				id, payment_id, line_item_tax_id, tax_rate_id,
				name_snapshot, rate_snapshot, tax_amount, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			tax.ID,
			tax.PaymentID,
			tax.LineItemTaxID,
			tax.TaxRateID,
			tax.NameSnapshot,
			tax.RateSnapshot,
			tax.TaxAmount.Amount(),
			tax.CreatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) SetTaxBreakdownStatus(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, status paymentdomain.TaxBreakdownStatus) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoice_payments SET tax_breakdown_status = ? WHERE id = ?`,
		string(status),
		paymentID,
	).Error
}

func (r *repo) CompletePending(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoice_payments SET tax_breakdown_status = ? WHERE invoice_id = ? AND tax_breakdown_status = ?`,
		string(paymentdomain.TaxBreakdownComplete),
		invoiceID,
		string(paymentdomain.TaxBreakdownPending),
	)
	return res.RowsAffected, res.Error
}

func (r *repo) AllocatedByLineItemTax(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (map[snowflake.ID]int64, error) {
	var rows []allocatedRow
	if err := db.WithContext(ctx).Raw(
		`SELECT pt.line_item_tax_id, SUM(pt.tax_amount) AS allocated
		 FROM payment_taxes pt
		 JOIN invoice_payments p ON p.id = pt.payment_id
		 WHERE p.invoice_id = ?
		 GROUP BY pt.line_item_tax_id`,
		invoiceID,
	).Scan(&rows).Error; err != nil {
		return nil, err
	}

	out := make(map[snowflake.ID]int64, len(rows))
	for _, row := range rows {
		if row.Allocated == nil || *row.Allocated < 0 {
			return nil, malformed("allocated", row.LineItemTaxID)
		}
		out[row.LineItemTaxID] = *row.Allocated
	}
	return out, nil
}

func (r *repo) ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID, currency string) ([]paymentdomain.Payment, error) {
	var paymentRows []paymentRow
	if err := db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, amount, currency, method, payment_date,
		        reference_number, notes, tax_breakdown_status, created_at
		 FROM invoice_payments
		 WHERE invoice_id = ?
		 ORDER BY created_at ASC, id ASC`,
		invoiceID,
	).Scan(&paymentRows).Error; err != nil {
		return nil, err
	}
	if len(paymentRows) == 0 {
		return []paymentdomain.Payment{}, nil
	}

	var taxRows []paymentTaxRow
	if err := db.WithContext(ctx).Raw(
		`SELECT pt.id, pt.payment_id, pt.line_item_tax_id, pt.tax_rate_id,
		        pt.name_snapshot, pt.rate_snapshot, pt.tax_amount, pt.created_at
		 FROM payment_taxes pt
		 JOIN invoice_payments p ON p.id = pt.payment_id
		 JOIN invoice_line_item_taxes lt ON lt.id = pt.line_item_tax_id
		 JOIN invoice_line_items l ON l.id = lt.line_item_id
		 WHERE p.invoice_id = ?
		 ORDER BY l.position ASC, lt.position ASC`,
		invoiceID,
	).Scan(&taxRows).Error; err != nil {
		return nil, err
	}

	payments := make([]paymentdomain.Payment, 0, len(paymentRows))
	index := make(map[snowflake.ID]int, len(paymentRows))
	for i := range paymentRows {
		p, err := paymentRows[i].toDomain(currency)
		if err != nil {
			return nil, err
		}
		index[p.ID] = len(payments)
		payments = append(payments, p)
	}
	for i := range taxRows {
		tax, err := taxRows[i].toDomain(currency)
		if err != nil {
			return nil, err
		}
		pos, ok := index[tax.PaymentID]
		if !ok {
			return nil, malformed("payment_id", tax.ID)
		}
		payments[pos].Taxes = append(payments[pos].Taxes, tax)
	}
	return payments, nil
}
