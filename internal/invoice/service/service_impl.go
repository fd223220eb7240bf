package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/studioledger/internal/audit/domain"
	"github.com/smallbiznis/studioledger/internal/clock"
	"github.com/smallbiznis/studioledger/internal/config"
	invoicedomain "github.com/smallbiznis/studioledger/internal/invoice/domain"
	"github.com/smallbiznis/studioledger/internal/invoice/format"
	"github.com/smallbiznis/studioledger/internal/observability/metrics"
	taxdomain "github.com/smallbiznis/studioledger/internal/tax/domain"
	"github.com/smallbiznis/studioledger/pkg/db"
	"github.com/smallbiznis/studioledger/pkg/db/pagination"
	"github.com/smallbiznis/studioledger/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	dateLayout       = "2006-01-02"
	defaultItemType  = "service"
	maxNumberRetries = 3
	defaultPageSize  = 50
	maxPageSize      = 250
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Repo       invoicedomain.Repository
	TaxSvc     taxdomain.Service
	Calculator taxdomain.Calculator
	AuditSvc   auditdomain.Service `optional:"true"`
	Metrics    *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID          *snowflake.Node
	clock          clock.Clock
	repo           invoicedomain.Repository
	taxSvc         taxdomain.Service
	calculator     taxdomain.Calculator
	auditSvc       auditdomain.Service
	metrics        *metrics.Metrics
	numberTemplate string
	currency       string
}

func NewService(p ServiceParam) invoicedomain.Service {
	template := strings.TrimSpace(p.Config.InvoiceNumberTemplate)
	if template == "" {
		template = format.DefaultInvoiceNumberTemplate
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("invoice.service"),

		genID:          p.GenID,
		clock:          p.Clock,
		repo:           p.Repo,
		taxSvc:         p.TaxSvc,
		calculator:     p.Calculator,
		auditSvc:       p.AuditSvc,
		metrics:        p.Metrics,
		numberTemplate: template,
		currency:       p.Config.DefaultCurrency,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	inv, err := s.buildInvoice(ctx, req)
	if err != nil {
		return nil, err
	}

	period := format.SequencePeriod(s.numberTemplate, inv.IssueDate)
	for attempt := 1; ; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			seq, err := s.repo.NextSequence(ctx, tx, period)
			if err != nil {
				return err
			}
			number, err := format.FormatInvoiceNumber(s.numberTemplate, inv.IssueDate, seq)
			if err != nil {
				return err
			}
			inv.InvoiceNumber = number
			return s.repo.Insert(ctx, tx, inv, period, seq)
		})
		if err == nil {
			break
		}
		// Two creators can read the same MAX(invoice_seq) for a period; the
		// unique index rejects the loser, which takes the next number.
		if db.IsDuplicateKeyErr(err) && attempt < maxNumberRetries {
			s.log.Debug("invoice number taken, retrying", zap.Int("attempt", attempt))
			continue
		}
		return nil, fmt.Errorf("%w: %w", invoicedomain.ErrStorageFailure, err)
	}

	s.metrics.RecordInvoiceTransition(ctx, "", string(invoicedomain.InvoiceStatusDraft))
	s.emitAudit(ctx, "invoice.created", inv, map[string]any{
		"line_items": len(inv.LineItems),
	})
	return inv, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	inv, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, storageErr(err)
	}
	if inv == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	if err := s.repo.LoadLineItems(ctx, s.db, inv); err != nil {
		return nil, storageErr(err)
	}
	return inv, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	if req.Status != "" && !req.Status.Valid() {
		return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidStatus
	}

	cursor, err := pagination.ParseToken(req.PageToken)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, invoicedomain.ErrInvalidPageToken
	}

	pageSize := pagination.ClampSize(req.PageSize, defaultPageSize, maxPageSize)
	items, err := s.repo.List(ctx, s.db, invoicedomain.ListFilter{
		EntityID: req.EntityID,
		Status:   req.Status,
		Cursor:   cursor,
		Limit:    pageSize,
	})
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, storageErr(err)
	}

	invoices, pageInfo := pagination.Page(items, pageSize, func(inv *invoicedomain.Invoice) pagination.Keyset {
		return pagination.Keyset{ID: inv.ID, CreatedAt: inv.CreatedAt}
	})
	return invoicedomain.ListInvoiceResponse{PageInfo: pageInfo, Invoices: invoices}, nil
}

func (s *Service) Issue(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, id, "invoice.issued", func(inv *invoicedomain.Invoice, now time.Time) error {
		return inv.Issue(now)
	})
}

func (s *Service) Cancel(ctx context.Context, id string, reason string) (*invoicedomain.Invoice, error) {
	reason = strings.TrimSpace(reason)
	return s.transition(ctx, id, "invoice.cancelled", func(inv *invoicedomain.Invoice, now time.Time) error {
		return inv.Cancel(reason, now)
	})
}

func (s *Service) transition(ctx context.Context, id string, action string, apply func(*invoicedomain.Invoice, time.Time) error) (*invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var (
		updated  *invoicedomain.Invoice
		previous invoicedomain.InvoiceStatus
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.repo.FindByIDForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return storageErr(err)
		}
		if inv == nil {
			return invoicedomain.ErrInvoiceNotFound
		}

		previous = inv.Status
		if err := apply(inv, s.clock.Now()); err != nil {
			return err
		}

		ok, err := s.repo.UpdateStatus(ctx, tx, inv, previous)
		if err != nil {
			return storageErr(err)
		}
		if !ok {
			// status moved between the read and the write
			return invoicedomain.ErrInvalidTransition
		}
		updated = inv
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordInvoiceTransition(ctx, string(previous), string(updated.Status))
	metadata := map[string]any{"previous_status": string(previous)}
	if updated.CancelReason != nil {
		metadata["reason"] = *updated.CancelReason
	}
	s.emitAudit(ctx, action, updated, metadata)
	return updated, nil
}

func (s *Service) buildInvoice(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	entityID := strings.TrimSpace(req.EntityID)
	if entityID == "" {
		return nil, invoicedomain.ErrInvalidEntity
	}

	currencyCode := strings.TrimSpace(req.Currency)
	if currencyCode == "" {
		currencyCode = s.currency
	}
	currency, err := money.NormalizeCurrency(currencyCode)
	if err != nil {
		return nil, invoicedomain.ErrInvalidCurrency
	}

	issueDate, err := parseDate(req.IssueDate, invoicedomain.ErrInvalidIssueDate)
	if err != nil {
		return nil, err
	}
	dueDate, err := parseDate(req.DueDate, invoicedomain.ErrInvalidDueDate)
	if err != nil {
		return nil, err
	}
	if dueDate.Before(issueDate) {
		return nil, invoicedomain.ErrInvalidDueDate
	}

	if len(req.LineItems) == 0 {
		return nil, invoicedomain.ErrInvalidLineItems
	}

	now := s.clock.Now().UTC()
	inv := &invoicedomain.Invoice{
		ID:        s.genID.Generate(),
		EntityID:  entityID,
		Currency:  currency,
		Status:    invoicedomain.InvoiceStatusDraft,
		IssueDate: issueDate,
		DueDate:   dueDate,
		Notes:     trimmedOrNil(req.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}

	for i, item := range req.LineItems {
		line, err := s.buildLineItem(ctx, inv, i, item)
		if err != nil {
			return nil, err
		}
		inv.LineItems = append(inv.LineItems, line)
	}

	totals, err := invoicedomain.ComputeTotals(currency, inv.LineItems)
	if err != nil {
		return nil, err
	}
	inv.SubtotalAmount = totals.Subtotal
	inv.TaxAmount = totals.Tax
	inv.TotalAmount = totals.Total
	inv.AmountPaid, _ = money.Zero(currency)

	if err := inv.Validate(); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) buildLineItem(ctx context.Context, inv *invoicedomain.Invoice, position int, req invoicedomain.CreateLineItemRequest) (invoicedomain.LineItem, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return invoicedomain.LineItem{}, invoicedomain.ErrInvalidDescription
	}
	itemType := strings.ToLower(strings.TrimSpace(req.ItemType))
	if itemType == "" {
		itemType = defaultItemType
	}
	if req.Quantity <= 0 {
		return invoicedomain.LineItem{}, invoicedomain.ErrInvalidQuantity
	}
	unitPrice, err := money.Parse(req.UnitPrice, inv.Currency)
	if err != nil || unitPrice.IsNegative() {
		return invoicedomain.LineItem{}, invoicedomain.ErrInvalidUnitPrice
	}

	rateIDs := make([]snowflake.ID, 0, len(req.TaxRateIDs))
	for _, raw := range req.TaxRateIDs {
		id, err := snowflake.ParseString(strings.TrimSpace(raw))
		if err != nil || id == 0 {
			return invoicedomain.LineItem{}, invoicedomain.ErrInvalidTaxRateID
		}
		rateIDs = append(rateIDs, id)
	}
	rates, err := s.taxSvc.Resolve(ctx, rateIDs)
	if errors.Is(err, taxdomain.ErrNotFound) {
		return invoicedomain.LineItem{}, invoicedomain.ErrInvalidTaxRateID
	}
	if err != nil {
		return invoicedomain.LineItem{}, err
	}
	computed, err := s.calculator.ComputeLineItemTaxes(unitPrice, req.Quantity, rates)
	if err != nil {
		return invoicedomain.LineItem{}, err
	}

	line := invoicedomain.LineItem{
		ID:          s.genID.Generate(),
		InvoiceID:   inv.ID,
		ItemType:    itemType,
		Description: description,
		Quantity:    req.Quantity,
		UnitPrice:   unitPrice,
		SortOrder:   position,
	}
	for i, tax := range computed {
		line.Taxes = append(line.Taxes, invoicedomain.LineItemTax{
			ID:           s.genID.Generate(),
			InvoiceID:    inv.ID,
			LineItemID:   line.ID,
			SortOrder:    i,
			TaxRateID:    tax.TaxRateID,
			NameSnapshot: tax.NameSnapshot,
			RateSnapshot: tax.RateSnapshot,
			TaxAmount:    tax.Amount,
		})
	}
	return line, nil
}

func (s *Service) emitAudit(ctx context.Context, action string, inv *invoicedomain.Invoice, extra map[string]any) {
	if s.auditSvc == nil || inv == nil {
		return
	}
	metadata := map[string]any{
		"invoice_number": inv.InvoiceNumber,
		"entity_id":      inv.EntityID,
		"currency":       inv.Currency,
		"status":         string(inv.Status),
		"total_amount":   inv.TotalAmount.Amount(),
		"amount_paid":    inv.AmountPaid.Amount(),
	}
	for key, value := range extra {
		if key == "" {
			continue
		}
		metadata[key] = value
	}

	targetID := inv.ID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "invoice", &targetID, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.String("invoice_id", targetID), zap.Error(err))
	}
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, invoicedomain.ErrInvalidInvoiceID
	}
	return id, nil
}

func parseDate(raw string, invalid error) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, invalid
	}
	return t, nil
}

func storageErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", invoicedomain.ErrStorageFailure, err)
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
