package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/studioledger/internal/audit/domain"
	"github.com/smallbiznis/studioledger/internal/clock"
	"github.com/smallbiznis/studioledger/internal/config"
	invoicedomain "github.com/smallbiznis/studioledger/internal/invoice/domain"
	"github.com/smallbiznis/studioledger/internal/lock"
	"github.com/smallbiznis/studioledger/internal/observability/metrics"
	"github.com/smallbiznis/studioledger/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/studioledger/internal/payment/domain"
	"github.com/smallbiznis/studioledger/internal/payment/proration"
	"github.com/smallbiznis/studioledger/pkg/db"
	"github.com/smallbiznis/studioledger/pkg/money"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

const (
	dateLayout            = "2006-01-02"
	taxBreakdownSavepoint = "payment_taxes"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Policy      *config.PaymentPolicyHolder
	InvoiceRepo invoicedomain.Repository
	Repo        paymentdomain.Repository
	Locker      *lock.Locker        `optional:"true"`
	AuditSvc    auditdomain.Service `optional:"true"`
	Metrics     *metrics.Metrics    `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	policy      *config.PaymentPolicyHolder
	invoiceRepo invoicedomain.Repository
	repo        paymentdomain.Repository
	locker      *lock.Locker
	auditSvc    auditdomain.Service
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

func NewService(p ServiceParam) paymentdomain.Service {
	policy := p.Policy
	if policy == nil {
		policy = config.NewStaticPaymentPolicyHolder(config.DefaultPaymentPolicy())
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("payment.service"),

		genID:       p.GenID,
		clock:       p.Clock,
		policy:      policy,
		invoiceRepo: p.InvoiceRepo,
		repo:        p.Repo,
		locker:      p.Locker,
		auditSvc:    p.AuditSvc,
		metrics:     p.Metrics,
		tracer:      otel.Tracer("studioledger/payment"),
	}
}

type paymentForm struct {
	invoiceID   snowflake.ID
	method      paymentdomain.Method
	paymentDate time.Time
	reference   *string
	notes       *string
}

type recordOutcome struct {
	payment  *paymentdomain.Payment
	invoice  *invoicedomain.Invoice
	previous invoicedomain.InvoiceStatus
	pending  bool
	// caughtUp counts earlier pending payments this payment's allocation covered.
	caughtUp int64
}

func (s *Service) RecordPayment(ctx context.Context, req paymentdomain.RecordPaymentRequest) (*paymentdomain.RecordPaymentResponse, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "payment.record")
	defer span.End()

	policy := s.policy.Get()
	form, err := s.validate(req, policy)
	if err != nil {
		return nil, s.reject(ctx, span, err)
	}
	span.SetAttributes(tracing.SafeAttributes(
		attribute.String("invoice.id", form.invoiceID.String()),
		attribute.String("payment.method", string(form.method)),
	)...)

	release, err := s.lockInvoice(ctx, form.invoiceID, policy.LockTTL)
	if err != nil {
		return nil, s.reject(ctx, span, err)
	}
	defer release()

	var outcome recordOutcome
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result, err := s.record(ctx, tx, form, req.Amount, policy)
		if err != nil {
			return err
		}
		outcome = result
		return nil
	})
	if err != nil {
		if db.IsLockErr(err) {
			s.log.Warn("invoice row busy, payment not recorded",
				zap.String("invoice_id", form.invoiceID.String()),
				zap.Error(err),
			)
			return nil, s.reject(ctx, span, paymentdomain.ErrConcurrentPayment)
		}
		if errors.Is(err, paymentdomain.ErrStorageFailure) || errors.Is(err, paymentdomain.ErrMalformedRecord) {
			s.log.Error("record payment failed",
				zap.String("invoice_id", form.invoiceID.String()),
				zap.Error(err),
			)
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "storage failure")
			return nil, err
		}
		return nil, s.reject(ctx, span, err)
	}

	payment, inv := outcome.payment, outcome.invoice
	span.SetAttributes(tracing.SafeAttributes(attribute.String("payment.id", payment.ID.String()))...)

	s.metrics.RecordPayment(ctx, string(payment.Method), payment.Amount.Currency(), string(inv.Status), payment.Amount.Amount(), time.Since(started))
	if inv.Status != outcome.previous {
		s.metrics.RecordInvoiceTransition(ctx, string(outcome.previous), string(inv.Status))
	}
	s.emitAudit(ctx, "payment.recorded", inv, payment, map[string]any{
		"previous_status": string(outcome.previous),
	})
	if outcome.pending {
		s.metrics.RecordTaxBreakdownPending(ctx, payment.Amount.Currency())
		s.emitAudit(ctx, "payment.tax_breakdown_pending", inv, payment, nil)
	}
	if outcome.caughtUp > 0 {
		s.emitAudit(ctx, "payment.tax_breakdown_reconciled", inv, payment, map[string]any{
			"reconciled_payments": outcome.caughtUp,
		})
	}

	return &paymentdomain.RecordPaymentResponse{Payment: *payment, Invoice: *inv}, nil
}

// record runs the read-validate-write sequence inside tx. The invoice row is
// locked first and the final update is guarded on the amount_paid read here.
func (s *Service) record(ctx context.Context, tx *gorm.DB, form paymentForm, rawAmount string, policy config.PaymentPolicy) (recordOutcome, error) {
	inv, err := s.invoiceRepo.FindByIDForUpdate(ctx, tx, form.invoiceID)
	if err != nil {
		return recordOutcome{}, storageErr(err)
	}
	if inv == nil {
		return recordOutcome{}, paymentdomain.ErrInvoiceNotFound
	}

	amount, err := money.Parse(rawAmount, inv.Currency)
	if err != nil {
		return recordOutcome{}, paymentdomain.ErrInvalidAmount
	}
	if err := inv.CheckPayable(amount); err != nil {
		return recordOutcome{}, err
	}
	if err := s.invoiceRepo.LoadLineItems(ctx, tx, inv); err != nil {
		return recordOutcome{}, storageErr(err)
	}

	allocated, err := s.repo.AllocatedByLineItemTax(ctx, tx, inv.ID)
	if err != nil {
		return recordOutcome{}, storageErr(err)
	}
	allocations, err := proration.Allocate(prorationInput(inv, inv.AmountPaid.Amount(), amount, allocated))
	if err != nil {
		return recordOutcome{}, fmt.Errorf("%w: invoice %s: %w", paymentdomain.ErrMalformedRecord, inv.ID, err)
	}

	now := s.clock.Now().UTC()
	payment := &paymentdomain.Payment{
		ID:                 s.genID.Generate(),
		InvoiceID:          inv.ID,
		Amount:             amount,
		Method:             form.method,
		PaymentDate:        form.paymentDate,
		ReferenceNumber:    form.reference,
		Notes:              form.notes,
		TaxBreakdownStatus: paymentdomain.TaxBreakdownComplete,
		CreatedAt:          now,
		Taxes:              []paymentdomain.PaymentTax{},
	}
	if inv.TaxAmount.IsZero() {
		payment.TaxBreakdownStatus = paymentdomain.TaxBreakdownNotApplicable
	}
	if err := s.repo.Insert(ctx, tx, payment); err != nil {
		return recordOutcome{}, storageErr(err)
	}

	taxes := s.paymentTaxes(payment, allocations, now)
	pending := false
	if len(taxes) > 0 {
		if pending, err = s.insertTaxes(ctx, tx, payment, taxes, policy.TaxBreakdown); err != nil {
			return recordOutcome{}, err
		}
		if !pending {
			payment.Taxes = taxes
		}
	}

	// Allocation is cumulative, so once this payment's rows are in, every
	// earlier pending payment is covered whenever the invoice's rows reach
	// the rounded share of amount_paid.
	var caughtUp int64
	if !pending && !inv.TaxAmount.IsZero() {
		target := money.MulDivRoundHalfEven(inv.TaxAmount.Amount(), inv.AmountPaid.Amount()+amount.Amount(), inv.TotalAmount.Amount())
		if sumAllocated(allocated)+sumTaxes(payment.Taxes) >= target {
			if caughtUp, err = s.repo.CompletePending(ctx, tx, inv.ID); err != nil {
				return recordOutcome{}, storageErr(err)
			}
		}
	}

	previous := inv.Status
	expected := inv.AmountPaid.Amount()
	if err := inv.ApplyPayment(amount, now); err != nil {
		return recordOutcome{}, err
	}
	ok, err := s.invoiceRepo.ApplyPayment(ctx, tx, invoicedomain.PaymentUpdate{
		InvoiceID:    inv.ID,
		ExpectedPaid: expected,
		AmountPaid:   inv.AmountPaid.Amount(),
		Status:       inv.Status,
		PaidAt:       inv.PaidAt,
		UpdatedAt:    inv.UpdatedAt,
	})
	if err != nil {
		return recordOutcome{}, storageErr(err)
	}
	if !ok {
		return recordOutcome{}, paymentdomain.ErrConcurrentPayment
	}

	return recordOutcome{payment: payment, invoice: inv, previous: previous, pending: pending, caughtUp: caughtUp}, nil
}

func (s *Service) ReconcileTaxBreakdown(ctx context.Context, id string) (*paymentdomain.ReconcileTaxBreakdownResponse, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "payment.reconcile_tax_breakdown")
	defer span.End()
	span.SetAttributes(tracing.SafeAttributes(attribute.String("invoice.id", invoiceID.String()))...)

	release, err := s.lockInvoice(ctx, invoiceID, s.policy.Get().LockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	var (
		inv        *invoicedomain.Invoice
		reconciled []paymentdomain.Payment
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, reconciled, err = s.reconcile(ctx, tx, invoiceID)
		return err
	})
	if err != nil {
		if db.IsLockErr(err) {
			return nil, paymentdomain.ErrConcurrentPayment
		}
		if errors.Is(err, paymentdomain.ErrStorageFailure) || errors.Is(err, paymentdomain.ErrMalformedRecord) {
			s.log.Error("reconcile tax breakdown failed", zap.String("invoice_id", invoiceID.String()), zap.Error(err))
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, "storage failure")
		}
		return nil, err
	}

	for i := range reconciled {
		s.emitAudit(ctx, "payment.tax_breakdown_reconciled", inv, &reconciled[i], nil)
	}
	if len(reconciled) > 0 {
		s.log.Info("payment tax breakdown reconciled",
			zap.String("invoice_id", invoiceID.String()),
			zap.Int("payments", len(reconciled)),
		)
	}
	return &paymentdomain.ReconcileTaxBreakdownResponse{Reconciled: reconciled}, nil
}

// reconcile allocates the pending payments of the invoice in the order they
// were recorded, as if they were the last payments made. The final one lands
// on the rounded cumulative share of amount_paid, so the invoice's PaymentTax
// rows add up exactly, including any share later payments already caught up.
func (s *Service) reconcile(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (*invoicedomain.Invoice, []paymentdomain.Payment, error) {
	inv, err := s.invoiceRepo.FindByIDForUpdate(ctx, tx, invoiceID)
	if err != nil {
		return nil, nil, storageErr(err)
	}
	if inv == nil {
		return nil, nil, paymentdomain.ErrInvoiceNotFound
	}

	payments, err := s.repo.ListByInvoice(ctx, tx, inv.ID, inv.Currency)
	if err != nil {
		return nil, nil, storageErr(err)
	}
	var pending []paymentdomain.Payment
	var pendingTotal int64
	for _, p := range payments {
		if p.TaxBreakdownStatus == paymentdomain.TaxBreakdownPending {
			pending = append(pending, p)
			pendingTotal += p.Amount.Amount()
		}
	}
	if len(pending) == 0 {
		return inv, []paymentdomain.Payment{}, nil
	}

	paidBefore := inv.AmountPaid.Amount() - pendingTotal
	if paidBefore < 0 {
		return nil, nil, fmt.Errorf("%w: invoice %s: pending payments exceed amount_paid", paymentdomain.ErrMalformedRecord, inv.ID)
	}
	if err := s.invoiceRepo.LoadLineItems(ctx, tx, inv); err != nil {
		return nil, nil, storageErr(err)
	}
	allocated, err := s.repo.AllocatedByLineItemTax(ctx, tx, inv.ID)
	if err != nil {
		return nil, nil, storageErr(err)
	}

	now := s.clock.Now().UTC()
	for i := range pending {
		p := &pending[i]
		allocations, err := proration.Allocate(prorationInput(inv, paidBefore, p.Amount, allocated))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invoice %s: %w", paymentdomain.ErrMalformedRecord, inv.ID, err)
		}
		taxes := s.paymentTaxes(p, allocations, now)
		if err := s.repo.InsertTaxes(ctx, tx, taxes); err != nil {
			return nil, nil, fmt.Errorf("%w: %w: %w", paymentdomain.ErrStorageFailure, paymentdomain.ErrTaxBreakdownFailed, err)
		}
		for _, a := range allocations {
			allocated[a.Line.ID] += a.Amount
		}
		paidBefore += p.Amount.Amount()
		p.Taxes = taxes
		p.TaxBreakdownStatus = paymentdomain.TaxBreakdownComplete
	}

	if _, err := s.repo.CompletePending(ctx, tx, inv.ID); err != nil {
		return nil, nil, storageErr(err)
	}
	return inv, pending, nil
}

// lockInvoice takes the optional Redis lease on the invoice. The returned
// release func is never nil.
func (s *Service) lockInvoice(ctx context.Context, invoiceID snowflake.ID, ttl time.Duration) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	lease, err := s.locker.Acquire(ctx, lock.InvoicePaymentKey(invoiceID.String()), ttl, ttl)
	switch {
	case errors.Is(err, lock.ErrLockHeld):
		return nil, paymentdomain.ErrConcurrentPayment
	case err != nil:
		// the row lock and the amount_paid guard still serialize writers
		s.log.Warn("invoice payment lock unavailable", zap.String("invoice_id", invoiceID.String()), zap.Error(err))
		return func() {}, nil
	}
	return func() {
		if err := lease.Release(context.Background()); err != nil {
			s.log.Warn("release invoice payment lock", zap.String("invoice_id", invoiceID.String()), zap.Error(err))
		}
	}, nil
}

// insertTaxes writes the PaymentTax rows. Under the reconcile policy a
// failed write is rolled back to a savepoint and the payment is kept with a
// pending breakdown; under strict the whole payment fails.
func (s *Service) insertTaxes(ctx context.Context, tx *gorm.DB, payment *paymentdomain.Payment, taxes []paymentdomain.PaymentTax, policy config.TaxBreakdownPolicy) (bool, error) {
	if policy != config.TaxBreakdownReconcile {
		if err := s.repo.InsertTaxes(ctx, tx, taxes); err != nil {
			return false, fmt.Errorf("%w: %w: %w", paymentdomain.ErrStorageFailure, paymentdomain.ErrTaxBreakdownFailed, err)
		}
		return false, nil
	}

	if err := tx.SavePoint(taxBreakdownSavepoint).Error; err != nil {
		return false, storageErr(err)
	}
	insertErr := s.repo.InsertTaxes(ctx, tx, taxes)
	if insertErr == nil {
		return false, nil
	}
	if err := tx.RollbackTo(taxBreakdownSavepoint).Error; err != nil {
		return false, storageErr(err)
	}
	if err := s.repo.SetTaxBreakdownStatus(ctx, tx, payment.ID, paymentdomain.TaxBreakdownPending); err != nil {
		return false, storageErr(err)
	}
	payment.TaxBreakdownStatus = paymentdomain.TaxBreakdownPending

	s.log.Error("payment tax breakdown not recorded, reconciliation required",
		zap.String("invoice_id", payment.InvoiceID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.Int64("tax_allocated", sumTaxes(taxes)),
		zap.Error(insertErr),
	)
	return true, nil
}

func (s *Service) ListPayments(ctx context.Context, id string) ([]paymentdomain.Payment, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	inv, err := s.invoiceRepo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, storageErr(err)
	}
	if inv == nil {
		return nil, paymentdomain.ErrInvoiceNotFound
	}

	payments, err := s.repo.ListByInvoice(ctx, s.db, invoiceID, inv.Currency)
	if err != nil {
		return nil, storageErr(err)
	}
	return payments, nil
}

func (s *Service) validate(req paymentdomain.RecordPaymentRequest, policy config.PaymentPolicy) (paymentForm, error) {
	// The currency is known only once the invoice is read; rule out
	// non-positive and non-numeric amounts before touching storage.
	raw := strings.TrimSpace(req.Amount)
	value, err := decimal.NewFromString(raw)
	if err != nil || !value.IsPositive() || strings.ContainsAny(raw, "eE") {
		return paymentForm{}, paymentdomain.ErrInvalidAmount
	}

	invoiceID, err := parseID(req.InvoiceID)
	if err != nil {
		return paymentForm{}, err
	}

	method := paymentdomain.Method(strings.ToLower(strings.TrimSpace(req.Method)))
	if !method.Valid() {
		return paymentForm{}, paymentdomain.ErrInvalidMethod
	}

	paymentDate, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.PaymentDate), time.UTC)
	if err != nil {
		return paymentForm{}, paymentdomain.ErrInvalidPaymentDate
	}

	reference := trimmedOrNil(req.ReferenceNumber)
	if reference != nil && utf8.RuneCountInString(*reference) > policy.MaxReferenceLength {
		return paymentForm{}, paymentdomain.ErrReferenceTooLong
	}
	notes := trimmedOrNil(req.Notes)
	if notes != nil && utf8.RuneCountInString(*notes) > policy.MaxNotesLength {
		return paymentForm{}, paymentdomain.ErrNotesTooLong
	}

	return paymentForm{
		invoiceID:   invoiceID,
		method:      method,
		paymentDate: paymentDate,
		reference:   reference,
		notes:       notes,
	}, nil
}

func (s *Service) paymentTaxes(payment *paymentdomain.Payment, allocations []proration.Allocation, now time.Time) []paymentdomain.PaymentTax {
	taxes := make([]paymentdomain.PaymentTax, 0, len(allocations))
	for _, a := range allocations {
		amount, _ := money.New(a.Amount, payment.Amount.Currency())
		taxes = append(taxes, paymentdomain.PaymentTax{
			ID:            s.genID.Generate(),
			PaymentID:     payment.ID,
			LineItemTaxID: a.Line.ID,
			TaxRateID:     a.Line.TaxRateID,
			NameSnapshot:  a.Line.Name,
			RateSnapshot:  a.Line.Rate,
			TaxAmount:     amount,
			CreatedAt:     now,
		})
	}
	return taxes
}

func (s *Service) reject(ctx context.Context, span trace.Span, err error) error {
	s.metrics.RecordPaymentRejected(ctx, rejectReason(err))
	span.SetStatus(codes.Error, rejectReason(err))
	return err
}

func (s *Service) emitAudit(ctx context.Context, action string, inv *invoicedomain.Invoice, payment *paymentdomain.Payment, extra map[string]any) {
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{
		"payment_id":           payment.ID.String(),
		"invoice_number":       inv.InvoiceNumber,
		"amount":               payment.Amount.Amount(),
		"amount_display":       payment.Amount.Format(language.AmericanEnglish),
		"currency":             payment.Amount.Currency(),
		"payment_method":       string(payment.Method),
		"payment_date":         payment.PaymentDate.Format(dateLayout),
		"tax_breakdown_status": string(payment.TaxBreakdownStatus),
		"amount_paid":          inv.AmountPaid.Amount(),
		"status":               string(inv.Status),
	}
	if payment.ReferenceNumber != nil {
		metadata["reference_number"] = *payment.ReferenceNumber
	}
	if taxTotal, err := payment.TaxTotal(); err == nil {
		metadata["tax_amount"] = taxTotal.Amount()
	}
	for key, value := range extra {
		metadata[key] = value
	}

	targetID := inv.ID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "invoice", &targetID, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.String("invoice_id", targetID), zap.Error(err))
	}
}

func prorationInput(inv *invoicedomain.Invoice, paidBefore int64, amount money.Money, allocated map[snowflake.ID]int64) proration.Input {
	taxLines := inv.TaxLines()
	lines := make([]proration.TaxLine, 0, len(taxLines))
	for _, lt := range taxLines {
		lines = append(lines, proration.TaxLine{
			ID:        lt.ID,
			TaxRateID: lt.TaxRateID,
			Name:      lt.NameSnapshot,
			Rate:      lt.RateSnapshot,
			Amount:    lt.TaxAmount.Amount(),
			Allocated: allocated[lt.ID],
		})
	}
	return proration.Input{
		Total:      inv.TotalAmount.Amount(),
		TaxAmount:  inv.TaxAmount.Amount(),
		PaidBefore: paidBefore,
		Amount:     amount.Amount(),
		Lines:      lines,
	}
}

func rejectReason(err error) string {
	for _, known := range []error{
		paymentdomain.ErrInvalidAmount,
		paymentdomain.ErrInvalidInvoiceID,
		paymentdomain.ErrInvoiceNotFound,
		paymentdomain.ErrOverpaymentRejected,
		paymentdomain.ErrInvalidState,
		paymentdomain.ErrConcurrentPayment,
		paymentdomain.ErrInvalidMethod,
		paymentdomain.ErrInvalidPaymentDate,
		paymentdomain.ErrReferenceTooLong,
		paymentdomain.ErrNotesTooLong,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "other"
}

func sumAllocated(allocated map[snowflake.ID]int64) int64 {
	var total int64
	for _, amount := range allocated {
		total += amount
	}
	return total
}

func sumTaxes(taxes []paymentdomain.PaymentTax) int64 {
	var total int64
	for _, tax := range taxes {
		total += tax.TaxAmount.Amount()
	}
	return total
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, paymentdomain.ErrInvalidInvoiceID
	}
	return id, nil
}

func storageErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", paymentdomain.ErrStorageFailure, err)
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
