package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	auditrepo "github.com/smallbiznis/studioledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/studioledger/internal/audit/service"
	"github.com/smallbiznis/studioledger/internal/billingtest"
	"github.com/smallbiznis/studioledger/internal/clock"
	"github.com/smallbiznis/studioledger/internal/config"
	invoicedomain "github.com/smallbiznis/studioledger/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/studioledger/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/studioledger/internal/invoice/service"
	"github.com/smallbiznis/studioledger/internal/observability"
	paymentrepo "github.com/smallbiznis/studioledger/internal/payment/repository"
	paymentservice "github.com/smallbiznis/studioledger/internal/payment/service"
	taxrepo "github.com/smallbiznis/studioledger/internal/tax/repository"
	taxservice "github.com/smallbiznis/studioledger/internal/tax/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testMoney struct {
	Amount      string `json:"amount"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
}

type testInvoice struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	TotalAmount testMoney `json:"total_amount"`
	AmountPaid  testMoney `json:"amount_paid"`
	Payments    []struct {
		ID                 string    `json:"id"`
		Amount             testMoney `json:"amount"`
		TaxBreakdownStatus string    `json:"tax_breakdown_status"`
	} `json:"payments"`
}

type testError struct {
	Error errorPayload `json:"error"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := billingtest.SetupDB(t)
	node := billingtest.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC))
	log := zap.NewNop()

	auditSvc := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: auditrepo.Provide()})
	taxSvc := taxservice.NewService(taxservice.ServiceParams{Log: log, GenID: node, Clock: clk, Repo: taxrepo.NewRepository(db), AuditSvc: auditSvc})
	invoiceSvc := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:         db,
		Log:        log,
		GenID:      node,
		Clock:      clk,
		Config:     config.Config{DefaultCurrency: "USD"},
		Repo:       invoicerepo.Provide(),
		TaxSvc:     taxSvc,
		Calculator: taxservice.NewCalculator(),
		AuditSvc:   auditSvc,
	})
	paymentSvc := paymentservice.NewService(paymentservice.ServiceParam{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       clk,
		InvoiceRepo: invoicerepo.Provide(),
		Repo:        paymentrepo.Provide(),
		AuditSvc:    auditSvc,
	})

	return NewServer(ServerParams{
		Gin:        NewEngine(observability.Config{Environment: "test", LogLevel: "info"}, nil),
		Cfg:        config.Config{Environment: "test"},
		TaxSvc:     taxSvc,
		InvoiceSvc: invoiceSvc,
		PaymentSvc: paymentSvc,
		AuditSvc:   auditSvc,
	})
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Staff-Id", "staff-7")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var envelope struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return envelope.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()

	var resp testError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp.Error
}

// sentInvoice creates a 100.00 + 3.5% tax invoice and issues it.
func sentInvoice(t *testing.T, s *Server) testInvoice {
	t.Helper()

	rec := do(t, s, http.MethodPost, "/api/tax_rates", map[string]any{"name": "Sales tax", "rate": "3.5"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rate := decodeData[struct {
		ID string `json:"id"`
	}](t, rec)

	rec = do(t, s, http.MethodPost, "/api/invoices", map[string]any{
		"entity_id":  "family-1",
		"issue_date": "2026-03-10",
		"due_date":   "2026-04-09",
		"line_items": []map[string]any{{
			"item_type":    "tuition",
			"description":  "Spring term ballet",
			"quantity":     1,
			"unit_price":   "100.00",
			"tax_rate_ids": []string{rate.ID},
		}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	inv := decodeData[testInvoice](t, rec)
	require.Equal(t, "draft", inv.Status)

	rec = do(t, s, http.MethodPost, "/api/invoices/"+inv.ID+"/issue", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	inv = decodeData[testInvoice](t, rec)
	require.Equal(t, "sent", inv.Status)
	require.Equal(t, int64(10350), inv.TotalAmount.AmountMinor)
	return inv
}

func TestRecordPaymentEndpoint(t *testing.T) {
	s := newTestServer(t)
	inv := sentInvoice(t, s)
	paymentsPath := "/api/invoices/" + inv.ID + "/payments"

	rec := do(t, s, http.MethodPost, paymentsPath, map[string]any{
		"amount":           "60.00",
		"payment_method":   "check",
		"payment_date":     "2026-03-12",
		"reference_number": "CHK-1042",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	recorded := decodeData[struct {
		Payment struct {
			ID                 string    `json:"id"`
			Amount             testMoney `json:"amount"`
			TaxBreakdownStatus string    `json:"tax_breakdown_status"`
			Taxes              []struct {
				TaxAmount testMoney `json:"tax_amount"`
			} `json:"taxes"`
		} `json:"payment"`
		Invoice testInvoice `json:"invoice"`
	}](t, rec)
	assert.Equal(t, int64(6000), recorded.Payment.Amount.AmountMinor)
	assert.Equal(t, "complete", recorded.Payment.TaxBreakdownStatus)
	require.Len(t, recorded.Payment.Taxes, 1)
	assert.Equal(t, int64(203), recorded.Payment.Taxes[0].TaxAmount.AmountMinor)
	assert.Equal(t, "partially_paid", recorded.Invoice.Status)
	assert.Equal(t, int64(6000), recorded.Invoice.AmountPaid.AmountMinor)

	t.Run("overpayment is a field error on amount", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, paymentsPath, map[string]any{
			"amount":         "43.51",
			"payment_method": "cash",
			"payment_date":   "2026-03-13",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		payload := decodeError(t, rec)
		assert.Equal(t, "validation_error", payload.Type)
		require.Len(t, payload.Errors, 1)
		assert.Equal(t, "amount", payload.Errors[0].Field)
		assert.Equal(t, "overpayment_rejected", payload.Errors[0].Code)
	})

	t.Run("unknown method names the field", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, paymentsPath, map[string]any{
			"amount":         "1.00",
			"payment_method": "barter",
			"payment_date":   "2026-03-13",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		payload := decodeError(t, rec)
		require.Len(t, payload.Errors, 1)
		assert.Equal(t, "payment_method", payload.Errors[0].Field)
	})

	t.Run("invoice detail lists payments", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/invoices/"+inv.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		detail := decodeData[testInvoice](t, rec)
		assert.Equal(t, "partially_paid", detail.Status)
		require.Len(t, detail.Payments, 1)
		assert.Equal(t, recorded.Payment.ID, detail.Payments[0].ID)
	})

	t.Run("remaining balance settles the invoice", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, paymentsPath, map[string]any{
			"amount":         "43.50",
			"payment_method": "bank_transfer",
			"payment_date":   "2026-03-14",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = do(t, s, http.MethodGet, paymentsPath, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		payments := decodeData[[]struct {
			Taxes []struct {
				TaxAmount testMoney `json:"tax_amount"`
			} `json:"taxes"`
		}](t, rec)
		require.Len(t, payments, 2)
		var taxTotal int64
		for _, p := range payments {
			for _, tax := range p.Taxes {
				taxTotal += tax.TaxAmount.AmountMinor
			}
		}
		assert.Equal(t, int64(350), taxTotal)

		rec = do(t, s, http.MethodPost, paymentsPath, map[string]any{
			"amount":         "0.01",
			"payment_method": "cash",
			"payment_date":   "2026-03-15",
		})
		require.Equal(t, http.StatusConflict, rec.Code)
		payload := decodeError(t, rec)
		assert.Equal(t, "invalid_state", payload.Type)
		require.Len(t, payload.Errors, 1)
		assert.Equal(t, "general", payload.Errors[0].Field)
		assert.Equal(t, "invoice_already_paid", payload.Errors[0].Code)
	})

	t.Run("audit trail is filterable by invoice", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/audit_logs?target_type=invoice&target_id="+inv.ID+"&action=payment.recorded", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		logs := decodeData[[]struct {
			Action    string  `json:"action"`
			ActorType string  `json:"actor_type"`
			ActorID   *string `json:"actor_id"`
		}](t, rec)
		require.Len(t, logs, 2)
		for _, entry := range logs {
			assert.Equal(t, "payment.recorded", entry.Action)
		}
	})
}

func TestCancelledInvoiceRejectsPayment(t *testing.T) {
	s := newTestServer(t)
	inv := sentInvoice(t, s)

	rec := do(t, s, http.MethodPost, "/api/invoices/"+inv.ID+"/cancel", map[string]any{"reason": "withdrew from class"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decodeData[testInvoice](t, rec).Status)

	rec = do(t, s, http.MethodPost, "/api/invoices/"+inv.ID+"/payments", map[string]any{
		"amount":         "10.00",
		"payment_method": "cash",
		"payment_date":   "2026-03-12",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invoice_cancelled", payload.Errors[0].Code)
}

func TestRequestErrors(t *testing.T) {
	s := newTestServer(t)

	t.Run("unknown invoice", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/api/invoices/1234567/payments", map[string]any{
			"amount":         "10.00",
			"payment_method": "cash",
			"payment_date":   "2026-03-12",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decodeError(t, rec).Type)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/invoices", bytes.NewBufferString("{"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		s.Engine().ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		payload := decodeError(t, rec)
		require.Len(t, payload.Errors, 1)
		assert.Equal(t, "request", payload.Errors[0].Field)
	})

	t.Run("duplicate tax code", func(t *testing.T) {
		body := map[string]any{"code": "gst", "name": "GST", "rate": "5"}
		require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/api/tax_rates", body).Code)
		rec := do(t, s, http.MethodPost, "/api/tax_rates", body)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown route", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/nothing", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad audit time range", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/api/audit_logs?start_at=yesterday", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "start_at", decodeError(t, rec).Errors[0].Field)
	})
}

func TestMapErrorHidesStorageDetail(t *testing.T) {
	err := fmt.Errorf("%w: %w", invoicedomain.ErrStorageFailure, errors.New("pq: relation \"invoices\" does not exist"))

	status, payload := mapError(err)
	assert.Equal(t, http.StatusInternalServerError, status)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "general", payload.Errors[0].Field)
	assert.Equal(t, "storage_failure", payload.Errors[0].Code)
	assert.NotContains(t, payload.Message, "relation")

	errType, code := classifyErrorForLog(err)
	assert.Equal(t, "internal_error", errType)
	assert.Equal(t, "storage_failure", code)

	errType, code = classifyErrorForLog(context.Canceled)
	assert.Equal(t, "internal_error", errType)
	assert.Equal(t, "internal_error", code)
}
