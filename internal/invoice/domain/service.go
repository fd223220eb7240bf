package domain

import (
	"context"

	"github.com/smallbiznis/studioledger/pkg/db/pagination"
)

type CreateLineItemRequest struct {
	ItemType    string   `json:"item_type"`
	Description string   `json:"description"`
	Quantity    int64    `json:"quantity"`
	UnitPrice   string   `json:"unit_price"`
	TaxRateIDs  []string `json:"tax_rate_ids"`
}

type CreateInvoiceRequest struct {
	EntityID  string                  `json:"entity_id"`
	Currency  string                  `json:"currency"`
	IssueDate string                  `json:"issue_date"`
	DueDate   string                  `json:"due_date"`
	Notes     *string                 `json:"notes"`
	LineItems []CreateLineItemRequest `json:"line_items"`
}

type ListInvoiceRequest struct {
	pagination.Pagination
	EntityID string
	Status   InvoiceStatus
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	GetByID(ctx context.Context, id string) (*Invoice, error)
	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	Issue(ctx context.Context, id string) (*Invoice, error)
	Cancel(ctx context.Context, id string, reason string) (*Invoice, error)
}
