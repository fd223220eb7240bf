package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/studioledger/internal/audit/domain"
	"github.com/smallbiznis/studioledger/internal/clock"
	taxdomain "github.com/smallbiznis/studioledger/internal/tax/domain"
	"github.com/smallbiznis/studioledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParams struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     taxdomain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     taxdomain.Repository
	auditSvc auditdomain.Service
}

func NewService(p ServiceParams) taxdomain.Service {
	return &Service{
		log:      p.Log.Named("tax.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) List(ctx context.Context, req taxdomain.ListRequest) ([]taxdomain.Response, error) {
	filter := taxdomain.ListRequest{
		Name:      strings.TrimSpace(req.Name),
		Code:      strings.TrimSpace(req.Code),
		IsEnabled: req.IsEnabled,
		SortBy:    strings.TrimSpace(req.SortBy),
		OrderBy:   strings.TrimSpace(req.OrderBy),
	}

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp := make([]taxdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) Get(ctx context.Context, id string) (*taxdomain.Response, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) Create(ctx context.Context, req taxdomain.CreateRequest) (*taxdomain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, taxdomain.ErrInvalidName
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		code = name
	}
	code = slug.Make(code)
	if code == "" {
		return nil, taxdomain.ErrInvalidTaxCode
	}

	isEnabled := true
	if req.IsEnabled != nil {
		isEnabled = *req.IsEnabled
	}

	now := s.clock.Now().UTC()
	record := &taxdomain.TaxRate{
		ID:          s.genID.Generate(),
		Code:        code,
		Name:        name,
		Rate:        req.Rate,
		Description: trimmedOrNil(req.Description),
		IsEnabled:   isEnabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, taxdomain.ErrTaxCodeConflict
		}
		return nil, err
	}

	s.audit(ctx, "tax_rate.created", record, map[string]any{
		"code": record.Code,
		"rate": record.Rate.String(),
	})

	resp := toResponse(record)
	return &resp, nil
}

// Update applies the provided fields. A request that changes nothing returns
// the stored rate without writing or auditing. Rates already applied to
// invoice line items are snapshotted there, so a new rate only affects
// invoices created afterwards.
func (s *Service) Update(ctx context.Context, req taxdomain.UpdateRequest) (*taxdomain.Response, error) {
	item, err := s.load(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	changes := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, taxdomain.ErrInvalidName
		}
		if name != item.Name {
			changes["name"] = name
			item.Name = name
		}
	}
	if req.Rate != nil && !req.Rate.Equal(item.Rate) {
		changes["previous_rate"] = item.Rate.String()
		changes["rate"] = req.Rate.String()
		item.Rate = *req.Rate
	}
	if req.Description != nil {
		description := trimmedOrNil(req.Description)
		if !sameText(description, item.Description) {
			changes["description_changed"] = true
			item.Description = description
		}
	}

	if len(changes) == 0 {
		resp := toResponse(item)
		return &resp, nil
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	item.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, err
	}
	s.audit(ctx, "tax_rate.updated", item, changes)

	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) Disable(ctx context.Context, id string) (*taxdomain.Response, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.IsEnabled {
		resp := toResponse(item)
		return &resp, nil
	}

	item.IsEnabled = false
	item.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, err
	}

	s.audit(ctx, "tax_rate.disabled", item, nil)

	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) Resolve(ctx context.Context, ids []snowflake.ID) ([]taxdomain.TaxRate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	unique := make([]snowflake.ID, 0, len(ids))
	seen := make(map[snowflake.ID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	rates, err := s.repo.FindByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	byID := make(map[snowflake.ID]taxdomain.TaxRate, len(rates))
	for _, rate := range rates {
		byID[rate.ID] = rate
	}

	// Keep the caller's order: it is the tax order on the line item.
	out := make([]taxdomain.TaxRate, 0, len(ids))
	for _, id := range ids {
		rate, ok := byID[id]
		if !ok {
			return nil, taxdomain.ErrNotFound
		}
		out = append(out, rate)
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, id string) (*taxdomain.TaxRate, error) {
	rateID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || rateID == 0 {
		return nil, taxdomain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, rateID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, taxdomain.ErrNotFound
	}
	return item, nil
}

func (s *Service) audit(ctx context.Context, action string, rate *taxdomain.TaxRate, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := rate.ID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "tax_rate", &targetID, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func toResponse(rate *taxdomain.TaxRate) taxdomain.Response {
	return taxdomain.Response{
		ID:          rate.ID.String(),
		Code:        rate.Code,
		Name:        rate.Name,
		Rate:        rate.Rate,
		Description: rate.Description,
		IsEnabled:   rate.IsEnabled,
		CreatedAt:   rate.CreatedAt,
		UpdatedAt:   rate.UpdatedAt,
	}
}

func sameText(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
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

