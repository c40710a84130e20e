package purchasing

import (
	"context"
	"strings"
	"time"

	"larder/internal/core/apperror"
	appctx "larder/internal/core/context"
	"larder/internal/core/id"
	"larder/internal/core/tenant"
	"larder/internal/core/tx"
	"larder/pkg/logger"
)

// Numerator issues order numbers. Satisfied by *numerator.Service.
type Numerator interface {
	Next(ctx context.Context, tenantID, prefix string, at time.Time) (string, error)
}

// Service manages the purchase order lifecycle before delivery.
type Service struct {
	repo      Repository
	numerator Numerator
	txm       tx.Manager
	now       func() time.Time
}

// NewService creates a purchase order service.
func NewService(repo Repository, numerator Numerator, txm tx.Manager) *Service {
	return &Service{
		repo:      repo,
		numerator: numerator,
		txm:       txm,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateInput is a new purchase order.
type CreateInput struct {
	LocationID string
	Supplier   string
	Notes      string
	Lines      []Line
}

// Create stores a draft purchase order with a generated number.
func (s *Service) Create(ctx context.Context, in CreateInput) (*PurchaseOrder, error) {
	scope, err := tenant.ScopeFromContext(ctx, in.LocationID)
	if err != nil {
		return nil, apperror.NewValidation("tenant is required")
	}

	lines := make([]Line, len(in.Lines))
	for idx, line := range in.Lines {
		line.ItemName = strings.TrimSpace(line.ItemName)
		line.InventoryItemID = strings.TrimSpace(line.InventoryItemID)
		line.QuantityReceived = 0
		lines[idx] = line
	}

	now := s.now()
	po := &PurchaseOrder{
		TenantID:   scope.TenantID,
		LocationID: scope.LocationID,
		POID:       id.NewString(),
		Supplier:   strings.TrimSpace(in.Supplier),
		Notes:      in.Notes,
		Lines:      lines,
		Status:     StatusDraft,
		CreatedBy:  appctx.GetActorID(ctx),
	}
	po.Touch(now)
	if err := po.Validate(ctx); err != nil {
		return nil, err
	}

	// numbers are taken outside the business transaction
	number, err := s.numerator.Next(ctx, scope.TenantID, OrderNumberPrefix, now)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	po.OrderNumber = number

	if err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.CreateOrder(ctx, po)
	}); err != nil {
		return nil, err
	}

	logger.Info(ctx, "purchase order created",
		"po_id", po.POID,
		"order_number", po.OrderNumber,
		"location_id", po.LocationID,
		"lines", len(po.Lines),
	)
	return po, nil
}

// Submit sends a draft to the supplier.
func (s *Service) Submit(ctx context.Context, poID string) (*PurchaseOrder, error) {
	tenantID, err := tenant.RequireTenantID(ctx)
	if err != nil {
		return nil, apperror.NewValidation("tenant is required")
	}

	var out *PurchaseOrder
	err = tx.WithRetry(ctx, s.txm, tx.DefaultMaxAttempts, func(ctx context.Context) error {
		po, err := s.repo.GetOrder(ctx, tenantID, poID)
		if err != nil {
			return err
		}
		if err := po.Submit(s.now()); err != nil {
			return err
		}
		if err := s.repo.UpdateOrder(ctx, po); err != nil {
			return err
		}
		out = po
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a purchase order of the context tenant.
func (s *Service) Get(ctx context.Context, poID string) (*PurchaseOrder, error) {
	tenantID, err := tenant.RequireTenantID(ctx)
	if err != nil {
		return nil, apperror.NewValidation("tenant is required")
	}
	return s.repo.GetOrder(ctx, tenantID, poID)
}
