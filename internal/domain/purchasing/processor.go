package purchasing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"larder/internal/core/apperror"
	"larder/internal/core/tenant"
	"larder/internal/core/tx"
	"larder/internal/core/types"
	"larder/internal/domain/branch"
	"larder/internal/domain/ledger"
	"larder/pkg/logger"
)

var tracer = otel.Tracer("larder/purchasing")

// LineReceipt is what was actually received for one order line.
type LineReceipt struct {
	LineIndex        int            `json:"lineIndex"`
	QuantityReceived types.Quantity `json:"quantityReceived"`
	// UnitPrice overrides the ordered price when set.
	UnitPrice *types.Money `json:"unitPrice,omitempty"`
}

// DeliveryLineResult reports the effect of one delivered line.
type DeliveryLineResult struct {
	LineIndex       int            `json:"lineIndex"`
	InventoryItemID string         `json:"inventoryItemId,omitempty"`
	ItemName        string         `json:"itemName"`
	ItemCreated     bool           `json:"itemCreated"`
	Received        types.Quantity `json:"received"`
	UnitPrice       types.Money    `json:"unitPrice"`
	PreviousStock   types.Quantity `json:"previousStock"`
	NewStock        types.Quantity `json:"newStock"`
	PreviousCost    types.Money    `json:"previousCost"`
	NewCost         types.Money    `json:"newCost"`
	CostChanged     bool           `json:"costChanged"`
}

// DeliveryResult is returned by Deliver.
type DeliveryResult struct {
	Order       *PurchaseOrder       `json:"order"`
	Lines       []DeliveryLineResult `json:"lines"`
	Movements   []ledger.Movement    `json:"movements"`
	CostChanges []ledger.CostChange  `json:"costChanges,omitempty"`
}

// DeliveryCompleted is the notification sent after a delivery commits.
type DeliveryCompleted struct {
	TenantID            string    `json:"tenantId"`
	POID                string    `json:"poId"`
	OrderNumber         string    `json:"orderNumber"`
	LocationID          string    `json:"locationId"`
	ItemsDeliveredCount int       `json:"itemsDeliveredCount"`
	DeliveredBy         string    `json:"deliveredBy"`
	SupplierName        string    `json:"supplierName"`
	DeliveredAt         time.Time `json:"deliveredAt"`
}

// CostChangeHandler receives cost changes after commit. Satisfied by costing dispatchers.
type CostChangeHandler interface {
	Dispatch(ctx context.Context, scope tenant.Scope, changes []ledger.CostChange) error
}

// Notifier delivers DeliveryCompleted to whoever listens.
type Notifier interface {
	DeliveryCompleted(ctx context.Context, event DeliveryCompleted) error
}

// AuditRecorder keeps the delivery trail.
type AuditRecorder interface {
	RecordDelivery(ctx context.Context, result *DeliveryResult) error
}

// Processor delivers purchase orders into stock.
type Processor struct {
	repo        Repository
	store       *ledger.Store
	txm         tx.Manager
	maxAttempts int

	costs    CostChangeHandler
	notifier Notifier
	audit    AuditRecorder
	now      func() time.Time
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithCostChangeHandler sets where cost changes go after commit.
func WithCostChangeHandler(h CostChangeHandler) ProcessorOption {
	return func(p *Processor) { p.costs = h }
}

// WithNotifier sets the delivery notifier.
func WithNotifier(n Notifier) ProcessorOption {
	return func(p *Processor) { p.notifier = n }
}

// WithAuditRecorder sets the audit trail writer.
func WithAuditRecorder(a AuditRecorder) ProcessorOption {
	return func(p *Processor) { p.audit = a }
}

// WithMaxAttempts bounds retries on optimistic-lock conflicts.
func WithMaxAttempts(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// NewProcessor creates a delivery processor.
func NewProcessor(repo Repository, store *ledger.Store, txm tx.Manager, opts ...ProcessorOption) *Processor {
	p := &Processor{
		repo:        repo,
		store:       store,
		txm:         txm,
		maxAttempts: tx.DefaultMaxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Deliver receives a submitted purchase order into its location's stock.
//
// Item resolution, stock and cost updates, movements and the status change commit together
// or not at all. Cost propagation, notification and audit run after commit and never undo it.
// When receipts is empty every line is received as ordered.
func (p *Processor) Deliver(ctx context.Context, poID, deliveredBy string, receipts []LineReceipt) (*DeliveryResult, error) {
	tenantID, err := tenant.RequireTenantID(ctx)
	if err != nil {
		return nil, apperror.NewValidation("tenant is required")
	}
	poID = strings.TrimSpace(poID)
	deliveredBy = strings.TrimSpace(deliveredBy)

	ctx, span := tracer.Start(ctx, "purchasing.Deliver", trace.WithAttributes(
		attribute.String("po_id", poID),
	))
	defer span.End()

	var result *DeliveryResult
	err = tx.WithRetry(ctx, p.txm, p.maxAttempts, func(ctx context.Context) error {
		var err error
		result, err = p.deliver(ctx, tenantID, poID, deliveredBy, receipts)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome := "error"
		if appErr, ok := apperror.AsAppError(err); ok {
			outcome = strings.ToLower(appErr.Code)
		}
		deliveriesTotal.WithLabelValues(outcome).Inc()
		return nil, err
	}

	deliveriesTotal.WithLabelValues("delivered").Inc()
	costChangesTotal.Add(float64(len(result.CostChanges)))
	logger.Info(ctx, "purchase order delivered",
		"po_id", poID,
		"order_number", result.Order.OrderNumber,
		"location_id", result.Order.LocationID,
		"movements", len(result.Movements),
		"cost_changes", len(result.CostChanges),
	)

	p.afterCommit(ctx, result)
	return result, nil
}

func (p *Processor) deliver(ctx context.Context, tenantID, poID, deliveredBy string, receipts []LineReceipt) (*DeliveryResult, error) {
	po, err := p.repo.GetOrder(ctx, tenantID, poID)
	if err != nil {
		return nil, err
	}
	if po.Status == StatusDelivered {
		return nil, apperror.NewAlreadyDelivered(po.POID)
	}
	if deliveredBy == "" {
		return nil, apperror.NewMissingActor("deliveredBy")
	}
	if po.LocationID == "" {
		return nil, apperror.NewMissingLocation(po.EntityName(), po.POID)
	}
	if po.Status != StatusSubmitted {
		return nil, apperror.NewInvalidTransition(po.EntityName(), string(po.Status), string(StatusDelivered))
	}

	scope := tenant.Scope{TenantID: tenantID, LocationID: po.LocationID}
	if err := branch.AssertLocation(po, scope.LocationID); err != nil {
		return nil, err
	}

	plan, err := planReceipts(po, receipts)
	if err != nil {
		return nil, err
	}

	meta := ledger.MovementMeta{
		RefType: ledger.RefTypePurchaseOrder,
		RefID:   po.POID,
		Actor:   deliveredBy,
	}

	result := &DeliveryResult{Lines: make([]DeliveryLineResult, 0, len(po.Lines))}
	for idx := range po.Lines {
		line := &po.Lines[idx]
		rc := plan[idx]
		lr := DeliveryLineResult{
			LineIndex: idx,
			ItemName:  line.ItemName,
			Received:  rc.qty,
			UnitPrice: rc.price,
		}
		line.QuantityReceived = rc.qty

		if rc.qty.IsZero() {
			lr.InventoryItemID = line.InventoryItemID
			result.Lines = append(result.Lines, lr)
			continue
		}

		item, created, err := p.store.EnsureItem(ctx, scope, ledger.ItemSpec{
			ItemID: line.InventoryItemID,
			Name:   line.ItemName,
			Unit:   line.Unit,
		})
		if err != nil {
			return nil, fmt.Errorf("resolve line %d item: %w", idx, err)
		}

		outcome, err := p.store.ApplyReceipt(ctx, scope, item.ItemID, rc.qty, rc.price, meta)
		if err != nil {
			return nil, err
		}

		line.InventoryItemID = item.ItemID
		lr.InventoryItemID = item.ItemID
		lr.ItemCreated = created
		lr.PreviousStock = outcome.PreviousStock
		lr.NewStock = outcome.Item.CurrentStock
		lr.PreviousCost = outcome.PreviousCost
		lr.NewCost = outcome.Item.CostPerUnit
		lr.CostChanged = outcome.CostChanged
		result.Lines = append(result.Lines, lr)
		result.Movements = append(result.Movements, outcome.Movement)

		if outcome.CostChanged {
			result.CostChanges = mergeCostChange(result.CostChanges, ledger.CostChange{
				LocationID:   scope.LocationID,
				ItemID:       item.ItemID,
				PreviousCost: outcome.PreviousCost,
				NewCost:      outcome.Item.CostPerUnit,
				CostVersion:  outcome.Item.CostVersion,
			})
		}
	}

	if err := po.MarkDelivered(deliveredBy, p.now()); err != nil {
		return nil, err
	}
	if err := p.repo.UpdateOrder(ctx, po); err != nil {
		return nil, err
	}

	result.Order = po
	return result, nil
}

// mergeCostChange keeps one entry per item: the first previous cost and the last new cost.
func mergeCostChange(changes []ledger.CostChange, c ledger.CostChange) []ledger.CostChange {
	for i := range changes {
		if changes[i].ItemID == c.ItemID {
			changes[i].NewCost = c.NewCost
			changes[i].CostVersion = c.CostVersion
			return changes
		}
	}
	return append(changes, c)
}

type receiptPlan struct {
	qty   types.Quantity
	price types.Money
}

func planReceipts(po *PurchaseOrder, receipts []LineReceipt) ([]receiptPlan, error) {
	plan := make([]receiptPlan, len(po.Lines))
	for idx, line := range po.Lines {
		plan[idx] = receiptPlan{qty: line.OrderedQty, price: line.UnitPrice}
	}
	if len(receipts) == 0 {
		return plan, nil
	}

	// with explicit receipts, lines not mentioned were not received
	for idx := range plan {
		plan[idx].qty = 0
	}
	seen := make(map[int]struct{}, len(receipts))
	for _, rc := range receipts {
		if rc.LineIndex < 0 || rc.LineIndex >= len(po.Lines) {
			return nil, apperror.NewValidation("receipt line index out of range").
				WithDetail("line_index", rc.LineIndex).
				WithDetail("lines", len(po.Lines))
		}
		if _, dup := seen[rc.LineIndex]; dup {
			return nil, apperror.NewValidation("line received twice").
				WithDetail("line_index", rc.LineIndex)
		}
		seen[rc.LineIndex] = struct{}{}

		if rc.QuantityReceived.IsNegative() {
			return nil, apperror.NewValidation("received quantity cannot be negative").
				WithDetail("line_index", rc.LineIndex)
		}
		plan[rc.LineIndex].qty = rc.QuantityReceived
		if rc.UnitPrice != nil {
			if rc.UnitPrice.IsNegative() {
				return nil, apperror.NewValidation("unit price cannot be negative").
					WithDetail("line_index", rc.LineIndex)
			}
			plan[rc.LineIndex].price = *rc.UnitPrice
		}
	}
	return plan, nil
}

func (p *Processor) afterCommit(ctx context.Context, result *DeliveryResult) {
	po := result.Order
	scope := tenant.Scope{TenantID: po.TenantID, LocationID: po.LocationID}

	if p.costs != nil && len(result.CostChanges) > 0 {
		if err := p.costs.Dispatch(ctx, scope, result.CostChanges); err != nil {
			followUpFailures.WithLabelValues("dispatch").Inc()
			logger.Warn(ctx, "cost propagation dispatch failed, left for reconciliation",
				"po_id", po.POID, "location_id", po.LocationID, "error", err)
		}
	}

	if p.notifier != nil {
		received := 0
		for _, lr := range result.Lines {
			if lr.Received.IsPositive() {
				received++
			}
		}
		event := DeliveryCompleted{
			TenantID:            po.TenantID,
			POID:                po.POID,
			OrderNumber:         po.OrderNumber,
			LocationID:          po.LocationID,
			ItemsDeliveredCount: received,
			DeliveredBy:         po.DeliveredBy,
			SupplierName:        po.Supplier,
		}
		if po.DeliveredAt != nil {
			event.DeliveredAt = *po.DeliveredAt
		}
		if err := p.notifier.DeliveryCompleted(ctx, event); err != nil {
			followUpFailures.WithLabelValues("notify").Inc()
			logger.Warn(ctx, "delivery notification failed", "po_id", po.POID, "error", err)
		}
	}

	if p.audit != nil {
		if err := p.audit.RecordDelivery(ctx, result); err != nil {
			followUpFailures.WithLabelValues("audit").Inc()
			logger.Warn(ctx, "delivery audit failed", "po_id", po.POID, "error", err)
		}
	}
}
