package fulfillment

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"larder/internal/core/apperror"
	appctx "larder/internal/core/context"
	"larder/internal/core/tenant"
	"larder/internal/core/tx"
	"larder/internal/domain/branch"
	"larder/internal/domain/ledger"
	"larder/internal/domain/recipe"
	"larder/pkg/logger"
)

var tracer = otel.Tracer("larder/fulfillment")

// DeductionResult is returned by Deduct.
type DeductionResult struct {
	OrderID       string                        `json:"orderId"`
	LocationID    string                        `json:"locationId"`
	Movements     []ledger.Movement             `json:"movements"`
	Oversold      []ledger.OversoldWarning      `json:"oversold,omitempty"`
	Unresolved    []IngredientUnresolvedWarning `json:"unresolved,omitempty"`
	Contributions []Contribution                `json:"contributions,omitempty"`
	// Replayed is set when the order had already been deducted; nothing was written.
	Replayed bool `json:"replayed"`
}

// Service is the order fulfillment entry point.
type Service struct {
	store       *ledger.Store
	recipes     recipe.Repository
	txm         tx.Manager
	maxAttempts int
}

// NewService creates a fulfillment service. maxAttempts <= 0 uses tx.DefaultMaxAttempts.
func NewService(store *ledger.Store, recipes recipe.Repository, txm tx.Manager, maxAttempts int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = tx.DefaultMaxAttempts
	}
	return &Service{store: store, recipes: recipes, txm: txm, maxAttempts: maxAttempts}
}

// Deduct deducts every ingredient of the sold menu items from the location's stock as one
// transaction. A second call with the same orderID returns the recorded movements.
func (s *Service) Deduct(ctx context.Context, locationID, orderID string, lines []SaleLine) (*DeductionResult, error) {
	scope, err := tenant.ScopeFromContext(ctx, locationID)
	if err != nil {
		return nil, apperror.NewValidation("tenant is required")
	}
	if scope.LocationID == "" {
		return nil, apperror.NewMissingLocation("order", orderID)
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, apperror.NewValidation("order id is required")
	}
	if err := validateLines(lines); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "fulfillment.Deduct", trace.WithAttributes(
		attribute.String("location_id", scope.LocationID),
		attribute.String("order_id", orderID),
		attribute.Int("lines", len(lines)),
	))
	defer span.End()

	meta := ledger.MovementMeta{
		RefType: ledger.RefTypeOrder,
		RefID:   orderID,
		Actor:   appctx.GetActorID(ctx),
	}

	var result *DeductionResult
	err = tx.WithRetry(ctx, s.txm, s.maxAttempts, func(ctx context.Context) error {
		result = &DeductionResult{OrderID: orderID, LocationID: scope.LocationID}

		previous, err := s.store.Movements(ctx, scope, ledger.MovementFilter{
			RefType: ledger.RefTypeOrder,
			RefID:   orderID,
			Reason:  ledger.ReasonSale,
		})
		if err != nil {
			return err
		}
		if len(previous) > 0 {
			result.Movements = previous
			result.Replayed = true
			return nil
		}

		recipes, items, err := s.load(ctx, scope, lines)
		if err != nil {
			return err
		}

		acc := Accumulate(lines, recipes, items)
		result.Unresolved = acc.Unresolved
		result.Contributions = acc.Contributions

		outcome, err := s.store.ApplyDeductions(ctx, scope, acc.Totals, meta)
		if err != nil {
			return err
		}
		result.Movements = outcome.Movements
		result.Oversold = outcome.Oversold
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		deductionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if result.Replayed {
		deductionsTotal.WithLabelValues("replayed").Inc()
		logger.Info(ctx, "order already deducted, returning recorded movements",
			"location_id", scope.LocationID,
			"order_id", orderID,
			"movements", len(result.Movements),
		)
		return result, nil
	}

	deductionsTotal.WithLabelValues("applied").Inc()
	warningsTotal.WithLabelValues("oversold").Add(float64(len(result.Oversold)))
	warningsTotal.WithLabelValues("unresolved").Add(float64(len(result.Unresolved)))
	for _, w := range result.Unresolved {
		logger.Warn(ctx, "ingredient unresolved, skipped",
			"location_id", scope.LocationID,
			"order_id", orderID,
			"menu_item_id", w.MenuItemID,
			"inventory_item_id", w.InventoryItemID,
			"reason", w.Reason,
		)
	}
	logger.Info(ctx, "order deducted",
		"location_id", scope.LocationID,
		"order_id", orderID,
		"movements", len(result.Movements),
		"oversold", len(result.Oversold),
	)
	return result, nil
}

// load reads the menu items of the order and the inventory items they reference,
// rejecting anything owned by another location.
func (s *Service) load(ctx context.Context, scope tenant.Scope, lines []SaleLine) (RecipeLookup, ItemLookup, error) {
	menuIDs := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.MenuItemID]; ok {
			continue
		}
		seen[line.MenuItemID] = struct{}{}
		menuIDs = append(menuIDs, line.MenuItemID)
	}

	menus, err := s.recipes.GetMenuItems(ctx, scope, menuIDs)
	if err != nil {
		return nil, nil, err
	}

	var refs []string
	for _, menu := range menus {
		if err := branch.AssertLocation(menu, scope.LocationID); err != nil {
			return nil, nil, err
		}
		for _, ing := range menu.Ingredients {
			if ref := ing.ItemRef(); ref != "" {
				refs = append(refs, ref)
			}
		}
	}

	items, err := s.store.Lookup(ctx, scope, refs)
	if err != nil {
		return nil, nil, err
	}
	return RecipeLookup(menus), ItemLookup(items), nil
}

func validateLines(lines []SaleLine) error {
	if len(lines) == 0 {
		return apperror.NewValidation("order has no sale lines")
	}
	for idx, line := range lines {
		if strings.TrimSpace(line.MenuItemID) == "" {
			return apperror.NewValidation("sale line has no menu item").
				WithDetail("line", idx+1)
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("sale quantity must be positive").
				WithDetail("line", idx+1).
				WithDetail("menu_item_id", line.MenuItemID)
		}
	}
	return nil
}
