package recipe

import (
	"context"
	"strings"
	"time"

	"larder/internal/core/apperror"
	"larder/internal/core/tenant"
	"larder/internal/core/tx"
	"larder/internal/core/types"
	"larder/internal/domain/branch"
	"larder/internal/domain/ledger"
	"larder/pkg/logger"
)

// ItemLookup resolves inventory items of a location. Satisfied by *ledger.Store.
type ItemLookup interface {
	Lookup(ctx context.Context, scope tenant.Scope, itemIDs []string) (map[string]*ledger.InventoryItem, error)
	LocationVersion(ctx context.Context, scope tenant.Scope) (ledger.LocationVersion, error)
}

// Service manages menu items.
type Service struct {
	repo  Repository
	items ItemLookup
	txm   tx.Manager
	now   func() time.Time
}

// NewService creates a recipe service.
func NewService(repo Repository, items ItemLookup, txm tx.Manager) *Service {
	return &Service{
		repo:  repo,
		items: items,
		txm:   txm,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// UpsertInput is a full replacement of a menu item's recipe.
type UpsertInput struct {
	MenuItemID  string
	Name        string
	Price       types.Money
	Active      bool
	Ingredients []Ingredient
}

// Upsert creates or replaces a menu item. Ingredient unit costs are taken from the
// referenced inventory items of the same location; a reference to an item that does
// not exist there is rejected.
func (s *Service) Upsert(ctx context.Context, scope tenant.Scope, in UpsertInput) (*MenuItem, error) {
	if !scope.Valid() {
		return nil, apperror.NewMissingLocation("menu_item", in.MenuItemID)
	}
	in.MenuItemID = strings.TrimSpace(in.MenuItemID)

	var out *MenuItem
	err := tx.WithRetry(ctx, s.txm, tx.DefaultMaxAttempts, func(ctx context.Context) error {
		ingredients := make([]Ingredient, len(in.Ingredients))
		copy(ingredients, in.Ingredients)

		refs := make([]string, 0, len(ingredients))
		for _, ing := range ingredients {
			if ref := ing.ItemRef(); ref != "" {
				refs = append(refs, ref)
			}
		}
		stock, err := s.items.Lookup(ctx, scope, refs)
		if err != nil {
			return err
		}
		lv, err := s.items.LocationVersion(ctx, scope)
		if err != nil {
			return err
		}

		for idx := range ingredients {
			ing := &ingredients[idx]
			ref := ing.ItemRef()
			item, ok := stock[ref]
			if !ok {
				return apperror.NewNotFound("inventory_item", ref).
					WithDetail("location_id", scope.LocationID).
					WithDetail("menu_item_id", in.MenuItemID)
			}
			ing.InventoryItemID = item.ItemID
			ing.LegacyID = ""
			if ing.Name == "" {
				ing.Name = item.Name
			}
			if ing.Unit == "" {
				ing.Unit = item.Unit
			}
			ing.UnitCost = item.CostPerUnit
		}

		existing, err := s.repo.GetMenuItem(ctx, scope, in.MenuItemID)
		if err != nil && !apperror.IsNotFound(err) {
			return err
		}

		now := s.now()
		if existing == nil {
			mi := &MenuItem{
				TenantID:    scope.TenantID,
				LocationID:  scope.LocationID,
				MenuItemID:  in.MenuItemID,
				Name:        strings.TrimSpace(in.Name),
				Ingredients: ingredients,
				Price:       in.Price,
				Active:      in.Active,
				CostVersion: lv.CostVersion,
			}
			mi.RecomputeTotal()
			mi.Touch(now)
			if err := mi.Validate(ctx); err != nil {
				return err
			}
			if err := s.repo.CreateMenuItem(ctx, mi); err != nil {
				return err
			}
			out = mi
			return nil
		}

		if err := branch.AssertLocation(existing, scope.LocationID); err != nil {
			return err
		}
		existing.Name = strings.TrimSpace(in.Name)
		existing.Ingredients = ingredients
		existing.Price = in.Price
		existing.Active = in.Active
		existing.CostVersion = lv.CostVersion
		existing.RecomputeTotal()
		existing.Touch(now)
		if err := existing.Validate(ctx); err != nil {
			return err
		}
		if err := s.repo.UpdateMenuItem(ctx, existing); err != nil {
			return err
		}
		out = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "menu item saved",
		"location_id", scope.LocationID,
		"menu_item_id", out.MenuItemID,
		"ingredients", len(out.Ingredients),
		"total_cost", out.TotalCost.String(),
	)
	return out, nil
}

// Get returns a menu item of the scope.
func (s *Service) Get(ctx context.Context, scope tenant.Scope, menuItemID string) (*MenuItem, error) {
	if !scope.Valid() {
		return nil, apperror.NewMissingLocation("menu_item", menuItemID)
	}
	mi, err := s.repo.GetMenuItem(ctx, scope, menuItemID)
	if err != nil {
		return nil, err
	}
	if err := branch.AssertLocation(mi, scope.LocationID); err != nil {
		return nil, err
	}
	return mi, nil
}
