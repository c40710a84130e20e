// Package memory is an in-process implementation of the ledger, recipe and purchasing
// repositories with the same optimistic-concurrency behaviour as the postgres ones.
// Used by tests and by local runs without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"larder/internal/core/apperror"
	"larder/internal/core/tx"
	"larder/internal/domain/ledger"
	"larder/internal/domain/purchasing"
	"larder/internal/domain/recipe"
)

var (
	_ tx.Manager            = (*Store)(nil)
	_ ledger.Repository     = (*Store)(nil)
	_ recipe.Repository     = (*Store)(nil)
	_ purchasing.Repository = (*Store)(nil)
)

type itemKey struct{ tenant, location, item string }
type menuKey struct{ tenant, location, menu string }
type orderKey struct{ tenant, po string }
type scopeKey struct{ tenant, location string }

// lvRow is a location version with its own optimistic-lock revision.
type lvRow struct {
	ledger.LocationVersion
	rev int64
}

func (r lvRow) GetVersion() int64 { return r.rev }

// Store keeps committed rows in maps. Transactions buffer their writes and validate them
// against the committed versions on commit.
type Store struct {
	mu sync.Mutex

	items    *table[itemKey, *ledger.InventoryItem]
	menus    *table[menuKey, *recipe.MenuItem]
	orders   *table[orderKey, *purchasing.PurchaseOrder]
	versions *table[scopeKey, *lvRow]

	movements []ledger.Movement

	// BeforeCommit runs before a transaction validates its writes. Tests use it to
	// interleave a competing writer.
	BeforeCommit func(ctx context.Context)

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		items:    newTable[itemKey]("inventory_item", cloneItem),
		menus:    newTable[menuKey]("menu_item", cloneMenu),
		orders:   newTable[orderKey]("purchase_order", cloneOrder),
		versions: newTable[scopeKey]("location_version", cloneLV),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type txKey struct{}

type txn struct {
	items     *change[itemKey, *ledger.InventoryItem]
	menus     *change[menuKey, *recipe.MenuItem]
	orders    *change[orderKey, *purchasing.PurchaseOrder]
	versions  *change[scopeKey, *lvRow]
	movements []ledger.Movement
}

func newTxn() *txn {
	return &txn{
		items:    newChange[itemKey, *ledger.InventoryItem](),
		menus:    newChange[menuKey, *recipe.MenuItem](),
		orders:   newChange[orderKey, *purchasing.PurchaseOrder](),
		versions: newChange[scopeKey, *lvRow](),
	}
}

func getTxn(ctx context.Context) *txn {
	t, _ := ctx.Value(txKey{}).(*txn)
	return t
}

// RunInTransaction runs fn in a transaction. Nested calls join the outer one.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if getTxn(ctx) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t := newTxn()
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}

	if s.BeforeCommit != nil {
		s.BeforeCommit(ctx)
	}
	return s.commit(t)
}

// ReadOnly runs fn like RunInTransaction; writes inside fn are discarded.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if getTxn(ctx) != nil {
		return fn(ctx)
	}
	return fn(context.WithValue(ctx, txKey{}, newTxn()))
}

func (s *Store) commit(t *txn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := validate(s.items, t.items); err != nil {
		return err
	}
	if err := validate(s.menus, t.menus); err != nil {
		return err
	}
	if err := validate(s.orders, t.orders); err != nil {
		return err
	}
	if err := validate(s.versions, t.versions); err != nil {
		return err
	}

	apply(s.items, t.items)
	apply(s.menus, t.menus)
	apply(s.orders, t.orders)
	apply(s.versions, t.versions)
	s.movements = append(s.movements, t.movements...)
	return nil
}

// write runs fn inside the context transaction, opening one when there is none.
func (s *Store) write(ctx context.Context, fn func(t *txn) error) error {
	return s.RunInTransaction(ctx, func(ctx context.Context) error {
		return fn(getTxn(ctx))
	})
}

// --- generic versioned tables ---

type versioned interface {
	GetVersion() int64
}

type table[K comparable, V versioned] struct {
	name  string
	rows  map[K]V
	clone func(V) V
}

func newTable[K comparable, V versioned](name string, clone func(V) V) *table[K, V] {
	return &table[K, V]{name: name, rows: make(map[K]V), clone: clone}
}

// change buffers the writes of one table in a transaction. base holds the committed
// version seen at the first write of each key, -1 when the row did not exist.
type change[K comparable, V versioned] struct {
	writes map[K]V
	base   map[K]int64
}

func newChange[K comparable, V versioned]() *change[K, V] {
	return &change[K, V]{writes: make(map[K]V), base: make(map[K]int64)}
}

func committedVersion[K comparable, V versioned](t *table[K, V], k K) int64 {
	if row, ok := t.rows[k]; ok {
		return row.GetVersion()
	}
	return -1
}

// get returns a copy of the row visible to the transaction (its own write, else committed).
func get[K comparable, V versioned](s *Store, t *table[K, V], ch *change[K, V], k K) (V, bool) {
	if ch != nil {
		if v, ok := ch.writes[k]; ok {
			return t.clone(v), true
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := t.rows[k]
	if !ok {
		var zero V
		return zero, false
	}
	return t.clone(v), true
}

// scan returns copies of every visible row accepted by keep.
func scan[K comparable, V versioned](s *Store, t *table[K, V], ch *change[K, V], keep func(K, V) bool) []V {
	var out []V
	if ch != nil {
		for k, v := range ch.writes {
			if keep(k, v) {
				out = append(out, t.clone(v))
			}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range t.rows {
		if ch != nil {
			if _, shadowed := ch.writes[k]; shadowed {
				continue
			}
		}
		if keep(k, v) {
			out = append(out, t.clone(v))
		}
	}
	return out
}

// put buffers v. expected is the version the caller read; -1 means create.
// v must already carry its new version.
func put[K comparable, V versioned](s *Store, t *table[K, V], ch *change[K, V], k K, v V, expected int64, id string) error {
	visible, exists := get(s, t, ch, k)
	switch {
	case expected < 0 && exists:
		return apperror.NewConcurrentModification(t.name, id)
	case expected >= 0 && !exists:
		return apperror.NewNotFound(t.name, id)
	case expected >= 0 && visible.GetVersion() != expected:
		return apperror.NewConcurrentModification(t.name, id).
			WithDetail("expected_version", expected).
			WithDetail("actual_version", visible.GetVersion())
	}

	if _, seen := ch.base[k]; !seen {
		s.mu.Lock()
		ch.base[k] = committedVersion(t, k)
		s.mu.Unlock()
	}
	ch.writes[k] = t.clone(v)
	return nil
}

func validate[K comparable, V versioned](t *table[K, V], ch *change[K, V]) error {
	for k, base := range ch.base {
		if committedVersion(t, k) != base {
			return apperror.NewConcurrentModification(t.name, k)
		}
	}
	return nil
}

func apply[K comparable, V versioned](t *table[K, V], ch *change[K, V]) {
	for k, v := range ch.writes {
		t.rows[k] = v
	}
}

func cloneItem(v *ledger.InventoryItem) *ledger.InventoryItem {
	c := *v
	return &c
}

func cloneMenu(v *recipe.MenuItem) *recipe.MenuItem {
	c := *v
	c.Ingredients = append([]recipe.Ingredient(nil), v.Ingredients...)
	return &c
}

func cloneOrder(v *purchasing.PurchaseOrder) *purchasing.PurchaseOrder {
	c := *v
	c.Lines = append([]purchasing.Line(nil), v.Lines...)
	if v.SubmittedAt != nil {
		at := *v.SubmittedAt
		c.SubmittedAt = &at
	}
	if v.DeliveredAt != nil {
		at := *v.DeliveredAt
		c.DeliveredAt = &at
	}
	return &c
}

func cloneLV(v *lvRow) *lvRow {
	c := *v
	return &c
}
