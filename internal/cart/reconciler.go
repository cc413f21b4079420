package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/shifa-clinics/booking-gateway/internal/observability/metrics"
	"github.com/shifa-clinics/booking-gateway/internal/upstream"
	"github.com/shifa-clinics/booking-gateway/pkg/logging"
)

// remoteAPI is the slice of the upstream client the reconciler consumes.
type remoteAPI interface {
	FetchCart(ctx context.Context, token string) ([]upstream.CartRow, error)
	AddCartRow(ctx context.Context, token string, row upstream.NewCartRow) error
	AddCartRows(ctx context.Context, token string, rows []upstream.NewCartRow) error
	RemoveCartRow(ctx context.Context, token string, id upstream.ID) error
}

// BatchError reports the settlement of a batch of unit add/remove requests.
// It distinguishes partial from total failure so callers never treat a partial
// batch as full success.
type BatchError struct {
	Total  int
	Failed int
	First  error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("cart: %d of %d cart requests failed: %v", e.Failed, e.Total, e.First)
}

func (e *BatchError) Unwrap() error { return e.First }

// Partial reports whether some requests of the batch did succeed.
func (e *BatchError) Partial() bool { return e.Failed < e.Total }

// SyncResult tells the caller what a login-time sync did.
type SyncResult int

const (
	SyncNothing SyncResult = iota // local cart was empty
	SyncDone                      // everything moved to the remote cart
	SyncFailed                    // batch add failed; local cart left intact
)

func (r SyncResult) String() string {
	switch r {
	case SyncNothing:
		return "nothing"
	case SyncDone:
		return "synced"
	case SyncFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// View is the coherent picture of what the visitor intends to purchase.
type View struct {
	Local  []LocalItem    `json:"local"`
	Groups []Group        `json:"groups"`
	Total  upstream.Money `json:"total"`
}

// Reconciler maintains the anonymous local cart and the authenticated remote
// cart, translating quantity edits into the unit-granularity remote API.
// After every successful mutation batch the remote cart is re-fetched in full,
// so grouped state is always re-derived from server truth.
type Reconciler struct {
	api     remoteAPI
	local   *LocalStore
	metrics *metrics.FlowMetrics
	logger  *logging.Logger
}

// NewReconciler creates a cart reconciler.
func NewReconciler(api remoteAPI, local *LocalStore, m *metrics.FlowMetrics, logger *logging.Logger) *Reconciler {
	if api == nil {
		panic("cart: remote api required")
	}
	if local == nil {
		panic("cart: local store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{api: api, local: local, metrics: m, logger: logger.Component("cart")}
}

// Local exposes the anonymous cart store.
func (r *Reconciler) Local() *LocalStore { return r.local }

// View reads the local cart and, when a session token is present, the grouped
// remote cart, and aggregates the total price.
func (r *Reconciler) View(ctx context.Context, visitorID, token string) (*View, error) {
	items, err := r.local.List(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	v := &View{Local: items}
	if token != "" {
		rows, err := r.api.FetchCart(ctx, token)
		if err != nil {
			return nil, err
		}
		v.Groups = GroupRows(rows)
	}
	for _, g := range v.Groups {
		v.Total += g.UnitPrice() * upstream.Money(g.Quantity)
	}
	for _, it := range items {
		v.Total += it.Price
	}
	return v, nil
}

// SetQuantity moves a remote group to the requested quantity by issuing one
// unit add or remove per delta. Removals always target the first delta ids of
// the group so the mapping to server rows stays deterministic. The returned
// groups are re-derived from a full re-fetch; err is non-nil when any request
// of the batch failed.
func (r *Reconciler) SetQuantity(ctx context.Context, token, groupKey string, newQty int) ([]Group, error) {
	if newQty < 1 {
		return nil, fmt.Errorf("cart: quantity must be at least 1")
	}
	groups, err := r.fetchGroups(ctx, token)
	if err != nil {
		return nil, err
	}
	g := findGroup(groups, groupKey)
	if g == nil {
		return groups, fmt.Errorf("cart: unknown cart group %q", groupKey)
	}

	var batchErr error
	switch {
	case newQty > g.Quantity:
		delta := newQty - g.Quantity
		// Added units must land in this group, so the row carries only the
		// identifier the group is keyed by. A row holding both ids is
		// service-keyed; sending its staff id would create staff rows instead.
		row := upstream.NewCartRow{ServiceID: g.ServiceID, StaffID: g.StaffID}
		if !g.ServiceID.IsZero() {
			row.StaffID = ""
		}
		batchErr = r.settle(delta, func(int) error {
			return r.api.AddCartRow(ctx, token, row)
		})
	case newQty < g.Quantity:
		delta := g.Quantity - newQty
		victims := g.CartIDs[:delta]
		batchErr = r.settle(delta, func(i int) error {
			return r.api.RemoveCartRow(ctx, token, victims[i])
		})
	default:
		return groups, nil
	}

	refreshed, fetchErr := r.fetchGroups(ctx, token)
	if fetchErr != nil {
		if batchErr != nil {
			return nil, batchErr
		}
		return nil, fetchErr
	}
	if batchErr != nil {
		r.logger.Warn("cart quantity change settled with failures", "group", groupKey, "error", batchErr)
	}
	return refreshed, batchErr
}

// RemoveGroup deletes every row of a group concurrently. The group counts as
// removed only when all requests succeed; any failure is reported and the
// refreshed groups reflect whatever the server still holds.
func (r *Reconciler) RemoveGroup(ctx context.Context, token, groupKey string) ([]Group, error) {
	groups, err := r.fetchGroups(ctx, token)
	if err != nil {
		return nil, err
	}
	g := findGroup(groups, groupKey)
	if g == nil {
		return groups, fmt.Errorf("cart: unknown cart group %q", groupKey)
	}

	ids := g.CartIDs
	batchErr := r.settle(len(ids), func(i int) error {
		return r.api.RemoveCartRow(ctx, token, ids[i])
	})

	refreshed, fetchErr := r.fetchGroups(ctx, token)
	if fetchErr != nil {
		if batchErr != nil {
			return nil, batchErr
		}
		return nil, fetchErr
	}
	return refreshed, batchErr
}

// SyncLocal moves every anonymous cart record to the remote cart in a single
// batched request. The local cart is cleared in full only on success; on
// failure it is left intact so nothing is lost.
func (r *Reconciler) SyncLocal(ctx context.Context, visitorID, token string) (SyncResult, error) {
	items, err := r.local.List(ctx, visitorID)
	if err != nil {
		return SyncFailed, err
	}
	if len(items) == 0 {
		r.metrics.ObserveCartSync(SyncNothing.String())
		return SyncNothing, nil
	}

	rows := make([]upstream.NewCartRow, 0, len(items))
	for _, it := range items {
		// Staff wins when an item somehow carries both identifiers.
		if !it.StaffID.IsZero() {
			rows = append(rows, upstream.NewCartRow{StaffID: it.StaffID})
			continue
		}
		rows = append(rows, upstream.NewCartRow{ServiceID: it.ServiceID})
	}

	if err := r.api.AddCartRows(ctx, token, rows); err != nil {
		r.metrics.ObserveCartSync(SyncFailed.String())
		r.logger.Warn("local cart sync failed", "visitor_id", visitorID, "items", len(items), "error", err)
		return SyncFailed, err
	}
	if err := r.local.Clear(ctx, visitorID); err != nil {
		return SyncFailed, err
	}
	r.metrics.ObserveCartSync(SyncDone.String())
	r.logger.Info("local cart synced", "visitor_id", visitorID, "items", len(items))
	return SyncDone, nil
}

func (r *Reconciler) fetchGroups(ctx context.Context, token string) ([]Group, error) {
	rows, err := r.api.FetchCart(ctx, token)
	if err != nil {
		return nil, err
	}
	return GroupRows(rows), nil
}

// settle runs n unit requests concurrently and waits for all of them.
func (r *Reconciler) settle(n int, call func(i int) error) error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = call(i)
		}(i)
	}
	wg.Wait()

	failed := 0
	var first error
	for _, err := range errs {
		if err != nil {
			failed++
			if first == nil {
				first = err
			}
		}
	}
	if failed == 0 {
		return nil
	}
	return &BatchError{Total: n, Failed: failed, First: first}
}

func findGroup(groups []Group, key string) *Group {
	for i := range groups {
		if groups[i].Key == key {
			return &groups[i]
		}
	}
	return nil
}
