package cart

import (
	"github.com/shifa-clinics/booking-gateway/internal/upstream"
)

// Group is the display aggregation of remote cart rows sharing one service or
// staff identifier. Quantity always equals len(CartIDs); quantity edits add or
// remove exactly enough raw rows to keep that true.
type Group struct {
	Key       string            `json:"key"`
	ServiceID upstream.ID       `json:"service_id,omitempty"`
	StaffID   upstream.ID       `json:"staff_id,omitempty"`
	Service   *upstream.Service `json:"service,omitempty"`
	Staff     *upstream.Staff   `json:"staff,omitempty"`
	CartIDs   []upstream.ID     `json:"cart_ids"`
	Quantity  int               `json:"quantity"`
}

// UnitPrice resolves the display price of one unit: service price first, then
// the staff ghaim price, then the staff price, else zero.
func (g Group) UnitPrice() upstream.Money {
	if g.Service != nil && g.Service.Price != 0 {
		return g.Service.Price
	}
	if g.Staff != nil {
		if g.Staff.GhaimPrice != 0 {
			return g.Staff.GhaimPrice
		}
		if g.Staff.Price != 0 {
			return g.Staff.Price
		}
	}
	return 0
}

// groupKey derives the merge key: service id if present, else staff id. Rows
// lacking both are keyed by their own row id so they never merge.
func groupKey(row upstream.CartRow) string {
	switch {
	case !row.ServiceID.IsZero():
		return "service:" + row.ServiceID.String()
	case !row.StaffID.IsZero():
		return "staff:" + row.StaffID.String()
	default:
		return "row:" + row.ID.String()
	}
}

// GroupRows folds raw remote rows into display groups, preserving both group
// insertion order and row order inside each group. The first row of a group
// supplies its payload.
func GroupRows(rows []upstream.CartRow) []Group {
	order := make([]string, 0, len(rows))
	byKey := make(map[string]*Group, len(rows))
	for _, row := range rows {
		key := groupKey(row)
		g, ok := byKey[key]
		if !ok {
			g = &Group{
				Key:       key,
				ServiceID: row.ServiceID,
				StaffID:   row.StaffID,
				Service:   row.Service,
				Staff:     row.Staff,
			}
			byKey[key] = g
			order = append(order, key)
		}
		g.CartIDs = append(g.CartIDs, row.ID)
		g.Quantity = len(g.CartIDs)
	}
	groups := make([]Group, 0, len(order))
	for _, key := range order {
		groups = append(groups, *byKey[key])
	}
	return groups
}
