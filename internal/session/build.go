package session

import (
	"sort"

	"github.com/agatticelli/wavepick-sync/internal/skuvault"
)

// Build derives one order per spot of a session from its directions. Pick
// times come from the history events of each order's sale.
func Build(s skuvault.Session, d *skuvault.Directions) []*Order {
	if d == nil {
		return nil
	}

	spots := d.Spots()
	numbers := make([]int, 0, len(spots))
	for n := range spots {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	orders := make([]*Order, 0, len(numbers))
	for _, spot := range numbers {
		directions := spots[spot]
		saleID := directions[0].OrderNumber

		o := &Order{
			DocumentID:       DocumentID(s.SessionID, spot),
			SaleID:           saleID,
			OrderNumber:      saleID,
			SpotNumber:       spot,
			PicklistID:       s.PicklistID,
			SessionID:        s.SessionID,
			CreateDate:       s.CreatedAt(),
			PickedByUserID:   s.AssignedUserID(),
			PickedByUserName: s.AssignedUser,
			SessionStatus:    s.Status,
		}
		if start, end, ok := skuvault.PickTimes(d.History, saleID); ok {
			o.PickStart = start
			o.PickEnd = end
		}

		seen := make(map[itemKey]int, len(directions))
		for _, dir := range directions {
			item := Item{
				SKU:         dir.SKU,
				Description: dir.SKUName,
				Location:    dir.Location,
				Warehouse:   dir.Warehouse,
				Quantity:    dir.Quantity,
			}
			if i, ok := seen[item.key()]; ok {
				o.Items[i] = item
				continue
			}
			seen[item.key()] = len(o.Items)
			o.Items = append(o.Items, item)
		}
		orders = append(orders, o)
	}
	return orders
}
