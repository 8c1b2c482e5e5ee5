package session

import "time"

// Merge folds incoming into canonical and returns canonical. See MergeAt.
func Merge(canonical, incoming *Order) *Order {
	return MergeAt(canonical, incoming, Now())
}

// MergeAt folds incoming into canonical in place:
//
//   - items replace the canonical item with the same (SKU, Location),
//     otherwise they are appended
//   - scalars are overwritten only when incoming carries a value
//   - UpdatedAt is set to now
//
// Identity fields are not compared; callers pair records by DocumentID.
// A nil canonical adopts incoming as the record; both nil yields nil.
func MergeAt(canonical, incoming *Order, now time.Time) *Order {
	if canonical == nil {
		if incoming != nil {
			incoming.UpdatedAt = now
		}
		return incoming
	}
	if incoming != nil {
		mergeItems(canonical, incoming.Items)

		setString(&canonical.OrderNumber, incoming.OrderNumber)
		setTime(&canonical.PickStart, incoming.PickStart)
		setTime(&canonical.PickEnd, incoming.PickEnd)
		if incoming.PickedByUserID != 0 {
			canonical.PickedByUserID = incoming.PickedByUserID
		}
		setString(&canonical.PickedByUserName, incoming.PickedByUserName)
		if incoming.SessionStatus != "" {
			canonical.SessionStatus = incoming.SessionStatus
		}
		setTime(&canonical.CreateDate, incoming.CreateDate)
		setString(&canonical.PicklistID, incoming.PicklistID)
	}
	canonical.UpdatedAt = now
	return canonical
}

func mergeItems(canonical *Order, incoming []Item) {
	index := make(map[itemKey]int, len(canonical.Items))
	for i, item := range canonical.Items {
		index[item.key()] = i
	}
	for _, item := range incoming {
		if i, ok := index[item.key()]; ok {
			canonical.Items[i] = item
			continue
		}
		index[item.key()] = len(canonical.Items)
		canonical.Items = append(canonical.Items, item)
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setTime(dst *time.Time, v time.Time) {
	if !v.IsZero() {
		*dst = v
	}
}
