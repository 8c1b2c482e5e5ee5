package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agatticelli/wavepick-sync/internal/skuvault"
)

var mergeTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestMerge_ReplacesItemsByKey(t *testing.T) {
	canonical := &Order{Items: []Item{
		{SKU: "A", Location: "L1", Quantity: 1},
		{SKU: "B", Location: "L2", Quantity: 2},
	}}
	incoming := &Order{Items: []Item{
		{SKU: "A", Location: "L1", Quantity: 5},
		{SKU: "A", Location: "L3", Quantity: 1},
	}}

	MergeAt(canonical, incoming, mergeTime)

	assert.Equal(t, []Item{
		{SKU: "A", Location: "L1", Quantity: 5},
		{SKU: "B", Location: "L2", Quantity: 2},
		{SKU: "A", Location: "L3", Quantity: 1},
	}, canonical.Items)
}

func TestMerge_ScalarPrecedence(t *testing.T) {
	start := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	canonical := &Order{
		OrderNumber:      "ORD-1",
		PickStart:        start,
		PickedByUserName: "Dana",
		SessionStatus:    skuvault.StateActive,
		PicklistID:       "pl-1",
		ShipmentID:       "SHIP-9",
	}
	incoming := &Order{
		OrderNumber:   "ORD-2",
		PickEnd:       start.Add(time.Hour),
		SessionStatus: skuvault.StateClosed,
		ShipmentID:    "SHIP-10",
	}

	merged := MergeAt(canonical, incoming, mergeTime)

	assert.Same(t, canonical, merged)
	assert.Equal(t, "ORD-2", canonical.OrderNumber, "present value overwrites")
	assert.Equal(t, start, canonical.PickStart, "absent value keeps existing")
	assert.Equal(t, start.Add(time.Hour), canonical.PickEnd)
	assert.Equal(t, "Dana", canonical.PickedByUserName)
	assert.Equal(t, skuvault.StateClosed, canonical.SessionStatus)
	assert.Equal(t, "pl-1", canonical.PicklistID)
	assert.Equal(t, "SHIP-9", canonical.ShipmentID, "shipment id is not merged")
	assert.Equal(t, mergeTime, canonical.UpdatedAt)
}

func TestMerge_EmptyIncomingOnlyTouchesUpdatedAt(t *testing.T) {
	canonical := &Order{OrderNumber: "ORD-1", Items: []Item{{SKU: "A"}}}
	MergeAt(canonical, &Order{}, mergeTime)
	assert.Equal(t, "ORD-1", canonical.OrderNumber)
	assert.Len(t, canonical.Items, 1)
	assert.Equal(t, mergeTime, canonical.UpdatedAt)

	MergeAt(canonical, nil, mergeTime.Add(time.Minute))
	assert.Equal(t, mergeTime.Add(time.Minute), canonical.UpdatedAt)
}

func TestMerge_NilCanonical(t *testing.T) {
	incoming := &Order{OrderNumber: "ORD-7", Items: []Item{{SKU: "A", Location: "L1", Quantity: 2}}}

	var merged *Order
	require.NotPanics(t, func() { merged = MergeAt(nil, incoming, mergeTime) })
	assert.Same(t, incoming, merged)
	assert.Equal(t, "ORD-7", merged.OrderNumber)
	assert.Equal(t, mergeTime, merged.UpdatedAt)

	assert.NotPanics(t, func() { assert.Nil(t, MergeAt(nil, nil, mergeTime)) })
	assert.Nil(t, Merge(nil, nil))
}

func TestMerge_UsesCentralTime(t *testing.T) {
	o := Merge(&Order{}, &Order{})
	assert.Equal(t, Central(), o.UpdatedAt.Location())
	assert.WithinDuration(t, time.Now(), o.UpdatedAt, time.Minute)
}

func TestCustomField2(t *testing.T) {
	assert.Equal(t, "12345  #7", (&Order{SessionID: 12345, SpotNumber: 7}).CustomField2())
	assert.Empty(t, (&Order{SessionID: 12345}).CustomField2())
	assert.Empty(t, (&Order{SpotNumber: 7}).CustomField2())
}

func TestBuild(t *testing.T) {
	sess := skuvault.Session{
		SessionID:    4512,
		PicklistID:   "pl-abc",
		Status:       skuvault.StateActive,
		CreatedDate:  "2026-03-01T14:05:00Z",
		AssignedUser: "Dana",
		UserID:       "77",
	}
	dirs := &skuvault.Directions{
		PicklistID: "pl-abc",
		Items: []skuvault.Direction{
			{SKU: "A", SKUName: "Beef", Location: "L1", Warehouse: "WH1", SpotNumber: 2, Quantity: 1, OrderNumber: "SALE-2"},
			{SKU: "B", SKUName: "Pork", Location: "L2", SpotNumber: 1, Quantity: 3, OrderNumber: "SALE-1"},
			{SKU: "B", SKUName: "Pork", Location: "L2", SpotNumber: 1, Quantity: 4, OrderNumber: "SALE-1"},
			{SKU: "C", SKUName: "Turkey", SpotNumber: 1, Quantity: 1, OrderNumber: "SALE-1"},
		},
		History: []skuvault.HistoryEvent{
			{Date: time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC), SaleID: "SALE-1"},
			{Date: time.Date(2026, 3, 1, 14, 10, 0, 0, time.UTC), SaleID: "SALE-1"},
		},
	}

	orders := Build(sess, dirs)
	require.Len(t, orders, 2)

	first := orders[0]
	assert.Equal(t, 1, first.SpotNumber)
	assert.Equal(t, "session-4512-spot-1", first.DocumentID)
	assert.Equal(t, "SALE-1", first.SaleID)
	assert.Equal(t, "SALE-1", first.OrderNumber)
	assert.Equal(t, "pl-abc", first.PicklistID)
	assert.Equal(t, int64(77), first.PickedByUserID)
	assert.Equal(t, "Dana", first.PickedByUserName)
	assert.Equal(t, skuvault.StateActive, first.SessionStatus)
	assert.Equal(t, time.Date(2026, 3, 1, 14, 5, 0, 0, time.UTC), first.CreateDate)
	assert.Equal(t, time.Date(2026, 3, 1, 14, 10, 0, 0, time.UTC), first.PickStart)
	assert.Equal(t, time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC), first.PickEnd)
	assert.Equal(t, []Item{
		{SKU: "B", Description: "Pork", Location: "L2", Quantity: 4},
		{SKU: "C", Description: "Turkey", Quantity: 1},
	}, first.Items, "duplicate (sku, location) keeps the last direction")
	assert.Equal(t, "4512  #1", first.CustomField2())

	second := orders[1]
	assert.Equal(t, 2, second.SpotNumber)
	assert.True(t, second.PickStart.IsZero(), "no history for the sale")
	assert.Equal(t, "WH1", second.Items[0].Warehouse)

	assert.Nil(t, Build(sess, nil))
}
