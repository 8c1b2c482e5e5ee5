// Package session holds the canonical record of one order picked in a
// wave-picking session and the rules for folding new snapshots into it.
package session

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/agatticelli/wavepick-sync/internal/skuvault"
)

// Item is one line of an order, unique inside the order by (SKU, Location)
type Item struct {
	SKU         string  `json:"sku" dynamodbav:"sku"`
	Description string  `json:"description,omitempty" dynamodbav:"description,omitempty"`
	Location    string  `json:"location,omitempty" dynamodbav:"location,omitempty"`
	Warehouse   string  `json:"warehouse,omitempty" dynamodbav:"warehouse,omitempty"`
	Quantity    float64 `json:"quantity" dynamodbav:"quantity"`
}

func (i Item) key() itemKey {
	return itemKey{sku: i.SKU, location: i.Location}
}

type itemKey struct {
	sku      string
	location string
}

// Order is the canonical record of the order in one spot of a session.
// Zero values mean "not observed".
type Order struct {
	DocumentID        string                `json:"document_id" dynamodbav:"document_id"`
	SaleID            string                `json:"sale_id,omitempty" dynamodbav:"sale_id,omitempty"`
	OrderNumber       string                `json:"order_number,omitempty" dynamodbav:"order_number,omitempty"`
	ShipmentID        string                `json:"shipment_id,omitempty" dynamodbav:"shipment_id,omitempty"`
	SpotNumber        int                   `json:"spot_number,omitempty" dynamodbav:"spot_number,omitempty"`
	PicklistID        string                `json:"session_picklist_id,omitempty" dynamodbav:"session_picklist_id,omitempty"`
	SessionID         int64                 `json:"session_id,omitempty" dynamodbav:"session_id,omitempty"`
	CreateDate        time.Time             `json:"create_date,omitzero" dynamodbav:"create_date,omitempty"`
	PickStart         time.Time             `json:"pick_start_datetime,omitzero" dynamodbav:"pick_start_datetime,omitempty"`
	PickEnd           time.Time             `json:"pick_end_datetime,omitzero" dynamodbav:"pick_end_datetime,omitempty"`
	Items             []Item                `json:"order_items" dynamodbav:"order_items"`
	PickedByUserID    int64                 `json:"picked_by_user_id,omitempty" dynamodbav:"picked_by_user_id,omitempty"`
	PickedByUserName  string                `json:"picked_by_user_name,omitempty" dynamodbav:"picked_by_user_name,omitempty"`
	SessionStatus     skuvault.SessionState `json:"session_status,omitempty" dynamodbav:"session_status,omitempty"`
	SavedCustomField2 bool                  `json:"saved_custom_field_2" dynamodbav:"saved_custom_field_2"`
	UpdatedAt         time.Time             `json:"updated_date,omitzero" dynamodbav:"updated_date,omitempty"`
}

// CustomField2 is the "<session>  #<spot>" label written back to the
// order, or "" until both parts are known
func (o *Order) CustomField2() string {
	if o.SessionID == 0 || o.SpotNumber == 0 {
		return ""
	}
	return fmt.Sprintf("%d  #%d", o.SessionID, o.SpotNumber)
}

// DocumentID is the stable store key of the order in a session spot
func DocumentID(sessionID int64, spot int) string {
	return fmt.Sprintf("session-%d-spot-%d", sessionID, spot)
}

var (
	centralOnce sync.Once
	central     *time.Location
)

// Central returns the US/Central zone the warehouse reports in, or UTC
// when the zone database is unavailable
func Central() *time.Location {
	centralOnce.Do(func() {
		loc, err := time.LoadLocation("America/Chicago")
		if err != nil {
			loc = time.UTC
		}
		central = loc
	})
	return central
}

// Now is the merge clock
func Now() time.Time {
	return time.Now().In(Central())
}
