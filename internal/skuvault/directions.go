package skuvault

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

func directionsPath(picklistID string) string {
	return "/wavepicking/get/" + url.PathEscape(picklistID) + "/directions"
}

type directionsRequest struct {
	IncludeBinsInfo bool `json:"includeBinsInfo"`
}

// Direction is one pick instruction: a SKU at a location for the order in
// a given spot of the cart. SpotNumber is the 1-based position of the
// order in the picklist.
type Direction struct {
	PicklistID  string    `json:"picklist_id"`
	SKU         string    `json:"sku"`
	SKUName     string    `json:"sku_name"`
	Location    string    `json:"location"`
	Warehouse   string    `json:"warehouse"`
	BinInfo     string    `json:"bin_info"`
	SpotNumber  int       `json:"spot_number"`
	Quantity    float64   `json:"quantity"`
	OrderNumber string    `json:"order_number"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// HistoryEvent is one entry of a picklist's activity history
type HistoryEvent struct {
	Date         time.Time `json:"date"`
	Type         string    `json:"type"`
	SaleID       string    `json:"sale_id"`
	ProductSKU   string    `json:"product_sku"`
	LocationCode string    `json:"location_code"`
	Quantity     float64   `json:"quantity"`
}

// Directions is the parsed directions payload of one picklist
type Directions struct {
	PicklistID string
	Items      []Direction
	History    []HistoryEvent
}

type wireLocation struct {
	Name          string `json:"name"`
	WarehouseCode string `json:"warehouseCode"`
}

type wireItem struct {
	SKU         string         `json:"sku"`
	Description string         `json:"description"`
	Quantity    float64        `json:"quantity"`
	Location    string         `json:"location"`
	Locations   []wireLocation `json:"locations"`
}

type wireOrder struct {
	ID    string     `json:"id"`
	Items []wireItem `json:"items"`
}

type wireHistory struct {
	Date         string  `json:"date"`
	Type         string  `json:"type"`
	Quantity     float64 `json:"quantity"`
	ProductSKU   string  `json:"productSku"`
	LocationCode string  `json:"locationCode"`
	SaleID       string  `json:"saleId"`
}

type directionsResponse struct {
	Picklist *struct {
		Orders []wireOrder `json:"orders"`
	} `json:"picklist"`
	History []wireHistory `json:"history"`
}

// parseDirections flattens picklist orders into directions. An item with
// several locations yields one direction per location; an item with none
// still yields one direction without a location.
func parseDirections(data []byte, picklistID string, now time.Time) (*Directions, error) {
	var resp directionsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: directions: %v", ErrMalformedResponse, err)
	}

	out := &Directions{PicklistID: picklistID}
	if resp.Picklist != nil {
		for i, order := range resp.Picklist.Orders {
			spot := i + 1
			for _, item := range order.Items {
				base := Direction{
					PicklistID:  picklistID,
					SKU:         item.SKU,
					SKUName:     item.Description,
					SpotNumber:  spot,
					Quantity:    item.Quantity,
					OrderNumber: order.ID,
					ExtractedAt: now,
				}
				if len(item.Locations) == 0 {
					out.Items = append(out.Items, base)
					continue
				}
				for _, loc := range item.Locations {
					d := base
					d.Location = loc.Name
					d.Warehouse = loc.WarehouseCode
					d.BinInfo = loc.WarehouseCode
					out.Items = append(out.Items, d)
				}
			}
		}
	}

	out.History = make([]HistoryEvent, 0, len(resp.History))
	for _, h := range resp.History {
		out.History = append(out.History, HistoryEvent{
			Date:         parseVendorTime(h.Date),
			Type:         h.Type,
			SaleID:       h.SaleID,
			ProductSKU:   h.ProductSKU,
			LocationCode: h.LocationCode,
			Quantity:     h.Quantity,
		})
	}
	return out, nil
}

// PickTimes returns the earliest and latest history date recorded for
// saleID. ok is false when no dated event matches.
func PickTimes(history []HistoryEvent, saleID string) (start, end time.Time, ok bool) {
	for _, h := range history {
		if h.SaleID != saleID || h.Date.IsZero() {
			continue
		}
		if !ok || h.Date.Before(start) {
			start = h.Date
		}
		if !ok || h.Date.After(end) {
			end = h.Date
		}
		ok = true
	}
	return start, end, ok
}

// Spots groups directions by spot number, preserving order within a spot
func (d *Directions) Spots() map[int][]Direction {
	spots := make(map[int][]Direction)
	for _, dir := range d.Items {
		spots[dir.SpotNumber] = append(spots[dir.SpotNumber], dir)
	}
	return spots
}
