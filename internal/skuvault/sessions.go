package skuvault

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	sessionsPath = "/wavepicking/get/sessions"

	// allUsers is the vendor's user filter meaning every picker
	allUsers = "-2"

	DefaultSessionLimit = 100
)

// SessionQuery filters the session listing. States holds wire values; an
// empty list means every state.
type SessionQuery struct {
	Limit          int
	Skip           int
	SortDescending bool
	States         []string
	SaleID         string
}

type sessionSort struct {
	Descending bool   `json:"descending"`
	Field      string `json:"field"`
}

type saleIDFilter struct {
	Match string `json:"match"`
	Value string `json:"value"`
}

type sessionsRequest struct {
	Limit  int           `json:"limit"`
	Skip   int           `json:"skip"`
	UserID string        `json:"userId"`
	Sort   []sessionSort `json:"sort"`
	States []string      `json:"states"`
	SaleID *saleIDFilter `json:"saleId,omitempty"`
}

func (q SessionQuery) payload() sessionsRequest {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultSessionLimit
	}
	states := q.States
	if len(states) == 0 {
		states = AllStates()
	}
	req := sessionsRequest{
		Limit:  limit,
		Skip:   max(q.Skip, 0),
		UserID: allUsers,
		Sort:   []sessionSort{{Descending: q.SortDescending, Field: "createdDate"}},
		States: states,
	}
	if q.SaleID != "" {
		req.SaleID = &saleIDFilter{Match: "contains", Value: q.SaleID}
	}
	return req
}

// cacheKey identifies the listing a query produces
func (q SessionQuery) cacheKey() string {
	b, _ := json.Marshal(q.payload())
	return "sessions:" + string(b)
}

// Session is one wave-picking session from the listing
type Session struct {
	SessionID         int64        `json:"session_id"`
	PicklistID        string       `json:"picklist_id"`
	Status            SessionState `json:"status"`
	CreatedDate       string       `json:"created_date"`
	AssignedUser      string       `json:"assigned_user"`
	UserID            string       `json:"user_id"`
	SKUCount          int          `json:"sku_count"`
	OrderCount        int          `json:"order_count"`
	TotalQuantity     float64      `json:"total_quantity"`
	PickedQuantity    float64      `json:"picked_quantity"`
	AvailableQuantity float64      `json:"available_quantity"`
	TotalWeight       float64      `json:"total_weight"`
	ViewURL           string       `json:"view_url"`
	ExtractedAt       time.Time    `json:"extracted_at"`
}

// CreatedAt parses CreatedDate. The zero time is returned when it is
// missing or unparseable.
func (s Session) CreatedAt() time.Time {
	return parseVendorTime(s.CreatedDate)
}

// flexString accepts a JSON string or number
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("userId: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

type wireAssigned struct {
	Name   string     `json:"name"`
	UserID flexString `json:"userId"`
}

type wireSession struct {
	SequenceID        int64         `json:"sequenceId"`
	PicklistID        string        `json:"picklistId"`
	State             string        `json:"state"`
	Date              string        `json:"date"`
	Assigned          *wireAssigned `json:"assigned"`
	SKUCount          int           `json:"skuCount"`
	OrderCount        int           `json:"orderCount"`
	TotalQuantity     float64       `json:"totalQuantity"`
	PickedQuantity    float64       `json:"pickedQuantity"`
	AvailableQuantity float64       `json:"availableQuantity"`
	TotalItemsWeight  float64       `json:"totalItemsWeight"`
}

type sessionsResponse struct {
	Lists []wireSession `json:"lists"`
}

// parseSessions decodes a listing payload
func parseSessions(data []byte, now time.Time) ([]Session, error) {
	var resp sessionsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: sessions: %v", ErrMalformedResponse, err)
	}

	sessions := make([]Session, 0, len(resp.Lists))
	for _, w := range resp.Lists {
		s := Session{
			SessionID:         w.SequenceID,
			PicklistID:        w.PicklistID,
			Status:            ParseState(w.State),
			CreatedDate:       w.Date,
			SKUCount:          w.SKUCount,
			OrderCount:        w.OrderCount,
			TotalQuantity:     w.TotalQuantity,
			PickedQuantity:    w.PickedQuantity,
			AvailableQuantity: w.AvailableQuantity,
			TotalWeight:       w.TotalItemsWeight,
			ExtractedAt:       now,
		}
		if w.Assigned != nil {
			s.AssignedUser = w.Assigned.Name
			s.UserID = string(w.Assigned.UserID)
		}
		if w.PicklistID != "" {
			s.ViewURL = "/wave-pick/sessions/" + w.PicklistID
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// AssignedUserID returns the numeric picker id, or 0 when absent
func (s Session) AssignedUserID() int64 {
	id, err := strconv.ParseInt(s.UserID, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

var vendorTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func parseVendorTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range vendorTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
