package skuvault

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	headerAuthorization  = "Authorization"
	headerPartition      = "Partition"
	headerTID            = "tid"
	headerIdempotencyKey = "idempotency-key"
	headerDataRead       = "dataread"
)

// baseHeaders are the browser-like headers sent with every request
func (c *Client) baseHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", c.userAgent)
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")
	h.Set("Sec-Fetch-Site", "same-site")
	if c.origin != "" {
		h.Set("Origin", c.origin)
		h.Set("Referer", c.origin+"/")
	}
	return h
}

// requestHeaders builds the headers of one attempt. tid and the
// idempotency key are fresh per attempt.
func (c *Client) requestHeaders(token string, now time.Time, hasBody bool) http.Header {
	h := c.baseHeaders()
	if hasBody {
		h.Set("Content-Type", "application/json")
	}
	h.Set(headerAuthorization, "Token "+token)
	h.Set(headerPartition, c.partition)
	h.Set(headerTID, strconv.FormatInt(now.Unix(), 10))
	h.Set(headerIdempotencyKey, uuid.NewString())
	h.Set(headerDataRead, "true")
	return h
}

// preflightHeaders are the headers of the CORS OPTIONS negotiation for a
// request carrying reqHeaders
func (c *Client) preflightHeaders(method string, reqHeaders http.Header) http.Header {
	h := c.baseHeaders()
	h.Set("Accept", "*/*")
	requested := "content-type,dataread"
	if reqHeaders.Get(headerAuthorization) != "" {
		requested = "authorization,content-type,dataread"
	}
	h.Set("Access-Control-Request-Headers", requested)
	h.Set("Access-Control-Request-Method", method)
	return h
}
