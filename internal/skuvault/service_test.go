package skuvault

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agatticelli/wavepick-sync/internal/auth"
	"github.com/agatticelli/wavepick-sync/internal/platform/cache"
)

const sessionsFixture = `{
  "lists": [
    {
      "sequenceId": 4512,
      "picklistId": "pl-abc",
      "state": "active",
      "date": "2026-03-01T14:05:00Z",
      "assigned": {"name": "Dana", "userId": 77},
      "skuCount": 3,
      "orderCount": 2,
      "totalQuantity": 9,
      "pickedQuantity": 4,
      "availableQuantity": 9,
      "totalItemsWeight": 2.5
    },
    {
      "sequenceId": 4513,
      "picklistId": "pl-def",
      "state": "archived",
      "date": "2026-03-01T15:00:00Z",
      "assigned": {"name": "Lee", "userId": "88"}
    },
    {
      "sequenceId": 4514,
      "state": "new"
    }
  ]
}`

const directionsFixture = `{
  "picklist": {
    "orders": [
      {
        "id": "SALE-1",
        "items": [
          {"sku": "JERKY-01", "description": "Beef Jerky", "quantity": 2,
           "locations": [{"name": "A-01", "warehouseCode": "WH1"}, {"name": "B-02", "warehouseCode": "WH2"}]},
          {"sku": "JERKY-02", "description": "Turkey Jerky", "quantity": 1, "locations": []}
        ]
      },
      {
        "id": "SALE-2",
        "items": [
          {"sku": "JERKY-03", "description": "Pork Jerky", "quantity": 5,
           "locations": [{"name": "C-03", "warehouseCode": "WH1"}]}
        ]
      }
    ]
  },
  "history": [
    {"date": "2026-03-01T14:10:00Z", "type": "pick", "saleId": "SALE-1", "productSku": "JERKY-01", "quantity": 2},
    {"date": "2026-03-01T14:30:00Z", "type": "pick", "saleId": "SALE-1", "productSku": "JERKY-02", "quantity": 1},
    {"date": "2026-03-01T14:20:00Z", "type": "pick", "saleId": "SALE-1", "productSku": "JERKY-01", "quantity": 0},
    {"date": "2026-03-01T14:40:00Z", "type": "pick", "saleId": "SALE-2", "productSku": "JERKY-03", "quantity": 5},
    {"type": "note", "saleId": "SALE-2"}
  ]
}`

// vendorAPI serves the sessions and directions endpoints
type vendorAPI struct {
	fakeAPI
}

func newVendorAPI() *vendorAPI {
	v := &vendorAPI{}
	v.respond = func(_ int, r *http.Request) (int, string) {
		switch {
		case r.URL.Path == sessionsPath:
			return http.StatusOK, sessionsFixture
		case strings.HasSuffix(r.URL.Path, "/directions"):
			return http.StatusOK, directionsFixture
		}
		return http.StatusNotFound, ``
	}
	return v
}

func newTestService(t *testing.T, serverURL string, tokens auth.TokenStore, mutate func(*ServiceConfig)) *Service {
	t.Helper()
	client, _ := newTestClient(t, serverURL, tokens, nil)
	cfg := ServiceConfig{
		Client: client,
		Now:    func() time.Time { return time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC) },
	}
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewService(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func authenticatedService(t *testing.T, serverURL string) *Service {
	t.Helper()
	svc := newTestService(t, serverURL, storeWithToken(t, testToken), nil)
	require.True(t, svc.UseCachedToken(context.Background()))
	return svc
}

func TestService_ListSessions(t *testing.T) {
	api := newVendorAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	svc := authenticatedService(t, server.URL)
	sessions := svc.ListSessions(context.Background(), SessionQuery{SortDescending: true, States: []string{"ACTIVE", "readyToShip"}})
	require.Len(t, sessions, 3)

	first := sessions[0]
	assert.Equal(t, int64(4512), first.SessionID)
	assert.Equal(t, "pl-abc", first.PicklistID)
	assert.Equal(t, StateActive, first.Status)
	assert.Equal(t, "Dana", first.AssignedUser)
	assert.Equal(t, "77", first.UserID, "numeric user ids become strings")
	assert.Equal(t, int64(77), first.AssignedUserID())
	assert.Equal(t, "/wave-pick/sessions/pl-abc", first.ViewURL)
	assert.Equal(t, 2.5, first.TotalWeight)
	assert.Equal(t, time.Date(2026, 3, 1, 14, 5, 0, 0, time.UTC), first.CreatedAt())

	assert.Equal(t, StateUnknown, sessions[1].Status, "unknown wire states are kept as unknown")
	assert.Equal(t, "88", sessions[1].UserID)
	assert.Empty(t, sessions[2].ViewURL)
	assert.Empty(t, sessions[2].AssignedUser)

	var payload map[string]any
	api.mu.Lock()
	body := api.bodies[len(api.bodies)-1]
	api.mu.Unlock()
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Equal(t, float64(100), payload["limit"])
	assert.Equal(t, "-2", payload["userId"])
	assert.Equal(t, []any{"active", "readyToShip"}, payload["states"])
	assert.Equal(t, []any{map[string]any{"descending": true, "field": "createdDate"}}, payload["sort"])
	assert.NotContains(t, payload, "saleId")
}

func TestService_ListSessions_InvalidStates(t *testing.T) {
	api := newVendorAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	svc := authenticatedService(t, server.URL)
	assert.Empty(t, svc.ListSessions(context.Background(), SessionQuery{States: []string{"paused"}}))
	_, posts := api.counts()
	assert.Zero(t, posts)
}

func TestService_SessionsBySaleID(t *testing.T) {
	api := newVendorAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	svc := authenticatedService(t, server.URL)
	sessions := svc.SessionsBySaleID(context.Background(), "SALE-1")
	require.NotEmpty(t, sessions)

	var payload struct {
		States []string `json:"states"`
		Sort   []struct {
			Descending bool `json:"descending"`
		} `json:"sort"`
		SaleID struct {
			Match string `json:"match"`
			Value string `json:"value"`
		} `json:"saleId"`
	}
	api.mu.Lock()
	body := api.bodies[len(api.bodies)-1]
	api.mu.Unlock()
	require.NoError(t, json.Unmarshal([]byte(body), &payload))
	assert.Equal(t, AllStates(), payload.States)
	assert.False(t, payload.Sort[0].Descending)
	assert.Equal(t, "contains", payload.SaleID.Match)
	assert.Equal(t, "SALE-1", payload.SaleID.Value)
}

func TestService_FetchDirections(t *testing.T) {
	api := newVendorAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	svc := authenticatedService(t, server.URL)
	d, err := svc.FetchDirections(context.Background(), "pl-abc")
	require.NoError(t, err)

	require.Len(t, d.Items, 4)
	assert.Equal(t, Direction{
		PicklistID:  "pl-abc",
		SKU:         "JERKY-01",
		SKUName:     "Beef Jerky",
		Location:    "A-01",
		Warehouse:   "WH1",
		BinInfo:     "WH1",
		SpotNumber:  1,
		Quantity:    2,
		OrderNumber: "SALE-1",
		ExtractedAt: time.Date(2026, 3, 1, 16, 0, 0, 0, time.UTC),
	}, d.Items[0])
	assert.Equal(t, "B-02", d.Items[1].Location)
	assert.Equal(t, "JERKY-02", d.Items[2].SKU)
	assert.Empty(t, d.Items[2].Location, "item without locations still yields a direction")
	assert.Equal(t, 2, d.Items[3].SpotNumber)

	spots := d.Spots()
	assert.Len(t, spots[1], 3)
	assert.Len(t, spots[2], 1)

	start, end, ok := PickTimes(d.History, "SALE-1")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 1, 14, 10, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC), end)

	_, _, ok = PickTimes(d.History, "SALE-404")
	assert.False(t, ok)

	api.mu.Lock()
	body := api.bodies[len(api.bodies)-1]
	path := api.requests[len(api.requests)-1].URL.Path
	api.mu.Unlock()
	assert.JSONEq(t, `{"includeBinsInfo":true}`, body)
	assert.Equal(t, "/wavepicking/get/pl-abc/directions", path)
}

func TestService_DirectionsCacheHitSkipsNetwork(t *testing.T) {
	api := newVendorAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	svc := authenticatedService(t, server.URL)
	ctx := context.Background()

	first, err := svc.FetchDirections(ctx, "pl-abc")
	require.NoError(t, err)
	second, err := svc.FetchDirections(ctx, "pl-abc")
	require.NoError(t, err)

	assert.Equal(t, first.Items, second.Items)
	_, posts := api.counts()
	assert.Equal(t, 1, posts)
	assert.Equal(t, 1, svc.DirectionsCacheStats().Count)

	require.NoError(t, svc.InvalidateDirections(ctx, "pl-abc"))
	_, err = svc.FetchDirections(ctx, "pl-abc")
	require.NoError(t, err)
	_, posts = api.counts()
	assert.Equal(t, 2, posts)

	require.NoError(t, svc.InvalidateDirections(ctx, ""))
	assert.Zero(t, svc.DirectionsCacheStats().Count)
}

func TestService_ConcurrentMissesShareOneFetch(t *testing.T) {
	release := make(chan struct{})
	api := newVendorAPI()
	inner := api.respond
	api.respond = func(n int, r *http.Request) (int, string) {
		<-release
		return inner(n, r)
	}
	server := httptest.NewServer(api)
	defer server.Close()

	svc := authenticatedService(t, server.URL)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.FetchDirections(context.Background(), "pl-abc")
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	_, posts := api.counts()
	assert.Equal(t, 1, posts)
}

func TestService_MalformedPayloadIsNotCached(t *testing.T) {
	api := &fakeAPI{respond: func(int, *http.Request) (int, string) {
		return http.StatusOK, `<html>login</html>`
	}}
	server := httptest.NewServer(api)
	defer server.Close()

	svc := authenticatedService(t, server.URL)

	_, err := svc.FetchDirections(context.Background(), "pl-abc")
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Nil(t, svc.SessionDirections(context.Background(), "pl-abc"))
	assert.Zero(t, svc.DirectionsCacheStats().Count)
}

func TestService_ResetDirectionsCache(t *testing.T) {
	api := newVendorAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	svc := authenticatedService(t, server.URL)
	_, err := svc.FetchDirections(context.Background(), "pl-abc")
	require.NoError(t, err)

	svc.ResetDirectionsCache(5, time.Minute)
	stats := svc.DirectionsCacheStats()
	assert.Zero(t, stats.Count)
	assert.Equal(t, 5, stats.Capacity)
}

func TestService_SharedL2(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	api := newVendorAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	withL2 := func(c *ServiceConfig) {
		c.DirectionsL2 = cache.NewRedisCache(rdb, "test:directions:", time.Hour)
	}
	tokens := storeWithToken(t, testToken)
	a := newTestService(t, server.URL, tokens, withL2)
	b := newTestService(t, server.URL, tokens, withL2)
	require.True(t, a.UseCachedToken(context.Background()))
	require.True(t, b.UseCachedToken(context.Background()))

	_, err := a.FetchDirections(context.Background(), "pl-abc")
	require.NoError(t, err)
	_, err = b.FetchDirections(context.Background(), "pl-abc")
	require.NoError(t, err)

	_, posts := api.counts()
	assert.Equal(t, 1, posts, "second instance is served from redis")
	assert.Equal(t, 1, b.DirectionsCacheStats().Count, "redis hit is copied into memory")
}

func TestService_RequiresAuthentication(t *testing.T) {
	api := newVendorAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	svc := newTestService(t, server.URL, auth.NewMemoryTokenStore(), nil)
	assert.False(t, svc.UseCachedToken(context.Background()))

	_, err := svc.FetchSessions(context.Background(), SessionQuery{})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Nil(t, svc.ListSessions(context.Background(), SessionQuery{}))
}

func TestService_AuthenticateAndLogout(t *testing.T) {
	api := newVendorAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	tokens := auth.NewMemoryTokenStore()
	svc := newTestService(t, server.URL, tokens, nil)
	ctx := context.Background()

	require.NoError(t, svc.Authenticate(ctx, "fresh-token", "picker@example.com", "https://app.skuvault.com/account/login"))
	assert.True(t, svc.Authenticated())

	cred, err := tokens.Get(ctx, auth.DefaultSource)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", cred.Token)
	assert.Equal(t, "picker@example.com", cred.Metadata["username"])
	assert.Equal(t, "1772380800", cred.Metadata["extracted_at"])

	_, err = svc.FetchDirections(ctx, "pl-abc")
	require.NoError(t, err)
	assert.Equal(t, 1, svc.client.PreflightStats().Count)

	svc.Logout(ctx)
	assert.False(t, svc.Authenticated())
	assert.Zero(t, svc.DirectionsCacheStats().Count)
	assert.Zero(t, svc.client.PreflightStats().Count)
	require.NoError(t, svc.Close())

	_, err = tokens.Get(ctx, auth.DefaultSource)
	assert.ErrorIs(t, err, auth.ErrNotFound)
}

type failingInvalidate struct {
	auth.TokenStore
}

func (failingInvalidate) Invalidate(context.Context, string) error {
	return errors.New("store offline")
}

func TestService_CloseReportsBackgroundFailure(t *testing.T) {
	api := newVendorAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	svc := newTestService(t, server.URL, failingInvalidate{storeWithToken(t, testToken)}, nil)
	svc.Logout(context.Background())
	assert.EqualError(t, svc.Close(), "store offline")
}

// slowInvalidate delays Invalidate so it is still queued when the next
// login arrives
type slowInvalidate struct {
	auth.TokenStore
	delay time.Duration
}

func (s slowInvalidate) Invalidate(ctx context.Context, source string) error {
	time.Sleep(s.delay)
	return s.TokenStore.Invalidate(ctx, source)
}

func TestService_LoginAfterLogoutKeepsNewToken(t *testing.T) {
	api := newVendorAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	tokens := slowInvalidate{TokenStore: storeWithToken(t, testToken), delay: 50 * time.Millisecond}
	svc := newTestService(t, server.URL, tokens, nil)
	ctx := context.Background()
	require.True(t, svc.UseCachedToken(ctx))

	svc.Logout(ctx)
	require.NoError(t, svc.Authenticate(ctx, "second-login-token", "dana", ""))

	// the earlier invalidation must not land after the new Put
	time.Sleep(100 * time.Millisecond)
	cred, err := tokens.Get(ctx, auth.DefaultSource)
	require.NoError(t, err)
	assert.Equal(t, "second-login-token", cred.Token)

	assert.True(t, svc.Authenticated())
	_, err = svc.FetchDirections(ctx, "pl-abc")
	require.NoError(t, err)
	assert.NoError(t, svc.Close())
}

func TestService_UseCachedTokenAfterLogout(t *testing.T) {
	api := newVendorAPI()
	server := httptest.NewServer(api)
	defer server.Close()

	tokens := slowInvalidate{TokenStore: storeWithToken(t, testToken), delay: 50 * time.Millisecond}
	svc := newTestService(t, server.URL, tokens, nil)
	ctx := context.Background()
	require.True(t, svc.UseCachedToken(ctx))

	svc.Logout(ctx)
	assert.False(t, svc.UseCachedToken(ctx), "logged-out token is not adopted again")
	assert.False(t, svc.Authenticated())
}

func TestService_CancelledCallerDoesNotFailCoalescedWaiters(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	api := newVendorAPI()
	inner := api.respond
	api.respond = func(n int, r *http.Request) (int, string) {
		once.Do(func() { close(started) })
		<-release
		return inner(n, r)
	}
	server := httptest.NewServer(api)
	defer server.Close()

	svc := authenticatedService(t, server.URL)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := svc.FetchDirections(leaderCtx, "pl-abc")
		leaderErr <- err
	}()
	<-started

	type result struct {
		dirs *Directions
		err  error
	}
	waiter := make(chan result, 1)
	go func() {
		dirs, err := svc.FetchDirections(context.Background(), "pl-abc")
		waiter <- result{dirs, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-leaderErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared fetch")
	}

	close(release)
	select {
	case r := <-waiter:
		require.NoError(t, r.err)
		require.NotNil(t, r.dirs)
		assert.NotEmpty(t, r.dirs.Items)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never received the shared result")
	}

	_, posts := api.counts()
	assert.Equal(t, 1, posts)
	assert.Equal(t, 1, svc.DirectionsCacheStats().Count, "shared result is cached despite the cancelled caller")
}

func TestTokenFromCookies(t *testing.T) {
	long := strings.Repeat("x", 101)
	assert.Equal(t, long, TokenFromCookies([]*http.Cookie{
		{Name: "session", Value: long},
		{Name: TokenCookie, Value: long},
	}))
	assert.Empty(t, TokenFromCookies([]*http.Cookie{{Name: TokenCookie, Value: strings.Repeat("x", 100)}}))
	assert.Empty(t, TokenFromCookies(nil))
}

func TestStatesByNames(t *testing.T) {
	states, err := StatesByNames([]string{"READY_TO_SHIP", "active", "Closed", "readytoship"})
	require.NoError(t, err)
	assert.Equal(t, []string{"readyToShip", "active", "closed", "readyToShip"}, states)

	_, err = StatesByNames([]string{"active", "bogus"})
	assert.Error(t, err)

	assert.Equal(t, StateUnknown, ParseState("bogus"))
	assert.Equal(t, StateNew, ParseState("new"))
	assert.True(t, StateClosed.Known())
	assert.False(t, StateUnknown.Known())
	assert.Equal(t, "unknown", StateUnknown.String())
	assert.Len(t, AllStates(), 5)
}
