package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/blackmichael/volume/internal/config"
	"github.com/blackmichael/volume/internal/domain"
	"github.com/blackmichael/volume/internal/events"
	"github.com/blackmichael/volume/internal/memory"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGateway struct {
	mu           sync.Mutex
	items        map[domain.ContentType][]domain.ContentItem
	offline      bool
	pagesOffline bool
}

func (g *stubGateway) err() error {
	if g.offline {
		return &domain.NetworkTransportError{Op: "stub", Err: errors.New("offline")}
	}
	return nil
}

func (g *stubGateway) FetchPublications(context.Context) ([]domain.Publication, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return []domain.Publication{{Slug: "daily", Name: "Daily", Shoutouts: 10}, {Slug: "review", Name: "Review"}}, g.err()
}

func (g *stubGateway) FetchOrganizations(context.Context) ([]domain.Organization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return []domain.Organization{{Slug: "club"}}, g.err()
}

func (g *stubGateway) FetchPage(_ context.Context, t domain.ContentType, f domain.Filter, p domain.Page) ([]domain.ContentItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.err(); err != nil {
		return nil, err
	}
	if g.pagesOffline {
		return nil, &domain.NetworkTransportError{Op: "stub", Err: errors.New("pages offline")}
	}
	var out []domain.ContentItem
	for _, item := range g.items[t] {
		if slices.Contains(f.Slugs, item.OwnerSlug()) {
			out = append(out, item)
		}
	}
	if p.Offset >= len(out) {
		return nil, nil
	}
	return out[p.Offset:min(p.Offset+p.Limit, len(out))], nil
}

func (g *stubGateway) FetchByID(_ context.Context, t domain.ContentType, ids []string) ([]domain.ContentItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.err(); err != nil {
		return nil, err
	}
	var out []domain.ContentItem
	for _, item := range g.items[t] {
		if slices.Contains(ids, item.ContentID()) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (g *stubGateway) Mutate(context.Context, domain.Mutation) (domain.Ack, error) {
	return domain.Ack{}, nil
}

func (g *stubGateway) FetchWeeklyDebrief(context.Context, string) (*domain.WeeklyDebrief, error) {
	return nil, nil
}

func (g *stubGateway) setOffline(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.offline = v
}

func (g *stubGateway) setPagesOffline(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pagesOffline = v
}

// failingCounterStore rejects writes of the shout-out counters.
type failingCounterStore struct {
	domain.KeyValueStore
}

func (s *failingCounterStore) Set(ctx context.Context, key string, value []byte) error {
	if strings.Contains(key, "Shoutouts") {
		return errors.New("disk full")
	}
	return s.KeyValueStore.Set(ctx, key, value)
}

type testBridge struct {
	url     string
	gateway *stubGateway
	session *domain.Session
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()
	return newTestBridgeWithStore(t, memory.New())
}

func newTestBridgeWithStore(t *testing.T, store domain.KeyValueStore) *testBridge {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gw := &stubGateway{items: map[domain.ContentType][]domain.ContentItem{
		domain.ContentArticle: {
			&domain.Article{ID: "a1", Title: "One", PublicationSlug: "daily", Shoutouts: 3},
			&domain.Article{ID: "a2", Title: "Two", PublicationSlug: "daily"},
			&domain.Article{ID: "a3", Title: "Three", PublicationSlug: "review"},
		},
		domain.ContentFlyer: {
			&domain.Flyer{ID: "f1", Title: "Show", OrganizationSlug: "club", Clicks: 7},
		},
	}}

	prefs := domain.NewPreferences(store)
	require.NoError(t, prefs.AddFollowedSlug(ctx, domain.FollowPublication, "daily"))
	session, err := domain.NewSession(ctx, domain.SessionConfig{}, gw, prefs, logger)
	require.NoError(t, err)

	var aggs []*domain.Aggregator
	for _, ct := range []domain.ContentType{domain.ContentArticle, domain.ContentFlyer} {
		agg, err := domain.NewAggregator(domain.AggregatorConfig{ContentType: ct, PageSize: 1, FollowedCap: 20}, gw, prefs, logger)
		require.NoError(t, err)
		t.Cleanup(agg.Close)
		aggs = append(aggs, agg)
	}

	cfg := config.Default()
	srv := httptest.NewServer(NewServer(cfg, session, aggs, logger).Handler())
	t.Cleanup(srv.Close)

	return &testBridge{url: srv.URL, gateway: gw, session: session}
}

func (b *testBridge) do(t *testing.T, method, path string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, b.url+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	b := newTestBridge(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, b.do(t, http.MethodGet, "/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestFeedPagination(t *testing.T) {
	b := newTestBridge(t)

	var feed feedView
	require.Equal(t, http.StatusOK, b.do(t, http.MethodGet, "/feeds/article/followed", &feed))
	assert.Equal(t, "populated", feed.State)
	assert.True(t, feed.HasMore)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, "a1", feed.Items[0].ID)
	assert.Equal(t, 3, feed.Items[0].Count)
	assert.True(t, feed.Items[0].OwnerFollowed)
	assert.True(t, feed.Items[0].CanShoutout)

	require.Equal(t, http.StatusOK, b.do(t, http.MethodPost, "/feeds/article/followed/next", &feed))
	require.Len(t, feed.Items, 2)
	assert.Equal(t, "a2", feed.Items[1].ID)

	var unfollowed feedView
	require.Equal(t, http.StatusOK, b.do(t, http.MethodGet, "/feeds/article/unfollowed", &unfollowed))
	require.Len(t, unfollowed.Items, 1)
	assert.Equal(t, "a3", unfollowed.Items[0].ID)
	assert.False(t, unfollowed.Items[0].OwnerFollowed)
}

func TestFeedBadRequests(t *testing.T) {
	b := newTestBridge(t)

	var body map[string]string
	assert.Equal(t, http.StatusBadRequest, b.do(t, http.MethodGet, "/feeds/podcast/followed", &body))
	assert.Equal(t, "InvalidRequest", body["error"])
	assert.Equal(t, http.StatusBadRequest, b.do(t, http.MethodGet, "/feeds/article/everything", nil))
	assert.Equal(t, http.StatusNotFound, b.do(t, http.MethodGet, "/feeds/magazine/followed", nil))
}

func TestFeedNoConnection(t *testing.T) {
	b := newTestBridge(t)
	b.gateway.setOffline(true)

	var body map[string]string
	assert.Equal(t, http.StatusServiceUnavailable, b.do(t, http.MethodGet, "/feeds/article/followed", &body))
	assert.Equal(t, "NoConnection", body["error"])

	b.gateway.setOffline(false)
	var feed feedView
	require.Equal(t, http.StatusOK, b.do(t, http.MethodGet, "/feeds/article/followed", &feed))
	assert.Len(t, feed.Items, 1)

	// A failed next page keeps what is already loaded.
	b.gateway.setOffline(true)
	assert.Equal(t, http.StatusServiceUnavailable, b.do(t, http.MethodPost, "/feeds/article/followed/next", nil))
	b.gateway.setOffline(false)
	require.Equal(t, http.StatusOK, b.do(t, http.MethodGet, "/feeds/article/followed", &feed))
	assert.Len(t, feed.Items, 1)
}

func TestFeedFirstPageFailureStaysUnavailable(t *testing.T) {
	b := newTestBridge(t)
	b.gateway.setPagesOffline(true)

	var body map[string]string
	assert.Equal(t, http.StatusServiceUnavailable, b.do(t, http.MethodGet, "/feeds/article/followed", &body))
	assert.Equal(t, "NoConnection", body["error"])
	assert.Equal(t, http.StatusServiceUnavailable, b.do(t, http.MethodGet, "/feeds/article/followed", &body),
		"a partition whose first page never loaded is not reported as empty")
	assert.Equal(t, "NoConnection", body["error"])

	b.gateway.setPagesOffline(false)
	var feed feedView
	require.Equal(t, http.StatusOK, b.do(t, http.MethodGet, "/feeds/article/followed", &feed))
	assert.Equal(t, "populated", feed.State)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, "a1", feed.Items[0].ID)
}

func TestShoutout(t *testing.T) {
	b := newTestBridge(t)

	var res struct {
		Count       int    `json:"count"`
		CanShoutout bool   `json:"canShoutout"`
		Error       string `json:"error"`
	}
	for want := 4; want <= 8; want++ {
		require.Equal(t, http.StatusOK, b.do(t, http.MethodPost, "/content/article/a1/shoutout", &res))
		assert.Equal(t, want, res.Count)
	}
	assert.False(t, res.CanShoutout)

	assert.Equal(t, http.StatusTooManyRequests, b.do(t, http.MethodPost, "/content/article/a1/shoutout", &res))
	assert.Equal(t, "ShoutoutLimit", res.Error)
	assert.Equal(t, 8, res.Count)

	var feed feedView
	require.Equal(t, http.StatusOK, b.do(t, http.MethodGet, "/feeds/article/followed", &feed))
	assert.Equal(t, 8, feed.Items[0].Count)
	assert.False(t, feed.Items[0].CanShoutout)

	assert.Equal(t, http.StatusNotFound, b.do(t, http.MethodPost, "/content/article/nope/shoutout", nil))
	assert.Equal(t, http.StatusBadRequest, b.do(t, http.MethodPost, "/content/flyer/f1/shoutout", nil))
}

func TestShoutoutStoreFailure(t *testing.T) {
	b := newTestBridgeWithStore(t, &failingCounterStore{KeyValueStore: memory.New()})

	var body map[string]string
	assert.Equal(t, http.StatusInternalServerError, b.do(t, http.MethodPost, "/content/article/a1/shoutout", &body))
	assert.Equal(t, "InternalError", body["error"])
	assert.NotContains(t, body["message"], "disk full")

	assert.Equal(t, http.StatusBadRequest, b.do(t, http.MethodPost, "/content/flyer/f1/shoutout", &body))
	assert.Equal(t, "InvalidRequest", body["error"])
}

func TestOwners(t *testing.T) {
	b := newTestBridge(t)

	type ownersBody struct {
		Kind   string      `json:"kind"`
		Owners []ownerView `json:"owners"`
	}
	var res ownersBody
	require.Equal(t, http.StatusOK, b.do(t, http.MethodGet, "/owners/publication", &res))
	require.Len(t, res.Owners, 2)
	assert.Equal(t, ownerView{Slug: "daily", Name: "Daily", Shoutouts: 10, Followed: true}, res.Owners[0])
	assert.False(t, res.Owners[1].Followed)

	require.Equal(t, http.StatusOK, b.do(t, http.MethodPost, "/content/article/a1/shoutout", nil))
	require.Equal(t, http.StatusOK, b.do(t, http.MethodGet, "/owners/publication", &res))
	assert.Equal(t, 11, res.Owners[0].Shoutouts)

	require.Equal(t, http.StatusOK, b.do(t, http.MethodGet, "/owners/organization", &res))
	require.Len(t, res.Owners, 1)
	assert.Equal(t, "club", res.Owners[0].Slug)

	assert.Equal(t, http.StatusBadRequest, b.do(t, http.MethodGet, "/owners/podcast", nil))

	b.gateway.setOffline(true)
	var body map[string]string
	assert.Equal(t, http.StatusServiceUnavailable, b.do(t, http.MethodGet, "/owners/publication", &body))
	assert.Equal(t, "NoConnection", body["error"])
}

func TestClick(t *testing.T) {
	b := newTestBridge(t)

	var res map[string]int
	require.Equal(t, http.StatusOK, b.do(t, http.MethodPost, "/content/flyer/f1/click", &res))
	assert.Equal(t, 8, res["count"])
	assert.Equal(t, http.StatusBadRequest, b.do(t, http.MethodPost, "/content/article/a1/click", nil))
}

func TestFollowAndSave(t *testing.T) {
	b := newTestBridge(t)

	var follows map[string][]string
	require.Equal(t, http.StatusOK, b.do(t, http.MethodPut, "/follows/publication/review", &follows))
	assert.Equal(t, []string{"review", "daily"}, follows["followed"])
	require.Equal(t, http.StatusOK, b.do(t, http.MethodDelete, "/follows/publication/daily", &follows))
	assert.Equal(t, []string{"review"}, follows["followed"])
	assert.Equal(t, http.StatusBadRequest, b.do(t, http.MethodPut, "/follows/band/x", nil))

	var saved map[string][]string
	require.Equal(t, http.StatusOK, b.do(t, http.MethodPut, "/saved/article/a1", &saved))
	require.Equal(t, http.StatusOK, b.do(t, http.MethodPut, "/saved/article/a3", &saved))
	assert.Equal(t, []string{"a3", "a1"}, saved["saved"])

	var list struct {
		Items []itemView `json:"items"`
	}
	require.Equal(t, http.StatusOK, b.do(t, http.MethodGet, "/saved/article", &list))
	require.Len(t, list.Items, 2)
	assert.Equal(t, "a3", list.Items[0].ID)
	assert.True(t, list.Items[0].Saved)
	assert.True(t, list.Items[0].OwnerFollowed)

	require.Equal(t, http.StatusOK, b.do(t, http.MethodDelete, "/saved/article/a3", &saved))
	assert.Equal(t, []string{"a1"}, saved["saved"])
}

func TestDebriefWithoutUser(t *testing.T) {
	b := newTestBridge(t)

	var body map[string]string
	assert.Equal(t, http.StatusNotFound, b.do(t, http.MethodGet, "/debrief", &body))
	assert.Equal(t, "NoUser", body["error"])
}

func TestOpenDeepLink(t *testing.T) {
	b := newTestBridge(t)

	var item itemView
	path := "/open?url=" + url.QueryEscape("volume://flyer?id=f1")
	require.Equal(t, http.StatusOK, b.do(t, http.MethodGet, path, &item))
	assert.Equal(t, "f1", item.ID)
	assert.Equal(t, "flyer", item.Type)
	assert.Equal(t, 7, item.Count)

	assert.Equal(t, http.StatusBadRequest, b.do(t, http.MethodGet, "/open?url="+url.QueryEscape("volume://article"), nil))
	assert.Equal(t, http.StatusNotFound, b.do(t, http.MethodGet, "/open?url="+url.QueryEscape("volume://article?id=zzz"), nil))
}

func TestEventsStream(t *testing.T) {
	b := newTestBridge(t)

	wsURL := "ws" + strings.TrimPrefix(b.url, "http") + "/events?type=article"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The subscription is registered after the upgrade; give it a moment.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, http.StatusOK, b.do(t, http.MethodPost, "/feeds/article/refresh", nil))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var kinds []string
	for len(kinds) < 3 {
		var msg events.Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "article", msg.ContentType)
		kinds = append(kinds, msg.Kind)
	}
	assert.Equal(t, "refreshed", kinds[0])
	assert.ElementsMatch(t, []string{"page_loaded", "page_loaded"}, kinds[1:])

	assert.Equal(t, http.StatusBadRequest, b.do(t, http.MethodGet, "/events?type=podcast", nil))
}
