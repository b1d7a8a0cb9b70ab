package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/blackmichael/volume/internal/config"
	"github.com/blackmichael/volume/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server exposes the feed aggregators and the user session to a rendering
// surface over local HTTP, with change notifications on a websocket.
type Server struct {
	cfg         *config.Config
	session     *domain.Session
	aggregators map[domain.ContentType]*domain.Aggregator
	logger      *slog.Logger
	httpServer  *http.Server
}

// NewServer creates a new HTTP server for the given session and aggregators.
func NewServer(cfg *config.Config, session *domain.Session, aggregators []*domain.Aggregator, logger *slog.Logger) *Server {
	s := &Server{
		cfg:         cfg,
		session:     session,
		aggregators: make(map[domain.ContentType]*domain.Aggregator, len(aggregators)),
		logger:      logger,
	}
	for _, a := range aggregators {
		s.aggregators[a.ContentType()] = a
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler. It is exposed for tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler { return withLogging(s.logger, next) })

	r.Get("/health", s.handleHealth)
	r.Get("/events", s.handleEvents)
	r.Get("/open", s.handleOpen)
	r.Get("/debrief", s.handleDebrief)

	r.Route("/feeds/{type}", func(r chi.Router) {
		r.Post("/refresh", s.handleRefresh)
		r.Get("/{partition}", s.handleGetFeed)
		r.Post("/{partition}/next", s.handleNextPage)
	})

	r.Route("/content/{type}/{id}", func(r chi.Router) {
		r.Post("/shoutout", s.handleShoutout)
		r.Post("/click", s.handleClick)
	})

	r.Get("/owners/{kind}", s.handleOwners)
	r.Put("/follows/{kind}/{slug}", s.handleFollow)
	r.Delete("/follows/{kind}/{slug}", s.handleUnfollow)

	r.Get("/saved/{type}", s.handleListSaved)
	r.Put("/saved/{type}/{id}", s.handleSave)
	r.Delete("/saved/{type}/{id}", s.handleUnsave)

	return r
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) aggregatorFor(w http.ResponseWriter, r *http.Request) (*domain.Aggregator, bool) {
	t, err := domain.ParseContentType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return nil, false
	}
	agg, ok := s.aggregators[t]
	if !ok {
		writeError(w, http.StatusNotFound, "NotFound", fmt.Sprintf("no feed for %s", t))
		return nil, false
	}
	return agg, true
}

func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregatorFor(w, r)
	if !ok {
		return
	}
	p, err := domain.ParsePartition(chi.URLParam(r, "partition"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	err = agg.FetchInitial(r.Context())
	page := agg.Snapshot(p)
	if page.State == domain.StateEmpty && page.HasMore {
		// The first page never arrived; retry it instead of reporting an
		// empty feed.
		if err == nil {
			err = agg.FetchNextPage(r.Context(), p)
			page = agg.Snapshot(p)
		}
		if err != nil {
			s.writeFetchError(w, err)
			return
		}
	}
	s.writeFeed(w, r, page)
}

func (s *Server) handleNextPage(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregatorFor(w, r)
	if !ok {
		return
	}
	p, err := domain.ParsePartition(chi.URLParam(r, "partition"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	if err := agg.FetchNextPage(r.Context(), p); err != nil {
		s.writeFetchError(w, err)
		return
	}
	s.writeFeed(w, r, agg.Snapshot(p))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	agg, ok := s.aggregatorFor(w, r)
	if !ok {
		return
	}
	if err := agg.Refresh(r.Context()); err != nil {
		s.writeFetchError(w, err)
		return
	}
	s.writeFeed(w, r, agg.Snapshot(domain.PartitionFollowed))
}

func (s *Server) handleShoutout(w http.ResponseWriter, r *http.Request) {
	item, ok := s.resolveItem(w, r)
	if !ok {
		return
	}

	count, err := s.session.Shoutout(r.Context(), item)
	switch {
	case errors.Is(err, domain.ErrShoutoutLimit):
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "ShoutoutLimit", "count": count})
		return
	case errors.Is(err, domain.ErrFlyerShoutout):
		writeError(w, http.StatusBadRequest, "InvalidRequest", "flyers record clicks, not shoutouts")
		return
	case err != nil:
		s.logger.Error("shoutout failed", "id", item.ContentID(), "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to record shoutout")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count, "canShoutout": s.session.CanShoutout(item)})
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	item, ok := s.resolveItem(w, r)
	if !ok {
		return
	}
	flyer, isFlyer := item.(*domain.Flyer)
	if !isFlyer {
		writeError(w, http.StatusBadRequest, "InvalidRequest", "only flyers record clicks")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": s.session.RecordClick(r.Context(), flyer)})
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	s.changeFollow(w, r, s.session.Follow)
}

func (s *Server) handleUnfollow(w http.ResponseWriter, r *http.Request) {
	s.changeFollow(w, r, s.session.Unfollow)
}

func (s *Server) changeFollow(w http.ResponseWriter, r *http.Request, change func(context.Context, domain.FollowKind, string) error) {
	kind, err := domain.ParseFollowKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	slug := chi.URLParam(r, "slug")
	if err := change(r.Context(), kind, slug); err != nil {
		s.logger.Error("failed to change follow", "kind", kind, "slug", slug, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to update follows")
		return
	}
	slugs, _ := s.session.Preferences().FollowedSlugs(r.Context(), kind)
	writeJSON(w, http.StatusOK, map[string]any{"followed": nonNilStrings(slugs)})
}

func (s *Server) handleOwners(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseFollowKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	followed, err := s.session.Preferences().FollowedSlugs(r.Context(), kind)
	if err != nil {
		s.logger.Warn("failed to load followed slugs", "kind", kind, "error", err)
	}
	isFollowed := toSet(followed)

	var owners []ownerView
	if kind == domain.FollowOrganization {
		orgs, err := s.session.Organizations(r.Context())
		if err != nil {
			s.writeFetchError(w, err)
			return
		}
		for _, o := range orgs {
			owners = append(owners, ownerView{Slug: o.Slug, Name: o.Name, Shoutouts: o.Shoutouts, Followed: isFollowed[o.Slug]})
		}
	} else {
		pubs, err := s.session.Publications(r.Context())
		if err != nil {
			s.writeFetchError(w, err)
			return
		}
		for _, p := range pubs {
			owners = append(owners, ownerView{Slug: p.Slug, Name: p.Name, Shoutouts: p.Shoutouts, Followed: isFollowed[p.Slug]})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"kind": kind, "owners": nonNilOwners(owners)})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	s.changeSaved(w, r, s.session.Save)
}

func (s *Server) handleUnsave(w http.ResponseWriter, r *http.Request) {
	s.changeSaved(w, r, s.session.Unsave)
}

func (s *Server) changeSaved(w http.ResponseWriter, r *http.Request, change func(context.Context, domain.ContentType, string) error) {
	t, err := domain.ParseContentType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := change(r.Context(), t, id); err != nil {
		s.logger.Error("failed to change saved", "type", t, "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", "failed to update saved items")
		return
	}
	ids, _ := s.session.Preferences().SavedIDs(r.Context(), t)
	writeJSON(w, http.StatusOK, map[string]any{"saved": nonNilStrings(ids)})
}

func (s *Server) handleListSaved(w http.ResponseWriter, r *http.Request) {
	t, err := domain.ParseContentType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	items, err := s.session.SavedItems(r.Context(), t)
	if err != nil {
		s.writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.itemViews(r.Context(), items)})
}

func (s *Server) handleDebrief(w http.ResponseWriter, r *http.Request) {
	d, err := s.session.WeeklyDebrief(r.Context())
	var empty *domain.EmptyResultError
	switch {
	case errors.Is(err, domain.ErrNoUser):
		writeError(w, http.StatusNotFound, "NoUser", "no user identity established")
		return
	case errors.As(err, &empty):
		writeError(w, http.StatusNotFound, "NotFound", err.Error())
		return
	case err != nil:
		s.writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	item, err := s.session.ResolveDeepLink(r.Context(), raw, s.lookup)
	var empty *domain.EmptyResultError
	switch {
	case errors.Is(err, domain.ErrInvalidDeepLink):
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	case errors.As(err, &empty):
		writeError(w, http.StatusNotFound, "NotFound", err.Error())
		return
	case err != nil:
		s.writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.itemViews(r.Context(), []domain.ContentItem{item})[0])
}

// resolveItem finds the item named by the {type} and {id} URL parameters.
func (s *Server) resolveItem(w http.ResponseWriter, r *http.Request) (domain.ContentItem, bool) {
	t, err := domain.ParseContentType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return nil, false
	}
	id := chi.URLParam(r, "id")

	item, err := s.session.Item(r.Context(), t, id, s.lookup)
	if err != nil {
		var empty *domain.EmptyResultError
		if errors.As(err, &empty) {
			writeError(w, http.StatusNotFound, "NotFound", err.Error())
		} else {
			s.writeFetchError(w, err)
		}
		return nil, false
	}
	return item, true
}

func (s *Server) lookup(t domain.ContentType, id string) (domain.ContentItem, bool) {
	if agg, ok := s.aggregators[t]; ok {
		return agg.Lookup(t, id)
	}
	return nil, false
}

func (s *Server) writeFeed(w http.ResponseWriter, r *http.Request, page domain.FeedPage) {
	writeJSON(w, http.StatusOK, feedView{
		ContentType: string(page.ContentType),
		Partition:   page.Partition.String(),
		State:       string(page.State),
		HasMore:     page.HasMore,
		Items:       s.itemViews(r.Context(), page.Items),
	})
}

// writeFetchError reports a failed section. Network, GraphQL and empty-result
// failures all render as "No Connection".
func (s *Server) writeFetchError(w http.ResponseWriter, err error) {
	if domain.IsNoConnection(err) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("section fetch failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "NoConnection", "could not reach Volume")
		return
	}
	s.logger.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "InternalError", "request failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func withLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
