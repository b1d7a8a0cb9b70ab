package domain

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionConfig configures a Session.
type SessionConfig struct {
	// ShoutoutCaps limits local shout-outs per item, keyed by content type.
	// Types without an entry are unlimited.
	ShoutoutCaps map[ContentType]int

	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultShoutoutCaps returns the caps used when none are configured.
func DefaultShoutoutCaps() map[ContentType]int {
	return map[ContentType]int{
		ContentArticle:  DefaultShoutoutCap,
		ContentMagazine: DefaultShoutoutCap,
	}
}

// Session holds the user-scoped state shared by every screen: preferences,
// the optimistic counter cache and the gateway used to mirror local changes.
// Local state is always the source of truth; server mirrors are best-effort.
type Session struct {
	gateway  ContentGateway
	prefs    *Preferences
	counters *CounterCache
	logger   *slog.Logger
	now      func() time.Time
}

// NewSession creates a Session and restores persisted shout-out counters.
func NewSession(ctx context.Context, cfg SessionConfig, gateway ContentGateway, prefs *Preferences, logger *slog.Logger) (*Session, error) {
	caps := cfg.ShoutoutCaps
	if caps == nil {
		caps = DefaultShoutoutCaps()
	}
	byKind := make(map[string]int, len(caps))
	for t, n := range caps {
		byKind[string(t)] = n
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Session{
		gateway:  gateway,
		prefs:    prefs,
		counters: NewCounterCache(byKind),
		logger:   logger,
		now:      now,
	}

	for _, t := range []ContentType{ContentArticle, ContentMagazine} {
		counts, err := prefs.ShoutoutCounts(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("restore %s shoutout counts: %w", t, err)
		}
		s.counters.Restore(string(t), counts)
	}
	return s, nil
}

// Preferences returns the session's preference accessor.
func (s *Session) Preferences() *Preferences {
	return s.prefs
}

// Counters returns the session's counter cache.
func (s *Session) Counters() *CounterCache {
	return s.counters
}

// EnsureUser returns the server-issued user id, creating the user on the
// server if none is stored yet.
func (s *Session) EnsureUser(ctx context.Context) (string, error) {
	id, err := s.prefs.UserUUID(ctx)
	if err != nil {
		return "", fmt.Errorf("load user uuid: %w", err)
	}
	if id != "" {
		return id, nil
	}

	deviceID, err := s.prefs.DeviceID(ctx)
	if err != nil {
		return "", err
	}
	slugs, err := s.prefs.FollowedSlugs(ctx, FollowPublication)
	if err != nil {
		return "", err
	}

	ack, err := s.gateway.Mutate(ctx, Mutation{Action: ActionCreateUser, DeviceID: deviceID, Slugs: slugs})
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	if ack.ID == "" {
		return "", &EmptyResultError{What: "created user uuid"}
	}
	if err := s.prefs.SetUserUUID(ctx, ack.ID); err != nil {
		return "", fmt.Errorf("store user uuid: %w", err)
	}
	s.logger.Info("created user", "uuid", ack.ID)
	return ack.ID, nil
}

// Follow adds slug to the local follow set and mirrors it to the server when
// a user identity exists.
func (s *Session) Follow(ctx context.Context, kind FollowKind, slug string) error {
	if err := s.prefs.AddFollowedSlug(ctx, kind, slug); err != nil {
		return fmt.Errorf("follow %s %s: %w", kind, slug, err)
	}
	action := ActionFollowPublication
	if kind == FollowOrganization {
		action = ActionFollowOrganization
	}
	s.mirror(ctx, Mutation{Action: action, Slug: slug})
	return nil
}

// Unfollow removes slug from the local follow set and mirrors it to the
// server when a user identity exists.
func (s *Session) Unfollow(ctx context.Context, kind FollowKind, slug string) error {
	if err := s.prefs.RemoveFollowedSlug(ctx, kind, slug); err != nil {
		return fmt.Errorf("unfollow %s %s: %w", kind, slug, err)
	}
	action := ActionUnfollowPublication
	if kind == FollowOrganization {
		action = ActionUnfollowOrganization
	}
	s.mirror(ctx, Mutation{Action: action, Slug: slug})
	return nil
}

// IsFollowed reports whether slug is in the local follow set.
func (s *Session) IsFollowed(ctx context.Context, kind FollowKind, slug string) (bool, error) {
	slugs, err := s.prefs.FollowedSlugs(ctx, kind)
	if err != nil {
		return false, err
	}
	for _, f := range slugs {
		if f == slug {
			return true, nil
		}
	}
	return false, nil
}

// Save bookmarks a content item locally. Saved articles are also mirrored to
// the server.
func (s *Session) Save(ctx context.Context, t ContentType, id string) error {
	if err := s.prefs.AddSavedID(ctx, t, id); err != nil {
		return fmt.Errorf("save %s %s: %w", t, id, err)
	}
	if t == ContentArticle {
		s.mirror(ctx, Mutation{Action: ActionBookmarkArticle, ContentType: t, ID: id})
	}
	return nil
}

// Unsave removes a bookmark. There is no server counterpart.
func (s *Session) Unsave(ctx context.Context, t ContentType, id string) error {
	if err := s.prefs.RemoveSavedID(ctx, t, id); err != nil {
		return fmt.Errorf("unsave %s %s: %w", t, id, err)
	}
	return nil
}

// IsSaved reports whether id is bookmarked.
func (s *Session) IsSaved(ctx context.Context, t ContentType, id string) (bool, error) {
	ids, err := s.prefs.SavedIDs(ctx, t)
	if err != nil {
		return false, err
	}
	for _, saved := range ids {
		if saved == id {
			return true, nil
		}
	}
	return false, nil
}

// SavedItems fetches the saved items of type t, most recently saved first.
// Items the server no longer knows about are skipped.
func (s *Session) SavedItems(ctx context.Context, t ContentType) ([]ContentItem, error) {
	ids, err := s.prefs.SavedIDs(ctx, t)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	fetched, err := s.gateway.FetchByID(ctx, t, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch saved %s items: %w", t, err)
	}
	byID := make(map[string]ContentItem, len(fetched))
	for _, item := range fetched {
		byID[item.ContentID()] = item
	}

	items := make([]ContentItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// Shoutout records a shout-out for item. The displayed counts of the item
// and of its publication are bumped immediately; the server mutation is
// best-effort and a failure does not undo the local increment. Returns the
// new effective count of the item.
func (s *Session) Shoutout(ctx context.Context, item ContentItem) (int, error) {
	if item.Type() == ContentFlyer {
		return 0, fmt.Errorf("shoutout %s: %w", item.ContentID(), ErrFlyerShoutout)
	}

	key := item.CounterKey()
	n, ok := s.counters.TryIncrement(key, item.ServerCount())
	if !ok {
		return n, ErrShoutoutLimit
	}
	if slug := item.OwnerSlug(); slug != "" {
		s.counters.RecordLocalIncrement(OwnerCounterKey(item.Type().OwnerKind(), slug), 0)
	}

	if err := s.prefs.SetShoutoutCount(ctx, item.Type(), item.ContentID(), s.counters.Increments(key)); err != nil {
		return n, fmt.Errorf("persist shoutout count: %w", err)
	}

	s.mirror(ctx, Mutation{Action: ActionIncrementShoutouts, ContentType: item.Type(), ID: item.ContentID()})
	return n, nil
}

// RecordClick records a click-through on a flyer. Clicks are uncapped.
func (s *Session) RecordClick(ctx context.Context, flyer *Flyer) int {
	n := s.counters.RecordLocalIncrement(flyer.CounterKey(), flyer.Clicks)
	if _, err := s.gateway.Mutate(ctx, Mutation{Action: ActionIncrementClicks, ContentType: ContentFlyer, ID: flyer.ID}); err != nil {
		s.logger.Warn("failed to record flyer click", "flyer_id", flyer.ID, "error", err)
	}
	return n
}

// MarkRead tells the server the user opened article.
func (s *Session) MarkRead(ctx context.Context, article *Article) {
	s.mirror(ctx, Mutation{Action: ActionReadArticle, ContentType: ContentArticle, ID: article.ID})
}

// EffectiveCount returns the shout-out or click count to display for item.
func (s *Session) EffectiveCount(item ContentItem) int {
	return s.counters.EffectiveCount(item.CounterKey(), item.ServerCount())
}

// EffectiveOwnerCount returns the shout-out total to display for a
// publication or organization, including the user's own shout-outs this
// session.
func (s *Session) EffectiveOwnerCount(kind FollowKind, slug string, serverValue int) int {
	return s.counters.EffectiveCount(OwnerCounterKey(kind, slug), serverValue)
}

// Publications fetches the publication catalog with shout-out totals that
// never fall below what this session has already shown.
func (s *Session) Publications(ctx context.Context) ([]Publication, error) {
	pubs, err := s.gateway.FetchPublications(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch publications: %w", err)
	}
	for i := range pubs {
		pubs[i].Shoutouts = s.counters.Observe(OwnerCounterKey(FollowPublication, pubs[i].Slug), pubs[i].Shoutouts)
	}
	return pubs, nil
}

// Organizations is Publications for organizations.
func (s *Session) Organizations(ctx context.Context) ([]Organization, error) {
	orgs, err := s.gateway.FetchOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch organizations: %w", err)
	}
	for i := range orgs {
		orgs[i].Shoutouts = s.counters.Observe(OwnerCounterKey(FollowOrganization, orgs[i].Slug), orgs[i].Shoutouts)
	}
	return orgs, nil
}

// CanShoutout reports whether the user may still shout out item.
func (s *Session) CanShoutout(item ContentItem) bool {
	return item.Type() != ContentFlyer && s.counters.CanIncrement(item.CounterKey())
}

// WeeklyDebrief returns the cached debrief while it is fresh, and otherwise
// fetches and caches a new one.
func (s *Session) WeeklyDebrief(ctx context.Context) (*WeeklyDebrief, error) {
	cached, err := s.prefs.WeeklyDebrief(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cached debrief: %w", err)
	}
	if cached != nil && !cached.Expired(s.now()) {
		return cached, nil
	}

	id, err := s.prefs.UserUUID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrNoUser
	}

	d, err := s.gateway.FetchWeeklyDebrief(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch weekly debrief: %w", err)
	}
	if d == nil {
		return nil, &EmptyResultError{What: "weekly debrief"}
	}
	if err := s.prefs.SetWeeklyDebrief(ctx, d); err != nil {
		return nil, fmt.Errorf("cache weekly debrief: %w", err)
	}
	return d, nil
}

// ResolveDeepLink turns a deep link into a content item. lookup is consulted
// first so items already in memory are not refetched; it may be nil.
func (s *Session) ResolveDeepLink(ctx context.Context, raw string, lookup func(ContentType, string) (ContentItem, bool)) (ContentItem, error) {
	link, err := ParseDeepLink(raw)
	if err != nil {
		return nil, err
	}
	item, err := s.Item(ctx, link.ContentType, link.ID, lookup)
	if err != nil {
		return nil, fmt.Errorf("resolve deep link: %w", err)
	}
	return item, nil
}

// Item returns the content item of type t with the given id, consulting
// lookup before the gateway. lookup may be nil.
func (s *Session) Item(ctx context.Context, t ContentType, id string, lookup func(ContentType, string) (ContentItem, bool)) (ContentItem, error) {
	if lookup != nil {
		if item, ok := lookup(t, id); ok {
			return item, nil
		}
	}

	items, err := s.gateway.FetchByID(ctx, t, []string{id})
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.ContentID() == id {
			return item, nil
		}
	}
	return nil, &EmptyResultError{What: fmt.Sprintf("%s %s", t, id)}
}

// mirror sends m with the stored user id attached. It is skipped when no
// user exists and failures are only logged.
func (s *Session) mirror(ctx context.Context, m Mutation) {
	id, err := s.prefs.UserUUID(ctx)
	if err != nil {
		s.logger.Warn("skipping server mirror, failed to load uuid", "action", m.Action, "error", err)
		return
	}
	if id == "" {
		s.logger.Debug("skipping server mirror, no user", "action", m.Action)
		return
	}
	m.UUID = id
	if _, err := s.gateway.Mutate(ctx, m); err != nil {
		s.logger.Warn("server mirror failed", "action", m.Action, "id", m.ID, "slug", m.Slug, "error", err)
	}
}
