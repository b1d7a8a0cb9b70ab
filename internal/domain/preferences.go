package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Preference keys.
const (
	keySavedArticles     = "savedArticleIds"
	keySavedMagazines    = "savedMagazineIds"
	keySavedFlyers       = "savedFlyerIds"
	keyFollowedPubs      = "followedPublicationSlugs"
	keyFollowedOrgs      = "followedOrganizationSlugs"
	keyArticleShoutouts  = "articleShoutoutsCounter"
	keyMagazineShoutouts = "magazineShoutoutsCounter"
	keyFlyerClicks       = "flyerClicksCounter"
	keyUserUUID          = "userUUID"
	keyDeviceID          = "deviceID"
	keyWeeklyDebrief     = "weeklyDebrief"
)

// Preferences provides typed access to the local preference store. Sets are
// stored most-recently-changed first. Read-modify-write updates are
// serialized, so concurrent callers never overwrite each other.
type Preferences struct {
	mu    sync.Mutex // held across get and set of one key
	store KeyValueStore
}

// NewPreferences wraps a KeyValueStore.
func NewPreferences(store KeyValueStore) *Preferences {
	return &Preferences{store: store}
}

func savedKey(t ContentType) (string, error) {
	switch t {
	case ContentArticle:
		return keySavedArticles, nil
	case ContentMagazine:
		return keySavedMagazines, nil
	case ContentFlyer:
		return keySavedFlyers, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownContentType, t)
}

func followedKey(kind FollowKind) (string, error) {
	switch kind {
	case FollowPublication:
		return keyFollowedPubs, nil
	case FollowOrganization:
		return keyFollowedOrgs, nil
	}
	return "", fmt.Errorf("unknown follow kind %q", kind)
}

func counterKey(t ContentType) (string, error) {
	switch t {
	case ContentArticle:
		return keyArticleShoutouts, nil
	case ContentMagazine:
		return keyMagazineShoutouts, nil
	case ContentFlyer:
		return keyFlyerClicks, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownContentType, t)
}

// SavedIDs returns the saved content ids for t, most recent first.
func (p *Preferences) SavedIDs(ctx context.Context, t ContentType) ([]string, error) {
	key, err := savedKey(t)
	if err != nil {
		return nil, err
	}
	return p.getList(ctx, key)
}

// AddSavedID prepends id to the saved list for t.
func (p *Preferences) AddSavedID(ctx context.Context, t ContentType, id string) error {
	key, err := savedKey(t)
	if err != nil {
		return err
	}
	return p.prepend(ctx, key, id)
}

// RemoveSavedID removes id from the saved list for t.
func (p *Preferences) RemoveSavedID(ctx context.Context, t ContentType, id string) error {
	key, err := savedKey(t)
	if err != nil {
		return err
	}
	return p.remove(ctx, key, id)
}

// FollowedSlugs returns the followed slugs of the given kind, most recent first.
func (p *Preferences) FollowedSlugs(ctx context.Context, kind FollowKind) ([]string, error) {
	key, err := followedKey(kind)
	if err != nil {
		return nil, err
	}
	return p.getList(ctx, key)
}

// AddFollowedSlug prepends slug to the followed list.
func (p *Preferences) AddFollowedSlug(ctx context.Context, kind FollowKind, slug string) error {
	key, err := followedKey(kind)
	if err != nil {
		return err
	}
	return p.prepend(ctx, key, slug)
}

// RemoveFollowedSlug removes slug from the followed list.
func (p *Preferences) RemoveFollowedSlug(ctx context.Context, kind FollowKind, slug string) error {
	key, err := followedKey(kind)
	if err != nil {
		return err
	}
	return p.remove(ctx, key, slug)
}

// ShoutoutCounts returns the number of local increments per content id.
func (p *Preferences) ShoutoutCounts(ctx context.Context, t ContentType) (map[string]int, error) {
	key, err := counterKey(t)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	if _, err := p.getJSON(ctx, key, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

// SetShoutoutCount records n local increments for id. A lower n than the
// stored one is ignored.
func (p *Preferences) SetShoutoutCount(ctx context.Context, t ContentType, id string, n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	counts, err := p.ShoutoutCounts(ctx, t)
	if err != nil {
		return err
	}
	if counts[id] >= n {
		return nil
	}
	counts[id] = n
	key, _ := counterKey(t)
	return p.setJSON(ctx, key, counts)
}

// UserUUID returns the server-issued user id, or "" if none exists yet.
func (p *Preferences) UserUUID(ctx context.Context) (string, error) {
	v, ok, err := p.store.Get(ctx, keyUserUUID)
	if err != nil || !ok {
		return "", err
	}
	return string(v), nil
}

// SetUserUUID stores the server-issued user id.
func (p *Preferences) SetUserUUID(ctx context.Context, id string) error {
	return p.store.Set(ctx, keyUserUUID, []byte(id))
}

// DeviceID returns the anonymous per-install identifier, creating it on
// first use.
func (p *Preferences) DeviceID(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok, err := p.store.Get(ctx, keyDeviceID)
	if err != nil {
		return "", err
	}
	if ok && len(v) > 0 {
		return string(v), nil
	}
	id := uuid.NewString()
	if err := p.store.Set(ctx, keyDeviceID, []byte(id)); err != nil {
		return "", fmt.Errorf("store device id: %w", err)
	}
	return id, nil
}

// WeeklyDebrief returns the cached debrief, or nil if none is cached.
func (p *Preferences) WeeklyDebrief(ctx context.Context) (*WeeklyDebrief, error) {
	var d WeeklyDebrief
	ok, err := p.getJSON(ctx, keyWeeklyDebrief, &d)
	if err != nil || !ok {
		return nil, err
	}
	return &d, nil
}

// SetWeeklyDebrief caches d. A nil debrief clears the cache.
func (p *Preferences) SetWeeklyDebrief(ctx context.Context, d *WeeklyDebrief) error {
	if d == nil {
		return p.store.Delete(ctx, keyWeeklyDebrief)
	}
	return p.setJSON(ctx, keyWeeklyDebrief, d)
}

func (p *Preferences) getList(ctx context.Context, key string) ([]string, error) {
	var list []string
	if _, err := p.getJSON(ctx, key, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *Preferences) prepend(ctx context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	list, err := p.getList(ctx, key)
	if err != nil {
		return err
	}
	list = slices.DeleteFunc(list, func(s string) bool { return s == value })
	list = slices.Insert(list, 0, value)
	return p.setJSON(ctx, key, list)
}

func (p *Preferences) remove(ctx context.Context, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	list, err := p.getList(ctx, key)
	if err != nil {
		return err
	}
	n := len(list)
	list = slices.DeleteFunc(list, func(s string) bool { return s == value })
	if len(list) == n {
		return nil
	}
	return p.setJSON(ctx, key, list)
}

func (p *Preferences) getJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := p.store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (p *Preferences) setJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := p.store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}
