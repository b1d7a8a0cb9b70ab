package domain

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultPageSize is the number of items requested per page.
	DefaultPageSize = 10

	// DefaultFollowedCap bounds the followed partition regardless of whether
	// the server has more.
	DefaultFollowedCap = 20
)

// Partition is one of the two independent streams tracked by an Aggregator.
type Partition int

const (
	PartitionFollowed Partition = iota
	PartitionNotFollowed
)

var partitions = []Partition{PartitionFollowed, PartitionNotFollowed}

func (p Partition) String() string {
	if p == PartitionFollowed {
		return "followed"
	}
	return "unfollowed"
}

// ParsePartition converts "followed" or "unfollowed" into a Partition.
func ParsePartition(s string) (Partition, error) {
	switch s {
	case "followed":
		return PartitionFollowed, nil
	case "unfollowed", "not-followed":
		return PartitionNotFollowed, nil
	}
	return 0, fmt.Errorf("unknown partition %q", s)
}

// PartitionState is the lifecycle state of one partition.
type PartitionState string

const (
	StateEmpty     PartitionState = "empty"
	StateLoading   PartitionState = "loading"
	StatePopulated PartitionState = "populated"
)

// EventKind describes what changed in an Aggregator.
type EventKind string

const (
	EventPageLoaded  EventKind = "page_loaded"
	EventFetchFailed EventKind = "fetch_failed"
	EventRefreshed   EventKind = "refreshed"
)

// Event is delivered to subscribers after the corresponding state change has
// been fully applied.
type Event struct {
	Kind        EventKind
	ContentType ContentType
	Partition   Partition
	Added       int
	HasMore     bool
	Err         error
}

// FeedPage is an immutable snapshot of one partition.
type FeedPage struct {
	ContentType ContentType
	Partition   Partition
	State       PartitionState
	Items       []ContentItem
	HasMore     bool
}

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	ContentType ContentType

	// PageSize defaults to DefaultPageSize.
	PageSize int

	// FollowedCap caps the followed partition. Zero means no cap.
	FollowedCap int
}

type partition struct {
	slugs   []string
	items   []ContentItem
	ids     map[string]struct{}
	fetched int // offset of the next page
	hasMore bool
	loading bool
	loaded  bool
}

func newPartition() *partition {
	return &partition{ids: make(map[string]struct{}), hasMore: true}
}

func (p *partition) state() PartitionState {
	switch {
	case p.loading:
		return StateLoading
	case p.loaded:
		return StatePopulated
	default:
		return StateEmpty
	}
}

// Aggregator merges paginated remote content of one type into a followed and
// a not-followed stream. It is safe for concurrent use; concurrent page
// requests for the same partition collapse into a single network call.
type Aggregator struct {
	cfg     AggregatorConfig
	gateway ContentGateway
	prefs   *Preferences
	logger  *slog.Logger

	mu           sync.Mutex
	parts        [2]*partition
	initialized  bool
	initializing bool
	generation   uint64
	observers    map[int]func(Event)
	nextObserver int

	// ctx is cancelled by Close and bounds every request.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewAggregator creates an Aggregator for one content type.
func NewAggregator(cfg AggregatorConfig, gateway ContentGateway, prefs *Preferences, logger *slog.Logger) (*Aggregator, error) {
	if _, err := ParseContentType(string(cfg.ContentType)); err != nil {
		return nil, err
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.FollowedCap < 0 {
		return nil, fmt.Errorf("followed cap must not be negative, got %d", cfg.FollowedCap)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Aggregator{
		cfg:       cfg,
		gateway:   gateway,
		prefs:     prefs,
		logger:    logger.With("content_type", cfg.ContentType),
		observers: make(map[int]func(Event)),
		ctx:       ctx,
		cancel:    cancel,
	}
	a.parts = [2]*partition{newPartition(), newPartition()}
	return a, nil
}

// ContentType returns the type of content this aggregator serves.
func (a *Aggregator) ContentType() ContentType {
	return a.cfg.ContentType
}

// FetchInitial loads the owner catalog, splits it by the current follow set
// and fetches the first page of both partitions. It does nothing once the
// aggregator has been initialized, until Refresh is called.
func (a *Aggregator) FetchInitial(ctx context.Context) error {
	a.mu.Lock()
	if a.initialized || a.initializing {
		a.mu.Unlock()
		return nil
	}
	a.initializing = true
	gen := a.generation
	a.mu.Unlock()

	followed, unfollowed, err := a.partitionSlugs(ctx)

	a.mu.Lock()
	if gen != a.generation {
		a.mu.Unlock()
		return nil
	}
	a.initializing = false
	if err != nil {
		a.mu.Unlock()
		a.logger.Warn("failed to load slug catalog", "error", err)
		a.notify(Event{Kind: EventFetchFailed, ContentType: a.cfg.ContentType, Partition: PartitionFollowed, HasMore: true, Err: err})
		return fmt.Errorf("load %s catalog: %w", a.cfg.ContentType.OwnerKind(), err)
	}
	a.parts[PartitionFollowed].slugs = followed
	a.parts[PartitionNotFollowed].slugs = unfollowed
	a.initialized = true
	a.mu.Unlock()

	a.logger.Debug("partitioned catalog", "followed", len(followed), "unfollowed", len(unfollowed))

	var g errgroup.Group
	for _, p := range partitions {
		g.Go(func() error { return a.FetchNextPage(ctx, p) })
	}
	return g.Wait()
}

// FetchNextPage fetches and appends the next page of p. It does nothing if
// the partition is exhausted or a fetch for it is already in flight. On
// failure the partition is left untouched and the error is returned.
func (a *Aggregator) FetchNextPage(ctx context.Context, p Partition) error {
	a.mu.Lock()
	if !a.initialized {
		a.mu.Unlock()
		return a.FetchInitial(ctx)
	}

	part := a.parts[p]
	if !part.hasMore || part.loading {
		a.mu.Unlock()
		return nil
	}

	limit := a.cfg.PageSize
	if p == PartitionFollowed && a.cfg.FollowedCap > 0 {
		limit = min(limit, a.cfg.FollowedCap-part.fetched)
	}
	if len(part.slugs) == 0 || limit <= 0 {
		part.hasMore = false
		part.loaded = true
		a.mu.Unlock()
		a.notify(Event{Kind: EventPageLoaded, ContentType: a.cfg.ContentType, Partition: p})
		return nil
	}

	page := Page{Limit: limit, Offset: part.fetched}
	filter := Filter{Slugs: slices.Clone(part.slugs)}
	part.loading = true
	gen := a.generation
	a.mu.Unlock()

	reqCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(a.ctx, cancel)
	items, err := a.gateway.FetchPage(reqCtx, a.cfg.ContentType, filter, page)
	stop()
	cancel()

	a.mu.Lock()
	if gen != a.generation {
		// Refresh replaced the partition while we were waiting.
		a.mu.Unlock()
		return nil
	}
	part.loading = false
	if err != nil {
		hasMore := part.hasMore
		a.mu.Unlock()
		a.logger.Warn("page fetch failed", "partition", p, "offset", page.Offset, "error", err)
		a.notify(Event{Kind: EventFetchFailed, ContentType: a.cfg.ContentType, Partition: p, HasMore: hasMore, Err: err})
		return fmt.Errorf("fetch %s %s page at offset %d: %w", p, a.cfg.ContentType, page.Offset, err)
	}

	added := 0
	for _, item := range items {
		if _, dup := part.ids[item.ContentID()]; dup {
			continue
		}
		part.ids[item.ContentID()] = struct{}{}
		part.items = append(part.items, item)
		added++
	}
	part.fetched += len(items)
	part.hasMore = len(items) == page.Limit
	if p == PartitionFollowed && a.cfg.FollowedCap > 0 && part.fetched >= a.cfg.FollowedCap {
		part.hasMore = false
	}
	part.loaded = true
	hasMore := part.hasMore
	a.mu.Unlock()

	a.logger.Debug("page loaded", "partition", p, "offset", page.Offset, "received", len(items), "added", added, "has_more", hasMore)
	a.notify(Event{Kind: EventPageLoaded, ContentType: a.cfg.ContentType, Partition: p, Added: added, HasMore: hasMore})
	return nil
}

// Refresh drops all in-memory feed state and replays FetchInitial. Results of
// fetches that were in flight when Refresh was called are discarded.
// Persisted preferences and counters are not touched.
func (a *Aggregator) Refresh(ctx context.Context) error {
	a.mu.Lock()
	a.generation++
	a.parts = [2]*partition{newPartition(), newPartition()}
	a.initialized = false
	a.initializing = false
	a.mu.Unlock()

	a.notify(Event{Kind: EventRefreshed, ContentType: a.cfg.ContentType, HasMore: true})
	return a.FetchInitial(ctx)
}

// Snapshot returns a copy of partition p.
func (a *Aggregator) Snapshot(p Partition) FeedPage {
	a.mu.Lock()
	defer a.mu.Unlock()

	part := a.parts[p]
	return FeedPage{
		ContentType: a.cfg.ContentType,
		Partition:   p,
		State:       part.state(),
		Items:       slices.Clone(part.items),
		HasMore:     part.hasMore,
	}
}

// Lookup returns the item with the given id if either partition holds it.
func (a *Aggregator) Lookup(t ContentType, id string) (ContentItem, bool) {
	if t != a.cfg.ContentType {
		return nil, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, part := range a.parts {
		if _, ok := part.ids[id]; !ok {
			continue
		}
		for _, item := range part.items {
			if item.ContentID() == id {
				return item, true
			}
		}
	}
	return nil, false
}

// Subscribe registers fn to be called after every state change. The returned
// function removes the subscription. fn must not block for long; it runs on
// the goroutine that applied the change.
func (a *Aggregator) Subscribe(fn func(Event)) (unsubscribe func()) {
	a.mu.Lock()
	id := a.nextObserver
	a.nextObserver++
	a.observers[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.observers, id)
		a.mu.Unlock()
	}
}

// Close cancels every in-flight request. The aggregator must not be used
// afterwards.
func (a *Aggregator) Close() {
	a.cancel()
}

func (a *Aggregator) notify(e Event) {
	a.mu.Lock()
	fns := make([]func(Event), 0, len(a.observers))
	for _, fn := range a.observers {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(e)
	}
}

// partitionSlugs loads the owner catalog and splits it by the follow set,
// keeping catalog order within each half.
func (a *Aggregator) partitionSlugs(ctx context.Context) (followed, unfollowed []string, err error) {
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(a.ctx, cancel)
	defer stop()

	kind := a.cfg.ContentType.OwnerKind()

	var catalog []string
	switch kind {
	case FollowOrganization:
		orgs, err := a.gateway.FetchOrganizations(reqCtx)
		if err != nil {
			return nil, nil, err
		}
		for _, o := range orgs {
			catalog = append(catalog, o.Slug)
		}
	default:
		pubs, err := a.gateway.FetchPublications(reqCtx)
		if err != nil {
			return nil, nil, err
		}
		for _, p := range pubs {
			catalog = append(catalog, p.Slug)
		}
	}

	follows, err := a.prefs.FollowedSlugs(ctx, kind)
	if err != nil {
		return nil, nil, fmt.Errorf("load followed slugs: %w", err)
	}
	followSet := make(map[string]struct{}, len(follows))
	for _, s := range follows {
		followSet[s] = struct{}{}
	}

	for _, slug := range catalog {
		if _, ok := followSet[slug]; ok {
			followed = append(followed, slug)
		} else {
			unfollowed = append(unfollowed, slug)
		}
	}
	return followed, unfollowed, nil
}
