package domain_test

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"

	"github.com/blackmichael/volume/internal/domain"
	"github.com/blackmichael/volume/internal/memory"
)

type pageCall struct {
	ContentType domain.ContentType
	Slugs       []string
	Page        domain.Page
}

// fakeGateway serves content from memory. Pages are cut from items in slice
// order, keeping only items owned by the requested slugs.
type fakeGateway struct {
	mu sync.Mutex

	pubs  []domain.Publication
	orgs  []domain.Organization
	items map[domain.ContentType][]domain.ContentItem

	catalogErr error
	pageErr    error
	mutateErr  error

	// block, when set, makes FetchPage wait until it is closed or the
	// request is cancelled. started receives one value per blocked call.
	block   chan struct{}
	started chan struct{}

	pageCalls []pageCall
	mutations []domain.Mutation

	createdUUID  string
	debrief      *domain.WeeklyDebrief
	debriefCalls int
}

var _ domain.ContentGateway = (*fakeGateway)(nil)

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		items:       make(map[domain.ContentType][]domain.ContentItem),
		createdUUID: "user-1",
	}
}

func (f *fakeGateway) FetchPublications(_ context.Context) ([]domain.Publication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.catalogErr != nil {
		return nil, f.catalogErr
	}
	return slices.Clone(f.pubs), nil
}

func (f *fakeGateway) FetchOrganizations(_ context.Context) ([]domain.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.catalogErr != nil {
		return nil, f.catalogErr
	}
	return slices.Clone(f.orgs), nil
}

func (f *fakeGateway) FetchPage(ctx context.Context, t domain.ContentType, filter domain.Filter, page domain.Page) ([]domain.ContentItem, error) {
	f.mu.Lock()
	f.pageCalls = append(f.pageCalls, pageCall{ContentType: t, Slugs: slices.Clone(filter.Slugs), Page: page})
	block, started := f.block, f.started
	f.mu.Unlock()

	if block != nil {
		if started != nil {
			started <- struct{}{}
		}
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pageErr != nil {
		return nil, f.pageErr
	}

	var matching []domain.ContentItem
	for _, item := range f.items[t] {
		if slices.Contains(filter.Slugs, item.OwnerSlug()) {
			matching = append(matching, item)
		}
	}
	if page.Offset >= len(matching) {
		return nil, nil
	}
	end := min(page.Offset+page.Limit, len(matching))
	return slices.Clone(matching[page.Offset:end]), nil
}

func (f *fakeGateway) FetchByID(_ context.Context, t domain.ContentType, ids []string) ([]domain.ContentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	var out []domain.ContentItem
	for _, item := range f.items[t] {
		if slices.Contains(ids, item.ContentID()) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakeGateway) Mutate(_ context.Context, m domain.Mutation) (domain.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = append(f.mutations, m)
	if f.mutateErr != nil {
		return domain.Ack{}, f.mutateErr
	}
	if m.Action == domain.ActionCreateUser {
		return domain.Ack{ID: f.createdUUID}, nil
	}
	return domain.Ack{ID: m.ID}, nil
}

func (f *fakeGateway) FetchWeeklyDebrief(_ context.Context, _ string) (*domain.WeeklyDebrief, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debriefCalls++
	return f.debrief, nil
}

func (f *fakeGateway) calls() []pageCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.pageCalls)
}

func (f *fakeGateway) sentMutations() []domain.Mutation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.mutations)
}

func (f *fakeGateway) set(fn func(f *fakeGateway)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPrefs(t *testing.T) *domain.Preferences {
	t.Helper()
	return domain.NewPreferences(memory.New())
}

func articles(slug string, ids ...string) []domain.ContentItem {
	items := make([]domain.ContentItem, len(ids))
	for i, id := range ids {
		items[i] = &domain.Article{ID: id, Title: "Article " + id, PublicationSlug: slug}
	}
	return items
}

func ids(items []domain.ContentItem) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ContentID()
	}
	return out
}
