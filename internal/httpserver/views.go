package httpserver

import (
	"context"
	"time"

	"github.com/blackmichael/volume/internal/domain"
)

type feedView struct {
	ContentType string     `json:"contentType"`
	Partition   string     `json:"partition"`
	State       string     `json:"state"`
	HasMore     bool       `json:"hasMore"`
	Items       []itemView `json:"items"`
}

// itemView is what a rendering surface needs to draw one cell. Count is
// already reconciled against local increments.
type itemView struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"`
	Title         string     `json:"title"`
	OwnerSlug     string     `json:"ownerSlug"`
	Date          time.Time  `json:"date"`
	URL           string     `json:"url,omitempty"`
	ImageURL      string     `json:"imageURL,omitempty"`
	Count         int        `json:"count"`
	CanShoutout   bool       `json:"canShoutout"`
	Saved         bool       `json:"saved"`
	OwnerFollowed bool       `json:"ownerFollowed"`
	Trending      bool       `json:"trending,omitempty"`
	NSFW          bool       `json:"nsfw,omitempty"`
	Semester      string     `json:"semester,omitempty"`
	Location      string     `json:"location,omitempty"`
	Category      string     `json:"category,omitempty"`
	EndDate       *time.Time `json:"endDate,omitempty"`
}

// ownerView is one publication or organization with its reconciled
// shout-out total.
type ownerView struct {
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Shoutouts int    `json:"shoutouts"`
	Followed  bool   `json:"followed"`
}

func nonNilOwners(o []ownerView) []ownerView {
	if o == nil {
		return []ownerView{}
	}
	return o
}

func (s *Server) itemViews(ctx context.Context, items []domain.ContentItem) []itemView {
	prefs := s.session.Preferences()
	saved := make(map[domain.ContentType]map[string]bool)
	followed := make(map[domain.FollowKind]map[string]bool)

	views := make([]itemView, 0, len(items))
	for _, item := range items {
		t := item.Type()
		if _, ok := saved[t]; !ok {
			ids, err := prefs.SavedIDs(ctx, t)
			if err != nil {
				s.logger.Warn("failed to load saved ids", "type", t, "error", err)
			}
			saved[t] = toSet(ids)
		}
		kind := t.OwnerKind()
		if _, ok := followed[kind]; !ok {
			slugs, err := prefs.FollowedSlugs(ctx, kind)
			if err != nil {
				s.logger.Warn("failed to load followed slugs", "kind", kind, "error", err)
			}
			followed[kind] = toSet(slugs)
		}

		v := itemView{
			ID:            item.ContentID(),
			Type:          string(t),
			OwnerSlug:     item.OwnerSlug(),
			Date:          item.Date(),
			Count:         s.session.EffectiveCount(item),
			CanShoutout:   s.session.CanShoutout(item),
			Saved:         saved[t][item.ContentID()],
			OwnerFollowed: followed[kind][item.OwnerSlug()],
		}
		switch it := item.(type) {
		case *domain.Article:
			v.Title = it.Title
			v.URL = it.URL
			v.ImageURL = it.ImageURL
			v.Trending = it.IsTrending
			v.NSFW = it.NSFW
		case *domain.Magazine:
			v.Title = it.Title
			v.URL = it.PDFURL
			v.Semester = it.Semester
		case *domain.Flyer:
			v.Title = it.Title
			v.URL = it.FlyerURL
			v.ImageURL = it.ImageURL
			v.Location = it.Location
			v.Category = it.Category
			if !it.EndDate.IsZero() {
				end := it.EndDate
				v.EndDate = &end
			}
		}
		views = append(views, v)
	}
	return views
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
