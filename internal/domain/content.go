package domain

import (
	"fmt"
	"time"
)

// ContentType identifies one of the content variants served by Volume.
type ContentType string

const (
	ContentArticle  ContentType = "article"
	ContentMagazine ContentType = "magazine"
	ContentFlyer    ContentType = "flyer"
)

// ContentTypes lists every known content type.
var ContentTypes = []ContentType{ContentArticle, ContentMagazine, ContentFlyer}

// ParseContentType converts a raw string into a ContentType.
func ParseContentType(s string) (ContentType, error) {
	switch ContentType(s) {
	case ContentArticle, ContentMagazine, ContentFlyer:
		return ContentType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownContentType, s)
}

// OwnerKind returns the kind of entity that owns content of this type.
// Flyers belong to organizations; everything else to publications.
func (t ContentType) OwnerKind() FollowKind {
	if t == ContentFlyer {
		return FollowOrganization
	}
	return FollowPublication
}

// CounterKey addresses a single counter in the CounterCache. Kind is either a
// ContentType or a FollowKind; ID is a content id or a slug.
type CounterKey struct {
	Kind string
	ID   string
}

func (k CounterKey) String() string {
	return k.Kind + ":" + k.ID
}

// ContentItem is implemented by *Article, *Magazine and *Flyer only.
type ContentItem interface {
	// ContentID is the stable, server-assigned id. Unique within its type.
	ContentID() string
	Type() ContentType
	// OwnerSlug is the slug of the owning publication or organization.
	OwnerSlug() string
	// Date is the publish date (articles, magazines) or the start date (flyers).
	Date() time.Time
	// ServerCount is the server-reported shout-out or click count.
	ServerCount() int
	// CounterKey is the key used for optimistic count reconciliation.
	CounterKey() CounterKey

	isContentItem()
}

// Article is a single article published by a publication.
type Article struct {
	ID              string
	Title           string
	URL             string
	ImageURL        string
	PublicationSlug string
	PublishedAt     time.Time
	Shoutouts       int
	IsTrending      bool
	NSFW            bool
}

func (a *Article) ContentID() string { return a.ID }
func (a *Article) Type() ContentType { return ContentArticle }
func (a *Article) OwnerSlug() string { return a.PublicationSlug }
func (a *Article) Date() time.Time { return a.PublishedAt }
func (a *Article) ServerCount() int { return a.Shoutouts }
func (a *Article) CounterKey() CounterKey { return ContentCounterKey(ContentArticle, a.ID) }
func (*Article) isContentItem() {}

// Magazine is a PDF issue published by a publication.
type Magazine struct {
	ID              string
	Title           string
	PDFURL          string
	Semester        string
	PublicationSlug string
	PublishedAt     time.Time
	Shoutouts       int
}

func (m *Magazine) ContentID() string { return m.ID }
func (m *Magazine) Type() ContentType { return ContentMagazine }
func (m *Magazine) OwnerSlug() string { return m.PublicationSlug }
func (m *Magazine) Date() time.Time { return m.PublishedAt }
func (m *Magazine) ServerCount() int { return m.Shoutouts }
func (m *Magazine) CounterKey() CounterKey { return ContentCounterKey(ContentMagazine, m.ID) }
func (*Magazine) isContentItem() {}

// Flyer is an event flyer posted by an organization. Flyers count clicks
// rather than shout-outs.
type Flyer struct {
	ID               string
	Title            string
	FlyerURL         string
	ImageURL         string
	Location         string
	Category         string
	OrganizationSlug string
	StartDate        time.Time
	EndDate          time.Time
	Clicks           int
}

func (f *Flyer) ContentID() string { return f.ID }
func (f *Flyer) Type() ContentType { return ContentFlyer }
func (f *Flyer) OwnerSlug() string { return f.OrganizationSlug }
func (f *Flyer) Date() time.Time { return f.StartDate }
func (f *Flyer) ServerCount() int { return f.Clicks }
func (f *Flyer) CounterKey() CounterKey { return ContentCounterKey(ContentFlyer, f.ID) }
func (*Flyer) isContentItem() {}

// ContentCounterKey returns the counter key for a content item.
func ContentCounterKey(t ContentType, id string) CounterKey {
	return CounterKey{Kind: string(t), ID: id}
}

// OwnerCounterKey returns the counter key for a publication or organization.
func OwnerCounterKey(kind FollowKind, slug string) CounterKey {
	return CounterKey{Kind: string(kind), ID: slug}
}

// FollowKind is the kind of entity a user can follow.
type FollowKind string

const (
	FollowPublication  FollowKind = "publication"
	FollowOrganization FollowKind = "organization"
)

// ParseFollowKind converts a raw string into a FollowKind.
func ParseFollowKind(s string) (FollowKind, error) {
	switch FollowKind(s) {
	case FollowPublication, FollowOrganization:
		return FollowKind(s), nil
	}
	return "", fmt.Errorf("unknown follow kind %q", s)
}

// Publication is a student publication. The client holds read-only copies.
type Publication struct {
	Slug        string
	Name        string
	Bio         string
	LogoURL     string
	NumArticles int
	Shoutouts   int
}

// Organization is a student organization that posts flyers.
type Organization struct {
	Slug         string
	Name         string
	CategorySlug string
	Shoutouts    int
}

// WeeklyDebrief is the server-computed summary of a user's past week.
type WeeklyDebrief struct {
	CreationDate   time.Time `json:"creationDate"`
	ExpirationDate time.Time `json:"expirationDate"`
	NumShoutouts   int       `json:"numShoutouts"`
	NumBookmarks   int       `json:"numBookmarks"`
	NumReads       int       `json:"numReads"`
	ReadArticles   []string  `json:"readArticleIds"`
	RandomArticles []string  `json:"randomArticleIds"`
}

// Expired reports whether the debrief is past its expiration date.
func (d *WeeklyDebrief) Expired(now time.Time) bool {
	return now.After(d.ExpirationDate)
}

// Filter narrows a page query. Unset fields are ignored.
type Filter struct {
	Slugs            []string
	OrganizationSlug string
	IDs              []string
	Semester         string
	Since            time.Time
	Until            time.Time
}

// Page describes a limit/offset window.
type Page struct {
	Limit  int
	Offset int
}
