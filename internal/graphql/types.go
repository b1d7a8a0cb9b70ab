package graphql

import (
	"time"

	"github.com/blackmichael/volume/internal/domain"
)

type publicationJSON struct {
	Slug            string `json:"slug"`
	Name            string `json:"name"`
	Bio             string `json:"bio"`
	ProfileImageURL string `json:"profileImageURL"`
	NumArticles     int    `json:"numArticles"`
	Shoutouts       int    `json:"shoutouts"`
}

func (p publicationJSON) toDomain() domain.Publication {
	return domain.Publication{
		Slug:        p.Slug,
		Name:        p.Name,
		Bio:         p.Bio,
		LogoURL:     p.ProfileImageURL,
		NumArticles: p.NumArticles,
		Shoutouts:   p.Shoutouts,
	}
}

type organizationJSON struct {
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	CategorySlug string `json:"categorySlug"`
	Shoutouts    int    `json:"shoutouts"`
}

func (o organizationJSON) toDomain() domain.Organization {
	return domain.Organization{
		Slug:         o.Slug,
		Name:         o.Name,
		CategorySlug: o.CategorySlug,
		Shoutouts:    o.Shoutouts,
	}
}

type articleJSON struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	ArticleURL      string    `json:"articleURL"`
	ImageURL        string    `json:"imageURL"`
	Date            time.Time `json:"date"`
	Shoutouts       int       `json:"shoutouts"`
	IsTrending      bool      `json:"isTrending"`
	NSFW            bool      `json:"nsfw"`
	PublicationSlug string    `json:"publicationSlug"`
}

func articlesToItems(in []articleJSON) []domain.ContentItem {
	items := make([]domain.ContentItem, len(in))
	for i, a := range in {
		items[i] = &domain.Article{
			ID:              a.ID,
			Title:           a.Title,
			URL:             a.ArticleURL,
			ImageURL:        a.ImageURL,
			PublicationSlug: a.PublicationSlug,
			PublishedAt:     a.Date,
			Shoutouts:       a.Shoutouts,
			IsTrending:      a.IsTrending,
			NSFW:            a.NSFW,
		}
	}
	return items
}

type magazineJSON struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	PDFURL          string    `json:"pdfURL"`
	Semester        string    `json:"semester"`
	Date            time.Time `json:"date"`
	Shoutouts       int       `json:"shoutouts"`
	PublicationSlug string    `json:"publicationSlug"`
}

func magazinesToItems(in []magazineJSON) []domain.ContentItem {
	items := make([]domain.ContentItem, len(in))
	for i, m := range in {
		items[i] = &domain.Magazine{
			ID:              m.ID,
			Title:           m.Title,
			PDFURL:          m.PDFURL,
			Semester:        m.Semester,
			PublicationSlug: m.PublicationSlug,
			PublishedAt:     m.Date,
			Shoutouts:       m.Shoutouts,
		}
	}
	return items
}

type flyerJSON struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	FlyerURL         string    `json:"flyerURL"`
	ImageURL         string    `json:"imageURL"`
	Location         string    `json:"location"`
	CategorySlug     string    `json:"categorySlug"`
	StartDate        time.Time `json:"startDate"`
	EndDate          time.Time `json:"endDate"`
	TimesClicked     int       `json:"timesClicked"`
	OrganizationSlug string    `json:"organizationSlug"`
}

func flyersToItems(in []flyerJSON) []domain.ContentItem {
	items := make([]domain.ContentItem, len(in))
	for i, f := range in {
		items[i] = &domain.Flyer{
			ID:               f.ID,
			Title:            f.Title,
			FlyerURL:         f.FlyerURL,
			ImageURL:         f.ImageURL,
			Location:         f.Location,
			Category:         f.CategorySlug,
			OrganizationSlug: f.OrganizationSlug,
			StartDate:        f.StartDate,
			EndDate:          f.EndDate,
			Clicks:           f.TimesClicked,
		}
	}
	return items
}

type ackJSON struct {
	ID           string `json:"id"`
	UUID         string `json:"uuid"`
	Shoutouts    int    `json:"shoutouts"`
	TimesClicked int    `json:"timesClicked"`
}

func (a *ackJSON) toDomain() domain.Ack {
	id := a.ID
	if id == "" {
		id = a.UUID
	}
	return domain.Ack{ID: id, Count: max(a.Shoutouts, a.TimesClicked)}
}

type idJSON struct {
	ID string `json:"id"`
}

type debriefJSON struct {
	CreationDate   time.Time `json:"creationDate"`
	ExpirationDate time.Time `json:"expirationDate"`
	NumShoutouts   int       `json:"numShoutouts"`
	NumBookmarks   int       `json:"numBookmarks"`
	NumReads       int       `json:"numReads"`
	ReadArticles   []idJSON  `json:"readArticles"`
	RandomArticles []idJSON  `json:"randomArticles"`
}

func (d *debriefJSON) toDomain() *domain.WeeklyDebrief {
	out := &domain.WeeklyDebrief{
		CreationDate:   d.CreationDate,
		ExpirationDate: d.ExpirationDate,
		NumShoutouts:   d.NumShoutouts,
		NumBookmarks:   d.NumBookmarks,
		NumReads:       d.NumReads,
	}
	for _, a := range d.ReadArticles {
		out.ReadArticles = append(out.ReadArticles, a.ID)
	}
	for _, a := range d.RandomArticles {
		out.RandomArticles = append(out.RandomArticles, a.ID)
	}
	return out
}
