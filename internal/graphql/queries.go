package graphql

import (
	"fmt"

	"github.com/blackmichael/volume/internal/domain"
)

const articleFields = `
fragment ArticleFields on Article {
	id
	title
	articleURL
	imageURL
	date
	shoutouts
	isTrending
	nsfw
	publicationSlug
}`

const magazineFields = `
fragment MagazineFields on Magazine {
	id
	title
	pdfURL
	semester
	date
	shoutouts
	publicationSlug
}`

const flyerFields = `
fragment FlyerFields on Flyer {
	id
	title
	flyerURL
	imageURL
	location
	categorySlug
	startDate
	endDate
	timesClicked
	organizationSlug
}`

const queryAllPublications = `
query GetAllPublications {
	getAllPublications {
		slug
		name
		bio
		profileImageURL
		numArticles
		shoutouts
	}
}`

const queryAllOrganizations = `
query GetAllOrganizations {
	getAllOrganizations {
		slug
		name
		categorySlug
		shoutouts
	}
}`

const queryArticlesBySlugs = `
query GetArticlesByPublicationSlugs($slugs: [String!]!, $limit: Float, $offset: Float, $since: String, $until: String) {
	getArticlesByPublicationSlugs(slugs: $slugs, limit: $limit, offset: $offset, since: $since, until: $until) {
		...ArticleFields
	}
}` + articleFields

const queryMagazinesBySlugs = `
query GetMagazinesByPublicationSlugs($slugs: [String!]!, $limit: Float, $offset: Float, $semester: String) {
	getMagazinesByPublicationSlugs(slugs: $slugs, limit: $limit, offset: $offset, semester: $semester) {
		...MagazineFields
	}
}` + magazineFields

const queryFlyersBySlugs = `
query GetFlyersByOrganizationSlugs($slugs: [String!]!, $limit: Float, $offset: Float, $since: String, $until: String) {
	getFlyersByOrganizationSlugs(slugs: $slugs, limit: $limit, offset: $offset, since: $since, until: $until) {
		...FlyerFields
	}
}` + flyerFields

const queryArticlesByIDs = `
query GetArticlesByIDs($ids: [String!]!) {
	getArticlesByIDs(ids: $ids) {
		...ArticleFields
	}
}` + articleFields

const queryMagazinesByIDs = `
query GetMagazinesByIDs($ids: [String!]!) {
	getMagazinesByIDs(ids: $ids) {
		...MagazineFields
	}
}` + magazineFields

const queryFlyersByIDs = `
query GetFlyersByIDs($ids: [String!]!) {
	getFlyersByIDs(ids: $ids) {
		...FlyerFields
	}
}` + flyerFields

const queryWeeklyDebrief = `
query GetWeeklyDebrief($uuid: String!) {
	getUser(uuid: $uuid) {
		weeklyDebrief {
			creationDate
			expirationDate
			numShoutouts
			numBookmarks
			numReads
			readArticles { id }
			randomArticles { id }
		}
	}
}`

type mutationDoc struct {
	operation string
	document  string
	field     string
	vars      map[string]any
}

func mutationFor(m domain.Mutation) (mutationDoc, error) {
	switch m.Action {
	case domain.ActionCreateUser:
		return mutationDoc{
			operation: "CreateUser",
			document: `mutation CreateUser($deviceToken: String!, $followedPublicationSlugs: [String!]!) {
	createUser(deviceToken: $deviceToken, followedPublicationSlugs: $followedPublicationSlugs) { uuid }
}`,
			field: "createUser",
			vars:  map[string]any{"deviceToken": m.DeviceID, "followedPublicationSlugs": nonNil(m.Slugs)},
		}, nil

	case domain.ActionIncrementShoutouts:
		if m.ContentType == domain.ContentMagazine {
			return mutationDoc{
				operation: "IncrementMagazineShoutouts",
				document: `mutation IncrementMagazineShoutouts($id: String!, $uuid: String!) {
	incrementMagazineShoutouts(id: $id, uuid: $uuid) { id shoutouts }
}`,
				field: "incrementMagazineShoutouts",
				vars:  map[string]any{"id": m.ID, "uuid": m.UUID},
			}, nil
		}
		return mutationDoc{
			operation: "IncrementShoutouts",
			document: `mutation IncrementShoutouts($id: String!, $uuid: String!) {
	incrementShoutouts(id: $id, uuid: $uuid) { id shoutouts }
}`,
			field: "incrementShoutouts",
			vars:  map[string]any{"id": m.ID, "uuid": m.UUID},
		}, nil

	case domain.ActionIncrementClicks:
		return mutationDoc{
			operation: "IncrementClicks",
			document: `mutation IncrementClicks($id: String!) {
	incrementTimesClicked(id: $id) { id timesClicked }
}`,
			field: "incrementTimesClicked",
			vars:  map[string]any{"id": m.ID},
		}, nil

	case domain.ActionFollowPublication, domain.ActionUnfollowPublication,
		domain.ActionFollowOrganization, domain.ActionUnfollowOrganization:
		field := string(m.Action)
		return mutationDoc{
			operation: upperFirst(field),
			document: fmt.Sprintf(`mutation %s($slug: String!, $uuid: String!) {
	%s(slug: $slug, uuid: $uuid) { uuid }
}`, upperFirst(field), field),
			field: field,
			vars:  map[string]any{"slug": m.Slug, "uuid": m.UUID},
		}, nil

	case domain.ActionBookmarkArticle:
		return mutationDoc{
			operation: "BookmarkArticle",
			document: `mutation BookmarkArticle($uuid: String!) {
	bookmarkArticle(uuid: $uuid) { uuid }
}`,
			field: "bookmarkArticle",
			vars:  map[string]any{"uuid": m.UUID},
		}, nil

	case domain.ActionReadArticle:
		return mutationDoc{
			operation: "ReadArticle",
			document: `mutation ReadArticle($articleID: String!, $uuid: String!) {
	readArticle(articleID: $articleID, uuid: $uuid) { uuid }
}`,
			field: "readArticle",
			vars:  map[string]any{"articleID": m.ID, "uuid": m.UUID},
		}, nil
	}
	return mutationDoc{}, fmt.Errorf("unsupported mutation %q", m.Action)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
