package domain

import "context"

// ContentGateway is the remote content API.
type ContentGateway interface {
	// FetchPublications returns every publication known to the server.
	FetchPublications(ctx context.Context) ([]Publication, error)

	// FetchOrganizations returns every organization known to the server.
	FetchOrganizations(ctx context.Context) ([]Organization, error)

	// FetchPage returns one page of content of the given type matching filter.
	// Results are in server order, typically newest first.
	FetchPage(ctx context.Context, t ContentType, filter Filter, page Page) ([]ContentItem, error)

	// FetchByID returns the items with the given ids. Unknown ids are skipped.
	FetchByID(ctx context.Context, t ContentType, ids []string) ([]ContentItem, error)

	// Mutate sends a single mutation to the server.
	Mutate(ctx context.Context, m Mutation) (Ack, error)

	// FetchWeeklyDebrief returns the debrief for the given user, or nil if
	// the server has none.
	FetchWeeklyDebrief(ctx context.Context, uuid string) (*WeeklyDebrief, error)
}

// KeyValueStore is durable key/value storage for local preferences. Writes
// must be durable before Set or Delete returns.
type KeyValueStore interface {
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

// MutationAction names a server mutation.
type MutationAction string

const (
	ActionCreateUser           MutationAction = "createUser"
	ActionIncrementShoutouts   MutationAction = "incrementShoutouts"
	ActionIncrementClicks      MutationAction = "incrementClicks"
	ActionFollowPublication    MutationAction = "followPublication"
	ActionUnfollowPublication  MutationAction = "unfollowPublication"
	ActionFollowOrganization   MutationAction = "followOrganization"
	ActionUnfollowOrganization MutationAction = "unfollowOrganization"
	ActionBookmarkArticle      MutationAction = "bookmarkArticle"
	ActionReadArticle          MutationAction = "readArticle"
)

// Mutation is a single write sent to the server. Only the fields relevant to
// Action are read.
type Mutation struct {
	Action      MutationAction
	ContentType ContentType
	ID          string
	Slug        string
	UUID        string
	DeviceID    string
	Slugs       []string
}

// Ack is the server acknowledgement of a mutation. ID carries the created or
// affected entity id, Count the updated counter when the server returns one.
type Ack struct {
	ID    string
	Count int
}
