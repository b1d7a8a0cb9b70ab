package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// DeepLink identifies a single content item from an incoming URL.
type DeepLink struct {
	ContentType ContentType
	ID          string
}

// ParseDeepLink accepts links of the form volume://article?id=X as well as
// any URL carrying contentType (or type) and id query parameters.
func ParseDeepLink(raw string) (DeepLink, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return DeepLink{}, fmt.Errorf("%w: %v", ErrInvalidDeepLink, err)
	}

	q := u.Query()
	typ := q.Get("contentType")
	if typ == "" {
		typ = q.Get("type")
	}
	if typ == "" && u.Scheme == "volume" {
		typ = u.Host
	}

	t, err := ParseContentType(strings.ToLower(typ))
	if err != nil {
		return DeepLink{}, fmt.Errorf("%w: %v", ErrInvalidDeepLink, err)
	}

	id := q.Get("id")
	if id == "" {
		return DeepLink{}, fmt.Errorf("%w: missing id", ErrInvalidDeepLink)
	}
	return DeepLink{ContentType: t, ID: id}, nil
}
