// Package graphql implements domain.ContentGateway against the Volume
// GraphQL API.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/blackmichael/volume/internal/domain"
	"golang.org/x/time/rate"
)

const (
	defaultEndpoint = "http://localhost:3000/graphql"
	defaultTimeout  = 30 * time.Second
)

// Client is a GraphQL-over-HTTPS content gateway.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ domain.ContentGateway = (*Client)(nil)

// Config configures a Client. Zero values select defaults.
type Config struct {
	Endpoint string
	Timeout  time.Duration

	// RequestsPerSecond throttles outgoing requests. Zero disables throttling.
	RequestsPerSecond float64
	Burst             int

	// HTTPClient overrides the default client, mainly for tests.
	HTTPClient *http.Client
}

// NewClient creates a new GraphQL client.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		httpClient: httpClient,
		limiter:    limiter,
	}
}

// FetchPublications returns every publication.
func (c *Client) FetchPublications(ctx context.Context) ([]domain.Publication, error) {
	var data struct {
		Publications []publicationJSON `json:"getAllPublications"`
	}
	if err := c.do(ctx, "GetAllPublications", queryAllPublications, nil, &data); err != nil {
		return nil, err
	}

	pubs := make([]domain.Publication, len(data.Publications))
	for i, p := range data.Publications {
		pubs[i] = p.toDomain()
	}
	return pubs, nil
}

// FetchOrganizations returns every organization.
func (c *Client) FetchOrganizations(ctx context.Context) ([]domain.Organization, error) {
	var data struct {
		Organizations []organizationJSON `json:"getAllOrganizations"`
	}
	if err := c.do(ctx, "GetAllOrganizations", queryAllOrganizations, nil, &data); err != nil {
		return nil, err
	}

	orgs := make([]domain.Organization, len(data.Organizations))
	for i, o := range data.Organizations {
		orgs[i] = o.toDomain()
	}
	return orgs, nil
}

// FetchPage returns one page of content matching filter. A filter with IDs
// is answered by FetchByID.
func (c *Client) FetchPage(ctx context.Context, t domain.ContentType, filter domain.Filter, page domain.Page) ([]domain.ContentItem, error) {
	if len(filter.IDs) > 0 {
		return c.FetchByID(ctx, t, filter.IDs)
	}

	slugs := filter.Slugs
	if filter.OrganizationSlug != "" {
		slugs = append(append([]string(nil), slugs...), filter.OrganizationSlug)
	}
	vars := map[string]any{
		"slugs":  nonNil(slugs),
		"limit":  page.Limit,
		"offset": page.Offset,
	}
	if filter.Semester != "" {
		vars["semester"] = filter.Semester
	}
	if !filter.Since.IsZero() {
		vars["since"] = filter.Since.UTC().Format(time.RFC3339)
	}
	if !filter.Until.IsZero() {
		vars["until"] = filter.Until.UTC().Format(time.RFC3339)
	}

	switch t {
	case domain.ContentArticle:
		var data struct {
			Articles []articleJSON `json:"getArticlesByPublicationSlugs"`
		}
		if err := c.do(ctx, "GetArticlesByPublicationSlugs", queryArticlesBySlugs, vars, &data); err != nil {
			return nil, err
		}
		return articlesToItems(data.Articles), nil

	case domain.ContentMagazine:
		var data struct {
			Magazines []magazineJSON `json:"getMagazinesByPublicationSlugs"`
		}
		if err := c.do(ctx, "GetMagazinesByPublicationSlugs", queryMagazinesBySlugs, vars, &data); err != nil {
			return nil, err
		}
		return magazinesToItems(data.Magazines), nil

	case domain.ContentFlyer:
		var data struct {
			Flyers []flyerJSON `json:"getFlyersByOrganizationSlugs"`
		}
		if err := c.do(ctx, "GetFlyersByOrganizationSlugs", queryFlyersBySlugs, vars, &data); err != nil {
			return nil, err
		}
		return flyersToItems(data.Flyers), nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownContentType, t)
}

// FetchByID returns the items with the given ids.
func (c *Client) FetchByID(ctx context.Context, t domain.ContentType, ids []string) ([]domain.ContentItem, error) {
	vars := map[string]any{"ids": nonNil(ids)}

	switch t {
	case domain.ContentArticle:
		var data struct {
			Articles []articleJSON `json:"getArticlesByIDs"`
		}
		if err := c.do(ctx, "GetArticlesByIDs", queryArticlesByIDs, vars, &data); err != nil {
			return nil, err
		}
		return articlesToItems(data.Articles), nil

	case domain.ContentMagazine:
		var data struct {
			Magazines []magazineJSON `json:"getMagazinesByIDs"`
		}
		if err := c.do(ctx, "GetMagazinesByIDs", queryMagazinesByIDs, vars, &data); err != nil {
			return nil, err
		}
		return magazinesToItems(data.Magazines), nil

	case domain.ContentFlyer:
		var data struct {
			Flyers []flyerJSON `json:"getFlyersByIDs"`
		}
		if err := c.do(ctx, "GetFlyersByIDs", queryFlyersByIDs, vars, &data); err != nil {
			return nil, err
		}
		return flyersToItems(data.Flyers), nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownContentType, t)
}

// Mutate sends a single mutation.
func (c *Client) Mutate(ctx context.Context, m domain.Mutation) (domain.Ack, error) {
	doc, err := mutationFor(m)
	if err != nil {
		return domain.Ack{}, err
	}

	var data map[string]*ackJSON
	if err := c.do(ctx, doc.operation, doc.document, doc.vars, &data); err != nil {
		return domain.Ack{}, err
	}

	res := data[doc.field]
	if res == nil {
		return domain.Ack{}, &domain.EmptyResultError{What: doc.field}
	}
	return res.toDomain(), nil
}

// FetchWeeklyDebrief returns the user's weekly debrief, or nil if the server
// has not generated one.
func (c *Client) FetchWeeklyDebrief(ctx context.Context, uuid string) (*domain.WeeklyDebrief, error) {
	var data struct {
		User *struct {
			WeeklyDebrief *debriefJSON `json:"weeklyDebrief"`
		} `json:"getUser"`
	}
	if err := c.do(ctx, "GetWeeklyDebrief", queryWeeklyDebrief, map[string]any{"uuid": uuid}, &data); err != nil {
		return nil, err
	}
	if data.User == nil || data.User.WeeklyDebrief == nil {
		return nil, nil
	}
	return data.User.WeeklyDebrief.toDomain(), nil
}

// do sends a GraphQL operation and decodes its data into result. Transport
// and HTTP failures become NetworkTransportError; a non-empty errors list
// becomes GraphQLResponseError.
func (c *Client) do(ctx context.Context, operation, document string, vars map[string]any, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return &domain.NetworkTransportError{Op: operation, Err: err}
	}

	payload, err := json.Marshal(request{Query: document, OperationName: operation, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.NetworkTransportError{Op: operation, Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.NetworkTransportError{Op: operation, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &domain.NetworkTransportError{
			Op:  operation,
			Err: fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(string(respBody), 200)),
		}
	}

	var envelope response
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("%s: unmarshal response: %w", operation, err)
	}

	if len(envelope.Errors) > 0 {
		msgs := make([]string, len(envelope.Errors))
		for i, e := range envelope.Errors {
			msgs[i] = e.Message
		}
		return &domain.GraphQLResponseError{Op: operation, Messages: msgs}
	}

	if result != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, result); err != nil {
			return fmt.Errorf("%s: unmarshal data: %w", operation, err)
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}
