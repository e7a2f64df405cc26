package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/totegamma/graphdoc"
	"github.com/totegamma/graphdoc/schemas"
)

const (
	defaultTimeout = 3 * time.Second
	maxPages       = 1000
)

type Client struct {
	client    *http.Client
	cache     *cache.Cache
	transport http.RoundTripper
	userAgent string
	baseURL   string
}

type Option func(*Client)

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = timeout
	}
}

// WithTransport replaces the transport requests are sent through.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = transport
	}
}

func New(baseURL string, opts ...Option) *Client {
	httpClient := http.Client{
		Timeout: defaultTimeout,
	}

	c := &Client{
		client:    &httpClient,
		cache:     cache.New(10*time.Minute, 15*time.Minute),
		userAgent: "graphdoc-client",
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}
	httpClient.Transport = c
	return c
}

func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", graphdoc.MediaType)
	}
	return c.transport.RoundTrip(req)
}

// APIError is a non-success response, with the error objects the server sent.
type APIError struct {
	StatusCode int
	Errors     []graphdoc.ErrorObject
}

func (e *APIError) Error() string {
	if len(e.Errors) > 0 && e.Errors[0].Detail != "" {
		return fmt.Sprintf("unexpected status code: %d: %s", e.StatusCode, e.Errors[0].Detail)
	}
	return fmt.Sprintf("unexpected status code: %d", e.StatusCode)
}

type WellKnown struct {
	Version   string             `json:"version"`
	BaseURL   string             `json:"baseURL"`
	MediaType string             `json:"mediaType"`
	Types     []schemas.Endpoint `json:"types"`
}

func (c *Client) WellKnown(ctx context.Context) (WellKnown, error) {
	cacheKey := "wellknown:" + c.baseURL
	if x, found := c.cache.Get(cacheKey); found {
		return x.(WellKnown), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/.well-known/graphdoc", nil)
	if err != nil {
		return WellKnown{}, errors.Wrap(err, "failed to create request")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return WellKnown{}, errors.Wrap(err, "failed to perform request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return WellKnown{}, apiError(resp)
	}

	var wk WellKnown
	if err := json.NewDecoder(resp.Body).Decode(&wk); err != nil {
		return WellKnown{}, errors.Wrap(err, "failed to decode well-known")
	}
	c.cache.Set(cacheKey, wk, cache.DefaultExpiration)
	return wk, nil
}

// Get fetches one resource of a collection.
func (c *Client) Get(ctx context.Context, collection, id string) (*graphdoc.Document, error) {
	return c.Fetch(ctx, graphdoc.ComposeSelfURL(c.baseURL, "/"+collection, id))
}

// List fetches the first page of a collection.
func (c *Client) List(ctx context.Context, collection string, query url.Values) (*graphdoc.Document, error) {
	return c.Fetch(ctx, graphdoc.ComposeCollectionURL(c.baseURL, "/"+collection, query.Encode()))
}

// Pages calls fn for every page of a collection, following links.next until
// an empty page or a page without a next link.
func (c *Client) Pages(ctx context.Context, collection string, query url.Values, fn func(*graphdoc.Document) error) error {
	next := graphdoc.ComposeCollectionURL(c.baseURL, "/"+collection, query.Encode())
	seen := map[string]bool{}

	for i := 0; next != "" && i < maxPages; i++ {
		if seen[next] {
			return errors.Errorf("pagination loop at %s", next)
		}
		seen[next] = true

		doc, err := c.Fetch(ctx, next)
		if err != nil {
			return err
		}
		if len(doc.Resources()) == 0 {
			return nil
		}
		if err := fn(doc); err != nil {
			return err
		}

		next = ""
		if doc.Links != nil {
			next = doc.Links.Next
		}
	}
	return nil
}

type cachedDocument struct {
	etag string
	doc  *graphdoc.Document
}

// Fetch retrieves the document at rawURL. Responses carrying an ETag are
// cached and revalidated with If-None-Match.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*graphdoc.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	cacheKey := "document:" + rawURL
	var cached *cachedDocument
	if x, found := c.cache.Get(cacheKey); found {
		cached = x.(*cachedDocument)
		req.Header.Set("If-None-Match", cached.etag)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to perform request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && cached != nil {
		return cached.doc, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var doc graphdoc.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "failed to decode document")
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		c.cache.Set(cacheKey, &cachedDocument{etag: etag, doc: &doc}, cache.DefaultExpiration)
	}
	return &doc, nil
}

func apiError(resp *http.Response) error {
	out := &APIError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err == nil {
		var doc graphdoc.ErrorDocument
		if json.Unmarshal(body, &doc) == nil {
			out.Errors = doc.Errors
		}
	}
	return out
}
