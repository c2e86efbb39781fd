package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/c360/groundlink/errors"
	"github.com/c360/groundlink/pkg/retry"
)

// Alias is a {namespace, name} tag attached to a parameter record.
type Alias struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
}

// Alias namespaces understood by the builder.
const (
	// AliasNamespaceOmit suppresses a parameter from the catalog entirely.
	AliasNamespaceOmit = "groundlink:omit"
	// AliasNamespaceType overrides the inferred telemetry kind; the alias
	// name must be a valid Kind. This is the only route to image telemetry.
	AliasNamespaceType = "groundlink:type"
)

// SpaceSystem is a remote folder-like grouping of parameters.
type SpaceSystem struct {
	Name          string        `json:"name"`
	QualifiedName string        `json:"qualifiedName"`
	Sub           []SpaceSystem `json:"sub,omitempty"`
}

// Member is one named field of an aggregate parameter type.
type Member struct {
	Name string         `json:"name"`
	Type *ParameterType `json:"type,omitempty"`
}

// ParameterType carries the engineering type of a parameter and, for
// aggregates, the member list.
type ParameterType struct {
	EngType string   `json:"engType"`
	Member  []Member `json:"member,omitempty"`
}

// Parameter is a remote leaf telemetry point, possibly of aggregate type.
type Parameter struct {
	Name          string         `json:"name"`
	QualifiedName string         `json:"qualifiedName"`
	Type          *ParameterType `json:"type,omitempty"`
	Alias         []Alias        `json:"alias,omitempty"`
}

// hasAlias reports whether aliases contains a tag in the given namespace,
// returning the tag's name when present.
func hasAlias(aliases []Alias, namespace string) (string, bool) {
	for _, a := range aliases {
		if a.Namespace == namespace {
			return a.Name, true
		}
	}
	return "", false
}

// Source supplies the full metadata collections the builder assembles
// into a dictionary. Implementations follow pagination internally and
// return complete collections.
type Source interface {
	SpaceSystems(ctx context.Context) ([]SpaceSystem, error)
	Parameters(ctx context.Context) ([]Parameter, error)
}

type spaceSystemPage struct {
	SpaceSystems      []SpaceSystem `json:"spaceSystems"`
	ContinuationToken string        `json:"continuationToken,omitempty"`
}

type parameterPage struct {
	Parameters        []Parameter `json:"parameters"`
	ContinuationToken string      `json:"continuationToken,omitempty"`
}

// mdbClient fetches paginated mission-database collections over HTTP.
type mdbClient struct {
	baseURL   string
	instance  string
	pageLimit int
	client    *http.Client
	retry     retry.Config
}

// NewMDBSource returns a Source backed by the server's mission database
// HTTP API at baseURL for the given instance.
func NewMDBSource(baseURL, instance string) Source {
	return &mdbClient{
		baseURL:   baseURL,
		instance:  instance,
		pageLimit: 500,
		client:    &http.Client{Timeout: 30 * time.Second},
		retry:     retry.PageFetch(),
	}
}

// SpaceSystems fetches every space system record, following continuation
// tokens until exhausted.
func (m *mdbClient) SpaceSystems(ctx context.Context) ([]SpaceSystem, error) {
	var all []SpaceSystem
	token := ""
	for {
		page, err := fetchPage[spaceSystemPage](ctx, m, "space-systems", token)
		if err != nil {
			return nil, errors.Wrap(err, "mdbClient", "SpaceSystems", "fetch page")
		}
		all = append(all, page.SpaceSystems...)
		if page.ContinuationToken == "" {
			return all, nil
		}
		token = page.ContinuationToken
	}
}

// Parameters fetches every parameter record, following continuation
// tokens until exhausted.
func (m *mdbClient) Parameters(ctx context.Context) ([]Parameter, error) {
	var all []Parameter
	token := ""
	for {
		page, err := fetchPage[parameterPage](ctx, m, "parameters", token)
		if err != nil {
			return nil, errors.Wrap(err, "mdbClient", "Parameters", "fetch page")
		}
		all = append(all, page.Parameters...)
		if page.ContinuationToken == "" {
			return all, nil
		}
		token = page.ContinuationToken
	}
}

// fetchPage retrieves one page of a collection with bounded retry.
// Server-side 4xx responses are not retried; everything else is treated
// as transient up to the retry budget, after which the error carries
// ErrUpstreamFetch so the whole build aborts.
func fetchPage[T any](ctx context.Context, m *mdbClient, collection, token string) (T, error) {
	result, err := retry.DoWithResult(ctx, m.retry, func() (T, error) {
		return getPage[T](ctx, m, collection, token)
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %s: %v", errors.ErrUpstreamFetch, collection, err)
	}
	return result, nil
}

// getPage performs a single page GET and decodes the JSON body.
func getPage[T any](ctx context.Context, m *mdbClient, collection, token string) (T, error) {
	var zero T

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.pageURL(collection, token), nil)
	if err != nil {
		return zero, retry.NonRetryable(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return zero, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		statusErr := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return zero, retry.NonRetryable(statusErr)
		}
		return zero, statusErr
	}

	var page T
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return zero, retry.NonRetryable(fmt.Errorf("decode response: %w", err))
	}
	return page, nil
}

func (m *mdbClient) pageURL(collection, token string) string {
	u := fmt.Sprintf("%s/api/mdb/%s/%s", m.baseURL, url.PathEscape(m.instance), collection)
	q := url.Values{}
	q.Set("limit", strconv.Itoa(m.pageLimit))
	if token != "" {
		q.Set("next", token)
	}
	return u + "?" + q.Encode()
}
