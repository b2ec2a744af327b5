package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tomnomnom/linkheader"

	"github.com/golden-vcr/openapi-go/hmac"
)

// EntitiesPath is the path, relative to the base URL, under which entity tables are
// served
const EntitiesPath = "/openapi/v1/entities"

const DefaultTimeout = 30 * time.Second

type Config struct {
	// BaseURL is the scheme, host, and optional path prefix of the API server
	BaseURL   string
	AppId     string
	AppSecret string

	// Timeout bounds each call, including reading the response; it's ignored if
	// HTTPClient is set
	Timeout    time.Duration
	HTTPClient *http.Client

	SignerOptions []hmac.SignerOption
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	signer  hmac.Signer
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, &hmac.ConfigurationError{Field: "base URL"}
	}
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, &hmac.ConfigurationError{Field: "base URL", Err: fmt.Errorf("'%s' is not an absolute URL", cfg.BaseURL)}
	}
	baseURL.Path = strings.TrimRight(baseURL.Path, "/")
	baseURL.RawPath = ""
	baseURL.RawQuery = ""

	cred, err := hmac.NewCredential(cfg.AppId, cfg.AppSecret)
	if err != nil {
		return nil, err
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		signer:  hmac.NewSigner(cred, cfg.SignerOptions...),
	}, nil
}

// ListParams selects a page of records. Filters require the named field to equal the
// given value.
type ListParams struct {
	Page     int
	PageSize int
	Filters  map[string]string
}

func (p ListParams) query() map[string]string {
	q := make(map[string]string, len(p.Filters)+2)
	for k, v := range p.Filters {
		q[k] = v
	}
	if p.Page > 0 {
		q["page"] = strconv.Itoa(p.Page)
	}
	if p.PageSize > 0 {
		q["pageSize"] = strconv.Itoa(p.PageSize)
	}
	return q
}

func tablePath(table string) string {
	return EntitiesPath + "/" + table
}

func recordPath(table string, id int64) string {
	return tablePath(table) + "/" + strconv.FormatInt(id, 10)
}

func (c *Client) List(ctx context.Context, table string, params ListParams) (*Response, error) {
	return c.Do(ctx, http.MethodGet, tablePath(table), params.query(), nil)
}

func (c *Client) Get(ctx context.Context, table string, id int64) (*Response, error) {
	return c.Do(ctx, http.MethodGet, recordPath(table, id), nil, nil)
}

func (c *Client) Create(ctx context.Context, table string, payload any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, tablePath(table), nil, payload)
}

func (c *Client) Update(ctx context.Context, table string, id int64, payload any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, recordPath(table, id), nil, payload)
}

func (c *Client) Delete(ctx context.Context, table string, id int64) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, recordPath(table, id), nil, nil)
}

// Do issues a signed call to path, relative to the base URL. The path is unescaped, as
// in url.URL.Path. A nil payload is sent as an empty body; anything else is
// JSON-encoded.
func (c *Client) Do(ctx context.Context, method, path string, query map[string]string, payload any) (*Response, error) {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, &hmac.EncodingError{Err: err}
		}
	}

	u := *c.baseURL
	u.Path += path
	u.RawQuery = hmac.CanonicalQuery(query)

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, &hmac.EncodingError{Err: err}
	}
	if len(body) > 0 {
		req.Header.Set("content-type", "application/json")
	}
	req.Header.Set("accept", "application/json")
	if _, err := c.signer.Sign(req, body); err != nil {
		return nil, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Method: method, Path: u.Path, Err: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &TransportError{Method: method, Path: u.Path, Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, parseAPIError(res.StatusCode, data)
	}

	r := &Response{Code: res.StatusCode, body: data}
	if len(data) > 0 {
		if err := json.Unmarshal(data, r); err != nil {
			return nil, &TransportError{Method: method, Path: u.Path, Err: fmt.Errorf("failed to decode response envelope: %w", err)}
		}
	}
	if link := res.Header.Get("link"); link != "" {
		r.Links = linkheader.Parse(link)
	}
	return r, nil
}
