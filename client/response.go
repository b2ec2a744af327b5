package client

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tomnomnom/linkheader"
)

// Response is a decoded response envelope
type Response struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Total   *int64          `json:"total,omitempty"`

	// Links holds the pagination links returned by List
	Links linkheader.Links `json:"-"`

	body []byte
}

// Get returns the value at path within the raw response body, in gjson path syntax
// (e.g. "data.0.name")
func (r *Response) Get(path string) gjson.Result {
	return gjson.GetBytes(r.body, path)
}

// Decode unmarshals the envelope's data into v
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return fmt.Errorf("response has no data")
	}
	return json.Unmarshal(r.Data, v)
}

// NextPage returns the page number of the next page of results, if the response has a
// "next" link
func (r *Response) NextPage() (int, bool) {
	for _, link := range r.Links.FilterByRel("next") {
		u, err := url.Parse(link.URL)
		if err != nil {
			continue
		}
		if page, err := strconv.Atoi(u.Query().Get("page")); err == nil {
			return page, true
		}
	}
	return 0, false
}
