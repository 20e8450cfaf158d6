package gateway

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type (
	// Request describes a call to the API. Path is relative to the gateway's base URL.
	Request struct {
		Method string
		Path   string
		Query  url.Values
		Body   interface{} // encoded as JSON, nil for no body
		Header http.Header
	}

	Response struct {
		StatusCode int
		Header     http.Header
		Body       []byte
	}

	// pendingRequest is an in-flight call. It is never mutated: the retry uses a copy.
	pendingRequest struct {
		id      string
		method  string
		url     string
		header  http.Header
		body    []byte
		retried bool
	}
)

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v interface{}) error {
	if v == nil || len(r.Body) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(r.Body, v), "decoding response body")
}

func newPendingRequest(base *url.URL, r Request) (pendingRequest, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	ref := &url.URL{Path: strings.TrimPrefix(r.Path, "/")}
	if len(r.Query) > 0 {
		ref.RawQuery = r.Query.Encode()
	}

	var body []byte
	if r.Body != nil {
		var err error
		if body, err = json.Marshal(r.Body); err != nil {
			return pendingRequest{}, errors.Wrap(err, "encoding request body")
		}
	}

	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set("Accept", "application/json")
	if body != nil {
		header.Set("Content-Type", "application/json")
	}

	return pendingRequest{
		id:     uuid.NewString(),
		method: method,
		url:    base.ResolveReference(ref).String(),
		header: header,
		body:   body,
	}, nil
}

func (pr pendingRequest) markRetried() pendingRequest {
	pr.retried = true
	return pr
}
