// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package remote

import (
	"fmt"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// PageCountHeader carries the total number of pages of a paged endpoint.
const PageCountHeader = "X-Pagination-Page-Count"

// Response is the outcome of a completed HTTP exchange.
type Response struct {
	Success    bool
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v interface{}) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// PageCount returns the total page count reported by the server, or 1 when
// the header is missing or malformed.
func (r *Response) PageCount() int {
	n, err := strconv.Atoi(r.Header.Get(PageCountHeader))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// StatusError describes a response that was classified as a failure.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// maxErrorBody bounds the response body kept in a StatusError.
const maxErrorBody = 256

// NewStatusError builds a StatusError from resp, truncating the body on
// a rune boundary.
func NewStatusError(resp *Response) *StatusError {
	body := resp.Body
	if len(body) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
}
