// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package remote

import "net/http"

// ErrorClassifier decides whether an unsuccessful response is a hard
// failure or a benign outcome that should complete silently.
type ErrorClassifier interface {
	IsError(resp *Response) bool
}

// ClassifierFunc adapts a function to ErrorClassifier.
type ClassifierFunc func(resp *Response) bool

// IsError implements ErrorClassifier.
func (f ClassifierFunc) IsError(resp *Response) bool { return f(resp) }

// DefaultClassifier treats 304 and 409 as benign and every other non-2xx
// status as an error. 409 is what the tracking service returns
// when an item is already in the requested state.
var DefaultClassifier ErrorClassifier = ClassifierFunc(func(resp *Response) bool {
	if resp == nil {
		return true
	}
	switch resp.StatusCode {
	case http.StatusNotModified, http.StatusConflict:
		return false
	}
	return resp.StatusCode < 200 || resp.StatusCode > 299
})
