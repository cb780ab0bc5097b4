// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package actions

import (
	"context"
	"errors"
	"net/http"

	"github.com/tomtom215/episodic/internal/remote"
)

// Caller executes remote requests. *remote.Client implements it.
type Caller interface {
	Do(ctx context.Context, req remote.Request) (*remote.Response, error)
}

// Permits is a shared rate limiter. *remote.Limiter implements it.
type Permits interface {
	Acquire(ctx context.Context) error
}

// CallAction performs one remote call.
//
// A 2xx response with a body is passed to Handle; one without a body
// completes with the zero result. Any other response is checked with
// Classifier: an error fails the action, anything else completes it
// silently with the zero result. When Limiter is set a permit is acquired
// before every call.
type CallAction[P, R any] struct {
	Name       string
	Client     Caller
	Limiter    Permits
	Classifier remote.ErrorClassifier

	// KeyParams returns the key/value pairs that identify params.
	KeyParams func(params P) []interface{}

	Request func(params P) (remote.Request, error)
	Handle  func(ctx context.Context, params P, resp *remote.Response) (R, error)
}

// Key implements Action.
func (a *CallAction[P, R]) Key(params P) string {
	if a.KeyParams == nil {
		return Key(a.Name)
	}
	return Key(a.Name, a.KeyParams(params)...)
}

// Execute implements Action.
func (a *CallAction[P, R]) Execute(ctx context.Context, params P) (R, error) {
	var zero R

	req, err := a.Request(params)
	if err != nil {
		return zero, err
	}
	resp, err := callRemote(ctx, a.Client, a.Limiter, req)
	if err != nil {
		return zero, err
	}
	if !resp.Success {
		if isError(a.Classifier, resp) {
			return zero, Failed(remote.NewStatusError(resp))
		}
		return zero, nil
	}
	if a.Handle == nil || noContent(resp) {
		return zero, nil
	}
	return a.Handle(ctx, params, resp)
}

func callRemote(ctx context.Context, client Caller, limiter Permits, req remote.Request) (*remote.Response, error) {
	if limiter != nil {
		if err := limiter.Acquire(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, Failed(err)
		}
	}
	resp, err := client.Do(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, Failed(err)
	}
	return resp, nil
}

// noContent reports a successful response that carries nothing to handle.
func noContent(resp *remote.Response) bool {
	return resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0
}

func isError(c remote.ErrorClassifier, resp *remote.Response) bool {
	if c == nil {
		c = remote.DefaultClassifier
	}
	return c.IsError(resp)
}
