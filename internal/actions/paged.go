// Episodic - Personal Media Tracking and Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/episodic

package actions

import (
	"context"

	"github.com/tomtom215/episodic/internal/remote"
)

// PagedAction walks a paged endpoint from page 1 until the page count
// reported by the server is reached or a page comes back without a body.
// Cancellation of the execution context is checked between pages; a page
// in progress always completes. OnDone runs only when the walk was not
// cancelled or failed. The result is the number of pages handled.
type PagedAction[P any] struct {
	Name       string
	Client     Caller
	Limiter    Permits
	Classifier remote.ErrorClassifier

	KeyParams func(params P) []interface{}

	Request    func(params P, page int) (remote.Request, error)
	HandlePage func(ctx context.Context, params P, page int, resp *remote.Response) error
	OnDone     func(ctx context.Context, params P) error
}

// Key implements Action.
func (a *PagedAction[P]) Key(params P) string {
	if a.KeyParams == nil {
		return Key(a.Name)
	}
	return Key(a.Name, a.KeyParams(params)...)
}

// Execute implements Action.
func (a *PagedAction[P]) Execute(ctx context.Context, params P) (int, error) {
	handled := 0
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return handled, err
		}

		req, err := a.Request(params, page)
		if err != nil {
			return handled, err
		}
		resp, err := callRemote(ctx, a.Client, a.Limiter, req)
		if err != nil {
			return handled, err
		}
		if !resp.Success {
			if isError(a.Classifier, resp) {
				return handled, Failed(remote.NewStatusError(resp))
			}
			// A benign status ends the walk as if the last page was seen.
			break
		}
		if noContent(resp) {
			break
		}

		if a.HandlePage != nil {
			if err := a.HandlePage(ctx, params, page, resp); err != nil {
				return handled, err
			}
		}
		handled++

		if page >= resp.PageCount() {
			break
		}
	}

	if a.OnDone != nil {
		if err := a.OnDone(ctx, params); err != nil {
			return handled, err
		}
	}
	return handled, nil
}
