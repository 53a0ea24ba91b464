/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package qbsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Page represents a paginated list response. QuickBlox uses two envelopes:
// chat resources page with skip/limit, users page with current_page/per_page.
type Page struct {
	Items        []json.RawMessage `json:"items"`
	TotalEntries int               `json:"total_entries"`
	Skip         int               `json:"skip"`
	Limit        int               `json:"limit"`
	CurrentPage  int               `json:"current_page"`
	PerPage      int               `json:"per_page"`
	HasNext      bool              `json:"-"`
	HasPrev      bool              `json:"-"`
	Client       *Client           `json:"-"`
	Resource     string            `json:"-"`
	Params       url.Values        `json:"-"`
}

// NewPage creates a new Page from an HTTP response for the resource and
// query parameters that produced it.
func NewPage(resp *http.Response, client *Client, resource string, params url.Values) (*Page, error) {
	page := &Page{
		Client:   client,
		Resource: resource,
		Params:   params,
	}

	if err := ParseResponse(resp, page); err != nil {
		return nil, err
	}

	switch {
	case page.Limit > 0:
		page.HasNext = page.Skip+len(page.Items) < page.TotalEntries
		page.HasPrev = page.Skip > 0
	case page.PerPage > 0:
		page.HasNext = page.CurrentPage*page.PerPage < page.TotalEntries
		page.HasPrev = page.CurrentPage > 1
	}

	return page, nil
}

// Next retrieves the next page of results.
func (p *Page) Next() (*Page, error) {
	if !p.HasNext {
		return nil, fmt.Errorf("no next page")
	}
	return p.fetch(1)
}

// Prev retrieves the previous page of results.
func (p *Page) Prev() (*Page, error) {
	if !p.HasPrev {
		return nil, fmt.Errorf("no previous page")
	}
	return p.fetch(-1)
}

func (p *Page) fetch(dir int) (*Page, error) {
	params := url.Values{}
	for k, v := range p.Params {
		params[k] = append([]string(nil), v...)
	}

	if p.Limit > 0 {
		skip := p.Skip + dir*p.Limit
		if skip < 0 {
			skip = 0
		}
		params.Set("skip", strconv.Itoa(skip))
		params.Set("limit", strconv.Itoa(p.Limit))
	} else {
		params.Set("page", strconv.Itoa(p.CurrentPage+dir))
		params.Set("per_page", strconv.Itoa(p.PerPage))
	}

	resp, err := p.Client.RequestWithRetry(context.Background(), http.MethodGet, p.Resource, params, nil)
	if err != nil {
		return nil, err
	}

	return NewPage(resp, p.Client, p.Resource, params)
}
