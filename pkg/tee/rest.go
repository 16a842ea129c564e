package tee

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/openadeia/teesync/pkg/permit"
	"github.com/openadeia/teesync/pkg/whttp"
	"github.com/tidwall/gjson"
)

const SOURCE_REST = "rest"

var listWrappers = []string{"items", "content", "data", "aitiseis"}

var errNoJSONEndpoint = errors.New("no REST endpoint answered with JSON")

// restStrategy probes the JSON endpoints some portal deployments expose.
type restStrategy struct {
	c *Client
}

func (s *restStrategy) Name() string { return SOURCE_REST }

func (s *restStrategy) List(ctx context.Context, run *Run) ([]permit.RawRecord, error) {
	var lastErr error
	for _, path := range s.c.cfg.ListPaths {
		res, err := s.get(ctx, run, s.c.cfg.PortalURL+path)
		if err != nil {
			lastErr = err
			continue
		}
		if !isJSONSuccess(res) {
			continue
		}
		items, err := ItemsFromBody(res.BodyString, SOURCE_REST)
		if err != nil {
			lastErr = err
			continue
		}
		return items, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", errNoJSONEndpoint, lastErr)
	}
	return nil, errNoJSONEndpoint
}

func (s *restStrategy) Lookup(ctx context.Context, run *Run, permitCode string) (*permit.RawRecord, error) {
	var lastErr error
	answered := false
	for _, path := range s.c.cfg.DetailPaths {
		res, err := s.get(ctx, run, s.c.cfg.PortalURL+path+escapeCode(permitCode))
		if err != nil {
			lastErr = err
			continue
		}
		// A redirect here means the session was sent back to the SSO.
		if !res.IsSuccess() && res.StatusCode != http.StatusNotFound {
			lastErr = fmt.Errorf("detail endpoint %s returned status %d", path, res.StatusCode)
			continue
		}
		answered = true
		if !isJSONSuccess(res) {
			continue
		}
		body := gjson.Parse(res.BodyString)
		if !body.IsObject() {
			continue
		}
		rec := permit.RawRecord{Source: SOURCE_REST, Body: body.Raw}
		if !describesPermit(permit.Normalize(rec), permitCode) {
			continue
		}
		return &rec, nil
	}
	if !answered && lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

// describesPermit reports whether a detail answer is the record of
// permitCode and not an error object or another permit.
func describesPermit(app permit.Application, permitCode string) bool {
	if app.PermitCode != "" {
		return app.PermitCode == strings.TrimSpace(permitCode)
	}
	return app.StatusText != "" || app.StatusCode != ""
}

func (s *restStrategy) get(ctx context.Context, run *Run, target string) (*whttp.WHTTPRes, error) {
	return s.c.send(ctx, run, &whttp.WHTTPReq{
		URL:     target,
		Headers: []whttp.WHTTPHeader{{Name: "Accept", Value: "application/json,*/*;q=0.5"}},
	})
}

func isJSONSuccess(res *whttp.WHTTPRes) bool {
	return res.IsSuccess() && strings.Contains(strings.ToLower(res.ContentType()), "json")
}

// ItemsFromBody returns the application objects of a list response: either
// a top-level array or an array under one of the usual wrapper keys.
func ItemsFromBody(body, source string) ([]permit.RawRecord, error) {
	if !gjson.Valid(body) {
		return nil, errors.New("invalid JSON in list response")
	}
	root := gjson.Parse(body)
	list := root
	if !root.IsArray() {
		list = gjson.Result{}
		for _, key := range listWrappers {
			if v := root.Get(key); v.IsArray() {
				list = v
				break
			}
		}
	}

	var out []permit.RawRecord
	list.ForEach(func(_, item gjson.Result) bool {
		if item.IsObject() {
			out = append(out, permit.RawRecord{Source: source, Body: item.Raw})
		}
		return true
	})
	return out, nil
}

// escapeCode escapes each segment of a permit code, keeping the slashes
// that separate year and number.
func escapeCode(code string) string {
	parts := strings.Split(strings.TrimSpace(code), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
