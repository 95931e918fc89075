// Package registry looks up companies in a business registry over HTTP.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmespath/go-jmespath"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/starford/fiche/internal/apperr"
	"github.com/starford/fiche/internal/models"
)

// Placeholder replaced by the escaped identifier in Config.URL.
const Placeholder = "{id}"

const maxBody = 1 << 20

// Paths are JMESPath expressions evaluated against the registry's JSON reply.
type Paths struct {
	Name       string
	Address    string
	City       string
	PostalCode string
	TaxID      string
}

// Config configures a Client.
type Config struct {
	URL           string
	Token         string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	Paths         Paths
}

// Client is safe for concurrent use.
type Client struct {
	http    *http.Client
	url     string
	token   string
	limiter *rate.Limiter
	group   singleflight.Group

	name, address, city, postalCode, taxID *jmespath.JMESPath
}

// New compiles the configured paths. httpClient may be nil.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	if !strings.Contains(cfg.URL, Placeholder) {
		return nil, fmt.Errorf("registry: url must contain %s", Placeholder)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	c := &Client{
		http:    httpClient,
		url:     cfg.URL,
		token:   cfg.Token,
		limiter: rate.NewLimiter(limit, burst),
	}
	var err error
	for _, p := range []struct {
		dst  **jmespath.JMESPath
		expr string
	}{
		{&c.name, cfg.Paths.Name},
		{&c.address, cfg.Paths.Address},
		{&c.city, cfg.Paths.City},
		{&c.postalCode, cfg.Paths.PostalCode},
		{&c.taxID, cfg.Paths.TaxID},
	} {
		if p.expr == "" {
			continue
		}
		if *p.dst, err = jmespath.Compile(p.expr); err != nil {
			return nil, fmt.Errorf("registry: invalid path %q: %w", p.expr, err)
		}
	}
	if c.name == nil {
		return nil, errors.New("registry: a name path is required")
	}
	return c, nil
}

// Normalize strips the separators people type inside identifiers.
func Normalize(identifier string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '-', '\u00a0':
			return -1
		}
		return r
	}, strings.TrimSpace(identifier))
}

// Lookup returns the company registered under identifier, or nil when the
// registry knows none. Transport and decoding problems wrap
// apperr.ErrLookupFailed. Concurrent lookups of one identifier share a call.
func (c *Client) Lookup(ctx context.Context, identifier string) (*models.CompanyInfo, error) {
	id := Normalize(identifier)
	if id == "" {
		return nil, fmt.Errorf("%w: empty identifier", apperr.ErrInvalid)
	}
	v, err, _ := c.group.Do(id, func() (any, error) {
		return c.fetch(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	info, _ := v.(*models.CompanyInfo)
	if info == nil {
		return nil, nil
	}
	out := *info
	return &out, nil
}

func (c *Client) fetch(ctx context.Context, id string) (*models.CompanyInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrLookupFailed, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.ReplaceAll(c.url, Placeholder, url.QueryEscape(id)), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrLookupFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: registry answered %s", apperr.ErrLookupFailed, resp.Status)
	}
	var doc any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode reply: %v", apperr.ErrLookupFailed, err)
	}

	info := &models.CompanyInfo{Identifier: id}
	info.Name = search(c.name, doc)
	if info.Name == "" {
		return nil, nil
	}
	info.Address = search(c.address, doc)
	info.City = search(c.city, doc)
	info.PostalCode = search(c.postalCode, doc)
	info.TaxID = search(c.taxID, doc)
	if info.TaxID == "" {
		info.TaxID = VATNumber(id)
	}
	return info, nil
}

// search evaluates expr and renders scalars as strings. Missing paths, lists
// and objects give "".
func search(expr *jmespath.JMESPath, doc any) string {
	if expr == nil {
		return ""
	}
	v, err := expr.Search(doc)
	if err != nil || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// VATNumber derives the French intra-community VAT number from a SIREN (9
// digits) or SIRET (14 digits). Other identifiers give "".
func VATNumber(id string) string {
	if len(id) != 9 && len(id) != 14 {
		return ""
	}
	siren := id[:9]
	n, err := strconv.ParseUint(siren, 10, 64)
	if err != nil {
		return ""
	}
	key := (12 + 3*(n%97)) % 97
	return fmt.Sprintf("FR%02d%s", key, siren)
}
