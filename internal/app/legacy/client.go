package legacy

import (
	"bytes"
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

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	// ErrUnavailable wraps transport failures and 5xx responses.
	ErrUnavailable = errors.New("legacy system unavailable")
	// ErrNotFound is returned for 404 responses.
	ErrNotFound = errors.New("legacy record not found")
	// ErrRejected is returned for other non-2xx responses.
	ErrRejected = errors.New("legacy system rejected request")
)

// Config holds connection settings for the legacy API.
type Config struct {
	BaseURL string // e.g. https://legacy.example.org/api
	APIKey  string // sent as X-Api-Key when OAuth2 is not configured

	// OAuth2 client-credentials; used when ClientID is set.
	ClientID     string
	ClientSecret string
	TokenURL     string

	Timeout time.Duration
}

// Client talks to the legacy system's JSON API.
type Client struct {
	base   *url.URL
	http   *http.Client
	apiKey string
	log    *zap.Logger
}

// New builds a Client. With ClientID set, requests carry a bearer token
// from the client-credentials flow; otherwise the static API key is used.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid legacy base url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	hc := &http.Client{Timeout: timeout}
	if cfg.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
		hc = cc.Client(ctx)
		hc.Timeout = timeout
	}

	return &Client{base: base, http: hc, apiKey: cfg.APIKey, log: logger}, nil
}

// ListMembers returns every member row the legacy system holds for an event.
// Malformed rows are returned in skipped rather than failing the whole list.
func (c *Client) ListMembers(ctx context.Context, eventCode string) (entries []MemberEntry, skipped []error, err error) {
	var rows []map[string]any
	if err := c.do(ctx, http.MethodGet, "/members/"+url.PathEscape(eventCode), nil, &rows); err != nil {
		return nil, nil, err
	}
	for i, row := range rows {
		e, perr := ParseMemberEntry(row)
		if perr != nil {
			skipped = append(skipped, fmt.Errorf("row %d: %w", i+1, perr))
			continue
		}
		if e.EventCode == "" {
			e.EventCode = eventCode
		}
		entries = append(entries, e)
	}
	return entries, skipped, nil
}

// GetMember returns one person's membership row for an event.
func (c *Client) GetMember(ctx context.Context, eventCode string, legacyID int64) (MemberEntry, error) {
	var row map[string]any
	path := "/members/" + url.PathEscape(eventCode) + "/" + strconv.FormatInt(legacyID, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &row); err != nil {
		return MemberEntry{}, err
	}
	if len(row) == 0 {
		return MemberEntry{}, ErrNotFound
	}
	e, err := ParseMemberEntry(row)
	if err != nil {
		return MemberEntry{}, err
	}
	if e.EventCode == "" {
		e.EventCode = eventCode
	}
	return e, nil
}

// GetPerson returns the legacy person record.
func (c *Client) GetPerson(ctx context.Context, legacyID int64) (Snapshot, error) {
	var row map[string]any
	if err := c.do(ctx, http.MethodGet, "/people/"+strconv.FormatInt(legacyID, 10), nil, &row); err != nil {
		return Snapshot{}, err
	}
	if len(row) == 0 {
		return Snapshot{}, ErrNotFound
	}
	return ParseSnapshot(row), nil
}

// SearchPerson looks a person up by email.
func (c *Client) SearchPerson(ctx context.Context, email string) (Snapshot, error) {
	var row map[string]any
	path := "/people?email=" + url.QueryEscape(strings.ToLower(strings.TrimSpace(email)))
	if err := c.do(ctx, http.MethodGet, path, nil, &row); err != nil {
		return Snapshot{}, err
	}
	if len(row) == 0 {
		return Snapshot{}, ErrNotFound
	}
	return ParseSnapshot(row), nil
}

// GetLectures returns the lecture records of an event. Each row carries
// its own legacy_id and the legacy_id of the speaker as person_id.
func (c *Client) GetLectures(ctx context.Context, eventCode string) ([]Snapshot, error) {
	var rows []map[string]any
	if err := c.do(ctx, http.MethodGet, "/lectures/"+url.PathEscape(eventCode), nil, &rows); err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(rows))
	for _, row := range rows {
		out = append(out, ParseSnapshot(row))
	}
	return out, nil
}

// ReplacePerson asks the legacy system to merge replaceID into withID.
func (c *Client) ReplacePerson(ctx context.Context, replaceID, withID int64) error {
	body := map[string]any{"replace_id": replaceID, "with_id": withID}
	return c.do(ctx, http.MethodPost, "/people/replace", body, nil)
}

// CheckRSVP asks the legacy system whether an invitation code is valid.
func (c *Client) CheckRSVP(ctx context.Context, code string) (RSVPResult, error) {
	var row map[string]any
	if err := c.do(ctx, http.MethodGet, "/rsvp/"+url.PathEscape(code), nil, &row); err != nil {
		return RSVPResult{}, err
	}
	return ParseRSVPResult(row), nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode legacy request: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, rdr)
	if err != nil {
		return fmt.Errorf("build legacy request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("legacy request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("legacy request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, path, resp.StatusCode)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: status %d: %s", ErrRejected, method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decode %s: %v", ErrUnavailable, path, err)
	}
	return nil
}
