package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Client talks to Home Assistant over its REST API using a long-lived access
// token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a REST client for the given Home Assistant base URL.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// CallService invokes POST /api/services/{domain}/{service}.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	body, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "marshal service data")
	}

	endpoint := fmt.Sprintf("%s/api/services/%s/%s", c.baseURL, url.PathEscape(domain), url.PathEscape(service))
	resp, err := c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "call %s.%s", domain, service)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("service %s.%s returned status %d: %s", domain, service, resp.StatusCode, string(msg))
	}

	slog.Debug("hass: service called", "domain", domain, "service", service)
	return nil
}

// States returns GET /api/states.
func (c *Client) States(ctx context.Context) ([]EntityState, error) {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/api/states", nil)
	if err != nil {
		return nil, errors.Wrap(err, "query states")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("states query returned status %d", resp.StatusCode)
	}

	var states []EntityState
	if err := json.NewDecoder(resp.Body).Decode(&states); err != nil {
		return nil, errors.Wrap(err, "decode states")
	}
	return states, nil
}

// CalendarEvents returns GET /api/calendars/{entity}?start=...&end=... events.
func (c *Client) CalendarEvents(ctx context.Context, entityID string, start, end time.Time) ([]CalendarEvent, error) {
	endpoint := fmt.Sprintf("%s/api/calendars/%s?start=%s&end=%s",
		c.baseURL,
		url.PathEscape(entityID),
		url.QueryEscape(start.Format(time.RFC3339)),
		url.QueryEscape(end.Format(time.RFC3339)),
	)

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "query calendar %s", entityID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("calendar query for %s returned status %d", entityID, resp.StatusCode)
	}

	var events []CalendarEvent
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, errors.Wrapf(err, "decode events for %s", entityID)
	}
	return events, nil
}

// ShoppingItems returns GET /api/shopping_list.
func (c *Client) ShoppingItems(ctx context.Context) ([]ShoppingItem, error) {
	resp, err := c.do(ctx, http.MethodGet, c.baseURL+"/api/shopping_list", nil)
	if err != nil {
		return nil, errors.Wrap(err, "query shopping list")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("shopping list query returned status %d", resp.StatusCode)
	}

	var items []ShoppingItem
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, errors.Wrap(err, "decode shopping list")
	}
	return items, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpClient.Do(req)
}
