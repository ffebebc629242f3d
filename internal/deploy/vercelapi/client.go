// Package vercelapi implements deploy.LogProvider against the Vercel REST
// API. Authentication goes through an oauth2 token source so the client is
// ready for token-based linking flows.
package vercelapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/appforge-dev/appforge/internal/deploy"
)

const (
	defaultAPIURL = "https://api.vercel.com"

	httpTimeout = 30 * time.Second
)

// Client talks to the Vercel deployments API.
type Client struct {
	apiURL string
	http   *http.Client
}

// New creates a client authenticating with the given access token.
func New(apiURL, token string) *Client {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Timeout = httpTimeout

	return &Client{apiURL: apiURL, http: httpClient}
}

// eventPayload mirrors one entry of GET /v3/deployments/{id}/events.
type eventPayload struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Payload struct {
		Text       string `json:"text"`
		ReadyState string `json:"readyState"`
	} `json:"payload"`
	// Older events carry text at the top level.
	Text string `json:"text"`
}

// FetchEvents returns the deployment's build events.
func (c *Client) FetchEvents(ctx context.Context, deploymentID string) ([]deploy.Event, error) {
	body, err := c.get(ctx, "/v3/deployments/"+deploymentID+"/events?builds=1")
	if err != nil {
		return nil, err
	}

	var payload []eventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: events: %v", deploy.ErrBadPayload, err)
	}

	events := make([]deploy.Event, len(payload))
	for i, e := range payload {
		text := e.Payload.Text
		if text == "" {
			text = e.Text
		}
		events[i] = deploy.Event{
			ID:         e.ID,
			CreatedAt:  e.Created,
			Type:       e.Type,
			Text:       text,
			ReadyState: deploy.Status(e.Payload.ReadyState),
		}
	}
	return events, nil
}

// FetchStatus returns the deployment's ready state.
func (c *Client) FetchStatus(ctx context.Context, deploymentID string) (deploy.Status, error) {
	body, err := c.get(ctx, "/v13/deployments/"+deploymentID)
	if err != nil {
		return "", err
	}

	var payload struct {
		ReadyState string `json:"readyState"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("%w: status: %v", deploy.ErrBadPayload, err)
	}
	if payload.ReadyState == "" {
		return "", fmt.Errorf("%w: status response missing readyState", deploy.ErrBadPayload)
	}
	return deploy.Status(payload.ReadyState), nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vercel API call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vercel API status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}
