package keepalive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// pingResponse is the keep-alive endpoint's body. The endpoint answers 200
// even when the sandbox is gone; NeedsRestart is the signal to branch on.
type pingResponse struct {
	Success      bool   `json:"success"`
	SandboxID    string `json:"sandboxId"`
	NeedsRestart bool   `json:"needsRestart"`
}

// EndpointPing returns a ping function for New that POSTs to the appforge
// keep-alive endpoint for the given project. onNeedsRestart, if non-nil, is
// invoked when the server reports the sandbox handle gone; the caller
// typically triggers the restart flow from there.
func EndpointPing(client *http.Client, baseURL, projectID string, onNeedsRestart func()) func(ctx context.Context) error {
	if client == nil {
		client = http.DefaultClient
	}
	url := fmt.Sprintf("%s/api/projects/%s/sandbox/keepalive", baseURL, projectID)

	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			return fmt.Errorf("build keep-alive request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("keep-alive request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("keep-alive endpoint status %d", resp.StatusCode)
		}

		var body pingResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("decode keep-alive response: %w", err)
		}
		if body.NeedsRestart && onNeedsRestart != nil {
			onNeedsRestart()
		}
		return nil
	}
}
