package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bryanchriswhite/ScreenGuard/internal/api"
	"github.com/spf13/cobra"
)

// daemonClient talks to a running daemon's HTTP API
type daemonClient struct {
	base string
	http *http.Client
}

func newDaemonClient(cmd *cobra.Command) (*daemonClient, error) {
	_, cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return &daemonClient{
		base: fmt.Sprintf("http://localhost:%d", cfg.ServerPort),
		http: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// call sends body as JSON and decodes a successful response into out
func (c *daemonClient) call(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Code == "" {
			return fmt.Errorf("daemon returned %s", resp.Status)
		}
		return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
