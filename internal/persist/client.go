package persist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/teamerhq/relay/pkg/config"
)

// Client is a JSON-over-HTTP client for the persistence service's internal
// endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

var _ Store = (*Client)(nil)

func NewClient(cfg config.PersistenceConfig, logger *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With(slog.String("component", "persist_client")),
	}
}

func (c *Client) ChatRoomsForUser(ctx context.Context, userID string) ([]string, error) {
	var out struct {
		ChatIDs []string `json:"chatIds"`
	}
	path := "/internal/users/" + url.PathEscape(userID) + "/chats"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("listing chats for user %q: %w", userID, err)
	}
	return out.ChatIDs, nil
}

func (c *Client) SaveMessage(ctx context.Context, msg NewMessage) (*SavedMessage, error) {
	var out SavedMessage
	if err := c.do(ctx, http.MethodPost, "/internal/messages", msg, &out); err != nil {
		return nil, fmt.Errorf("saving message to chat %q: %w", msg.ChatID, err)
	}
	return &out, nil
}

func (c *Client) UserNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	in := struct {
		UserIDs []string `json:"userIds"`
	}{UserIDs: userIDs}
	var out struct {
		Names map[string]string `json:"names"`
	}
	if err := c.do(ctx, http.MethodPost, "/internal/user-names", in, &out); err != nil {
		return nil, fmt.Errorf("resolving user names: %w", err)
	}
	return out.Names, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("persistence service returned %s for %s %s", resp.Status, method, path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}
