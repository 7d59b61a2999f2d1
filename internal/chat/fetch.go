package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mgauthier/tilewire/internal/wire"
)

// Fetcher retrieves older message pages from the server's conversation
// history endpoint.
type Fetcher struct {
	base   string
	client *http.Client
}

// NewFetcher creates a Fetcher against the given server base URL.
// A nil client uses http.DefaultClient.
func NewFetcher(base string, client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{base: base, client: client}
}

// Fetch returns one page of messages for a conversation, oldest first.
// offset counts already-held messages from the newest end.
func (f *Fetcher) Fetch(ctx context.Context, conversationID string, perPage, offset int) ([]wire.ChatMessage, error) {
	u := fmt.Sprintf("%s/conversations/%s/messages", f.base, url.PathEscape(conversationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("perPage", strconv.Itoa(perPage))
	q.Set("page", "0")
	q.Set("offset", strconv.Itoa(offset))
	req.URL.RawQuery = q.Encode()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat: fetch messages: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Messages []wire.ChatMessage `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("chat: fetch messages: %w", err)
	}
	return body.Messages, nil
}
