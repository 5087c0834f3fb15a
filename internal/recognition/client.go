package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultURL = "https://inputtools.google.com/request?ime=handwriting&app=mobilesearch&cs=1&oe=UTF-8"

// Client talks to the handwriting endpoint over HTTP.
type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Recognize(ctx context.Context, req Request) ([]string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	words, err := ParseResponse(raw)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("module", "recognition").Strs("alternatives", words).Msg("recognized")
	return words, nil
}

// ParseResponse reads ["SUCCESS", [[id, [word, ...]], ...]] and returns the
// ranked words of the first result.
func ParseResponse(raw []byte) ([]string, error) {
	var top []json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(top) < 2 {
		return nil, fmt.Errorf("%w: short response", ErrUnavailable)
	}
	var status string
	if err := json.Unmarshal(top[0], &status); err != nil || status != "SUCCESS" {
		return nil, fmt.Errorf("%w: status %s", ErrUnavailable, string(top[0]))
	}
	var results [][]json.RawMessage
	if err := json.Unmarshal(top[1], &results); err != nil {
		return nil, fmt.Errorf("%w: decode results: %v", ErrUnavailable, err)
	}
	if len(results) == 0 || len(results[0]) < 2 {
		return nil, ErrNoResult
	}
	var words []string
	if err := json.Unmarshal(results[0][1], &words); err != nil {
		return nil, fmt.Errorf("%w: decode alternatives: %v", ErrUnavailable, err)
	}
	if len(words) == 0 {
		return nil, ErrNoResult
	}
	return words, nil
}
