// Package theoddsapi implements the upstream odds feed contract
// against The Odds API. Retry and rate limiting are deliberately not
// here; the engine treats fetch failures as a signal to keep serving
// stale cache data.
package theoddsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/DIGITAL-FLOW-SOLUTIONS/ODDROYAL-V2-sub002/pkg/contracts"
)

// Client talks to The Odds API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a client with a bounded request timeout. The
// timeout must sit well below every poll interval that uses it.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchOdds returns current events with odds for a sport.
func (c *Client) FetchOdds(ctx context.Context, sportKey string, opts contracts.FetchOptions) ([]contracts.Event, error) {
	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	if opts.Regions != "" {
		params.Set("regions", opts.Regions)
	}
	if opts.Markets != "" {
		params.Set("markets", opts.Markets)
	}
	if opts.OddsFormat != "" {
		params.Set("oddsFormat", opts.OddsFormat)
	}

	endpoint := fmt.Sprintf("%s/sports/%s/odds", c.baseURL, sportKey)

	var events []contracts.Event
	if err := c.getJSON(ctx, endpoint, params, &events); err != nil {
		return nil, fmt.Errorf("fetch odds for %s: %w", sportKey, err)
	}
	return events, nil
}

// FetchScores returns recent and in-play results for a sport.
func (c *Client) FetchScores(ctx context.Context, sportKey string, daysFrom int) ([]contracts.ScoreEvent, error) {
	params := url.Values{}
	params.Set("apiKey", c.apiKey)
	if daysFrom > 0 {
		params.Set("daysFrom", strconv.Itoa(daysFrom))
	}

	endpoint := fmt.Sprintf("%s/sports/%s/scores", c.baseURL, sportKey)

	var scores []contracts.ScoreEvent
	if err := c.getJSON(ctx, endpoint, params, &scores); err != nil {
		return nil, fmt.Errorf("fetch scores for %s: %w", sportKey, err)
	}
	return scores, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params url.Values, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API returned %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(dest)
}
