package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPFetcher looks match details up from a JSON endpoint serving
// GET <base>/matches/<matchID>.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher creates a fetcher against the given base URL.
func NewHTTPFetcher(baseURL string) (*HTTPFetcher, error) {
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("match details URL must start with http:// or https://, got %q", baseURL)
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// FetchMatchDetails implements Fetcher. An unknown match (404) is not an
// error; it returns nil details so the resolver retries on a later event.
func (f *HTTPFetcher) FetchMatchDetails(ctx context.Context, matchID string) (*MatchDetails, error) {
	endpoint := fmt.Sprintf("%s/matches/%s", f.baseURL, url.PathEscape(matchID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building match details request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching match details: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("match details lookup returned status %d", resp.StatusCode)
	}

	var payload struct {
		HomeTeam   string `json:"home_team"`
		AwayTeam   string `json:"away_team"`
		Tournament string `json:"tournament"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding match details: %w", err)
	}

	return &MatchDetails{
		HomeTeam:   payload.HomeTeam,
		AwayTeam:   payload.AwayTeam,
		Tournament: payload.Tournament,
	}, nil
}
