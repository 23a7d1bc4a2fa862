package subgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"lendingrisk/internal/metrics"
	"lendingrisk/pkg/errors"
	"lendingrisk/pkg/logger"
)

// Client posts GraphQL queries to a subgraph gateway
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	apiKey  string
	log     *logger.Logger

	// endpoint overrides the chain URL, used against local gateways
	endpoint string
}

type ClientConfig struct {
	APIKey    string
	Timeout   time.Duration
	RateLimit float64 // requests per second
	Endpoint  string
}

// NewClient creates a rate-limited client
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		apiKey:   cfg.APIKey,
		log:      logger.Get().With("component", "subgraph_client"),
		endpoint: cfg.Endpoint,
	}
}

type request struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// Query runs a query against the chain's subgraph and decodes data into out.
// Transport failures and GraphQL errors wrap ErrUnavailable.
func (c *Client) Query(ctx context.Context, chain Chain, name, query string, vars map[string]interface{}, out interface{}) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordSubgraphCall(chain.ID, name, time.Since(start), err)
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "subgraph rate limiter")
	}

	body, err := json.Marshal(request{Query: query, Variables: vars})
	if err != nil {
		return errors.Wrap(err, "encode graphql request")
	}

	url := c.endpoint
	if url == "" {
		url = chain.URL(c.apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build graphql request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(errors.ErrUnavailable, "subgraph %s %s: %v", chain.ID, name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return errors.Wrapf(errors.ErrUnavailable, "read subgraph response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(errors.ErrUnavailable, "subgraph %s %s: status %d", chain.ID, name, resp.StatusCode)
	}

	var parsed response
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return errors.Wrapf(errors.ErrUnavailable, "decode subgraph response: %v", err)
	}
	if len(parsed.Errors) > 0 {
		msgs := make([]string, len(parsed.Errors))
		for i, e := range parsed.Errors {
			msgs[i] = e.Message
		}
		return errors.Wrapf(errors.ErrUnavailable, "subgraph %s %s: %s", chain.ID, name, strings.Join(msgs, "; "))
	}
	if err := json.Unmarshal(parsed.Data, out); err != nil {
		return fmt.Errorf("decode %s data: %w", name, err)
	}

	c.log.Debugw("Subgraph query", "chain_id", chain.ID, "query", name, "took", time.Since(start))
	return nil
}
