package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stagecast/internal/core/domain"
	"stagecast/internal/core/ports"
	"stagecast/pkg/circuitbreaker"

	"go.uber.org/zap"
)

// Client talks to the platform-broadcast-provisioning API. All calls go
// through a circuit breaker so a dead provisioning backend fails fast instead
// of stacking up timeouts inside the go-live sequence.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.SugaredLogger
}

func NewClient(baseURL, apiKey string, logger *zap.SugaredLogger) ports.ProvisioningClient {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		breaker:    circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:     logger,
	}
	c.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		c.logger.Warnw("provisioning circuit state changed", "from", from.String(), "to", to.String())
	})
	return c
}

type destinationPayload struct {
	ID       string `json:"id"`
	Platform string `json:"platform"`
	Method   string `json:"method"`
}

type createRequest struct {
	SessionID    string               `json:"sessionId"`
	Destinations []destinationPayload `json:"destinations"`
}

type listResponse struct {
	DestinationIDs []string `json:"destinationIds"`
}

func (c *Client) CreateBroadcastObjects(ctx context.Context, sessionID domain.SessionID, destinations []domain.Destination) error {
	payload := createRequest{SessionID: string(sessionID)}
	for _, d := range destinations {
		payload.Destinations = append(payload.Destinations, destinationPayload{
			ID:       string(d.ID),
			Platform: string(d.Platform),
			Method:   string(d.Method),
		})
	}

	return c.breaker.Execute(ctx, func() error {
		return c.post(ctx, "/v1/broadcasts", payload, nil)
	})
}

func (c *Client) ListDestinations(ctx context.Context, sessionID domain.SessionID) ([]domain.DestinationID, error) {
	var resp listResponse
	err := c.breaker.Execute(ctx, func() error {
		return c.get(ctx, fmt.Sprintf("/v1/broadcasts/%s/destinations", sessionID), &resp)
	})
	if err != nil {
		return nil, err
	}

	ids := make([]domain.DestinationID, 0, len(resp.DestinationIDs))
	for _, id := range resp.DestinationIDs {
		ids = append(ids, domain.DestinationID(id))
	}
	return ids, nil
}

func (c *Client) TransitionToLive(ctx context.Context, destinationID domain.DestinationID) error {
	return c.breaker.Execute(ctx, func() error {
		return c.post(ctx, fmt.Sprintf("/v1/destinations/%s/live", destinationID), nil, nil)
	})
}

func (c *Client) EndBroadcast(ctx context.Context, sessionID domain.SessionID) error {
	return c.breaker.Execute(ctx, func() error {
		return c.post(ctx, fmt.Sprintf("/v1/broadcasts/%s/end", sessionID), nil, nil)
	})
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provisioning request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provisioning api %s %s returned %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(body))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode provisioning response: %w", err)
		}
	}
	return nil
}
