package coordinator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-sqlgate/pkg/cabinet"
	"github.com/dd0wney/cluso-sqlgate/pkg/logging"
	"github.com/dd0wney/cluso-sqlgate/pkg/seer"
)

// TimestampClient requests globally ordered timestamps. The issuer
// pool is partitioned by residue class, so any single issuer being
// down must not stall writes: requests rotate through the pool and
// retry a bounded number of times before giving up.
type TimestampClient struct {
	services []string
	retries  int
	http     *http.Client
	next     atomic.Uint64
	logger   logging.Logger
}

// timestampResponse mirrors the issuer's GET /timestamp payload.
type timestampResponse struct {
	Timestamp uint64 `json:"timestamp"`
	ServerID  int    `json:"server_id"`
}

// NewTimestampClient creates a round-robin client over the issuer pool.
func NewTimestampClient(services []string, retries int, timeout time.Duration) *TimestampClient {
	if retries < 1 {
		retries = 1
	}
	return &TimestampClient{
		services: services,
		retries:  retries,
		http:     &http.Client{Timeout: timeout},
		logger:   logging.With(logging.Component("timestamp_client")),
	}
}

// Next fetches a timestamp, rotating through issuers on failure.
// Returns ErrDependencyUnavailable once the retry budget is spent.
func (c *TimestampClient) Next(ctx context.Context) (uint64, error) {
	if len(c.services) == 0 {
		return 0, fmt.Errorf("%w: no timestamp services configured", ErrDependencyUnavailable)
	}

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		idx := c.next.Add(1) - 1
		base := c.services[idx%uint64(len(c.services))]

		ts, err := c.fetch(ctx, base)
		if err == nil {
			return ts, nil
		}
		lastErr = err
		c.logger.Warn("Timestamp issuer failed, rotating",
			logging.String("issuer", base),
			logging.Error(err))
	}

	return 0, fmt.Errorf("%w: all timestamp issuers failed: %v", ErrDependencyUnavailable, lastErr)
}

func (c *TimestampClient) fetch(ctx context.Context, base string) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/timestamp", nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("issuer returned status %d", resp.StatusCode)
	}

	var body timestampResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode timestamp: %w", err)
	}
	return body.Timestamp, nil
}

// CabinetClient asks the cabinet service for a quorum selection.
type CabinetClient struct {
	baseURL string
	http    *http.Client
}

// NewCabinetClient creates a cabinet client with a bounded timeout.
func NewCabinetClient(baseURL string, timeout time.Duration) *CabinetClient {
	return &CabinetClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// SelectQuorum fetches the quorum for one write operation.
func (c *CabinetClient) SelectQuorum(ctx context.Context, operation string) (*cabinet.Selection, error) {
	var sel cabinet.Selection
	if err := postJSON(ctx, c.http, c.baseURL+"/select-quorum",
		cabinet.SelectRequest{Operation: operation}, &sel); err != nil {
		return nil, fmt.Errorf("%w: cabinet: %v", ErrDependencyUnavailable, err)
	}
	return &sel, nil
}

// SeerClient asks the seer service to elect a leader.
type SeerClient struct {
	baseURL string
	http    *http.Client
}

// NewSeerClient creates a seer client with a bounded timeout.
func NewSeerClient(baseURL string, timeout time.Duration) *SeerClient {
	return &SeerClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// ElectLeader runs an election, keeping excluded replicas out.
func (c *SeerClient) ElectLeader(ctx context.Context, exclude []string) (*seer.ElectionResult, error) {
	var result seer.ElectionResult
	if err := postJSON(ctx, c.http, c.baseURL+"/elect-leader",
		seer.ElectRequest{ExcludeReplicas: exclude}, &result); err != nil {
		return nil, fmt.Errorf("%w: seer: %v", ErrDependencyUnavailable, err)
	}
	return &result, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
