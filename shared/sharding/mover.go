package sharding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brickfolio/control-plane/shared/utils"
)

// Mover performs the bulk relocation of one tenant's data between shards.
// It either fully succeeds or leaves the source shard authoritative; the
// router only flips the assignment after a confirmed success.
type Mover interface {
	Relocate(ctx context.Context, tenantID uuid.UUID, sourceShard, destShard string) error
}

// HTTPMover drives the external data-relocation service.
type HTTPMover struct {
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *utils.CircuitBreaker
}

// NewHTTPMover creates a mover for the relocation service at baseURL.
func NewHTTPMover(baseURL string) *HTTPMover {
	return &HTTPMover{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute, // bulk copies are slow
		},
		circuitBreaker: utils.NewCircuitBreaker(3, time.Minute),
	}
}

type relocationRequest struct {
	TenantID    string `json:"tenant_id"`
	SourceShard string `json:"source_shard"`
	DestShard   string `json:"dest_shard"`
}

// Relocate implements Mover.
func (m *HTTPMover) Relocate(ctx context.Context, tenantID uuid.UUID, sourceShard, destShard string) error {
	payload, err := json.Marshal(relocationRequest{
		TenantID:    tenantID.String(),
		SourceShard: sourceShard,
		DestShard:   destShard,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal relocation request: %w", err)
	}

	return m.circuitBreaker.Call(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/relocations", bytes.NewBuffer(payload))
		if err != nil {
			return fmt.Errorf("failed to create relocation request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("relocation request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("relocation service returned status %d", resp.StatusCode)
		}
		return nil
	})
}
