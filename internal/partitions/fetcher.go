package partitions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Submit posts the statement to the Service and returns the parsed
// submission response (statement handle, metadata, and partition 0's
// rows).
func Submit(ctx context.Context, req Requester, sql, warehouse string) (*statementResponse, error) {
	body, err := json.Marshal(struct {
		Statement string `json:"statement"`
		Warehouse string `json:"warehouse"`
	}{Statement: sql, Warehouse: warehouse})
	if err != nil {
		return nil, fmt.Errorf("partitions: encode submission body: %w", err)
	}

	path := "/api/v2/statements?requestId=" + uuid.New().String()
	respBody, err := req.Do(ctx, "POST", path, body)
	if err != nil {
		return nil, err
	}

	var resp statementResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("partitions: decode submission response: %w", err)
	}
	return &resp, nil
}

// fetchPartition GETs partition i's rows through the same Requester
// (and therefore the same connection pool) used for submission.
func fetchPartition(ctx context.Context, req Requester, handle string, index int) ([][]*string, error) {
	path := fmt.Sprintf("/api/v2/statements/%s?partition=%d&requestId=%s", handle, index, uuid.New().String())
	respBody, err := req.Do(ctx, "GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp partitionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("partitions: decode partition %d response: %w", index, err)
	}
	return resp.Data, nil
}

// WorkerCount computes clamp(ceil(partitionCount/scaleFactor), 1, maxThreads).
// The numerator is the TOTAL partition count (including partition 0),
// matching the spec's preserved-as-written resolution of its worker-count
// open question rather than partitionCount-1.
func WorkerCount(partitionCount, scaleFactor, maxThreads int) int {
	if scaleFactor < 1 {
		scaleFactor = 1
	}
	workers := (partitionCount + scaleFactor - 1) / scaleFactor
	if workers < 1 {
		workers = 1
	}
	if workers > maxThreads {
		workers = maxThreads
	}
	return workers
}
