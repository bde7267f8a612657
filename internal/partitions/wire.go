// Package partitions submits a statement, selects a materialization
// strategy, and fetches the remaining result partitions to assemble a
// rows.Result.
package partitions

import (
	"context"

	"github.com/erauner12/snowpipe-go/internal/rows"
)

// Requester is the narrow seam partitions needs from the request
// executor: one authenticated, retried call returning a response body or
// an error. Decouples this package from transport's pool/token
// internals, the way the teacher's client package depends only on its
// TokenProvider/SessionProvider interfaces rather than concrete types.
type Requester interface {
	Do(ctx context.Context, method, path string, body []byte) ([]byte, error)
}

// statementResponse mirrors the Service's POST /api/v2/statements body.
type statementResponse struct {
	StatementHandle   string             `json:"statementHandle"`
	ResultSetMetaData *resultSetMetaData `json:"resultSetMetaData"`
	Data              [][]*string        `json:"data"`
}

type resultSetMetaData struct {
	RowType       []wireRowType   `json:"rowType"`
	PartitionInfo []partitionInfo `json:"partitionInfo"`
}

type wireRowType struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Scale int    `json:"scale"`
}

// partitionInfo is intentionally unmarshaled loosely: the spec pins only
// its length (the partition count), not a stable field set.
type partitionInfo map[string]any

// partitionResponse mirrors the Service's GET .../statements/<handle>
// body.
type partitionResponse struct {
	Data [][]*string `json:"data"`
}

func toRowTypes(wire []wireRowType) []rows.RowType {
	out := make([]rows.RowType, len(wire))
	for i, w := range wire {
		out[i] = rows.RowType{Name: w.Name, Type: w.Type, Scale: w.Scale}
	}
	return out
}
