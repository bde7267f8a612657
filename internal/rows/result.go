package rows

import (
	"context"
	"fmt"
)

// PartitionFetcher retrieves the raw cells of partition i (i >= 1;
// partition 0 always arrives with the submission response and is never
// re-fetched).
type PartitionFetcher func(ctx context.Context, index int) ([][]*string, error)

// Result is a query's decoded result set: the column metadata plus
// either a fully materialized row set (single-threaded / threaded
// strategies) or a lazy partition source (streaming strategy).
type Result struct {
	types []RowType
	index map[string]int

	// Materialized mode: allRows is non-nil and already holds every
	// partition concatenated in index order.
	allRows [][]*string

	// Streaming mode: partitions beyond 0 are fetched on demand as
	// Iterate walks past them.
	streaming      bool
	partition0     [][]*string
	partitionCount int
	fetch          PartitionFetcher
}

// NewMaterialized builds a Result whose rows are already fully resident
// in memory, concatenated in partition order.
func NewMaterialized(types []RowType, allRows [][]*string) *Result {
	return &Result{types: types, index: columnIndex(types), allRows: allRows}
}

// NewStreaming builds a Result whose partitions beyond 0 are fetched
// lazily, strictly on demand, as Iterate walks past partition 0.
func NewStreaming(types []RowType, partition0 [][]*string, partitionCount int, fetch PartitionFetcher) *Result {
	return &Result{
		types:          types,
		index:          columnIndex(types),
		streaming:      true,
		partition0:     partition0,
		partitionCount: partitionCount,
		fetch:          fetch,
	}
}

// ColumnNames returns the result's column names in declared order.
func (res *Result) ColumnNames() []string {
	names := make([]string, len(res.types))
	for i, t := range res.types {
		names[i] = t.Name
	}
	return names
}

// RowTypes returns the result's column type metadata.
func (res *Result) RowTypes() []RowType {
	return res.types
}

// IsStreaming reports whether this Result fetches partitions lazily.
func (res *Result) IsStreaming() bool {
	return res.streaming
}

// RowCount returns the total row count for a materialized Result. It is
// not defined for a streaming Result (whose total is only known once
// every partition has been fetched) and returns -1 in that case; use
// Iterate to count while consuming.
func (res *Result) RowCount() int {
	if res.streaming {
		return -1
	}
	return len(res.allRows)
}

// Row returns the decoded row at index i of a materialized Result.
func (res *Result) Row(i int) (Row, error) {
	if res.streaming {
		return Row{}, fmt.Errorf("rows: Row(i) is not supported on a streaming Result; use Iterate")
	}
	if i < 0 || i >= len(res.allRows) {
		return Row{}, fmt.Errorf("rows: row index %d out of range [0,%d)", i, len(res.allRows))
	}
	return newRow(res.types, res.index, res.allRows[i]), nil
}

// Iterate walks every row in partition order, calling fn for each. For a
// materialized Result this simply ranges over the resident rows. For a
// streaming Result, partition 0 is served from memory and partitions
// 1..N-1 are fetched strictly on demand, one at a time, as iteration
// reaches them — no partition is fetched before fn has consumed every
// row of the partition before it. Returning an error from fn, or a
// partition fetch failing, stops iteration immediately and the error is
// returned to the caller.
func (res *Result) Iterate(ctx context.Context, fn func(Row) error) error {
	if !res.streaming {
		for _, cells := range res.allRows {
			if err := fn(newRow(res.types, res.index, cells)); err != nil {
				return err
			}
		}
		return nil
	}

	for _, cells := range res.partition0 {
		if err := fn(newRow(res.types, res.index, cells)); err != nil {
			return err
		}
	}

	for p := 1; p < res.partitionCount; p++ {
		partRows, err := res.fetch(ctx, p)
		if err != nil {
			return err
		}
		for _, cells := range partRows {
			if err := fn(newRow(res.types, res.index, cells)); err != nil {
				return err
			}
		}
	}
	return nil
}
