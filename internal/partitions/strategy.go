package partitions

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/erauner12/snowpipe-go/internal/rows"
)

// Config carries the worker-sizing tunables the strategy selector needs
// out of the client's configuration.
type Config struct {
	ScaleFactor        int
	MaxThreadsPerQuery int
}

// Fetch submits sql against warehouse, selects a materialization
// strategy based on the resulting partition count and cfg, and returns
// the assembled Result. Mirrors the spec's query() entry point: the
// facade calls this once per query after computing warehouse defaults.
func Fetch(ctx context.Context, req Requester, sql, warehouse string, cfg Config, streaming bool) (*rows.Result, error) {
	submitResp, err := Submit(ctx, req, sql, warehouse)
	if err != nil {
		return nil, err
	}

	// Per the spec's design notes: a submission whose resultSetMetaData
	// is absent (e.g. DDL) yields an empty Result rather than an error.
	if submitResp.ResultSetMetaData == nil {
		return rows.NewMaterialized(nil, nil), nil
	}

	types := toRowTypes(submitResp.ResultSetMetaData.RowType)
	partitionCount := len(submitResp.ResultSetMetaData.PartitionInfo)
	handle := submitResp.StatementHandle

	if streaming {
		fetch := func(ctx context.Context, index int) ([][]*string, error) {
			return fetchPartition(ctx, req, handle, index)
		}
		return rows.NewStreaming(types, submitResp.Data, partitionCount, fetch), nil
	}

	workers := WorkerCount(partitionCount, cfg.ScaleFactor, cfg.MaxThreadsPerQuery)

	var rest [][][]*string
	var fetchErr error
	if workers == 1 {
		rest, fetchErr = fetchSequential(ctx, req, handle, partitionCount)
	} else {
		rest, fetchErr = fetchThreaded(ctx, req, handle, partitionCount, workers)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}

	allRows := submitResp.Data
	for _, part := range rest {
		allRows = append(allRows, part...)
	}
	return rows.NewMaterialized(types, allRows), nil
}

// fetchSequential fetches partitions 1..N-1 one at a time, in order.
func fetchSequential(ctx context.Context, req Requester, handle string, partitionCount int) ([][][]*string, error) {
	out := make([][][]*string, 0, max(partitionCount-1, 0))
	for i := 1; i < partitionCount; i++ {
		part, err := fetchPartition(ctx, req, handle, i)
		if err != nil {
			return nil, err
		}
		out = append(out, part)
	}
	return out, nil
}

// fetchThreaded dispatches partitions 1..N-1 across up to `workers`
// concurrent fetches. Results are assembled into index order regardless
// of completion order. If any fetch fails terminally, the errgroup's
// shared context is canceled so in-flight and not-yet-started fetches
// stop, and the first error is returned — other partitions are never
// assumed to have completed.
func fetchThreaded(ctx context.Context, req Requester, handle string, partitionCount, workers int) ([][][]*string, error) {
	results := make([][][]*string, max(partitionCount-1, 0))

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(workers))

	for i := 1; i < partitionCount; i++ {
		i := i
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			part, err := fetchPartition(gctx, req, handle, i)
			if err != nil {
				return err
			}
			results[i-1] = part
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
