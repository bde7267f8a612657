package partitions

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/erauner12/snowpipe-go/internal/rows"
)

// fakeRequester stands in for the authenticated executor so these tests
// exercise only the submit/fetch/strategy-selection logic, the way the
// teacher's httpclient tests substitute an httptest.Server rather than a
// real Service.
type fakeRequester struct {
	mu           sync.Mutex
	submitResp   []byte
	partitions   map[int][]byte // keyed by partition index
	partitionErr map[int]error
	calls        []string
}

func (f *fakeRequester) Do(_ context.Context, method, path string, _ []byte) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, method+" "+path)
	f.mu.Unlock()

	if strings.Contains(path, "/statements?") {
		return f.submitResp, nil
	}

	u, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	idx, _ := strconv.Atoi(u.Query().Get("partition"))

	if err, ok := f.partitionErr[idx]; ok {
		return nil, err
	}
	return f.partitions[idx], nil
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func strp(s string) *string { return &s }

// TestFetch_S1_SinglePartitionNonStreaming mirrors scenario S1: N=1, a
// single row already in the submission response, no partition GETs.
func TestFetch_S1_SinglePartitionNonStreaming(t *testing.T) {
	req := &fakeRequester{
		submitResp: mustJSON(t, map[string]any{
			"statementHandle": "h1",
			"resultSetMetaData": map[string]any{
				"rowType":       []map[string]any{{"name": "id", "type": "fixed", "scale": 0}, {"name": "c1", "type": "boolean"}},
				"partitionInfo": []map[string]any{{}},
			},
			"data": [][]*string{{strp("1"), strp("true")}},
		}),
	}

	res, err := Fetch(context.Background(), req, "select 1", "wh", Config{ScaleFactor: 4, MaxThreadsPerQuery: 8}, false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.RowCount() != 1 {
		t.Fatalf("row count = %d, want 1", res.RowCount())
	}
	row, err := res.Row(0)
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	v, err := row.Value("c1")
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if v != true {
		t.Errorf("row[\"c1\"] = %v, want true", v)
	}
	for _, c := range req.calls {
		if strings.Contains(c, "partition=") {
			t.Errorf("expected no partition GETs for N=1, got call %q", c)
		}
	}
}

// TestFetch_S2_TenPartitionsThreaded mirrors scenario S2: N=10,
// scale_factor=4, max_threads=8 -> workers=3, final row count = 10.
func TestFetch_S2_TenPartitionsThreaded(t *testing.T) {
	partitions := make([]map[string]any, 10)
	partitionBodies := map[int][]byte{}
	for i := 0; i < 10; i++ {
		partitions[i] = map[string]any{}
		if i >= 1 {
			partitionBodies[i] = mustJSON(t, map[string]any{"data": [][]*string{{strp("r")}}})
		}
	}

	req := &fakeRequester{
		submitResp: mustJSON(t, map[string]any{
			"statementHandle": "h2",
			"resultSetMetaData": map[string]any{
				"rowType":       []map[string]any{{"name": "c", "type": "other"}},
				"partitionInfo": partitions,
			},
			"data": [][]*string{{strp("r")}},
		}),
		partitions: partitionBodies,
	}

	workers := WorkerCount(10, 4, 8)
	if workers != 3 {
		t.Fatalf("precondition: WorkerCount(10,4,8) = %d, want 3", workers)
	}

	res, err := Fetch(context.Background(), req, "select *", "wh", Config{ScaleFactor: 4, MaxThreadsPerQuery: 8}, false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.RowCount() != 10 {
		t.Fatalf("row count = %d, want 10", res.RowCount())
	}
}

// TestFetch_ThreadedStrategy_PreservesPartitionOrder verifies that
// despite concurrent dispatch, rows are assembled in partition index
// order regardless of completion order.
func TestFetch_ThreadedStrategy_PreservesPartitionOrder(t *testing.T) {
	const n = 6
	partitionInfos := make([]map[string]any, n)
	partitionBodies := map[int][]byte{}
	for i := 0; i < n; i++ {
		partitionInfos[i] = map[string]any{}
		if i >= 1 {
			partitionBodies[i] = mustJSON(t, map[string]any{"data": [][]*string{{strp(fmt.Sprintf("p%d", i))}}})
		}
	}

	req := &fakeRequester{
		submitResp: mustJSON(t, map[string]any{
			"statementHandle": "h3",
			"resultSetMetaData": map[string]any{
				"rowType":       []map[string]any{{"name": "c", "type": "other"}},
				"partitionInfo": partitionInfos,
			},
			"data": [][]*string{{strp("p0")}},
		}),
		partitions: partitionBodies,
	}

	res, err := Fetch(context.Background(), req, "select *", "wh", Config{ScaleFactor: 1, MaxThreadsPerQuery: 8}, false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.RowCount() != n {
		t.Fatalf("row count = %d, want %d", res.RowCount(), n)
	}
	for i := 0; i < n; i++ {
		row, err := res.Row(i)
		if err != nil {
			t.Fatalf("row %d: %v", i, err)
		}
		v, err := row.Value("c")
		if err != nil {
			t.Fatalf("value %d: %v", i, err)
		}
		want := fmt.Sprintf("p%d", i)
		if v != want {
			t.Errorf("row %d = %v, want %s", i, v, want)
		}
	}
}

// TestFetch_ThreadedStrategy_AbortsOnFirstTerminalError verifies that a
// terminal failure in any partition fails the whole query.
func TestFetch_ThreadedStrategy_AbortsOnFirstTerminalError(t *testing.T) {
	const n = 5
	partitionInfos := make([]map[string]any, n)
	for i := range partitionInfos {
		partitionInfos[i] = map[string]any{}
	}

	req := &fakeRequester{
		submitResp: mustJSON(t, map[string]any{
			"statementHandle": "h4",
			"resultSetMetaData": map[string]any{
				"rowType":       []map[string]any{{"name": "c", "type": "other"}},
				"partitionInfo": partitionInfos,
			},
			"data": [][]*string{{strp("p0")}},
		}),
		partitions:   map[int][]byte{1: mustJSON(t, map[string]any{"data": [][]*string{{strp("p1")}}})},
		partitionErr: map[int]error{2: fmt.Errorf("boom")},
	}

	_, err := Fetch(context.Background(), req, "select *", "wh", Config{ScaleFactor: 1, MaxThreadsPerQuery: 8}, false)
	if err == nil {
		t.Fatal("expected fetch to fail on terminal partition error")
	}
}

// TestFetch_MissingResultSetMetaData_YieldsEmptyResult covers the open
// question resolution: a DDL-style submission with no resultSetMetaData
// yields an empty Result rather than an error.
func TestFetch_MissingResultSetMetaData_YieldsEmptyResult(t *testing.T) {
	req := &fakeRequester{
		submitResp: mustJSON(t, map[string]any{
			"statementHandle": "h5",
		}),
	}

	res, err := Fetch(context.Background(), req, "create table t(x int)", "wh", Config{ScaleFactor: 4, MaxThreadsPerQuery: 8}, false)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.RowCount() != 0 {
		t.Errorf("row count = %d, want 0", res.RowCount())
	}
}

// TestFetch_Streaming_OnlyFetchesConsumedPartitions mirrors scenario S6:
// strict lazy partition fetching during iteration.
func TestFetch_Streaming_OnlyFetchesConsumedPartitions(t *testing.T) {
	const n = 5
	partitionInfos := make([]map[string]any, n)
	partitionBodies := map[int][]byte{}
	for i := 0; i < n; i++ {
		partitionInfos[i] = map[string]any{}
		if i >= 1 {
			partitionBodies[i] = mustJSON(t, map[string]any{"data": [][]*string{{strp(fmt.Sprintf("p%d", i))}}})
		}
	}

	req := &fakeRequester{
		submitResp: mustJSON(t, map[string]any{
			"statementHandle": "h6",
			"resultSetMetaData": map[string]any{
				"rowType":       []map[string]any{{"name": "c", "type": "other"}},
				"partitionInfo": partitionInfos,
			},
			"data": [][]*string{{strp("p0")}},
		}),
		partitions: partitionBodies,
	}

	res, err := Fetch(context.Background(), req, "select *", "wh", Config{ScaleFactor: 4, MaxThreadsPerQuery: 8}, true)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !res.IsStreaming() {
		t.Fatal("expected a streaming Result")
	}

	seen := 0
	err = res.Iterate(context.Background(), func(rows.Row) error {
		seen++
		if seen == 2 { // partition 0's row + partition 1's row
			return errStopIteration
		}
		return nil
	})
	if err != errStopIteration {
		t.Fatalf("iterate: %v", err)
	}

	for _, c := range req.calls {
		if strings.Contains(c, "partition=2") || strings.Contains(c, "partition=3") || strings.Contains(c, "partition=4") {
			t.Errorf("unexpected eager fetch of unconsumed partition: %q", c)
		}
	}
}

var errStopIteration = fmt.Errorf("stop iteration")
