package livesearch

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/wesm/livefind/internal/backend"
	"github.com/wesm/livefind/internal/backend/backendtest"
)

func manyRows(n int) []backend.Row {
	rows := make([]backend.Row, n)
	for i := range rows {
		name := fmt.Sprintf("f%03d", i)
		rows[i] = backendtest.FileRow(name, "/r/"+name)
	}
	return rows
}

func TestExecuteAndFetchBatches(t *testing.T) {
	var batches []int
	m := &backendtest.MockBackend{
		RowsFunc: func(string) []backend.Row { return manyRows(120) },
		FetchFunc: func(_ context.Context, _ string, batch int) error {
			batches = append(batches, batch)
			return nil
		},
	}
	f := &RowFetcher{Backend: m, BatchSize: 50}

	res, err := f.ExecuteAndFetch(context.Background(), "q")
	if err != nil {
		t.Fatalf("ExecuteAndFetch: %v", err)
	}
	if len(res.Records) != 120 || res.Rows != 120 {
		t.Errorf("records = %d, rows = %d; want 120, 120", len(res.Records), res.Rows)
	}
	if len(batches) != 3 {
		t.Errorf("fetched %d batches, want 3", len(batches))
	}
	if res.Token != 1 || res.TokenErr != nil {
		t.Errorf("token = %d, %v; want 1, nil", res.Token, res.TokenErr)
	}
	if m.OpenHandles() != 0 {
		t.Errorf("handle not released")
	}
	if res.Records[0].DisplayName != "f000" || res.Records[119].DisplayName != "f119" {
		t.Errorf("order not preserved: first %q last %q", res.Records[0].DisplayName, res.Records[119].DisplayName)
	}
}

func TestExecuteAndFetchSkipsBadRows(t *testing.T) {
	rows := manyRows(3)
	rows[1] = backend.Row{backend.PropDisplayName: int64(7)}
	m := &backendtest.MockBackend{RowsFunc: func(string) []backend.Row { return rows }}
	f := &RowFetcher{Backend: m}

	res, err := f.ExecuteAndFetch(context.Background(), "q")
	if err != nil {
		t.Fatalf("ExecuteAndFetch: %v", err)
	}
	if len(res.Records) != 2 || res.Skipped != 1 {
		t.Errorf("records = %d, skipped = %d; want 2, 1", len(res.Records), res.Skipped)
	}
}

func TestExecuteAndFetchExecutionError(t *testing.T) {
	m := &backendtest.MockBackend{
		ExecuteFunc: func(context.Context, string) error { return errors.New("syntax error") },
	}
	f := &RowFetcher{Backend: m}

	res, err := f.ExecuteAndFetch(context.Background(), "q")
	var execErr *backend.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("err = %v, want *ExecutionError", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
}

func TestExecuteAndFetchFetchErrorDiscardsPartial(t *testing.T) {
	m := &backendtest.MockBackend{
		RowsFunc: func(string) []backend.Row { return manyRows(120) },
		FetchFunc: func(_ context.Context, _ string, batch int) error {
			if batch == 1 {
				return errors.New("disk gone")
			}
			return nil
		},
	}
	f := &RowFetcher{Backend: m, BatchSize: 50}

	res, err := f.ExecuteAndFetch(context.Background(), "q")
	var fetchErr *backend.FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if res != nil {
		t.Errorf("partial result returned: %d records", len(res.Records))
	}
	if m.OpenHandles() != 0 {
		t.Error("handle not released after fetch failure")
	}
}

func TestExecuteAndFetchCancelledKeepsToken(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &backendtest.MockBackend{
		RowsFunc: func(string) []backend.Row { return manyRows(120) },
		FetchFunc: func(_ context.Context, _ string, batch int) error {
			if batch == 1 {
				cancel()
			}
			return nil
		},
	}
	f := &RowFetcher{Backend: m, BatchSize: 50}

	res, err := f.ExecuteAndFetch(ctx, "q")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res == nil || res.Token == backend.NoReuseToken {
		t.Fatalf("result = %+v, want token from cancelled query", res)
	}
	if m.OpenHandles() != 0 {
		t.Error("handle not released after cancellation")
	}
}

func TestExecuteAndFetchMaxResults(t *testing.T) {
	m := &backendtest.MockBackend{RowsFunc: func(string) []backend.Row { return manyRows(120) }}
	f := &RowFetcher{Backend: m, BatchSize: 50, MaxResults: 60}

	res, err := f.ExecuteAndFetch(context.Background(), "q")
	if err != nil {
		t.Fatalf("ExecuteAndFetch: %v", err)
	}
	if len(res.Records) != 60 || !res.Truncated {
		t.Errorf("records = %d, truncated = %v; want 60, true", len(res.Records), res.Truncated)
	}

	f.MaxResults = 120
	res, err = f.ExecuteAndFetch(context.Background(), "q")
	if err != nil {
		t.Fatalf("ExecuteAndFetch: %v", err)
	}
	if len(res.Records) != 120 || res.Truncated {
		t.Errorf("records = %d, truncated = %v; want 120, false", len(res.Records), res.Truncated)
	}
}
