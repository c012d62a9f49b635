package journal

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlassist/sqlassist/internal/storage"
)

func TestEncodeEntriesRoundTrip(t *testing.T) {
	at := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	data, err := EncodeEntries([]Entry{
		{At: at, TraceID: "t-1", Kind: KindGenerate, Input: "list users", Output: "SELECT * FROM users;", Outcome: "ok", DurationMs: 120},
		{At: at, TraceID: "t-2", Kind: KindExecute, Input: "USE shop;\nSELECT 1;", Output: "SELECT 1;", RowCount: 1, Outcome: "ok"},
	})
	if err != nil {
		t.Fatalf("EncodeEntries() error = %v", err)
	}

	rows := readRows(t, data, 2)
	if rows[0].Kind != KindGenerate || rows[0].AtUnixMs != at.UnixMilli() || rows[0].DurationMs != 120 {
		t.Fatalf("first row = %+v", rows[0])
	}
	if rows[1].RowCount != 1 || rows[1].Output != "SELECT 1;" {
		t.Fatalf("second row = %+v", rows[1])
	}
}

func TestEncodeEntriesRejectsEmptyBatch(t *testing.T) {
	if _, err := EncodeEntries(nil); err == nil {
		t.Fatal("expected empty batch error")
	}
}

func TestFlushWritesBatchesUnderJournalPrefix(t *testing.T) {
	store := &fakeStore{}
	j := newTestJournal(t, store, Config{Service: "sqlassist-api", FlushInterval: time.Minute, BatchSize: 2, MaxBuffered: 10})

	for i := 0; i < 3; i++ {
		j.Record(Entry{Kind: KindExecute, Input: "SELECT 1;", Outcome: "ok"})
	}
	if err := j.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if len(store.puts) != 2 {
		t.Fatalf("puts = %d, want 2", len(store.puts))
	}
	if store.puts[0].key != "journal/sqlassist-api/date=2026-03-02/hour=10/part-1772445600000-00000.parquet" {
		t.Fatalf("first key = %q", store.puts[0].key)
	}
	if !strings.HasSuffix(store.puts[1].key, "-00001.parquet") {
		t.Fatalf("second key = %q", store.puts[1].key)
	}
	if store.puts[0].contentType != parquetContentType {
		t.Fatalf("content type = %q", store.puts[0].contentType)
	}
	readRows(t, store.puts[0].data, 2)
	readRows(t, store.puts[1].data, 1)
	if j.Pending() != 0 {
		t.Fatalf("Pending() = %d", j.Pending())
	}
}

func TestFlushWithNothingPendingIsNoop(t *testing.T) {
	store := &fakeStore{}
	j := newTestJournal(t, store, Config{Service: "svc", FlushInterval: time.Minute, BatchSize: 1, MaxBuffered: 1})
	if err := j.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if len(store.puts) != 0 {
		t.Fatalf("puts = %d", len(store.puts))
	}
}

func TestRecordDropsWhenBufferIsFull(t *testing.T) {
	j := newTestJournal(t, &fakeStore{}, Config{Service: "svc", FlushInterval: time.Minute, BatchSize: 2, MaxBuffered: 2})
	for i := 0; i < 5; i++ {
		j.Record(Entry{Kind: KindGenerate})
	}
	if j.Pending() != 2 {
		t.Fatalf("Pending() = %d", j.Pending())
	}
	if j.Dropped() != 3 {
		t.Fatalf("Dropped() = %d", j.Dropped())
	}
}

func TestFlushFailureDropsBatch(t *testing.T) {
	store := &fakeStore{err: errors.New("bucket unavailable")}
	j := newTestJournal(t, store, Config{Service: "svc", FlushInterval: time.Minute, BatchSize: 5, MaxBuffered: 5})
	j.Record(Entry{Kind: KindExecute})
	j.Record(Entry{Kind: KindExecute})

	err := j.Flush(context.Background())
	if err == nil || !strings.Contains(err.Error(), "bucket unavailable") {
		t.Fatalf("Flush() error = %v", err)
	}
	if j.Dropped() != 2 || j.Pending() != 0 {
		t.Fatalf("dropped/pending = %d/%d", j.Dropped(), j.Pending())
	}
}

func TestRunFlushesWhenBatchFills(t *testing.T) {
	store := &fakeStore{}
	j := newTestJournal(t, store, Config{Service: "svc", FlushInterval: time.Hour, BatchSize: 2, MaxBuffered: 4})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		j.Run(ctx)
	}()

	j.Record(Entry{Kind: KindGenerate})
	j.Record(Entry{Kind: KindGenerate})

	deadline := time.Now().Add(5 * time.Second)
	for store.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for batch flush")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestNewValidatesConfig(t *testing.T) {
	cases := []Config{
		{Service: "", FlushInterval: time.Second, BatchSize: 1, MaxBuffered: 1},
		{Service: "svc", FlushInterval: 0, BatchSize: 1, MaxBuffered: 1},
		{Service: "svc", FlushInterval: time.Second, BatchSize: 0, MaxBuffered: 1},
		{Service: "svc", FlushInterval: time.Second, BatchSize: 5, MaxBuffered: 1},
	}
	for _, cfg := range cases {
		if _, err := New(&fakeStore{}, nil, cfg); err == nil {
			t.Fatalf("New(%+v) expected error", cfg)
		}
	}
	if _, err := New(nil, nil, Config{Service: "svc", FlushInterval: time.Second, BatchSize: 1, MaxBuffered: 1}); err == nil {
		t.Fatal("expected nil store error")
	}
}

func newTestJournal(t *testing.T, store storage.ObjectStore, cfg Config) *Journal {
	t.Helper()
	j, err := New(store, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	j.now = func() time.Time { return time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC) }
	return j
}

func readRows(t *testing.T, data []byte, want int) []parquetEntry {
	t.Helper()
	reader := parquet.NewGenericReader[parquetEntry](bytes.NewReader(data))
	defer func() { _ = reader.Close() }()
	rows := make([]parquetEntry, want)
	count, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatalf("reader.Read() error = %v", err)
	}
	if count != want {
		t.Fatalf("read rows = %d, want %d", count, want)
	}
	return rows
}

type putCall struct {
	key         string
	contentType string
	data        []byte
}

type fakeStore struct {
	mu   sync.Mutex
	puts []putCall
	err  error
}

func (f *fakeStore) Put(_ context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	if f.err != nil {
		return storage.ObjectInfo{}, f.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	f.mu.Lock()
	f.puts = append(f.puts, putCall{key: key, contentType: opts.ContentType, data: data})
	f.mu.Unlock()
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}
