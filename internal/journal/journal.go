package journal

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlassist/sqlassist/internal/observability"
	"github.com/sqlassist/sqlassist/internal/storage"
)

const (
	KindGenerate = "generate"
	KindExecute  = "execute"

	parquetContentType = "application/vnd.apache.parquet"
)

// Entry is one generate or execute event.
type Entry struct {
	At         time.Time
	TraceID    string
	Kind       string
	Input      string
	Output     string
	RowCount   int
	Outcome    string
	Error      string
	DurationMs int64
}

// Recorder accepts journal entries without blocking the caller.
type Recorder interface {
	Record(entry Entry)
}

type Config struct {
	Service       string
	FlushInterval time.Duration
	BatchSize     int
	MaxBuffered   int
}

type parquetEntry struct {
	AtUnixMs   int64  `parquet:"at_unix_ms"`
	TraceID    string `parquet:"trace_id"`
	Kind       string `parquet:"kind"`
	Input      string `parquet:"input"`
	Output     string `parquet:"output"`
	RowCount   int64  `parquet:"row_count"`
	Outcome    string `parquet:"outcome"`
	Error      string `parquet:"error"`
	DurationMs int64  `parquet:"duration_ms"`
}

type Journal struct {
	store  storage.ObjectStore
	logger *slog.Logger
	cfg    Config
	now    func() time.Time

	mu       sync.Mutex
	pending  []Entry
	sequence int
	dropped  int64

	// flushMu serializes flushes so parts get distinct sequence numbers.
	flushMu sync.Mutex
	wake    chan struct{}
}

func New(store storage.ObjectStore, logger *slog.Logger, cfg Config) (*Journal, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if cfg.Service == "" {
		return nil, fmt.Errorf("service name is required")
	}
	if cfg.FlushInterval <= 0 {
		return nil, fmt.Errorf("flush interval must be > 0")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0")
	}
	if cfg.MaxBuffered < cfg.BatchSize {
		return nil, fmt.Errorf("max buffered must be >= batch size")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		store:  store,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
		wake:   make(chan struct{}, 1),
	}, nil
}

func (j *Journal) Record(entry Entry) {
	if entry.At.IsZero() {
		entry.At = j.now()
	}

	j.mu.Lock()
	if len(j.pending) >= j.cfg.MaxBuffered {
		j.dropped++
		j.mu.Unlock()
		observability.ObserveJournalDropped(1)
		return
	}
	j.pending = append(j.pending, entry)
	full := len(j.pending) >= j.cfg.BatchSize
	j.mu.Unlock()

	if full {
		select {
		case j.wake <- struct{}{}:
		default:
		}
	}
}

// Dropped reports how many entries were discarded since startup.
func (j *Journal) Dropped() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// Run flushes on every tick and whenever a batch fills, until ctx is done.
// The final flush on shutdown is the caller's job.
func (j *Journal) Run(ctx context.Context) {
	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-j.wake:
		}
		if err := j.Flush(ctx); err != nil {
			j.logger.WarnContext(ctx, "journal flush failed", slog.Any("error", err))
		}
	}
}

// Flush writes up to one batch per call until the buffer is empty. Entries of
// a failed part are dropped and counted.
func (j *Journal) Flush(ctx context.Context) error {
	j.flushMu.Lock()
	defer j.flushMu.Unlock()

	for {
		j.mu.Lock()
		if len(j.pending) == 0 {
			j.mu.Unlock()
			return nil
		}
		n := min(len(j.pending), j.cfg.BatchSize)
		batch := make([]Entry, n)
		copy(batch, j.pending[:n])
		j.pending = append(j.pending[:0], j.pending[n:]...)
		sequence := j.sequence
		j.sequence++
		j.mu.Unlock()

		if err := j.writePart(ctx, batch, sequence); err != nil {
			j.mu.Lock()
			j.dropped += int64(len(batch))
			j.mu.Unlock()
			observability.ObserveJournalDropped(len(batch))
			return err
		}
		observability.ObserveJournalFlushed(len(batch))
	}
}

func (j *Journal) writePart(ctx context.Context, batch []Entry, sequence int) error {
	data, err := EncodeEntries(batch)
	if err != nil {
		return err
	}
	key, err := storage.BuildJournalPath(j.cfg.Service, j.now(), sequence)
	if err != nil {
		return err
	}
	info, err := j.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: parquetContentType})
	if err != nil {
		return fmt.Errorf("write journal part: %w", err)
	}
	j.logger.DebugContext(ctx, "journal part written",
		slog.String("key", info.Key),
		slog.Int("entries", len(batch)),
		slog.Int64("bytes", info.Size),
	)
	return nil
}

func EncodeEntries(entries []Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("entries are required")
	}

	rows := make([]parquetEntry, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, parquetEntry{
			AtUnixMs:   entry.At.UTC().UnixMilli(),
			TraceID:    entry.TraceID,
			Kind:       entry.Kind,
			Input:      entry.Input,
			Output:     entry.Output,
			RowCount:   int64(entry.RowCount),
			Outcome:    entry.Outcome,
			Error:      entry.Error,
			DurationMs: entry.DurationMs,
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetEntry](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}
