package stats

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestIngestStats_Counters(t *testing.T) {
	stats := NewIngestStats()

	stats.RecordProcessed()
	stats.RecordProcessed()
	stats.RecordInsert()
	stats.RecordDuplicate()
	stats.RecordReject()
	stats.RecordUpsert()

	if stats.Processed() != 2 {
		t.Errorf("Processed() = %d, want 2", stats.Processed())
	}
	if stats.Inserted() != 1 {
		t.Errorf("Inserted() = %d, want 1", stats.Inserted())
	}
	if stats.Duplicates() != 1 {
		t.Errorf("Duplicates() = %d, want 1", stats.Duplicates())
	}
	if stats.Rejected() != 1 {
		t.Errorf("Rejected() = %d, want 1", stats.Rejected())
	}
	if stats.Upserts() != 1 {
		t.Errorf("Upserts() = %d, want 1", stats.Upserts())
	}
}

func TestIngestStats_Reset(t *testing.T) {
	stats := NewIngestStats()

	stats.RecordProcessed()
	stats.RecordInsert()
	stats.Reset()

	if stats.Processed() != 0 || stats.Inserted() != 0 {
		t.Errorf("after Reset: %s, want all zero", stats)
	}
}

func TestIngestStats_String(t *testing.T) {
	stats := NewIngestStats()

	stats.RecordProcessed()
	stats.RecordProcessed()
	stats.RecordInsert()
	stats.RecordDuplicate()

	expected := "processed=2 inserted=1 duplicates=1 rejected=0 upserts=0"
	if stats.String() != expected {
		t.Errorf("String() = %q, want %q", stats.String(), expected)
	}
}

func TestIngestStats_Concurrent(t *testing.T) {
	stats := NewIngestStats()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			stats.RecordProcessed()
		}()
		go func() {
			defer wg.Done()
			stats.RecordUpsert()
		}()
	}

	wg.Wait()

	if stats.Processed() != 100 {
		t.Errorf("Processed() = %d, want 100", stats.Processed())
	}
	if stats.Upserts() != 100 {
		t.Errorf("Upserts() = %d, want 100", stats.Upserts())
	}
}

func TestIngestStats_LogSummary(t *testing.T) {
	stats := NewIngestStats()
	stats.RecordProcessed()
	stats.RecordInsert()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{}))

	stats.LogSummary(logger)

	out := buf.String()
	if !strings.Contains(out, "ingestion progress") {
		t.Errorf("log output missing message: %q", out)
	}
	if !strings.Contains(out, "processed=1") || !strings.Contains(out, "inserted=1") {
		t.Errorf("log output missing counters: %q", out)
	}
}
