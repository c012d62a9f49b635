package storage

import (
	"testing"
	"time"
)

func TestBuildJournalPath(t *testing.T) {
	ts := time.Date(2026, time.February, 19, 4, 5, 0, 0, time.FixedZone("x", -5*3600))
	key, err := BuildJournalPath("sqlassist-api", ts, 3)
	if err != nil {
		t.Fatalf("BuildJournalPath() error = %v", err)
	}
	want := "journal/sqlassist-api/date=2026-02-19/hour=09/part-1771491900000-00003.parquet"
	if key != want {
		t.Fatalf("BuildJournalPath() = %q, want %q", key, want)
	}
}

func TestBuildJournalPathRejectsInvalidInput(t *testing.T) {
	if _, err := BuildJournalPath("../oops", time.Now(), 1); err == nil {
		t.Fatal("expected invalid service error")
	}
	if _, err := BuildJournalPath("sqlassist-api", time.Now(), -1); err == nil {
		t.Fatal("expected negative sequence error")
	}
}
