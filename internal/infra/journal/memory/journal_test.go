package memory

import (
	"context"
	"testing"
	"time"

	"worldcore/internal/kernel"
	"worldcore/pkg/patch"
)

func entry(n int) kernel.JournalEntry {
	return kernel.JournalEntry{
		TransactionID: patch.TransactionID(n),
		Source:        "app",
		Frame:         uint64(n),
		Status:        kernel.JournalCommitted,
		PatchCount:    n,
		At:            time.Unix(int64(n), 0).UTC(),
	}
}

func TestRecordAndTail(t *testing.T) {
	j := New(0)
	ctx := context.Background()
	for n := 1; n <= 3; n++ {
		if err := j.Record(ctx, entry(n)); err != nil {
			t.Fatalf("Record %d: %v", n, err)
		}
	}
	tail, err := j.Tail(ctx, 2)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(tail) != 2 || tail[0].Frame != 3 || tail[1].Frame != 2 {
		t.Fatalf("Tail newest-first: %+v", tail)
	}
	all, err := j.Tail(ctx, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("Tail(0)=%d entries, %v", len(all), err)
	}
	over, err := j.Tail(ctx, 10)
	if err != nil || len(over) != 3 {
		t.Fatalf("Tail(10)=%d entries, %v", len(over), err)
	}
}

func TestBoundedJournalDropsOldest(t *testing.T) {
	j := New(2)
	ctx := context.Background()
	for n := 1; n <= 4; n++ {
		if err := j.Record(ctx, entry(n)); err != nil {
			t.Fatalf("Record %d: %v", n, err)
		}
	}
	tail, err := j.Tail(ctx, 0)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(tail) != 2 || tail[0].Frame != 4 || tail[1].Frame != 3 {
		t.Fatalf("bounded journal kept %+v", tail)
	}
}

func TestClose(t *testing.T) {
	j := New(1)
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
