package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeLines(t *testing.T, name string, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func messageLine(i int) string {
	return fmt.Sprintf(`{"timestamp":"t","level":"INFO","fields":{"message":"m%d"},"target":"a"}`, i)
}

// waitStatus polls until the worker reaches a terminal status.
func waitStatus(t *testing.T, p *Processor) Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		switch st := p.Status(); st {
		case StatusDone, StatusIoFailed, StatusCancelled:
			return st
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("worker did not reach a terminal status, stuck at %v", p.Status())
	return StatusNotStarted
}

func TestProcessorDone(t *testing.T) {
	path := writeLines(t, "app.log", []string{
		messageLine(1),
		"",
		"   ",
		`{not json`,
		messageLine(2),
	})

	store := NewStore()
	p := NewProcessor(store)
	go p.Run()
	defer p.Close()

	p.SubmitOpen(path)
	if st := waitStatus(t, p); st != StatusDone {
		t.Fatalf("status = %v, want done", st)
	}

	// Blank lines skipped, malformed line dropped with a diagnostic.
	if got := store.Stats().Messages; got != 2 {
		t.Errorf("Messages = %d, want 2", got)
	}
}

func TestProcessorLongLine(t *testing.T) {
	// A multi-megabyte line is valid input and must ingest like any other;
	// it must not abort the rest of the file.
	long := fmt.Sprintf(`{"timestamp":"t","level":"INFO","fields":{"message":"%s"},"target":"a"}`,
		strings.Repeat("a", 2<<20))
	path := writeLines(t, "app.log", []string{
		messageLine(1),
		long,
		messageLine(2),
		messageLine(3),
	})

	store := NewStore()
	p := NewProcessor(store)
	go p.Run()
	defer p.Close()

	p.SubmitOpen(path)
	if st := waitStatus(t, p); st != StatusDone {
		t.Fatalf("status = %v, want done", st)
	}
	if got := store.Stats().Messages; got != 4 {
		t.Errorf("Messages = %d, want 4 (long line included)", got)
	}
}

func TestProcessorIoFailed(t *testing.T) {
	store := NewStore()
	p := NewProcessor(store)
	go p.Run()
	defer p.Close()

	p.SubmitOpen(filepath.Join(t.TempDir(), "no-such-file.log"))
	if st := waitStatus(t, p); st != StatusIoFailed {
		t.Fatalf("status = %v, want io-failed", st)
	}
	if got := store.Stats().Messages; got != 0 {
		t.Errorf("Messages = %d, want 0 (store cleared before open)", got)
	}
}

func TestProcessorReopenOverwritesStatus(t *testing.T) {
	path := writeLines(t, "app.log", []string{messageLine(1)})

	store := NewStore()
	p := NewProcessor(store)
	go p.Run()
	defer p.Close()

	p.SubmitOpen(filepath.Join(t.TempDir(), "missing.log"))
	if st := waitStatus(t, p); st != StatusIoFailed {
		t.Fatalf("status = %v, want io-failed", st)
	}

	// Status starts out at the prior terminal value, so wait for Done
	// specifically: the reopen overwrites, it does not accumulate.
	p.SubmitOpen(path)
	deadline := time.Now().Add(5 * time.Second)
	for p.Status() != StatusDone {
		if time.Now().After(deadline) {
			t.Fatalf("status = %v, want done after reopen", p.Status())
		}
		time.Sleep(time.Millisecond)
	}
	if got := store.Stats().Messages; got != 1 {
		t.Errorf("Messages = %d, want 1", got)
	}
}

func TestCancellationCheckpoint(t *testing.T) {
	lines := make([]string, 2000)
	for i := range lines {
		lines[i] = messageLine(i)
	}
	path := writeLines(t, "big.log", lines)

	store := NewStore()
	p := NewProcessor(store)

	// Post the cancel before driving the ingestion directly, simulating a
	// task that arrives mid-file: the worker must notice it at the first
	// checkpoint without consuming it.
	p.SubmitCancel()
	p.openLogs(path)

	if st := p.Status(); st != StatusCancelled {
		t.Fatalf("status = %v, want cancelled", st)
	}
	got := store.Stats().Messages
	if got < 500 || got >= 1500 {
		t.Errorf("Messages = %d, want within [500, 1500)", got)
	}

	// The posted task is still in the mailbox for the next loop turn.
	p.mu.Lock()
	task := p.task
	p.mu.Unlock()
	if task == nil || task.Kind != TaskCancel {
		t.Errorf("mailbox = %+v, want the unconsumed cancel task", task)
	}
}

func TestSupersedingOpenCancels(t *testing.T) {
	lines := make([]string, 2000)
	for i := range lines {
		lines[i] = messageLine(i)
	}
	big := writeLines(t, "big.log", lines)
	small := writeLines(t, "small.log", []string{messageLine(0)})

	store := NewStore()
	p := NewProcessor(store)

	// A new OpenLogs posted mid-flight also cancels the current file.
	p.SubmitOpen(small)
	p.openLogs(big)
	if st := p.Status(); st != StatusCancelled {
		t.Fatalf("status = %v, want cancelled", st)
	}

	// The worker loop then picks the superseding open up. Status starts out
	// cancelled, so wait for Done specifically.
	go p.Run()
	defer p.Close()
	deadline := time.Now().Add(5 * time.Second)
	for p.Status() != StatusDone {
		if time.Now().After(deadline) {
			t.Fatalf("status = %v, want done for superseding open", p.Status())
		}
		time.Sleep(time.Millisecond)
	}
	if got := store.Stats().Messages; got != 1 {
		t.Errorf("Messages = %d, want 1 from the superseding file", got)
	}
}

func TestMailboxLastWriterWins(t *testing.T) {
	p := NewProcessor(NewStore())

	p.SubmitOpen("a.log")
	p.SubmitOpen("b.log")

	p.mu.Lock()
	task := p.task
	p.mu.Unlock()
	if task == nil || task.Kind != TaskOpenLogs || task.Path != "b.log" {
		t.Errorf("mailbox = %+v, want only the later open", task)
	}
}

func TestCancelWhileIdleIsNoop(t *testing.T) {
	path := writeLines(t, "app.log", []string{messageLine(1)})

	store := NewStore()
	p := NewProcessor(store)
	go p.Run()
	defer p.Close()

	p.SubmitCancel()
	time.Sleep(50 * time.Millisecond)
	if st := p.Status(); st != StatusNotStarted {
		t.Fatalf("status = %v, want not-started (idle cancel is a no-op)", st)
	}

	p.SubmitOpen(path)
	if st := waitStatus(t, p); st != StatusDone {
		t.Fatalf("status = %v, want done", st)
	}
}
