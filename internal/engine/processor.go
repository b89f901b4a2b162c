package engine

import (
	"bufio"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/fernworks/treelight/internal/storage"
)

// Status is the worker's single shared status value. Collaborators poll it;
// no history of past statuses is kept, and a new OpenLogs overwrites any
// prior terminal status.
type Status uint8

const (
	StatusNotStarted Status = iota
	StatusReading
	StatusDone
	StatusIoFailed
	StatusCancelled
)

func (st Status) String() string {
	switch st {
	case StatusNotStarted:
		return "not-started"
	case StatusReading:
		return "reading"
	case StatusDone:
		return "done"
	case StatusIoFailed:
		return "io-failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TaskKind discriminates worker tasks.
type TaskKind uint8

const (
	TaskOpenLogs TaskKind = iota
	TaskCancel
)

// Task is one request to the worker.
type Task struct {
	Kind TaskKind
	Path string
}

// checkInterval is how many lines are read between looks at the mailbox
// during ingestion. Cancellation latency is bounded by one interval; a
// smaller value would buy latency with lock traffic.
const checkInterval = 1000

// Processor owns the single long-lived ingestion worker. Tasks are handed
// over through a single-slot mailbox: posting overwrites an unconsumed task,
// last writer wins, so open requests supersede rather than queue up. That is
// the intended contract; the slot must not be turned into a queue.
type Processor struct {
	store *Store

	mu     sync.Mutex
	cond   *sync.Cond
	task   *Task
	status Status
	closed bool
}

func NewProcessor(store *Store) *Processor {
	p := &Processor{store: store}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// SubmitOpen asks the worker to ingest the file at path, superseding any
// task it has not yet picked up. Non-blocking.
func (p *Processor) SubmitOpen(path string) {
	p.submit(Task{Kind: TaskOpenLogs, Path: path})
}

// SubmitCancel asks the worker to abandon an in-flight ingestion.
// Cancelling an idle worker is a no-op. Non-blocking.
func (p *Processor) SubmitCancel() {
	p.submit(Task{Kind: TaskCancel})
}

func (p *Processor) submit(t Task) {
	p.mu.Lock()
	p.task = &t
	p.mu.Unlock()
	p.cond.Signal()
}

// Status returns the current worker status without blocking.
func (p *Processor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Processor) setStatus(st Status) {
	p.mu.Lock()
	p.status = st
	p.mu.Unlock()
}

// pending reports whether a new task is waiting in the mailbox, without
// consuming it.
func (p *Processor) pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.task != nil || p.closed
}

// Run is the worker loop: block until a task is present, take and clear it,
// execute it, repeat. It returns only after Close.
func (p *Processor) Run() {
	for {
		p.mu.Lock()
		for p.task == nil && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		t := *p.task
		p.task = nil
		p.mu.Unlock()

		switch t.Kind {
		case TaskOpenLogs:
			p.openLogs(t.Path)
		case TaskCancel:
			// Only meaningful while an OpenLogs is mid-flight. Found at
			// rest in the mailbox it is simply drained.
		}
	}
}

// Close wakes the worker and stops the loop.
func (p *Processor) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

// openLogs streams one file into the store. The store is reset up front, so
// an open failure leaves it empty, not stale.
func (p *Processor) openLogs(path string) {
	p.store.Clear()
	p.setStatus(StatusReading)

	rc, err := storage.Open(path)
	if err != nil {
		log.Printf("treelight: open %s: %v", path, err)
		p.setStatus(StatusIoFailed)
		return
	}
	defer rc.Close()

	// Lines are read without a length cap: a long line is valid input, not
	// a malformed one, so it must never fail the file.
	br := bufio.NewReaderSize(rc, 64*1024)
	lines := 0
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			lines++
			if lines >= checkInterval {
				lines = 0
				if p.pending() {
					p.setStatus(StatusCancelled)
					return
				}
			}
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				p.store.IngestLine(trimmed)
			}
		}
		if err == io.EOF {
			p.setStatus(StatusDone)
			return
		}
		if err != nil {
			log.Printf("treelight: read %s: %v", path, err)
			p.setStatus(StatusIoFailed)
			return
		}
	}
}
