package dataquery

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/term"

	"slackagent/pkg/logx"
	"slackagent/pkg/workflow"
)

// AutoApprover approves every query.
type AutoApprover struct{}

func (AutoApprover) Confirm(context.Context, workflow.ConfirmationRequest) workflow.ConfirmationStatus {
	return workflow.ConfirmationApproved
}

// StaticConfirmer always answers with Status. Use it to disable execution
// (Rejected) or to exercise the timeout path (Pending).
type StaticConfirmer struct {
	Status workflow.ConfirmationStatus
}

func (s StaticConfirmer) Confirm(context.Context, workflow.ConfirmationRequest) workflow.ConfirmationStatus {
	return s.Status
}

// TerminalConfirmer prompts on a terminal. Without a TTY it reports Pending.
// One goroutine reads the input for the confirmer's lifetime; a line typed
// while no prompt is open is dropped, so a late answer to a timed-out prompt
// never answers the next one.
type TerminalConfirmer struct {
	in    io.Reader
	out   io.Writer
	isTTY func() bool

	prompt sync.Mutex // one prompt at a time
	start  sync.Once

	mu      sync.Mutex
	waiting bool
	answers chan string
	closed  chan struct{}
	dropped atomic.Int32
}

// NewTerminalConfirmer prompts on stdin/stdout.
func NewTerminalConfirmer() *TerminalConfirmer {
	return &TerminalConfirmer{
		in:    os.Stdin,
		out:   os.Stdout,
		isTTY: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
	}
}

// Confirm implements workflow.Confirmer.
func (t *TerminalConfirmer) Confirm(ctx context.Context, req workflow.ConfirmationRequest) workflow.ConfirmationStatus {
	if !t.isTTY() {
		return workflow.ConfirmationPending
	}
	t.prompt.Lock()
	defer t.prompt.Unlock()

	t.setWaiting(true)
	t.start.Do(func() {
		t.answers = make(chan string, 1)
		t.closed = make(chan struct{})
		go t.readLines()
	})
	fmt.Fprintf(t.out, "\n次のSQLを実行しますか？\n%s\n[y/N]: ", req.SQL)

	select {
	case <-ctx.Done():
		t.setWaiting(false)
		fmt.Fprintln(t.out, "\n(timed out)")
		return workflow.ConfirmationPending
	case line := <-t.answers:
		return parseAnswer(line)
	case <-t.closed:
		select {
		case line := <-t.answers:
			return parseAnswer(line)
		default:
			return workflow.ConfirmationPending
		}
	}
}

// setWaiting opens or closes the prompt and discards any answer left over
// from an earlier one.
func (t *TerminalConfirmer) setWaiting(waiting bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.waiting = waiting
	select {
	case <-t.answers:
	default:
	}
}

func (t *TerminalConfirmer) readLines() {
	r := bufio.NewReader(t.in)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			t.mu.Lock()
			if t.waiting {
				t.waiting = false
				t.answers <- line
			} else {
				t.dropped.Add(1)
			}
			t.mu.Unlock()
		}
		if err != nil {
			close(t.closed)
			return
		}
	}
}

func parseAnswer(line string) workflow.ConfirmationStatus {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "はい":
		return workflow.ConfirmationApproved
	default:
		return workflow.ConfirmationRejected
	}
}

type memoKey struct {
	requestID string
	sql       string
}

// Memo makes a confirmer idempotent per (request, query). Only final
// statuses are remembered, so a timed-out confirmation can be asked again.
type Memo struct {
	inner workflow.Confirmer
	cache *lru.Cache[memoKey, workflow.ConfirmationStatus]
}

// NewMemo wraps inner with a bounded cache of size entries.
func NewMemo(inner workflow.Confirmer, size int) (*Memo, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[memoKey, workflow.ConfirmationStatus](size)
	if err != nil {
		return nil, fmt.Errorf("confirmation cache: %w", err)
	}
	return &Memo{inner: inner, cache: cache}, nil
}

// Confirm implements workflow.Confirmer.
func (m *Memo) Confirm(ctx context.Context, req workflow.ConfirmationRequest) workflow.ConfirmationStatus {
	key := memoKey{requestID: req.RequestID, sql: req.SQL}
	if status, ok := m.cache.Get(key); ok {
		return status
	}
	status := m.inner.Confirm(ctx, req)
	if status != workflow.ConfirmationPending {
		m.cache.Add(key, status)
	} else {
		logx.Debug(ctx, "confirm", "confirmation for %s still pending", req.RequestID)
	}
	return status
}

var (
	_ workflow.Confirmer = AutoApprover{}
	_ workflow.Confirmer = StaticConfirmer{}
	_ workflow.Confirmer = (*TerminalConfirmer)(nil)
	_ workflow.Confirmer = (*Memo)(nil)
)
