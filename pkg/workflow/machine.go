package workflow

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"slackagent/pkg/logx"
)

// Transition is one recorded move between nodes.
type Transition struct {
	From      Node           `json:"from"`
	To        Node           `json:"to"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Machine tracks a single run's position in a transition table. It refuses
// transitions the table does not list and any revisit of a node.
type Machine struct {
	requestID   string
	current     Node
	table       TransitionTable
	visited     map[Node]bool
	transitions []Transition
	logger      *logx.Logger
	notify      chan<- Transition
	mu          sync.Mutex
}

// NewMachine creates a machine positioned at Start.
func NewMachine(requestID string, table TransitionTable, logger *logx.Logger) *Machine {
	if table == nil {
		table = DataFirstTable()
	}
	if logger == nil {
		logger = logx.NewLogger("workflow")
	}
	return &Machine{
		requestID: requestID,
		current:   NodeStart,
		table:     table,
		visited:   map[Node]bool{NodeStart: true},
		logger:    logger,
	}
}

// Current returns the current node.
func (m *Machine) Current() Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// IsValidTransition reports whether the table lists to as a target of from.
func (m *Machine) IsValidTransition(from, to Node) bool {
	return slices.Contains(m.table.Targets(from), to)
}

// Next evaluates the guards out of the current node against s.
func (m *Machine) Next(s *RequestState) (Node, error) {
	return m.table.Next(m.Current(), s)
}

// SetNotificationChannel registers a channel that receives every transition.
// Sends never block.
func (m *Machine) SetNotificationChannel(ch chan<- Transition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notify = ch
}

// TransitionTo moves to next and records the transition.
func (m *Machine) TransitionTo(ctx context.Context, next Node, metadata map[string]any) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("workflow transition cancelled: %w", ctx.Err())
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.current
	if !m.IsValidTransition(from, next) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, from, next)
	}
	if m.visited[next] {
		return fmt.Errorf("%w: %s", ErrNodeRevisited, next)
	}

	t := Transition{From: from, To: next, Timestamp: time.Now().UTC(), Metadata: metadata}
	m.transitions = append(m.transitions, t)
	m.visited[next] = true
	m.current = next

	m.logger.Debug("🔄 Workflow transition [%s]: %s → %s", m.requestID, from, next)

	if m.notify != nil {
		select {
		case m.notify <- t:
		default:
			m.logger.Warn("Transition channel full, dropping %s → %s for %s", from, next, m.requestID)
		}
	}
	return nil
}

// Transitions returns the recorded history.
func (m *Machine) Transitions() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transition{}, m.transitions...)
}

// Path returns Start followed by every node entered, in order.
func (m *Machine) Path() []Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	path := make([]Node, 0, len(m.transitions)+1)
	path = append(path, NodeStart)
	for _, t := range m.transitions {
		path = append(path, t.To)
	}
	return path
}
