package workflow

import "fmt"

// Node is a workflow position.
type Node string

const (
	NodeStart        Node = "Start"
	NodeClassified   Node = "Classified"
	NodeSQLGenerated Node = "SqlGenerated"
	NodeConfirm      Node = "Confirm"
	NodeExecuted     Node = "Executed"
	NodeResearched   Node = "Researched"
	NodeTaskCreated  Node = "TaskCreated"
	NodeFormatting   Node = "Formatting"
	NodeTerminal     Node = "Terminal"
)

// Step names used in transcript entries.
const (
	StepClassify   = "classify"
	StepGenerate   = "generate_sql"
	StepConfirm    = "confirm"
	StepExecute    = "execute"
	StepResearch   = "research"
	StepCreateTask = "create_task"
	StepFormat     = "format"
)

// StepName maps a node to the transcript step it produces.
func (n Node) StepName() string {
	switch n {
	case NodeClassified:
		return StepClassify
	case NodeSQLGenerated:
		return StepGenerate
	case NodeConfirm:
		return StepConfirm
	case NodeExecuted:
		return StepExecute
	case NodeResearched:
		return StepResearch
	case NodeTaskCreated:
		return StepCreateTask
	case NodeFormatting:
		return StepFormat
	default:
		return string(n)
	}
}

// Edge is a guarded transition. A nil guard always matches.
type Edge struct {
	To    Node
	When  func(*RequestState) bool
	Label string
}

func (e Edge) matches(s *RequestState) bool {
	return e.When == nil || e.When(s)
}

// TransitionTable lists the outgoing edges of each node in priority order.
type TransitionTable map[Node][]Edge

// EdgeOrder selects which capability runs first when a request needs both.
type EdgeOrder string

const (
	DataFirst EdgeOrder = "data_first"
	CodeFirst EdgeOrder = "code_first"
)

func always(to Node) Edge { return Edge{To: to, Label: "otherwise"} }

var (
	whenData     = func(s *RequestState) bool { return s.needsData() }
	whenCode     = func(s *RequestState) bool { return s.needsCode() }
	whenTask     = func(s *RequestState) bool { return s.needsTask() }
	whenSQL      = func(s *RequestState) bool { return s.hasSQL() }
	whenApproved = func(s *RequestState) bool { return s.approved() }
)

// DataFirstTable runs the data lookup before code review.
func DataFirstTable() TransitionTable {
	return TransitionTable{
		NodeStart: {always(NodeClassified)},
		NodeClassified: {
			{To: NodeSQLGenerated, When: whenData, Label: "needs data"},
			{To: NodeResearched, When: whenCode, Label: "needs code"},
			always(NodeFormatting),
		},
		NodeSQLGenerated: {
			{To: NodeConfirm, When: whenSQL, Label: "sql generated"},
			always(NodeFormatting),
		},
		NodeConfirm: {
			{To: NodeExecuted, When: whenApproved, Label: "approved"},
			always(NodeFormatting),
		},
		NodeExecuted: {
			{To: NodeResearched, When: whenCode, Label: "needs code"},
			always(NodeFormatting),
		},
		NodeResearched: {
			{To: NodeTaskCreated, When: whenTask, Label: "needs task"},
			always(NodeFormatting),
		},
		NodeTaskCreated: {always(NodeFormatting)},
		NodeFormatting:  {always(NodeTerminal)},
	}
}

// CodeFirstTable runs code review and task creation before the data lookup.
func CodeFirstTable() TransitionTable {
	return TransitionTable{
		NodeStart: {always(NodeClassified)},
		NodeClassified: {
			{To: NodeResearched, When: whenCode, Label: "needs code"},
			{To: NodeSQLGenerated, When: whenData, Label: "needs data"},
			always(NodeFormatting),
		},
		NodeResearched: {
			{To: NodeTaskCreated, When: whenTask, Label: "needs task"},
			{To: NodeSQLGenerated, When: whenData, Label: "needs data"},
			always(NodeFormatting),
		},
		NodeTaskCreated: {
			{To: NodeSQLGenerated, When: whenData, Label: "needs data"},
			always(NodeFormatting),
		},
		NodeSQLGenerated: {
			{To: NodeConfirm, When: whenSQL, Label: "sql generated"},
			always(NodeFormatting),
		},
		NodeConfirm: {
			{To: NodeExecuted, When: whenApproved, Label: "approved"},
			always(NodeFormatting),
		},
		NodeExecuted:   {always(NodeFormatting)},
		NodeFormatting: {always(NodeTerminal)},
	}
}

// TableFor returns the table for order, defaulting to DataFirst.
func TableFor(order EdgeOrder) TransitionTable {
	if order == CodeFirst {
		return CodeFirstTable()
	}
	return DataFirstTable()
}

// Targets lists the nodes reachable from n in one step.
func (t TransitionTable) Targets(n Node) []Node {
	edges := t[n]
	out := make([]Node, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.To)
	}
	return out
}

// Next returns the first edge out of n whose guard holds.
func (t TransitionTable) Next(n Node, s *RequestState) (Node, error) {
	for _, e := range t[n] {
		if e.matches(s) {
			return e.To, nil
		}
	}
	return "", fmt.Errorf("%w: no edge out of %s matches", ErrInvalidTransition, n)
}

// Validate checks that the table is acyclic, every non-terminal node has an
// unguarded fallback edge and Terminal is reachable from Start.
func (t TransitionTable) Validate() error {
	const (
		unvisited = iota
		onStack
		done
	)
	color := map[Node]int{}
	var visit func(Node) error
	visit = func(n Node) error {
		switch color[n] {
		case onStack:
			return fmt.Errorf("%w at %s", ErrCyclicTable, n)
		case done:
			return nil
		}
		color[n] = onStack
		for _, e := range t[n] {
			if err := visit(e.To); err != nil {
				return err
			}
		}
		color[n] = done
		return nil
	}
	if err := visit(NodeStart); err != nil {
		return err
	}
	if color[NodeTerminal] != done {
		return fmt.Errorf("%w: %s unreachable from %s", ErrInvalidTransition, NodeTerminal, NodeStart)
	}
	for n, edges := range t {
		if n == NodeTerminal {
			continue
		}
		if len(edges) == 0 || edges[len(edges)-1].When != nil {
			return fmt.Errorf("%w: %s has no fallback edge", ErrInvalidTransition, n)
		}
	}
	return nil
}
