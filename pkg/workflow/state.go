package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ConfirmationStatus is the state of the SQL confirmation gate.
type ConfirmationStatus int

const (
	ConfirmationPending ConfirmationStatus = iota
	ConfirmationApproved
	ConfirmationRejected
)

func (c ConfirmationStatus) String() string {
	switch c {
	case ConfirmationPending:
		return "pending"
	case ConfirmationApproved:
		return "approved"
	case ConfirmationRejected:
		return "rejected"
	default:
		return "invalid"
	}
}

// RouteDecision is the classifier's verdict on which capabilities a request needs.
type RouteDecision struct {
	NeedsDataLookup   bool   `json:"needs_data_lookup"`
	NeedsCodeReview   bool   `json:"needs_code_review"`
	NeedsTaskCreation bool   `json:"needs_task_creation"`
	Reason            string `json:"reason"`

	// Fallback marks a decision produced after the classifier itself failed.
	Fallback bool `json:"fallback,omitempty"`
}

// SimpleReply returns the all-false route used for ambiguous input and failures.
func SimpleReply(reason string) RouteDecision {
	return RouteDecision{Reason: reason}
}

// IsSimple reports whether no capability is needed.
func (r RouteDecision) IsSimple() bool {
	return !r.NeedsDataLookup && !r.NeedsCodeReview && !r.NeedsTaskCreation
}

// Label is a stable metrics label such as "data+code" or "simple".
func (r RouteDecision) Label() string {
	var parts []string
	if r.NeedsDataLookup {
		parts = append(parts, "data")
	}
	if r.NeedsCodeReview {
		parts = append(parts, "code")
	}
	if r.NeedsTaskCreation {
		parts = append(parts, "task")
	}
	if len(parts) == 0 {
		return "simple"
	}
	return strings.Join(parts, "+")
}

// QueryResult holds the rows returned by an approved query.
type QueryResult struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Truncated bool             `json:"truncated,omitempty"`
}

// RowCount returns the number of rows returned.
func (q QueryResult) RowCount() int {
	return len(q.Rows)
}

// TaskRecord describes a follow-up task created from a code analysis.
type TaskRecord struct {
	ID          string    `json:"id,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Steps       []string  `json:"steps"`
	SourceLink  string    `json:"source_link"`
	Priority    string    `json:"priority,omitempty"`
	DueDate     time.Time `json:"due_date,omitempty"`
	URL         string    `json:"url,omitempty"`
}

// StepMessage is one transcript entry. Kind is ErrorKindNone unless the
// entry records a failure.
type StepMessage struct {
	StepName string    `json:"step_name"`
	Content  string    `json:"content"`
	Kind     ErrorKind `json:"kind,omitempty"`
}

// Request is the ingress record a workflow run starts from.
type Request struct {
	ID         string
	Query      string
	UserID     string
	ChannelID  string
	MessageTS  string
	ThreadTS   string
	SourceLink string
}

// RequestState is owned by exactly one run. Fields are only changed through
// apply, which enforces set-once and forward-only rules.
type RequestState struct {
	req           Request
	route         fn.Option[RouteDecision]
	generatedSQL  fn.Option[string]
	confirmation  ConfirmationStatus
	dataResult    fn.Option[QueryResult]
	codeAnalysis  fn.Option[string]
	taskRecord    fn.Option[TaskRecord]
	transcript    []StepMessage
	finalResponse fn.Option[string]
	err           fn.Option[ErrorInfo]
	path          []Node
}

// NewRequestState starts a run for req, assigning an id when none is set.
func NewRequestState(req Request) *RequestState {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	return &RequestState{req: req}
}

func (s *RequestState) ID() string                         { return s.req.ID }
func (s *RequestState) Query() string                      { return s.req.Query }
func (s *RequestState) Request() Request                   { return s.req }
func (s *RequestState) Route() fn.Option[RouteDecision]    { return s.route }
func (s *RequestState) GeneratedSQL() fn.Option[string]    { return s.generatedSQL }
func (s *RequestState) Confirmation() ConfirmationStatus   { return s.confirmation }
func (s *RequestState) DataResult() fn.Option[QueryResult] { return s.dataResult }
func (s *RequestState) CodeAnalysis() fn.Option[string]    { return s.codeAnalysis }
func (s *RequestState) TaskRecord() fn.Option[TaskRecord]  { return s.taskRecord }
func (s *RequestState) FinalResponse() fn.Option[string]   { return s.finalResponse }
func (s *RequestState) Error() fn.Option[ErrorInfo]        { return s.err }
func (s *RequestState) routeOrSimple() RouteDecision       { return s.route.UnwrapOr(RouteDecision{}) }
func (s *RequestState) hasSQL() bool                       { return s.generatedSQL.IsSome() }
func (s *RequestState) approved() bool                     { return s.confirmation == ConfirmationApproved }
func (s *RequestState) needsData() bool                    { return s.routeOrSimple().NeedsDataLookup }
func (s *RequestState) needsCode() bool                    { return s.routeOrSimple().NeedsCodeReview }
func (s *RequestState) needsTask() bool                    { return s.routeOrSimple().NeedsTaskCreation }

// Transcript returns a copy of the transcript in insertion order.
func (s *RequestState) Transcript() []StepMessage {
	out := make([]StepMessage, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// Path returns the nodes the run visited, starting with Start.
func (s *RequestState) Path() []Node {
	return append([]Node(nil), s.path...)
}

// terminate forces the fallback reply after a fatal error. It bypasses the
// patch rules but still never overwrites a reply that was already set.
func (s *RequestState) terminate(step string, kind ErrorKind, cause error) {
	msg := StepMessage{StepName: step, Content: cause.Error(), Kind: kind}
	s.transcript = append(s.transcript, msg)
	if s.err.IsNone() {
		s.err = fn.Some(ErrorInfo{Kind: kind, Step: step, Message: msg.Content})
	}
	if s.finalResponse.IsNone() {
		s.finalResponse = fn.Some(FatalFallbackResponse)
	}
}

// Failures returns the transcript entries that record a failure.
func (s *RequestState) Failures() []StepMessage {
	var out []StepMessage
	for _, m := range s.transcript {
		if m.Kind != ErrorKindNone {
			out = append(out, m)
		}
	}
	return out
}

// Patch is the set of changes one step returns.
type Patch struct {
	Route         fn.Option[RouteDecision]
	GeneratedSQL  fn.Option[string]
	Confirmation  fn.Option[ConfirmationStatus]
	DataResult    fn.Option[QueryResult]
	CodeAnalysis  fn.Option[string]
	TaskRecord    fn.Option[TaskRecord]
	Messages      []StepMessage
	FinalResponse fn.Option[string]
}

// Note returns a patch holding a single transcript entry.
func Note(step, content string) Patch {
	return Patch{Messages: []StepMessage{{StepName: step, Content: content}}}
}

// Failure returns a patch holding a single failure entry.
func Failure(step string, kind ErrorKind, content string) Patch {
	return Patch{Messages: []StepMessage{{StepName: step, Content: content, Kind: kind}}}
}

func setOnce[T any](field string, cur, next fn.Option[T]) error {
	if next.IsSome() && cur.IsSome() {
		return fmt.Errorf("%w: %s", ErrFieldAlreadySet, field)
	}
	return nil
}

// apply validates p against the current state and merges it. Either the
// whole patch is applied or none of it.
func (s *RequestState) apply(p Patch) error {
	if s.finalResponse.IsSome() {
		return ErrStateTerminal
	}
	if err := setOnce("route", s.route, p.Route); err != nil {
		return err
	}
	if err := setOnce("generated_sql", s.generatedSQL, p.GeneratedSQL); err != nil {
		return err
	}
	if err := setOnce("code_analysis", s.codeAnalysis, p.CodeAnalysis); err != nil {
		return err
	}
	if err := setOnce("task_record", s.taskRecord, p.TaskRecord); err != nil {
		return err
	}
	if err := setOnce("data_result", s.dataResult, p.DataResult); err != nil {
		return err
	}

	confirmation := s.confirmation
	var confErr error
	p.Confirmation.WhenSome(func(next ConfirmationStatus) {
		switch {
		case next == confirmation:
		case confirmation == ConfirmationPending:
			confirmation = next
		default:
			confErr = fmt.Errorf("%w: %s → %s", ErrConfirmationRegression, confirmation, next)
		}
	})
	if confErr != nil {
		return confErr
	}
	if p.DataResult.IsSome() && confirmation != ConfirmationApproved {
		return ErrNotApproved
	}

	s.confirmation = confirmation
	p.Route.WhenSome(func(r RouteDecision) { s.route = fn.Some(r) })
	p.GeneratedSQL.WhenSome(func(q string) { s.generatedSQL = fn.Some(q) })
	p.DataResult.WhenSome(func(r QueryResult) { s.dataResult = fn.Some(r) })
	p.CodeAnalysis.WhenSome(func(a string) { s.codeAnalysis = fn.Some(a) })
	p.TaskRecord.WhenSome(func(t TaskRecord) { s.taskRecord = fn.Some(t) })
	for _, m := range p.Messages {
		s.transcript = append(s.transcript, m)
		if m.Kind != ErrorKindNone && s.err.IsNone() {
			s.err = fn.Some(ErrorInfo{Kind: m.Kind, Step: m.StepName, Message: m.Content})
		}
	}
	p.FinalResponse.WhenSome(func(r string) { s.finalResponse = fn.Some(r) })
	return nil
}

// Snapshot is a plain, serializable view of a RequestState.
type Snapshot struct {
	ID            string         `json:"id"`
	Query         string         `json:"query"`
	UserID        string         `json:"user_id,omitempty"`
	ChannelID     string         `json:"channel_id,omitempty"`
	Route         *RouteDecision `json:"route,omitempty"`
	GeneratedSQL  string         `json:"generated_sql,omitempty"`
	Confirmation  string         `json:"sql_confirmation"`
	DataResult    *QueryResult   `json:"data_result,omitempty"`
	CodeAnalysis  string         `json:"code_analysis,omitempty"`
	TaskRecord    *TaskRecord    `json:"task_record,omitempty"`
	Transcript    []StepMessage  `json:"transcript"`
	FinalResponse string         `json:"final_response"`
	Error         *ErrorInfo     `json:"error,omitempty"`
	Path          []Node         `json:"path,omitempty"`
}

// Snapshot copies the state into a Snapshot.
func (s *RequestState) Snapshot() Snapshot {
	snap := Snapshot{
		ID:            s.req.ID,
		Query:         s.req.Query,
		UserID:        s.req.UserID,
		ChannelID:     s.req.ChannelID,
		GeneratedSQL:  s.generatedSQL.UnwrapOr(""),
		Confirmation:  s.confirmation.String(),
		CodeAnalysis:  s.codeAnalysis.UnwrapOr(""),
		Transcript:    s.Transcript(),
		FinalResponse: s.finalResponse.UnwrapOr(""),
		Path:          s.Path(),
	}
	s.route.WhenSome(func(r RouteDecision) { snap.Route = &r })
	s.dataResult.WhenSome(func(r QueryResult) { snap.DataResult = &r })
	s.taskRecord.WhenSome(func(t TaskRecord) { snap.TaskRecord = &t })
	s.err.WhenSome(func(e ErrorInfo) { snap.Error = &e })
	return snap
}
