package workflow

import (
	"context"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Classifier decides which capabilities a query needs. It never fails;
// implementations return a Fallback decision instead.
type Classifier interface {
	Classify(ctx context.Context, query string) RouteDecision
}

// Responder produces a direct reply for queries that need no capability.
type Responder interface {
	Respond(ctx context.Context, query string) (string, error)
}

// SQLGenerator turns a natural-language question into a single query.
// An empty result is treated as a failure.
type SQLGenerator interface {
	GenerateSQL(ctx context.Context, query string) (string, error)
}

// ConfirmationRequest identifies the query awaiting approval.
type ConfirmationRequest struct {
	RequestID string
	SQL       string
	Query     string
	ChannelID string
	UserID    string
	ThreadTS  string
}

// Confirmer asks a human (or a policy) whether a query may run. Pending
// means no decision arrived before ctx expired. Repeated calls for the same
// request and query must return the same final status.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmationRequest) ConfirmationStatus
}

// ApprovedSQL is a query that passed the confirmation gate. Only the
// workflow constructs non-zero values.
type ApprovedSQL struct {
	sql string
}

// SQL returns the approved text, or "" for the zero value.
func (a ApprovedSQL) SQL() string { return a.sql }

// IsZero reports whether a was not minted by the gate.
func (a ApprovedSQL) IsZero() bool { return a.sql == "" }

// approve mints an ApprovedSQL from s when its confirmation is Approved.
func approve(s *RequestState) (ApprovedSQL, error) {
	if !s.approved() {
		return ApprovedSQL{}, ErrNotApproved
	}
	q := s.generatedSQL.UnwrapOr("")
	if q == "" {
		return ApprovedSQL{}, ErrNotApproved
	}
	return ApprovedSQL{sql: q}, nil
}

// Executor runs an approved query.
type Executor interface {
	Execute(ctx context.Context, q ApprovedSQL) (QueryResult, error)
}

// Researcher inspects source code for the query. It never fails; when the
// code host is unavailable the returned text says so.
type Researcher interface {
	Research(ctx context.Context, query string) string
}

// TaskCreator decides whether the analysis warrants a follow-up task and
// creates it. None with a nil error means no task was needed.
type TaskCreator interface {
	MaybeCreateTask(ctx context.Context, route RouteDecision, analysis string, req Request) (fn.Option[TaskRecord], error)
}

// Formatter renders the transcript into the final reply. A non-nil error
// alongside non-empty text means the output was degraded but usable.
type Formatter interface {
	Format(ctx context.Context, transcript []StepMessage) (string, error)
}
