package workflow

import (
	"errors"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestStateAssignsID(t *testing.T) {
	s := NewRequestState(Request{Query: "hello"})
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, ConfirmationPending, s.Confirmation())

	s = NewRequestState(Request{ID: "req-1", Query: "hello"})
	assert.Equal(t, "req-1", s.ID())
}

func TestApplySetOnce(t *testing.T) {
	s := NewRequestState(Request{Query: "q"})
	require.NoError(t, s.apply(Patch{Route: fn.Some(RouteDecision{NeedsDataLookup: true})}))

	err := s.apply(Patch{Route: fn.Some(RouteDecision{})})
	require.ErrorIs(t, err, ErrFieldAlreadySet)
	assert.True(t, s.Route().UnwrapOr(RouteDecision{}).NeedsDataLookup)

	require.NoError(t, s.apply(Patch{GeneratedSQL: fn.Some("SELECT 1")}))
	require.ErrorIs(t, s.apply(Patch{GeneratedSQL: fn.Some("SELECT 2")}), ErrFieldAlreadySet)
	assert.Equal(t, "SELECT 1", s.GeneratedSQL().UnwrapOr(""))
}

func TestApplyConfirmationMovesForwardOnly(t *testing.T) {
	tests := []struct {
		name    string
		from    ConfirmationStatus
		to      ConfirmationStatus
		wantErr bool
	}{
		{"pending to approved", ConfirmationPending, ConfirmationApproved, false},
		{"pending to rejected", ConfirmationPending, ConfirmationRejected, false},
		{"approved stays approved", ConfirmationApproved, ConfirmationApproved, false},
		{"approved to rejected", ConfirmationApproved, ConfirmationRejected, true},
		{"rejected to approved", ConfirmationRejected, ConfirmationApproved, true},
		{"approved to pending", ConfirmationApproved, ConfirmationPending, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRequestState(Request{Query: "q"})
			if tt.from != ConfirmationPending {
				require.NoError(t, s.apply(Patch{Confirmation: fn.Some(tt.from)}))
			}
			err := s.apply(Patch{Confirmation: fn.Some(tt.to)})
			if tt.wantErr {
				require.ErrorIs(t, err, ErrConfirmationRegression)
				assert.Equal(t, tt.from, s.Confirmation())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, s.Confirmation())
		})
	}
}

func TestApplyDataResultRequiresApproval(t *testing.T) {
	s := NewRequestState(Request{Query: "q"})
	err := s.apply(Patch{DataResult: fn.Some(QueryResult{}), Messages: []StepMessage{{StepName: "x", Content: "y"}}})
	require.ErrorIs(t, err, ErrNotApproved)
	assert.True(t, s.DataResult().IsNone())
	assert.Empty(t, s.Transcript(), "rejected patch must not append messages")

	require.NoError(t, s.apply(Patch{
		Confirmation: fn.Some(ConfirmationApproved),
		DataResult:   fn.Some(QueryResult{Rows: []map[string]any{{"n": 1}}}),
	}))
	assert.Equal(t, 1, s.DataResult().UnwrapOr(QueryResult{}).RowCount())
}

func TestApplyFinalResponseOnce(t *testing.T) {
	s := NewRequestState(Request{Query: "q"})
	require.NoError(t, s.apply(Patch{FinalResponse: fn.Some("done")}))
	require.ErrorIs(t, s.apply(Patch{FinalResponse: fn.Some("again")}), ErrStateTerminal)
	require.ErrorIs(t, s.apply(Note("late", "entry")), ErrStateTerminal)
	assert.Equal(t, "done", s.FinalResponse().UnwrapOr(""))
}

func TestApplyRecordsFirstFailure(t *testing.T) {
	s := NewRequestState(Request{Query: "q"})
	require.NoError(t, s.apply(Note(StepClassify, "ok")))
	require.NoError(t, s.apply(Failure(StepGenerate, ErrorKindGenerationFailure, "failed to generate SQL")))
	require.NoError(t, s.apply(Failure(StepFormat, ErrorKindFormattingFailure, "later")))

	info := s.Error().UnwrapOr(ErrorInfo{})
	assert.Equal(t, ErrorKindGenerationFailure, info.Kind)
	assert.Equal(t, StepGenerate, info.Step)
	assert.Len(t, s.Failures(), 2)
	assert.Len(t, s.Transcript(), 3)
}

func TestTerminateKeepsExistingReply(t *testing.T) {
	s := NewRequestState(Request{Query: "q"})
	s.terminate(StepFormat, ErrorKindFormattingFailure, errors.New("boom"))
	assert.Equal(t, FatalFallbackResponse, s.FinalResponse().UnwrapOr(""))

	s = NewRequestState(Request{Query: "q"})
	require.NoError(t, s.apply(Patch{FinalResponse: fn.Some("real reply")}))
	s.terminate(StepFormat, ErrorKindFormattingFailure, errors.New("boom"))
	assert.Equal(t, "real reply", s.FinalResponse().UnwrapOr(""))
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "simple", RouteDecision{}.Label())
	assert.Equal(t, "data+code+task", RouteDecision{NeedsDataLookup: true, NeedsCodeReview: true, NeedsTaskCreation: true}.Label())
	assert.True(t, SimpleReply("x").IsSimple())
}

func TestErrorKindText(t *testing.T) {
	for kind := ErrorKindClassificationFailure; kind <= ErrorKindFormattingFailure; kind++ {
		b, err := kind.MarshalText()
		require.NoError(t, err)
		var back ErrorKind
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, kind, back)
	}
	var k ErrorKind
	assert.Error(t, k.UnmarshalText([]byte("nope")))
}
