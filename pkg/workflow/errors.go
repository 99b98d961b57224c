package workflow

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a recorded step failure.
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	ErrorKindClassificationFailure
	ErrorKindGenerationFailure
	ErrorKindExecutionFailure
	ErrorKindConfirmationTimeout
	ErrorKindPersistenceFailure
	ErrorKindFormattingFailure
)

var errorKindNames = map[ErrorKind]string{
	ErrorKindNone:                  "",
	ErrorKindClassificationFailure: "classification_failure",
	ErrorKindGenerationFailure:     "generation_failure",
	ErrorKindExecutionFailure:      "execution_failure",
	ErrorKindConfirmationTimeout:   "confirmation_timeout",
	ErrorKindPersistenceFailure:    "persistence_failure",
	ErrorKindFormattingFailure:     "formatting_failure",
}

func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("error_kind(%d)", int(k))
}

// MarshalText renders the kind by name so snapshots stay readable.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name written by MarshalText.
func (k *ErrorKind) UnmarshalText(b []byte) error {
	for kind, name := range errorKindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown error kind %q", string(b))
}

// ErrorInfo is the first failure recorded during a run.
type ErrorInfo struct {
	Kind    ErrorKind `json:"kind"`
	Step    string    `json:"step"`
	Message string    `json:"message"`
}

func (e ErrorInfo) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Step, e.Message)
}

var (
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrNodeRevisited          = errors.New("node already visited")
	ErrCyclicTable            = errors.New("transition table contains a cycle")
	ErrFieldAlreadySet        = errors.New("field already set")
	ErrConfirmationRegression = errors.New("confirmation cannot leave a terminal status")
	ErrNotApproved            = errors.New("query has not been approved")
	ErrStateTerminal          = errors.New("final response already set")
	ErrNoCapability           = errors.New("capability not configured")
)

// FatalFallbackResponse is sent when the workflow itself fails.
const FatalFallbackResponse = "処理中にエラーが発生しました"
