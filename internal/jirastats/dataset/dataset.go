package dataset

import (
	"fmt"

	"github.com/petr-muller/jirastats/internal/jirastats/issues"
)

// Reason identifies which validation rule a payload violated
type Reason string

const (
	ReasonMissing       Reason = "missing"
	ReasonTotalMismatch Reason = "total-mismatch"
	ReasonMissingFields Reason = "missing-fields"
)

// ValidationError is returned for payloads that cannot be used for statistics
type ValidationError struct {
	Reason Reason
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload (%s): %s", e.Reason, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return issues.ErrValidation
}

// Dataset is a validated, ordered list of issues
type Dataset struct {
	Issues []issues.Entity
	// HasHistory is true only when every issue carries a changelog
	HasHistory bool
}

// Validate checks the structure of a search payload and unwraps its issues.
// Compiled payloads must carry exactly the advertised number of issues.
func Validate(payload *issues.Payload) (*Dataset, error) {
	if payload == nil || len(payload.Issues) == 0 {
		return nil, &ValidationError{Reason: ReasonMissing, Detail: "payload has no issues"}
	}

	if payload.Compiled() && payload.Total != len(payload.Issues) {
		return nil, &ValidationError{
			Reason: ReasonTotalMismatch,
			Detail: fmt.Sprintf("compiled payload advertises %d issues but carries %d", payload.Total, len(payload.Issues)),
		}
	}

	hasHistory := true
	for _, issue := range payload.Issues {
		if issue.Changelog == nil {
			hasHistory = false
			break
		}
	}

	if payload.Issues[0].Fields == nil {
		return nil, &ValidationError{
			Reason: ReasonMissingFields,
			Detail: fmt.Sprintf("issue %s has no fields, the projection must include them", payload.Issues[0].Key),
		}
	}

	return &Dataset{Issues: payload.Issues, HasHistory: hasHistory}, nil
}
