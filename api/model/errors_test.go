package model

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("rollback: %w", &Error{Kind: KindTimestampNotFound, Timestamp: "1600000000000"})
	if !errors.Is(err, ErrTimestampNotFound) {
		t.Error("expected TimestampNotFound to match")
	}
	if errors.Is(err, ErrNoDeploymentsFound) {
		t.Error("NoDeploymentsFound should not match")
	}
	if KindOf(err) != KindTimestampNotFound {
		t.Errorf("KindOf = %q", KindOf(err))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("plain error should have no kind")
	}
}

func TestErrorMessageCarriesContext(t *testing.T) {
	cause := errors.New("ValidationError: stack is in UPDATE_IN_PROGRESS state")
	err := &Error{Kind: KindUpdateRejected, Stack: "svc-dev", Err: cause}
	msg := err.Error()
	if !strings.Contains(msg, "svc-dev") || !strings.Contains(msg, "UPDATE_IN_PROGRESS") {
		t.Errorf("message = %q", msg)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to unwrap")
	}
}

func TestValidationResultErr(t *testing.T) {
	r := &ValidationResult{Subject: "svc"}
	r.Add(ValidationFinding{Check: "stage.required", Severity: SeverityError, Message: "stage is required", Field: "stage"})
	r.Add(ValidationFinding{Check: "region.format", Severity: SeverityWarning, Message: "odd region", Field: "region"})

	if r.Valid() {
		t.Fatal("expected invalid")
	}
	err := r.Err()
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("err = %v", err)
	}
	var re *Error
	if !errors.As(err, &re) || len(re.Findings) != 1 {
		t.Errorf("findings = %+v", re)
	}
	if got := r.Fields(); len(got) != 1 || got[0] != "stage" {
		t.Errorf("Fields = %v", got)
	}
}
