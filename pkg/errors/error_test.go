package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestNewCarriesCodeAndDefaultMessage(t *testing.T) {
	err := New(SubmissionNotFound)
	if err.Code != SubmissionNotFound {
		t.Fatalf("code = %d, want %d", err.Code, SubmissionNotFound)
	}
	if err.Error() != SubmissionNotFound.Message() {
		t.Fatalf("message = %q, want default %q", err.Error(), SubmissionNotFound.Message())
	}
	if err.Stack == "" {
		t.Fatal("stack not captured")
	}
}

func TestNewfFormatsMessage(t *testing.T) {
	err := Newf(InvalidStateTransition, "cannot go from %s to %s", "QUEUED", "JUDGED")
	if !strings.Contains(err.Error(), "QUEUED") {
		t.Fatalf("message = %q, want formatted args", err.Error())
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ServiceUnavailable)
	if !stderrors.Is(err, cause) {
		t.Fatal("wrapped cause lost")
	}
	if GetCode(err) != ServiceUnavailable {
		t.Fatalf("code = %d, want ServiceUnavailable", GetCode(err))
	}
}

func TestWrapNilIsNil(t *testing.T) {
	if err := Wrap(nil, InternalError); err != nil {
		t.Fatalf("Wrap(nil) = %v, want nil", err)
	}
	if err := Wrapf(nil, InternalError, "ignored"); err != nil {
		t.Fatalf("Wrapf(nil) = %v, want nil", err)
	}
}

func TestWithDetail(t *testing.T) {
	err := New(OptimisticConcurrency).
		WithDetail("submission_id", "abc").
		WithDetail("version", 3)
	if err.Details["submission_id"] != "abc" || err.Details["version"] != 3 {
		t.Fatalf("details = %v", err.Details)
	}
}

func TestIsAndGetCode(t *testing.T) {
	err := New(BusinessRule)
	if !Is(err, BusinessRule) || Is(err, InternalError) {
		t.Fatal("Is misclassified coded error")
	}
	if Is(nil, BusinessRule) {
		t.Fatal("Is(nil) must be false")
	}
	if GetCode(stderrors.New("plain")) != InternalError {
		t.Fatal("plain errors must map to InternalError")
	}
	if GetCode(nil) != Success {
		t.Fatal("nil must map to Success")
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("kafka.brokers", "must not be empty")
	if err.Code != ValidationFailed {
		t.Fatalf("code = %d, want ValidationFailed", err.Code)
	}
	if err.Details["field"] != "kafka.brokers" {
		t.Fatalf("details = %v", err.Details)
	}
}

func TestRetryable(t *testing.T) {
	if !SandboxProvisioning.Retryable() || !ServiceUnavailable.Retryable() {
		t.Fatal("provisioning and availability faults must be retryable")
	}
	if ConfigurationNotFound.Retryable() || BusinessRule.Retryable() || InvalidStateTransition.Retryable() {
		t.Fatal("judge-side faults must not be retryable")
	}
}
