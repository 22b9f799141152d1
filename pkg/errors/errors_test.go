package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	want := map[Code]Metadata{
		CodeValidation:    {HTTPStatus: 400, PublicMessage: "validation failed", DetailsAllowed: true, MessageExposed: true},
		CodeUnauthorized:  {HTTPStatus: 401, PublicMessage: "authentication required", MessageExposed: true},
		CodeForbidden:     {HTTPStatus: 403, PublicMessage: "access denied", MessageExposed: true},
		CodeNotFound:      {HTTPStatus: 404, PublicMessage: "resource not found", MessageExposed: true},
		CodeConflict:      {HTTPStatus: 409, PublicMessage: "conflict detected", MessageExposed: true},
		CodeStateConflict: {HTTPStatus: 422, PublicMessage: "state transition disallowed", DetailsAllowed: true, MessageExposed: true},
		CodeIdempotency:   {HTTPStatus: 409, PublicMessage: "idempotency key reused", DetailsAllowed: true, MessageExposed: true},
		CodeRateLimit:     {HTTPStatus: 429, PublicMessage: "rate limit exceeded", MessageExposed: true},
		CodeInternal:      {HTTPStatus: 500, PublicMessage: "internal server error", Retryable: true},
		CodeDependency:    {HTTPStatus: 503, PublicMessage: "dependency unavailable", Retryable: true, DetailsAllowed: true},
	}
	for code, m := range want {
		if got := MetadataFor(code); got != m {
			t.Errorf("%s: got %+v want %+v", code, got, m)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestRetryable(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":        {err: nil, want: false},
		"dependency": {err: fmt.Errorf("raise: %w", New(CodeDependency, "store down")), want: true},
		"validation": {err: New(CodeValidation, "bad topic"), want: false},
		"untyped":    {err: stdErrors.New("boom"), want: true},
	}
	for name, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v got %v", name, tc.want, got)
		}
	}
	if got := Newf(CodeNotFound, "room %s", "r1").Message(); got != "room r1" {
		t.Fatalf("unexpected Newf message %q", got)
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestCodeOfAndIsCode(t *testing.T) {
	wrapped := fmt.Errorf("room load: %w", New(CodeNotFound, "room no longer exists"))
	if got := CodeOf(wrapped); got != CodeNotFound {
		t.Fatalf("expected not found code, got %s", got)
	}
	if !IsCode(wrapped, CodeNotFound) {
		t.Fatalf("expected IsCode to match wrapped code")
	}
	if IsCode(stdErrors.New("plain"), CodeNotFound) {
		t.Fatalf("untyped errors should not match")
	}
	if got := CodeOf(stdErrors.New("plain")); got != CodeInternal {
		t.Fatalf("untyped errors should map to internal, got %s", got)
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("connection refused"), "write rooms")
	dump := Dump(err)
	if dump.Code != CodeDependency {
		t.Fatalf("expected dependency code, got %s", dump.Code)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %v", dump.Chain)
	}
	if dump.Backend != "" {
		t.Fatalf("expected no backend details, got %q", dump.Backend)
	}
}

func TestDumpReportsPostgresAndReason(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_key", TableName: "users"}
	err := Wrap(CodeConflict, pgErr, "create user").WithDetails(map[string]string{"reason": "auth/email-already-in-use"})

	dump := Dump(err)
	if dump.Backend != "postgres" || dump.BackendErr != "23505" || dump.Constraint != "users_email_key" {
		t.Fatalf("unexpected backend fields: %+v", dump)
	}
	fields := dump.Fields()
	if fields["reason"] != "auth/email-already-in-use" || fields["table"] != "users" {
		t.Fatalf("unexpected log fields: %v", fields)
	}
	if _, ok := fields["column"]; ok {
		t.Fatalf("empty fields should be omitted: %v", fields)
	}
}
