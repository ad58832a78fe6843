package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestInvalidInputNamesFields(t *testing.T) {
	err := InvalidInput([]string{"project_id", "subject"}, "required")
	msg := err.Error()
	for _, f := range []string{"project_id", "subject"} {
		if !strings.Contains(msg, f) {
			t.Errorf("message %q does not name %q", msg, f)
		}
	}
	if err.Code != CodeInvalidInput {
		t.Errorf("code = %q", err.Code)
	}
}

func TestCodeOfThroughWrapping(t *testing.T) {
	base := RequestFailed(500, "redmine: GET /issues.json: status 500", nil)
	wrapped := fmt.Errorf("tool: getRedmineIssues: %w", base)

	if !Is(wrapped, CodeRequestFailed) {
		t.Fatalf("CodeOf(wrapped) = %q", CodeOf(wrapped))
	}
	if As(wrapped).Status != 500 {
		t.Errorf("status = %d", As(wrapped).Status)
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("plain error should have no code")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := RequestFailed(0, "servicenow: GET incident", cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the cause")
	}
	if err.Error() != "servicenow: GET incident: connection refused" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{InvalidInput([]string{"table"}, ""), http.StatusBadRequest},
		{NotFound("issue %d not found", 7), http.StatusNotFound},
		{Busy("session busy"), http.StatusConflict},
		{RequestFailed(503, "down", nil), http.StatusBadGateway},
		{errors.New("other"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestMetaRoundTrip(t *testing.T) {
	tests := []*Error{
		RequestFailed(500, "redmine: GET /issues/7.json: status 500: boom", nil),
		InvalidInput([]string{"project_id", "subject"}, "required"),
		NotFound("servicenow: incident/abc not found"),
	}
	for _, want := range tests {
		// Meta travels as JSON, so numbers and lists come back untyped.
		raw, err := json.Marshal(want.Meta())
		if err != nil {
			t.Fatal(err)
		}
		var meta map[string]any
		if err := json.Unmarshal(raw, &meta); err != nil {
			t.Fatal(err)
		}
		got := FromMeta(meta, want.Error())
		if got == nil {
			t.Fatalf("FromMeta(%v) = nil", meta)
		}
		if got.Code != want.Code || got.Status != want.Status || got.Error() != want.Error() {
			t.Errorf("got %+v, want %+v", got, want)
		}
		if len(got.Fields) != len(want.Fields) {
			t.Errorf("fields = %v, want %v", got.Fields, want.Fields)
		}
	}
}

func TestFromMetaUnknownCode(t *testing.T) {
	for _, meta := range []map[string]any{nil, {}, {"code": "teapot"}, {"code": 5}} {
		if e := FromMeta(meta, "x"); e != nil {
			t.Errorf("FromMeta(%v) = %v, want nil", meta, e)
		}
	}
}
