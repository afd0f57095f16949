package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nadzzz/voxcmd/internal/apperr"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   Intent
		wantOK bool
	}{
		{"exact", "ADD_EXPENSE", IntentAddExpense, true},
		{"lower with spaces", "  add_worklog ", IntentAddWorklog, true},
		{"unknown literal", "UNKNOWN", IntentUnknown, true},
		{"out of enum", "DELETE_ALL", IntentUnknown, false},
		{"empty", "", IntentUnknown, false},
		{"number", 42.0, IntentUnknown, false},
		{"nil", nil, IntentUnknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseIntent(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseIntent(%v) = (%s, %v), want (%s, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
			if !got.Valid() {
				t.Errorf("ParseIntent returned out-of-enum value %q", got)
			}
		})
	}
}

func TestNormalizedAudio_DurationAndPeak(t *testing.T) {
	a := NormalizedAudio{Samples: make([]float32, SampleRate/2)}
	a.Samples[10] = -0.75
	a.Samples[20] = 0.5

	if got := a.Duration(); got != 500*time.Millisecond {
		t.Errorf("Duration() = %v", got)
	}
	if got := a.Peak(); got != 0.75 {
		t.Errorf("Peak() = %v", got)
	}
}

func TestResult_MarshalSuccess(t *testing.T) {
	r := Succeeded(StructuredCommand{Intent: IntentViewMaterials, Message: "Showing materials."}, "show materials")
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got["success"] != true || got["intent"] != "VIEW_MATERIALS" {
		t.Errorf("body = %s", b)
	}
	if data, ok := got["data"].(map[string]any); !ok || len(data) != 0 {
		t.Errorf("data = %v, want empty object", got["data"])
	}
	if _, ok := got["error"]; ok {
		t.Error("success body carries error field")
	}
}

func TestResult_MarshalFailure(t *testing.T) {
	r := Failed(apperr.Inaudible(), "")
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}

	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got["success"] != false || got["error"] != "Could not understand audio" {
		t.Errorf("body = %s", b)
	}
	for _, key := range []string{"intent", "data", "transcript"} {
		if _, ok := got[key]; ok {
			t.Errorf("failure body carries %q", key)
		}
	}
}

func TestResult_RoundTrip(t *testing.T) {
	in := Succeeded(StructuredCommand{
		Intent:  IntentAddExpense,
		Data:    map[string]any{"category": "food"},
		Message: "Added.",
	}, "add food")
	in.RunID = "run-1"

	b, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var out Result
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if !out.Success || out.Command == nil || out.Command.Intent != IntentAddExpense || out.RunID != "run-1" {
		t.Errorf("round trip = %+v", out)
	}
	if out.UserMessage() != "Added." {
		t.Errorf("UserMessage() = %q", out.UserMessage())
	}
}

func TestResult_UserMessagePrefersLongMessage(t *testing.T) {
	r := Failed(apperr.MalformedResponse(nil), "hello")
	if r.UserMessage() != "Could not interpret command" {
		t.Errorf("UserMessage() = %q", r.UserMessage())
	}
	r.Message = "Sorry, please rephrase."
	if r.UserMessage() != "Sorry, please rephrase." {
		t.Errorf("UserMessage() = %q", r.UserMessage())
	}
}
