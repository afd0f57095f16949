package command

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/nadzzz/voxcmd/internal/apperr"
	"github.com/nadzzz/voxcmd/internal/message"
)

func TestParse_FencedJSON(t *testing.T) {
	raw := "```json\n{\"intent\":\"ADD_EXPENSE\",\"data\":{\"amount\":50},\"message\":\"ok\"}\n```"

	got, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	cmd := got.Command
	if cmd.Intent != message.IntentAddExpense {
		t.Errorf("Intent = %s", cmd.Intent)
	}
	if cmd.Data["amount"] != json.Number("50") {
		t.Errorf("Data[amount] = %#v", cmd.Data["amount"])
	}
	if cmd.Message != "ok" {
		t.Errorf("Message = %q", cmd.Message)
	}
	if len(got.Coercions) != 0 {
		t.Errorf("Coercions = %v", got.Coercions)
	}
	if got.ValidationErr() != nil {
		t.Error("ValidationErr() != nil for clean input")
	}
}

func TestParse_Tolerance(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantIntent message.Intent
		wantMsg    string
	}{
		{
			name:       "plain object",
			raw:        `{"intent":"VIEW_MATERIALS","data":{},"message":"Here are your materials."}`,
			wantIntent: message.IntentViewMaterials,
			wantMsg:    "Here are your materials.",
		},
		{
			name:       "leading and trailing prose",
			raw:        "Sure! Here it is: {\"intent\":\"ADD_WORKLOG\",\"data\":{\"hours\":3},\"message\":\"Logged.\"} Hope that helps {:}",
			wantIntent: message.IntentAddWorklog,
			wantMsg:    "Logged.",
		},
		{
			name:       "fence without language tag",
			raw:        "```\n{\"intent\":\"ADD_WORKLOG\",\"message\":\"m\"}\n```",
			wantIntent: message.IntentAddWorklog,
			wantMsg:    "m",
		},
		{
			name:       "single line fence",
			raw:        "```{\"intent\":\"ADD_EXPENSE\",\"message\":\"x\"}```",
			wantIntent: message.IntentAddExpense,
			wantMsg:    "x",
		},
		{
			name:       "lowercase intent",
			raw:        `{"intent":"add_expense","data":{},"message":"ok"}`,
			wantIntent: message.IntentAddExpense,
			wantMsg:    "ok",
		},
		{
			name:       "braces inside strings",
			raw:        `{"intent":"ADD_WORKLOG","data":{"description":"fix {north} wall"},"message":"ok }"}`,
			wantIntent: message.IntentAddWorklog,
			wantMsg:    "ok }",
		},
		{
			name:       "closing fence only",
			raw:        "{\"intent\":\"ADD_EXPENSE\",\"data\":{\"amount\":50},\"message\":\"ok\"}\n```",
			wantIntent: message.IntentAddExpense,
			wantMsg:    "ok",
		},
		{
			name:       "fence in trailing prose",
			raw:        "{\"intent\":\"ADD_EXPENSE\",\"data\":{},\"message\":\"ok\"}\nNote: use ```json next time",
			wantIntent: message.IntentAddExpense,
			wantMsg:    "ok",
		},
		{
			name:       "non JSON block before JSON block",
			raw:        "```\nADD_EXPENSE\n```\n```json\n{\"intent\":\"ADD_EXPENSE\",\"data\":{},\"message\":\"ok\"}\n```",
			wantIntent: message.IntentAddExpense,
			wantMsg:    "ok",
		},
		{
			name:       "brace in leading prose",
			raw:        "Sure {thinking}: {\"intent\":\"ADD_EXPENSE\",\"data\":{},\"message\":\"ok\"}",
			wantIntent: message.IntentAddExpense,
			wantMsg:    "ok",
		},
		{
			name:       "doubled opening brace",
			raw:        "{{\"intent\":\"VIEW_MATERIALS\",\"data\":{},\"message\":\"ok\"}",
			wantIntent: message.IntentViewMaterials,
			wantMsg:    "ok",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got.Command.Intent != tt.wantIntent {
				t.Errorf("Intent = %s, want %s", got.Command.Intent, tt.wantIntent)
			}
			if got.Command.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", got.Command.Message, tt.wantMsg)
			}
			if got.Command.Data == nil {
				t.Error("Data is nil")
			}
		})
	}
}

func TestParse_Coercions(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantIntent message.Intent
		wantData   int
		wantMsg    string
		wantFields []string
	}{
		{
			name:       "out of enum intent",
			raw:        `{"intent":"DELETE_EVERYTHING","data":{"x":1},"message":"done"}`,
			wantIntent: message.IntentUnknown,
			wantData:   1,
			wantMsg:    "done",
			wantFields: []string{"intent"},
		},
		{
			name:       "missing intent",
			raw:        `{"data":{},"message":"hi"}`,
			wantIntent: message.IntentUnknown,
			wantMsg:    "hi",
			wantFields: []string{"intent"},
		},
		{
			name:       "non-string intent",
			raw:        `{"intent":7,"message":"hi"}`,
			wantIntent: message.IntentUnknown,
			wantMsg:    "hi",
			wantFields: []string{"intent"},
		},
		{
			name:       "data is a list",
			raw:        `{"intent":"ADD_EXPENSE","data":[1,2],"message":"ok"}`,
			wantIntent: message.IntentAddExpense,
			wantMsg:    "ok",
			wantFields: []string{"data"},
		},
		{
			name:       "missing data and message",
			raw:        `{"intent":"UNKNOWN"}`,
			wantIntent: message.IntentUnknown,
			wantMsg:    FallbackMessage,
		},
		{
			name:       "message is not a string",
			raw:        `{"intent":"ADD_WORKLOG","data":{},"message":{"text":"x"}}`,
			wantIntent: message.IntentAddWorklog,
			wantMsg:    FallbackMessage,
			wantFields: []string{"message"},
		},
		{
			name:       "blank message",
			raw:        `{"intent":"ADD_WORKLOG","data":{},"message":"   "}`,
			wantIntent: message.IntentAddWorklog,
			wantMsg:    FallbackMessage,
			wantFields: []string{"message"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			cmd := got.Command
			if cmd.Intent != tt.wantIntent {
				t.Errorf("Intent = %s, want %s", cmd.Intent, tt.wantIntent)
			}
			if len(cmd.Data) != tt.wantData {
				t.Errorf("len(Data) = %d, want %d", len(cmd.Data), tt.wantData)
			}
			if cmd.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", cmd.Message, tt.wantMsg)
			}
			if len(got.Coercions) != len(tt.wantFields) {
				t.Fatalf("Coercions = %v, want fields %v", got.Coercions, tt.wantFields)
			}
			for i, f := range tt.wantFields {
				if got.Coercions[i].Field != f {
					t.Errorf("Coercions[%d].Field = %s, want %s", i, got.Coercions[i].Field, f)
				}
			}
			if len(tt.wantFields) > 0 {
				verr := got.ValidationErr()
				if verr == nil || verr.Kind != apperr.KindValidation {
					t.Errorf("ValidationErr() = %v", verr)
				}
			}
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace", "   \n "},
		{"prose only", "I could not figure out what you meant."},
		{"truncated", `{"intent":"ADD_EXPENSE","data":{"amount":50}`},
		{"truncated in fence", "```json\n{\"intent\":\"ADD_EXPENSE\",\"data\":{\"amount\":\n```"},
		{"truncated around a complete object", "{\"intent\":\"ADD_EXPENSE\",\"data\":{\"amount\":50}\n```"},
		{"empty fence", "```json\n```"},
		{"braces without an object", "Sure {thinking} and {more}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			if err == nil {
				t.Fatal("Parse() error = nil, want malformed")
			}
			if !errors.Is(err, apperr.New(apperr.KindMalformedResponse)) {
				t.Errorf("error kind = %s", apperr.KindOf(err))
			}
			if ae, _ := apperr.As(err); strings.Contains(ae.Message, "JSON") {
				t.Errorf("user message leaks detail: %q", ae.Message)
			}
		})
	}
}

func TestParser_StrictFields(t *testing.T) {
	p := NewParser(true)

	tests := []struct {
		name       string
		raw        string
		wantFields []string
	}{
		{
			name: "valid expense",
			raw:  `{"intent":"ADD_EXPENSE","data":{"amount":12.5,"category":"fuel"},"message":"ok"}`,
		},
		{
			name:       "expense missing category",
			raw:        `{"intent":"ADD_EXPENSE","data":{"amount":12.5},"message":"ok"}`,
			wantFields: []string{"data.category"},
		},
		{
			name:       "worklog hours as text",
			raw:        `{"intent":"ADD_WORKLOG","data":{"hours":"three","description":"tiling"},"message":"ok"}`,
			wantFields: []string{"data.hours"},
		},
		{
			name:       "worklog negative hours",
			raw:        `{"intent":"ADD_WORKLOG","data":{"hours":-2,"description":"tiling"},"message":"ok"}`,
			wantFields: []string{"data.hours"},
		},
		{
			name: "view materials has no rules",
			raw:  `{"intent":"VIEW_MATERIALS","data":{},"message":"ok"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(got.Coercions) != len(tt.wantFields) {
				t.Fatalf("Coercions = %v, want %v", got.Coercions, tt.wantFields)
			}
			for i, f := range tt.wantFields {
				if got.Coercions[i].Field != f {
					t.Errorf("Coercions[%d] = %v, want field %s", i, got.Coercions[i], f)
				}
			}
			// Strict checks are advisory: the intent is never changed.
			if !got.Command.Intent.Valid() || got.Command.Intent == message.IntentUnknown {
				t.Errorf("Intent = %s", got.Command.Intent)
			}
		})
	}
}
