// Package interpreter defines the interface for LLM-based intent extraction.
//
// An extractor takes a transcript and returns the model's raw text, which is
// expected (but not trusted) to contain a JSON command. voxcmd ships with two
// backends: OpenAI-compatible chat completions and a local Ollama endpoint.
package interpreter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nadzzz/voxcmd/internal/message"
)

// Extractor is the interface for command extraction backends.
type Extractor interface {
	// Name returns the backend identifier (e.g., "openai", "local").
	Name() string

	// Extract sends the transcript with the instruction prompt and returns
	// the model's reply unparsed.
	Extract(ctx context.Context, transcript string) (string, error)

	// Close releases any resources held by the extractor.
	Close() error
}

// field describes one expected key under "data".
type field struct {
	name string
	kind string
	note string
}

// intentFields lists the data keys the model is asked to produce per intent.
var intentFields = map[message.Intent][]field{
	message.IntentAddWorklog: {
		{"hours", "number", "hours worked"},
		{"description", "string", "what work was done"},
		{"date", "string", "YYYY-MM-DD, today when not stated"},
	},
	message.IntentAddExpense: {
		{"amount", "number", "amount spent, without currency symbols"},
		{"category", "string", "e.g. food, fuel, materials, tools"},
		{"description", "string", "optional detail"},
		{"date", "string", "YYYY-MM-DD, today when not stated"},
	},
	message.IntentViewMaterials: {
		{"material", "string", "optional material name to filter by"},
	},
	message.IntentUnknown: nil,
}

var intentPurpose = map[message.Intent]string{
	message.IntentAddWorklog:    "log hours of work",
	message.IntentAddExpense:    "record money spent",
	message.IntentViewMaterials: "show the materials list",
	message.IntentUnknown:       "anything else",
}

// BuildPrompt returns the system instruction for the given day.
func BuildPrompt(now time.Time) string {
	var sb strings.Builder
	sb.WriteString("You convert a spoken command from a field worker into JSON.\n")
	fmt.Fprintf(&sb, "Today is %s (%s).\n\n", now.Format("2006-01-02"), now.Weekday())
	sb.WriteString("Choose exactly one intent:\n")
	for _, in := range message.Intents {
		fmt.Fprintf(&sb, "- %s: %s.", in, intentPurpose[in])
		fields := intentFields[in]
		if len(fields) == 0 {
			sb.WriteString(" data must be {}.\n")
			continue
		}
		sb.WriteString(" data fields:\n")
		for _, f := range fields {
			fmt.Fprintf(&sb, "    - %s (%s): %s\n", f.name, f.kind, f.note)
		}
	}
	sb.WriteString("\nRespond with a single JSON object and nothing else:\n")
	sb.WriteString(`{"intent": "<one of the intents above>", "data": {...}, "message": "<short confirmation for the user>"}`)
	sb.WriteString("\nUse UNKNOWN when the command does not match any other intent.\n")
	return sb.String()
}

// BuildUserPrompt wraps the transcript for the user turn.
func BuildUserPrompt(transcript string) string {
	return "Command: " + strings.TrimSpace(transcript)
}
