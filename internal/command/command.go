// Package command turns untrusted model output into a StructuredCommand.
//
// Parsing is tolerant: Markdown code fences and surrounding prose are
// skipped, and each field of the decoded object is coerced independently.
// A wrong field never fails the parse. Only text that contains no decodable
// JSON object is rejected, as a MALFORMED_RESPONSE error.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nadzzz/voxcmd/internal/apperr"
	"github.com/nadzzz/voxcmd/internal/message"
)

// FallbackMessage is used when the model gives no usable message.
const FallbackMessage = "Command received."

// Coercion records one field that was replaced or flagged during parsing.
type Coercion struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (c Coercion) String() string { return c.Field + ": " + c.Reason }

// Parsed is the outcome of a successful parse.
type Parsed struct {
	Command   message.StructuredCommand
	Coercions []Coercion
}

// ValidationErr folds the coercions into a non-fatal VALIDATION_ERROR, or
// returns nil when nothing was coerced.
func (p Parsed) ValidationErr() *apperr.Error {
	if len(p.Coercions) == 0 {
		return nil
	}
	fields := make([]string, 0, len(p.Coercions))
	for _, c := range p.Coercions {
		fields = append(fields, c.String())
	}
	return apperr.New(apperr.KindValidation).WithDetail("coercions", fields)
}

// Parser parses model output. The zero value is not usable; use NewParser.
type Parser struct {
	strict   bool
	validate *validator.Validate
}

// NewParser creates a Parser. With strict set, per-intent field rules are
// checked and violations are reported as coercions. They never reject.
func NewParser(strict bool) *Parser {
	return &Parser{
		strict:   strict,
		validate: validator.New(),
	}
}

var defaultParser = NewParser(false)

// Parse parses raw with the permissive default parser.
func Parse(raw string) (Parsed, error) {
	return defaultParser.Parse(raw)
}

// Parse extracts and coerces a StructuredCommand from raw model text.
func (p *Parser) Parse(raw string) (Parsed, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return Parsed{}, apperr.MalformedResponse(err)
	}

	var out Parsed
	cmd := &out.Command

	intentVal, present := obj["intent"]
	intent, ok := message.ParseIntent(intentVal)
	cmd.Intent = intent
	switch {
	case !present:
		out.Coercions = append(out.Coercions, Coercion{"intent", "missing, set to UNKNOWN"})
	case !ok:
		out.Coercions = append(out.Coercions, Coercion{"intent", fmt.Sprintf("%v is not a known intent, set to UNKNOWN", intentVal)})
	}

	dataVal, present := obj["data"]
	if data, ok := dataVal.(map[string]any); ok {
		cmd.Data = data
	} else {
		cmd.Data = map[string]any{}
		if present && dataVal != nil {
			out.Coercions = append(out.Coercions, Coercion{"data", fmt.Sprintf("expected object, got %T", dataVal)})
		}
	}

	if msg, ok := obj["message"].(string); ok && strings.TrimSpace(msg) != "" {
		cmd.Message = strings.TrimSpace(msg)
	} else {
		cmd.Message = FallbackMessage
		if _, present := obj["message"]; present {
			out.Coercions = append(out.Coercions, Coercion{"message", "not a non-empty string, using fallback"})
		}
	}

	if p.strict {
		out.Coercions = append(out.Coercions, p.checkFields(cmd.Intent, cmd.Data)...)
	}
	return out, nil
}

// extractObject decodes the first JSON object in s. Code fences and prose
// around the object are skipped: decoding starts at each '{' in turn and
// stops after one value. A '{' inside a rejected candidate is not retried,
// so a truncated object stays malformed instead of yielding a nested one.
func extractObject(s string) (map[string]any, error) {
	if strings.Trim(s, " \t\r\n`") == "" {
		return nil, errors.New("empty response")
	}

	var first error
	for i := 0; i < len(s); {
		start := strings.IndexByte(s[i:], '{')
		if start < 0 {
			break
		}
		start += i

		dec := json.NewDecoder(strings.NewReader(s[start:]))
		dec.UseNumber()
		var obj map[string]any
		err := dec.Decode(&obj)
		if err == nil {
			return obj, nil
		}
		if first == nil {
			first = fmt.Errorf("decoding JSON object: %w", err)
		}

		// Resume at the offending byte; anything before it belonged to the
		// candidate. An unexpected EOF means the rest of s was consumed.
		var syn *json.SyntaxError
		if !errors.As(err, &syn) {
			break
		}
		i = max(start+int(syn.Offset)-1, start+1)
	}
	if first == nil {
		return nil, errors.New("no JSON object in response")
	}
	return nil, first
}
