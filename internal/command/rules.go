package command

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/nadzzz/voxcmd/internal/message"
)

type fieldRules struct {
	rules   map[string]any
	numeric []string
}

// intentRules are the advisory field rules checked in strict mode.
var intentRules = map[message.Intent]fieldRules{
	message.IntentAddWorklog: {
		rules:   map[string]any{"hours": "required,gt=0,lte=24", "description": "required"},
		numeric: []string{"hours"},
	},
	message.IntentAddExpense: {
		rules:   map[string]any{"amount": "required,gt=0", "category": "required"},
		numeric: []string{"amount"},
	},
}

func (p *Parser) checkFields(intent message.Intent, data map[string]any) []Coercion {
	fr, ok := intentRules[intent]
	if !ok {
		return nil
	}

	var out []Coercion
	reported := make(map[string]bool)
	view := make(map[string]any, len(data))
	for k, v := range data {
		view[k] = v
	}
	for _, field := range fr.numeric {
		v, present := view[field]
		if !present {
			continue
		}
		n, isNum := v.(json.Number)
		if !isNum {
			out = append(out, Coercion{"data." + field, "expected a number"})
			reported[field] = true
			continue
		}
		f, err := n.Float64()
		if err != nil {
			out = append(out, Coercion{"data." + field, "number out of range"})
			reported[field] = true
			continue
		}
		view[field] = f
	}

	errs := p.validate.ValidateMap(view, fr.rules)
	fields := make([]string, 0, len(errs))
	for f := range errs {
		if reported[f] {
			continue
		}
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		reason := "invalid"
		if verrs, ok := errs[f].(validator.ValidationErrors); ok && len(verrs) > 0 {
			reason = fmt.Sprintf("failed %q rule", verrs[0].Tag())
		}
		out = append(out, Coercion{"data." + f, reason})
	}
	return out
}
