package verdict

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

// #region schema

// modelSchema is the shape the model must answer with. insufficient_evidence is
// absent on purpose: only the generator sets it.
const modelSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["violation", "violated_rules", "failure_reasons", "recommendations", "explanation", "severity", "confidence"],
  "properties": {
    "violation": {"type": "boolean"},
    "violated_rules": {"type": "array", "items": {"type": "string"}},
    "failure_reasons": {"type": "array", "items": {"type": "string"}},
    "recommendations": {"type": "array", "items": {"type": "string"}},
    "explanation": {"type": "string"},
    "severity": {"type": "string", "enum": ["none", "low", "medium", "high"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  }
}`

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile([]byte(modelSchema))
	if err != nil {
		return nil, fmt.Errorf("compile verdict schema: %w", err)
	}
	return schema, nil
})

// #endregion schema

// #region validate

var (
	ErrNotJSON    = errors.New("response is not a JSON object")
	ErrSchema     = errors.New("response does not match the verdict schema")
	ErrInvariant  = errors.New("verdict fields are inconsistent")
	ErrNoResponse = errors.New("response is empty")
)

// Validate parses raw model output into a Verdict. A surrounding markdown code
// fence is tolerated; anything else that is not exactly one schema-conforming
// JSON object is rejected. No field is ever defaulted.
func Validate(raw string) (Verdict, error) {
	body, err := extractObject(raw)
	if err != nil {
		return Verdict{}, err
	}

	schema, err := compiledSchema()
	if err != nil {
		return Verdict{}, err
	}
	result := schema.ValidateJSON(body)
	if !result.IsValid() {
		return Verdict{}, fmt.Errorf("%w: %v", ErrSchema, result.Errors)
	}

	var v Verdict
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := checkInvariants(v); err != nil {
		return Verdict{}, err
	}
	return v, nil
}

func checkInvariants(v Verdict) error {
	if !v.Violation {
		if v.Severity != SeverityNone {
			return fmt.Errorf("%w: violation is false but severity is %q", ErrInvariant, v.Severity)
		}
		if len(v.ViolatedRules) > 0 || len(v.FailureReasons) > 0 {
			return fmt.Errorf("%w: violation is false but rules or reasons are listed", ErrInvariant)
		}
		return nil
	}
	if v.Severity == SeverityNone {
		return fmt.Errorf("%w: violation is true but severity is none", ErrInvariant)
	}
	return nil
}

// #endregion validate

// #region extract

// extractObject strips an optional ``` or ```json fence and checks that what is
// left is a single JSON object.
func extractObject(raw string) ([]byte, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, ErrNoResponse
	}
	if strings.HasPrefix(text, "```") {
		nl := strings.IndexByte(text, '\n')
		if nl < 0 || !strings.HasSuffix(text, "```") || len(text) < nl+4 {
			return nil, fmt.Errorf("%w: unterminated code fence", ErrNotJSON)
		}
		text = strings.TrimSpace(text[nl+1 : len(text)-3])
	}
	if !strings.HasPrefix(text, "{") || !strings.HasSuffix(text, "}") {
		return nil, ErrNotJSON
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrNotJSON)
	}
	return []byte(text), nil
}

// #endregion extract
