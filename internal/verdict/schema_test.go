package verdict

import (
	"errors"
	"testing"
)

const compliantJSON = `{"violation":false,"violated_rules":[],"failure_reasons":[],"recommendations":["keep disclaimers visible"],"explanation":"No rule applies.","severity":"none","confidence":0.8}`

const violationJSON = `{"violation":true,"violated_rules":["rule-1"],"failure_reasons":["targets minors"],"recommendations":["remove scene"],"explanation":"Shows teenagers drinking.","severity":"high","confidence":0.9}`

func TestValidate_Accepts(t *testing.T) {
	v, err := Validate(violationJSON)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !v.Violation || v.Severity != SeverityHigh || v.Confidence != 0.9 {
		t.Fatalf("unexpected verdict: %+v", v)
	}
	if len(v.ViolatedRules) != 1 || v.ViolatedRules[0] != "rule-1" {
		t.Fatalf("unexpected rules: %v", v.ViolatedRules)
	}
	if v.InsufficientEvidence {
		t.Fatal("model output must not set insufficient_evidence")
	}
}

func TestValidate_ToleratesCodeFence(t *testing.T) {
	for _, raw := range []string{
		"```json\n" + compliantJSON + "\n```",
		"```\n" + compliantJSON + "\n```",
		"  \n" + compliantJSON + "\n  ",
	} {
		if _, err := Validate(raw); err != nil {
			t.Fatalf("Validate(%q): %v", raw, err)
		}
	}
}

func TestValidate_RejectsNonJSON(t *testing.T) {
	cases := []string{
		"",
		"The ad looks fine to me.",
		"Here is the verdict: " + compliantJSON,
		compliantJSON + " hope this helps",
		`{"violation": false,`,
		"```json\n" + compliantJSON,
	}
	for _, raw := range cases {
		_, err := Validate(raw)
		if err == nil {
			t.Fatalf("expected rejection for %q", raw)
		}
		if !errors.Is(err, ErrNotJSON) && !errors.Is(err, ErrNoResponse) {
			t.Fatalf("expected ErrNotJSON/ErrNoResponse for %q, got %v", raw, err)
		}
	}
}

func TestValidate_RejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"missing field":      `{"violation":false,"violated_rules":[],"failure_reasons":[],"explanation":"x","severity":"none","confidence":0.5}`,
		"bad severity":       `{"violation":true,"violated_rules":["r"],"failure_reasons":["f"],"recommendations":[],"explanation":"x","severity":"critical","confidence":0.5}`,
		"confidence > 1":     `{"violation":false,"violated_rules":[],"failure_reasons":[],"recommendations":[],"explanation":"x","severity":"none","confidence":1.5}`,
		"confidence string":  `{"violation":false,"violated_rules":[],"failure_reasons":[],"recommendations":[],"explanation":"x","severity":"none","confidence":"high"}`,
		"rules not list":     `{"violation":true,"violated_rules":"r","failure_reasons":["f"],"recommendations":[],"explanation":"x","severity":"low","confidence":0.5}`,
		"non-string item":    `{"violation":true,"violated_rules":[1],"failure_reasons":["f"],"recommendations":[],"explanation":"x","severity":"low","confidence":0.5}`,
		"null list":          `{"violation":false,"violated_rules":null,"failure_reasons":[],"recommendations":[],"explanation":"x","severity":"none","confidence":0.5}`,
		"model sets flag":    `{"violation":false,"violated_rules":[],"failure_reasons":[],"recommendations":[],"explanation":"x","severity":"none","confidence":0.5,"insufficient_evidence":true}`,
		"violation not bool": `{"violation":"no","violated_rules":[],"failure_reasons":[],"recommendations":[],"explanation":"x","severity":"none","confidence":0.5}`,
	}
	for name, raw := range cases {
		if _, err := Validate(raw); !errors.Is(err, ErrSchema) {
			t.Fatalf("%s: expected ErrSchema, got %v", name, err)
		}
	}
}

func TestValidate_RejectsInconsistentVerdicts(t *testing.T) {
	cases := map[string]string{
		"no violation with severity": `{"violation":false,"violated_rules":[],"failure_reasons":[],"recommendations":[],"explanation":"x","severity":"medium","confidence":0.5}`,
		"no violation with rules":    `{"violation":false,"violated_rules":["r"],"failure_reasons":[],"recommendations":[],"explanation":"x","severity":"none","confidence":0.5}`,
		"no violation with reasons":  `{"violation":false,"violated_rules":[],"failure_reasons":["f"],"recommendations":[],"explanation":"x","severity":"none","confidence":0.5}`,
		"violation without severity": `{"violation":true,"violated_rules":["r"],"failure_reasons":["f"],"recommendations":[],"explanation":"x","severity":"none","confidence":0.5}`,
	}
	for name, raw := range cases {
		if _, err := Validate(raw); !errors.Is(err, ErrInvariant) {
			t.Fatalf("%s: expected ErrInvariant, got %v", name, err)
		}
	}
}

func TestVerdictClone(t *testing.T) {
	v, err := Validate(violationJSON)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	c := v.Clone()
	c.ViolatedRules[0] = "changed"
	if v.ViolatedRules[0] != "rule-1" {
		t.Fatal("clone shares backing array")
	}
}
