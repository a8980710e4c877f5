package verdict

// #region severity

// Severity grades a compliance finding.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// #endregion severity

// #region verdict

// Verdict is the validated compliance decision for one audit.
// InsufficientEvidence is set by the generator when no policy text matched the
// evidence; the model never sets it.
type Verdict struct {
	Violation            bool     `json:"violation"`
	ViolatedRules        []string `json:"violated_rules"`
	FailureReasons       []string `json:"failure_reasons"`
	Recommendations      []string `json:"recommendations"`
	Explanation          string   `json:"explanation"`
	Severity             Severity `json:"severity"`
	Confidence           float64  `json:"confidence"`
	InsufficientEvidence bool     `json:"insufficient_evidence"`
}

// Clone returns a deep copy.
func (v Verdict) Clone() Verdict {
	out := v
	out.ViolatedRules = append([]string{}, v.ViolatedRules...)
	out.FailureReasons = append([]string{}, v.FailureReasons...)
	out.Recommendations = append([]string{}, v.Recommendations...)
	return out
}

// #endregion verdict
