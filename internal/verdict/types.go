package verdict

// #region severity
// Severity classifies how strongly an issue counts against a record.
// Only ERROR fails a verdict; WARNING is tracked, INFO is for debugging.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

// Rank returns the numeric ordering of a severity: ERROR=0, WARNING=1,
// INFO=2. Lower rank means more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// #endregion severity

// #region issue
// Issue is a single finding emitted by a validator. Immutable once created.
// Issues sharing a non-empty DedupKey describe the same underlying
// condition and are collapsed during aggregation.
type Issue struct {
	Severity  Severity
	Field     string
	Message   string
	Details   string
	Evidence  string
	DedupKey  string
	Validator string // set by the execution layer, not by validators
}

// #endregion issue

// #region verdict
// Verdict is the typed result of one validator run on one record
// (or one record variant). Created fresh per run, never mutated.
type Verdict struct {
	ValidatorName string
	Passed        bool
	Issues        []Issue
	Skipped       bool
	SkipReason    string
	Cost          float64
	Metadata      map[string]string
}

// New builds a verdict from a validator's issues. Pass/fail is fully
// determined by severity: the verdict fails iff any issue is ERROR.
func New(validatorName string, issues []Issue, cost float64) Verdict {
	passed := true
	for i := range issues {
		issues[i].Validator = validatorName
		if issues[i].Severity == SeverityError {
			passed = false
		}
	}
	return Verdict{
		ValidatorName: validatorName,
		Passed:        passed,
		Issues:        issues,
		Cost:          cost,
	}
}

// Skip builds a verdict for a validator that declined to run.
// Skipped verdicts never affect the aggregated pass/fail.
func Skip(validatorName, reason string) Verdict {
	return Verdict{
		ValidatorName: validatorName,
		Passed:        true,
		Skipped:       true,
		SkipReason:    reason,
	}
}

// ErrorCount returns the number of ERROR issues on the verdict.
func (v Verdict) ErrorCount() int {
	n := 0
	for _, is := range v.Issues {
		if is.Severity == SeverityError {
			n++
		}
	}
	return n
}

// WarningCount returns the number of WARNING issues on the verdict.
func (v Verdict) WarningCount() int {
	n := 0
	for _, is := range v.Issues {
		if is.Severity == SeverityWarning {
			n++
		}
	}
	return n
}

// #endregion verdict
