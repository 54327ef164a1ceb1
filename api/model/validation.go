package model

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ValidationFinding is one precondition check outcome.
type ValidationFinding struct {
	Check    string   `json:"check"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Field    string   `json:"field,omitempty"`
}

// ValidationResult collects findings for one rollback request.
type ValidationResult struct {
	Subject  string              `json:"subject"`
	Findings []ValidationFinding `json:"findings"`
}

func (r *ValidationResult) Add(f ValidationFinding) {
	r.Findings = append(r.Findings, f)
}

func (r *ValidationResult) Errors() []ValidationFinding {
	var out []ValidationFinding
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			out = append(out, f)
		}
	}
	return out
}

func (r *ValidationResult) Warnings() []ValidationFinding {
	var out []ValidationFinding
	for _, f := range r.Findings {
		if f.Severity == SeverityWarning {
			out = append(out, f)
		}
	}
	return out
}

func (r *ValidationResult) Valid() bool {
	return len(r.Errors()) == 0
}

// Fields lists the distinct fields with error findings.
func (r *ValidationResult) Fields() []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range r.Errors() {
		if f.Field == "" || seen[f.Field] {
			continue
		}
		seen[f.Field] = true
		out = append(out, f.Field)
	}
	return out
}

// Err returns a ValidationFailed error, or nil when the result is valid.
func (r *ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return &Error{
		Kind:     KindValidationFailed,
		Service:  r.Subject,
		Findings: r.Errors(),
	}
}
