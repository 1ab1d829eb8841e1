package domain

// Severity of one health check result.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "ok"
	}
}

// HealthCheckResult is one check's outcome within a monitoring run. Results
// are ephemeral; only the aggregated verdict drives alerting.
type HealthCheckResult struct {
	Check    string
	Severity Severity
	Message  string
}

// HealthVerdict aggregates a full monitoring run.
type HealthVerdict struct {
	Results   []HealthCheckResult
	Warnings  int
	Criticals int
}

// Severity of the verdict as a whole: critical wins over warning wins over ok.
func (v *HealthVerdict) Severity() Severity {
	switch {
	case v.Criticals > 0:
		return SeverityCritical
	case v.Warnings > 0:
		return SeverityWarning
	default:
		return SeverityOK
	}
}

func (v *HealthVerdict) Add(r HealthCheckResult) {
	v.Results = append(v.Results, r)
	switch r.Severity {
	case SeverityWarning:
		v.Warnings++
	case SeverityCritical:
		v.Criticals++
	}
}
