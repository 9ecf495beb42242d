package governance

import "fmt"

// AnomalyEvent is the audit event type raised for a positive detection.
type AnomalyEvent string

const (
	// AnomalyManyRuns flags an unusually high run rate for one user.
	AnomalyManyRuns AnomalyEvent = "ANOMALY_MANY_RUNS"
	// AnomalyManySubjects flags searches across many distinct data subjects.
	AnomalyManySubjects AnomalyEvent = "ANOMALY_MANY_SUBJECTS"
	// AnomalyPermissionDenied flags repeated permission denials.
	AnomalyPermissionDenied AnomalyEvent = "ANOMALY_PERMISSION_DENIED"
)

// AnomalyInput carries the caller-computed rolling one-hour aggregates for a
// single (tenant, user) pair. The detector holds no state of its own.
type AnomalyInput struct {
	TenantID                   string
	UserID                     string
	RunsInLastHour             int
	DistinctSubjectsInLastHour int
	PermissionDeniedInLastHour int
}

// AnomalyResult classifies the input. A positive result escalates to a
// break-glass audit record; it never blocks the request that triggered it.
type AnomalyResult struct {
	Anomalous   bool
	Event       AnomalyEvent
	Description string
}

// DetectAnomalies evaluates the thresholds in a fixed order; the first match
// wins because each maps to a distinct audit event type.
func DetectAnomalies(in AnomalyInput, thresholds AnomalyThresholds) AnomalyResult {
	if t := thresholds.MaxRunsPerHour; t > 0 && in.RunsInLastHour >= t {
		return AnomalyResult{
			Anomalous: true,
			Event:     AnomalyManyRuns,
			Description: fmt.Sprintf("user %s started %d runs in the last hour (threshold %d)",
				in.UserID, in.RunsInLastHour, t),
		}
	}
	if t := thresholds.MaxDistinctSubjectsPerHour; t > 0 && in.DistinctSubjectsInLastHour >= t {
		return AnomalyResult{
			Anomalous: true,
			Event:     AnomalyManySubjects,
			Description: fmt.Sprintf("user %s searched %d distinct subjects in the last hour (threshold %d)",
				in.UserID, in.DistinctSubjectsInLastHour, t),
		}
	}
	if t := thresholds.MaxPermissionDeniedPerHour; t > 0 && in.PermissionDeniedInLastHour >= t {
		return AnomalyResult{
			Anomalous: true,
			Event:     AnomalyPermissionDenied,
			Description: fmt.Sprintf("user %s hit %d permission denials in the last hour (threshold %d)",
				in.UserID, in.PermissionDeniedInLastHour, t),
		}
	}
	return AnomalyResult{}
}
