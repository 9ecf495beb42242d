package governance

import "time"

// DeletionTarget names an artifact kind subject to retention deletion.
type DeletionTarget string

const (
	TargetEvidenceItems        DeletionTarget = "EVIDENCE_ITEMS"
	TargetDetectorResults      DeletionTarget = "DETECTOR_RESULTS"
	TargetFindings             DeletionTarget = "FINDINGS"
	TargetGeneratedSummaries   DeletionTarget = "GENERATED_SUMMARIES"
	TargetExportArtifacts      DeletionTarget = "EXPORT_ARTIFACTS"
	TargetRedactionSuggestions DeletionTarget = "REDACTION_SUGGESTIONS"
)

// DeletionTargets enumerates every artifact kind covered by the retention
// policy. The list is a static contract consumed by the cleanup job.
func DeletionTargets() []DeletionTarget {
	return []DeletionTarget{
		TargetEvidenceItems,
		TargetDetectorResults,
		TargetFindings,
		TargetGeneratedSummaries,
		TargetExportArtifacts,
		TargetRedactionSuggestions,
	}
}

// RetentionDate computes when a closed case's artifacts become deletable.
// It returns nil while the case is still open.
func RetentionDate(caseClosedAt *time.Time, retentionDays int) *time.Time {
	if caseClosedAt == nil {
		return nil
	}
	d := caseClosedAt.AddDate(0, 0, retentionDays)
	return &d
}

// EligibleForDeletion reports whether the retention window has fully elapsed.
// Open cases are never eligible.
func EligibleForDeletion(caseClosedAt *time.Time, retentionDays int, now time.Time) bool {
	due := RetentionDate(caseClosedAt, retentionDays)
	return due != nil && !now.Before(*due)
}
