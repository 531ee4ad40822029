package hermes

const (
	// Published by the discovery collaborator with newly found recordings.
	SubjectRecordingsDiscovered = "audit.recordings.discovered"
	// Published by the judgment source; the wildcard is the selection id.
	SubjectJudgmentReady = "audit.judgment.*.ready"

	// Durable consumer that scores judgment documents.
	ConsumerJudgments = "callaudit-judgments"

	StreamName   = "AUDIT_EVENTS"
	StreamMaxAge = "720h" // 30 days
)

func SubjectSelectionCompleted(date string) string { return "audit.selection." + date + ".completed" }

func SubjectEvaluationScored(selectionID string) string {
	return "audit.evaluation." + selectionID + ".scored"
}

func SubjectEvaluationCorrected(selectionID string) string {
	return "audit.evaluation." + selectionID + ".corrected"
}

func SubjectJudgmentReadyFor(selectionID string) string { return "audit.judgment." + selectionID + ".ready" }
