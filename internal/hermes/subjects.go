package hermes

const (
	SubjectRetentionStats = "triage.retention.stats"

	StreamName   = "TRIAGE_EVENTS"
	StreamMaxAge = "720h" // 30 days
)

func SubjectRunCompleted(runID string) string { return "triage.run." + runID + ".completed" }
func SubjectCyclesDetected(runID string) string { return "triage.run." + runID + ".cycles" }
