package errors

// OutcomeClass is the boundary-layer classification of an engine result.
// The engine itself never retries; the layer above it owns backoff policy
// and uses this classification instead of matching on error strings.
type OutcomeClass int

const (
	OutcomeSuccess OutcomeClass = iota
	OutcomeRetryable
	OutcomeFatal
)

func (c OutcomeClass) String() string {
	switch c {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "fatal"
	}
}

// Classify maps an engine error to its outcome class. Contention errors
// (Busy, Expired, VersionConflict) are retryable; everything else,
// including infrastructure failures, is fatal for the in-flight request.
func Classify(err error) OutcomeClass {
	if err == nil {
		return OutcomeSuccess
	}
	if appErr, ok := err.(*AppError); ok && appErr.Retryable {
		return OutcomeRetryable
	}
	return OutcomeFatal
}
