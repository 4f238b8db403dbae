package pipeline

// Defaults for statement preprocessing.
const (
	// PreviewSize is the number of valid rows returned by a preview.
	PreviewSize = 10

	// MaxRejectReasonLen caps reason strings echoed back for a rejected row.
	MaxRejectReasonLen = 200
)
