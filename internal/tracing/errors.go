package tracing

import "fmt"

// ExportError reports a failed export. The spans were put back at the front
// of the buffer and will be retried on the next export.
type ExportError struct {
	Spans int
	Err   error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export of %d spans failed: %v", e.Spans, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}
