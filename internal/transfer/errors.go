package transfer

import "fmt"

// TransferError reports a download that exhausted its retry budget. The
// partial file is left on disk so a future invocation can resume it.
type TransferError struct {
	URL      string // the source URL
	Attempts int    // attempts made before giving up
	Err      error  // the last transient failure observed
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer of %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// permanentError marks failures that retrying cannot fix, such as a 404.
type permanentError struct {
	Err error
}

func (e *permanentError) Error() string {
	return e.Err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.Err
}
