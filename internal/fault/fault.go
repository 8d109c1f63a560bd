// Package fault defines the failure taxonomy shared by the controllers and
// the user-facing wording each failure is reported with.
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork indicates the remote service was unreachable or timed out.
	ErrNetwork = errors.New("network error")
	// ErrRemote indicates the remote service answered with a non-success status
	// or an undecodable body.
	ErrRemote = errors.New("remote service error")
	// ErrCapacity indicates the remote service signalled it is busy.
	ErrCapacity = errors.New("remote service busy")
	// ErrCapture indicates the export rendering or encoding failed.
	ErrCapture = errors.New("export capture failed")
	// ErrUnsupportedCapability indicates a speech or voice capability is unavailable.
	ErrUnsupportedCapability = errors.New("capability not supported")
	// ErrAlreadyInProgress indicates a submit or export was requested while one is running.
	ErrAlreadyInProgress = errors.New("operation already in progress")
	// ErrInvalidFile indicates the selected file was rejected before upload.
	ErrInvalidFile = errors.New("invalid file")
)

// RemoteError carries the status code of a failed remote call.
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	if e.Body == "" {
		return fmt.Sprintf("remote service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("remote service returned %d: %s", e.StatusCode, e.Body)
}

func (e *RemoteError) Is(target error) bool {
	return target == ErrRemote
}

// IsRateLimited reports whether err means the service is throttling us.
func IsRateLimited(err error) bool {
	if errors.Is(err, ErrCapacity) {
		return true
	}
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusTooManyRequests
}

// Message converts err into the status string shown to the user.
func Message(err error) string {
	var remoteErr *RemoteError
	switch {
	case err == nil:
		return ""
	case IsRateLimited(err):
		return "High demand: please wait 60s for quota reset."
	case errors.Is(err, ErrAlreadyInProgress):
		return "Please wait for the current operation to finish."
	case errors.Is(err, ErrInvalidFile):
		return "Unsupported or oversized file. Upload a PDF, PNG or JPEG up to 10MB."
	case errors.Is(err, ErrUnsupportedCapability):
		return "This feature is not supported on this device."
	case errors.Is(err, ErrCapture):
		return "Export failed. Please try again."
	case errors.As(err, &remoteErr):
		return fmt.Sprintf("The analysis service returned an error (HTTP %d). Please try again.", remoteErr.StatusCode)
	case errors.Is(err, ErrRemote):
		return "The analysis service sent an unreadable response. Please try again."
	case errors.Is(err, ErrNetwork):
		return "Could not reach the analysis service. Check your connection and try again."
	default:
		return "Something went wrong. Please try again."
	}
}
