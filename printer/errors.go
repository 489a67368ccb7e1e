package printer

import "errors"

var (
	// ErrNotReady means no usable printer device is available for a job.
	ErrNotReady = errors.New("printer: no usable printer device")

	// ErrDescriptorUnavailable means the host could not supply the active
	// configuration descriptor during a scan.
	ErrDescriptorUnavailable = errors.New("printer: configuration descriptor unavailable")

	// ErrEmptyPayload means a job was requested with no data to send;
	// nothing is claimed or submitted.
	ErrEmptyPayload = errors.New("printer: empty print job payload")

	ErrClaimFailed      = errors.New("printer: interface claim failed")
	ErrAllocationFailed = errors.New("printer: transfer allocation failed")
	ErrSubmitFailed     = errors.New("printer: transfer submit failed")

	// ErrTimeout means the completion callback did not fire within the
	// configured bound. The in-flight transfer cannot be cancelled.
	ErrTimeout = errors.New("printer: transfer timed out")

	// ErrTransferFailed means the completion callback recorded a
	// non-completed status.
	ErrTransferFailed = errors.New("printer: transfer failed")
)
