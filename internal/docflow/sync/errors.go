package sync

import "errors"

var (
	// ErrTokenAcquisition means no access token could be obtained for a record.
	ErrTokenAcquisition = errors.New("token acquisition failed")

	// ErrRemoteSubmission means the remote rejected a record or could not be reached.
	ErrRemoteSubmission = errors.New("remote submission failed")

	// ErrRender means the document could not be rendered. The record is still
	// submitted, without an attachment.
	ErrRender = errors.New("render failed")
)
