// Package common defines shared sentinel and typed errors used across the
// upload engine. Callers should use errors.Is / errors.As to match them.
package common

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// Input validation errors. Fatal for the call, never retried.
	ErrValidation       = errors.New("validation failed")
	ErrInvalidStructure = errors.New("invalid folder structure")

	// Folder provisioning failed. Fatal for the whole call: no file may
	// reference a partially-created tree.
	ErrFolderProvisioning = errors.New("folder provisioning failed")

	// Hashing exceeded its own deadline, independent of network timeouts.
	ErrHashTimeout = errors.New("content hashing timed out")

	// Session store lookups.
	ErrSessionNotFound = errors.New("upload session not found")
)

// StatusError carries a non-success HTTP status from either the metadata
// service or the object-storage backend.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// TransferError reports one file whose transfer exhausted its retry budget.
// The placeholder record has already been rolled back when this surfaces.
type TransferError struct {
	FileName string
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer of %q failed: %v", e.FileName, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// PartTransferError reports a failed multipart upload step. The persisted
// session survives, so the file is failed but resumable. PartNumber 0 means
// the failure was in finalizing the upload, not in any single part.
type PartTransferError struct {
	FileName   string
	SessionID  string
	PartNumber int
	Err        error
}

func (e *PartTransferError) Error() string {
	if e.PartNumber == 0 {
		return fmt.Sprintf("finalizing %q failed (session %s): %v", e.FileName, e.SessionID, e.Err)
	}
	return fmt.Sprintf("part %d of %q failed (session %s): %v", e.PartNumber, e.FileName, e.SessionID, e.Err)
}

func (e *PartTransferError) Unwrap() error { return e.Err }

// NotificationError means bytes are durable in storage but the completion
// notification never got through: the documents exist, unprocessed. Distinct
// from TransferError so callers can offer "retry registration" instead of
// re-upload.
type NotificationError struct {
	DocumentIDs []string
	Err         error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("%d uploads stored but not registered for processing: %v", len(e.DocumentIDs), e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// Retryable classifies an error for retry purposes: network failures,
// timeouts, 5xx, 429 and 408 are worth another attempt; everything else
// (including context cancellation) is not.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500 || se.Status == 429 || se.Status == 408
	}
	var ne net.Error
	return errors.As(err, &ne)
}
