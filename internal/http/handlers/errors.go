// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are lowercase snake_case and give the UI a stable, machine-readable
// taxonomy next to the human-readable message. Generic codes mirror HTTP
// status semantics; the remaining ones describe offline-sync outcomes the UI
// reacts to (e.g. offering a retry when the store is unavailable).
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "not_found",
//	  "message": "item not found"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeValidation         = "validation_failed"
	ErrCodeRemoteRejected     = "remote_rejected"
	ErrCodeRemoteUnauthorized = "remote_unauthorized"
	ErrCodeOfflineUnavailable = "offline_unavailable"
	ErrCodeOffline            = "offline"
	ErrCodeSyncInProgress     = "sync_in_progress"
)
