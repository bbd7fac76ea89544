// Package handlers defines HTTP-layer error codes used across all API
// endpoints. Codes are lowercase snake_case and stable: clients branch on
// them programmatically, supplementing the human-readable message.
//
// Rejections produced before a handler runs carry their own codes, emitted
// at the middleware layer: "rate_limited" (429) and "internal_error"
// (recovered panics).
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
