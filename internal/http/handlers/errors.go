// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// Codes are stable, lowercase, snake_case strings. Clients branch on the code;
// the accompanying "error" text is for people.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "rate_limited",
//	  "error": "Rate limits exceeded, please try again later."
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeInternal         = "internal_error"

	// Model gateway outcomes.
	ErrCodeRateLimited     = "rate_limited"
	ErrCodePaymentRequired = "payment_required"
	ErrCodeGatewayAuth     = "gateway_unauthorized"
	ErrCodeGateway         = "gateway_error"

	// History store outcomes.
	ErrCodeListFailed   = "list_failed"
	ErrCodeDeleteFailed = "delete_failed"
)
