package models

// RateLimitExceededResponse is the API response body when a caller is rejected.
type RateLimitExceededResponse struct {
	Error      string `json:"error"` // always "rate_limit_exceeded"
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"` // seconds
}
