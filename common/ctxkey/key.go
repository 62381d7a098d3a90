package ctxkey

const (
	// RequestId is a per-request unique identifier, also echoed as a response header.
	// Set in: middleware.RequestId.
	RequestId = "X-Onechat-Request-Id"

	// UserKey is the admission identity: the premium code hash for premium users, else the user_id cookie value.
	// Set in: middleware.Identity.
	// Read in: controllers for ownership checks, rate limiting and stream cancellation.
	UserKey = "user_key"

	// UserId is the anonymous browser identity stored in the session.
	// Set in: middleware.Identity.
	UserId = "user_id"

	// Premium is a bool telling whether the caller holds a valid premium code.
	// Set in: middleware.Identity.
	Premium = "premium"

	// PremiumCodeHash is the session key holding the sha256 hex of the redeemed code.
	PremiumCodeHash = "premium_code_hash"
)
