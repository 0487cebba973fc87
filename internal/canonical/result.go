package canonical

import "strconv"

// Stable machine-readable error codes. Configuration and input validation
// failures carry one of these; provider-native numeric codes are
// stringified as-is.
const (
	CodeUnsupportedProvider = "UNSUPPORTED_PROVIDER"
	CodeNotImplemented      = "NOT_IMPLEMENTED"
	CodeInvalidConfig       = "INVALID_CONFIG"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidSection      = "INVALID_SECTION"
	CodeInvalidItem         = "INVALID_ITEM"
	CodeMissingToken        = "MISSING_TOKEN"
	CodeMissingPhoneNumber  = "MISSING_PHONE_NUMBER_ID"
	CodeMissingAPIKey       = "MISSING_API_KEY"
	CodeMissingAPIURL       = "MISSING_API_URL"
	CodeMissingInstanceID   = "MISSING_INSTANCE_ID"
	CodeNetworkError        = "NETWORK_ERROR"
)

// SendError describes why a send failed.
type SendError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// SendResult is the uniform outcome of any outbound send. Exactly one of
// MessageID (success) or Error (failure) is populated; transport faults are
// always converted into this shape, never propagated past the renderer.
type SendResult struct {
	Success   bool       `json:"success"`
	MessageID string     `json:"messageId,omitempty"`
	Error     *SendError `json:"error,omitempty"`
}

// Sent builds a successful result carrying the provider's message ID.
func Sent(messageID string) SendResult {
	return SendResult{Success: true, MessageID: messageID}
}

// Failure builds a failed result with a stable code.
func Failure(code, message string) SendResult {
	return SendResult{Success: false, Error: &SendError{Message: message, Code: code}}
}

// ProviderFailure builds a failed result from a provider's own error
// message and numeric code, falling back to the HTTP status when the
// provider body carried neither.
func ProviderFailure(message string, code int, fallback string) SendResult {
	if message == "" {
		message = fallback
	}
	return SendResult{Success: false, Error: &SendError{Message: message, Code: strconv.Itoa(code)}}
}

// NotImplemented marks a (kind, provider) pair that has no renderer. This
// is a first-class outcome, not a crash.
func NotImplemented(kind, provider string) SendResult {
	return Failure(CodeNotImplemented, kind+" sending is not implemented for provider "+provider)
}

// UnsupportedProvider marks a send routed to a provider tag the engine
// does not know.
func UnsupportedProvider(provider string) SendResult {
	return Failure(CodeUnsupportedProvider, "unsupported messaging provider: "+provider)
}
