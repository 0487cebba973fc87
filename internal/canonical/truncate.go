package canonical

// MaxTextLength is the ceiling applied to outbound text content before it
// reaches any provider renderer. WhatsApp caps text bodies at 4096
// characters; both providers here are protected uniformly.
const MaxTextLength = 4096

// TruncationMarker is appended to truncated content so the cut is visible
// to the recipient.
const TruncationMarker = "..."

// Truncate cuts s to MaxTextLength runes and appends the marker. Content
// at or under the ceiling is returned unchanged.
func Truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxTextLength {
		return s
	}
	return string(runes[:MaxTextLength]) + TruncationMarker
}
