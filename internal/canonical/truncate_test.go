package canonical

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateUnderLimit(t *testing.T) {
	in := "hello world"
	if got := Truncate(in); got != in {
		t.Errorf("Truncate(%q) = %q, want unchanged", in, got)
	}
}

func TestTruncateAtLimit(t *testing.T) {
	in := strings.Repeat("a", MaxTextLength)
	if got := Truncate(in); got != in {
		t.Errorf("content exactly at the ceiling must not be truncated")
	}
}

func TestTruncateOverLimit(t *testing.T) {
	in := strings.Repeat("a", MaxTextLength+100)
	got := Truncate(in)

	if !strings.HasSuffix(got, TruncationMarker) {
		t.Errorf("truncated content must end with %q, got suffix %q", TruncationMarker, got[len(got)-5:])
	}
	wantRunes := MaxTextLength + utf8.RuneCountInString(TruncationMarker)
	if n := utf8.RuneCountInString(got); n != wantRunes {
		t.Errorf("truncated length = %d runes, want %d", n, wantRunes)
	}
}

func TestTruncateCountsRunesNotBytes(t *testing.T) {
	// 4096 three-byte runes exceed the ceiling in bytes but not in runes.
	in := strings.Repeat("日", MaxTextLength)
	if got := Truncate(in); got != in {
		t.Errorf("multibyte content at the rune ceiling must not be truncated")
	}

	over := in + "本"
	got := Truncate(over)
	if !strings.HasSuffix(got, TruncationMarker) {
		t.Errorf("over-ceiling multibyte content must be truncated")
	}
	if n := utf8.RuneCountInString(got); n != MaxTextLength+utf8.RuneCountInString(TruncationMarker) {
		t.Errorf("truncated to %d runes, want %d", n, MaxTextLength)
	}
}
