// Package testutil provides shared generators for property-based tests.
// String generators are intentionally aggressive to catch edge cases.
package testutil

import (
	"math"
	"strings"

	"pgregory.net/rapid"
)

// ArbitraryNoteText generates valid UTF-8 note text up to the per-note
// limit, including empty strings, control characters, SQL injection
// attempts, Unicode edge cases and whitespace-only text.
func ArbitraryNoteText() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.StringN(0, 200, -1),
		rapid.Just(""),
		rapid.Just("New Note"),
		rapid.Just("test\x00test"),
		rapid.StringMatching(`[a-zA-Z0-9 ]{0,100}`),
		rapid.StringMatching(`[\x01-\x1F]{1,10}`),
		arbitrarySQLInjection(),
		arbitraryUnicode(),
		arbitraryWhitespace(),
		arbitraryLongText(),
	)
}

// ArbitraryCoordinate generates coordinates well inside, on the edges of and
// far outside the canvas, plus non-finite values.
func ArbitraryCoordinate() *rapid.Generator[float64] {
	return rapid.OneOf(
		rapid.Float64Range(0, 10000),
		rapid.Float64Range(-1e6, 1e6),
		rapid.SampledFrom([]float64{0, -0.0001, 9850, 9850.0001, 4920, 1e308, -1e308}),
		rapid.SampledFrom([]float64{math.Inf(1), math.Inf(-1), math.NaN()}),
	)
}

// ArbitraryNoteID generates well-formed note ids.
func ArbitraryNoteID() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.StringMatching(`textbox-[a-z0-9]{6,32}`),
		rapid.StringMatching(`[A-Za-z0-9_\-]{1,64}`),
	)
}

// arbitrarySQLInjection generates common SQL injection patterns
func arbitrarySQLInjection() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		`' OR 1=1 --`,
		`'; DROP TABLE textboxes; --`,
		`" OR "1"="1`,
		`1; SELECT * FROM user_keys`,
		`' UNION SELECT * FROM profiles --`,
		`'; DELETE FROM textboxes; --`,
		`%27%20OR%20%271%27%3D%271`,
		`<script>alert('xss')</script>`,
		`:named_param`,
		`?`,
		`$1`,
	})
}

// arbitraryUnicode generates various Unicode edge cases
func arbitraryUnicode() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		"日本語",
		"العربية",
		"🔥🎉💻🚀",
		"emoji🔥in🎉middle",
		"Zürich",
		"Москва",
		"​",
		"\ufeff",
		"à",
		"‮" + "reversed" + "‬",
		"👨‍👩‍👧‍👦",
		"\U0001F1FA\U0001F1F8",
		"line separator",
	})
}

// arbitraryWhitespace generates various whitespace patterns
func arbitraryWhitespace() *rapid.Generator[string] {
	return rapid.SampledFrom([]string{
		" ",
		"\t",
		"\n",
		"\r\n",
		" \t \n ",
		"\n\n\n",
		"  test  ",
		"line1\nline2",
		" ",
		"　",
	})
}

// arbitraryLongText generates text at and just under the per-note limit.
func arbitraryLongText() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		length := rapid.SampledFrom([]int{1000, 9999, 10000}).Draw(t, "length")
		return strings.Repeat("abcdefghij", length/10+1)[:length]
	})
}

// ValidUserID generates user ids as identity providers issue them.
func ValidUserID() *rapid.Generator[string] {
	return rapid.OneOf(
		rapid.StringMatching(`[A-Za-z0-9]{28}`),
		rapid.Custom(func(t *rapid.T) string {
			prefix := rapid.StringMatching("[a-z]{1,10}").Draw(t, "prefix")
			suffix := rapid.StringMatching("[0-9]{1,5}").Draw(t, "suffix")
			return prefix + "-" + suffix
		}),
	)
}

// ArbitraryUserID generates arbitrary user ids including hostile ones.
func ArbitraryUserID() *rapid.Generator[string] {
	return rapid.OneOf(
		ValidUserID(),
		rapid.Just(""),
		rapid.Just("\x00"),
		rapid.Just("../escape"),
		rapid.Just("/root"),
		rapid.Just("a/b"),
		rapid.Just("user\x00id"),
		rapid.String(),
	)
}
