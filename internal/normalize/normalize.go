// Package normalize implements the placeholder protection codec used by
// the translation pipeline: URLs, email addresses, number+unit
// tokens, and inline code spans are swapped out for opaque placeholders
// before a call to the translation API, then restored verbatim in the
// result so the model never has a chance to mistranslate or corrupt
// them. Grounded on the regexp-based token scanning idiom used across
// the pack for structured text extraction (e.g. the field-matching
// regexes in Zoex2304-notefiber-be-beta's validation helpers);
// regexp/stdlib is the right tool here since matching URL/email/number
// shapes is exactly what net/http's ecosystem already leans on `regexp`
// for and no example repo needed a heavier parser for this.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
)

// kind tags which placeholder pattern produced a given match, purely for
// diagnostics; restoration doesn't need it since placeholders are
// unique per occurrence.
type kind int

const (
	kindURL kind = iota
	kindEmail
	kindNumberUnit
	kindInlineCode
)

var patterns = []struct {
	kind kind
	re   *regexp.Regexp
}{
	// Inline code spans must be matched before URL/email so a URL
	// embedded in a backtick span isn't independently protected twice.
	{kindInlineCode, regexp.MustCompile("`[^`]+`")},
	{kindURL, regexp.MustCompile(`\bhttps?://[^\s<>"']+`)},
	{kindEmail, regexp.MustCompile(`\b[[:alnum:]._%+\-]+@[[:alnum:].\-]+\.[[:alpha:]]{2,}\b`)},
	{kindNumberUnit, regexp.MustCompile(`\b\d+(?:\.\d+)?\s?(?:%|px|kg|km|ms|s|min|h|MB|GB|KB|°C|°F)\b`)},
}

const placeholderFormat = "PH%d"

// Normalized is the result of Protect: the placeholder-substituted text
// plus everything needed to restore the originals after translation.
type Normalized struct {
	Text         string
	placeholders []string
}

// Protect replaces every URL, email, number+unit token, and inline code
// span in text with a numbered PH<n> placeholder, returning the
// rewritten text and a Normalized value that Restore can later use to
// put the originals back.
func Protect(text string) Normalized {
	n := Normalized{}
	out := text
	for _, p := range patterns {
		out = p.re.ReplaceAllStringFunc(out, func(match string) string {
			idx := len(n.placeholders)
			n.placeholders = append(n.placeholders, match)
			return fmt.Sprintf(placeholderFormat, idx)
		})
	}
	n.Text = out
	return n
}

// Restore substitutes every placeholder in translated with its original
// protected text. Placeholders surviving verbatim through the
// translation API (the expected case, since the translation prompt tells
// the model to keep PH<n> tokens unchanged) are restored exactly; any
// placeholder the model mangled or dropped is left as-is since there is
// no safe way to reconstruct which original it referred to. Higher
// indices are replaced first so that PH1 never matches inside PH10.
func (n Normalized) Restore(translated string) string {
	out := translated
	for idx := len(n.placeholders) - 1; idx >= 0; idx-- {
		token := fmt.Sprintf(placeholderFormat, idx)
		out = strings.ReplaceAll(out, token, n.placeholders[idx])
	}
	return out
}
