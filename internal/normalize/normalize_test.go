package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProtectAndRestoreURL(t *testing.T) {
	text := "Check https://example.com/path?q=1 for details."
	n := Protect(text)

	assert.NotContains(t, n.Text, "https://example.com")
	restored := n.Restore(n.Text)
	assert.Equal(t, text, restored)
}

func TestProtectAndRestoreEmail(t *testing.T) {
	text := "Contact support@example.com about this."
	n := Protect(text)

	assert.NotContains(t, n.Text, "support@example.com")
	assert.Equal(t, text, n.Restore(n.Text))
}

func TestProtectAndRestoreNumberUnit(t *testing.T) {
	text := "Wait 40ms then retry after 5s."
	n := Protect(text)
	assert.NotContains(t, n.Text, "40ms")
	assert.Equal(t, text, n.Restore(n.Text))
}

func TestProtectAndRestoreInlineCode(t *testing.T) {
	text := "Run `go test ./...` before committing."
	n := Protect(text)
	assert.NotContains(t, n.Text, "`go test ./...`")
	assert.Equal(t, text, n.Restore(n.Text))
}

func TestProtectMultipleOccurrencesRestoreIndependently(t *testing.T) {
	text := "Ping a@b.com or c@d.com."
	n := Protect(text)
	assert.Equal(t, text, n.Restore(n.Text))
}

func TestRestoreLeavesUnknownTextUnchanged(t *testing.T) {
	n := Protect("no placeholders here")
	assert.Equal(t, "translated output", n.Restore("translated output"))
}

func TestProtectURLInsideInlineCodeNotDoubleProtected(t *testing.T) {
	text := "See `https://example.com/x` for the link."
	n := Protect(text)
	// The whole backtick span becomes exactly one placeholder, not one
	// nested inside another.
	assert.Equal(t, 1, len(n.placeholders))
	assert.Equal(t, text, n.Restore(n.Text))
}
