package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/width"
)

const (
	signatureSnippetRunes = 120
	signatureSeparator    = "\x1f"
)

// Signature computes the stable content address of a candidate from its
// normalized title, publisher, calendar day, and snippet prefix. Pure:
// no I/O, no locale dependence beyond the stated folding rules.
func Signature(title, publisher string, publishedAt time.Time, snippet string) string {
	day := ""
	if !publishedAt.IsZero() {
		day = publishedAt.UTC().Format("2006-01-02")
	}

	fields := []string{
		normalizeSignatureField(title),
		normalizeSignatureField(publisher),
		day,
		truncateRunes(normalizeSignatureField(snippet), signatureSnippetRunes),
	}

	sum := sha256.Sum256([]byte(strings.Join(fields, signatureSeparator)))
	return hex.EncodeToString(sum[:16])
}

// normalizeSignatureField folds full-width characters to their half-width
// forms, drops every symbol that is neither word nor space, and collapses
// whitespace runs. Feed mirrors disagree on punctuation and digit width;
// the signature must not.
func normalizeSignatureField(input string) string {
	folded := width.Narrow.String(strings.ToLower(strings.TrimSpace(input)))
	if folded == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(folded))
	lastSpace := true
	for _, r := range folded {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimSpace(b.String())
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
