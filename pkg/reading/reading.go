// Package reading derives kana readings for kanji with the kagome tokenizer.
// The card view shows them as a pronunciation hint next to the keyword.
package reading

import (
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Token is a single analyzed unit of text.
type Token struct {
	Surface string // The text as it appears (e.g. "浮い")
	Reading string // Katakana reading (e.g. "ウイ"), empty when unknown
	// PrimaryPOS is the first part of speech label, if any.
	PrimaryPOS string
}

// Hinter produces readings for kanji strings.
type Hinter struct {
	t *tokenizer.Tokenizer
}

// NewHinter creates a tokenizer backed by the IPA dictionary.
func NewHinter() (*Hinter, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &Hinter{t: t}, nil
}

// Analyze breaks text into tokens with readings.
func (h *Hinter) Analyze(text string) []Token {
	var result []Token
	for _, token := range h.t.Tokenize(text) {
		if token.Class == tokenizer.DUMMY || strings.TrimSpace(token.Surface) == "" {
			continue
		}

		// IPA features: 0 POS, 1-3 sub-POS, 4-5 conjugation, 6 base form,
		// 7 reading, 8 pronunciation.
		features := token.Features()
		reading := ""
		if len(features) > 7 && features[7] != "*" {
			reading = features[7]
		}
		primaryPOS := ""
		if len(features) > 0 {
			primaryPOS = features[0]
		}

		result = append(result, Token{
			Surface:    token.Surface,
			Reading:    reading,
			PrimaryPOS: primaryPOS,
		})
	}
	return result
}

// Hint returns the hiragana reading of text, or "" if any part of it has no
// known reading. Punctuation and symbols are ignored.
func (h *Hinter) Hint(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || h == nil {
		return ""
	}
	var b strings.Builder
	for _, tok := range h.Analyze(text) {
		if tok.PrimaryPOS == "記号" {
			continue
		}
		if tok.Reading == "" {
			return ""
		}
		b.WriteString(ToHiragana(tok.Reading))
	}
	return b.String()
}

// ToHiragana converts katakana to hiragana, leaving other runes untouched.
func ToHiragana(s string) string {
	runes := []rune(s)
	for i, r := range runes {
		if r >= 0x30A1 && r <= 0x30F6 {
			runes[i] = r - 0x60
		}
	}
	return string(runes)
}
