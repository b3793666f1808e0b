// Package stories scrapes kanji mnemonic stories from the RTK reference site
// and keeps the parsed result in a permanent cache.
package stories

// KoohiiStory is one community story. Author, score and body are always set
// together.
type KoohiiStory struct {
	Author string `json:"author"`
	Score  int    `json:"score"`
	Story  string `json:"story"`
}

// Bundle is everything scraped for one kanji. Story bodies keep the markup
// of the reference site. Koohii stories are in page order.
type Bundle struct {
	Koohii    []KoohiiStory `json:"koohii"`
	Heisig    *string       `json:"heisig"`
	Comment   *string       `json:"comment"`
	Primitive *string       `json:"primitive"`
}

// HasNotes reports whether the bundle carries a primitive note or a Heisig comment.
func (b *Bundle) HasNotes() bool {
	return b != nil && (b.Primitive != nil || b.Comment != nil)
}

// KoohiiAt returns the story at index i, or false when i is out of range.
func (b *Bundle) KoohiiAt(i int) (KoohiiStory, bool) {
	if b == nil || i < 0 || i >= len(b.Koohii) {
		return KoohiiStory{}, false
	}
	return b.Koohii[i], true
}
