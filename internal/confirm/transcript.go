package confirm

import "strings"

// Transcript is the bounded, ordered list of confirmed words.
// It is not safe for concurrent use; the Engine guards it.
type Transcript struct {
	words     []string
	maxLength int
}

// NewTranscript creates a Transcript keeping at most maxLength words.
func NewTranscript(maxLength int) *Transcript {
	if maxLength < 1 {
		maxLength = DefaultMaxSentenceLength
	}
	return &Transcript{
		words:     make([]string, 0, maxLength+1),
		maxLength: maxLength,
	}
}

// Append adds a word and drops the oldest words beyond maxLength.
func (t *Transcript) Append(word string) {
	t.words = append(t.words, word)
	if len(t.words) > t.maxLength {
		n := copy(t.words, t.words[len(t.words)-t.maxLength:])
		t.words = t.words[:n]
	}
}

// Clear removes every word.
func (t *Transcript) Clear() {
	t.words = t.words[:0]
}

// Len returns the number of words.
func (t *Transcript) Len() int {
	return len(t.words)
}

// Words returns a copy of the words, oldest first.
func (t *Transcript) Words() []string {
	out := make([]string, len(t.words))
	copy(out, t.words)
	return out
}

// String joins the words with single spaces.
func (t *Transcript) String() string {
	return strings.Join(t.words, " ")
}
