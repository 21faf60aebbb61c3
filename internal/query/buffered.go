package query

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Buffered holds a draft value that only becomes effective on an explicit
// Commit. Keystrokes update the draft; the committed value is what takes
// part in query identity.
type Buffered[T comparable] struct {
	draft     T
	committed T
}

// SetDraft replaces the draft without touching the committed value.
func (b *Buffered[T]) SetDraft(v T) {
	b.draft = v
}

// Draft returns the pending value.
func (b *Buffered[T]) Draft() T {
	return b.draft
}

// Committed returns the effective value.
func (b *Buffered[T]) Committed() T {
	return b.committed
}

// Commit promotes the draft and reports whether the committed value changed.
func (b *Buffered[T]) Commit() bool {
	return b.CommitFunc(nil)
}

// CommitFunc promotes clean(draft). A nil clean commits the draft as is.
func (b *Buffered[T]) CommitFunc(clean func(T) T) bool {
	v := b.draft
	if clean != nil {
		v = clean(v)
	}
	changed := v != b.committed
	b.committed = v
	return changed
}

// Reset sets both stages to v.
func (b *Buffered[T]) Reset(v T) {
	b.draft = v
	b.committed = v
}

// ParseBound parses a numeric filter bound. Empty, unparseable and
// non-finite text means "no bound" and yields nil.
func ParseBound(text string) *float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// NormalizeSearch trims the search text and folds Unicode compatibility
// forms (full-width letters, ligatures) so equivalent input yields the
// same query identity.
func NormalizeSearch(text string) string {
	return strings.TrimSpace(norm.NFKC.String(text))
}
