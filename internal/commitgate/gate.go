// Package commitgate prevents a user-facing message from being committed
// twice for the same logical run step.
//
// The gate is a pure decision function: hashing catches exact repeats
// cheaply, token-set Jaccard similarity catches near-repeats (re-sends with
// trivial punctuation or casing changes) without semantic comparison. The
// gate never mutates state; persisting the hash and normalized text on an
// actual commit is the caller's responsibility.
package commitgate

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultSimilarityThreshold is the Jaccard similarity above which a message
// counts as a near-duplicate. Tunable, not a hard law.
const DefaultSimilarityThreshold = 0.92

// Reason explains a denial.
type Reason string

const (
	// ReasonDuplicateHash means the normalized text hashes identically to
	// the committed message.
	ReasonDuplicateHash Reason = "duplicate_hash"

	// ReasonDuplicateSimilar means the token overlap with the committed
	// message is at or above the similarity threshold.
	ReasonDuplicateSimilar Reason = "duplicate_similar"

	// ReasonAlreadyCommitted means a commit already exists for this turn;
	// at most one commit per turn is the governing invariant.
	ReasonAlreadyCommitted Reason = "already_committed"
)

// State holds what has been committed within one conversation turn. One
// instance per turn; a fresh turn starts with the zero State. Transitions
// only move forward: not-committed to committed, never back mid-turn.
type State struct {
	Committed  bool
	Hash       string
	Normalized string
}

// Decision is the gate's verdict on a proposed message.
type Decision struct {
	Allow  bool
	Reason Reason

	// Hash and Normalized are the computed values for the proposed message.
	// On an allowed commit the caller persists these into the turn state.
	Hash       string
	Normalized string

	// Similarity is set when Reason is ReasonDuplicateSimilar.
	Similarity float64
}

// Option adjusts gate behavior.
type Option func(*options)

type options struct {
	threshold float64
}

// WithThreshold overrides the similarity threshold.
func WithThreshold(threshold float64) Option {
	return func(o *options) {
		o.threshold = threshold
	}
}

// Decide reports whether the proposed message may be committed for the turn
// described by state.
func Decide(state State, proposed string, opts ...Option) Decision {
	o := options{threshold: DefaultSimilarityThreshold}
	for _, opt := range opts {
		opt(&o)
	}

	normalized := Normalize(proposed)
	hash := HashText(normalized)

	if !state.Committed {
		return Decision{
			Allow:      true,
			Hash:       hash,
			Normalized: normalized,
		}
	}

	if hash == state.Hash {
		return Decision{
			Reason:     ReasonDuplicateHash,
			Hash:       hash,
			Normalized: normalized,
		}
	}

	similarity := Jaccard(Tokens(normalized), Tokens(state.Normalized))
	if similarity >= o.threshold {
		return Decision{
			Reason:     ReasonDuplicateSimilar,
			Hash:       hash,
			Normalized: normalized,
			Similarity: similarity,
		}
	}

	return Decision{
		Reason:     ReasonAlreadyCommitted,
		Hash:       hash,
		Normalized: normalized,
		Similarity: similarity,
	}
}

// Normalize canonicalizes message text for comparison: Unicode NFKC,
// lowercase, internal whitespace runs collapsed to a single space, leading
// and trailing punctuation and whitespace stripped.
func Normalize(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(text))
	inSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}

	return strings.TrimFunc(b.String(), func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
}

// HashText returns the hex-encoded SHA-256 digest of the normalized text.
func HashText(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Tokens extracts the comparison token set: lowercase alphanumeric runs
// longer than two characters, punctuation stripped.
func Tokens(normalized string) map[string]bool {
	tokens := make(map[string]bool)
	var current strings.Builder
	runes := 0
	flush := func() {
		// Length is counted in runes so multibyte scripts are not
		// over-weighted against the threshold.
		if runes > 2 {
			tokens[current.String()] = true
		}
		current.Reset()
		runes = 0
	}
	for _, r := range normalized {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(unicode.ToLower(r))
			runes++
			continue
		}
		flush()
	}
	flush()
	return tokens
}

// Jaccard computes set similarity: |A∩B| / |A∪B|. Two empty sets are
// identical.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	intersection := 0
	for token := range a {
		if b[token] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
