// Package challenge generates human-verification puzzles and their
// obfuscated image artifacts.
//
// Generation is pure: given a seeded random source the same challenge and
// artifact are produced, which keeps tests deterministic.
package challenge

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	mrand "math/rand/v2"
	"strings"
)

// Kind identifies the puzzle family.
type Kind string

const (
	// KindNumeric is a random integer the user must type back.
	KindNumeric Kind = "numeric"
	// KindAlphanumeric is a short random string over a disambiguated
	// alphabet.
	KindAlphanumeric Kind = "alphanumeric"
	// KindArithmetic is a small arithmetic expression to evaluate.
	KindArithmetic Kind = "arithmetic"
)

// Alphabet excludes visually confusable characters (0/O, 1/I).
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const alphanumericLength = 4

// Challenge is one generated puzzle. Immutable after creation; never
// persisted beyond the session record (only the answer is stored).
type Challenge struct {
	Kind     Kind
	Answer   string
	Artifact []byte
}

// Generator produces challenges from an injected random source.
type Generator struct {
	rng *mrand.Rand
}

// NewGenerator constructs a Generator. A nil rng seeds one from
// crypto-grade entropy.
func NewGenerator(rng *mrand.Rand) *Generator {
	if rng == nil {
		var seed [16]byte
		if _, err := rand.Read(seed[:]); err == nil {
			rng = mrand.New(mrand.NewPCG(
				binary.LittleEndian.Uint64(seed[:8]),
				binary.LittleEndian.Uint64(seed[8:]),
			))
		} else {
			// rand.Read failing is effectively fatal elsewhere; a fixed
			// fallback seed keeps Generate total.
			rng = mrand.New(mrand.NewPCG(1, 2))
		}
	}
	return &Generator{rng: rng}
}

// Generate produces a challenge of a uniformly chosen kind and renders its
// artifact.
func (g *Generator) Generate() (Challenge, error) {
	kind := [...]Kind{KindNumeric, KindAlphanumeric, KindArithmetic}[g.rng.IntN(3)]

	answer, prompt := g.compose(kind)

	artifact, err := renderArtifact(g.rng, prompt)
	if err != nil {
		return Challenge{}, fmt.Errorf("render artifact: %w", err)
	}

	return Challenge{Kind: kind, Answer: answer, Artifact: artifact}, nil
}

// compose picks the answer and the text drawn on the artifact.
func (g *Generator) compose(kind Kind) (answer, prompt string) {
	switch kind {
	case KindNumeric:
		n := 1 + g.rng.IntN(50)
		answer = fmt.Sprintf("%d", n)
		return answer, answer

	case KindAlphanumeric:
		var b strings.Builder
		for i := 0; i < alphanumericLength; i++ {
			b.WriteByte(Alphabet[g.rng.IntN(len(Alphabet))])
		}
		answer = b.String()
		return answer, answer

	default: // KindArithmetic
		op := g.rng.IntN(3)
		switch op {
		case 0:
			a := 1 + g.rng.IntN(20)
			b := 1 + g.rng.IntN(10)
			return fmt.Sprintf("%d", a+b), fmt.Sprintf("%d+%d", a, b)
		case 1:
			a := 1 + g.rng.IntN(20)
			b := 1 + g.rng.IntN(10)
			// Subtraction is normalized so the result is non-negative.
			if a < b {
				a, b = b, a
			}
			return fmt.Sprintf("%d", a-b), fmt.Sprintf("%d-%d", a, b)
		default:
			a := 1 + g.rng.IntN(10)
			b := 1 + g.rng.IntN(9)
			return fmt.Sprintf("%d", a*b), fmt.Sprintf("%d×%d", a, b)
		}
	}
}

// Normalize canonicalizes a submitted answer for comparison: trimmed and
// upper-cased.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Verify reports whether submitted matches the expected answer under
// Normalize.
func Verify(expected, submitted string) bool {
	return Normalize(expected) == Normalize(submitted)
}
