package challenge

import (
	"bytes"
	"image/png"
	mrand "math/rand/v2"
	"strconv"
	"strings"
	"testing"
)

func newSeeded(seed uint64) *Generator {
	return NewGenerator(mrand.New(mrand.NewPCG(seed, seed)))
}

func TestGenerate_RoundTrip(t *testing.T) {
	g := newSeeded(1)

	seen := map[Kind]int{}
	for i := 0; i < 200; i++ {
		ch, err := g.Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		seen[ch.Kind]++

		if !Verify(ch.Answer, ch.Answer) {
			t.Fatalf("round trip failed for kind=%s answer=%q", ch.Kind, ch.Answer)
		}
		if !Verify(ch.Answer, "  "+strings.ToLower(ch.Answer)+" ") {
			t.Fatalf("normalized round trip failed for kind=%s answer=%q", ch.Kind, ch.Answer)
		}
		if Verify(ch.Answer, ch.Answer+"x") {
			t.Fatalf("verify accepted wrong answer for kind=%s", ch.Kind)
		}
		if len(ch.Artifact) == 0 {
			t.Fatalf("empty artifact for kind=%s", ch.Kind)
		}
	}

	for _, k := range []Kind{KindNumeric, KindAlphanumeric, KindArithmetic} {
		if seen[k] == 0 {
			t.Fatalf("kind %s never generated over 200 trials", k)
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := newSeeded(42)
	b := newSeeded(42)

	for i := 0; i < 20; i++ {
		ca, err := a.Generate()
		if err != nil {
			t.Fatalf("generate a: %v", err)
		}
		cb, err := b.Generate()
		if err != nil {
			t.Fatalf("generate b: %v", err)
		}
		if ca.Kind != cb.Kind || ca.Answer != cb.Answer {
			t.Fatalf("trial %d diverged: (%s,%q) vs (%s,%q)", i, ca.Kind, ca.Answer, cb.Kind, cb.Answer)
		}
		if !bytes.Equal(ca.Artifact, cb.Artifact) {
			t.Fatalf("trial %d artifacts diverged", i)
		}
	}
}

func TestGenerate_AnswerShapes(t *testing.T) {
	g := newSeeded(7)

	for i := 0; i < 300; i++ {
		ch, err := g.Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}

		switch ch.Kind {
		case KindNumeric:
			n, err := strconv.Atoi(ch.Answer)
			if err != nil || n < 1 || n > 50 {
				t.Fatalf("numeric answer out of range: %q", ch.Answer)
			}

		case KindAlphanumeric:
			if len(ch.Answer) != 4 {
				t.Fatalf("alphanumeric answer length: %q", ch.Answer)
			}
			for _, r := range ch.Answer {
				if !strings.ContainsRune(Alphabet, r) {
					t.Fatalf("alphanumeric answer uses excluded rune %q in %q", r, ch.Answer)
				}
			}
			if strings.ContainsAny(ch.Answer, "0O1I") {
				t.Fatalf("confusable rune in %q", ch.Answer)
			}

		case KindArithmetic:
			// Subtraction is normalized, so no arithmetic answer is negative.
			n, err := strconv.Atoi(ch.Answer)
			if err != nil || n < 0 {
				t.Fatalf("arithmetic answer invalid: %q", ch.Answer)
			}
		}
	}
}

func TestArtifact_IsPNG(t *testing.T) {
	g := newSeeded(3)

	ch, err := g.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(ch.Artifact))
	if err != nil {
		t.Fatalf("artifact is not a decodable PNG: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != artifactWidth || b.Dy() != artifactHeight {
		t.Fatalf("artifact size: got %dx%d", b.Dx(), b.Dy())
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct{ in, want string }{
		{" ab3 ", "AB3"},
		{"ab3", "AB3"},
		{"17", "17"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Fatalf("Normalize(%q) = %q want %q", c.in, got, c.want)
		}
	}
}
