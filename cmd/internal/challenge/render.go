package challenge

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	mrand "math/rand/v2"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Artifact geometry. The glyph face is tiny (7x13), so glyphs are rendered
// small and scaled up before rotation.
const (
	artifactWidth  = 360
	artifactHeight = 132

	glyphScale    = 6
	glyphMaxAngle = 15 // degrees, either direction

	backgroundLines = 8
	noisePoints     = 500
	overstrikeLines = 2
)

// renderArtifact draws prompt into an obfuscated PNG: light background
// lines, point noise, per-glyph rotation and jitter, and a couple of light
// overstrike lines. All randomness comes from rng so artifacts are
// reproducible under a fixed seed.
func renderArtifact(rng *mrand.Rand, prompt string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, artifactWidth, artifactHeight))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	for i := 0; i < backgroundLines; i++ {
		c := color.RGBA{
			R: uint8(160 + rng.IntN(40)),
			G: uint8(160 + rng.IntN(40)),
			B: uint8(160 + rng.IntN(40)),
			A: 255,
		}
		drawLine(img,
			rng.IntN(artifactWidth), rng.IntN(artifactHeight),
			rng.IntN(artifactWidth), rng.IntN(artifactHeight),
			c)
	}

	for i := 0; i < noisePoints; i++ {
		img.SetRGBA(rng.IntN(artifactWidth), rng.IntN(artifactHeight), color.RGBA{
			R: uint8(rng.IntN(256)),
			G: uint8(rng.IntN(256)),
			B: uint8(rng.IntN(256)),
			A: 255,
		})
	}

	runes := []rune(prompt)
	if len(runes) > 0 {
		spacing := artifactWidth / (len(runes) + 2)
		x := spacing
		for _, r := range runes {
			angle := float64(rng.IntN(2*glyphMaxAngle+1)-glyphMaxAngle) * math.Pi / 180
			ink := color.RGBA{
				R: uint8(rng.IntN(60)),
				G: uint8(rng.IntN(60)),
				B: uint8(rng.IntN(60)),
				A: 255,
			}

			glyph := renderGlyph(r, ink)
			rotated := rotateImage(glyph, angle)

			y := artifactHeight/6 + rng.IntN(artifactHeight/6)
			pasteOver(img, rotated, x, y)

			x += spacing + rng.IntN(11) - 5
		}
	}

	for i := 0; i < overstrikeLines; i++ {
		c := color.RGBA{
			R: uint8(200 + rng.IntN(20)),
			G: uint8(200 + rng.IntN(20)),
			B: uint8(200 + rng.IntN(20)),
			A: 255,
		}
		startY := artifactHeight/3 + rng.IntN(artifactHeight/3)
		endY := artifactHeight/3 + rng.IntN(artifactHeight/3)
		drawLine(img, 0, startY, artifactWidth-1, endY, c)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderGlyph rasterizes one rune at glyphScale over a transparent
// background. The face covers printable ASCII, so the multiplication sign
// falls back to an x.
func renderGlyph(r rune, ink color.RGBA) *image.RGBA {
	if r == '×' {
		r = 'x'
	}

	face := basicfont.Face7x13
	small := image.NewRGBA(image.Rect(0, 0, face.Advance+2, face.Height+2))

	d := font.Drawer{
		Dst:  small,
		Src:  image.NewUniform(ink),
		Face: face,
		Dot:  fixed.P(1, face.Ascent+1),
	}
	d.DrawString(string(r))

	sb := small.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, sb.Dx()*glyphScale, sb.Dy()*glyphScale))
	for y := 0; y < out.Bounds().Dy(); y++ {
		for x := 0; x < out.Bounds().Dx(); x++ {
			out.Set(x, y, small.At(sb.Min.X+x/glyphScale, sb.Min.Y+y/glyphScale))
		}
	}
	return out
}

// rotateImage rotates src around its center by angle radians using inverse
// nearest-neighbor sampling, expanding the bounds to fit.
func rotateImage(src *image.RGBA, angle float64) *image.RGBA {
	sb := src.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())

	sin, cos := math.Sin(angle), math.Cos(angle)
	absSin, absCos := math.Abs(sin), math.Abs(cos)

	dw := int(math.Ceil(sw*absCos + sh*absSin))
	dh := int(math.Ceil(sw*absSin + sh*absCos))

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))

	scx, scy := sw/2, sh/2
	dcx, dcy := float64(dw)/2, float64(dh)/2

	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			// Map destination back into source space.
			dx, dy := float64(x)-dcx, float64(y)-dcy
			sx := dx*cos + dy*sin + scx
			sy := -dx*sin + dy*cos + scy

			ix, iy := int(sx), int(sy)
			if ix < 0 || iy < 0 || ix >= sb.Dx() || iy >= sb.Dy() {
				continue
			}
			dst.SetRGBA(x, y, src.RGBAAt(sb.Min.X+ix, sb.Min.Y+iy))
		}
	}
	return dst
}

// pasteOver alpha-composites src onto dst at (x, y).
func pasteOver(dst *image.RGBA, src *image.RGBA, x, y int) {
	r := src.Bounds().Add(image.Pt(x, y))
	draw.Draw(dst, r, src, src.Bounds().Min, draw.Over)
}

// drawLine draws a 1px line with simple DDA stepping.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx, dy := float64(x1-x0), float64(y1-y0)
	steps := math.Max(math.Abs(dx), math.Abs(dy))
	if steps == 0 {
		img.SetRGBA(x0, y0, c)
		return
	}
	for i := 0.0; i <= steps; i++ {
		x := x0 + int(math.Round(dx*i/steps))
		y := y0 + int(math.Round(dy*i/steps))
		if image.Pt(x, y).In(img.Bounds()) {
			img.SetRGBA(x, y, c)
		}
	}
}
