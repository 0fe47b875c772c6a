package vision

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/facegate/internal/biometric"
)

// stubDetector returns fixed detections and records what it was given.
type stubDetector struct {
	detections []Detection
	err        error
	panicMsg   string
	got        *image.RGBA
}

func (d *stubDetector) DetectFaces(img *image.RGBA) ([]Detection, error) {
	if d.panicMsg != "" {
		panic(d.panicMsg)
	}
	d.got = img
	return d.detections, d.err
}

// meanEmbedder derives a tiny embedding from the crop's mean colour so that
// identical crops produce identical signatures.
type meanEmbedder struct {
	calls int
	err   error
}

func (e *meanEmbedder) Embed(face *image.RGBA) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	var r, g, b float32
	n := float32(0)
	for i := 0; i+3 < len(face.Pix); i += 4 {
		r += float32(face.Pix[i])
		g += float32(face.Pix[i+1])
		b += float32(face.Pix[i+2])
		n++
	}
	v := []float32{r / n, g / n, b / n, 1}
	normalize(v)
	return v, nil
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func portrait(t *testing.T) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	return encodePNG(t, img)
}

func oneFace() []Detection {
	return []Detection{{BBox: [4]float32{16, 8, 48, 40}, Confidence: 0.98}}
}

func TestExtractSingleFace(t *testing.T) {
	det := &stubDetector{detections: oneFace()}
	emb := &meanEmbedder{}
	e := NewExtractor(det, emb, 0.1)

	sig, err := e.Extract(portrait(t))
	require.NoError(t, err)
	assert.Len(t, sig, 4)
	assert.Equal(t, 1, emb.calls)
	require.NotNil(t, det.got)
	assert.Equal(t, 64, det.got.Bounds().Dx())
	assert.Equal(t, 48, det.got.Bounds().Dy())
}

func TestExtractIsDeterministic(t *testing.T) {
	e := NewExtractor(&stubDetector{detections: oneFace()}, &meanEmbedder{}, 0.1)
	data := portrait(t)

	first, err := e.Extract(data)
	require.NoError(t, err)
	second, err := e.Extract(data)
	require.NoError(t, err)
	d, err := biometric.Distance(first, second)
	require.NoError(t, err)
	assert.Zero(t, d, "repeat extraction distance")
}

func TestExtractFaceCountClassification(t *testing.T) {
	tests := []struct {
		name       string
		detections []Detection
		want       error
	}{
		{"no face", nil, biometric.ErrNoFaceDetected},
		{"two faces", []Detection{
			{BBox: [4]float32{0, 0, 20, 20}, Confidence: 0.9},
			{BBox: [4]float32{30, 10, 60, 40}, Confidence: 0.8},
		}, biometric.ErrMultipleFacesDetected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := &meanEmbedder{}
			e := NewExtractor(&stubDetector{detections: tt.detections}, emb, 0.1)
			sig, err := e.Extract(portrait(t))
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, sig, "signature returned alongside error")
			assert.Zero(t, emb.calls, "embedder must not run when face count is wrong")
		})
	}
}

func TestExtractProcessingErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		det  *stubDetector
		emb  *meanEmbedder
	}{
		{"empty bytes", nil, &stubDetector{detections: oneFace()}, &meanEmbedder{}},
		{"not an image", []byte("definitely not a jpeg"), &stubDetector{detections: oneFace()}, &meanEmbedder{}},
		{"truncated png", portrait(t)[:40], &stubDetector{detections: oneFace()}, &meanEmbedder{}},
		{"detector error", portrait(t), &stubDetector{err: errors.New("session lost")}, &meanEmbedder{}},
		{"detector panic", portrait(t), &stubDetector{panicMsg: "index out of range"}, &meanEmbedder{}},
		{"embedder error", portrait(t), &stubDetector{detections: oneFace()}, &meanEmbedder{err: errors.New("boom")}},
		{"box outside image", portrait(t), &stubDetector{detections: []Detection{{BBox: [4]float32{100, 100, 120, 120}}}}, &meanEmbedder{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(tt.det, tt.emb, 0.1)
			_, err := e.Extract(tt.data)
			assert.ErrorIs(t, err, biometric.ErrProcessing)
		})
	}
}

func TestExtractNormalisesGrayscaleToRGB(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range gray.Pix {
		gray.Pix[i] = 200
	}
	det := &stubDetector{detections: []Detection{{BBox: [4]float32{4, 4, 28, 28}, Confidence: 0.9}}}
	e := NewExtractor(det, &meanEmbedder{}, 0)

	_, err := e.Extract(encodePNG(t, gray))
	require.NoError(t, err)
	assert.Equal(t, []uint8{200, 200, 200, 0xff}, det.got.Pix[:4])
}

func TestDecodeRGBDropsAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, A: 0})
	img.Set(1, 1, color.NRGBA{G: 255, A: 255})

	rgb, format, err := decodeRGB(encodePNG(t, img))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	for i := 3; i < len(rgb.Pix); i += 4 {
		require.Equal(t, uint8(0xff), rgb.Pix[i], "pixel %d alpha", i/4)
	}
	assert.Equal(t, uint8(255), rgb.RGBAAt(1, 1).G, "opaque pixel changed")
}

func TestCropFaceAddsMarginWithinBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	crop := cropFace(img, Detection{BBox: [4]float32{10, 10, 50, 50}}, 0.1)
	require.NotNil(t, crop)
	assert.Equal(t, 48, crop.Bounds().Dx())
	assert.Equal(t, 48, crop.Bounds().Dy())

	edge := cropFace(img, Detection{BBox: [4]float32{0, 0, 100, 100}}, 0.2)
	require.NotNil(t, edge)
	assert.Equal(t, 100, edge.Bounds().Dx(), "edge crop is clamped")
	assert.Equal(t, 100, edge.Bounds().Dy(), "edge crop is clamped")

	assert.Nil(t, cropFace(img, Detection{BBox: [4]float32{5, 5, 5, 30}}, 0.1), "zero-width box should not crop")
}

func TestToCHWLayout(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	img.SetRGBA(1, 0, color.RGBA{R: 40, G: 50, B: 60, A: 255})

	assert.Equal(t, []float32{10, 40, 20, 50, 30, 60}, toCHW(img, 2, 1, 0, 1))
	assert.Len(t, toCHW(img, 4, 4, 127.5, 128), 48, "resized tensor length")
}
