package vision

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// decodeRGB decodes JPEG, PNG, GIF or WebP bytes into an opaque 8-bit RGB
// image. Transparent pixels end up composited over black.
func decodeRGB(data []byte) (*image.RGBA, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("empty image")
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, format, fmt.Errorf("image has no pixels")
	}

	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst, format, nil
}

// cropFace cuts the detected region, grown by margin on every side and
// clamped to the image. Returns nil for degenerate boxes.
func cropFace(img *image.RGBA, det Detection, margin float64) *image.RGBA {
	r := det.Rect().Intersect(img.Bounds())
	if r.Empty() {
		return nil
	}
	padW := int(float64(r.Dx()) * margin)
	padH := int(float64(r.Dy()) * margin)
	r = image.Rect(r.Min.X-padW, r.Min.Y-padH, r.Max.X+padW, r.Max.Y+padH).Intersect(img.Bounds())

	crop := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(crop, crop.Bounds(), img, r.Min, draw.Src)
	return crop
}

// toCHW resizes img to w x h and lays it out as planar float32 RGB:
//
//	value = (pixel - mean) / std
func toCHW(img *image.RGBA, w, h int, mean, std float32) []float32 {
	resized := img
	if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
		resized = image.NewRGBA(image.Rect(0, 0, w, h))
		draw.BiLinear.Scale(resized, resized.Bounds(), img, b, draw.Src, nil)
	}

	plane := w * h
	data := make([]float32, 3*plane)
	for y := 0; y < h; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < w; x++ {
			p := row[x*4:]
			idx := y*w + x
			data[idx] = (float32(p[0]) - mean) / std
			data[plane+idx] = (float32(p[1]) - mean) / std
			data[2*plane+idx] = (float32(p[2]) - mean) / std
		}
	}
	return data
}
