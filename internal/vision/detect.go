package vision

import (
	"fmt"
	"image"
	"math"
	"sort"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// Detection is one face region in source image pixels.
type Detection struct {
	BBox       [4]float32 // x1, y1, x2, y2
	Confidence float32
	Landmarks  [5][2]float32
}

func (d Detection) Rect() image.Rectangle {
	return image.Rect(int(d.BBox[0]), int(d.BBox[1]), int(d.BBox[2]), int(d.BBox[3]))
}

// Detector runs RetinaFace (det_10g) face detection using ONNX Runtime.
// The session owns shared tensors, so runs are serialised.
type Detector struct {
	mu            sync.Mutex
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	inputSize     int
}

var strides = []int{8, 16, 32}

const (
	anchorsPerStride = 2
	nmsThreshold     = 0.4
)

// det_10g output names: scores, then bboxes, then landmarks, each for
// strides 8, 16, 32.
var detectorOutputs = [9]string{"448", "471", "494", "451", "474", "497", "454", "477", "500"}

// NewDetector loads the detection model. inputSize must be a multiple of 32.
// opts may be nil.
func NewDetector(modelPath string, threshold float32, inputSize int, opts *ort.SessionOptions) (*Detector, error) {
	if inputSize <= 0 || inputSize%32 != 0 {
		return nil, fmt.Errorf("detector input size %d is not a positive multiple of 32", inputSize)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputSize), int64(inputSize)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// Anchors per stride: (size/stride)^2 * 2, e.g. 12800/3200/800 at 640.
	widths := [3]int64{1, 4, 10}
	outputTensors := make([]*ort.Tensor[float32], len(detectorOutputs))
	outputValues := make([]ort.Value, len(detectorOutputs))
	for i := range detectorOutputs {
		stride := strides[i%3]
		n := int64((inputSize / stride) * (inputSize / stride) * anchorsPerStride)
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(n, widths[i/3]))
		if err != nil {
			for j := 0; j < i; j++ {
				outputTensors[j].Destroy()
			}
			inputTensor.Destroy()
			return nil, fmt.Errorf("create output tensor %s: %w", detectorOutputs[i], err)
		}
		outputTensors[i] = t
		outputValues[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		detectorOutputs[:],
		[]ort.Value{inputTensor},
		outputValues,
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		for _, t := range outputTensors {
			t.Destroy()
		}
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &Detector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: outputTensors,
		threshold:     threshold,
		inputSize:     inputSize,
	}, nil
}

// DetectFaces finds faces in an RGB image.
func (d *Detector) DetectFaces(img *image.RGBA) ([]Detection, error) {
	b := img.Bounds()
	input := toCHW(img, d.inputSize, d.inputSize, 127.5, 128.0)

	d.mu.Lock()
	defer d.mu.Unlock()

	copy(d.inputTensor.GetData(), input)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}
	return nms(d.parseDetections(b.Dx(), b.Dy()), nmsThreshold), nil
}

// parseDetections decodes anchor-based outputs at strides 8, 16, 32.
func (d *Detector) parseDetections(origW, origH int) []Detection {
	var detections []Detection

	scaleW := float32(origW) / float32(d.inputSize)
	scaleH := float32(origH) / float32(d.inputSize)

	for si, stride := range strides {
		scores := d.outputTensors[si].GetData()
		bboxes := d.outputTensors[si+3].GetData()
		landmarks := d.outputTensors[si+6].GetData()

		fm := d.inputSize / stride
		st := float32(stride)

		idx := 0
		for cy := 0; cy < fm; cy++ {
			for cx := 0; cx < fm; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					if scores[idx] >= d.threshold {
						ax := float32(cx) * st
						ay := float32(cy) * st

						x1 := clampF((ax-bboxes[idx*4+0]*st)*scaleW, 0, float32(origW))
						y1 := clampF((ay-bboxes[idx*4+1]*st)*scaleH, 0, float32(origH))
						x2 := clampF((ax+bboxes[idx*4+2]*st)*scaleW, 0, float32(origW))
						y2 := clampF((ay+bboxes[idx*4+3]*st)*scaleH, 0, float32(origH))

						var lm [5][2]float32
						for li := 0; li < 5; li++ {
							lm[li][0] = (ax + landmarks[idx*10+li*2]*st) * scaleW
							lm[li][1] = (ay + landmarks[idx*10+li*2+1]*st) * scaleH
						}

						detections = append(detections, Detection{
							BBox:       [4]float32{x1, y1, x2, y2},
							Confidence: scores[idx],
							Landmarks:  lm,
						})
					}
					idx++
				}
			}
		}
	}

	return detections
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// nms performs non-maximum suppression, highest confidence first.
func nms(detections []Detection, iouThreshold float32) []Detection {
	if len(detections) == 0 {
		return detections
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	keep := make([]bool, len(detections))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(detections); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(detections); j++ {
			if keep[j] && iou(detections[i].BBox, detections[j].BBox) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var result []Detection
	for i, d := range detections {
		if keep[i] {
			result = append(result, d)
		}
	}
	return result
}

func iou(a, b [4]float32) float32 {
	x1 := float32(math.Max(float64(a[0]), float64(b[0])))
	y1 := float32(math.Max(float64(a[1]), float64(b[1])))
	x2 := float32(math.Min(float64(a[2]), float64(b[2])))
	y2 := float32(math.Min(float64(a[3]), float64(b[3])))

	intersection := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))

	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - intersection

	if union <= 0 {
		return 0
	}
	return intersection / union
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
