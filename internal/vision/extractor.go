package vision

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facegate/internal/biometric"
	"github.com/your-org/facegate/internal/config"
	"github.com/your-org/facegate/internal/observability"
)

// FaceDetector finds face regions in an RGB image.
type FaceDetector interface {
	DetectFaces(img *image.RGBA) ([]Detection, error)
}

// FaceEmbedder maps a face crop to an embedding.
type FaceEmbedder interface {
	Embed(face *image.RGBA) ([]float32, error)
}

// Extractor converts encoded images into face signatures. Safe for
// concurrent use when its detector and embedder are.
type Extractor struct {
	detector FaceDetector
	embedder FaceEmbedder
	margin   float64
	closers  []func()
}

func NewExtractor(detector FaceDetector, embedder FaceEmbedder, margin float64) *Extractor {
	return &Extractor{detector: detector, embedder: embedder, margin: margin}
}

// Open loads the ONNX detector and embedder named in cfg. InitRuntime must
// have been called.
func Open(cfg config.VisionConfig) (*Extractor, error) {
	detPath := filepath.Join(cfg.ModelsDir, cfg.DetectorModel)
	embPath := filepath.Join(cfg.ModelsDir, cfg.EmbedderModel)

	slog.Info("loading detection model", "path", detPath)
	det, err := NewDetector(detPath, float32(cfg.DetectionThreshold), cfg.DetectorInputSize, nil)
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	slog.Info("loading embedding model", "path", embPath, "dim", cfg.SignatureDim)
	emb, err := NewEmbedder(embPath, EmbedderOptions{
		InputSize:  cfg.EmbedderInputSize,
		InputName:  cfg.EmbedderInputName,
		OutputName: cfg.EmbedderOutputName,
		Dim:        cfg.SignatureDim,
	}, nil)
	if err != nil {
		det.Close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	e := NewExtractor(det, emb, cfg.CropMargin)
	e.closers = []func(){det.Close, emb.Close}
	return e, nil
}

// Extract returns the signature of the single face in data. Every failure is
// a *biometric.Error: no_face_detected, multiple_faces_detected or
// processing_error.
func (e *Extractor) Extract(data []byte) (sig biometric.Signature, err error) {
	defer func() {
		if r := recover(); r != nil {
			sig = nil
			err = biometric.Errorf(biometric.ReasonProcessing, "extraction panicked: %v", r)
		}
		if err != nil {
			observability.ExtractionFailures.WithLabelValues(string(biometric.ReasonOf(err))).Inc()
		}
	}()

	start := time.Now()
	img, _, err := decodeRGB(data)
	if err != nil {
		return nil, biometric.Wrap(biometric.ReasonProcessing, "could not read image", err)
	}
	observability.InferenceDuration.WithLabelValues("decode").Observe(time.Since(start).Seconds())

	start = time.Now()
	detections, err := e.detector.DetectFaces(img)
	if err != nil {
		return nil, biometric.Wrap(biometric.ReasonProcessing, "face detection failed", err)
	}
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())

	switch len(detections) {
	case 0:
		return nil, biometric.ErrNoFaceDetected
	case 1:
	default:
		return nil, biometric.Errorf(biometric.ReasonMultipleFaces, "%d faces detected", len(detections))
	}

	face := cropFace(img, detections[0], e.margin)
	if face == nil {
		return nil, biometric.Errorf(biometric.ReasonProcessing, "detected face region is empty")
	}

	start = time.Now()
	embedding, err := e.embedder.Embed(face)
	if err != nil {
		return nil, biometric.Wrap(biometric.ReasonProcessing, "embedding failed", err)
	}
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())

	if len(embedding) == 0 {
		return nil, biometric.Errorf(biometric.ReasonProcessing, "embedder returned an empty vector")
	}
	return biometric.FromFloat32(embedding), nil
}

// Close releases model sessions opened by Open.
func (e *Extractor) Close() {
	for _, c := range e.closers {
		c()
	}
}

// InitRuntime loads the ONNX Runtime shared library. libPath may be empty.
func InitRuntime(libPath string) error {
	if libPath == "" {
		libPath = defaultONNXLibPath()
	}
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("init onnx runtime: %w", err)
	}
	return nil
}

func DestroyRuntime() {
	_ = ort.DestroyEnvironment()
}

func defaultONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
