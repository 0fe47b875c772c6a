package vision

import (
	"fmt"
	"image"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

type EmbedderOptions struct {
	InputSize  int
	InputName  string
	OutputName string
	Dim        int
}

// Embedder turns an aligned face crop into an embedding vector.
type Embedder struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputSize    int
	dim          int
}

func NewEmbedder(modelPath string, o EmbedderOptions, opts *ort.SessionOptions) (*Embedder, error) {
	if o.InputSize <= 0 || o.Dim <= 0 {
		return nil, fmt.Errorf("invalid embedder options %+v", o)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(o.InputSize), int64(o.InputSize)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(o.Dim)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{o.InputName},
		[]string{o.OutputName},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &Embedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputSize:    o.InputSize,
		dim:          o.Dim,
	}, nil
}

// Embed returns the L2-normalised embedding of a face crop.
func (e *Embedder) Embed(face *image.RGBA) ([]float32, error) {
	input := toCHW(face, e.inputSize, e.inputSize, 127.5, 127.5)

	e.mu.Lock()
	defer e.mu.Unlock()

	copy(e.inputTensor.GetData(), input)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	embedding := make([]float32, e.dim)
	copy(embedding, e.outputTensor.GetData())
	normalize(embedding)
	return embedding, nil
}

func (e *Embedder) Dim() int {
	return e.dim
}

func (e *Embedder) Close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

// normalize performs L2 normalisation in place. Zero vectors are left as is.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}
