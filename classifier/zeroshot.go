package classifier

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// logitScale is CLIP's learned temperature, fixed at 100 for ViT-B/32.
const logitScale = 100.0

// Result is the top-1 label of one classification.
type Result struct {
	Label      string
	Confidence float64
	// Scores holds the softmax probability of every label, indexed like Labels.
	Scores []float64
}

// Classifier assigns one of Labels to the image stored at path.
type Classifier interface {
	Classify(ctx context.Context, path string) (Result, error)
}

// ZeroShot compares an image embedding against one text embedding per label.
// Label embeddings are computed once and reused.
type ZeroShot struct {
	embedder Embedder
	prompts  []string

	mu       sync.Mutex
	textVecs [][]float64
}

// NewZeroShot builds a ZeroShot classifier over Labels. A promptTemplate
// without %s falls back to DefaultPromptTemplate.
func NewZeroShot(embedder Embedder, promptTemplate string) *ZeroShot {
	return &ZeroShot{embedder: embedder, prompts: Prompts(promptTemplate)}
}

// Classify preprocesses the image at path and returns the label whose prompt
// embedding is closest, with softmax scores over all labels.
func (z *ZeroShot) Classify(ctx context.Context, path string) (Result, error) {
	img, err := Preprocess(path)
	if err != nil {
		return Result{}, err
	}

	imageVec, err := z.embedder.EmbedImage(ctx, img)
	if err != nil {
		return Result{}, fmt.Errorf("embed image: %w", err)
	}
	textVecs, err := z.labelEmbeddings(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("embed labels: %w", err)
	}

	scores, err := Score(imageVec, textVecs)
	if err != nil {
		return Result{}, err
	}
	best := floats.MaxIdx(scores)
	return Result{Label: Labels[best], Confidence: scores[best], Scores: scores}, nil
}

func (z *ZeroShot) labelEmbeddings(ctx context.Context) ([][]float64, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.textVecs != nil {
		return z.textVecs, nil
	}
	vecs, err := z.embedder.EmbedTexts(ctx, z.prompts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(z.prompts) {
		return nil, fmt.Errorf("got %d label embeddings, want %d", len(vecs), len(z.prompts))
	}
	normed := make([][]float64, len(vecs))
	for i, v := range vecs {
		if normed[i], err = normalize(v); err != nil {
			return nil, fmt.Errorf("label %q: %w", Labels[i], err)
		}
	}
	z.textVecs = normed
	return normed, nil
}

// Score returns softmax(100 * cos(image, text_i)) over all texts.
func Score(image []float64, texts [][]float64) ([]float64, error) {
	img, err := normalize(image)
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("no label embeddings")
	}
	logits := make([]float64, len(texts))
	for i, t := range texts {
		if len(t) != len(img) {
			return nil, fmt.Errorf("%w: image %d, label %d has %d", ErrDimensionMismatch, len(img), i, len(t))
		}
		tn, err := normalize(t)
		if err != nil {
			return nil, fmt.Errorf("label %d: %w", i, err)
		}
		logits[i] = logitScale * floats.Dot(img, tn)
	}
	return Softmax(logits), nil
}

// Softmax is numerically stable via log-sum-exp.
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	lse := floats.LogSumExp(logits)
	for i, l := range logits {
		out[i] = math.Exp(l - lse)
	}
	return out
}

func normalize(v []float64) ([]float64, error) {
	if len(v) == 0 {
		return nil, ErrEmptyEmbedding
	}
	n := floats.Norm(v, 2)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, ErrEmptyEmbedding
	}
	out := make([]float64, len(v))
	floats.ScaleTo(out, 1/n, v)
	return out, nil
}
