package vector

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder generates vector embeddings for text. Implementations can use
// different providers behind the same interface; batch operations are the
// primary method, following OpenAI API patterns.
type Embedder interface {
	// Generate creates embeddings for the given texts, one vector per text.
	Generate(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of produced embeddings.
	Dimensions() int

	// Model returns the model identifier, for logging and stored metadata.
	Model() string

	// Close releases any resources held by the embedder.
	Close() error
}

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIEmbedder builds an embedder for the given model. An empty model
// defaults to text-embedding-3-small.
func NewOpenAIEmbedder(apiKey, model string, dimensions int) *OpenAIEmbedder {
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &OpenAIEmbedder{
		client:     openai.NewClient(apiKey),
		model:      model,
		dimensions: dimensions,
	}
}

// Generate implements Embedder.
func (e *OpenAIEmbedder) Generate(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// Dimensions implements Embedder.
func (e *OpenAIEmbedder) Dimensions() int { return e.dimensions }

// Model implements Embedder.
func (e *OpenAIEmbedder) Model() string { return e.model }

// Close implements Embedder. No-op for the HTTP provider.
func (e *OpenAIEmbedder) Close() error { return nil }

// HashEmbedder produces deterministic embeddings from token hashes. It has
// no semantic power but keeps the vector adapter functional in deployments
// without an embedding provider, and gives tests stable vectors: identical
// texts embed identically, overlapping texts land near each other.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder builds a hash embedder with the given dimensionality.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Generate implements Embedder.
func (e *HashEmbedder) Generate(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = e.embed(text)
	}
	return vectors, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dimensions]++
	}

	// L2-normalize so cosine similarity behaves
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		norm := float32(math.Sqrt(sum))
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

// Dimensions implements Embedder.
func (e *HashEmbedder) Dimensions() int { return e.dimensions }

// Model implements Embedder.
func (e *HashEmbedder) Model() string { return "hash-fnv32a" }

// Close implements Embedder.
func (e *HashEmbedder) Close() error { return nil }

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 for mismatched lengths or zero-magnitude inputs.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, magA, magB float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0.0 || magB == 0.0 {
		return 0.0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
