package skill

import (
	"context"
	"fmt"
	"math"
	"sync"

	"google.golang.org/genai"
)

// GenAIScorer scores utterances against skill descriptions with Gemini
// embeddings and cosine similarity. Skill descriptions are static for the
// process lifetime, so their embeddings are computed once and cached.
type GenAIScorer struct {
	client *genai.Client
	model  string

	mu        sync.Mutex
	descCache map[string][]float32
}

// NewGenAIScorer creates a Gemini-backed scorer.
func NewGenAIScorer(apiKey, model string) (*GenAIScorer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAIScorer{
		client:    client,
		model:     model,
		descCache: make(map[string][]float32),
	}, nil
}

// Score embeds both texts and returns their cosine similarity mapped to
// [0,1]. Any API failure propagates; the router degrades to keyword-only
// matching on error.
func (s *GenAIScorer) Score(ctx context.Context, utterance, description string) (float64, error) {
	qv, err := s.embed(ctx, utterance)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	dv, ok := s.descCache[description]
	s.mu.Unlock()
	if !ok {
		dv, err = s.embed(ctx, description)
		if err != nil {
			return 0, err
		}
		s.mu.Lock()
		s.descCache[description] = dv
		s.mu.Unlock()
	}

	cos := cosine(qv, dv)
	// Cosine lands in [-1,1]; skill thresholds expect [0,1].
	return (cos + 1) / 2, nil
}

func (s *GenAIScorer) embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := s.client.Models.EmbedContent(ctx,
		s.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: "SEMANTIC_SIMILARITY",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
