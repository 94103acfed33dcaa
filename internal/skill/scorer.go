package skill

import (
	"context"
	"regexp"
	"strings"
)

// Scorer rates the similarity of an utterance against a skill's semantic
// text, returning a score in [0,1]. Scorers are best-effort collaborators:
// the router treats any error as "semantic pass unavailable" and falls
// back to keyword matching alone.
type Scorer interface {
	Score(ctx context.Context, utterance, description string) (float64, error)
}

// LexicalScorer is a dependency-free scorer based on token overlap.
// Chinese text is tokenized into unigrams and bigrams so utterances like
// "按地区分组" overlap with description tokens without a segmenter.
type LexicalScorer struct{}

// NewLexicalScorer returns the token-overlap scorer.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

var nonWord = regexp.MustCompile(`[^\w\s\x{4e00}-\x{9fff}]`)
var cjkWord = regexp.MustCompile(`^[\x{4e00}-\x{9fff}]+$`)

// Score combines Jaccard similarity with coverage of the description's
// vocabulary. The weighting favors utterances that hit description terms
// even when the utterance carries extra noise words.
func (s *LexicalScorer) Score(_ context.Context, utterance, description string) (float64, error) {
	descWords := tokenSet(description)
	if len(descWords) == 0 {
		return 0, nil
	}
	queryWords := tokenSet(utterance)
	if len(queryWords) == 0 {
		return 0, nil
	}

	intersection := 0
	for w := range queryWords {
		if descWords[w] {
			intersection++
		}
	}
	union := len(queryWords) + len(descWords) - intersection

	jaccard := float64(intersection) / float64(union)
	coverage := float64(intersection) / float64(len(descWords))

	return 0.6*jaccard + 0.4*coverage, nil
}

func tokenSet(text string) map[string]bool {
	cleaned := nonWord.ReplaceAllString(strings.ToLower(text), " ")
	set := make(map[string]bool)
	for _, word := range strings.Fields(cleaned) {
		if cjkWord.MatchString(word) {
			runes := []rune(word)
			for i := range runes {
				set[string(runes[i])] = true
				if i < len(runes)-1 {
					set[string(runes[i:i+2])] = true
				}
			}
		} else {
			set[word] = true
		}
	}
	return set
}
