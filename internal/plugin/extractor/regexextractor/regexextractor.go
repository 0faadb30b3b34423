// Package regexextractor implements the default EntityExtractor using
// regex-based heuristics: capitalized spans (typed OTHER) and a small
// gazetteer of technology keywords (typed TECHNOLOGY), no LLM round-trip
// required.
package regexextractor

import (
	"context"
	"regexp"
	"strings"

	"github.com/corenexus/memory-service/internal/model"
	"github.com/corenexus/memory-service/internal/registry/extractor"
)

func init() {
	extractor.Register(extractor.Plugin{
		Name: "regex",
		Loader: func(_ context.Context) (extractor.Extractor, error) {
			return &Extractor{}, nil
		},
	})
}

var (
	// properNounRun matches one or more consecutive capitalized words,
	// e.g. "San Francisco" or "Jane Doe".
	properNounRun = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]*(?:\s+[A-Z][a-zA-Z0-9]*)*\b`)
)

var technologyGazetteer = map[string]bool{
	"go": true, "golang": true, "python": true, "kubernetes": true,
	"docker": true, "postgres": true, "postgresql": true, "redis": true,
	"graphql": true, "react": true, "typescript": true, "rust": true,
	"qdrant": true, "pinecone": true, "chroma": true, "grpc": true,
}

// Extractor implements extractor.Extractor over plain regex heuristics.
type Extractor struct{}

// ExtractMentions finds capitalized spans and gazetteer hits in text,
// tagging technology keywords as TECHNOLOGY and other capitalized runs as
// OTHER. Neither this extractor nor normalization assigns person or
// organization types.
func (e *Extractor) ExtractMentions(_ context.Context, text string) ([]extractor.Mention, error) {
	var mentions []extractor.Mention

	for _, loc := range properNounRun.FindAllStringIndex(text, -1) {
		span := text[loc[0]:loc[1]]
		if len(strings.Fields(span)) > 4 {
			continue // unlikely to be a single entity
		}
		mentions = append(mentions, extractor.Mention{
			EntityType: model.EntityOther,
			Text:       span,
			CharStart:  loc[0],
			CharEnd:    loc[1],
			Confidence: 0.55,
		})
	}

	lower := strings.ToLower(text)
	for term := range technologyGazetteer {
		start := 0
		for {
			idx := strings.Index(lower[start:], term)
			if idx < 0 {
				break
			}
			absStart := start + idx
			absEnd := absStart + len(term)
			if wordBoundary(lower, absStart, absEnd) {
				mentions = append(mentions, extractor.Mention{
					EntityType: model.EntityTechnology,
					Text:       text[absStart:absEnd],
					CharStart:  absStart,
					CharEnd:    absEnd,
					Confidence: 0.8,
				})
			}
			start = absEnd
		}
	}

	return mentions, nil
}

func wordBoundary(s string, start, end int) bool {
	if start > 0 && isWordChar(s[start-1]) {
		return false
	}
	if end < len(s) && isWordChar(s[end]) {
		return false
	}
	return true
}

func isWordChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

var _ extractor.Extractor = (*Extractor)(nil)
