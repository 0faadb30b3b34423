package graph

import (
	"strings"
	"unicode"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/corenexus/memory-service/internal/model"
)

// normalizer canonicalizes raw entity mention text into a stable key used
// for node dedup: casefold, strip punctuation, collapse whitespace, and
// apply light type-specific canonicalization. Results are cached in a
// bounded LRU — canonicalization is pure given (type, raw text), a genuine
// Get/Set-shaped cache unlike the ADM rolling sample, which needs
// enumeration ristretto can't give.
type normalizer struct {
	cache *ristretto.Cache[string, string]
}

func newNormalizer(capacity int64) (*normalizer, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &normalizer{cache: cache}, nil
}

func (n *normalizer) normalize(entityType model.EntityType, raw string) string {
	key := string(entityType) + "\x00" + raw
	if v, ok := n.cache.Get(key); ok {
		return v
	}
	norm := normalize(entityType, raw)
	n.cache.Set(key, norm, 1)
	return norm
}

func normalize(entityType model.EntityType, raw string) string {
	var b strings.Builder
	lastWasSpace := true
	for _, r := range strings.ToLower(raw) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastWasSpace = false
		case unicode.IsSpace(r) || unicode.IsPunct(r):
			if !lastWasSpace {
				b.WriteRune(' ')
				lastWasSpace = true
			}
		}
	}
	canon := strings.TrimSpace(b.String())

	switch entityType {
	case model.EntityOrganization:
		canon = strings.TrimSuffix(canon, " inc")
		canon = strings.TrimSuffix(canon, " llc")
		canon = strings.TrimSuffix(canon, " corp")
	case model.EntityTechnology:
		canon = strings.ReplaceAll(canon, " ", "")
	}
	return canon
}
