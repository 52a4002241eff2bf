package search

import (
	"sort"
	"strings"

	"github.com/blakazulu/search-mcp/internal/chunk"
	"github.com/blakazulu/search-mcp/internal/embed"
	"github.com/blakazulu/search-mcp/internal/store"
)

// Boost ranges. Every factor defaults to 1.0 when the metadata it
// needs is missing, so sparse chunks are never penalized for what the
// chunker could not recover.
const (
	chunkTypeBoostMin = 0.92
	chunkTypeBoostMax = 1.3
	nameMatchBoostMax = 1.4
	pathBoostMax      = 1.2
	tagBoostMax       = 1.3
	docstringBoost    = 1.05
	complexityPenalty = 0.95
	oversizeThreshold = 6000 // chars before the complexity penalty applies
)

// intentKindBoosts maps a detected intent to the chunk kinds it favors.
var intentKindBoosts = map[IntentCategory]map[chunk.Kind]float64{
	IntentFunction: {
		chunk.KindFunction: chunkTypeBoostMax,
		chunk.KindMethod:   1.25,
		chunk.KindClass:    1.0,
		chunk.KindSection:  chunkTypeBoostMin,
	},
	IntentClass: {
		chunk.KindClass:     chunkTypeBoostMax,
		chunk.KindStruct:    1.25,
		chunk.KindInterface: 1.25,
		chunk.KindEnum:      1.15,
		chunk.KindFunction:  0.95,
	},
	IntentError: {
		chunk.KindFunction: 1.15,
		chunk.KindMethod:   1.1,
	},
	IntentTest: {
		chunk.KindFunction: 1.1,
	},
	IntentConfig: {
		chunk.KindModule:  1.15,
		chunk.KindSection: 1.1,
	},
}

// intentPathHints boosts results whose path suggests the intent domain.
var intentPathHints = map[IntentCategory][]string{
	IntentAuth:     {"auth", "login", "session", "token"},
	IntentDatabase: {"db", "database", "store", "sql", "repository", "dao"},
	IntentAPI:      {"api", "handler", "route", "controller", "endpoint"},
	IntentTest:     {"test", "spec", "_test"},
	IntentConfig:   {"config", "settings", "env"},
	IntentError:    {"error", "errors"},
}

// Ranker applies the multi-factor boosts after fusion.
type Ranker struct{}

// NewRanker creates a ranker.
func NewRanker() *Ranker {
	return &Ranker{}
}

// Rank multiplies each fused score by the boost factors and re-sorts:
// final = base * chunkType(intents) * nameMatch * pathRelevance
//
//	* tagOverlap * docstringBonus * complexityPenalty
func (r *Ranker) Rank(results []*FusedResult, query string, intents []Intent) []*FusedResult {
	queryTokens := embed.Tokenize(query)
	tokenSet := make(map[string]struct{}, len(queryTokens))
	for _, t := range queryTokens {
		tokenSet[t] = struct{}{}
	}

	for _, res := range results {
		boost := r.chunkTypeBoost(res.Record, intents)
		boost *= r.nameMatchBoost(res.Record, tokenSet)
		boost *= r.pathBoost(res.Record, tokenSet, intents)
		boost *= r.tagBoost(res.Record, tokenSet)
		boost *= r.docstringBonus(res.Record)
		boost *= r.complexityFactor(res.Record)
		res.Score *= boost
		if res.Score > 1 {
			res.Score = 1
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.ID < results[j].Record.ID
	})
	return results
}

func (r *Ranker) chunkTypeBoost(rec *store.ChunkRecord, intents []Intent) float64 {
	if rec.Metadata == nil || rec.Metadata.Kind == "" || len(intents) == 0 {
		return 1.0
	}
	// The strongest intent that has an opinion about this kind wins,
	// scaled by its confidence toward neutral.
	for _, intent := range intents {
		kinds, ok := intentKindBoosts[intent.Category]
		if !ok {
			continue
		}
		if b, ok := kinds[rec.Metadata.Kind]; ok {
			return 1.0 + (b-1.0)*intent.Confidence
		}
	}
	return 1.0
}

// nameMatchBoost rewards symbol names whose tokens overlap the query.
func (r *Ranker) nameMatchBoost(rec *store.ChunkRecord, queryTokens map[string]struct{}) float64 {
	if rec.Metadata == nil || rec.Metadata.Name == "" || len(queryTokens) == 0 {
		return 1.0
	}
	nameTokens := embed.Tokenize(rec.Metadata.Name)
	if len(nameTokens) == 0 {
		return 1.0
	}
	matched := 0
	for _, t := range nameTokens {
		if _, hit := queryTokens[t]; hit {
			matched++
		}
	}
	if matched == 0 {
		return 1.0
	}
	overlap := float64(matched) / float64(len(nameTokens))
	return 1.0 + (nameMatchBoostMax-1.0)*overlap
}

func (r *Ranker) pathBoost(rec *store.ChunkRecord, queryTokens map[string]struct{}, intents []Intent) float64 {
	path := strings.ToLower(rec.Path)
	pathTokens := embed.Tokenize(path)

	matched := false
	for _, t := range pathTokens {
		if _, hit := queryTokens[t]; hit {
			matched = true
			break
		}
	}
	if !matched {
		for _, intent := range intents {
			for _, hint := range intentPathHints[intent.Category] {
				if strings.Contains(path, hint) {
					matched = true
					break
				}
			}
		}
	}
	if matched {
		return pathBoostMax
	}
	return 1.0
}

func (r *Ranker) tagBoost(rec *store.ChunkRecord, queryTokens map[string]struct{}) float64 {
	if rec.Metadata == nil || len(rec.Metadata.Tags) == 0 || len(queryTokens) == 0 {
		return 1.0
	}
	matched := 0
	for _, tag := range rec.Metadata.Tags {
		if _, hit := queryTokens[strings.ToLower(tag)]; hit {
			matched++
		}
	}
	if matched == 0 {
		return 1.0
	}
	overlap := float64(matched) / float64(len(rec.Metadata.Tags))
	return 1.0 + (tagBoostMax-1.0)*overlap
}

func (r *Ranker) docstringBonus(rec *store.ChunkRecord) float64 {
	if rec.Metadata == nil || rec.Metadata.Docstring == "" {
		return 1.0
	}
	return docstringBoost
}

// complexityFactor lightly penalizes oversized chunks, which tend to be
// noisy matches.
func (r *Ranker) complexityFactor(rec *store.ChunkRecord) float64 {
	if len(rec.Text) > oversizeThreshold {
		return complexityPenalty
	}
	return 1.0
}

// Deduplicate merges results from the same file whose line ranges are
// adjacent or overlapping, keeping the best score and the union range.
func Deduplicate(results []*FusedResult) []*FusedResult {
	if len(results) <= 1 {
		return results
	}

	// Group by path, keep score order within the final output.
	byPath := make(map[string][]*FusedResult)
	for _, r := range results {
		byPath[r.Record.Path] = append(byPath[r.Record.Path], r)
	}

	drop := make(map[string]struct{})
	for _, group := range byPath {
		sort.Slice(group, func(i, j int) bool {
			return group[i].Record.StartLine < group[j].Record.StartLine
		})
		for i := 1; i < len(group); i++ {
			prev, cur := group[i-1], group[i]
			if _, gone := drop[prev.Record.ID]; gone {
				continue
			}
			// Adjacent = gap of at most one line.
			if cur.Record.StartLine <= prev.Record.EndLine+1 {
				keep, lose := prev, cur
				if cur.Score > prev.Score {
					keep, lose = cur, prev
				}
				if lose.Record.StartLine < keep.Record.StartLine {
					keep.Record.StartLine = lose.Record.StartLine
				}
				if lose.Record.EndLine > keep.Record.EndLine {
					keep.Record.EndLine = lose.Record.EndLine
				}
				drop[lose.Record.ID] = struct{}{}
				// The keeper carries the merged range forward.
				group[i] = keep
			}
		}
	}

	out := results[:0]
	for _, r := range results {
		if _, gone := drop[r.Record.ID]; !gone {
			out = append(out, r)
		}
	}
	return out
}
