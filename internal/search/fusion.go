package search

import (
	"sort"

	"github.com/blakazulu/search-mcp/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains.
const DefaultRRFConstant = 60

// FusedResult is one result after rank fusion, before boosting.
type FusedResult struct {
	Record      *store.ChunkRecord
	Score       float64 // fused, normalized to [0,1]
	VectorScore float64 // original normalized vector score (0 if absent)
	KeywordScore float64 // original normalized BM25 score (0 if absent)
	VectorRank  int     // 1-indexed, 0 if absent
	KeywordRank int     // 1-indexed, 0 if absent
	InBoth      bool
}

// RRFFusion combines vector and keyword rankings with Reciprocal Rank
// Fusion: score(d) = Σ weight_i / (k + rank_i).
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a fusion instance with the default k.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// Fuse merges the two ranked lists. alpha weights the vector list,
// 1-alpha the keyword list. When one list is empty the other's
// normalized scores pass through unweighted, so single-modality results
// are not penalized for the missing source.
func (f *RRFFusion) Fuse(vec []*store.VectorResult, kw []*store.FTSResult, alpha float64, lookup func(id string) *store.ChunkRecord) []*FusedResult {
	if len(vec) == 0 && len(kw) == 0 {
		return []*FusedResult{}
	}

	// Single-modality pass-through (hybrid with one empty side).
	if len(kw) == 0 {
		out := make([]*FusedResult, 0, len(vec))
		for rank, r := range vec {
			out = append(out, &FusedResult{
				Record:      r.Record,
				Score:       r.Score,
				VectorScore: r.Score,
				VectorRank:  rank + 1,
			})
		}
		return out
	}
	if len(vec) == 0 {
		normalized := store.NormalizeScores(cloneFTS(kw))
		out := make([]*FusedResult, 0, len(normalized))
		for rank, r := range normalized {
			rec := lookup(r.ID)
			if rec == nil {
				continue
			}
			out = append(out, &FusedResult{
				Record:       rec,
				Score:        r.Score,
				KeywordScore: r.Score,
				KeywordRank:  rank + 1,
			})
		}
		return out
	}

	k := f.K
	if k <= 0 {
		k = DefaultRRFConstant
	}

	normalizedKw := store.NormalizeScores(cloneFTS(kw))

	fused := make(map[string]*FusedResult, len(vec)+len(kw))
	for rank, r := range vec {
		fr := &FusedResult{
			Record:      r.Record,
			VectorScore: r.Score,
			VectorRank:  rank + 1,
		}
		fr.Score = alpha / float64(k+rank+1)
		fused[r.Record.ID] = fr
	}
	for rank, r := range normalizedKw {
		fr, exists := fused[r.ID]
		if !exists {
			rec := lookup(r.ID)
			if rec == nil {
				continue
			}
			fr = &FusedResult{Record: rec}
			fused[r.ID] = fr
		} else {
			fr.InBoth = true
		}
		fr.KeywordScore = r.Score
		fr.KeywordRank = rank + 1
		fr.Score += (1 - alpha) / float64(k+rank+1)
	}

	out := make([]*FusedResult, 0, len(fused))
	var maxScore float64
	for _, fr := range fused {
		if fr.Score > maxScore {
			maxScore = fr.Score
		}
		out = append(out, fr)
	}
	// Normalize fused scores to [0,1].
	if maxScore > 0 {
		for _, fr := range out {
			fr.Score /= maxScore
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].InBoth != out[j].InBoth {
			return out[i].InBoth
		}
		return out[i].Record.ID < out[j].Record.ID
	})
	return out
}

func cloneFTS(in []*store.FTSResult) []*store.FTSResult {
	out := make([]*store.FTSResult, len(in))
	for i, r := range in {
		cp := *r
		out[i] = &cp
	}
	return out
}
