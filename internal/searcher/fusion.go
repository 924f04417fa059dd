package searcher

import (
	"errors"
	"sort"

	"github.com/clodoaldo29/AzureBridge-sub001/pkg/types"
)

// Default fusion parameters
const (
	DefaultVectorWeight   = 0.7
	DefaultFullTextWeight = 0.3
	DefaultRRFK           = 60.0
)

// ErrInvalidWeights is returned for negative fusion weights
var ErrInvalidWeights = errors.New("fusion weights must not be negative")

// Weights tunes Reciprocal Rank Fusion. RRFK dampens the influence of low
// ranks: a larger value flattens score differences.
type Weights struct {
	VectorWeight   float64 `json:"vectorWeight"`
	FullTextWeight float64 `json:"fullTextWeight"`
	RRFK           float64 `json:"rrfK"`
}

// DefaultWeights returns 0.7 / 0.3 with k = 60
func DefaultWeights() Weights {
	return Weights{
		VectorWeight:   DefaultVectorWeight,
		FullTextWeight: DefaultFullTextWeight,
		RRFK:           DefaultRRFK,
	}
}

// orDefault fills unset fields. Both weights zero means unset.
func (w Weights) orDefault(def Weights) Weights {
	if w.VectorWeight == 0 && w.FullTextWeight == 0 {
		w.VectorWeight = def.VectorWeight
		w.FullTextWeight = def.FullTextWeight
	}
	if w.RRFK <= 0 {
		w.RRFK = def.RRFK
	}
	if w.RRFK <= 0 {
		w.RRFK = DefaultRRFK
	}
	return w
}

// Validate rejects negative weights
func (w Weights) Validate() error {
	if w.VectorWeight < 0 || w.FullTextWeight < 0 {
		return ErrInvalidWeights
	}
	return nil
}

// Fused is one chunk after fusion. A rank is -1 when the chunk is absent
// from that list.
type Fused struct {
	ChunkID      int64
	Score        float64
	MatchType    types.MatchType
	VectorRank   int
	FullTextRank int
}

// Fuse merges two ranked id lists with weighted Reciprocal Rank Fusion:
//
//	score = vw/(k + vectorRank + 1) + fw/(k + fullTextRank + 1)
//
// Ranks are 0-based positions and a list the chunk is missing from adds
// nothing. Only the first occurrence of an id in a list counts. The result
// holds every id of the union, sorted by score descending; ties keep the
// order in which ids were first seen, vector list first.
func Fuse(vector, fullText []int64, w Weights) []Fused {
	index := make(map[int64]int, len(vector)+len(fullText))
	fused := make([]Fused, 0, len(vector)+len(fullText))

	for rank, id := range vector {
		if _, seen := index[id]; seen {
			continue
		}
		index[id] = len(fused)
		fused = append(fused, Fused{
			ChunkID:      id,
			Score:        w.VectorWeight / (w.RRFK + float64(rank) + 1),
			MatchType:    types.MatchVector,
			VectorRank:   rank,
			FullTextRank: -1,
		})
	}

	for rank, id := range fullText {
		contribution := w.FullTextWeight / (w.RRFK + float64(rank) + 1)
		if i, seen := index[id]; seen {
			if fused[i].FullTextRank >= 0 {
				continue
			}
			fused[i].Score += contribution
			fused[i].FullTextRank = rank
			fused[i].MatchType = types.MatchHybrid
			continue
		}
		index[id] = len(fused)
		fused = append(fused, Fused{
			ChunkID:      id,
			Score:        contribution,
			MatchType:    types.MatchFullText,
			VectorRank:   -1,
			FullTextRank: rank,
		})
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	return fused
}

// Select drops results scoring below minScore and keeps at most topK
func Select(fused []Fused, minScore float64, topK int) []Fused {
	out := make([]Fused, 0, len(fused))
	for _, f := range fused {
		if f.Score < minScore {
			continue
		}
		out = append(out, f)
		if topK > 0 && len(out) == topK {
			break
		}
	}
	return out
}
