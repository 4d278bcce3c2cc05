package search

import "sort"

// proximityBonus computes the phrase proximity multiplier from the
// query terms' position lists on the body field. The minimum window
// covering one occurrence of every term determines the bonus:
// a span no wider than the query itself is a perfect phrase (x1.5);
// scatter up to 3x decays linearly to 1.0; anything wider gets nothing.
func proximityBonus(positionsByTerm map[int][]uint32, termCount int) float64 {
	span := minCoveringSpan(positionsByTerm, termCount)
	if span <= 0 {
		return 1.0
	}
	qlen := float64(termCount)
	scatter := float64(span) / qlen
	switch {
	case float64(span) <= qlen:
		return perfectPhraseBonus
	case scatter < maxScatter:
		// Linear decay from 1.5 at scatter=1 to 1.0 at scatter=3.
		return perfectPhraseBonus - (perfectPhraseBonus-1.0)*(scatter-1.0)/(maxScatter-1.0)
	default:
		return 1.0
	}
}

// minCoveringSpan returns the smallest token span containing at least
// one occurrence of every term, or 0 when some term has no positions.
func minCoveringSpan(positionsByTerm map[int][]uint32, termCount int) int {
	type occurrence struct {
		pos  uint32
		term int
	}
	var all []occurrence
	for term := 0; term < termCount; term++ {
		positions := positionsByTerm[term]
		if len(positions) == 0 {
			return 0
		}
		for _, p := range positions {
			all = append(all, occurrence{pos: p, term: term})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].pos < all[j].pos })

	counts := make([]int, termCount)
	covered := 0
	best := 0
	left := 0
	for right := 0; right < len(all); right++ {
		if counts[all[right].term] == 0 {
			covered++
		}
		counts[all[right].term]++

		for covered == termCount {
			span := int(all[right].pos-all[left].pos) + 1
			if best == 0 || span < best {
				best = span
			}
			counts[all[left].term]--
			if counts[all[left].term] == 0 {
				covered--
			}
			left++
		}
	}
	return best
}
