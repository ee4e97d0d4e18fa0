package aggregate

import (
	"sort"

	"moodatlas/internal/types"
)

// Relative strength of each emotion, used by the intensity-flavored
// algorithms. Carried over from production tuning of the classifier
// ensemble.
var emotionIntensity = map[types.Emotion]float64{
	types.EmotionAnger:    0.95,
	types.EmotionFear:     0.90,
	types.EmotionDisgust:  0.85,
	types.EmotionJoy:      0.80,
	types.EmotionSadness:  0.70,
	types.EmotionSurprise: 0.60,
	types.EmotionNeutral:  0.30,
}

type entry struct {
	postID     string
	emotion    types.Emotion
	confidence float64
}

// vote is one algorithm's answer: a label and the signal strength behind
// it (vote share, confidence share, average confidence...). An exact tie
// leaves the algorithm with no genuine preference; it reports the
// tiebreak label but abstains from the consensus tally, so coin-flips
// never manufacture agreement.
type vote struct {
	emotion   types.Emotion
	signal    float64
	abstained bool
}

// Votes records what each algorithm decided, for operators and tests.
type Votes struct {
	Majority  types.Emotion `json:"majority"`
	Weighted  types.Emotion `json:"weighted"`
	Intensity types.Emotion `json:"intensity"`
	Median    types.Emotion `json:"median"`
}

type Consensus struct {
	Dominant   types.Emotion
	Confidence float64
	Votes      Votes
	Agreement  int
}

// computeConsensus runs the four algorithms over the current entries and
// resolves them: three or more agreeing algorithms win outright with
// confidence = mean of their signals; otherwise the Weighted result is
// the tiebreak with its signal halved to reflect disagreement. The halved
// fallback is a policy default, not inherited behavior.
//
// Determinism: every algorithm breaks ties on a total order (count, then
// cumulative confidence, then label), abstaining when the tie is exact,
// and the median works on a fresh sort of all entries, so any
// permutation of the same multiset of classifications produces the same
// result.
func computeConsensus(entries []entry, minIntensitySupport int) Consensus {
	if len(entries) == 0 {
		return Consensus{Dominant: types.EmotionNeutral}
	}

	majority := majorityVote(entries)
	weighted := weightedVote(entries)
	intensity := intensityVote(entries, minIntensitySupport)
	median := medianVote(entries)

	votes := []vote{majority, weighted, intensity, median}

	tally := map[types.Emotion]int{}
	for _, v := range votes {
		if v.abstained {
			continue
		}
		tally[v.emotion]++
	}

	result := Consensus{
		Votes: Votes{
			Majority:  majority.emotion,
			Weighted:  weighted.emotion,
			Intensity: intensity.emotion,
			Median:    median.emotion,
		},
	}

	var best types.Emotion
	bestCount := 0
	for emotion, count := range tally {
		if count > bestCount || (count == bestCount && emotion < best) {
			best = emotion
			bestCount = count
		}
	}
	result.Agreement = bestCount

	if bestCount >= 3 {
		sum := 0.0
		agreeing := 0
		for _, v := range votes {
			if v.emotion == best && !v.abstained {
				sum += v.signal
				agreeing++
			}
		}
		result.Dominant = best
		result.Confidence = sum / float64(agreeing)
		return result
	}

	result.Dominant = weighted.emotion
	result.Confidence = weighted.signal / 2
	return result
}

func perEmotion(entries []entry) (counts map[types.Emotion]int, sums map[types.Emotion]float64) {
	counts = map[types.Emotion]int{}
	sums = map[types.Emotion]float64{}
	for _, e := range entries {
		counts[e.emotion]++
		sums[e.emotion] += e.confidence
	}
	return counts, sums
}

// majorityVote: highest raw count, ties broken by cumulative confidence,
// then label. Signal is the winner's vote share. A tie on both count and
// cumulative confidence is an abstention.
func majorityVote(entries []entry) vote {
	counts, sums := perEmotion(entries)

	var best types.Emotion
	first := true
	for emotion := range counts {
		if first {
			best = emotion
			first = false
			continue
		}
		if counts[emotion] > counts[best] ||
			(counts[emotion] == counts[best] && sums[emotion] > sums[best]) ||
			(counts[emotion] == counts[best] && sums[emotion] == sums[best] && emotion < best) {
			best = emotion
		}
	}

	tied := false
	for emotion := range counts {
		if emotion != best && counts[emotion] == counts[best] && sums[emotion] == sums[best] {
			tied = true
			break
		}
	}

	return vote{
		emotion:   best,
		signal:    float64(counts[best]) / float64(len(entries)),
		abstained: tied,
	}
}

// weightedVote: highest cumulative confidence sum. Signal is the winner's
// share of total confidence mass. Never abstains: it is the designated
// fallback, so it must always produce an answer.
func weightedVote(entries []entry) vote {
	counts, sums := perEmotion(entries)

	var best types.Emotion
	total := 0.0
	first := true
	for emotion, sum := range sums {
		total += sum
		if first {
			best = emotion
			first = false
			continue
		}
		if sum > sums[best] ||
			(sum == sums[best] && counts[emotion] > counts[best]) ||
			(sum == sums[best] && counts[emotion] == counts[best] && emotion < best) {
			best = emotion
		}
	}

	signal := 0.0
	if total > 0 {
		signal = sums[best] / total
	}
	return vote{emotion: best, signal: signal}
}

// intensityVote: highest intensity-weighted average confidence among
// emotions with at least minSupport posts, so a single loud outlier
// cannot dominate. When nothing reaches the support floor the floor
// drops to one. The average is deliberately weighted by the
// emotionIntensity table rather than taken over raw confidences, so
// inherently strong emotions (anger, fear) outrank mild ones at equal
// classifier confidence.
func intensityVote(entries []entry, minSupport int) vote {
	counts, _ := perEmotion(entries)

	sums := map[types.Emotion]float64{}
	for _, e := range entries {
		sums[e.emotion] += e.confidence * emotionIntensity[e.emotion]
	}

	supported := false
	for _, count := range counts {
		if count >= minSupport {
			supported = true
			break
		}
	}
	if !supported {
		minSupport = 1
	}

	var best types.Emotion
	bestAvg := -1.0
	tied := false
	for emotion, count := range counts {
		if count < minSupport {
			continue
		}
		avg := sums[emotion] / float64(count)
		switch {
		case avg > bestAvg:
			best = emotion
			bestAvg = avg
			tied = false
		case avg == bestAvg:
			tied = true
			if emotion < best {
				best = emotion
			}
		}
	}

	return vote{emotion: best, signal: bestAvg, abstained: tied}
}

// medianVote: the emotion of the post at the median confidence rank.
// Recomputed from a fresh, fully-ordered sort every time; an
// incrementally maintained running median would drift with arrival
// order. Even counts take the lower median index; when the two middle
// posts carry the same confidence but different emotions the median is
// a coin flip, so the algorithm abstains.
func medianVote(entries []entry) vote {
	sorted := make([]entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].confidence != sorted[j].confidence {
			return sorted[i].confidence < sorted[j].confidence
		}
		return sorted[i].postID < sorted[j].postID
	})

	lower := (len(sorted) - 1) / 2
	mid := sorted[lower]

	tied := false
	if len(sorted)%2 == 0 {
		other := sorted[lower+1]
		tied = other.confidence == mid.confidence && other.emotion != mid.emotion
	}

	return vote{emotion: mid.emotion, signal: mid.confidence, abstained: tied}
}
