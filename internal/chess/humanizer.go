package chess

import (
	"errors"
	"math"
	"math/rand"
	"strings"
)

type Candidate struct {
	Move      string
	EvalCP    int
	Principal []string
	Forced    bool
}

// SelectCandidate picks among the first PrimaryChoices candidates by the
// preset weights. A forced candidate in that window wins outright.
func SelectCandidate(p DifficultyPreset, candidates []Candidate, r *rand.Rand) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, errors.New("no candidates to choose from")
	}
	if err := ValidatePreset(p); err != nil {
		return Candidate{}, err
	}

	primaryLimit := min(p.PrimaryChoices, len(candidates))

	index := -1
	for i := 0; i < primaryLimit; i++ {
		if candidates[i].Forced {
			index = i
			break
		}
	}

	if index < 0 {
		totalWeight := 0.0
		for i := 0; i < primaryLimit; i++ {
			totalWeight += p.CandidateWeights[i]
		}
		if totalWeight == 0 {
			return Candidate{}, errors.New("candidate weights sum to zero")
		}
		threshold := r.Float64() * totalWeight
		index = primaryLimit - 1
		for i := 0; i < primaryLimit; i++ {
			threshold -= p.CandidateWeights[i]
			if threshold <= 0 {
				index = i
				break
			}
		}
	}

	choice := candidates[index]
	if p.EvalNoise > 0 {
		offset := r.Intn(2*p.EvalNoise+1) - p.EvalNoise
		choice.EvalCP = saturatingAdd(choice.EvalCP, offset)
	}
	return choice, nil
}

// applyRepertoire moves a matching repertoire reply to the front as a forced
// candidate. history is the full coordinate move list; it only acts when
// Black is to move.
func applyRepertoire(lines []RepertoireLine, candidates []Candidate, history []string, r *rand.Rand) ([]Candidate, string) {
	if len(lines) == 0 || r == nil || len(history)%2 == 0 {
		return candidates, ""
	}
	white, black := splitMovesByColor(history)

	type match struct {
		line  RepertoireLine
		reply string
	}
	var matches []match
	for _, line := range lines {
		if len(black) >= len(line.Black) {
			continue
		}
		n := min(len(white), len(line.White))
		if !prefixMatched(white[:n], line.White[:n]) {
			continue
		}
		if !prefixMatched(black, line.Black[:len(black)]) {
			continue
		}
		matches = append(matches, match{line: line, reply: strings.ToLower(line.Black[len(black)])})
	}
	if len(matches) == 0 {
		return candidates, ""
	}

	roll := r.Float64()
	cumulative := 0.0
	for _, m := range matches {
		cumulative += m.line.Probability
		if roll >= cumulative {
			continue
		}
		out := make([]Candidate, 0, len(candidates)+1)
		out = append(out, Candidate{Move: m.reply, Principal: []string{m.reply}, Forced: true})
		for _, c := range candidates {
			if !strings.EqualFold(c.Move, m.reply) {
				out = append(out, c)
			} else {
				out[0].EvalCP = c.EvalCP
			}
		}
		return out, m.line.Name
	}
	return candidates, ""
}

func splitMovesByColor(moves []string) (white, black []string) {
	for i, mv := range moves {
		if i%2 == 0 {
			white = append(white, mv)
		} else {
			black = append(black, mv)
		}
	}
	return white, black
}

func prefixMatched(history, target []string) bool {
	if len(history) > len(target) {
		return false
	}
	for i := range history {
		if !strings.EqualFold(strings.TrimSpace(history[i]), strings.TrimSpace(target[i])) {
			return false
		}
	}
	return true
}

func saturatingAdd(a, b int) int {
	sum := int64(a) + int64(b)
	if sum > math.MaxInt {
		return math.MaxInt
	}
	if sum < math.MinInt {
		return math.MinInt
	}
	return int(sum)
}
