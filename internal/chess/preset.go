package chess

import (
	"fmt"
	"math"
	"strings"
)

type DifficultyPreset struct {
	Name             string
	SkillLevel       int
	LimitStrength    bool
	Elo              int
	Threads          int
	HashMB           int
	MoveTimeMillis   int
	NodeCap          int
	DepthCap         int
	MultiPV          int
	PrimaryChoices   int
	CandidateWeights []float64
	EvalNoise        int
	Repertoire       []RepertoireLine
}

// RepertoireLine steers Black's early replies toward a named opening when
// White's moves follow its trigger sequence.
type RepertoireLine struct {
	Name        string
	White       []string
	Black       []string
	Probability float64
}

const defaultThreads = 2

var blackRepertoire = []RepertoireLine{
	{
		Name:        "giuoco-piano",
		White:       []string{"e2e4", "g1f3", "f1c4", "c2c3"},
		Black:       []string{"e7e5", "b8c6", "f8c5", "g8f6"},
		Probability: 0.5,
	},
	{
		Name:        "sicilian-mainline",
		White:       []string{"e2e4", "g1f3", "d2d4", "f3d4"},
		Black:       []string{"c7c5", "d7d6", "c5d4", "g8f6"},
		Probability: 0.3,
	},
	{
		Name:        "berlin-mainline",
		White:       []string{"e2e4", "g1f3", "f1b5", "e1g1"},
		Black:       []string{"e7e5", "b8c6", "g8f6", "f8e7"},
		Probability: 0.4,
	},
	{
		Name:        "grunfeld-mainline",
		White:       []string{"d2d4", "c2c4", "b1c3", "g1f3"},
		Black:       []string{"g8f6", "g7g6", "d7d5", "f8g7"},
		Probability: 0.4,
	},
	{
		Name:        "kings-indian-classical",
		White:       []string{"d2d4", "c2c4", "g1f3", "e2e4"},
		Black:       []string{"g8f6", "g7g6", "f8g7", "d7d6"},
		Probability: 0.4,
	},
	{
		Name:        "english-caro-structure",
		White:       []string{"c2c4", "g1f3", "d2d4"},
		Black:       []string{"c7c6", "d7d5", "g8f6", "e7e6"},
		Probability: 0.6,
	},
}

var DefaultPresets = map[string]DifficultyPreset{
	"club": {
		Name:             "club",
		SkillLevel:       10,
		LimitStrength:    true,
		Elo:              1800,
		Threads:          1,
		HashMB:           16,
		MoveTimeMillis:   100,
		MultiPV:          1,
		PrimaryChoices:   1,
		CandidateWeights: []float64{1.0},
	},
	"level1": {
		Name: "level1", SkillLevel: 0, Threads: defaultThreads, HashMB: 16,
		MoveTimeMillis: 20, DepthCap: 5, MultiPV: 5, PrimaryChoices: 3,
		CandidateWeights: []float64{0.5, 0.3, 0.2}, EvalNoise: 80,
		Repertoire: blackRepertoire,
	},
	"level2": {
		Name: "level2", SkillLevel: 0, Threads: defaultThreads, HashMB: 16,
		MoveTimeMillis: 60, DepthCap: 6, MultiPV: 5, PrimaryChoices: 3,
		CandidateWeights: []float64{0.6, 0.3, 0.1}, EvalNoise: 60,
		Repertoire: blackRepertoire,
	},
	"level3": {
		Name: "level3", SkillLevel: 1, Threads: defaultThreads, HashMB: 24,
		MoveTimeMillis: 80, DepthCap: 8, MultiPV: 5, PrimaryChoices: 3,
		CandidateWeights: []float64{0.7, 0.2, 0.1}, EvalNoise: 45,
		Repertoire: blackRepertoire,
	},
	"level4": {
		Name: "level4", SkillLevel: 3, Threads: defaultThreads, HashMB: 32,
		MoveTimeMillis: 140, DepthCap: 10, MultiPV: 5, PrimaryChoices: 3,
		CandidateWeights: []float64{0.65, 0.25, 0.1}, EvalNoise: 30,
		Repertoire: blackRepertoire,
	},
	"level5": {
		Name: "level5", SkillLevel: 7, Threads: defaultThreads, HashMB: 48,
		MoveTimeMillis: 200, DepthCap: 12, MultiPV: 5, PrimaryChoices: 3,
		CandidateWeights: []float64{0.7, 0.2, 0.1}, EvalNoise: 25,
		Repertoire: blackRepertoire,
	},
	"level6": {
		Name: "level6", SkillLevel: 11, Threads: defaultThreads, HashMB: 64,
		MoveTimeMillis: 300, DepthCap: 16, MultiPV: 2, PrimaryChoices: 2,
		CandidateWeights: []float64{0.8, 0.2}, EvalNoise: 10,
		Repertoire: blackRepertoire,
	},
	"level7": {
		Name: "level7", SkillLevel: 16, Threads: defaultThreads, HashMB: 96,
		MoveTimeMillis: 500, DepthCap: 20, MultiPV: 2, PrimaryChoices: 2,
		CandidateWeights: []float64{0.85, 0.15}, EvalNoise: 5,
		Repertoire: blackRepertoire,
	},
	"level8": {
		Name: "level8", SkillLevel: 20, Threads: 4, HashMB: 128,
		MoveTimeMillis: 1000, DepthCap: 30, MultiPV: 1, PrimaryChoices: 1,
		CandidateWeights: []float64{1.0},
	},
}

// GetPreset resolves a preset name or alias. The returned value owns its
// slices.
func GetPreset(name string) (DifficultyPreset, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "", "default", "reference":
		key = "club"
	case "beginner":
		key = "level1"
	case "intermediate":
		key = "level5"
	case "advanced":
		key = "level7"
	case "master":
		key = "level8"
	}
	p, ok := DefaultPresets[key]
	if !ok {
		return DifficultyPreset{}, fmt.Errorf("unknown chess preset: %s", name)
	}
	p.CandidateWeights = append([]float64(nil), p.CandidateWeights...)
	p.Repertoire = append([]RepertoireLine(nil), p.Repertoire...)
	return p, nil
}

func ValidatePreset(p DifficultyPreset) error {
	switch {
	case p.SkillLevel < 0 || p.SkillLevel > 20:
		return fmt.Errorf("skill level %d out of range 0-20", p.SkillLevel)
	case p.Threads <= 0:
		return fmt.Errorf("threads must be > 0: %d", p.Threads)
	case p.HashMB <= 0:
		return fmt.Errorf("hash size must be > 0: %d", p.HashMB)
	case p.MultiPV <= 0:
		return fmt.Errorf("multipv must be > 0: %d", p.MultiPV)
	case p.PrimaryChoices <= 0:
		return fmt.Errorf("primary choices must be > 0: %d", p.PrimaryChoices)
	case p.PrimaryChoices > p.MultiPV:
		return fmt.Errorf("primary choices (%d) must not exceed multipv (%d)", p.PrimaryChoices, p.MultiPV)
	case len(p.CandidateWeights) < p.PrimaryChoices:
		return fmt.Errorf("candidate weights (%d) must cover primary choices (%d)", len(p.CandidateWeights), p.PrimaryChoices)
	case p.LimitStrength && p.Elo <= 0:
		return fmt.Errorf("limit strength requires a positive elo")
	case p.MoveTimeMillis < 0 || p.NodeCap < 0 || p.DepthCap < 0 || p.EvalNoise < 0:
		return fmt.Errorf("preset %s has negative search limits", p.Name)
	}

	sum := 0.0
	for i := 0; i < p.PrimaryChoices; i++ {
		w := p.CandidateWeights[i]
		if w < 0 {
			return fmt.Errorf("candidate weight at index %d is negative: %f", i, w)
		}
		sum += w
	}
	if sum == 0 {
		return fmt.Errorf("candidate weights sum to zero")
	}
	for _, line := range p.Repertoire {
		if err := validateRepertoireLine(line); err != nil {
			return err
		}
	}
	return nil
}

func validateRepertoireLine(line RepertoireLine) error {
	name := strings.TrimSpace(line.Name)
	if name == "" {
		return fmt.Errorf("repertoire line name required")
	}
	if len(line.White) == 0 || len(line.Black) == 0 {
		return fmt.Errorf("repertoire line %s must define both sides", name)
	}
	if line.Probability <= 0 || line.Probability > 1 || math.IsNaN(line.Probability) {
		return fmt.Errorf("repertoire line %s must have probability in (0,1]", name)
	}
	return nil
}
