package chess

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BuildGoCommand renders the "go" tokens for p. A positive moveTime replaces
// the preset's own per-move time.
func BuildGoCommand(p DifficultyPreset, moveTime time.Duration) ([]string, error) {
	if err := ValidatePreset(p); err != nil {
		return nil, err
	}

	args := []string{"go"}
	if p.DepthCap > 0 {
		args = append(args, "depth", strconv.Itoa(p.DepthCap))
	}
	ms := p.MoveTimeMillis
	if moveTime > 0 {
		ms = int(moveTime / time.Millisecond)
		if ms < 1 {
			ms = 1
		}
	}
	if ms > 0 {
		args = append(args, "movetime", strconv.Itoa(ms))
	}
	if p.NodeCap > 0 {
		args = append(args, "nodes", strconv.Itoa(p.NodeCap))
	}

	if len(args) == 1 {
		return nil, fmt.Errorf("preset %s does not define search limits", p.Name)
	}
	return args, nil
}

func FormatGoCommand(p DifficultyPreset, moveTime time.Duration) (string, error) {
	args, err := BuildGoCommand(p, moveTime)
	if err != nil {
		return "", err
	}
	return strings.Join(args, " "), nil
}
