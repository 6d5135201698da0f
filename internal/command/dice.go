package command

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// RollResult is an executed dice roll.
type RollResult struct {
	Count int
	Sides int
	Rolls []int
	Total int
}

// ExecuteRoll draws count uniform integers in [1, sides] from rng. The source
// does not need to be cryptographically secure.
func ExecuteRoll(count, sides int, rng *rand.Rand) RollResult {
	rolls := make([]int, count)
	total := 0
	for i := range rolls {
		rolls[i] = 1 + rng.Intn(sides)
		total += rolls[i]
	}

	return RollResult{
		Count: count,
		Sides: sides,
		Rolls: rolls,
		Total: total,
	}
}

// Render produces the human-readable content persisted for a roll,
// e.g. "/roll 2d6: 3, 5 = 8".
func (r RollResult) Render() string {
	parts := make([]string, len(r.Rolls))
	for i, roll := range r.Rolls {
		parts[i] = strconv.Itoa(roll)
	}

	return fmt.Sprintf("/roll %dd%d: %s = %d", r.Count, r.Sides, strings.Join(parts, ", "), r.Total)
}
