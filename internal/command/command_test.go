package command

import (
	"math/rand"
	"testing"

	"github.com/mundstockGG/dreamlet/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestInterpret(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected Intent
	}{
		{
			name:     "plain chat",
			raw:      "hello",
			expected: Intent{Kind: IntentChat, Content: "hello"},
		},
		{
			name:     "chat is trimmed",
			raw:      "  hello there  ",
			expected: Intent{Kind: IntentChat, Content: "hello there"},
		},
		{
			name:     "me action",
			raw:      "/me waves",
			expected: Intent{Kind: IntentAction, Subtype: types.ActionMe, Content: "waves"},
		},
		{
			name:     "do action",
			raw:      "/do the wind blows",
			expected: Intent{Kind: IntentAction, Subtype: types.ActionDo, Content: "the wind blows"},
		},
		{
			name:     "rr action",
			raw:      "/rr rolls with advantage",
			expected: Intent{Kind: IntentAction, Subtype: types.ActionRr, Content: "rolls with advantage"},
		},
		{
			name:     "action subtype is case insensitive",
			raw:      "/ME shouts",
			expected: Intent{Kind: IntentAction, Subtype: types.ActionMe, Content: "shouts"},
		},
		{
			name:     "bare roll opens dice prompt",
			raw:      "/roll",
			expected: Intent{Kind: IntentRollPrompt},
		},
		{
			name:     "bare roll with trailing spaces",
			raw:      "/roll   ",
			expected: Intent{Kind: IntentRollPrompt},
		},
		{
			name:     "roll with count and sides",
			raw:      "/roll 2d6",
			expected: Intent{Kind: IntentRoll, Count: 2, Sides: 6},
		},
		{
			name:     "roll count defaults to one",
			raw:      "/roll d20",
			expected: Intent{Kind: IntentRoll, Count: 1, Sides: 20},
		},
		{
			name:     "roll is case insensitive",
			raw:      "/ROLL 3D8",
			expected: Intent{Kind: IntentRoll, Count: 3, Sides: 8},
		},
		{
			name:     "roll count above range",
			raw:      "/roll 101d6",
			expected: Intent{Kind: IntentError, Message: "Dice count must be 1-100, sides 2-1000"},
		},
		{
			name:     "roll sides below range",
			raw:      "/roll 2d1",
			expected: Intent{Kind: IntentError, Message: "Dice count must be 1-100, sides 2-1000"},
		},
		{
			name:     "roll sides above range",
			raw:      "/roll d1001",
			expected: Intent{Kind: IntentError, Message: "Dice count must be 1-100, sides 2-1000"},
		},
		{
			name:     "malformed roll argument",
			raw:      "/roll abc",
			expected: Intent{Kind: IntentError, Message: "Usage: /roll 2d6 or /roll d20"},
		},
		{
			name:     "roll with too many arguments",
			raw:      "/roll two dice",
			expected: Intent{Kind: IntentError, Message: "Usage: /roll 2d6 or /roll d20"},
		},
		{
			name:     "roll prefix on a longer word is unknown",
			raw:      "/rollover party",
			expected: Intent{Kind: IntentError, Message: "Unknown or malformed command: /rollover party"},
		},
		{
			name:     "unknown command embeds original text",
			raw:      "/nonsense",
			expected: Intent{Kind: IntentError, Message: "Unknown or malformed command: /nonsense"},
		},
		{
			name:     "me without argument is malformed",
			raw:      "/me",
			expected: Intent{Kind: IntentError, Message: "Unknown or malformed command: /me"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			intent := Interpret(tc.raw)
			assert.Equal(t, tc.expected, intent)
		})
	}
}

func TestExecuteRoll(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	res := ExecuteRoll(2, 6, rng)
	assert.Equal(t, 2, res.Count, "expected count to be preserved")
	assert.Equal(t, 6, res.Sides, "expected sides to be preserved")
	assert.Len(t, res.Rolls, 2, "expected one result per die")

	total := 0
	for _, roll := range res.Rolls {
		assert.GreaterOrEqual(t, roll, 1, "expected roll to be at least 1")
		assert.LessOrEqual(t, roll, 6, "expected roll to be at most the die size")
		total += roll
	}
	assert.Equal(t, total, res.Total, "expected total to be the sum of rolls")
}

func TestRollResultRender(t *testing.T) {
	res := RollResult{Count: 2, Sides: 6, Rolls: []int{3, 5}, Total: 8}
	assert.Equal(t, "/roll 2d6: 3, 5 = 8", res.Render())

	single := RollResult{Count: 1, Sides: 20, Rolls: []int{17}, Total: 17}
	assert.Equal(t, "/roll 1d20: 17 = 17", single.Render())
}
