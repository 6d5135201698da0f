// Package command interprets raw chat input for slash-commands. Interpretation
// is a pure function of the input text; dice are resolved separately so the
// random source stays injectable.
package command

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mundstockGG/dreamlet/internal/types"
)

const (
	MinDiceCount = 1
	MaxDiceCount = 100
	MinDiceSides = 2
	MaxDiceSides = 1000
)

const (
	rollUsageMsg = "Usage: /roll 2d6 or /roll d20"
	rollRangeMsg = "Dice count must be 1-100, sides 2-1000"
)

type IntentKind int

const (
	// IntentChat is plain chat text with no slash-command.
	IntentChat IntentKind = iota
	// IntentAction is a narrative action (/me, /do, /rr).
	IntentAction
	// IntentRoll is a validated dice roll awaiting execution.
	IntentRoll
	// IntentRollPrompt is a bare /roll, a UI-level request to open the
	// structured dice entry. Produces no message.
	IntentRollPrompt
	// IntentError is a command that failed to parse or validate.
	IntentError
)

// Intent is the result of interpreting raw message text. Exactly the fields
// relevant to Kind are set; consumers switch exhaustively on Kind.
type Intent struct {
	Kind    IntentKind
	Content string              // IntentChat, IntentAction
	Subtype types.ActionSubtype // IntentAction
	Count   int                 // IntentRoll
	Sides   int                 // IntentRoll
	Message string              // IntentError
}

var (
	rollPromptRe = regexp.MustCompile(`(?i)^/roll\s*$`)
	rollRe       = regexp.MustCompile(`(?i)^/roll\s+(\d*)d(\d+)$`)
	actionRe     = regexp.MustCompile(`(?i)^/(me|do|rr)\s+(.+)$`)
)

// Interpret classifies raw chat input. It never performs I/O and never
// resolves dice; an IntentRoll carries only the validated count and sides.
func Interpret(raw string) Intent {
	text := strings.TrimSpace(raw)

	if !strings.HasPrefix(text, "/") {
		return Intent{Kind: IntentChat, Content: text}
	}

	if rollPromptRe.MatchString(text) {
		return Intent{Kind: IntentRollPrompt}
	}

	if m := rollRe.FindStringSubmatch(text); m != nil {
		count := 1
		if m[1] != "" {
			count, _ = strconv.Atoi(m[1])
		}
		sides, _ := strconv.Atoi(m[2])

		if count < MinDiceCount || count > MaxDiceCount || sides < MinDiceSides || sides > MaxDiceSides {
			return Intent{Kind: IntentError, Message: rollRangeMsg}
		}

		return Intent{Kind: IntentRoll, Count: count, Sides: sides}
	}

	// usage hint only when the command itself is /roll; other /roll-prefixed
	// words fall through to the unknown-command path
	if fields := strings.Fields(text); len(fields) > 0 && strings.EqualFold(fields[0], "/roll") {
		return Intent{Kind: IntentError, Message: rollUsageMsg}
	}

	if m := actionRe.FindStringSubmatch(text); m != nil {
		return Intent{
			Kind:    IntentAction,
			Subtype: types.ActionSubtype(strings.ToLower(m[1])),
			Content: strings.TrimSpace(m[2]),
		}
	}

	return Intent{Kind: IntentError, Message: fmt.Sprintf("Unknown or malformed command: %s", text)}
}
