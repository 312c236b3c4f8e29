package engine

import (
	"strings"

	"github.com/hupe1980/chatreview/core"
)

// Screening flags raised for a candidate message.
const (
	FlagEmpty       = "empty"
	FlagPlaceholder = "placeholder"
	FlagCodeInChat  = "code_in_chat"
	FlagSQLInChat   = "sql_in_chat"
)

// Warnings appended instead of a model answer when screening rejects a message.
const (
	WarningNoAnswer   = "Answer not accepted: please give a substantive answer to the question."
	WarningPastedCode = "Do not paste code or SQL into the chat. Enter your solution in the editor below and press Submit."
)

var placeholders = []string{
	"(отвечает правильно)",
	"(правильный ответ)",
	"код верный",
	"решение корректное",
	"ответ правильный",
	"(пишет правильный код)",
	"(solution)",
	"(answers correctly)",
	"(correct answer)",
	"the code is correct",
}

var codeMarkers = []string{"def ", "print(", "import ", "```"}

// Screen inspects a candidate message and returns the flags it raises.
// SQL is only flagged when both a select and a from clause appear so
// ordinary prose is not mistaken for a query.
func Screen(text string) []string {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return []string{FlagEmpty}
	}

	var flags []string
	for _, p := range placeholders {
		if strings.Contains(t, p) {
			flags = append(flags, FlagPlaceholder)
			break
		}
	}
	for _, m := range codeMarkers {
		if strings.Contains(t, m) {
			flags = append(flags, FlagCodeInChat)
			break
		}
	}
	if strings.Contains(t, "select ") && strings.Contains(t, " from ") {
		flags = append(flags, FlagSQLInChat)
	}
	return flags
}

// screenLatest screens the most recent candidate message of the dialogue
// and returns the warning to answer with, or "" when the message passes.
func screenLatest(messages []core.Message) (string, []string) {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Sender != core.SenderCandidate {
			continue
		}
		flags := Screen(m.Text)
		if len(flags) == 0 {
			return "", nil
		}
		for _, f := range flags {
			if f == FlagCodeInChat || f == FlagSQLInChat {
				return WarningPastedCode, flags
			}
		}
		return WarningNoAnswer, flags
	}
	return "", nil
}
