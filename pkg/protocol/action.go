package protocol

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rimraf-adi/socrates/pkg/domain"
)

// Markers of the tool-use reply format.
const (
	FinalMarker  = "Final Answer:"
	ActionMarker = "Action:"
)

// ReplyKind classifies one round of tool-use output.
type ReplyKind int

const (
	ReplyNone ReplyKind = iota
	ReplyAction
	ReplyFinal
)

// Action is a parsed tool call.
type Action struct {
	Name string
	Args map[string]string
	Raw  string
}

// Reply is the parsed form of a model reply in the tool-use loop.
type Reply struct {
	Kind   ReplyKind
	Action Action
	Final  string
	// Text is the full reply, kept for the budget-exhausted fallback.
	Text string
}

// ParseReply classifies a reply. The final-answer marker wins over actions
// and matches in any case. A line is a call when it carries the "Action:"
// prefix or starts with one of the known tool names followed by '('. Such a
// line that breaks the grammar is a ParseError, so the caller can feed the
// problem back instead of ignoring it. Other lines that merely look like
// calls, such as "f(x) = x^2", are prose.
func ParseReply(text string, known ...string) (Reply, error) {
	reply := Reply{Kind: ReplyNone, Text: text}

	if idx := indexFold(text, FinalMarker); idx >= 0 {
		reply.Kind = ReplyFinal
		reply.Final = strings.TrimSpace(text[idx+len(FinalMarker):])
		return reply, nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		prefixed := hasPrefixFold(line, ActionMarker)
		if prefixed {
			line = strings.TrimSpace(line[len(ActionMarker):])
		}
		line = strings.Trim(line, "`")
		if !looksLikeCall(line) {
			continue
		}
		if !prefixed && !slices.Contains(known, callName(line)) {
			continue
		}
		action, err := ParseAction(line)
		if err != nil {
			return reply, err
		}
		reply.Kind = ReplyAction
		reply.Action = action
		return reply, nil
	}

	return reply, nil
}

func indexFold(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func callName(line string) string {
	if i := strings.IndexByte(line, '('); i > 0 {
		return line[:i]
	}
	return ""
}

// looksLikeCall reports whether line starts with an identifier followed by '('.
func looksLikeCall(line string) bool {
	i := 0
	for i < len(line) && isIdentChar(line[i], i == 0) {
		i++
	}
	return i > 0 && i < len(line) && line[i] == '('
}

func isIdentChar(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}

// ParseAction parses name(key="value", ...) strictly. Values are double
// quoted; \" and \\ are the only escapes. Nothing may follow the closing paren.
func ParseAction(line string) (Action, error) {
	fail := func(format string, args ...any) (Action, error) {
		return Action{}, &domain.ParseError{Input: line, Reason: fmt.Sprintf(format, args...)}
	}

	s := strings.TrimSpace(line)
	i := 0
	for i < len(s) && isIdentChar(s[i], i == 0) {
		i++
	}
	if i == 0 {
		return fail("missing action name")
	}
	name := s[:i]
	if i >= len(s) || s[i] != '(' {
		return fail("expected '(' after %s", name)
	}
	i++

	args := make(map[string]string)
	skipSpace := func() {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
	}

	skipSpace()
	if i < len(s) && s[i] == ')' {
		i++
	} else {
		for {
			skipSpace()
			start := i
			for i < len(s) && isIdentChar(s[i], i == start) {
				i++
			}
			if i == start {
				return fail("expected argument name at offset %d", i)
			}
			key := s[start:i]
			skipSpace()
			if i >= len(s) || s[i] != '=' {
				return fail("expected '=' after %s", key)
			}
			i++
			skipSpace()
			if i >= len(s) || s[i] != '"' {
				return fail("value of %s must be double quoted", key)
			}
			i++

			var val strings.Builder
			closed := false
			for i < len(s) {
				c := s[i]
				if c == '\\' && i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
					val.WriteByte(s[i+1])
					i += 2
					continue
				}
				if c == '"' {
					closed = true
					i++
					break
				}
				val.WriteByte(c)
				i++
			}
			if !closed {
				return fail("unterminated value for %s", key)
			}
			if _, dup := args[key]; dup {
				return fail("duplicate argument %s", key)
			}
			args[key] = val.String()

			skipSpace()
			if i < len(s) && s[i] == ',' {
				i++
				continue
			}
			if i < len(s) && s[i] == ')' {
				i++
				break
			}
			return fail("expected ',' or ')' after %s", key)
		}
	}

	if rest := strings.TrimSpace(s[i:]); rest != "" {
		return fail("unexpected trailing text %q", rest)
	}

	return Action{Name: name, Args: args, Raw: s}, nil
}
