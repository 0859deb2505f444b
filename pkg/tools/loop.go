package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/rimraf-adi/socrates/pkg/ports"
	"github.com/rimraf-adi/socrates/pkg/protocol"
)

const (
	// DefaultMaxRounds is the tool-call budget of one loop.
	DefaultMaxRounds = 8
	// LongReplyThreshold is the length in characters from which a reply with
	// neither a usable action nor a final marker is accepted as the answer.
	LongReplyThreshold = 400
)

// LoopConfig configures RunLoop.
type LoopConfig struct {
	Generator   ports.Generator
	Registry    *Registry
	System      string
	Model       string
	Temperature float64
	MaxRounds   int
	Logger      *slog.Logger
}

// LoopResult is what a loop produced.
type LoopResult struct {
	Answer       string
	Rounds       int
	Exhausted    bool
	Observations []string
}

// RunLoop drives the action/observation loop for task. Each round sends the
// transcript so far and expects either one action line or a final answer.
// Unknown tools, bad calls and tool errors become observations for the next
// round. When the budget runs out the last reply (or the joined observations)
// is returned instead of an error. Only generation failures are returned.
func RunLoop(ctx context.Context, cfg LoopConfig, task string) (LoopResult, error) {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}

	var (
		res        LoopResult
		transcript strings.Builder
		lastReply  string
	)
	transcript.WriteString(loopPreamble(cfg.Registry, task))

	for round := 1; round <= cfg.MaxRounds; round++ {
		res.Rounds = round
		reply, err := cfg.Generator.Generate(ctx, ports.GenerateRequest{
			Prompt:      transcript.String(),
			System:      cfg.System,
			Temperature: cfg.Temperature,
			Model:       cfg.Model,
		})
		if err != nil {
			return res, err
		}
		lastReply = reply

		parsed, perr := protocol.ParseReply(reply, cfg.Registry.Names()...)
		var observation string
		switch {
		case parsed.Kind == protocol.ReplyFinal:
			res.Answer = parsed.Final
			return res, nil
		case parsed.Kind == protocol.ReplyAction:
			observation = callTool(ctx, cfg.Registry, parsed.Action)
			cfg.Logger.Debug("tool call", "tool", parsed.Action.Name, "round", round)
		case isLongReply(reply):
			if perr != nil {
				cfg.Logger.Debug("long reply with a malformed call accepted", "round", round, "error", perr)
			}
			res.Answer = strings.TrimSpace(reply)
			return res, nil
		case perr != nil:
			observation = "Error: " + perr.Error()
		default:
			observation = fmt.Sprintf("No action or %q found. Call a tool or give the final answer.", protocol.FinalMarker)
		}

		res.Observations = append(res.Observations, observation)
		fmt.Fprintf(&transcript, "\n%s\nObservation: %s\n", strings.TrimSpace(reply), observation)
	}

	res.Exhausted = true
	cfg.Logger.Warn("tool loop exhausted", "rounds", res.Rounds)
	res.Answer = strings.TrimSpace(lastReply)
	if res.Answer == "" {
		res.Answer = strings.Join(res.Observations, "\n\n")
	}
	return res, nil
}

func isLongReply(reply string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(reply)) >= LongReplyThreshold
}

func callTool(ctx context.Context, reg *Registry, action protocol.Action) string {
	tool, ok := reg.Get(action.Name)
	if !ok {
		return fmt.Sprintf("Unknown tool: %s. Available tools: %s", action.Name, strings.Join(reg.Names(), ", "))
	}
	out, err := tool.Call(ctx, action.Args)
	if err != nil {
		var te *ToolError
		if errors.As(err, &te) {
			return "Error: " + te.Error()
		}
		return fmt.Sprintf("Error: %s failed: %v", action.Name, err)
	}
	return out
}

func loopPreamble(reg *Registry, task string) string {
	return fmt.Sprintf(`You can use these tools:
%s
To use a tool, reply with exactly one line of the form:
Action: tool_name(arg="value", ...)
You will then receive an Observation. When you are done, reply with:
%s <your answer>

Task:
%s
`, reg.Describe(), protocol.FinalMarker, task)
}
