// Package planner simulates tool calling over a backend that has none. When
// a request carries tools, the bridge sends the model a constrained
// instruction built here and parses the reply back into either a tool
// invocation or a final answer.
package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/windlink/internal/oai"
)

// Active reports whether the request needs the planner: a tools array, a
// prior tool-result message, or a prior assistant message that called tools.
func Active(req *oai.ChatRequest) bool {
	if len(req.Tools) > 0 {
		return true
	}
	for _, m := range req.Messages {
		if m.Role == "tool" {
			return true
		}
		if m.Role == "assistant" && len(m.ToolCalls) > 0 {
			return true
		}
	}
	return false
}

// Plan is the parsed planner reply.
type Plan struct {
	Action  string `json:"action"` // "final" or "tool_call"
	Content string `json:"content,omitempty"`
	Calls   []Call `json:"tool_calls,omitempty"`
}

// Call is one requested tool invocation. Arguments is the decoded JSON
// value after normalization.
type Call struct {
	Name      string `json:"name"`
	Arguments any    `json:"arguments"`
}

const preamble = `You are an AI assistant that can use tools. ` +
	`Decide whether the user's request needs a tool or can be answered directly.`

const outputRules = `Respond with exactly one JSON object and nothing else. No markdown fences, no tags, no commentary.
To call tools: {"action":"tool_call","tool_calls":[{"name":"<tool>","arguments":{...}}]}
To answer directly: {"action":"final","content":"<answer>"}
Arguments must match the tool's parameter schema.`

// BuildPrompt renders the planner instruction: preamble, system text, tool
// catalog, output rules, and the conversation with role labels.
func BuildPrompt(msgs []oai.Message, tools []oai.Tool) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n\n")

	if sys := systemText(msgs); sys != "" {
		b.WriteString(sys)
		b.WriteString("\n\n")
	}

	if len(tools) > 0 {
		b.WriteString("Available tools:\n")
		for _, t := range tools {
			b.WriteString("- ")
			b.WriteString(t.Function.Name)
			if t.Function.Description != "" {
				b.WriteString(": ")
				b.WriteString(t.Function.Description)
			}
			b.WriteString("\n")
			if len(t.Function.Parameters) > 0 {
				if schema, err := json.MarshalIndent(t.Function.Parameters, "  ", "  "); err == nil {
					b.WriteString("  ")
					b.Write(schema)
					b.WriteString("\n")
				}
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(outputRules)
	b.WriteString("\n\nConversation so far:\n")
	for _, m := range msgs {
		switch m.Role {
		case "system":
			// already rendered above
		case "user":
			fmt.Fprintf(&b, "user: %s\n", m.Content.Text())
		case "assistant":
			if len(m.ToolCalls) > 0 {
				for _, tc := range m.ToolCalls {
					fmt.Fprintf(&b, "assistant called %s with %s\n", tc.Function.Name, tc.Function.Arguments)
				}
			}
			if txt := m.Content.Text(); txt != "" {
				fmt.Fprintf(&b, "assistant: %s\n", txt)
			}
		case "tool":
			name := m.Name
			if name == "" {
				name = m.ToolCallID
			}
			fmt.Fprintf(&b, "tool result (%s): %s\n", name, m.Content.Text())
		}
	}
	b.WriteString("\nYour JSON response:")
	return b.String()
}

func systemText(msgs []oai.Message) string {
	var parts []string
	for _, m := range msgs {
		if m.Role == "system" {
			if txt := m.Content.Text(); txt != "" {
				parts = append(parts, txt)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// Parse extracts a plan from the model's reply. It tries the first-{ to
// last-} substring as JSON, then the tagged <tool_call> fallback. A nil
// return means the caller should treat the raw text as a final answer.
func Parse(reply string) *Plan {
	if p := parseJSON(reply); p != nil {
		return p
	}
	if calls := parseTagged(reply); len(calls) > 0 {
		return &Plan{Action: "tool_call", Calls: calls}
	}
	return nil
}

func parseJSON(reply string) *Plan {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return nil
	}

	var raw struct {
		Action    string          `json:"action"`
		Content   json.RawMessage `json:"content"`
		ToolCalls []struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"tool_calls"`
	}
	if err := json.Unmarshal([]byte(reply[start:end+1]), &raw); err != nil {
		return nil
	}

	switch raw.Action {
	case "final":
		var content string
		if err := json.Unmarshal(raw.Content, &content); err != nil {
			return nil
		}
		return &Plan{Action: "final", Content: content}
	case "tool_call":
		if len(raw.ToolCalls) == 0 {
			return nil
		}
		plan := &Plan{Action: "tool_call"}
		for _, tc := range raw.ToolCalls {
			if tc.Name == "" {
				return nil
			}
			var args any
			if len(tc.Arguments) > 0 {
				if err := json.Unmarshal(tc.Arguments, &args); err != nil {
					return nil
				}
			}
			plan.Calls = append(plan.Calls, Call{Name: tc.Name, Arguments: NormalizeArgs(args)})
		}
		return plan
	default:
		return nil
	}
}

// parseTagged scans for "<tool_call>name {json}" patterns, the shape some
// models emit despite the no-tags rule.
func parseTagged(reply string) []Call {
	var calls []Call
	rest := reply
	for {
		i := strings.Index(rest, "<tool_call>")
		if i < 0 {
			return calls
		}
		rest = rest[i+len("<tool_call>"):]

		trimmed := strings.TrimLeft(rest, " \t\r\n")
		nameEnd := strings.IndexAny(trimmed, " \t\r\n{")
		if nameEnd <= 0 {
			continue
		}
		name := trimmed[:nameEnd]

		braceStart := strings.Index(trimmed, "{")
		if braceStart < 0 {
			continue
		}
		obj, ok := balancedObject(trimmed[braceStart:])
		if !ok {
			continue
		}
		var args any
		if err := json.Unmarshal([]byte(obj), &args); err != nil {
			continue
		}
		calls = append(calls, Call{Name: name, Arguments: NormalizeArgs(args)})
		rest = trimmed[braceStart+len(obj):]
	}
}

// balancedObject returns the prefix of s spanning one brace-balanced JSON
// object, string-aware.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}

// NormalizeArgs opportunistically decodes string values that are themselves
// JSON, recursing into containers. The looks-like-JSON test is conservative:
// matching outer braces and a clean parse, otherwise the string stays as-is.
func NormalizeArgs(v any) any {
	switch val := v.(type) {
	case string:
		if looksLikeJSON(val) {
			var inner any
			if err := json.Unmarshal([]byte(val), &inner); err == nil {
				return NormalizeArgs(inner)
			}
		}
		return val
	case []any:
		for i := range val {
			val[i] = NormalizeArgs(val[i])
		}
		return val
	case map[string]any:
		for k := range val {
			val[k] = NormalizeArgs(val[k])
		}
		return val
	default:
		return v
	}
}

func looksLikeJSON(s string) bool {
	t := strings.TrimSpace(s)
	if len(t) < 2 {
		return false
	}
	first, last := t[0], t[len(t)-1]
	return (first == '{' && last == '}') || (first == '[' && last == ']')
}
