package planner

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/windlink/internal/oai"
)

func TestActive(t *testing.T) {
	tests := []struct {
		name string
		req  oai.ChatRequest
		want bool
	}{
		{"no tools", oai.ChatRequest{Messages: []oai.Message{{Role: "user"}}}, false},
		{"tools present", oai.ChatRequest{Tools: []oai.Tool{{Type: "function"}}}, true},
		{"tool result in history", oai.ChatRequest{Messages: []oai.Message{{Role: "tool"}}}, true},
		{"assistant tool_calls in history", oai.ChatRequest{Messages: []oai.Message{
			{Role: "assistant", ToolCalls: []oai.ToolCall{{ID: "call_1"}}},
		}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Active(&tt.req); got != tt.want {
				t.Errorf("Active = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildPrompt_Sections(t *testing.T) {
	msgs := []oai.Message{
		{Role: "system", Content: oai.NewContent("Be terse.")},
		{Role: "user", Content: oai.NewContent("read a.txt")},
		{Role: "assistant", ToolCalls: []oai.ToolCall{{
			ID: "call_1", Type: "function",
			Function: oai.ToolCallFunction{Name: "read_file", Arguments: `{"path":"a.txt"}`},
		}}},
		{Role: "tool", Name: "read_file", Content: oai.NewContent("contents")},
	}
	tools := []oai.Tool{{
		Type: "function",
		Function: oai.ToolFunction{
			Name:        "read_file",
			Description: "Read a file",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
			},
		},
	}}

	prompt := BuildPrompt(msgs, tools)
	for _, want := range []string{
		"Be terse.",
		"- read_file: Read a file",
		`"path"`,
		"exactly one JSON object",
		"user: read a.txt",
		"assistant called read_file",
		"tool result (read_file): contents",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q\n%s", want, prompt)
		}
	}
}

func TestParse_Final(t *testing.T) {
	p := Parse(`some preface {"action":"final","content":"done"} trailing`)
	if p == nil || p.Action != "final" || p.Content != "done" {
		t.Fatalf("got %+v", p)
	}
}

func TestParse_ToolCallWithStringArgs(t *testing.T) {
	reply := `text before {"action":"tool_call","tool_calls":[{"name":"read_file","arguments":"{\"path\":\"a.txt\"}"}]} text after`
	p := Parse(reply)
	if p == nil || p.Action != "tool_call" || len(p.Calls) != 1 {
		t.Fatalf("got %+v", p)
	}
	if p.Calls[0].Name != "read_file" {
		t.Errorf("name = %q", p.Calls[0].Name)
	}
	// String arguments that look like JSON are decoded.
	args, ok := p.Calls[0].Arguments.(map[string]any)
	if !ok || args["path"] != "a.txt" {
		t.Errorf("arguments = %#v", p.Calls[0].Arguments)
	}
}

func TestParse_TaggedFallback(t *testing.T) {
	reply := "I will use a tool.\n<tool_call>read_file {\"path\": \"a.txt\"}\n<tool_call>list_dir {\"path\": \"/tmp\"}"
	p := Parse(reply)
	if p == nil || p.Action != "tool_call" {
		t.Fatalf("got %+v", p)
	}
	if len(p.Calls) != 2 || p.Calls[0].Name != "read_file" || p.Calls[1].Name != "list_dir" {
		t.Errorf("calls = %+v", p.Calls)
	}
}

func TestParse_Unparseable(t *testing.T) {
	for _, reply := range []string{
		"just plain text",
		`{"action":"other","content":"x"}`,
		`{"action":"tool_call","tool_calls":[]}`,
		`{"action":"final","content":42}`,
	} {
		if p := Parse(reply); p != nil {
			t.Errorf("Parse(%q) = %+v, want nil", reply, p)
		}
	}
}

func TestParse_FinalRoundTrip(t *testing.T) {
	replies := []string{
		`{"action":"final","content":"the answer"}`,
		`{"action":"tool_call","tool_calls":[{"name":"f","arguments":{"a":1}}]}`,
	}
	for _, reply := range replies {
		first := Parse(reply)
		if first == nil {
			t.Fatalf("Parse(%q) = nil", reply)
		}
		encoded, err := json.Marshal(first)
		if err != nil {
			t.Fatal(err)
		}
		second := Parse(string(encoded))
		if !reflect.DeepEqual(first, second) {
			t.Errorf("round trip: %+v != %+v", first, second)
		}
	}
}

func TestNormalizeArgs(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"plain string stays", "hello", "hello"},
		{"json object string decodes", `{"k":"v"}`, map[string]any{"k": "v"}},
		{"json array string decodes", `[1,2]`, []any{float64(1), float64(2)}},
		{"malformed braces stay", "{not json}", "{not json}"},
		{"nested map recurses", map[string]any{"inner": `{"x":1}`}, map[string]any{"inner": map[string]any{"x": float64(1)}}},
		{"number passes through", float64(3), float64(3)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeArgs(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}
