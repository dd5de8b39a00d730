package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/windlink/internal/bridge"
	"github.com/nextlevelbuilder/windlink/internal/config"
	"github.com/nextlevelbuilder/windlink/internal/creds"
	"github.com/nextlevelbuilder/windlink/internal/models"
	"github.com/nextlevelbuilder/windlink/internal/oai"
)

type stubInspector struct {
	procs []creds.Process
	ports []int
}

func (s stubInspector) LanguageServers(ctx context.Context) ([]creds.Process, error) {
	return s.procs, nil
}

func (s stubInspector) ListeningPorts(ctx context.Context, pid int) ([]int, error) {
	return s.ports, nil
}

func workingResolver() *creds.Resolver {
	ins := stubInspector{
		procs: []creds.Process{{PID: 1, CommandLine: "language_server_linux_x64 --csrf_token tok --extension_server_port 42100"}},
		ports: []int{42103},
	}
	return creds.NewResolverWith(ins, func(ctx context.Context) (string, error) { return "sk-test", nil })
}

func brokenResolver() *creds.Resolver {
	return creds.NewResolverWith(stubInspector{}, func(ctx context.Context) (string, error) { return "", nil })
}

func startServer(t *testing.T, engine *bridge.Engine, resolver *creds.Resolver) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	base, err := StartTestServer(New(config.Default(), engine, resolver), ctx)
	if err != nil {
		t.Fatal(err)
	}
	return base
}

func replyEngine(reply string) *bridge.Engine {
	return bridge.NewWithRunner(nil, func(ctx context.Context, text string, model models.Resolved, onChunk func(string)) error {
		onChunk(reply)
		return nil
	})
}

// readSSE collects the data payloads of an event stream.
func readSSE(t *testing.T, body io.Reader) []string {
	t.Helper()
	var events []string
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			events = append(events, data)
		}
	}
	return events
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestChatCompletions_Streaming(t *testing.T) {
	base := startServer(t, replyEngine("hello"), workingResolver())

	resp := postJSON(t, base+"/v1/chat/completions", map[string]any{
		"model":    "claude-4.6-opus",
		"stream":   true,
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
	})
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	events := readSSE(t, resp.Body)
	if len(events) != 3 {
		t.Fatalf("got %d events, want content + stop + DONE: %v", len(events), events)
	}

	var first oai.Chunk
	if err := json.Unmarshal([]byte(events[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first.Object != "chat.completion.chunk" || !strings.HasPrefix(first.ID, "chatcmpl-") {
		t.Errorf("chunk envelope: %+v", first)
	}
	if first.Model != "claude-4.6-opus" {
		t.Errorf("model echo = %q (must echo requested string)", first.Model)
	}
	if first.Choices[0].Delta.Content != "hello" || first.Choices[0].FinishReason != nil {
		t.Errorf("first chunk: %+v", first.Choices[0])
	}

	var stop oai.Chunk
	if err := json.Unmarshal([]byte(events[1]), &stop); err != nil {
		t.Fatal(err)
	}
	if stop.ID != first.ID || stop.Created != first.Created {
		t.Error("chunk identifiers must be stable across one response")
	}
	if stop.Choices[0].FinishReason == nil || *stop.Choices[0].FinishReason != "stop" {
		t.Errorf("stop chunk: %+v", stop.Choices[0])
	}
	if stop.Choices[0].Delta.Content != "" || len(stop.Choices[0].Delta.ToolCalls) != 0 {
		t.Error("terminal chunk must carry an empty delta")
	}

	if events[2] != "[DONE]" {
		t.Errorf("terminator = %q", events[2])
	}
}

func TestChatCompletions_StreamingToolPlan(t *testing.T) {
	reply := `text before {"action":"tool_call","tool_calls":[{"name":"read_file","arguments":"{\"path\":\"a.txt\"}"}]} text after`
	base := startServer(t, replyEngine(reply), workingResolver())

	resp := postJSON(t, base+"/v1/chat/completions", map[string]any{
		"model":  "claude-4.6-opus",
		"stream": true,
		"messages": []map[string]any{
			{"role": "user", "content": "read a.txt"},
		},
		"tools": []map[string]any{{
			"type":     "function",
			"function": map[string]any{"name": "read_file"},
		}},
	})
	defer resp.Body.Close()

	events := readSSE(t, resp.Body)
	if len(events) != 3 {
		t.Fatalf("got %d events: %v", len(events), events)
	}

	var chunk oai.Chunk
	if err := json.Unmarshal([]byte(events[0]), &chunk); err != nil {
		t.Fatal(err)
	}
	calls := chunk.Choices[0].Delta.ToolCalls
	if len(calls) != 1 || calls[0].Function.Name != "read_file" {
		t.Fatalf("tool calls: %+v", calls)
	}
	if calls[0].Function.Arguments != `{"path":"a.txt"}` {
		t.Errorf("arguments = %q", calls[0].Function.Arguments)
	}
	if calls[0].Index != 0 || calls[0].ID == "" {
		t.Errorf("call entry: %+v", calls[0])
	}

	var stop oai.Chunk
	json.Unmarshal([]byte(events[1]), &stop)
	if stop.Choices[0].FinishReason == nil || *stop.Choices[0].FinishReason != "tool_calls" {
		t.Errorf("finish = %+v", stop.Choices[0].FinishReason)
	}
}

func TestChatCompletions_NonStreaming(t *testing.T) {
	base := startServer(t, replyEngine("final answer"), workingResolver())

	resp := postJSON(t, base+"/v1/chat/completions", map[string]any{
		"model":    "gpt-5.2",
		"messages": []map[string]any{{"role": "user", "content": "q"}},
	})
	defer resp.Body.Close()

	var out oai.ChatCompletion
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Object != "chat.completion" || out.Model != "gpt-5.2" {
		t.Errorf("envelope: %+v", out)
	}
	if len(out.Choices) != 1 || out.Choices[0].Message.Content != "final answer" {
		t.Errorf("choices: %+v", out.Choices)
	}
	if out.Choices[0].FinishReason != "stop" {
		t.Errorf("finish = %q", out.Choices[0].FinishReason)
	}
}

func TestChatCompletions_MissingMessages(t *testing.T) {
	base := startServer(t, replyEngine("x"), workingResolver())

	resp := postJSON(t, base+"/v1/chat/completions", map[string]any{"model": "m"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}

	var body oai.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Type != "windsurf_error" || body.Error.Message == "" {
		t.Errorf("error body: %+v", body)
	}
}

func TestChatCompletions_NotRunning503(t *testing.T) {
	resolver := brokenResolver()
	base := startServer(t, bridge.New(resolver), resolver)

	resp := postJSON(t, base+"/v1/chat/completions", map[string]any{
		"model":    "m",
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d", resp.StatusCode)
	}

	var body oai.ErrorResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if !strings.Contains(body.Error.Message, "NOT_RUNNING") {
		t.Errorf("message = %q", body.Error.Message)
	}
}

func TestChatCompletions_StreamErrorBeforeHeaders(t *testing.T) {
	engine := bridge.NewWithRunner(nil, func(ctx context.Context, text string, model models.Resolved, onChunk func(string)) error {
		return errors.New("boom")
	})
	base := startServer(t, engine, workingResolver())

	resp := postJSON(t, base+"/v1/chat/completions", map[string]any{
		"model":    "m",
		"stream":   true,
		"messages": []map[string]any{{"role": "user", "content": "hi"}},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestModels_Listing(t *testing.T) {
	base := startServer(t, replyEngine("x"), workingResolver())

	for _, path := range []string{"/v1/models", "/models"} {
		resp, err := http.Get(base + path)
		if err != nil {
			t.Fatal(err)
		}
		var list oai.ModelList
		if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()

		if list.Object != "list" || len(list.Data) == 0 {
			t.Fatalf("%s: %+v", path, list)
		}
		found := false
		for _, m := range list.Data {
			if m.Object != "model" || m.OwnedBy != "windsurf" {
				t.Errorf("entry: %+v", m)
			}
			if m.ID == "claude-4.6-opus" && len(m.Variants) > 0 {
				found = true
			}
		}
		if !found {
			t.Error("variant catalog missing from listing")
		}
	}
}

func TestHealth(t *testing.T) {
	base := startServer(t, replyEngine("x"), workingResolver())

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		OK       bool `json:"ok"`
		Windsurf bool `json:"windsurf"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.OK || !body.Windsurf {
		t.Errorf("health = %+v", body)
	}
}

func TestHealth_WindsurfDown(t *testing.T) {
	base := startServer(t, replyEngine("x"), brokenResolver())

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health must stay 200, got %d", resp.StatusCode)
	}

	var body struct {
		OK       bool `json:"ok"`
		Windsurf bool `json:"windsurf"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if !body.OK || body.Windsurf {
		t.Errorf("health = %+v", body)
	}
}

func TestUnknownRoute404(t *testing.T) {
	base := startServer(t, replyEngine("x"), workingResolver())

	resp, err := http.Get(base + "/v1/embeddings")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
	var body oai.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Type != "windsurf_error" {
		t.Errorf("error body: %+v", body)
	}
}
