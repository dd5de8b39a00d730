package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/windlink/internal/oai"
	"github.com/nextlevelbuilder/windlink/internal/planner"
)

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.handleNotFound(w, r)
		return
	}

	var req oai.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages is required")
		return
	}

	if req.Stream {
		s.streamCompletion(w, r, &req)
		return
	}
	s.completeOnce(w, r, &req)
}

// emitState keeps the identifiers stable across every chunk of one
// response. The model field echoes the client's requested string, never the
// resolved canonical id.
type emitState struct {
	id      string
	created int64
	model   string
}

func newEmitState(requested string) emitState {
	return emitState{
		id:      "chatcmpl-" + uuid.NewString(),
		created: time.Now().Unix(),
		model:   requested,
	}
}

func (e emitState) chunk(delta oai.Delta, finish *string) oai.Chunk {
	return oai.Chunk{
		ID:      e.id,
		Object:  "chat.completion.chunk",
		Created: e.created,
		Model:   e.model,
		Choices: []oai.ChunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
	}
}

func (s *Server) completeOnce(w http.ResponseWriter, r *http.Request, req *oai.ChatRequest) {
	res, err := s.engine.Complete(r.Context(), req, nil)
	if err != nil {
		writeTaggedError(w, err)
		return
	}

	state := newEmitState(req.Model)
	choice := oai.Choice{
		Message:      oai.AssistantMessage{Role: "assistant", Content: res.Text},
		FinishReason: "stop",
	}
	if res.Plan != nil {
		choice.Message.Content = ""
		choice.Message.ToolCalls = planToolCalls(res.Plan)
		choice.FinishReason = "tool_calls"
	}

	writeJSON(w, http.StatusOK, oai.ChatCompletion{
		ID:      state.id,
		Object:  "chat.completion",
		Created: state.created,
		Model:   state.model,
		Choices: []oai.Choice{choice},
	})
}

func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, req *oai.ChatRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	state := newEmitState(req.Model)
	headersSent := false
	sendHeaders := func() {
		if headersSent {
			return
		}
		headersSent = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}

	emit := func(v any) {
		sendHeaders()
		data, err := json.Marshal(v)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	res, err := s.engine.Complete(r.Context(), req, func(delta string) {
		if r.Context().Err() != nil {
			// Client went away: discard further chunks.
			return
		}
		emit(state.chunk(oai.Delta{Content: delta}, nil))
	})
	if err != nil {
		if !headersSent {
			writeTaggedError(w, err)
			return
		}
		// Mid-stream failure: nothing valid left to say, close the stream.
		slog.Warn("stream aborted", "error", err)
		return
	}

	finish := "stop"
	if res.Plan != nil {
		emit(state.chunk(oai.Delta{ToolCalls: deltaToolCalls(res.Plan)}, nil))
		finish = "tool_calls"
	} else if res.Text != "" && planner.Active(req) {
		// Planner-mode final answers were buffered, not streamed; emit the
		// whole text as one chunk.
		emit(state.chunk(oai.Delta{Content: res.Text}, nil))
	}

	emit(state.chunk(oai.Delta{}, &finish))
	sendHeaders()
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// planToolCalls renders a plan in non-streaming OpenAI shape. Arguments are
// always re-serialized to strings.
func planToolCalls(p *planner.Plan) []oai.ToolCall {
	out := make([]oai.ToolCall, len(p.Calls))
	for i, call := range p.Calls {
		args, _ := json.Marshal(call.Arguments)
		out[i] = oai.ToolCall{
			ID:   "call_" + uuid.NewString()[:8],
			Type: "function",
			Function: oai.ToolCallFunction{
				Name:      call.Name,
				Arguments: string(args),
			},
		}
	}
	return out
}

// deltaToolCalls renders a plan as one streamed delta with indexed entries.
func deltaToolCalls(p *planner.Plan) []oai.DeltaToolCall {
	out := make([]oai.DeltaToolCall, len(p.Calls))
	for i, call := range planToolCalls(p) {
		out[i] = oai.DeltaToolCall{
			Index:    i,
			ID:       call.ID,
			Type:     call.Type,
			Function: call.Function,
		}
	}
	return out
}
