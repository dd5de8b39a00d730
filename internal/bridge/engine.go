// Package bridge turns one OpenAI chat request into one Cascade session:
// model resolution, prompt shaping (planner or plain), the session run, and
// reply interpretation.
package bridge

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/windlink/internal/cascade"
	"github.com/nextlevelbuilder/windlink/internal/creds"
	"github.com/nextlevelbuilder/windlink/internal/discovery"
	"github.com/nextlevelbuilder/windlink/internal/models"
	"github.com/nextlevelbuilder/windlink/internal/oai"
	"github.com/nextlevelbuilder/windlink/internal/planner"
)

// Runner executes one Cascade session. Tests substitute a fake; production
// uses newSession.
type Runner func(ctx context.Context, text string, model models.Resolved, onChunk func(string)) error

// Engine serves completions. Safe for concurrent use; each request drives
// its own session.
type Engine struct {
	resolver *creds.Resolver
	run      Runner
}

// New builds an engine over the OS-backed credential resolver.
func New(resolver *creds.Resolver) *Engine {
	e := &Engine{resolver: resolver}
	e.run = e.newSession
	return e
}

// NewWithRunner injects a session runner, for tests.
func NewWithRunner(resolver *creds.Resolver, run Runner) *Engine {
	return &Engine{resolver: resolver, run: run}
}

func (e *Engine) newSession(ctx context.Context, text string, model models.Resolved, onChunk func(string)) error {
	c, err := e.resolver.Credentials(ctx)
	if err != nil {
		return err
	}
	err = cascade.NewSession(c, discovery.Load()).Run(ctx, text, model, onChunk)

	// A dead connection usually means the language server restarted on a
	// new port; drop the cache so the next request re-inspects.
	var cerr *creds.Error
	if errors.As(err, &cerr) && cerr.Code == creds.CodeConnectionFailed {
		e.resolver.Invalidate()
	}
	return err
}

// Result is the interpreted outcome of one completion.
type Result struct {
	Text string        // assistant text (planner "final" content, or raw reply)
	Plan *planner.Plan // non-nil only when the planner requested tool calls
}

// Complete runs one request. In plain mode, onDelta receives content chunks
// as the backend yields them; in planner mode the full reply is buffered for
// parsing and onDelta is not called.
func (e *Engine) Complete(ctx context.Context, req *oai.ChatRequest, onDelta func(string)) (*Result, error) {
	tracer := otel.Tracer("windlink/bridge")
	ctx, span := tracer.Start(ctx, "chat.completion")
	span.SetAttributes(attribute.String("model.requested", req.Model))
	defer span.End()

	model := models.Resolve(req.Model, req.Variant())
	usePlanner := planner.Active(req)

	var outbound string
	if usePlanner {
		outbound = planner.BuildPrompt(req.Messages, req.Tools)
	} else {
		outbound = JoinMessages(req.Messages)
	}

	var buf strings.Builder
	err := e.run(ctx, outbound, model, func(chunk string) {
		buf.WriteString(chunk)
		if !usePlanner && onDelta != nil {
			onDelta(chunk)
		}
	})
	if err != nil {
		return nil, err
	}

	text := buf.String()
	if !usePlanner {
		return &Result{Text: text}, nil
	}

	plan := planner.Parse(text)
	switch {
	case plan == nil:
		// Nothing parsed: the raw reply is the answer.
		return &Result{Text: text}, nil
	case plan.Action == "final":
		return &Result{Text: plan.Content}, nil
	default:
		return &Result{Plan: plan}, nil
	}
}

// JoinMessages flattens the request history into the single outbound text
// item Cascade accepts: system content first, then user content, blank-line
// separated. Assistant and tool turns are dropped — each request starts a
// fresh session and carries no vendor-side history.
func JoinMessages(msgs []oai.Message) string {
	var parts []string
	for _, m := range msgs {
		if m.Role == "system" {
			if txt := m.Content.Text(); txt != "" {
				parts = append(parts, txt)
			}
		}
	}
	for _, m := range msgs {
		if m.Role == "user" {
			if txt := m.Content.Text(); txt != "" {
				parts = append(parts, txt)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}
