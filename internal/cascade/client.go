// Package cascade drives the language server's session-based chat flow: a
// StartCascade / SendUserCascadeMessage / GetCascadeTrajectorySteps triple
// per completion, over hand-framed gRPC on loopback HTTP/2.
package cascade

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/windlink/internal/creds"
	"github.com/nextlevelbuilder/windlink/internal/discovery"
	"github.com/nextlevelbuilder/windlink/internal/models"
	"github.com/nextlevelbuilder/windlink/internal/wire"
)

const (
	// pollInterval spaces trajectory polls; pollAttempts bounds the wait at
	// roughly ninety seconds of wall clock.
	pollInterval = 1500 * time.Millisecond
	pollAttempts = 60

	// cascadeSourceChat marks the session as interactive-chat originated.
	cascadeSourceChat = 3
)

// Session executes exactly one completion: Start, Send, then Poll until
// assistant text appears. Sessions are never reused.
type Session struct {
	creds  *creds.Credentials
	fields discovery.FieldMap
}

// NewSession binds resolved credentials and the discovered field layout for
// one request.
func NewSession(c *creds.Credentials, fm discovery.FieldMap) *Session {
	return &Session{creds: c, fields: fm}
}

// Run executes the session state machine and delivers the assistant text
// through onChunk. The current backend yields a single final chunk; the
// callback shape leaves room for incremental backends without changing
// callers.
func (s *Session) Run(ctx context.Context, text string, model models.Resolved, onChunk func(string)) error {
	tracer := otel.Tracer("windlink/cascade")
	ctx, span := tracer.Start(ctx, "cascade.run")
	span.SetAttributes(attribute.String("model", model.CanonicalID))
	defer span.End()

	cascadeID, err := s.start(ctx)
	if err != nil {
		return err
	}
	slog.Debug("cascade started", "cascade_id", cascadeID)

	if err := s.send(ctx, cascadeID, text, model); err != nil {
		return err
	}

	reply, err := s.poll(ctx, cascadeID)
	if err != nil {
		return err
	}
	onChunk(reply)
	return nil
}

func (s *Session) start(ctx context.Context) (string, error) {
	var payload []byte
	payload = wire.AppendMessageField(payload, 1, buildMetadata(s.creds, s.fields))
	payload = wire.AppendVarintField(payload, 4, cascadeSourceChat)

	body, err := s.post(ctx, "StartCascade", payload)
	if err != nil {
		return "", err
	}

	frames := wire.Unframe(body)
	if len(frames) == 0 {
		return "", &StreamError{Msg: "StartCascade: empty response"}
	}
	cascadeID := wire.String(wire.Fields(frames[0]), 1)
	if cascadeID == "" {
		return "", &StreamError{Msg: "StartCascade: no cascade id in response"}
	}
	return cascadeID, nil
}

func (s *Session) send(ctx context.Context, cascadeID, text string, model models.Resolved) error {
	if text == "" {
		text = "Hello"
	}

	item := wire.AppendStringField(nil, 1, text)

	// CascadeConfig → PlannerConfig: field 2 selects conversational mode
	// (empty sub-message), field 35 names the model. Omitting the config
	// crashes the RPC on the vendor side.
	plannerCfg := wire.AppendMessageField(nil, 2, nil)
	plannerCfg = wire.AppendStringField(plannerCfg, 35, models.ProtoModelName(model))
	cascadeCfg := wire.AppendMessageField(nil, 1, plannerCfg)

	var payload []byte
	payload = wire.AppendStringField(payload, 1, cascadeID)
	payload = wire.AppendMessageField(payload, 2, item)
	payload = wire.AppendMessageField(payload, 3, buildMetadata(s.creds, s.fields))
	payload = wire.AppendMessageField(payload, 5, cascadeCfg)

	_, err := s.post(ctx, "SendUserCascadeMessage", payload)
	return err
}

// poll fetches trajectory steps until assistant text appears. Individual
// poll failures are expected while inference is in progress and are
// swallowed; the loop ends early only when ctx is done, otherwise when the
// attempts run out.
func (s *Session) poll(ctx context.Context, cascadeID string) (string, error) {
	var payload []byte
	payload = wire.AppendStringField(payload, 1, cascadeID)
	payload = wire.AppendVarintField(payload, 2, 0)

	limiter := rate.NewLimiter(rate.Every(pollInterval), 1)
	for attempt := 0; attempt < pollAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return "", creds.Wrap(creds.CodeStreamError, "poll canceled", err)
		}

		body, err := s.post(ctx, "GetCascadeTrajectorySteps", payload)
		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			slog.Debug("poll attempt failed", "attempt", attempt, "error", err)
			continue
		}
		if text := ExtractResponse(body); text != "" {
			return text, nil
		}
	}
	return "", &StreamError{Msg: "polling timed out waiting for planner response"}
}
