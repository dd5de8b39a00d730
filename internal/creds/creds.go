// Package creds resolves everything the bridge needs to talk to the local
// Windsurf language server: the CSRF token and version from the server's
// command line, the gRPC port from the OS socket tables, and the API key
// from the IDE's persisted state. Nothing is written, only inspected.
package creds

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Code tags a resolution failure. The HTTP surface maps these onto status
// codes.
type Code string

const (
	CodeNotRunning       Code = "NOT_RUNNING"
	CodeCSRFMissing      Code = "CSRF_MISSING"
	CodeAPIKeyMissing    Code = "API_KEY_MISSING"
	CodeConnectionFailed Code = "CONNECTION_FAILED"
	CodeStreamError      Code = "STREAM_ERROR"
)

// Error is a tagged resolution or transport failure.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Errf builds a tagged error.
func Errf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap tags an underlying error.
func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Msg: msg, Err: err}
}

// Credentials is everything needed for one Cascade call.
type Credentials struct {
	CSRFToken string
	GRPCPort  int
	APIKey    string
	Version   string
}

// defaultVersion is reported when the language server's command line does
// not carry --windsurf_version.
const defaultVersion = "1.48.0"

// cacheTTL bounds how stale credentials may be. The language server restarts
// rarely, but a new port after a restart must be picked up quickly.
const cacheTTL = 5 * time.Second

// Resolver discovers and caches Credentials. Safe for concurrent use;
// concurrent cache misses collapse into one resolution.
type Resolver struct {
	inspector Inspector
	readKey   func(ctx context.Context) (string, error)

	mu        sync.Mutex
	cached    *Credentials
	fetchedAt time.Time
	group     singleflight.Group
}

// NewResolver builds a resolver backed by the running OS.
func NewResolver() *Resolver {
	return &Resolver{inspector: newInspector(), readKey: readAPIKey}
}

// NewResolverWith injects a custom inspector and key reader, for tests.
func NewResolverWith(ins Inspector, readKey func(ctx context.Context) (string, error)) *Resolver {
	return &Resolver{inspector: ins, readKey: readKey}
}

// Credentials returns cached credentials when fresh, otherwise resolves
// anew. Resolution does not retry; callers decide.
func (r *Resolver) Credentials(ctx context.Context) (*Credentials, error) {
	r.mu.Lock()
	if r.cached != nil && time.Since(r.fetchedAt) < cacheTTL {
		c := r.cached
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do("resolve", func() (any, error) {
		c, err := r.resolve(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cached = c
		r.fetchedAt = time.Now()
		r.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Credentials), nil
}

// Invalidate drops the cache. Called after a connection failure so the next
// request re-inspects the OS.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

func (r *Resolver) resolve(ctx context.Context) (*Credentials, error) {
	procs, err := r.inspector.LanguageServers(ctx)
	if err != nil {
		return nil, Wrap(CodeNotRunning, "enumerate language servers", err)
	}
	if len(procs) == 0 {
		return nil, Errf(CodeNotRunning, "windsurf language server not running")
	}

	// First match wins.
	proc := procs[0]
	csrf, extPort, version := parseServerArgs(proc.CommandLine)
	if csrf == "" {
		return nil, Errf(CodeCSRFMissing, "pid %d: no --csrf_token on command line", proc.PID)
	}
	if version == "" {
		version = defaultVersion
	}

	grpcPort := r.discoverGRPCPort(ctx, proc.PID, extPort)

	apiKey, err := r.readKey(ctx)
	if err != nil {
		return nil, Wrap(CodeAPIKeyMissing, "read api key", err)
	}

	slog.Debug("credentials resolved", "pid", proc.PID, "grpc_port", grpcPort, "version", version)
	return &Credentials{CSRFToken: csrf, GRPCPort: grpcPort, APIKey: apiKey, Version: version}, nil
}

// discoverGRPCPort applies the selection rule: among the pid's listening
// ports, the smallest strictly greater than extPort, else the smallest.
// When socket inspection yields nothing, extPort+3 is the observed offset
// on current builds.
func (r *Resolver) discoverGRPCPort(ctx context.Context, pid, extPort int) int {
	ports, err := r.inspector.ListeningPorts(ctx, pid)
	if err != nil || len(ports) == 0 {
		return extPort + 3
	}
	return pickGRPCPort(ports, extPort)
}

func pickGRPCPort(ports []int, extPort int) int {
	best := 0
	smallest := 0
	for _, p := range ports {
		if smallest == 0 || p < smallest {
			smallest = p
		}
		if p > extPort && (best == 0 || p < best) {
			best = p
		}
	}
	if best != 0 {
		return best
	}
	return smallest
}

// parseServerArgs pulls the bridge-relevant flags out of the language
// server's command line. Both "--flag value" and "--flag=value" forms occur.
func parseServerArgs(cmdline string) (csrf string, extPort int, version string) {
	tokens := strings.Fields(cmdline)
	value := func(i int, name string) (string, bool) {
		tok := tokens[i]
		if v, ok := strings.CutPrefix(tok, name+"="); ok {
			return v, true
		}
		if tok == name && i+1 < len(tokens) {
			return tokens[i+1], true
		}
		return "", false
	}
	for i := range tokens {
		if v, ok := value(i, "--csrf_token"); ok {
			csrf = v
		}
		if v, ok := value(i, "--extension_server_port"); ok {
			if p, err := strconv.Atoi(v); err == nil {
				extPort = p
			}
		}
		if v, ok := value(i, "--windsurf_version"); ok {
			// Strip the build suffix: "1.48.0+win.2" → "1.48.0".
			version, _, _ = strings.Cut(v, "+")
		}
	}
	return csrf, extPort, version
}
