package cascade

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/http2"

	"github.com/nextlevelbuilder/windlink/internal/creds"
	"github.com/nextlevelbuilder/windlink/internal/wire"
)

const servicePrefix = "/exa.language_server_pb.LanguageServerService/"

// rpcTimeout bounds one unary call. Generation latency lives in the polling
// loop, not in any single RPC.
const rpcTimeout = 30 * time.Second

// StreamError is a non-OK gRPC outcome: a bad trailer status, an empty
// cascade id, or a polling timeout.
type StreamError struct {
	GRPCStatus  int
	GRPCMessage string
	Msg         string
}

func (e *StreamError) Error() string {
	if e.GRPCMessage != "" {
		return fmt.Sprintf("STREAM_ERROR: %s (grpc-status %d: %s)", e.Msg, e.GRPCStatus, e.GRPCMessage)
	}
	return "STREAM_ERROR: " + e.Msg
}

// newH2CClient builds an HTTP/2 cleartext client. The language server speaks
// h2c on loopback; the standard transport refuses that, so the http2
// transport is used directly with a plain-TCP dial.
func newH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}

// post performs one unary gRPC call and returns the raw (still framed)
// response body. Each call gets its own client session, closed on return —
// connection setup cost is dwarfed by inference latency.
func (s *Session) post(ctx context.Context, method string, payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	target := fmt.Sprintf("http://127.0.0.1:%d%s%s", s.creds.GRPCPort, servicePrefix, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(wire.Frame(payload)))
	if err != nil {
		return nil, creds.Wrap(creds.CodeConnectionFailed, "build request", err)
	}
	req.Header.Set("Content-Type", "application/grpc")
	req.Header.Set("TE", "trailers")
	req.Header.Set("Grpc-Accept-Encoding", "identity,gzip")
	req.Header.Set("X-Codeium-Csrf-Token", s.creds.CSRFToken)

	client := newH2CClient()
	defer client.CloseIdleConnections()

	resp, err := client.Do(req)
	if err != nil {
		return nil, creds.Wrap(creds.CodeConnectionFailed, method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, creds.Wrap(creds.CodeConnectionFailed, method+" read body", err)
	}

	status, message := grpcStatus(resp)
	if status != 0 {
		return nil, &StreamError{GRPCStatus: status, GRPCMessage: message, Msg: method}
	}
	return body, nil
}

// grpcStatus reads the trailer status. Trailers-only responses put it in the
// header block instead, so both are consulted.
func grpcStatus(resp *http.Response) (int, string) {
	get := func(key string) string {
		if v := resp.Trailer.Get(key); v != "" {
			return v
		}
		return resp.Header.Get(key)
	}
	raw := get("Grpc-Status")
	if raw == "" {
		return 0, ""
	}
	status, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ""
	}
	message := get("Grpc-Message")
	if decoded, err := url.PathUnescape(message); err == nil {
		message = decoded
	}
	return status, message
}
