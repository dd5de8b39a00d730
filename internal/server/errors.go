package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nextlevelbuilder/windlink/internal/cascade"
	"github.com/nextlevelbuilder/windlink/internal/creds"
	"github.com/nextlevelbuilder/windlink/internal/oai"
)

// writeError emits the uniform OpenAI-shaped error body.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, oai.ErrorResponse{
		Error: oai.ErrorDetail{
			Message: message,
			Type:    "windsurf_error",
		},
	})
}

// writeTaggedError maps the bridge's error taxonomy onto HTTP status codes.
func writeTaggedError(w http.ResponseWriter, err error) {
	var serr *cascade.StreamError
	if errors.As(err, &serr) {
		msg := serr.Msg
		if serr.GRPCMessage != "" {
			msg = fmt.Sprintf("%s (grpc-status %d: %s)", serr.Msg, serr.GRPCStatus, serr.GRPCMessage)
		}
		writeError(w, http.StatusBadGateway, msg)
		return
	}

	var cerr *creds.Error
	if errors.As(err, &cerr) {
		switch cerr.Code {
		case creds.CodeNotRunning, creds.CodeCSRFMissing, creds.CodeAPIKeyMissing:
			writeError(w, http.StatusServiceUnavailable, cerr.Error())
		case creds.CodeConnectionFailed, creds.CodeStreamError:
			writeError(w, http.StatusBadGateway, cerr.Error())
		default:
			writeError(w, http.StatusInternalServerError, cerr.Error())
		}
		return
	}

	writeError(w, http.StatusInternalServerError, err.Error())
}
