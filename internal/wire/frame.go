package wire

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
)

// gRPC frame compression bytes. Anything else is treated as identity — the
// language server has only ever been seen sending 0 and 1.
const (
	compressionIdentity = 0
	compressionGzip     = 1
)

// Unframe splits a gRPC response body into message payloads. A body may
// carry several concatenated frames; iteration stops silently when fewer
// than five bytes remain or a declared length overruns the buffer, so a
// truncated tail is ignored rather than reported. Gzip-compressed frames
// are decompressed; frames that fail to decompress are skipped.
func Unframe(body []byte) [][]byte {
	var out [][]byte
	for len(body) >= 5 {
		comp := body[0]
		n := binary.BigEndian.Uint32(body[1:5])
		if uint64(n) > uint64(len(body)-5) {
			break
		}
		payload := body[5 : 5+n]
		body = body[5+n:]

		if comp == compressionGzip {
			plain, err := gunzip(payload)
			if err != nil {
				continue
			}
			payload = plain
		}
		out = append(out, payload)
	}
	return out
}

func gunzip(p []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(p))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
