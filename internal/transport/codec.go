package transport

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// EncodeBody deflate-compresses a message body and base64-encodes it for
// the queue. Queued members are strings, and chain payloads compress well.
func EncodeBody(body []byte) (string, error) {
	var buf bytes.Buffer

	w, err := zlib.NewWriterLevel(&buf, zlib.BestSpeed)
	if err != nil {
		return "", fmt.Errorf("creating zlib writer: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return "", fmt.Errorf("compressing message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("flushing compressed body: %w", err)
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeBody reverses EncodeBody. A body that decodes from base64 but
// carries no zlib header is returned as-is, so producers that enqueue
// plain JSON interoperate.
func DecodeBody(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 body: %w", err)
	}

	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return raw, nil
	}
	defer r.Close()

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("decompressing message body: %w", err)
	}
	return body, nil
}
