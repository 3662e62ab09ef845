// Package stream implements the Stream Decoder: a generic line-delimited
// JSON reader that tolerates non-JSON noise on the wire. It is grounded on
// the droid executor's readEvents scanner loop, generalized so every
// Architecture Adapter can reuse one decoding strategy instead of each
// hand-rolling its own bufio.Scanner loop.
//
// A Decoder is single-use: once its underlying reader is exhausted, it is
// done and must not be restarted.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// maxLineSize bounds a single decoded line. Droid and OpenCode transcripts
// occasionally emit large tool-result payloads inline; 4 MiB leaves slack
// beyond the teacher's 1 MiB droid buffer since adapter transcripts carry
// bulkier content than RPC notifications.
const maxLineSize = 4 * 1024 * 1024

// Raw is one decoded line: either valid JSON (Value holds the parsed
// object) or a non-JSON line the caller may want to log and skip
// (Value is nil, Text holds the original bytes as a string).
type Raw struct {
	Value map[string]interface{}
	Text  string
}

// IsJSON reports whether this line parsed as a JSON object.
func (r Raw) IsJSON() bool { return r.Value != nil }

// Decoder reads newline-delimited JSON from an io.Reader, skipping blank
// lines and surfacing malformed lines as Raw values with Value == nil
// rather than failing the whole stream. This mirrors how the droid
// executor tolerates stray non-JSON-RPC output on stdout.
type Decoder struct {
	scanner *bufio.Scanner
	done    bool
}

// NewDecoder wraps r. ctx is not stored on the Decoder; callers select on
// ctx.Done() alongside Next in their own read loop, matching the pattern
// used by every executor that consumes a Decoder.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, maxLineSize)
	return &Decoder{scanner: scanner}
}

// ErrDone is returned by Next once the underlying reader is exhausted.
// Callers should treat it as a normal end-of-stream signal, not a fault.
var ErrDone = errors.New("stream: decoder exhausted")

// Next reads and returns the next non-blank line. It returns ErrDone when
// the reader is exhausted; any other error indicates the underlying
// reader itself failed (not a JSON parse failure — unparsable lines are
// returned as Raw{Value: nil}, never as an error).
func (d *Decoder) Next() (Raw, error) {
	if d.done {
		return Raw{}, ErrDone
	}
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		text := string(line)
		var value map[string]interface{}
		if err := json.Unmarshal(line, &value); err != nil {
			return Raw{Text: text}, nil
		}
		return Raw{Value: value, Text: text}, nil
	}
	d.done = true
	if err := d.scanner.Err(); err != nil {
		return Raw{}, fmt.Errorf("stream: read failed: %w", err)
	}
	return Raw{}, ErrDone
}

// Decode consumes the entire stream, invoking fn for each decoded line
// until the reader is exhausted, fn returns an error, or ctx is canceled.
// It returns the first non-ErrDone error encountered.
func Decode(ctx context.Context, r io.Reader, fn func(Raw) error) error {
	d := NewDecoder(r)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		raw, err := d.Next()
		if errors.Is(err, ErrDone) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
}
