// Package feed fetches telemetry records from the receiver's NDJSON log,
// over HTTP or from a local file, or takes them pushed over MQTT.
package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MaxLineBytes bounds a single NDJSON line. Longer lines are skipped.
const MaxLineBytes = 1 << 20

// Record is one loosely typed feed object. Numbers decode as json.Number.
type Record = map[string]any

// Decode parses a feed body. A JSON array is read as a whole; anything else
// is read as NDJSON, one object per line. Blank and malformed lines are
// skipped with a diagnostic so one bad line never loses the rest.
func Decode(body []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var out []Record
		if err := decodeInto(trimmed, &out); err != nil {
			return nil, fmt.Errorf("decode feed array: %w", err)
		}
		return out, nil
	}

	var out []Record
	rest := trimmed
	for line := 1; len(rest) > 0; line++ {
		var raw []byte
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			raw, rest = rest[:i], rest[i+1:]
		} else {
			raw, rest = rest, nil
		}
		text := bytes.TrimSpace(raw)
		if len(text) == 0 {
			continue
		}
		if len(text) > MaxLineBytes {
			Logf("feed: skipping line %d: %d bytes exceeds the %d byte limit", line, len(text), MaxLineBytes)
			continue
		}
		rec, err := DecodeObject(text)
		if err != nil {
			Logf("feed: skipping line %d: %v", line, err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// DecodeObject parses a single JSON object.
func DecodeObject(data []byte) (Record, error) {
	var rec Record
	if err := decodeInto(data, &rec); err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("not a JSON object")
	}
	return rec, nil
}

func decodeInto(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
