package executor

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON locates the JSON payload inside noisy CLI output. AWS and
// eksctl sometimes interleave warnings or banners with JSON on stdout, so
// this takes the first '{' or '[' through the matching last '}' or ']' and
// validates the slice. This is a boundary concession to external tools,
// not a general parsing strategy.
//
// The context argument names the calling operation and appears in every
// error message.
func ExtractJSON(raw, context string) ([]byte, error) {
	objStart := strings.IndexByte(raw, '{')
	arrStart := strings.IndexByte(raw, '[')

	start := objStart
	closer := byte('}')
	if start < 0 || (arrStart >= 0 && arrStart < start) {
		start = arrStart
		closer = ']'
	}
	if start < 0 {
		return nil, fmt.Errorf("%s: no JSON payload found in command output", context)
	}

	end := strings.LastIndexByte(raw, closer)
	if end < start {
		return nil, fmt.Errorf("%s: no JSON payload found in command output", context)
	}

	payload := raw[start : end+1]
	if !json.Valid([]byte(payload)) {
		return nil, fmt.Errorf("%s: command output is not valid JSON", context)
	}
	return []byte(payload), nil
}

// ParseJSON extracts the JSON payload from raw and unmarshals it into v
func ParseJSON(raw string, v any, context string) error {
	payload, err := ExtractJSON(raw, context)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%s: %w", context, err)
	}
	return nil
}
