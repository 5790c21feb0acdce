// Package jsobj decodes the JavaScript object literals that IrrigationCaddy
// controllers serve in place of JSON (e.g. /js/indexVarsDyn.js).
//
// Decoding is a textual rewrite followed by a strict JSON parse. It is not a
// JavaScript interpreter: the controller firmware emits a small, fixed
// grammar of flat key/value pairs, arrays and nested objects without
// comments, computed keys or expressions.
package jsobj

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
)

var (
	// var <identifier> = at the start of the blob.
	assignRe = regexp.MustCompile(`^\s*var\s+\S+\s*=\s*`)
	// Unquoted key: word run followed by a colon, directly after { or ,.
	keyRe = regexp.MustCompile(`([{,]\s*)(\w+)(\s*:)`)
	// Single-quoted string literal.
	quoteRe = regexp.MustCompile(`'([^']*)'`)
)

// contextWindow is how many bytes on each side of a failure offset are kept
// in DecodeError.Context.
const contextWindow = 24

// DecodeError reports a payload that is not valid JSON, even after the
// lenient rewrite.
type DecodeError struct {
	Offset  int64  // byte offset into the normalized text, -1 if unknown
	Context string // normalized text around Offset
	Err     error
}

func (e *DecodeError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("decode object literal: %v", e.Err)
	}
	return fmt.Sprintf("decode object literal at offset %d near %q: %v", e.Offset, e.Context, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Normalize rewrites a quasi-JS object literal into JSON text. Input that is
// already JSON passes through unchanged.
//
// Apostrophes inside double-quoted strings are not recognized as literal
// text: two of them in one payload (e.g. zone names "Mom's" and "Dad's")
// are rewritten as a single-quoted span and the result fails to decode.
func Normalize(src string) string {
	s := assignRe.ReplaceAllString(src, "")
	s = keyRe.ReplaceAllString(s, `$1"$2"$3`)
	s = quoteRe.ReplaceAllString(s, `"$1"`)
	return s
}

// Decode normalizes src and parses it into a JSON-compatible tree
// (map[string]any, []any, string, float64, bool, nil).
func Decode(src []byte) (any, error) {
	var v any
	if err := Unmarshal(src, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Unmarshal normalizes src and decodes the first JSON value into v.
// Anything after that value, such as a trailing semicolon, is ignored.
func Unmarshal(src []byte, v any) error {
	return decodeFirst([]byte(Normalize(string(src))), v)
}

// DecodeJSON parses strict JSON, reporting failures as *DecodeError.
func DecodeJSON(data []byte) (any, error) {
	var v any
	if err := decodeFirst(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeFirst(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return newDecodeError(data, err)
	}
	return nil
}

func newDecodeError(data []byte, err error) *DecodeError {
	if errors.Is(err, io.EOF) {
		return &DecodeError{Offset: -1, Err: io.ErrUnexpectedEOF}
	}
	offset := int64(-1)
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	}
	return &DecodeError{Offset: offset, Context: excerpt(data, offset), Err: err}
}

func excerpt(data []byte, offset int64) string {
	if offset < 0 || len(data) == 0 {
		return ""
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	start := offset - contextWindow
	if start < 0 {
		start = 0
	}
	end := offset + contextWindow
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return string(data[start:end])
}
