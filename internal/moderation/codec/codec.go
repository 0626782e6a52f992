// Package codec serializes moderation bus events.
//
// Two wire formats are supported: JSON (the default) and CBOR. Decoding
// detects the format from the payload itself, so nodes configured with
// different encoders interoperate. Unknown fields are ignored on decode.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// ErrMalformed marks payloads that cannot be decoded into a valid event.
var ErrMalformed = errors.New("malformed event")

// Format selects the encoding used for outbound events.
type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

// ParseFormat accepts "json" or "cbor". An empty string selects JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatCBOR:
		return FormatCBOR, nil
	}
	return "", fmt.Errorf("unknown codec format %q", s)
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Timestamps keep nanosecond precision.
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Codec encodes events in its configured format and decodes either format.
// The zero value encodes JSON. A Codec is safe for concurrent use.
type Codec struct {
	format Format
}

func New(format Format) *Codec {
	if format == "" {
		format = FormatJSON
	}
	return &Codec{format: format}
}

func (c *Codec) Format() Format {
	if c == nil || c.format == "" {
		return FormatJSON
	}
	return c.format
}

func (c *Codec) marshal(v any) ([]byte, error) {
	if c.Format() == FormatCBOR {
		return encMode.Marshal(v)
	}
	return json.Marshal(v)
}

func unmarshal(data []byte, v any) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	var err error
	if trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, v)
	} else {
		err = decMode.Unmarshal(data, v)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}
