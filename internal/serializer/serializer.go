// Package serializer provides the opaque envelope encode/decode contract
// consumed by the mapper (§6): format is negotiated once at construction
// time and shared cluster-wide.
//
// Grounded on the teacher's core/service/client.go, which marshals request
// bodies with encoding/json; the msgpack codec adopts
// github.com/ugorji/go/codec, an indirect dependency of the teacher's own
// broker and module/echo go.mod's, promoted to direct use here so the
// "format" config knob (§6) has two real, wired implementations.
package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/ugorji/go/codec"

	"github.com/geoffjay/plantd-mapper/internal/envelope"
	"github.com/geoffjay/plantd-mapper/internal/mdperr"
)

// Format names a supported wire encoding, selected by the mapper's
// "format" configuration option.
type Format string

// Recognized formats.
const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// Serializer encodes and decodes envelopes for wire transport.
type Serializer interface {
	Encode(env *envelope.Envelope) ([]byte, error)
	Decode(data []byte) (*envelope.Envelope, error)
}

// New constructs the Serializer named by format, or an error if format is
// not one of the recognized values.
func New(format Format) (Serializer, error) {
	switch format {
	case FormatJSON, "":
		return JSONSerializer{}, nil
	case FormatMsgpack:
		return MsgpackSerializer{handle: &codec.MsgpackHandle{}}, nil
	default:
		return nil, fmt.Errorf("serializer: unrecognized format %q", format)
	}
}

// JSONSerializer encodes envelopes with encoding/json, matching the
// teacher's own service-client wire format.
type JSONSerializer struct{}

// Encode implements Serializer.
func (JSONSerializer) Encode(env *envelope.Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, mdperr.NewMalformed(err)
	}
	return data, nil
}

// Decode implements Serializer.
func (JSONSerializer) Decode(data []byte) (*envelope.Envelope, error) {
	var env envelope.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, mdperr.NewMalformed(err)
	}
	return &env, nil
}

// MsgpackSerializer encodes envelopes with github.com/ugorji/go/codec, a
// more compact alternative wire format selected by format="msgpack".
type MsgpackSerializer struct {
	handle *codec.MsgpackHandle
}

// Encode implements Serializer.
func (m MsgpackSerializer) Encode(env *envelope.Envelope) ([]byte, error) {
	var data []byte
	if err := codec.NewEncoderBytes(&data, m.handle).Encode(env); err != nil {
		return nil, mdperr.NewMalformed(err)
	}
	return data, nil
}

// Decode implements Serializer.
func (m MsgpackSerializer) Decode(data []byte) (*envelope.Envelope, error) {
	var env envelope.Envelope
	if err := codec.NewDecoderBytes(data, m.handle).Decode(&env); err != nil {
		return nil, mdperr.NewMalformed(err)
	}
	return &env, nil
}
