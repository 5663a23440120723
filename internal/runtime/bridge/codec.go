package bridge

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/drblury/signalflow/internal/runtime/jsoncodec"
)

// Codec converts emissions to and from message payloads.
type Codec[E any] interface {
	Encode(E) ([]byte, error)
	Decode([]byte) (E, error)
	// Schema names the payload type; it is sent as message metadata.
	Schema() string
}

// JSONCodec encodes emissions as JSON.
type JSONCodec[E any] struct{}

func (JSONCodec[E]) Encode(v E) ([]byte, error) { return jsoncodec.Marshal(v) }

func (JSONCodec[E]) Decode(data []byte) (E, error) {
	var v E
	if err := jsoncodec.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %T: %w", v, err)
	}
	return v, nil
}

func (JSONCodec[E]) Schema() string {
	var v E
	return fmt.Sprintf("json:%T", v)
}

// ProtoCodec encodes proto messages in the binary wire format, or as
// protojson when JSON is set.
type ProtoCodec[E proto.Message] struct {
	// New returns an empty message to decode into. When nil the message type
	// is taken from E's descriptor.
	New  func() E
	JSON bool
}

var protoJSONMarshalOptions = protojson.MarshalOptions{
	EmitUnpopulated: true,
}

var protoJSONUnmarshalOptions = protojson.UnmarshalOptions{
	DiscardUnknown: true,
}

func (c ProtoCodec[E]) Encode(v E) ([]byte, error) {
	if c.JSON {
		return protoJSONMarshalOptions.Marshal(v)
	}
	return proto.Marshal(v)
}

func (c ProtoCodec[E]) Decode(data []byte) (E, error) {
	v := c.newMessage()
	var err error
	if c.JSON {
		err = protoJSONUnmarshalOptions.Unmarshal(data, v)
	} else {
		err = proto.Unmarshal(data, v)
	}
	if err != nil {
		return v, fmt.Errorf("decode %s: %w", c.Schema(), err)
	}
	return v, nil
}

func (c ProtoCodec[E]) Schema() string {
	var zero E
	return "proto:" + string(zero.ProtoReflect().Descriptor().FullName())
}

func (c ProtoCodec[E]) newMessage() E {
	if c.New != nil {
		return c.New()
	}
	var zero E
	return zero.ProtoReflect().Type().New().Interface().(E)
}
