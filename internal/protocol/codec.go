package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/sunnyswag/RTCStartupDemo/internal/callerr"
)

// Codec names accepted by CodecByName.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// Codec encodes frames into a websocket message type and payload.
type Codec interface {
	Name() string
	Encode(f *Frame) (int, []byte, error)
}

// JSONCodec writes frames as websocket text messages.
type JSONCodec struct{}

func (JSONCodec) Name() string { return CodecJSON }

func (JSONCodec) Encode(f *Frame) (int, []byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return 0, nil, err
	}
	return websocket.TextMessage, b, nil
}

// MsgpackCodec writes frames as websocket binary messages.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return CodecMsgpack }

func (MsgpackCodec) Encode(f *Frame) (int, []byte, error) {
	b, err := msgpack.Marshal(f)
	if err != nil {
		return 0, nil, err
	}
	return websocket.BinaryMessage, b, nil
}

// CodecByName returns the codec registered under name; empty means JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// CodecFor returns the codec that produces messages of the given websocket type.
func CodecFor(messageType int) Codec {
	if messageType == websocket.BinaryMessage {
		return MsgpackCodec{}
	}
	return JSONCodec{}
}

// DecodeFrame decodes a websocket message, choosing the decoder from its type.
func DecodeFrame(messageType int, data []byte) (*Frame, error) {
	var f Frame
	var err error

	switch messageType {
	case websocket.TextMessage:
		err = json.Unmarshal(data, &f)
	case websocket.BinaryMessage:
		err = msgpack.Unmarshal(data, &f)
	default:
		return nil, callerr.WrapError("decode frame", callerr.ErrMalformedEnvelope, fmt.Sprintf("websocket message type %d", messageType))
	}
	if err != nil {
		return nil, callerr.WrapError("decode frame", callerr.ErrMalformedEnvelope, err.Error())
	}
	if f.Event == "" {
		return nil, callerr.WrapError("decode frame", callerr.ErrMalformedEnvelope, "missing event")
	}
	return &f, nil
}
