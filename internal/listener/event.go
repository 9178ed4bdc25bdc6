// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package listener

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/net/websocket"
)

// EventBinaryStream is the only event that carries media. Envelopes may also
// spell it eventBinaryStreamAlt; both decode to EventBinaryStream.
const (
	EventBinaryStream    = "binarystream"
	eventBinaryStreamAlt = "binary-stream"
)

// ErrDecode marks a frame that could not be turned into an Event.
// The session survives it.
var ErrDecode = errors.New("decode event")

// Event is one decoded inbound websocket message.
type Event struct {
	Name string
	Data []byte
}

// envelope is the text-frame form: {"event":"binarystream","data":"<base64>"}.
type envelope struct {
	Event string `json:"event"`
	Data  string `json:"data,omitempty"`
}

// newCodec decodes binary frames as media chunks and text frames as JSON envelopes.
func newCodec(maxChunk int) websocket.Codec {
	return websocket.Codec{
		Marshal: marshalEvent,
		Unmarshal: func(data []byte, payloadType byte, v interface{}) error {
			ev, ok := v.(*Event)
			if !ok {
				return fmt.Errorf("%w: unexpected target %T", ErrDecode, v)
			}
			return unmarshalEvent(data, payloadType, ev, maxChunk)
		},
	}
}

func marshalEvent(v interface{}) ([]byte, byte, error) {
	ev, ok := v.(Event)
	if !ok {
		if p, isPtr := v.(*Event); isPtr && p != nil {
			ev = *p
		} else {
			return nil, 0, fmt.Errorf("marshal event: unexpected type %T", v)
		}
	}
	data, err := json.Marshal(envelope{Event: ev.Name, Data: base64.StdEncoding.EncodeToString(ev.Data)})
	if err != nil {
		return nil, 0, err
	}
	return data, websocket.TextFrame, nil
}

func unmarshalEvent(data []byte, payloadType byte, ev *Event, maxChunk int) error {
	switch payloadType {
	case websocket.BinaryFrame:
		ev.Name = EventBinaryStream
		ev.Data = data
	case websocket.TextFrame:
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
		if env.Event == "" {
			return fmt.Errorf("%w: missing event name", ErrDecode)
		}
		if env.Event == eventBinaryStreamAlt {
			env.Event = EventBinaryStream
		}
		ev.Name = env.Event
		ev.Data = nil
		if env.Event != EventBinaryStream {
			return nil
		}
		raw, err := base64.StdEncoding.DecodeString(env.Data)
		if err != nil {
			return fmt.Errorf("%w: payload is not base64: %v", ErrDecode, err)
		}
		ev.Data = raw
	default:
		return fmt.Errorf("%w: unsupported frame type %d", ErrDecode, payloadType)
	}

	if len(ev.Data) == 0 {
		return fmt.Errorf("%w: empty payload", ErrDecode)
	}
	if maxChunk > 0 && len(ev.Data) > maxChunk {
		return fmt.Errorf("%w: chunk of %d bytes exceeds limit %d", ErrDecode, len(ev.Data), maxChunk)
	}
	return nil
}
