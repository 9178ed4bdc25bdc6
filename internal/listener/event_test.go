// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package listener

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
)

func TestUnmarshalEvent(t *testing.T) {
	tests := []struct {
		name     string
		frame    byte
		data     string
		wantName string
		wantData string
		wantErr  bool
	}{
		{name: "binary frame", frame: websocket.BinaryFrame, data: "\x1a\x45\xdf\xa3", wantName: EventBinaryStream, wantData: "\x1a\x45\xdf\xa3"},
		{name: "text envelope", frame: websocket.TextFrame, data: `{"event":"binarystream","data":"YWJj"}`, wantName: EventBinaryStream, wantData: "abc"},
		{name: "hyphenated envelope", frame: websocket.TextFrame, data: `{"event":"binary-stream","data":"YWJj"}`, wantName: EventBinaryStream, wantData: "abc"},
		{name: "other event", frame: websocket.TextFrame, data: `{"event":"hello"}`, wantName: "hello"},
		{name: "bad json", frame: websocket.TextFrame, data: `{"event":`, wantErr: true},
		{name: "missing name", frame: websocket.TextFrame, data: `{"data":"YWJj"}`, wantErr: true},
		{name: "bad base64", frame: websocket.TextFrame, data: `{"event":"binarystream","data":"***"}`, wantErr: true},
		{name: "empty binary", frame: websocket.BinaryFrame, data: "", wantErr: true},
		{name: "empty envelope payload", frame: websocket.TextFrame, data: `{"event":"binarystream","data":""}`, wantErr: true},
		{name: "too large", frame: websocket.BinaryFrame, data: "0123456789", wantErr: true},
		{name: "ping frame type", frame: websocket.PingFrame, data: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev Event
			err := unmarshalEvent([]byte(tt.data), tt.frame, &ev, 8)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDecode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, ev.Name)
			assert.Equal(t, tt.wantData, string(ev.Data))
		})
	}
}

func TestMarshalEvent(t *testing.T) {
	data, frame, err := marshalEvent(Event{Name: EventBinaryStream, Data: []byte("abc")})
	require.NoError(t, err)
	assert.Equal(t, byte(websocket.TextFrame), frame)
	assert.JSONEq(t, `{"event":"binarystream","data":"YWJj"}`, string(data))

	_, _, err = marshalEvent("nope")
	assert.Error(t, err)
}
