package ipc

import (
	"encoding/json"

	"cryogon/panpipe/jukebox"
)

type MessageType string

// Messages go both ways, one JSON object per line. A client sends cmd,
// status, tracks and weights; the server answers with reply, status, tracks
// and weights and pushes notice messages to every client.
const (
	MsgCommand MessageType = "cmd"
	MsgReply   MessageType = "reply"
	MsgNotice  MessageType = "notice"
	MsgStatus  MessageType = "status"
	MsgTracks  MessageType = "tracks"
	MsgWeights MessageType = "weights"
)

type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Reply acknowledges a command. Error is empty on success.
type Reply struct {
	Command jukebox.CommandType `json:"command"`
	Error   string              `json:"error,omitempty"`
}

func NewMessage(v any, msgType MessageType) ([]byte, error) {
	var data json.RawMessage
	if v != nil {
		var err error
		if data, err = json.Marshal(v); err != nil {
			return nil, err
		}
	}
	return json.Marshal(Message{Type: msgType, Data: data})
}

// Decode unmarshals the payload of m into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}
