package ipc

import (
	"encoding/json"
	"net"
	"sync"

	"cryogon/panpipe/jukebox"
)

type Client struct {
	conn    net.Conn
	mu      sync.Mutex
	encoder *json.Encoder
	decoder *json.Decoder
}

func Dial(socketPath string) (*Client, error) {
	c, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		conn:    c,
		encoder: json.NewEncoder(c),
		decoder: json.NewDecoder(c),
	}, nil
}

func (c *Client) write(v any, msgType MessageType) error {
	var data json.RawMessage
	if v != nil {
		var err error
		if data, err = json.Marshal(v); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encoder.Encode(Message{Type: msgType, Data: data})
}

// Send issues a command. The outcome arrives later as a reply message.
func (c *Client) Send(cmd jukebox.Command) error {
	return c.write(cmd, MsgCommand)
}

// Request asks for status, tracks or weights.
func (c *Client) Request(msgType MessageType) error {
	return c.write(nil, msgType)
}

// ReadNext blocks for the next message from the server.
func (c *Client) ReadNext() (Message, error) {
	var msg Message
	err := c.decoder.Decode(&msg)
	return msg, err
}

func (c *Client) Close() error {
	return c.conn.Close()
}
