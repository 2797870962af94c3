package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"cryogon/panpipe/jukebox"

	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

const writeTimeout = 2 * time.Second

type client struct {
	conn net.Conn
	mu   sync.Mutex
}

func (c *client) send(v any, msgType MessageType) error {
	data, err := NewMessage(v, msgType)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err = c.conn.Write(data)
	return err
}

// IPCHandler serves the jukebox over a unix socket.
type IPCHandler struct {
	socketPath string
	svc        *jukebox.Service

	mu      sync.Mutex
	clients map[*client]struct{}
}

func NewIPCHandler(socketPath string, svc *jukebox.Service) *IPCHandler {
	return &IPCHandler{
		socketPath: socketPath,
		svc:        svc,
		clients:    make(map[*client]struct{}),
	}
}

// Serve accepts clients until ctx is cancelled.
func (h *IPCHandler) Serve(ctx context.Context) error {
	os.Remove(h.socketPath)

	listener, err := net.Listen("unix", h.socketPath)
	if err != nil {
		return err
	}
	defer os.Remove(h.socketPath)

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	notices, unsubscribe := h.svc.Subscribe(256)
	defer unsubscribe()
	go h.broadcast(notices)

	log.Infof("[IPC] Listening on %s", h.socketPath)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				h.closeClients()
				return nil
			}
			log.Warnf("[IPC] Accept failed: %v", err)
			continue
		}
		log.Debug("[IPC] Client joined")
		go h.handleClient(ctx, conn)
	}
}

func (h *IPCHandler) handleClient(ctx context.Context, conn net.Conn) {
	c := &client{conn: conn}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.removeClient(c)
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Debugf("[IPC] Failed to close client: %v", err)
		}
	}()

	if err := c.send(h.svc.Status(), MsgStatus); err != nil {
		log.Debugf("[IPC] Failed to greet client: %v", err)
		return
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			log.Warnf("[IPC] Failed to parse message: %v", err)
			continue
		}
		if err := h.handleMessage(ctx, c, msg); err != nil {
			log.Debugf("[IPC] Failed to answer client: %v", err)
			return
		}
	}
}

func (h *IPCHandler) handleMessage(ctx context.Context, c *client, msg Message) error {
	switch msg.Type {
	case MsgCommand:
		var cmd jukebox.Command
		if err := msg.Decode(&cmd); err != nil {
			return c.send(Reply{Error: err.Error()}, MsgReply)
		}
		reply := Reply{Command: cmd.Type}
		if err := h.svc.Do(ctx, cmd); err != nil {
			reply.Error = err.Error()
		}
		return c.send(reply, MsgReply)

	case MsgStatus:
		return c.send(h.svc.Status(), MsgStatus)

	case MsgTracks:
		return c.send(h.svc.Library().Tracks(), MsgTracks)

	case MsgWeights:
		return c.send(h.svc.Weights(ctx), MsgWeights)

	default:
		return c.send(Reply{Error: "unknown message type " + string(msg.Type)}, MsgReply)
	}
}

func (h *IPCHandler) broadcast(notices <-chan jukebox.Notice) {
	for n := range notices {
		for _, c := range h.snapshot() {
			if err := c.send(n, MsgNotice); err != nil {
				log.Debugf("[IPC] Failed to broadcast notice: %v", err)
				c.conn.Close()
			}
		}
	}
}

func (h *IPCHandler) snapshot() []*client {
	h.mu.Lock()
	defer h.mu.Unlock()
	return lo.Keys(h.clients)
}

func (h *IPCHandler) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *IPCHandler) closeClients() {
	for _, c := range h.snapshot() {
		c.conn.Close()
	}
}
