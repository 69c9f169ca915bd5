package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// StreamServer bridges bus subscriptions onto WebSocket connections for the
// run stream. Each connection gets its own subscription; client-to-server
// frames are read only to detect disconnects and are otherwise ignored.
type StreamServer struct {
	bus          *Bus
	writeTimeout time.Duration
	logger       *slog.Logger

	mu          sync.RWMutex
	connections map[string]struct{}
}

// NewStreamServer creates a stream server over the given bus.
func NewStreamServer(bus *Bus, writeTimeout time.Duration, logger *slog.Logger) *StreamServer {
	return &StreamServer{
		bus:          bus,
		writeTimeout: writeTimeout,
		logger:       logger.With("component", "run_stream"),
		connections:  make(map[string]struct{}),
	}
}

// HandleConnection runs one run-stream connection to completion: subscribe
// with an initial snapshot, then forward every bus event until the client
// disconnects or a write fails. Called by the WebSocket HTTP handler after
// the upgrade; blocks until the connection closes.
func (s *StreamServer) HandleConnection(parentCtx context.Context, conn *websocket.Conn, sub *Subscription) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	s.register(connID)
	defer s.unregister(connID)
	defer sub.Close()
	defer conn.Close(websocket.StatusNormalClosure, "")

	s.logger.Debug("Run-stream client connected", "connection_id", connID)

	// Drain client frames so pings keep the connection alive and a close
	// frame cancels the write loop promptly.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := s.send(ctx, conn, event); err != nil {
				s.logger.Warn("Failed to send run-stream event",
					"connection_id", connID, "error", err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// ActiveConnections returns the count of open run-stream connections.
func (s *StreamServer) ActiveConnections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

func (s *StreamServer) register(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[connID] = struct{}{}
}

func (s *StreamServer) unregister(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, connID)
}

func (s *StreamServer) send(ctx context.Context, conn *websocket.Conn, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
