package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// broadcastConn is the slice of a websocket connection the registry needs.
type broadcastConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Registry tracks the currently-connected broadcast listeners. It is owned
// by the transport layer and injected wherever events are emitted; there is
// no package-level connection set. Delivery is best effort, at most once: a
// listener that is disconnected or slow simply misses the event.
type Registry struct {
	mu    sync.Mutex
	conns map[broadcastConn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: map[broadcastConn]struct{}{},
	}
}

func (r *Registry) Add(conn broadcastConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn] = struct{}{}
}

func (r *Registry) Remove(conn broadcastConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, conn)
}

// Broadcast writes the event to every current listener. Connections that
// fail the write are dropped from the registry and closed.
func (r *Registry) Broadcast(event interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for conn := range r.conns {
		if err := conn.WriteJSON(event); err != nil {
			delete(r.conns, conn)
			conn.Close()
		}
	}
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for conn := range r.conns {
		conn.Close()
	}
	r.conns = map[broadcastConn]struct{}{}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamPosts upgrades the connection and parks it in the registry until the
// peer goes away.
func (s *Server) streamPosts(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		abortWithEncoding(c, http.StatusBadRequest, errorInvalidParameters, err)
		return
	}

	s.registry.Add(conn)

	// reads are discarded; the socket exists only for server pushes
	go func() {
		defer func() {
			s.registry.Remove(conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
