// Package server exposes the memory store to its host over a thin
// WebSocket protocol: JSON request frames carrying one of the verbs
// store, recall, forget or stats, answered by one response frame each.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mnemohq/mnemo/memory"
)

// Request is one protocol frame from the host.
type Request struct {
	ID     string          `json:"id"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers exactly one Request, correlated by ID.
type Response struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ForgetResult is the forget verb's payload.
type ForgetResult struct {
	Deleted int `json:"deleted"`
}

// Server serves the host protocol over a single HTTP endpoint.
type Server struct {
	manager  *memory.Manager
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// New creates a server around an initialized manager.
func New(manager *memory.Manager) *Server {
	return &Server{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// Handler returns the WebSocket upgrade handler.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveWS)
}

// ListenAndServe blocks serving the protocol on addr until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("[SERVER] listening on %s", addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the listener. The manager is owned by the caller and
// closed separately.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[SERVER] upgrade: %v", err)
		return
	}
	defer conn.Close()

	// Frames are handled sequentially per connection, which also keeps
	// writes on the conn serialized.
	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[SERVER] read: %v", err)
			}
			return
		}

		resp := s.dispatch(r.Context(), req)
		if err := conn.WriteJSON(resp); err != nil {
			log.Printf("[SERVER] write: %v", err)
			return
		}
	}
}

// dispatch routes one frame to the manager. Protocol errors and call
// failures both come back as error responses; nothing terminates the
// connection.
func (s *Server) dispatch(ctx context.Context, req Request) Response {
	result, err := s.call(ctx, req.Op, req.Params)
	if err != nil {
		return Response{ID: req.ID, OK: false, Error: err.Error()}
	}
	return Response{ID: req.ID, OK: true, Result: result}
}

func (s *Server) call(ctx context.Context, op string, params json.RawMessage) (any, error) {
	switch op {
	case "store":
		var p memory.StoreParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		return s.manager.Store(ctx, p)

	case "recall":
		var p memory.RecallParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		recs, err := s.manager.Recall(ctx, p)
		if err != nil {
			return nil, err
		}
		if recs == nil {
			recs = []memory.Record{}
		}
		return recs, nil

	case "forget":
		var p memory.ForgetParams
		if err := unmarshalParams(params, &p); err != nil {
			return nil, err
		}
		deleted, err := s.manager.Forget(ctx, p)
		if err != nil {
			return nil, err
		}
		return ForgetResult{Deleted: deleted}, nil

	case "stats":
		return s.manager.Stats(ctx)

	default:
		return nil, fmt.Errorf("unknown op %q", op)
	}
}

func unmarshalParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}
