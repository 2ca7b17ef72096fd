package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/himorishige/hatago-mcp-hub/internal/dispatcher"
	"github.com/himorishige/hatago-mcp-hub/pkg/logging"
)

// sessionHeader is the header both directions use to carry the session id
// (spec.md §6).
const sessionHeader = "mcp-session-id"

// Handler returns the http.Handler for the single upstream endpoint. It
// dispatches by method: POST for JSON-RPC requests, GET to open the SSE
// notification stream, DELETE to destroy a session.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", g.handleRoot)
	return mux
}

func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		g.handlePost(w, r)
	case http.MethodGet:
		g.handleGet(w, r)
	case http.MethodDelete:
		g.handleDelete(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) handlePost(w http.ResponseWriter, r *http.Request) {
	var req dispatcher.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(internalErrorResponse("invalid JSON-RPC request body"))
		return
	}

	sess := g.sessions.GetOrCreate(r.Header.Get(sessionHeader))

	resp := g.dispatcher.Dispatch(r.Context(), sess.ID, req)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(sessionHeader, sess.ID)
	if resp == nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("null"))
		return
	}
	// HTTP 500 is reserved for the malformed-request/internal-failure shape
	// (id: null); a well-formed JSON-RPC error that carries the request's own
	// id — an unknown tool, a mirrored downstream failure — is a successful
	// HTTP exchange carrying an in-band application error (spec.md §6).
	if resp.Error != nil && resp.ID == nil {
		w.WriteHeader(http.StatusInternalServerError)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Warn("gateway.http", "failed to encode response: %v", err)
	}
}

func (g *Gateway) handleGet(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sess := g.sessions.GetOrCreate(r.Header.Get(sessionHeader))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set(sessionHeader, sess.ID)
	w.WriteHeader(http.StatusOK)

	fmt.Fprint(w, "data: {\"type\":\"ready\"}\n\n")
	flusher.Flush()

	sink := &sseSink{w: w, flusher: flusher}
	g.relay.AddSink(sink)
	defer g.relay.RemoveSink(sink)

	<-r.Context().Done()
}

func (g *Gateway) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(sessionHeader)
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	g.sessions.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

// sseSink implements relay.Sink by framing each notification as one SSE
// "data:" event on an open GET / response.
type sseSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseSink) SendNotification(message []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", message); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
