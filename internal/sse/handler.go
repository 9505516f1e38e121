package sse

import (
	"bufio"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const writeTimeout = time.Minute

// IdentityFunc resolves the authenticated caller of a stream request.
type IdentityFunc func(r *http.Request) (userID, email string, ok bool)

// Handler serves the event stream at GET /events. The optional groups query
// parameter takes a comma separated list of group ids to follow.
type Handler struct {
	manager  *Manager
	identity IdentityFunc
	logger   *slog.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(manager *Manager, identity IdentityFunc, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{manager: manager, identity: identity, logger: logger}
}

// ServeHTTP streams events addressed to the caller until they disconnect.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	userID, email, ok := h.identity(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("Connection", "keep-alive")
	hdr.Set("X-Accel-Buffering", "no")

	s := &stream{w: w, rc: http.NewResponseController(w), logger: h.logger}
	if err := s.rc.Flush(); err != nil {
		h.logger.Error("streaming unsupported", slog.String("error", err.Error()))
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	client, err := h.manager.Connect(userID, email, parseGroups(r.URL.Query().Get("groups"))...)
	if err != nil {
		h.logger.Error("failed to register SSE client", slog.String("error", err.Error()))
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)

	log := h.logger.With(slog.String("client_id", client.ID))
	hello := map[string]any{"clientId": client.ID, "groups": client.Groups}
	if err := s.send("connected", 0, hello); err != nil {
		log.Warn("failed to send hello", slog.String("error", err.Error()))
		return
	}

	for {
		select {
		case event, open := <-client.EventChan:
			if !open {
				return
			}
			if err := s.send(string(event.Type), event.Seq, event); err != nil {
				log.Info("client went away", slog.String("error", err.Error()))
				return
			}
		case <-client.Done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// stream writes SSE frames to one response.
type stream struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	logger *slog.Logger
}

// send writes a frame of the form "id: N\nevent: T\ndata: JSON\n\n". id is
// omitted when zero.
func (s *stream) send(name string, seq uint64, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}

	bw := bufio.NewWriter(s.w)
	if seq > 0 {
		bw.WriteString("id: ")
		bw.WriteString(strconv.FormatUint(seq, 10))
		bw.WriteByte('\n')
	}
	bw.WriteString("event: ")
	bw.WriteString(name)
	bw.WriteString("\ndata: ")
	bw.Write(body)
	bw.WriteString("\n\n")
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil {
		return err
	}

	if err := s.rc.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		s.logger.Debug("write deadline unsupported", slog.String("error", err.Error()))
	}
	return nil
}

func parseGroups(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for g := range strings.SplitSeq(raw, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}
