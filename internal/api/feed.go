package api

import (
	"net/http"
	"strings"
	"time"

	"poolstats/internal/query"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const feedWriteTimeout = 10 * time.Second

func websocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// feedFrame is one push on the feed: either a page of records or an error.
type feedFrame struct {
	Records interface{} `json:"records,omitempty"`
	Error   string      `json:"error,omitempty"`
	SentAt  time.Time   `json:"sent_at"`
}

// handleFeed pushes the requested page immediately and then on every tick.
// Invalid requests are rejected before the upgrade. Upstream failures are sent
// as error frames and the feed keeps running.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	req, err := parseRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	validated, err := query.Validate(req)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.SetFeedConnected(true)
		defer s.metrics.SetFeedConnected(false)
	}

	logger := log.With().
		Str("request_id", RequestID(r.Context())).
		Str("source", validated.Source.String()).
		Int("page", validated.Page).
		Logger()
	logger.Info().Msg("Feed connected")

	// Drain client frames so close messages are noticed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.config.FeedInterval)
	defer ticker.Stop()

	for {
		frame := feedFrame{SentAt: time.Now().UTC()}
		records, err := s.handler.Run(r.Context(), validated)
		if err != nil {
			frame.Error = err.Error()
		} else {
			frame.Records = records
		}

		conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
		if err := conn.WriteJSON(frame); err != nil {
			logger.Warn().Err(err).Msg("Failed to write to WebSocket")
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-closed:
			logger.Info().Msg("Feed disconnected")
			return
		case <-ticker.C:
		}
	}
}
