package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"kbdash/internal/metrics"
	"kbdash/internal/models"
)

const (
	timelineWindow    = time.Hour
	wsWriteTimeout    = 5 * time.Second
	wsPingInterval    = 30 * time.Second
	eventTypeSnapshot = "snapshot"
	eventTypeState    = "state"
)

var connectivityUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

type connectivityView struct {
	models.ConnectivitySnapshot
	Reprobing    bool                   `json:"reprobing"`
	Availability metrics.Availability   `json:"availability"`
	Timeline     []models.TimelinePoint `json:"timeline"`
}

type connectivityMessage struct {
	Type     string                      `json:"type"`
	Event    *models.StateEvent          `json:"event,omitempty"`
	Snapshot models.ConnectivitySnapshot `json:"snapshot"`
}

func (s *Server) connectivityView() connectivityView {
	history := s.monitor.History()
	end := time.Now().UTC()
	return connectivityView{
		ConnectivitySnapshot: s.monitor.Snapshot(),
		Reprobing:            s.monitor.Reprobing(),
		Availability:         metrics.ComputeAvailability(history),
		Timeline:             metrics.BuildTimeline(history, end.Add(-timelineWindow), end, metrics.DefaultTimelinePoints),
	}
}

func (s *Server) handleConnectivity(w http.ResponseWriter, r *http.Request) error {
	return WriteData(w, r, http.StatusOK, s.connectivityView())
}

// handleReconnect returns immediately with the Unknown state; the probe
// result arrives over the websocket feed.
func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) error {
	return WriteData(w, r, http.StatusAccepted, s.monitor.Reconnect())
}

func (s *Server) handleConnectivityWS(w http.ResponseWriter, r *http.Request) {
	conn, err := connectivityUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.serveConnectivityConnection(conn)
}

func (s *Server) serveConnectivityConnection(conn *websocket.Conn) {
	defer conn.Close()

	events, cancel := s.monitor.Subscribe()
	defer cancel()

	if err := writeConnectivity(conn, connectivityMessage{Type: eventTypeSnapshot, Snapshot: s.monitor.Snapshot()}); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			msg := connectivityMessage{Type: eventTypeState, Event: &event, Snapshot: s.monitor.Snapshot()}
			if err := writeConnectivity(conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeConnectivity(conn *websocket.Conn, payload connectivityMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(payload)
}
