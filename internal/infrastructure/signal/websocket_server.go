package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"stagecast/internal/core/domain"
	ingest "stagecast/internal/infrastructure/webrtc"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // tighten via reverse proxy in production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocketServer is the bidirectional signaling channel for participant
// ingestion: publisher offers in, answers and trickled candidates back, and a
// participant-left notification to everyone else on disconnect.
type WebSocketServer struct {
	ingest *ingest.IngestService

	mu          sync.RWMutex
	connections map[domain.ParticipantID]*websocket.Conn

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	logger *zap.SugaredLogger
}

// SignalMessage is the envelope for every signaling exchange.
type SignalMessage struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participant_id,omitempty"`
	Payload       json.RawMessage      `json:"payload,omitempty"`
}

type offerPayload struct {
	SDP         string `json:"sdp"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type candidatePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdp_mid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdp_mline_index,omitempty"`
}

func NewWebSocketServer(ingestService *ingest.IngestService, logger *zap.SugaredLogger) *WebSocketServer {
	return &WebSocketServer{
		ingest:       ingestService,
		connections:  make(map[domain.ParticipantID]*websocket.Conn),
		pingInterval: 30 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	participantID := domain.ParticipantID(r.URL.Query().Get("participant_id"))
	if participantID == "" {
		s.logger.Warn("missing participant_id in query parameters")
		return
	}

	s.mu.Lock()
	if existing, ok := s.connections[participantID]; ok && existing != nil {
		existing.Close()
		s.logger.Infow("closing stale connection for reconnecting participant", "participant_id", participantID)
	}
	s.connections[participantID] = conn
	s.mu.Unlock()

	s.logger.Infow("participant signaling connected", "participant_id", participantID)

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan SignalMessage, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var msg SignalMessage
			if err := conn.ReadJSON(&msg); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			messageChan <- msg
		}
	}()

	for {
		select {
		case msg := <-messageChan:
			if err := s.handleMessage(participantID, conn, msg); err != nil {
				s.logger.Infow("signaling message rejected",
					"participant_id", participantID,
					"type", msg.Type,
					"error", err,
				)
				s.sendError(conn, err.Error())
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.disconnect(participantID)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("signaling read error", "participant_id", participantID, "error", err)
			}
			s.disconnect(participantID)
			return
		}
	}
}

func (s *WebSocketServer) handleMessage(participantID domain.ParticipantID, conn *websocket.Conn, msg SignalMessage) error {
	if msg.Type == "" {
		return fmt.Errorf("message type is required")
	}
	if msg.ParticipantID != "" && msg.ParticipantID != participantID {
		return fmt.Errorf("participant_id mismatch: expected %s, got %s", participantID, msg.ParticipantID)
	}

	switch msg.Type {
	case "offer":
		return s.handleOffer(participantID, conn, msg)
	case "ice_candidate":
		return s.handleICECandidate(participantID, msg)
	case "leave":
		s.ingest.StopSession(participantID)
		return nil
	default:
		return fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

func (s *WebSocketServer) handleOffer(participantID domain.ParticipantID, conn *websocket.Conn, msg SignalMessage) error {
	var payload offerPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid offer payload: %w", err)
	}
	if payload.SDP == "" {
		return fmt.Errorf("sdp is required")
	}

	role := domain.Role(payload.Role)
	switch role {
	case domain.RoleHost, domain.RoleGuest, domain.RoleBackstage:
	case "":
		role = domain.RoleGuest
	default:
		return fmt.Errorf("unknown role: %s", payload.Role)
	}

	answer, err := s.ingest.HandleOffer(
		context.Background(), participantID, payload.DisplayName, role,
		webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: payload.SDP},
	)
	if err != nil {
		return fmt.Errorf("negotiate: %w", err)
	}

	return s.send(conn, map[string]interface{}{
		"type": "answer",
		"payload": map[string]string{
			"sdp": answer.SDP,
		},
	})
}

func (s *WebSocketServer) handleICECandidate(participantID domain.ParticipantID, msg SignalMessage) error {
	var payload candidatePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid candidate payload: %w", err)
	}
	return s.ingest.AddICECandidate(participantID, webrtc.ICECandidateInit{
		Candidate:     payload.Candidate,
		SDPMid:        payload.SDPMid,
		SDPMLineIndex: payload.SDPMLineIndex,
	})
}

// disconnect drops the connection record, stops the ingest session, and
// notifies everyone still connected.
func (s *WebSocketServer) disconnect(participantID domain.ParticipantID) {
	s.mu.Lock()
	delete(s.connections, participantID)
	s.mu.Unlock()

	s.ingest.StopSession(participantID)
	s.broadcast(map[string]interface{}{
		"type":           "participant_left",
		"participant_id": participantID,
	})
	s.logger.Infow("participant signaling disconnected", "participant_id", participantID)
}

func (s *WebSocketServer) broadcast(v interface{}) {
	s.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		if err := s.send(c, v); err != nil {
			s.logger.Debugw("broadcast send failed", "error", err)
		}
	}
}

func (s *WebSocketServer) send(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return conn.WriteJSON(v)
}

func (s *WebSocketServer) sendError(conn *websocket.Conn, message string) {
	_ = s.send(conn, map[string]interface{}{
		"type":  "error",
		"error": message,
	})
}

// IsConnected reports whether a participant has a live signaling channel.
func (s *WebSocketServer) IsConnected(participantID domain.ParticipantID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.connections[participantID]
	return ok
}
