package http

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"competition-service/internal/app"
	"competition-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// WSHandler upgrades connections and bridges them onto the competition event
// stream. One connection maps to one participant in one competition; the
// token issued at join time carries both identities.
type WSHandler struct {
	service  *app.CompetitionService
	tokens   *TokenIssuer
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.CompetitionService, tokens *TokenIssuer) *WSHandler {
	return &WSHandler{
		service: service,
		tokens:  tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    domain.EventType `json:"type"`
	Payload any              `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type selectTeamPayload struct {
	TeamID string `json:"teamId"`
}

type selectPlayerPayload struct {
	TeamID        string `json:"teamId"`
	ParticipantID string `json:"participantId"`
}

type teamChatPayload struct {
	TeamID string `json:"teamId"`
	Text   string `json:"text"`
}

type joinedPayload struct {
	ParticipantID string               `json:"participantId"`
	Snapshot      domain.Snapshot      `json:"snapshot"`
	TeamChat      []domain.ChatMessage `json:"teamChat,omitempty"`
	Question      *domain.QuestionView `json:"question,omitempty"`
}

// wsClient is the per-connection state shared by the pumps and the dispatch
// handlers. Only the writer goroutine touches the connection for writes.
type wsClient struct {
	service *app.CompetitionService
	claims  *ParticipantClaims
	send    chan outboundMessage
	done    chan struct{}
}

// wsRoutes dispatches inbound message types without a switch per handler;
// adding an operation is one entry here.
var wsRoutes = map[string]func(*wsClient, json.RawMessage){
	"joinCompetition":  (*wsClient).handleJoinCompetition,
	"selectTeam":       (*wsClient).handleSelectTeam,
	"selectPlayer":     (*wsClient).handleSelectPlayer,
	"startCompetition": (*wsClient).handleStart,
	"submitAnswer":     (*wsClient).handleSubmitAnswer,
	"teamChat":         (*wsClient).handleTeamChat,
	"currentQuestion":  (*wsClient).handleCurrentQuestion,
}

// ServeWS authenticates via the token query parameter, upgrades, and runs the
// connection until the client goes away.
func (h *WSHandler) ServeWS(c *gin.Context) {
	claims, err := h.tokens.Parse(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	snap, err := h.service.Connect(claims.CompetitionID, claims.ParticipantID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: domain.EventError, Payload: errorPayload{Message: clientErrorMessage(err)}})
		return
	}
	defer h.service.Disconnect(claims.CompetitionID, claims.ParticipantID)

	events, cancel, err := h.service.Subscribe(claims.CompetitionID, claims.ParticipantID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: domain.EventError, Payload: errorPayload{Message: clientErrorMessage(err)}})
		return
	}
	defer cancel()

	client := &wsClient{
		service: h.service,
		claims:  claims,
		send:    make(chan outboundMessage, 16),
		done:    make(chan struct{}),
	}

	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case msg, ok := <-client.send:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := conn.WriteJSON(msg); err != nil {
					log.Printf("ws write error: %v", err)
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case client.send <- outboundMessage{Type: ev.Type, Payload: ev.Payload}:
				case <-client.done:
					return
				}
			case <-client.done:
				return
			}
		}
	}()

	client.enqueue(outboundMessage{Type: domain.EventCompetitionJoined, Payload: client.joinedPayload(snap)})

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws read error: %v", err)
			}
			break
		}
		handler, ok := wsRoutes[inbound.Type]
		if !ok {
			client.sendError("unsupported message type: " + inbound.Type)
			continue
		}
		handler(client, inbound.Payload)
	}

	close(client.done)
	<-eventsDone
	close(client.send)
	<-writerDone
}

// joinedPayload assembles the reconnect bootstrap: snapshot plus the team
// chat tail and the pending question when the participant already sits on a
// team mid-game.
func (c *wsClient) joinedPayload(snap domain.Snapshot) joinedPayload {
	payload := joinedPayload{
		ParticipantID: c.claims.ParticipantID,
		Snapshot:      snap,
	}
	teamID := c.teamID(snap)
	if teamID == "" {
		return payload
	}
	chat, err := c.service.TeamChat(c.claims.CompetitionID, teamID)
	if err == nil {
		payload.TeamChat = chat
	}
	if view, ok, err := c.service.CurrentQuestion(c.claims.CompetitionID, teamID); err == nil && ok {
		payload.Question = &view
	}
	return payload
}

func (c *wsClient) teamID(snap domain.Snapshot) string {
	for _, team := range snap.Teams {
		for _, member := range team.Participants {
			if member.ID == c.claims.ParticipantID {
				return team.ID
			}
		}
	}
	return ""
}

// handleJoinCompetition re-delivers the full bootstrap on request. Clients
// emit it after a transport hiccup instead of trusting missed deltas.
func (c *wsClient) handleJoinCompetition(_ json.RawMessage) {
	snap, err := c.service.Connect(c.claims.CompetitionID, c.claims.ParticipantID)
	if err != nil {
		c.sendError(clientErrorMessage(err))
		return
	}
	c.enqueue(outboundMessage{Type: domain.EventCompetitionJoined, Payload: c.joinedPayload(snap)})
}

func (c *wsClient) handleSelectTeam(raw json.RawMessage) {
	var payload selectTeamPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.sendError("invalid selectTeam payload")
		return
	}
	if err := c.service.SelectTeam(c.claims.CompetitionID, c.claims.ParticipantID, payload.TeamID); err != nil {
		c.sendError(clientErrorMessage(err))
	}
}

func (c *wsClient) handleSelectPlayer(raw json.RawMessage) {
	var payload selectPlayerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.sendError("invalid selectPlayer payload")
		return
	}
	if payload.ParticipantID == "" {
		payload.ParticipantID = c.claims.ParticipantID
	}
	if err := c.service.SelectPlayer(c.claims.CompetitionID, payload.TeamID, payload.ParticipantID); err != nil {
		c.sendError(clientErrorMessage(err))
	}
}

func (c *wsClient) handleStart(_ json.RawMessage) {
	if err := c.service.Start(c.claims.CompetitionID, c.claims.UserID); err != nil {
		c.sendError(clientErrorMessage(err))
	}
}

func (c *wsClient) handleSubmitAnswer(raw json.RawMessage) {
	var sub domain.AnswerSubmission
	if err := json.Unmarshal(raw, &sub); err != nil {
		c.sendError("invalid submitAnswer payload")
		return
	}
	// The result comes back on the event stream scoped to this participant.
	if _, err := c.service.SubmitAnswer(c.claims.CompetitionID, c.claims.ParticipantID, sub); err != nil {
		c.sendError(clientErrorMessage(err))
	}
}

func (c *wsClient) handleTeamChat(raw json.RawMessage) {
	var payload teamChatPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.sendError("invalid teamChat payload")
		return
	}
	if _, err := c.service.SendTeamMessage(c.claims.CompetitionID, c.claims.ParticipantID, payload.TeamID, payload.Text); err != nil {
		c.sendError(clientErrorMessage(err))
	}
}

func (c *wsClient) handleCurrentQuestion(raw json.RawMessage) {
	var payload selectTeamPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.sendError("invalid currentQuestion payload")
		return
	}
	view, ok, err := c.service.CurrentQuestion(c.claims.CompetitionID, payload.TeamID)
	if err != nil {
		c.sendError(clientErrorMessage(err))
		return
	}
	if !ok {
		c.sendError("no pending question")
		return
	}
	c.enqueue(outboundMessage{Type: domain.EventCurrentQuestion, Payload: view})
}

func (c *wsClient) sendError(message string) {
	c.enqueue(outboundMessage{Type: domain.EventError, Payload: errorPayload{Message: message}})
}

func (c *wsClient) enqueue(msg outboundMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	}
}
