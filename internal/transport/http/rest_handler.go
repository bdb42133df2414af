package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"competition-service/internal/app"
	"competition-service/internal/domain"
)

// RESTHandler serves the request/response surface: competition creation,
// joining, and the read-only dashboard endpoints. Everything real-time goes
// through the websocket gateway.
type RESTHandler struct {
	service *app.CompetitionService
	tokens  *TokenIssuer
}

func NewRESTHandler(service *app.CompetitionService, tokens *TokenIssuer) *RESTHandler {
	return &RESTHandler{service: service, tokens: tokens}
}

func (h *RESTHandler) Register(r gin.IRouter) {
	games := r.Group("/games/competitions")
	games.POST("", h.create)
	games.POST("/join", h.join)
	games.POST("/join-guest", h.joinGuest)
	games.GET("/:id/creator-dashboard", h.creatorDashboard)
	games.GET("/:id/leaderboard", h.leaderboard)
}

type createRequest struct {
	Title    string `json:"title" binding:"required"`
	TestID   string `json:"testId" binding:"required"`
	MaxTeams int    `json:"maxTeams" binding:"required"`
}

func (h *RESTHandler) create(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-User-ID header"})
		return
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := h.service.Create(c.Request.Context(), app.CreateParams{
		Title:     req.Title,
		TestID:    req.TestID,
		CreatorID: userID,
		MaxTeams:  req.MaxTeams,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

type joinRequest struct {
	Code        string `json:"code" binding:"required"`
	DisplayName string `json:"displayName" binding:"required"`
}

type joinResponse struct {
	Participant domain.Participant `json:"participant"`
	Token       string             `json:"token"`
	Competition domain.Snapshot    `json:"competition"`
}

func (h *RESTHandler) join(c *gin.Context) {
	// Authenticated join: the gateway in front of this service verifies the
	// user and forwards the identity header.
	if c.GetHeader("X-User-ID") == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-User-ID header"})
		return
	}
	h.handleJoin(c, false)
}

func (h *RESTHandler) joinGuest(c *gin.Context) {
	h.handleJoin(c, true)
}

func (h *RESTHandler) handleJoin(c *gin.Context, guest bool) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	participant, snap, err := h.service.JoinByCode(c.Request.Context(), req.Code, req.DisplayName, guest)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	token, err := h.tokens.Issue(snap.Competition.ID, participant.ID, c.GetHeader("X-User-ID"), participant.DisplayName, guest)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	c.JSON(http.StatusOK, joinResponse{
		Participant: participant,
		Token:       token,
		Competition: snap,
	})
}

func (h *RESTHandler) creatorDashboard(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-User-ID header"})
		return
	}

	snap, err := h.service.Snapshot(c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	if snap.Competition.CreatorID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not the competition creator"})
		return
	}

	lb, err := h.service.Leaderboard(c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"competition": snap,
		"leaderboard": lb,
	})
}

func (h *RESTHandler) leaderboard(c *gin.Context) {
	lb, err := h.service.Leaderboard(c.Param("id"))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, lb)
}
