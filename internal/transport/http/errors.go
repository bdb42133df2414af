package http

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"competition-service/internal/domain"
)

// genericErrorMessage is all a client learns about errors outside the domain
// taxonomy. The raw error stays in the server log only.
const genericErrorMessage = "internal server error"

var errorStatuses = map[error]int{
	domain.ErrCompetitionNotFound:    http.StatusNotFound,
	domain.ErrParticipantNotFound:    http.StatusNotFound,
	domain.ErrTeamNotFound:           http.StatusNotFound,
	domain.ErrTestNotFound:           http.StatusNotFound,
	domain.ErrQuestionNotFound:       http.StatusNotFound,
	domain.ErrForbidden:              http.StatusForbidden,
	domain.ErrInvalidTeamCount:       http.StatusBadRequest,
	domain.ErrEmptyDisplayName:       http.StatusBadRequest,
	domain.ErrCompetitionNotJoinable: http.StatusConflict,
	domain.ErrAlreadyStarted:         http.StatusConflict,
	domain.ErrNotReady:               http.StatusConflict,
	domain.ErrTeamFull:               http.StatusConflict,
	domain.ErrNotTeamMember:          http.StatusConflict,
	domain.ErrNotAuthorizedPlayer:    http.StatusConflict,
	domain.ErrStaleQuestion:          http.StatusConflict,
}

// domainStatus resolves an error to the HTTP status of the sentinel it wraps.
func domainStatus(err error) (int, bool) {
	for sentinel, status := range errorStatuses {
		if errors.Is(err, sentinel) {
			return status, true
		}
	}
	return 0, false
}

// writeDomainError maps sentinel errors onto HTTP statuses. Anything outside
// the taxonomy is logged server-side and answered with a generic 500 body.
func writeDomainError(c *gin.Context, err error) {
	status, known := domainStatus(err)
	if !known {
		log.Printf("internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": genericErrorMessage})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// clientErrorMessage is the websocket counterpart of writeDomainError:
// sentinel text passes through, everything else is logged and genericized.
func clientErrorMessage(err error) string {
	if _, known := domainStatus(err); known {
		return err.Error()
	}
	log.Printf("internal error: %v", err)
	return genericErrorMessage
}
