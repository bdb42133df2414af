package domain

import "errors"

var (
	// ErrCompetitionNotFound is returned when no session exists for the id or join code.
	ErrCompetitionNotFound = errors.New("competition not found")
	// ErrParticipantNotFound is returned when a participant id is not part of the competition.
	ErrParticipantNotFound = errors.New("participant not found in competition")
	// ErrTeamNotFound is returned when a team id does not belong to the competition.
	ErrTeamNotFound = errors.New("team not found in competition")
	// ErrTestNotFound indicates the source test could not be loaded.
	ErrTestNotFound = errors.New("test not found")
	// ErrQuestionNotFound indicates a submitted question id is not part of the test.
	ErrQuestionNotFound = errors.New("question not found")

	// ErrForbidden is returned when an actor invokes an operation reserved for the creator.
	ErrForbidden = errors.New("operation not allowed for this participant")
	// ErrNotReady is returned when start preconditions are unmet.
	ErrNotReady = errors.New("competition is not ready to start")
	// ErrAlreadyStarted guards start idempotency; it never corrupts state.
	ErrAlreadyStarted = errors.New("competition already started")
	// ErrTeamFull is returned when a team is at its configured capacity.
	ErrTeamFull = errors.New("team is full")
	// ErrNotTeamMember is returned when the participant is not a current member of the team.
	ErrNotTeamMember = errors.New("participant is not a member of the team")
	// ErrNotAuthorizedPlayer is returned when a non-selected teammate submits an answer.
	ErrNotAuthorizedPlayer = errors.New("participant is not the team's selected player")
	// ErrStaleQuestion rejects answers to a question the team has already advanced past.
	ErrStaleQuestion = errors.New("submission does not match the team's current question")
	// ErrCompetitionNotJoinable is returned when the competition status does not allow the action.
	ErrCompetitionNotJoinable = errors.New("competition status does not allow this action")

	// ErrInvalidTeamCount rejects competitions created with fewer than two teams.
	ErrInvalidTeamCount = errors.New("competition needs at least two teams")
	// ErrEmptyDisplayName rejects participants without a display name.
	ErrEmptyDisplayName = errors.New("display name must not be empty")
)
