package domain

// EventType names the server->client events of the real-time protocol.
type EventType string

const (
	EventCompetitionJoined  EventType = "competitionJoined"
	EventCompetitionUpdated EventType = "competitionUpdated"
	EventCompetitionStarted EventType = "competitionStarted"
	EventCurrentQuestion    EventType = "currentQuestion"
	EventTeamMessage        EventType = "teamMessage"
	EventLeaderboardUpdated EventType = "leaderboardUpdated"
	EventAnswerResult       EventType = "answerResult"
	EventError              EventType = "error"
)

// EventScope restricts delivery of a broadcast event.
type EventScope int

const (
	// ScopeCompetition delivers to every connected participant of the competition.
	ScopeCompetition EventScope = iota
	// ScopeTeam delivers to current members of TeamID only.
	ScopeTeam
	// ScopeParticipant delivers to ParticipantID only.
	ScopeParticipant
)

// Event is one ordered state broadcast. Events for a single competition are
// emitted under that competition's session lock, so subscribers observe them
// in the order the mutations were applied.
type Event struct {
	Type          EventType  `json:"type"`
	Scope         EventScope `json:"-"`
	TeamID        string     `json:"-"`
	ParticipantID string     `json:"-"`
	Payload       any        `json:"payload"`
}
