package app

import (
	"strings"
	"sync"
	"time"

	"competition-service/internal/domain"
)

// Session holds the live state of one competition. Every mutation and every
// broadcast happens under the session mutex, which makes the session the unit
// of mutual exclusion: operations on one competition are serialized, while
// different competitions never contend.
type Session struct {
	mu  sync.Mutex
	now func() time.Time

	comp          domain.Competition
	teamCapacity  int
	chatCap       int
	partialCredit bool
	questions     []domain.Question

	teams        []*teamState
	participants map[string]*participantState
	subscribers  map[chan domain.Event]string
}

type teamState struct {
	id    string
	name  string
	color string

	score          int
	members        []string
	selectedPlayer string

	questionIndex int
	correct       int
	incorrect     int
	completedAt   *time.Time

	chat []domain.ChatMessage
}

type participantState struct {
	id          string
	displayName string
	guest       bool
	online      bool
	teamID      string
	joinedAt    time.Time
}

// TeamSeed describes one templated team slot created with the competition.
type TeamSeed struct {
	ID    string
	Name  string
	Color string
}

// NewSession builds a session in WAITING state with its fixed team slots.
func NewSession(comp domain.Competition, questions []domain.Question, seeds []TeamSeed, teamCapacity, chatCap int) *Session {
	return newSessionWithClock(comp, questions, seeds, teamCapacity, chatCap, false, time.Now)
}

// NewSessionWithClock injects scoring mode and the clock used for all
// timestamps. Both must be fixed before the session is shared.
func NewSessionWithClock(comp domain.Competition, questions []domain.Question, seeds []TeamSeed, teamCapacity, chatCap int, partialCredit bool, now func() time.Time) *Session {
	return newSessionWithClock(comp, questions, seeds, teamCapacity, chatCap, partialCredit, now)
}

func newSessionWithClock(comp domain.Competition, questions []domain.Question, seeds []TeamSeed, teamCapacity, chatCap int, partialCredit bool, now func() time.Time) *Session {
	teams := make([]*teamState, 0, len(seeds))
	for _, seed := range seeds {
		teams = append(teams, &teamState{id: seed.ID, name: seed.Name, color: seed.Color})
	}
	return &Session{
		now:           now,
		comp:          comp,
		teamCapacity:  teamCapacity,
		chatCap:       chatCap,
		partialCredit: partialCredit,
		questions:     questions,
		teams:         teams,
		participants:  make(map[string]*participantState),
		subscribers:   make(map[chan domain.Event]string),
	}
}

// Competition returns the competition header (id, code, status, stamps).
func (s *Session) Competition() domain.Competition {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.comp
}

// Join registers a new participant while the competition is assembling.
// Rejoining is done through Connect with the already-issued participant id.
func (s *Session) Join(participantID, displayName string, guest bool) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(displayName) == "" {
		return domain.Participant{}, domain.ErrEmptyDisplayName
	}
	if s.comp.Status != domain.StatusWaiting {
		return domain.Participant{}, domain.ErrCompetitionNotJoinable
	}

	p := &participantState{
		id:          participantID,
		displayName: strings.TrimSpace(displayName),
		guest:       guest,
		joinedAt:    s.now(),
	}
	s.participants[participantID] = p

	s.emitLocked(domain.Event{
		Type:    domain.EventCompetitionUpdated,
		Scope:   domain.ScopeCompetition,
		Payload: s.snapshotLocked(),
	})
	return s.participantViewLocked(p), nil
}

// Connect attaches a live connection to an existing participant and returns
// the full snapshot the client must rebuild its state from.
func (s *Session) Connect(participantID string) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[participantID]
	if !ok {
		return domain.Snapshot{}, domain.ErrParticipantNotFound
	}
	p.online = true

	snap := s.snapshotLocked()
	s.emitLocked(domain.Event{
		Type:    domain.EventCompetitionUpdated,
		Scope:   domain.ScopeCompetition,
		Payload: snap,
	})
	return snap, nil
}

// Disconnect marks the participant offline. The slot is kept so the same
// participant id can reconnect and resume.
func (s *Session) Disconnect(participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[participantID]
	if !ok {
		return
	}
	p.online = false

	s.emitLocked(domain.Event{
		Type:    domain.EventCompetitionUpdated,
		Scope:   domain.ScopeCompetition,
		Payload: s.snapshotLocked(),
	})
}

// SelectTeam moves the participant into the team, leaving any prior team.
func (s *Session) SelectTeam(participantID, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.comp.Status != domain.StatusWaiting {
		return domain.ErrCompetitionNotJoinable
	}
	p, ok := s.participants[participantID]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	target := s.teamByID(teamID)
	if target == nil {
		return domain.ErrTeamNotFound
	}
	if p.teamID == teamID {
		return nil
	}
	if len(target.members) >= s.teamCapacity {
		return domain.ErrTeamFull
	}

	if prior := s.teamByID(p.teamID); prior != nil {
		prior.removeMember(participantID)
	}
	target.members = append(target.members, participantID)
	p.teamID = teamID

	s.emitLocked(domain.Event{
		Type:    domain.EventCompetitionUpdated,
		Scope:   domain.ScopeCompetition,
		Payload: s.snapshotLocked(),
	})
	return nil
}

// SelectPlayer designates the team member whose answers count for the team.
// Selecting a new player silently supersedes the prior selection.
func (s *Session) SelectPlayer(teamID, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.comp.Status != domain.StatusWaiting {
		return domain.ErrCompetitionNotJoinable
	}
	team := s.teamByID(teamID)
	if team == nil {
		return domain.ErrTeamNotFound
	}
	if !team.hasMember(participantID) {
		return domain.ErrNotTeamMember
	}
	team.selectedPlayer = participantID

	s.emitLocked(domain.Event{
		Type:    domain.EventCompetitionUpdated,
		Scope:   domain.ScopeCompetition,
		Payload: s.snapshotLocked(),
	})
	return nil
}

// Start transitions WAITING -> IN_PROGRESS and pushes the first question to
// each populated team's selected player. Only the creator may start.
func (s *Session) Start(requesterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if requesterID != s.comp.CreatorID {
		return domain.ErrForbidden
	}
	if s.comp.Status != domain.StatusWaiting {
		return domain.ErrAlreadyStarted
	}
	if !s.canStartLocked() {
		return domain.ErrNotReady
	}

	started := s.now()
	s.comp.Status = domain.StatusInProgress
	s.comp.StartedAt = &started

	s.emitLocked(domain.Event{
		Type:    domain.EventCompetitionStarted,
		Scope:   domain.ScopeCompetition,
		Payload: s.snapshotLocked(),
	})
	for _, team := range s.teams {
		if len(team.members) == 0 {
			continue
		}
		s.emitLocked(domain.Event{
			Type:          domain.EventCurrentQuestion,
			Scope:         domain.ScopeParticipant,
			ParticipantID: team.selectedPlayer,
			Payload:       s.questions[0].View(0, len(s.questions)),
		})
	}
	return nil
}

// SubmitAnswer evaluates the selected player's answer against the team's
// current question. It returns the result plus whether this submission
// completed the whole competition (last team finishing).
func (s *Session) SubmitAnswer(participantID string, sub domain.AnswerSubmission) (domain.AnswerResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.comp.Status != domain.StatusInProgress {
		return domain.AnswerResult{}, false, domain.ErrCompetitionNotJoinable
	}
	p, ok := s.participants[participantID]
	if !ok {
		return domain.AnswerResult{}, false, domain.ErrParticipantNotFound
	}
	team := s.teamByID(p.teamID)
	if team == nil || team.selectedPlayer != participantID {
		return domain.AnswerResult{}, false, domain.ErrNotAuthorizedPlayer
	}
	if team.completedAt != nil || team.questionIndex >= len(s.questions) {
		return domain.AnswerResult{}, false, domain.ErrStaleQuestion
	}
	current := s.questions[team.questionIndex]
	if current.ID != sub.QuestionID {
		return domain.AnswerResult{}, false, domain.ErrStaleQuestion
	}

	correct := evaluateAnswer(current, sub, s.partialCredit)
	if correct {
		team.score += current.Weight
		team.correct++
	} else {
		team.incorrect++
	}
	team.questionIndex++

	result := domain.AnswerResult{
		IsCorrect:    correct,
		UpdatedScore: team.score,
	}

	completedNow := false
	if team.questionIndex >= len(s.questions) {
		done := s.now()
		team.completedAt = &done
		result.TeamCompleted = true
		if s.allTeamsCompletedLocked() {
			s.comp.Status = domain.StatusCompleted
			s.comp.EndedAt = &done
			completedNow = true
		}
	} else {
		result.NextQuestionID = s.questions[team.questionIndex].ID
	}

	s.emitLocked(domain.Event{
		Type:          domain.EventAnswerResult,
		Scope:         domain.ScopeParticipant,
		ParticipantID: participantID,
		Payload:       result,
	})
	s.emitLocked(domain.Event{
		Type:    domain.EventCompetitionUpdated,
		Scope:   domain.ScopeCompetition,
		Payload: s.snapshotLocked(),
	})
	s.emitLocked(domain.Event{
		Type:    domain.EventLeaderboardUpdated,
		Scope:   domain.ScopeCompetition,
		Payload: s.leaderboardLocked(),
	})
	if result.NextQuestionID != "" {
		s.emitLocked(domain.Event{
			Type:          domain.EventCurrentQuestion,
			Scope:         domain.ScopeParticipant,
			ParticipantID: participantID,
			Payload:       s.questions[team.questionIndex].View(team.questionIndex, len(s.questions)),
		})
	}
	return result, completedNow, nil
}

// SendTeamMessage relays an ephemeral chat message to the sender's team only.
func (s *Session) SendTeamMessage(participantID, teamID, messageID, text string) (domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[participantID]
	if !ok {
		return domain.ChatMessage{}, domain.ErrParticipantNotFound
	}
	team := s.teamByID(teamID)
	if team == nil {
		return domain.ChatMessage{}, domain.ErrTeamNotFound
	}
	if p.teamID != teamID {
		return domain.ChatMessage{}, domain.ErrNotTeamMember
	}

	msg := domain.ChatMessage{
		ID:         messageID,
		TeamID:     teamID,
		SenderID:   participantID,
		SenderName: p.displayName,
		Text:       text,
		SentAt:     s.now(),
	}
	team.chat = append(team.chat, msg)
	if len(team.chat) > s.chatCap {
		team.chat = team.chat[len(team.chat)-s.chatCap:]
	}

	s.emitLocked(domain.Event{
		Type:    domain.EventTeamMessage,
		Scope:   domain.ScopeTeam,
		TeamID:  teamID,
		Payload: msg,
	})
	return msg, nil
}

// TeamChat returns the retained tail of a team's chat for reconnect catch-up.
func (s *Session) TeamChat(teamID string) []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	team := s.teamByID(teamID)
	if team == nil {
		return nil
	}
	out := make([]domain.ChatMessage, len(team.chat))
	copy(out, team.chat)
	return out
}

// CurrentQuestion returns the question currently in front of the team, or
// false when the team has finished (or the competition has not started).
func (s *Session) CurrentQuestion(teamID string) (domain.QuestionView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	team := s.teamByID(teamID)
	if team == nil || s.comp.Status != domain.StatusInProgress {
		return domain.QuestionView{}, false
	}
	if team.completedAt != nil || team.questionIndex >= len(s.questions) {
		return domain.QuestionView{}, false
	}
	return s.questions[team.questionIndex].View(team.questionIndex, len(s.questions)), true
}

// Subscribe registers an event channel for the participant. The caller must
// invoke cancel to avoid leaks. Events arrive in mutation order.
func (s *Session) Subscribe(participantID string) (<-chan domain.Event, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.participants[participantID]; !ok {
		return nil, nil, domain.ErrParticipantNotFound
	}

	ch := make(chan domain.Event, 32)
	s.subscribers[ch] = participantID

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

// Snapshot returns the full client-rebuildable state.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Leaderboard projects the ranked standings from current state.
func (s *Session) Leaderboard() domain.Leaderboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaderboardLocked()
}

// Result builds the final standings for persistence after completion.
func (s *Session) Result() domain.CompetitionResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	return domain.CompetitionResult{
		CompetitionID: s.comp.ID,
		Title:         s.comp.Title,
		TestID:        s.comp.TestID,
		StartedAt:     s.comp.StartedAt,
		EndedAt:       s.comp.EndedAt,
		Entries:       s.leaderboardLocked().Entries,
	}
}

func (s *Session) teamByID(teamID string) *teamState {
	for _, team := range s.teams {
		if team.id == teamID {
			return team
		}
	}
	return nil
}

// canStartLocked: every populated team is ready, and at least two teams have
// a selected player.
func (s *Session) canStartLocked() bool {
	withPlayer := 0
	for _, team := range s.teams {
		if len(team.members) == 0 {
			continue
		}
		if team.selectedPlayer == "" {
			return false
		}
		withPlayer++
	}
	return withPlayer >= 2
}

// allTeamsCompletedLocked only considers teams that entered the competition
// with members; empty slots never block completion.
func (s *Session) allTeamsCompletedLocked() bool {
	for _, team := range s.teams {
		if len(team.members) == 0 {
			continue
		}
		if team.completedAt == nil {
			return false
		}
	}
	return true
}

func (s *Session) participantViewLocked(p *participantState) domain.Participant {
	selected := false
	if team := s.teamByID(p.teamID); team != nil {
		selected = team.selectedPlayer == p.id
	}
	return domain.Participant{
		ID:             p.id,
		DisplayName:    p.displayName,
		Guest:          p.guest,
		Online:         p.online,
		TeamID:         p.teamID,
		SelectedPlayer: selected,
		JoinedAt:       p.joinedAt,
	}
}

func (s *Session) snapshotLocked() domain.Snapshot {
	teams := make([]domain.Team, 0, len(s.teams))
	for _, team := range s.teams {
		members := make([]domain.Participant, 0, len(team.members))
		for _, id := range team.members {
			if p, ok := s.participants[id]; ok {
				members = append(members, s.participantViewLocked(p))
			}
		}
		teams = append(teams, domain.Team{
			ID:               team.id,
			Name:             team.name,
			Color:            team.color,
			Score:            team.score,
			Ready:            len(team.members) > 0 && team.selectedPlayer != "",
			SelectedPlayerID: team.selectedPlayer,
			Participants:     members,
			CorrectCount:     team.correct,
			IncorrectCount:   team.incorrect,
			QuestionIndex:    team.questionIndex,
			Completed:        team.completedAt != nil,
			CompletedAt:      team.completedAt,
		})
	}

	var unassigned []domain.Participant
	for _, p := range s.participants {
		if p.teamID == "" {
			unassigned = append(unassigned, s.participantViewLocked(p))
		}
	}
	sortParticipants(unassigned)

	return domain.Snapshot{
		Competition:  s.comp,
		Teams:        teams,
		TeamCapacity: s.teamCapacity,
		Unassigned:   unassigned,
	}
}

// emitLocked fans an event out to every subscriber it is scoped to. A full
// subscriber buffer drops the oldest queued event rather than blocking or
// reordering; reconnect snapshot delivery recovers any gap.
func (s *Session) emitLocked(ev domain.Event) {
	for ch, participantID := range s.subscribers {
		if !s.scopedToLocked(ev, participantID) {
			continue
		}
		select {
		case ch <- ev:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}

func (s *Session) scopedToLocked(ev domain.Event, participantID string) bool {
	switch ev.Scope {
	case domain.ScopeCompetition:
		return true
	case domain.ScopeTeam:
		p, ok := s.participants[participantID]
		return ok && p.teamID == ev.TeamID
	case domain.ScopeParticipant:
		return ev.ParticipantID == participantID
	}
	return false
}

func (t *teamState) hasMember(participantID string) bool {
	for _, id := range t.members {
		if id == participantID {
			return true
		}
	}
	return false
}

func (t *teamState) removeMember(participantID string) {
	for i, id := range t.members {
		if id == participantID {
			t.members = append(t.members[:i], t.members[i+1:]...)
			break
		}
	}
	// A stale selection must not survive a membership change.
	if t.selectedPlayer == participantID {
		t.selectedPlayer = ""
	}
}
