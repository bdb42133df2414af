package app

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"competition-service/internal/domain"
)

// SessionRepository abstracts how live competition sessions are stored
// (in-memory, Redis-marked, etc). Join codes are matched case-insensitively.
type SessionRepository interface {
	Put(session *Session)
	Get(competitionID string) (*Session, bool)
	GetByCode(code string) (*Session, bool)
	Delete(competitionID string)
}

// TestRepository loads the question set a competition is played against.
type TestRepository interface {
	GetTest(ctx context.Context, testID string) (domain.Test, error)
}

// ResultsWriter persists final standings once a competition completes.
// Writes are fire-and-forget relative to the in-memory broadcast.
type ResultsWriter interface {
	WriteResult(ctx context.Context, result domain.CompetitionResult) error
}

// Options tunes coordinator behavior. Zero values fall back to defaults.
type Options struct {
	// TeamCapacity is the fixed per-team participant limit.
	TeamCapacity int
	// ChatHistory caps each team's retained chat tail.
	ChatHistory int
	// PartialCredit switches MULTIPLE_CHOICE evaluation from exact set match
	// to accepting a non-empty subset of the correct set.
	PartialCredit bool
	// ResultRetries / ResultBackoff control the final-results write retry loop.
	ResultRetries int
	ResultBackoff time.Duration
}

const (
	defaultTeamCapacity  = 4
	defaultChatHistory   = 100
	defaultResultRetries = 5
	defaultResultBackoff = 2 * time.Second

	joinCodeLength   = 6
	joinCodeAlphabet = "abcdefghjkmnpqrstuvwxyz23456789"
)

func (o Options) withDefaults() Options {
	if o.TeamCapacity <= 0 {
		o.TeamCapacity = defaultTeamCapacity
	}
	if o.ChatHistory <= 0 {
		o.ChatHistory = defaultChatHistory
	}
	if o.ResultRetries <= 0 {
		o.ResultRetries = defaultResultRetries
	}
	if o.ResultBackoff <= 0 {
		o.ResultBackoff = defaultResultBackoff
	}
	return o
}

// CompetitionService contains the competition coordination use cases. All
// state mutations funnel through the per-competition Session so invariants
// hold without global locks.
type CompetitionService struct {
	sessions SessionRepository
	tests    TestRepository
	results  ResultsWriter
	opts     Options
	now      func() time.Time
}

func NewCompetitionService(sessions SessionRepository, tests TestRepository, results ResultsWriter, opts Options) *CompetitionService {
	return &CompetitionService{
		sessions: sessions,
		tests:    tests,
		results:  results,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// CreateParams describes a new competition instance.
type CreateParams struct {
	Title     string
	TestID    string
	CreatorID string
	MaxTeams  int
}

// Create validates the request, loads the source test, and registers a new
// WAITING session with templated team slots and a fresh join code.
func (s *CompetitionService) Create(ctx context.Context, params CreateParams) (domain.Snapshot, error) {
	if params.MaxTeams < 2 {
		return domain.Snapshot{}, domain.ErrInvalidTeamCount
	}

	test, err := s.tests.GetTest(ctx, params.TestID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if len(test.Questions) == 0 {
		return domain.Snapshot{}, domain.ErrTestNotFound
	}

	code, err := s.uniqueJoinCode()
	if err != nil {
		return domain.Snapshot{}, err
	}

	comp := domain.Competition{
		ID:        uuid.NewString(),
		Code:      code,
		Title:     params.Title,
		TestID:    params.TestID,
		MaxTeams:  params.MaxTeams,
		Status:    domain.StatusWaiting,
		CreatorID: params.CreatorID,
	}

	session := NewSessionWithClock(comp, test.Questions, teamSeeds(params.MaxTeams), s.opts.TeamCapacity, s.opts.ChatHistory, s.opts.PartialCredit, s.now)
	s.sessions.Put(session)

	log.Printf("competition created: id=%s code=%s teams=%d questions=%d", comp.ID, comp.Code, params.MaxTeams, len(test.Questions))
	return session.Snapshot(), nil
}

// JoinByCode resolves a join code and registers a participant (guest or
// authenticated). The returned snapshot bootstraps the client before its
// socket connects.
func (s *CompetitionService) JoinByCode(_ context.Context, code, displayName string, guest bool) (domain.Participant, domain.Snapshot, error) {
	session, ok := s.sessions.GetByCode(normalizeCode(code))
	if !ok {
		return domain.Participant{}, domain.Snapshot{}, domain.ErrCompetitionNotFound
	}
	participant, err := session.Join(uuid.NewString(), displayName, guest)
	if err != nil {
		return domain.Participant{}, domain.Snapshot{}, err
	}
	return participant, session.Snapshot(), nil
}

// Connect attaches a live connection to an existing participant.
func (s *CompetitionService) Connect(competitionID, participantID string) (domain.Snapshot, error) {
	session, err := s.session(competitionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return session.Connect(participantID)
}

// Disconnect marks the participant offline; the slot survives for reconnects.
func (s *CompetitionService) Disconnect(competitionID, participantID string) {
	if session, ok := s.sessions.Get(competitionID); ok {
		session.Disconnect(participantID)
	}
}

// SelectTeam moves a participant between team slots while assembling.
func (s *CompetitionService) SelectTeam(competitionID, participantID, teamID string) error {
	session, err := s.session(competitionID)
	if err != nil {
		return err
	}
	return session.SelectTeam(participantID, teamID)
}

// SelectPlayer designates the member whose answers count for the team.
func (s *CompetitionService) SelectPlayer(competitionID, teamID, participantID string) error {
	session, err := s.session(competitionID)
	if err != nil {
		return err
	}
	return session.SelectPlayer(teamID, participantID)
}

// Start transitions the competition to IN_PROGRESS (creator only).
func (s *CompetitionService) Start(competitionID, requesterID string) error {
	session, err := s.session(competitionID)
	if err != nil {
		return err
	}
	return session.Start(requesterID)
}

// SubmitAnswer scores the selected player's submission. When the submission
// completes the last team, final standings are handed to the results writer
// asynchronously so a slow backend never blocks live broadcasts.
func (s *CompetitionService) SubmitAnswer(competitionID, participantID string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	session, err := s.session(competitionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	result, completed, err := session.SubmitAnswer(participantID, sub)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if completed {
		go s.persistResult(session.Result())
	}
	return result, nil
}

// SendTeamMessage relays a chat message to the sender's team.
func (s *CompetitionService) SendTeamMessage(competitionID, participantID, teamID, text string) (domain.ChatMessage, error) {
	session, err := s.session(competitionID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	return session.SendTeamMessage(participantID, teamID, uuid.NewString(), text)
}

// TeamChat returns the retained chat tail for reconnect catch-up.
func (s *CompetitionService) TeamChat(competitionID, teamID string) ([]domain.ChatMessage, error) {
	session, err := s.session(competitionID)
	if err != nil {
		return nil, err
	}
	return session.TeamChat(teamID), nil
}

// Subscribe returns the participant's ordered event stream for one competition.
func (s *CompetitionService) Subscribe(competitionID, participantID string) (<-chan domain.Event, func(), error) {
	session, err := s.session(competitionID)
	if err != nil {
		return nil, nil, err
	}
	return session.Subscribe(participantID)
}

// Snapshot returns the poll-friendly full state (creator dashboard fallback).
func (s *CompetitionService) Snapshot(competitionID string) (domain.Snapshot, error) {
	session, err := s.session(competitionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return session.Snapshot(), nil
}

// Leaderboard returns the current ranked standings.
func (s *CompetitionService) Leaderboard(competitionID string) (domain.Leaderboard, error) {
	session, err := s.session(competitionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return session.Leaderboard(), nil
}

// CurrentQuestion returns the team's pending question, if any, for resyncs.
func (s *CompetitionService) CurrentQuestion(competitionID, teamID string) (domain.QuestionView, bool, error) {
	session, err := s.session(competitionID)
	if err != nil {
		return domain.QuestionView{}, false, err
	}
	view, ok := session.CurrentQuestion(teamID)
	return view, ok, nil
}

func (s *CompetitionService) session(competitionID string) (*Session, error) {
	session, ok := s.sessions.Get(competitionID)
	if !ok {
		return nil, domain.ErrCompetitionNotFound
	}
	return session, nil
}

// persistResult retries with linear backoff and logs terminal failures. It
// must never roll back in-memory state participants have already observed.
func (s *CompetitionService) persistResult(result domain.CompetitionResult) {
	if s.results == nil {
		return
	}
	var lastErr error
	for attempt := 1; attempt <= s.opts.ResultRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		lastErr = s.results.WriteResult(ctx, result)
		cancel()
		if lastErr == nil {
			log.Printf("results persisted: competition=%s teams=%d", result.CompetitionID, len(result.Entries))
			return
		}
		log.Printf("results write failed (attempt %d/%d) for competition %s: %v", attempt, s.opts.ResultRetries, result.CompetitionID, lastErr)
		time.Sleep(time.Duration(attempt) * s.opts.ResultBackoff)
	}
	log.Printf("giving up on results write for competition %s: %v", result.CompetitionID, lastErr)
}

func (s *CompetitionService) uniqueJoinCode() (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		code, err := generateJoinCode()
		if err != nil {
			return "", err
		}
		if _, taken := s.sessions.GetByCode(code); !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique join code")
}

// generateJoinCode produces a 6-character human-typable code. The alphabet
// skips characters easily confused when read aloud (0/o, 1/l/i).
func generateJoinCode() (string, error) {
	buf := make([]byte, joinCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate join code: %w", err)
	}
	for i, b := range buf {
		buf[i] = joinCodeAlphabet[int(b)%len(joinCodeAlphabet)]
	}
	return string(buf), nil
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

var teamPalette = []struct {
	name  string
	color string
}{
	{"Red", "#e74c3c"},
	{"Blue", "#3498db"},
	{"Green", "#2ecc71"},
	{"Yellow", "#f1c40f"},
	{"Purple", "#9b59b6"},
	{"Orange", "#e67e22"},
	{"Teal", "#1abc9c"},
	{"Pink", "#fd79a8"},
}

func teamSeeds(count int) []TeamSeed {
	seeds := make([]TeamSeed, 0, count)
	for i := 0; i < count; i++ {
		entry := teamPalette[i%len(teamPalette)]
		name := entry.name
		if i >= len(teamPalette) {
			name = fmt.Sprintf("%s %d", entry.name, i/len(teamPalette)+1)
		}
		seeds = append(seeds, TeamSeed{
			ID:    uuid.NewString(),
			Name:  name,
			Color: entry.color,
		})
	}
	return seeds
}
