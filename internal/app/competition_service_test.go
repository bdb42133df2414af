package app_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"competition-service/internal/app"
	"competition-service/internal/domain"
	"competition-service/internal/infra/memory"
)

func TestCreateValidatesTeamCount(t *testing.T) {
	service, _ := newTestService(nil)

	_, err := service.Create(context.Background(), app.CreateParams{
		Title: "Friday quiz", TestID: "test-1", CreatorID: "creator", MaxTeams: 1,
	})
	if err != domain.ErrInvalidTeamCount {
		t.Fatalf("expected ErrInvalidTeamCount, got %v", err)
	}

	_, err = service.Create(context.Background(), app.CreateParams{
		Title: "Friday quiz", TestID: "missing", CreatorID: "creator", MaxTeams: 2,
	})
	if err != domain.ErrTestNotFound {
		t.Fatalf("expected ErrTestNotFound, got %v", err)
	}
}

func TestJoinByCodeIsCaseInsensitive(t *testing.T) {
	service, _ := newTestService(nil)
	snap := mustCreate(t, service, 2)

	upper := strings.ToUpper(snap.Competition.Code)
	if _, _, err := service.JoinByCode(context.Background(), upper, "Alice", false); err != nil {
		t.Fatalf("join with uppercase code: %v", err)
	}
	if _, _, err := service.JoinByCode(context.Background(), snap.Competition.Code, "  ", true); err != domain.ErrEmptyDisplayName {
		t.Fatalf("expected ErrEmptyDisplayName, got %v", err)
	}
	if _, _, err := service.JoinByCode(context.Background(), "zzzzzz", "Bob", true); err != domain.ErrCompetitionNotFound {
		t.Fatalf("expected ErrCompetitionNotFound, got %v", err)
	}
}

func TestTeamCapacityAndMembership(t *testing.T) {
	service, _ := newTestService(&app.Options{TeamCapacity: 2})
	snap := mustCreate(t, service, 2)
	compID := snap.Competition.ID
	teamA := snap.Teams[0].ID
	teamB := snap.Teams[1].ID

	a := mustJoin(t, service, snap.Competition.Code, "Alice")
	b := mustJoin(t, service, snap.Competition.Code, "Bob")
	c := mustJoin(t, service, snap.Competition.Code, "Cara")

	for _, id := range []string{a, b} {
		if err := service.SelectTeam(compID, id, teamA); err != nil {
			t.Fatalf("select team: %v", err)
		}
	}
	if err := service.SelectTeam(compID, c, teamA); err != domain.ErrTeamFull {
		t.Fatalf("expected ErrTeamFull, got %v", err)
	}

	// Switching teams frees the old slot and never leaves a double membership.
	if err := service.SelectTeam(compID, b, teamB); err != nil {
		t.Fatalf("switch team: %v", err)
	}
	if err := service.SelectTeam(compID, c, teamA); err != nil {
		t.Fatalf("expected freed slot, got %v", err)
	}

	state, err := service.Snapshot(compID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	seen := map[string]int{}
	for _, team := range state.Teams {
		for _, member := range team.Participants {
			seen[member.ID]++
		}
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("participant %s appears in %d teams", id, n)
		}
	}
}

func TestSelectPlayerRequiresMembership(t *testing.T) {
	service, _ := newTestService(nil)
	snap := mustCreate(t, service, 2)
	compID := snap.Competition.ID

	a := mustJoin(t, service, snap.Competition.Code, "Alice")
	if err := service.SelectPlayer(compID, snap.Teams[0].ID, a); err != domain.ErrNotTeamMember {
		t.Fatalf("expected ErrNotTeamMember, got %v", err)
	}

	if err := service.SelectTeam(compID, a, snap.Teams[0].ID); err != nil {
		t.Fatalf("select team: %v", err)
	}
	if err := service.SelectPlayer(compID, snap.Teams[0].ID, a); err != nil {
		t.Fatalf("select player: %v", err)
	}
}

func TestStartGating(t *testing.T) {
	service, _ := newTestService(nil)
	snap := mustCreate(t, service, 2)
	compID := snap.Competition.ID

	a := mustJoin(t, service, snap.Competition.Code, "Alice")
	b := mustJoin(t, service, snap.Competition.Code, "Bob")

	if err := service.Start(compID, "someone-else"); err != domain.ErrForbidden {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := service.Start(compID, "creator"); err != domain.ErrNotReady {
		t.Fatalf("expected ErrNotReady with no teams, got %v", err)
	}

	mustAssign(t, service, compID, a, snap.Teams[0].ID)
	mustAssign(t, service, compID, b, snap.Teams[1].ID)

	if err := service.Start(compID, "creator"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := service.Start(compID, "creator"); err != domain.ErrAlreadyStarted {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	if err := service.SelectTeam(compID, a, snap.Teams[1].ID); err != domain.ErrCompetitionNotJoinable {
		t.Fatalf("expected team changes locked after start, got %v", err)
	}
}

func TestSubmitAnswerAuthorizationAndStaleness(t *testing.T) {
	service, _ := newTestService(nil)
	snap := mustCreate(t, service, 2)
	compID := snap.Competition.ID

	a := mustJoin(t, service, snap.Competition.Code, "Alice")
	b := mustJoin(t, service, snap.Competition.Code, "Bob")
	helper := mustJoin(t, service, snap.Competition.Code, "Helper")

	mustAssign(t, service, compID, a, snap.Teams[0].ID)
	mustAssign(t, service, compID, b, snap.Teams[1].ID)
	if err := service.SelectTeam(compID, helper, snap.Teams[0].ID); err != nil {
		t.Fatalf("select team: %v", err)
	}

	sub := domain.AnswerSubmission{QuestionID: "q1", SelectedAnswers: []string{"o2"}}
	if _, err := service.SubmitAnswer(compID, a, sub); err != domain.ErrCompetitionNotJoinable {
		t.Fatalf("expected submit rejected before start, got %v", err)
	}

	if err := service.Start(compID, "creator"); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := service.SubmitAnswer(compID, helper, sub); err != domain.ErrNotAuthorizedPlayer {
		t.Fatalf("expected ErrNotAuthorizedPlayer, got %v", err)
	}
	if _, err := service.SubmitAnswer(compID, a, domain.AnswerSubmission{QuestionID: "q2"}); err != domain.ErrStaleQuestion {
		t.Fatalf("expected ErrStaleQuestion, got %v", err)
	}
}

func TestScoringThroughCompletion(t *testing.T) {
	writer := &capturingWriter{done: make(chan domain.CompetitionResult, 1)}
	service, _ := newTestServiceWithWriter(nil, writer)
	snap := mustCreate(t, service, 2)
	compID := snap.Competition.ID

	a := mustJoin(t, service, snap.Competition.Code, "Alice")
	b := mustJoin(t, service, snap.Competition.Code, "Bob")
	mustAssign(t, service, compID, a, snap.Teams[0].ID)
	mustAssign(t, service, compID, b, snap.Teams[1].ID)
	if err := service.Start(compID, "creator"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Alice: both right. Bob: first wrong, second right.
	res, err := service.SubmitAnswer(compID, a, domain.AnswerSubmission{QuestionID: "q1", SelectedAnswers: []string{"o2"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.IsCorrect || res.UpdatedScore != 2 || res.NextQuestionID != "q2" {
		t.Fatalf("unexpected result %+v", res)
	}
	res, err = service.SubmitAnswer(compID, a, domain.AnswerSubmission{QuestionID: "q2", UserAnswer: "  FOUR "})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.IsCorrect || res.UpdatedScore != 5 || !res.TeamCompleted {
		t.Fatalf("unexpected result %+v", res)
	}

	if _, err := service.SubmitAnswer(compID, b, domain.AnswerSubmission{QuestionID: "q1", SelectedAnswers: []string{"o1"}}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, err = service.SubmitAnswer(compID, b, domain.AnswerSubmission{QuestionID: "q2", UserAnswer: "four"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.TeamCompleted {
		t.Fatalf("expected Bob's team completed, got %+v", res)
	}

	state, err := service.Snapshot(compID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if state.Competition.Status != domain.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", state.Competition.Status)
	}

	lb, err := service.Leaderboard(compID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if lb.Entries[0].Score != 5 || lb.Entries[0].Position != 1 {
		t.Fatalf("expected Alice's team first with 5, got %+v", lb.Entries[0])
	}
	if lb.Entries[1].Score != 3 || lb.Entries[1].Position != 2 {
		t.Fatalf("expected Bob's team second with 3, got %+v", lb.Entries[1])
	}

	select {
	case result := <-writer.done:
		if result.CompetitionID != compID || len(result.Entries) != 2 {
			t.Fatalf("unexpected persisted result %+v", result)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("results writer was never called")
	}
}

func TestPartialCreditOptionReachesScoring(t *testing.T) {
	store := memory.NewSessionStore()
	tests := memory.NewTestRepository(memory.NewStaticTestLoader(map[string]domain.Test{
		"test-1": {
			ID: "test-1",
			Questions: []domain.Question{
				{
					ID:   "q1",
					Type: domain.QuestionMultipleChoice,
					Options: []domain.Option{
						{ID: "o1", Text: "2"},
						{ID: "o2", Text: "3"},
						{ID: "o3", Text: "5"},
					},
					CorrectAnswers: []string{"o1", "o3"},
					Weight:         4,
				},
			},
		},
	}), 5*time.Minute)
	service := app.NewCompetitionService(store, tests, nil, app.Options{
		PartialCredit: true, ResultRetries: 1, ResultBackoff: time.Millisecond,
	})

	snap := mustCreate(t, service, 2)
	compID := snap.Competition.ID
	a := mustJoin(t, service, snap.Competition.Code, "Alice")
	b := mustJoin(t, service, snap.Competition.Code, "Bob")
	mustAssign(t, service, compID, a, snap.Teams[0].ID)
	mustAssign(t, service, compID, b, snap.Teams[1].ID)
	if err := service.Start(compID, "creator"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// A subset of the correct set scores under partial credit.
	res, err := service.SubmitAnswer(compID, a, domain.AnswerSubmission{QuestionID: "q1", SelectedAnswers: []string{"o3"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.IsCorrect || res.UpdatedScore != 4 {
		t.Fatalf("expected subset credit, got %+v", res)
	}

	// A wrong pick still fails even with partial credit on.
	res, err = service.SubmitAnswer(compID, b, domain.AnswerSubmission{QuestionID: "q1", SelectedAnswers: []string{"o1", "o2"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.IsCorrect || res.UpdatedScore != 0 {
		t.Fatalf("expected wrong pick to fail, got %+v", res)
	}
}

func TestLeaderboardTieBreaks(t *testing.T) {
	service, _ := newTestService(nil)
	snap := mustCreate(t, service, 2)
	compID := snap.Competition.ID

	a := mustJoin(t, service, snap.Competition.Code, "Alice")
	b := mustJoin(t, service, snap.Competition.Code, "Bob")
	mustAssign(t, service, compID, a, snap.Teams[0].ID)
	mustAssign(t, service, compID, b, snap.Teams[1].ID)
	if err := service.Start(compID, "creator"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Both teams answer q1 wrong and q2 right: tied on score and incorrect
	// count, so the tie breaks on who completed first.
	for _, id := range []string{a, b} {
		if _, err := service.SubmitAnswer(compID, id, domain.AnswerSubmission{QuestionID: "q1", SelectedAnswers: []string{"o1"}}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	if _, err := service.SubmitAnswer(compID, b, domain.AnswerSubmission{QuestionID: "q2", UserAnswer: "four"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := service.SubmitAnswer(compID, a, domain.AnswerSubmission{QuestionID: "q2", UserAnswer: "four"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	lb, err := service.Leaderboard(compID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if lb.Entries[0].Score != lb.Entries[1].Score {
		t.Fatalf("expected tied scores, got %+v", lb.Entries)
	}
	// Bob's team completed first and must rank ahead on the tie.
	if lb.Entries[0].TeamID != snap.Teams[1].ID {
		t.Fatalf("expected earlier finisher first, got %+v", lb.Entries)
	}
}

func TestTeamChatStaysWithinTeam(t *testing.T) {
	service, _ := newTestService(nil)
	snap := mustCreate(t, service, 2)
	compID := snap.Competition.ID

	a := mustJoin(t, service, snap.Competition.Code, "Alice")
	b := mustJoin(t, service, snap.Competition.Code, "Bob")
	mustAssign(t, service, compID, a, snap.Teams[0].ID)
	mustAssign(t, service, compID, b, snap.Teams[1].ID)

	chA, cancelA, err := service.Subscribe(compID, a)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelA()
	chB, cancelB, err := service.Subscribe(compID, b)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancelB()

	if _, err := service.SendTeamMessage(compID, a, snap.Teams[1].ID, "hi"); err != domain.ErrNotTeamMember {
		t.Fatalf("expected ErrNotTeamMember for foreign team, got %v", err)
	}
	msg, err := service.SendTeamMessage(compID, a, snap.Teams[0].ID, "go go go")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if msg.SenderName != "Alice" {
		t.Fatalf("unexpected message %+v", msg)
	}

	ev := waitForEvent(t, chA, domain.EventTeamMessage)
	got, ok := ev.Payload.(domain.ChatMessage)
	if !ok || got.Text != "go go go" {
		t.Fatalf("unexpected chat payload %+v", ev.Payload)
	}

	// Bob must never see another team's chat.
	drainUntilQuiet(chB, 100*time.Millisecond, func(ev domain.Event) {
		if ev.Type == domain.EventTeamMessage {
			t.Fatalf("chat leaked to another team: %+v", ev)
		}
	})
}

func TestReconnectSnapshotReflectsCurrentState(t *testing.T) {
	service, _ := newTestService(nil)
	snap := mustCreate(t, service, 2)
	compID := snap.Competition.ID

	a := mustJoin(t, service, snap.Competition.Code, "Alice")
	b := mustJoin(t, service, snap.Competition.Code, "Bob")
	mustAssign(t, service, compID, a, snap.Teams[0].ID)
	mustAssign(t, service, compID, b, snap.Teams[1].ID)
	if err := service.Start(compID, "creator"); err != nil {
		t.Fatalf("start: %v", err)
	}

	service.Disconnect(compID, a)
	if _, err := service.SubmitAnswer(compID, b, domain.AnswerSubmission{QuestionID: "q1", SelectedAnswers: []string{"o2"}}); err != nil {
		t.Fatalf("submit while disconnected: %v", err)
	}

	state, err := service.Connect(compID, a)
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if state.Competition.Status != domain.StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", state.Competition.Status)
	}
	var bobTeam domain.Team
	for _, team := range state.Teams {
		if team.ID == snap.Teams[1].ID {
			bobTeam = team
		}
	}
	if bobTeam.Score != 2 || bobTeam.QuestionIndex != 1 {
		t.Fatalf("snapshot missed progress made while offline: %+v", bobTeam)
	}
}

func TestSubscribeDeliversInMutationOrder(t *testing.T) {
	service, _ := newTestService(nil)
	snap := mustCreate(t, service, 2)
	compID := snap.Competition.ID

	a := mustJoin(t, service, snap.Competition.Code, "Alice")
	ch, cancel, err := service.Subscribe(compID, a)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	b := mustJoin(t, service, snap.Competition.Code, "Bob")
	mustAssign(t, service, compID, a, snap.Teams[0].ID)
	mustAssign(t, service, compID, b, snap.Teams[1].ID)
	if err := service.Start(compID, "creator"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The started event must arrive after the assembly updates, never before.
	sawStarted := false
	drainUntilQuiet(ch, 100*time.Millisecond, func(ev domain.Event) {
		if ev.Type == domain.EventCompetitionStarted {
			sawStarted = true
			return
		}
		if sawStarted && ev.Type == domain.EventCompetitionUpdated {
			if payload, ok := ev.Payload.(domain.Snapshot); ok && payload.Competition.Status == domain.StatusWaiting {
				t.Fatalf("WAITING snapshot delivered after started event")
			}
		}
	})
	if !sawStarted {
		t.Fatalf("never observed the started event")
	}
}

// helpers

type capturingWriter struct {
	done chan domain.CompetitionResult
}

func (w *capturingWriter) WriteResult(_ context.Context, result domain.CompetitionResult) error {
	w.done <- result
	return nil
}

func newTestService(opts *app.Options) (*app.CompetitionService, *memory.SessionStore) {
	return newTestServiceWithWriter(opts, nil)
}

func newTestServiceWithWriter(opts *app.Options, writer app.ResultsWriter) (*app.CompetitionService, *memory.SessionStore) {
	store := memory.NewSessionStore()
	tests := memory.NewTestRepository(memory.NewStaticTestLoader(map[string]domain.Test{
		"test-1": {
			ID:    "test-1",
			Title: "Arithmetic",
			Questions: []domain.Question{
				{
					ID:    "q1",
					Title: "What is 2 + 2?",
					Type:  domain.QuestionMultipleChoice,
					Options: []domain.Option{
						{ID: "o1", Text: "3"},
						{ID: "o2", Text: "4"},
					},
					CorrectAnswers: []string{"o2"},
					Weight:         2,
				},
				{
					ID:             "q2",
					Title:          "Spell 4",
					Type:           domain.QuestionShortAnswer,
					CorrectAnswers: []string{"four"},
					Weight:         3,
				},
			},
		},
	}), 5*time.Minute)

	options := app.Options{ResultRetries: 1, ResultBackoff: time.Millisecond}
	if opts != nil {
		options = *opts
	}
	return app.NewCompetitionService(store, tests, writer, options), store
}

func mustCreate(t *testing.T, service *app.CompetitionService, teams int) domain.Snapshot {
	t.Helper()
	snap, err := service.Create(context.Background(), app.CreateParams{
		Title: "Friday quiz", TestID: "test-1", CreatorID: "creator", MaxTeams: teams,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return snap
}

func mustJoin(t *testing.T, service *app.CompetitionService, code, name string) string {
	t.Helper()
	participant, _, err := service.JoinByCode(context.Background(), code, name, true)
	if err != nil {
		t.Fatalf("join %s: %v", name, err)
	}
	return participant.ID
}

// mustAssign puts the participant on the team and makes them its player.
func mustAssign(t *testing.T, service *app.CompetitionService, compID, participantID, teamID string) {
	t.Helper()
	if err := service.SelectTeam(compID, participantID, teamID); err != nil {
		t.Fatalf("select team: %v", err)
	}
	if err := service.SelectPlayer(compID, teamID, participantID); err != nil {
		t.Fatalf("select player: %v", err)
	}
}

func waitForEvent(t *testing.T, ch <-chan domain.Event, want domain.EventType) domain.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func drainUntilQuiet(ch <-chan domain.Event, quiet time.Duration, visit func(domain.Event)) {
	for {
		select {
		case ev := <-ch:
			visit(ev)
		case <-time.After(quiet):
			return
		}
	}
}
