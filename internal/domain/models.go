package domain

import "time"

// CompetitionStatus is the lifecycle phase of a competition. Transitions are
// monotonic: WAITING -> IN_PROGRESS -> COMPLETED, never backwards.
type CompetitionStatus string

const (
	StatusWaiting    CompetitionStatus = "WAITING"
	StatusInProgress CompetitionStatus = "IN_PROGRESS"
	StatusCompleted  CompetitionStatus = "COMPLETED"
)

// QuestionType discriminates how an answer submission is evaluated.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTrueFalse      QuestionType = "TRUE_FALSE"
	QuestionShortAnswer    QuestionType = "SHORT_ANSWER"
)

// Competition is a single hosted quiz-competition instance.
type Competition struct {
	ID        string            `json:"id"`
	Code      string            `json:"code"`
	Title     string            `json:"title"`
	TestID    string            `json:"testId"`
	MaxTeams  int               `json:"maxTeams"`
	Status    CompetitionStatus `json:"status"`
	CreatorID string            `json:"creatorId"`
	StartedAt *time.Time        `json:"startedAt,omitempty"`
	EndedAt   *time.Time        `json:"endedAt,omitempty"`
}

// Participant is one connected (or previously connected) actor in a
// competition. Guests have no backing user account and live only as long as
// the competition does.
type Participant struct {
	ID             string    `json:"id"`
	DisplayName    string    `json:"displayName"`
	Guest          bool      `json:"guest"`
	Online         bool      `json:"online"`
	TeamID         string    `json:"teamId,omitempty"`
	SelectedPlayer bool      `json:"selectedPlayer"`
	JoinedAt       time.Time `json:"joinedAt"`
}

// Team is a snapshot view of one team slot within a competition.
type Team struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Color            string        `json:"color"`
	Score            int           `json:"score"`
	Ready            bool          `json:"ready"`
	SelectedPlayerID string        `json:"selectedPlayerId,omitempty"`
	Participants     []Participant `json:"participants"`
	CorrectCount     int           `json:"correctCount"`
	IncorrectCount   int           `json:"incorrectCount"`
	QuestionIndex    int           `json:"questionIndex"`
	Completed        bool          `json:"completed"`
	CompletedAt      *time.Time    `json:"completedAt,omitempty"`
}

// Option is one selectable answer of a multiple-choice or true/false question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question carries the correct-answer set and must never be sent to
// participants as-is; use View for anything that crosses the wire before
// evaluation.
type Question struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Type           QuestionType `json:"type"`
	Options        []Option     `json:"options,omitempty"`
	CorrectAnswers []string     `json:"correctAnswers"`
	Weight         int          `json:"weight"`
}

// View strips the correct-answer set for transmission.
func (q Question) View(index, total int) QuestionView {
	return QuestionView{
		ID:      q.ID,
		Title:   q.Title,
		Type:    q.Type,
		Options: q.Options,
		Weight:  q.Weight,
		Index:   index,
		Total:   total,
	}
}

// QuestionView is the participant-facing projection of a question.
type QuestionView struct {
	ID      string       `json:"id"`
	Title   string       `json:"title"`
	Type    QuestionType `json:"type"`
	Options []Option     `json:"options,omitempty"`
	Weight  int          `json:"weight"`
	Index   int          `json:"index"`
	Total   int          `json:"total"`
}

// Test is the question set a competition is played against.
type Test struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// AnswerSubmission models the scoring signal from the selected player.
// SelectedAnswers is used for MULTIPLE_CHOICE / TRUE_FALSE, UserAnswer for
// SHORT_ANSWER.
type AnswerSubmission struct {
	QuestionID      string   `json:"questionId"`
	SelectedAnswers []string `json:"selectedAnswers,omitempty"`
	UserAnswer      string   `json:"userAnswer,omitempty"`
}

// AnswerResult summarizes the outcome of a submission for the submitter.
// NextQuestionID is empty when the team has exhausted its questions.
type AnswerResult struct {
	IsCorrect      bool   `json:"isCorrect"`
	UpdatedScore   int    `json:"updatedScore"`
	NextQuestionID string `json:"nextQuestionId,omitempty"`
	TeamCompleted  bool   `json:"teamCompleted"`
}

// ChatMessage is ephemeral and team-scoped; it is never delivered outside the
// sender's team.
type ChatMessage struct {
	ID         string    `json:"id"`
	TeamID     string    `json:"teamId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sentAt"`
}

// LeaderboardEntry is derived state; positions start at 1.
type LeaderboardEntry struct {
	Position     int      `json:"position"`
	TeamID       string   `json:"teamId"`
	TeamName     string   `json:"teamName"`
	Score        int      `json:"score"`
	Correct      int      `json:"correct"`
	Incorrect    int      `json:"incorrect"`
	Completed    bool     `json:"completed"`
	Participants []string `json:"participants"`
}

// Leaderboard is recomputed from session state on every broadcast trigger and
// never stored as separate mutable state.
type Leaderboard struct {
	CompetitionID string             `json:"competitionId"`
	Entries       []LeaderboardEntry `json:"entries"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// Snapshot is the full client-rebuildable projection of a competition.
// Reconnecting clients treat it as the source of truth; incremental events
// are purely an optimization.
type Snapshot struct {
	Competition  Competition   `json:"competition"`
	Teams        []Team        `json:"teams"`
	TeamCapacity int           `json:"teamCapacity"`
	Unassigned   []Participant `json:"unassigned"`
}

// CompetitionResult is the final standings written to the results backend
// once a competition completes.
type CompetitionResult struct {
	CompetitionID string             `json:"competitionId"`
	Title         string             `json:"title"`
	TestID        string             `json:"testId"`
	StartedAt     *time.Time         `json:"startedAt,omitempty"`
	EndedAt       *time.Time         `json:"endedAt,omitempty"`
	Entries       []LeaderboardEntry `json:"entries"`
}
