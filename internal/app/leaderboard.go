package app

import (
	"sort"

	"competition-service/internal/domain"
)

// leaderboardLocked derives the ranked standings from team state. Teams sort
// by score descending; ties break by fewer incorrect answers, then by earlier
// completion (a team that finished all questions first ranks higher), then by
// name for stability.
func (s *Session) leaderboardLocked() domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(s.teams))
	completion := make(map[string]*teamState, len(s.teams))
	for _, team := range s.teams {
		names := make([]string, 0, len(team.members))
		for _, id := range team.members {
			if p, ok := s.participants[id]; ok {
				names = append(names, p.displayName)
			}
		}
		entries = append(entries, domain.LeaderboardEntry{
			TeamID:       team.id,
			TeamName:     team.name,
			Score:        team.score,
			Correct:      team.correct,
			Incorrect:    team.incorrect,
			Completed:    team.completedAt != nil,
			Participants: names,
		})
		completion[team.id] = team
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].Incorrect != entries[j].Incorrect {
			return entries[i].Incorrect < entries[j].Incorrect
		}
		ti, tj := completion[entries[i].TeamID], completion[entries[j].TeamID]
		switch {
		case ti.completedAt != nil && tj.completedAt == nil:
			return true
		case ti.completedAt == nil && tj.completedAt != nil:
			return false
		case ti.completedAt != nil && tj.completedAt != nil && !ti.completedAt.Equal(*tj.completedAt):
			return ti.completedAt.Before(*tj.completedAt)
		}
		return entries[i].TeamName < entries[j].TeamName
	})

	for i := range entries {
		entries[i].Position = i + 1
	}
	return domain.Leaderboard{
		CompetitionID: s.comp.ID,
		Entries:       entries,
		UpdatedAt:     s.now(),
	}
}

func sortParticipants(participants []domain.Participant) {
	sort.Slice(participants, func(i, j int) bool {
		if !participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].JoinedAt.Before(participants[j].JoinedAt)
		}
		return participants[i].ID < participants[j].ID
	})
}
