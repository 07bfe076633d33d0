package services

import (
	"sort"

	"bounty-quest/models"
)

// MaxWinners is how many places a task awards.
const MaxWinners = 3

// RankSubmissions returns a sorted copy: overall score descending, then earliest submission,
// then participant id. The input is not modified.
func RankSubmissions(subs []models.Submission) []models.Submission {
	ranked := make([]models.Submission, len(subs))
	copy(ranked, subs)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.OverallScore != b.OverallScore {
			return a.OverallScore > b.OverallScore
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ParticipantID < b.ParticipantID
	})
	return ranked
}

// SelectWinners picks up to limit participant ids in ranking order. It never returns nil and never
// repeats a participant.
func SelectWinners(subs []models.Submission, limit int) []string {
	winners := make([]string, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, sub := range RankSubmissions(subs) {
		if len(winners) == limit {
			break
		}
		if _, dup := seen[sub.ParticipantID]; dup {
			continue
		}
		seen[sub.ParticipantID] = struct{}{}
		winners = append(winners, sub.ParticipantID)
	}
	return winners
}
