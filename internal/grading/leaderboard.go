package grading

import (
	"math"
	"sort"
	"time"
)

// NeverActive is displayed for students without any submission in scope.
const NeverActive = "Never"

// Student is a roster entry.
type Student struct {
	ID    uint
	Name  string
	Email string
}

// LeaderboardRow is the ranked summary of one student.
type LeaderboardRow struct {
	Rank            int        `json:"rank"`
	StudentID       uint       `json:"student_id"`
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	TotalScore      float64    `json:"total_score"`
	QuestionsSolved int        `json:"questions_solved"`
	CompletionRate  int        `json:"completion_rate"`
	LastActive      *time.Time `json:"last_active"`
}

// LastActiveLabel formats LastActive as a date, or NeverActive.
func (r LeaderboardRow) LastActiveLabel() string {
	if r.LastActive == nil {
		return NeverActive
	}
	return r.LastActive.Format("2006-01-02")
}

// Summary holds the headline statistics shown above the leaderboard.
type Summary struct {
	AverageScore   int     `json:"average_score"`
	ActiveStudents int     `json:"active_students"`
	TotalStudents  int     `json:"total_students"`
	TopScore       float64 `json:"top_score"`
}

type studentTally struct {
	bestScores map[uint]float64
	lastActive *time.Time
}

// total sums best scores in question id order so repeated builds over the same
// snapshot produce identical floats.
func (t *studentTally) total() float64 {
	questionIDs := make([]uint, 0, len(t.bestScores))
	for id := range t.bestScores {
		questionIDs = append(questionIDs, id)
	}
	sort.Slice(questionIDs, func(i, j int) bool { return questionIDs[i] < questionIDs[j] })

	total := 0.0
	for _, id := range questionIDs {
		total += t.bestScores[id]
	}
	return total
}

// BuildLeaderboard ranks every roster student by the sum of their best completed
// score per question. Students without submissions are kept with zero values.
// Ties keep roster order.
func BuildLeaderboard(roster []Student, submissions []SubmissionRecord, totalQuestions int) []LeaderboardRow {
	tallies := make(map[uint]*studentTally, len(roster))
	for _, student := range roster {
		tallies[student.ID] = &studentTally{bestScores: make(map[uint]float64)}
	}

	for _, submission := range submissions {
		tally, ok := tallies[submission.StudentID]
		if !ok {
			continue
		}

		submittedAt := submission.SubmittedAt
		if !submittedAt.IsZero() && (tally.lastActive == nil || submittedAt.After(*tally.lastActive)) {
			tally.lastActive = &submittedAt
		}

		if !LeaderboardVocabulary.IsCompleted(submission.Status) {
			continue
		}
		score := NormalizeScore(submission.Score)
		if score <= 0 {
			continue
		}
		if current, exists := tally.bestScores[submission.QuestionID]; !exists || score > current {
			tally.bestScores[submission.QuestionID] = score
		}
	}

	rows := make([]LeaderboardRow, 0, len(roster))
	for _, student := range roster {
		tally := tallies[student.ID]
		rows = append(rows, LeaderboardRow{
			StudentID:       student.ID,
			Name:            student.Name,
			Email:           student.Email,
			TotalScore:      tally.total(),
			QuestionsSolved: len(tally.bestScores),
			CompletionRate:  Percent(len(tally.bestScores), totalQuestions),
			LastActive:      tally.lastActive,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TotalScore > rows[j].TotalScore
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}

	return rows
}

// Summarize derives the leaderboard statistics. rosterSize is the number of
// students with the student role.
func Summarize(rows []LeaderboardRow, rosterSize int) Summary {
	summary := Summary{TotalStudents: rosterSize}
	if len(rows) == 0 {
		return summary
	}

	total := 0.0
	for _, row := range rows {
		total += row.TotalScore
		if row.TotalScore > 0 {
			summary.ActiveStudents++
		}
		if row.TotalScore > summary.TopScore {
			summary.TopScore = row.TotalScore
		}
	}
	summary.AverageScore = int(math.Round(total / float64(len(rows))))

	return summary
}
