package domain

import (
	"strings"
	"time"
)

// DefaultTimeTaken is used for test-code attempts submitted without a duration.
const DefaultTimeTaken = 300

// Attempt is a completed quiz as reported by the client.
type Attempt struct {
	Subject        string `json:"subject" validate:"required"`
	Topic          string `json:"topic"`
	Score          *int   `json:"score" validate:"required,gte=0"`
	TotalQuestions int    `json:"totalQuestions" validate:"required,gt=0"`
	TestCode       string `json:"testCode"`
	TimeTaken      *int   `json:"timeTaken" validate:"omitempty,gt=0"`
}

// Normalize trims free-text fields in place.
func (a *Attempt) Normalize() {
	a.Subject = strings.TrimSpace(a.Subject)
	a.Topic = strings.TrimSpace(a.Topic)
	a.TestCode = strings.TrimSpace(a.TestCode)
}

// QuizHistoryEntry is one immutable item of a user's quiz history.
type QuizHistoryEntry struct {
	ID                string    `json:"quizId"`
	Subject           string    `json:"subject"`
	Topic             string    `json:"topic"`
	Score             int       `json:"score"`
	TotalQuestions    int       `json:"totalQuestions"`
	Date              time.Time `json:"date"`
	TestCode          string    `json:"testCode,omitempty"`
	TimeTaken         int       `json:"timeTaken,omitempty"`
	Rank              int       `json:"rank,omitempty"`
	TotalParticipants int       `json:"totalParticipants,omitempty"`
}

// Ranked reports whether leaderboard information is attached.
func (e QuizHistoryEntry) Ranked() bool {
	return e.Rank > 0
}

// User is the part of a user document the submission flow needs.
type User struct {
	ID          string             `json:"id"`
	Username    string             `json:"username"`
	Email       string             `json:"email,omitempty"`
	Name        string             `json:"name,omitempty"`
	QuizHistory []QuizHistoryEntry `json:"quizHistory"`
}

// TestCode is a shared test issued by an administrator.
type TestCode struct {
	Code       string    `json:"testCode" yaml:"code" validate:"required,max=64,excludesall= /?#"`
	Subject    string    `json:"subject" yaml:"subject" validate:"required"`
	Topic      string    `json:"topic" yaml:"topic"`
	Difficulty string    `json:"difficulty" yaml:"difficulty"`
	CreatedBy  string    `json:"createdBy,omitempty" yaml:"createdBy"`
	CreatedAt  time.Time `json:"createdAt" yaml:"-"`
}

// ScoreRecord is the best attempt of one user for one test code.
type ScoreRecord struct {
	TestCode       string `json:"testCode"`
	UserID         string `json:"userId"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"totalQuestions"`
	TimeTaken      int    `json:"timeTaken"`
	Rank           int    `json:"rank"`
}

// Improves reports whether r should replace prev: a higher score wins, and
// among equal scores the faster time wins.
func (r ScoreRecord) Improves(prev ScoreRecord) bool {
	if r.Score != prev.Score {
		return r.Score > prev.Score
	}
	return r.TimeTaken < prev.TimeTaken
}

// SameStanding reports whether two records tie on the ranking key.
func (r ScoreRecord) SameStanding(other ScoreRecord) bool {
	return r.Score == other.Score && r.TimeTaken == other.TimeTaken
}

// Leaderboard is the ranked view of every record of a test code.
type Leaderboard struct {
	TestCode          string        `json:"testCode"`
	TotalParticipants int           `json:"totalParticipants"`
	Entries           []ScoreRecord `json:"entries"`
}
