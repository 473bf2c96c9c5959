package submission

import (
	"context"
	"imperilment-submitter/internal/components/chrono"
	"imperilment-submitter/internal/scrapers/imperilment"
)

// Clue is a single quiz item, Question is what the player must answer with.
type Clue struct {
	Answer   string
	Question string
	Value    int
}

type Category struct {
	Name  string
	Clues []Clue
}

type Game struct {
	Categories []Category
}

// Producer generates the games to publish, in the order they should be published.
type Producer interface {
	Games(count int) ([]Game, error)
}

// Remote is the content management application games are published to.
//
// note: fault injection point
type Remote interface {
	LatestGameEnd(ctx context.Context) (chrono.Date, error)
	Login(ctx context.Context, username, password string) (imperilment.Session, error)
	CreateGame(ctx context.Context, session imperilment.Session, endedAt chrono.Date) (uint64, imperilment.Session, error)
	CreateCategory(ctx context.Context, session imperilment.Session, name string) (uint64, imperilment.Session, error)
	CreateAnswer(ctx context.Context, session imperilment.Session, form imperilment.AnswerForm) (imperilment.Session, error)
}

type Options struct {
	Username string
	Password string
	// Games is the amount of games to request from the producer, defaults to 1.
	Games int
	// StartDate overrides the start date discovered from the remote's latest game.
	StartDate chrono.Date
}

// Result describes what a run created, it is filled in as the run goes so a failed
// run still reports everything that was created before the failure.
type Result struct {
	// StartDate is the first day clues were scheduled on, after alignment.
	StartDate chrono.Date
	// Cursor is the day the next clue would have been scheduled on.
	Cursor chrono.Date
	Games  []GameResult
}

type GameResult struct {
	Id         uint64
	EndedAt    chrono.Date
	Categories []CategoryResult
}

type CategoryResult struct {
	Id   uint64
	Name string
	// Answers holds the start date of every answer created in the category.
	Answers []chrono.Date
	// Rejected holds the start dates the remote refused an answer for, the dates
	// are not reused.
	Rejected []chrono.Date
}

// AnswerCount returns the total amount of answers created.
func (r Result) AnswerCount() int {
	n := 0
	for _, g := range r.Games {
		for _, c := range g.Categories {
			n += len(c.Answers)
		}
	}
	return n
}

// RejectedCount returns the total amount of answers the remote rejected.
func (r Result) RejectedCount() int {
	n := 0
	for _, g := range r.Games {
		for _, c := range g.Categories {
			n += len(c.Rejected)
		}
	}
	return n
}
