package submission

import (
	"context"
	"errors"
	"fmt"
	"imperilment-submitter/internal/components/assert"
	"imperilment-submitter/internal/components/chrono"
	"imperilment-submitter/internal/components/telemetry"
	"imperilment-submitter/internal/scrapers/imperilment"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_workflow_run             = "workflow.run"
	report_workflow_discover        = "workflow.discover-start-date"
	report_workflow_generate        = "workflow.generate"
	report_workflow_login           = "workflow.login"
	report_workflow_create_game     = "workflow.create-game"
	report_workflow_create_category = "workflow.create-category"
	report_workflow_create_answer   = "workflow.create-answer"
	report_workflow_answer_rejected = "workflow.answer-rejected"
	report_workflow_meter           = "workflow.meter"
	report_workflow_games           = "workflow.games-created"
	report_workflow_answers         = "workflow.answers-created"
)

// games are scheduled to end 6 days after the monday their first clue goes up on.
const (
	scheduleWeekday = time.Monday
	gameLengthDays  = 6
)

var tracer = otel.Tracer("imperilment-submitter/submission")

// Workflow publishes the games of a Producer to a Remote.
//
// A run is strictly sequential: it discovers (or takes) a start date, aligns it to
// a monday, generates the games, then for every game logs in with a fresh session
// and creates the game, each of its categories and each of their clues in order.
// Every clue is scheduled one day after the previous one, across games. An answer
// the remote rejects is recorded and skipped, any other failure stops the run.
type Workflow struct {
	remote   Remote
	producer Producer
	opts     Options
	tel      telemetry.API
	created  metric.Int64Counter
}

func NewWorkflow(remote Remote, producer Producer, opts Options, tel telemetry.API) Workflow {
	assert.NotNil(remote)
	assert.NotNil(producer)
	assert.NotNil(tel)
	assert.NotEmptyStr(opts.Username)
	assert.NotEmptyStr(opts.Password)

	if opts.Games <= 0 {
		opts.Games = 1
	}

	tel = telemetry.NewScopedAPI("submission", tel)

	var created metric.Int64Counter = noop.Int64Counter{}
	counter, err := otel.Meter("imperilment-submitter/submission").Int64Counter(
		"imperilment.created",
		metric.WithDescription("Resources created on the remote."),
	)
	if err != nil {
		tel.ReportWarning(report_workflow_meter, err)
	} else {
		created = counter
	}

	return Workflow{
		remote:   remote,
		producer: producer,
		opts:     opts,
		tel:      tel,
		created:  created,
	}
}

// Run performs a single run. The returned Result holds everything created up to
// the point the run stopped, a failure is always a *StepError.
func (w Workflow) Run(ctx context.Context) (Result, error) {
	ctx, span := tracer.Start(ctx, "submission.run")
	defer span.End()

	r := &run{
		Workflow: w,
		state:    StateDiscoverStartDate,
	}
	for r.state != StateComplete {
		err := r.step(ctx)
		if r.cursor != nil {
			r.result.Cursor = r.cursor.Date()
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			w.tel.ReportDebug(report_workflow_run, "stopped", r.state.String(), r.result.AnswerCount())
			return r.result, err
		}
	}

	w.tel.ReportCount(report_workflow_games, int64(len(r.result.Games)))
	w.tel.ReportCount(report_workflow_answers, int64(r.result.AnswerCount()))
	if rejected := r.result.RejectedCount(); rejected > 0 {
		w.tel.ReportWarning(report_workflow_run, fmt.Errorf("%d answers were rejected", rejected))
	}
	return r.result, nil
}

// run is the mutable state of a single Run.
type run struct {
	Workflow

	state   State
	cursor  *chrono.Cursor
	games   []Game
	session imperilment.Session

	game       int
	category   int
	clue       int
	gameId     uint64
	categoryId uint64

	result Result
}

func (r *run) step(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "submission."+r.state.String(), trace.WithAttributes(
		attribute.Int("game", r.game),
		attribute.Int("category", r.category),
		attribute.Int("clue", r.clue),
	))
	defer span.End()

	var next State
	var err error
	switch r.state {
	case StateDiscoverStartDate:
		next, err = r.discoverStartDate(ctx)
	case StateAlignCursor:
		next, err = r.alignCursor()
	case StateGenerate:
		next, err = r.generate()
	case StateLogin:
		next, err = r.login(ctx)
	case StateCreateGame:
		next, err = r.createGame(ctx)
	case StateCreateCategory:
		next, err = r.createCategory(ctx)
	case StateCreateAnswer:
		next, err = r.createAnswer(ctx)
	default:
		panic(fmt.Sprintf("submission: no transition out of %s", r.state))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	r.state = next
	return nil
}

// fail builds the StepError for the current state, scoped to the positions the
// state works on.
func (r *run) fail(kind, cause error) *StepError {
	e := &StepError{
		State:    r.state,
		Game:     -1,
		Category: -1,
		Clue:     -1,
		Err:      fmt.Errorf("%w: %w", kind, cause),
	}
	if r.cursor != nil {
		e.Cursor = r.cursor.Date()
	}
	switch r.state {
	case StateCreateAnswer:
		e.Clue = r.clue
		fallthrough
	case StateCreateCategory:
		e.Category = r.category
		fallthrough
	case StateLogin, StateCreateGame:
		e.Game = r.game
	}
	return e
}

func (r *run) discoverStartDate(ctx context.Context) (State, error) {
	start := r.opts.StartDate
	if start.IsZero() {
		latest, err := r.remote.LatestGameEnd(ctx)
		if err != nil {
			r.tel.ReportBroken(report_workflow_discover, err)
			return 0, r.fail(ErrDiscoveryFailed, err)
		}
		start = latest
	}
	r.tel.ReportDebug(report_workflow_discover, start.String())
	r.cursor = chrono.NewCursor(start)
	return StateAlignCursor, nil
}

func (r *run) alignCursor() (State, error) {
	r.cursor.Align(scheduleWeekday)
	r.result.StartDate = r.cursor.Date()
	return StateGenerate, nil
}

func (r *run) generate() (State, error) {
	games, err := r.producer.Games(r.opts.Games)
	if err != nil {
		r.tel.ReportBroken(report_workflow_generate, err)
		return 0, r.fail(ErrGenerationFailed, err)
	}
	r.tel.ReportDebug(report_workflow_generate, len(games))
	r.games = games
	r.game = 0
	if len(games) == 0 {
		return StateComplete, nil
	}
	return StateLogin, nil
}

func (r *run) login(ctx context.Context) (State, error) {
	session, err := r.remote.Login(ctx, r.opts.Username, r.opts.Password)
	if err != nil {
		r.tel.ReportBroken(report_workflow_login, err, r.opts.Username)
		return 0, r.fail(ErrAuthenticationFailed, err)
	}
	r.session = session
	return StateCreateGame, nil
}

func (r *run) createGame(ctx context.Context) (State, error) {
	endedAt := r.cursor.Peek(gameLengthDays)
	id, session, err := r.remote.CreateGame(ctx, r.session, endedAt)
	r.session = session
	if err != nil {
		r.tel.ReportBroken(report_workflow_create_game, err, endedAt.String())
		return 0, r.fail(ErrGameCreationFailed, err)
	}
	r.tel.ReportDebug(report_workflow_create_game, id, endedAt.String())
	r.created.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", "game")))

	r.gameId = id
	r.result.Games = append(r.result.Games, GameResult{Id: id, EndedAt: endedAt})
	r.category = 0
	return r.enterCategory(), nil
}

func (r *run) createCategory(ctx context.Context) (State, error) {
	category := r.games[r.game].Categories[r.category]
	id, session, err := r.remote.CreateCategory(ctx, r.session, category.Name)
	r.session = session
	if err != nil {
		r.tel.ReportBroken(report_workflow_create_category, err, category.Name)
		return 0, r.fail(ErrCategoryCreationFailed, err)
	}
	r.tel.ReportDebug(report_workflow_create_category, id, category.Name)
	r.created.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", "category")))

	r.categoryId = id
	game := &r.result.Games[len(r.result.Games)-1]
	game.Categories = append(game.Categories, CategoryResult{Id: id, Name: category.Name})
	r.clue = 0
	if len(category.Clues) == 0 {
		return r.nextCategory(), nil
	}
	return StateCreateAnswer, nil
}

func (r *run) createAnswer(ctx context.Context) (State, error) {
	clue := r.games[r.game].Categories[r.category].Clues[r.clue]

	startDate := r.cursor.Date()
	// the cursor moves on even if the answer is rejected
	r.cursor.Advance(1)

	session, err := r.remote.CreateAnswer(ctx, r.session, imperilment.AnswerForm{
		GameId:     r.gameId,
		CategoryId: r.categoryId,
		Answer:     clue.Answer,
		Question:   clue.Question,
		Amount:     clue.Value,
		StartDate:  startDate,
	})
	r.session = session
	game := &r.result.Games[len(r.result.Games)-1]
	category := &game.Categories[len(game.Categories)-1]
	switch {
	case errors.Is(err, imperilment.ErrSubmissionRejected):
		r.tel.ReportWarning(report_workflow_answer_rejected, err, r.gameId, r.categoryId, startDate.String())
		category.Rejected = append(category.Rejected, startDate)
	case err != nil:
		r.tel.ReportBroken(report_workflow_create_answer, err, r.gameId, r.categoryId, startDate.String())
		return 0, r.fail(ErrAnswerCreationFailed, err)
	default:
		r.created.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", "answer")))
		category.Answers = append(category.Answers, startDate)
	}

	r.clue++
	if r.clue < len(r.games[r.game].Categories[r.category].Clues) {
		return StateCreateAnswer, nil
	}
	return r.nextCategory(), nil
}

// enterCategory starts the categories of the current game, moving on to the next
// game if there are none.
func (r *run) enterCategory() State {
	if r.category < len(r.games[r.game].Categories) {
		return StateCreateCategory
	}
	return r.nextGame()
}

func (r *run) nextCategory() State {
	r.category++
	return r.enterCategory()
}

func (r *run) nextGame() State {
	r.game++
	r.category = 0
	r.clue = 0
	if r.game < len(r.games) {
		return StateLogin
	}
	return StateComplete
}
