package submission

import (
	"context"
	"errors"
	"imperilment-submitter/internal/components/chrono"
	"imperilment-submitter/internal/components/telemetry"
	"imperilment-submitter/internal/scrapers/imperilment"
	"imperilment-submitter/internal/scrapers/imperilment/imperilmenttest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type staticProducer struct {
	games []Game
	err   error
}

func (p staticProducer) Games(count int) ([]Game, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.games, nil
}

func newTestWorkflow(t testing.TB, remote *imperilmenttest.Server, producer Producer, opts Options) (Workflow, *telemetry.Recorder) {
	rec := telemetry.NewRecorder()
	client, err := imperilment.NewClient(imperilment.ClientOptions{
		BaseUrl: remote.URL(),
		Timeout: 5 * time.Second,
	}, rec)
	require.NoError(t, err)

	if opts.Username == "" {
		opts.Username = imperilmenttest.Username
	}
	if opts.Password == "" {
		opts.Password = imperilmenttest.Password
	}
	return NewWorkflow(client, producer, opts, rec), rec
}

func category(name string, answers ...string) Category {
	c := Category{Name: name}
	for i, answer := range answers {
		c.Clues = append(c.Clues, Clue{
			Answer:   answer,
			Question: "What is " + answer + "?",
			Value:    (i + 1) * 100,
		})
	}
	return c
}

// wednesday 2024-02-21 aligns to monday 2024-02-26
var wednesday = chrono.NewDate(2024, time.February, 21)

func TestRunSingleGame(t *testing.T) {
	remote := imperilmenttest.NewServer(t)
	producer := staticProducer{games: []Game{{Categories: []Category{
		category("Potent Potables", "gin"),
		category("Famous Bridges", "golden gate"),
	}}}}
	workflow, rec := newTestWorkflow(t, remote, producer, Options{StartDate: wednesday})

	result, err := workflow.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []imperilmenttest.Game{{Id: 1, EndedAt: "2024-03-03"}}, remote.Created)
	require.Equal(t, []imperilmenttest.Category{
		{Id: 1, Name: "Potent Potables"},
		{Id: 2, Name: "Famous Bridges"},
	}, remote.Categories)
	require.Equal(t, []imperilmenttest.Answer{
		{
			GameId:     1,
			CategoryId: "1",
			Answer:     "gin",
			Question:   "What is gin?",
			Amount:     "100",
			StartDate:  "2024-02-26",
		},
		{
			GameId:     1,
			CategoryId: "2",
			Answer:     "golden gate",
			Question:   "What is golden gate?",
			Amount:     "100",
			StartDate:  "2024-02-27",
		},
	}, remote.Answers)

	expected := []string{
		"GET /users/sign_in",
		"POST /users/sign_in",
		"GET /games/new",
		"POST /games",
		"GET /categories/new",
		"POST /categories",
		"GET /games/1/answers/new",
		"POST /games/1/answers",
		"GET /categories/new",
		"POST /categories",
		"GET /games/1/answers/new",
		"POST /games/1/answers",
	}
	if diff := cmp.Diff(expected, remote.RequestLines()); diff != "" {
		t.Fatal(diff)
	}

	monday := chrono.NewDate(2024, time.February, 26)
	expectedResult := Result{
		StartDate: monday,
		Cursor:    chrono.NewDate(2024, time.February, 28),
		Games: []GameResult{{
			Id:      1,
			EndedAt: chrono.NewDate(2024, time.March, 3),
			Categories: []CategoryResult{
				{Id: 1, Name: "Potent Potables", Answers: []chrono.Date{monday}},
				{Id: 2, Name: "Famous Bridges", Answers: []chrono.Date{chrono.Advance(monday, 1)}},
			},
		}},
	}
	if diff := cmp.Diff(expectedResult, result, cmp.AllowUnexported(chrono.Date{})); diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, 2, result.AnswerCount())

	require.Empty(t, rec.Reports("broken"))
	require.Contains(t, rec.Reports("count"), telemetry.Report{
		Kind:   "count",
		Id:     "submission: " + report_workflow_games,
		Params: []any{int64(1)},
	})
}

func TestRunDiscoversStartDate(t *testing.T) {
	remote := imperilmenttest.NewServer(t)
	remote.Games = []imperilmenttest.Game{
		{Id: 7, EndedAt: "2024-02-21T00:00:00.000Z"},
		{Id: 6, EndedAt: "2024-02-14T00:00:00.000Z"},
	}
	producer := staticProducer{games: []Game{
		{Categories: []Category{category("Potent Potables", "gin", "rum")}},
		{Categories: []Category{category("Famous Bridges", "golden gate")}},
	}}
	workflow, _ := newTestWorkflow(t, remote, producer, Options{Games: 2})

	result, err := workflow.Run(context.Background())
	require.NoError(t, err)

	// the cursor carries over between games, only the game end is computed per game
	require.Equal(t, []imperilmenttest.Game{
		{Id: 1, EndedAt: "2024-03-03"},
		{Id: 2, EndedAt: "2024-03-05"},
	}, remote.Created)

	var dates []string
	for _, answer := range remote.Answers {
		dates = append(dates, answer.StartDate)
	}
	require.Equal(t, []string{"2024-02-26", "2024-02-27", "2024-02-28"}, dates)
	require.Equal(t, uint64(2), remote.Answers[2].GameId)
	require.Equal(t, "2", remote.Answers[2].CategoryId)

	// every game signs in with a fresh session
	logins := remote.Posts("/users/sign_in")
	require.Len(t, logins, 2)
	for _, request := range remote.Requests() {
		if request.Method == "GET" && request.Path == "/users/sign_in" {
			require.Empty(t, request.Cookie)
		}
	}

	require.Equal(t, "GET /games.json", remote.RequestLines()[0])
	require.Equal(t, "2024-02-26", result.StartDate.String())
	require.Equal(t, "2024-02-29", result.Cursor.String())
	require.Equal(t, 3, result.AnswerCount())
}

func TestRunDiscoveryFailure(t *testing.T) {
	remote := imperilmenttest.NewServer(t)
	producer := staticProducer{games: []Game{{Categories: []Category{category("Potent Potables", "gin")}}}}
	workflow, rec := newTestWorkflow(t, remote, producer, Options{})

	result, err := workflow.Run(context.Background())
	require.ErrorIs(t, err, ErrDiscoveryFailed)
	require.ErrorIs(t, err, imperilment.ErrDiscoveryFailed)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	require.Equal(t, StateDiscoverStartDate, stepErr.State)
	require.Equal(t, -1, stepErr.Game)
	require.True(t, stepErr.Cursor.IsZero())

	require.Equal(t, []string{"GET /games.json"}, remote.RequestLines())
	require.Empty(t, remote.Posts("/users/sign_in"))
	require.Empty(t, result.Games)
	require.NotEmpty(t, rec.Broken("workflow.discover-start-date"))
}

func TestRunGenerationFailure(t *testing.T) {
	remote := imperilmenttest.NewServer(t)
	cause := errors.New("deck exhausted")
	workflow, _ := newTestWorkflow(t, remote, staticProducer{err: cause}, Options{StartDate: wednesday})

	result, err := workflow.Run(context.Background())
	require.ErrorIs(t, err, ErrGenerationFailed)
	require.ErrorIs(t, err, cause)
	require.Empty(t, remote.Requests())
	require.Equal(t, "2024-02-26", result.StartDate.String())
}

func TestRunNothingToPublish(t *testing.T) {
	remote := imperilmenttest.NewServer(t)
	workflow, _ := newTestWorkflow(t, remote, staticProducer{}, Options{StartDate: wednesday})

	result, err := workflow.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, remote.Requests())
	require.Empty(t, result.Games)
	require.Equal(t, "2024-02-26", result.Cursor.String())
}

func TestRunStepFailures(t *testing.T) {
	games := []Game{{Categories: []Category{
		category("Potent Potables", "gin", "rum"),
		category("Famous Bridges", "golden gate"),
	}}}

	table := []struct {
		name    string
		setup   func(remote *imperilmenttest.Server, opts *Options)
		state   State
		kind    error
		cause   error
		game    int
		cat     int
		clue    int
		cursor  string
		answers int
	}{
		{
			name: "wrong password",
			setup: func(_ *imperilmenttest.Server, opts *Options) {
				opts.Password = "not the password"
			},
			state:   StateLogin,
			kind:    ErrAuthenticationFailed,
			cause:   imperilment.ErrAuthenticationFailed,
			game:    0,
			cat:     -1,
			clue:    -1,
			cursor:  "2024-02-26",
			answers: 0,
		},
		{
			name: "game form without token",
			setup: func(remote *imperilmenttest.Server, _ *Options) {
				remote.OmitToken["/games/new"] = true
			},
			state:   StateCreateGame,
			kind:    ErrGameCreationFailed,
			cause:   imperilment.ErrTokenNotFound,
			game:    0,
			cat:     -1,
			clue:    -1,
			cursor:  "2024-02-26",
			answers: 0,
		},
		{
			name: "category rejected",
			setup: func(remote *imperilmenttest.Server, _ *Options) {
				remote.RejectCategories["Famous Bridges"] = true
			},
			state:   StateCreateCategory,
			kind:    ErrCategoryCreationFailed,
			cause:   imperilment.ErrIdExtractionFailed,
			game:    0,
			cat:     1,
			clue:    -1,
			cursor:  "2024-02-28",
			answers: 2,
		},
		{
			name: "answer form without token",
			setup: func(remote *imperilmenttest.Server, _ *Options) {
				remote.OmitToken["/games/1/answers/new"] = true
			},
			state:   StateCreateAnswer,
			kind:    ErrAnswerCreationFailed,
			cause:   imperilment.ErrTokenNotFound,
			game:    0,
			cat:     0,
			clue:    0,
			cursor:  "2024-02-27",
			answers: 0,
		},
	}

	for _, row := range table {
		t.Run(row.name, func(t *testing.T) {
			remote := imperilmenttest.NewServer(t)
			opts := Options{StartDate: wednesday}
			row.setup(remote, &opts)
			workflow, _ := newTestWorkflow(t, remote, staticProducer{games: games}, opts)

			result, err := workflow.Run(context.Background())
			require.ErrorIs(t, err, row.kind)
			require.ErrorIs(t, err, row.cause)

			var stepErr *StepError
			require.True(t, errors.As(err, &stepErr))
			require.Equal(t, row.state, stepErr.State)
			require.Equal(t, row.game, stepErr.Game)
			require.Equal(t, row.cat, stepErr.Category)
			require.Equal(t, row.clue, stepErr.Clue)
			require.Equal(t, row.cursor, stepErr.Cursor.String())
			require.Equal(t, row.cursor, result.Cursor.String())
			require.Equal(t, row.answers, result.AnswerCount())
			require.Len(t, remote.Answers, row.answers)
		})
	}
}

func TestRunAnswerRejected(t *testing.T) {
	remote := imperilmenttest.NewServer(t)
	remote.RejectAnswers["gin"] = true
	producer := staticProducer{games: []Game{{Categories: []Category{
		category("Potent Potables", "gin", "rum"),
		category("Famous Bridges", "golden gate"),
	}}}}
	workflow, rec := newTestWorkflow(t, remote, producer, Options{StartDate: wednesday})

	result, err := workflow.Run(context.Background())
	require.NoError(t, err)

	// the rejected answer keeps its day, the run goes on with the next clue
	require.Equal(t, []imperilmenttest.Answer{
		{
			GameId:     1,
			CategoryId: "1",
			Answer:     "rum",
			Question:   "What is rum?",
			Amount:     "200",
			StartDate:  "2024-02-27",
		},
		{
			GameId:     1,
			CategoryId: "2",
			Answer:     "golden gate",
			Question:   "What is golden gate?",
			Amount:     "100",
			StartDate:  "2024-02-28",
		},
	}, remote.Answers)
	require.Len(t, remote.Categories, 2)

	monday := chrono.NewDate(2024, time.February, 26)
	expected := []CategoryResult{
		{
			Id:       1,
			Name:     "Potent Potables",
			Answers:  []chrono.Date{chrono.Advance(monday, 1)},
			Rejected: []chrono.Date{monday},
		},
		{Id: 2, Name: "Famous Bridges", Answers: []chrono.Date{chrono.Advance(monday, 2)}},
	}
	require.Len(t, result.Games, 1)
	if diff := cmp.Diff(expected, result.Games[0].Categories, cmp.AllowUnexported(chrono.Date{})); diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, 2, result.AnswerCount())
	require.Equal(t, 1, result.RejectedCount())
	require.Equal(t, "2024-02-29", result.Cursor.String())

	require.Empty(t, rec.Reports("broken"))
	require.Len(t, rec.Warnings(report_workflow_answer_rejected), 1)
}

func TestRunCancelled(t *testing.T) {
	remote := imperilmenttest.NewServer(t)
	producer := staticProducer{games: []Game{{Categories: []Category{category("Potent Potables", "gin")}}}}
	workflow, _ := newTestWorkflow(t, remote, producer, Options{StartDate: wednesday})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := workflow.Run(ctx)
	require.ErrorIs(t, err, ErrAuthenticationFailed)
	require.ErrorIs(t, err, imperilment.ErrTransport)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStepErrorMessage(t *testing.T) {
	err := &StepError{
		State:    StateCreateAnswer,
		Game:     0,
		Category: 2,
		Clue:     4,
		Err:      ErrAnswerCreationFailed,
	}
	require.Equal(t, "create-answer (game 1, category 3, clue 5): answer creation failed", err.Error())

	err = &StepError{State: StateDiscoverStartDate, Game: -1, Category: -1, Clue: -1, Err: ErrDiscoveryFailed}
	require.Equal(t, "discover-start-date: start date discovery failed", err.Error())
}
