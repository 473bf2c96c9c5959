package submission

import (
	"errors"
	"fmt"
	"imperilment-submitter/internal/components/chrono"
	"strings"
)

// State is a step of a submission run. A run moves through the states strictly in
// order, the creation states repeat for every game, category and clue.
type State int

const (
	StateDiscoverStartDate State = iota
	StateAlignCursor
	StateGenerate
	StateLogin
	StateCreateGame
	StateCreateCategory
	StateCreateAnswer
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateDiscoverStartDate:
		return "discover-start-date"
	case StateAlignCursor:
		return "align-cursor"
	case StateGenerate:
		return "generate"
	case StateLogin:
		return "login"
	case StateCreateGame:
		return "create-game"
	case StateCreateCategory:
		return "create-category"
	case StateCreateAnswer:
		return "create-answer"
	case StateComplete:
		return "complete"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrDiscoveryFailed        = errors.New("start date discovery failed")
	ErrGenerationFailed       = errors.New("game generation failed")
	ErrAuthenticationFailed   = errors.New("authentication failed")
	ErrGameCreationFailed     = errors.New("game creation failed")
	ErrCategoryCreationFailed = errors.New("category creation failed")
	ErrAnswerCreationFailed   = errors.New("answer creation failed")
)

// StepError is returned when a run stops at a state. Err wraps both the failure of
// the state (ErrGameCreationFailed, ...) and its underlying cause.
type StepError struct {
	State State
	// Game, Category and Clue are the 0-based positions being processed, -1 when
	// the state is not scoped to one.
	Game     int
	Category int
	Clue     int
	// Cursor is the date cursor at the time of the failure.
	Cursor chrono.Date
	Err    error
}

func (e *StepError) Error() string {
	var scope []string
	if e.Game >= 0 {
		scope = append(scope, fmt.Sprintf("game %d", e.Game+1))
	}
	if e.Category >= 0 {
		scope = append(scope, fmt.Sprintf("category %d", e.Category+1))
	}
	if e.Clue >= 0 {
		scope = append(scope, fmt.Sprintf("clue %d", e.Clue+1))
	}
	if len(scope) == 0 {
		return fmt.Sprintf("%s: %s", e.State, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.State, strings.Join(scope, ", "), e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
