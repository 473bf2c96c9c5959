// Package deck builds games out of a hand written deck of categories.
//
// A deck is a json5 file:
//
//	{
//		categories: [
//			{
//				name: "Potent Potables",
//				clues: [
//					// value defaults to 100 for the first clue, 200 for the second, ...
//					{ answer: "Juniper gives it its flavor", question: "What is gin?" },
//				],
//			},
//		],
//	}
//
// Decks can be written in yaml as well, with the same keys.
package deck

import (
	"errors"
	"fmt"
	"imperilment-submitter/internal/components/assert"
	"imperilment-submitter/internal/components/telemetry"
	"imperilment-submitter/internal/submission"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/titanous/json5"
	"gopkg.in/yaml.v2"
)

const (
	report_producer_games     = "producer.games"
	report_producer_duplicate = "producer.near-duplicate"
)

// categories whose names are at least this similar are not put in the same game.
const duplicateSimilarity = 0.92

var ErrDeckExhausted = errors.New("deck has too few categories")

type Clue struct {
	Answer   string `json:"answer" yaml:"answer"`
	Question string `json:"question" yaml:"question"`
	Value    int    `json:"value" yaml:"value"`
}

type Category struct {
	Name  string `json:"name" yaml:"name"`
	Clues []Clue `json:"clues" yaml:"clues"`
}

type Deck struct {
	Categories []Category `json:"categories" yaml:"categories"`
}

// Parse decodes and validates a json5 deck.
func Parse(contents []byte) (Deck, error) {
	var deck Deck
	err := json5.Unmarshal(contents, &deck)
	if err != nil {
		return Deck{}, err
	}
	err = deck.validate()
	if err != nil {
		return Deck{}, err
	}
	return deck, nil
}

// ParseYaml decodes and validates a deck written in yaml, it has the same shape as
// the json5 one.
func ParseYaml(contents []byte) (Deck, error) {
	var deck Deck
	err := yaml.UnmarshalStrict(contents, &deck)
	if err != nil {
		return Deck{}, err
	}
	err = deck.validate()
	if err != nil {
		return Deck{}, err
	}
	return deck, nil
}

// Load reads the deck at `path`, files ending in .yaml or .yml are read as yaml,
// anything else as json5.
func Load(path string) (Deck, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return Deck{}, err
	}
	parse := Parse
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parse = ParseYaml
	}
	deck, err := parse(contents)
	if err != nil {
		return Deck{}, fmt.Errorf("deck %s: %w", path, err)
	}
	return deck, nil
}

func (d Deck) validate() error {
	var errlist []error
	for i, category := range d.Categories {
		if strings.TrimSpace(category.Name) == "" {
			errlist = append(errlist, fmt.Errorf("category %d has no name", i+1))
		}
		if len(category.Clues) == 0 {
			errlist = append(errlist, fmt.Errorf("category %q has no clues", category.Name))
		}
		for j, clue := range category.Clues {
			if strings.TrimSpace(clue.Answer) == "" || strings.TrimSpace(clue.Question) == "" {
				errlist = append(errlist, fmt.Errorf(
					"category %q clue %d needs both an answer and a question",
					category.Name, j+1,
				))
			}
			if clue.Value < 0 {
				errlist = append(errlist, fmt.Errorf(
					"category %q clue %d has a negative value",
					category.Name, j+1,
				))
			}
		}
	}
	return errors.Join(errlist...)
}

// Producer hands out the categories of a deck in a random order, every category
// is used at most once over the lifetime of the producer.
type Producer struct {
	categories []Category
	perGame    int
	tel        telemetry.API
}

func NewProducer(deck Deck, categoriesPerGame int, seed int64, tel telemetry.API) *Producer {
	assert.Positive(categoriesPerGame)
	assert.NotNil(tel)

	categories := make([]Category, len(deck.Categories))
	copy(categories, deck.Categories)
	rand.New(rand.NewSource(seed)).Shuffle(len(categories), func(i, j int) {
		categories[i], categories[j] = categories[j], categories[i]
	})

	return &Producer{
		categories: categories,
		perGame:    categoriesPerGame,
		tel:        telemetry.NewScopedAPI("deck", tel),
	}
}

// Remaining returns the amount of categories not handed out yet.
func (p *Producer) Remaining() int {
	return len(p.categories)
}

func (p *Producer) Games(count int) ([]submission.Game, error) {
	games := make([]submission.Game, 0, count)
	for i := 0; i < count; i++ {
		game, err := p.game()
		if err != nil {
			return nil, fmt.Errorf("game %d of %d: %w", i+1, count, err)
		}
		games = append(games, game)
	}
	p.tel.ReportDebug(report_producer_games, count, p.Remaining())
	return games, nil
}

// game takes the first categories of the shuffled deck whose names are not near
// duplicates of each other. Skipped categories stay in the deck for later games.
func (p *Producer) game() (submission.Game, error) {
	var picked []Category
	var rest []Category
	for _, category := range p.categories {
		if len(picked) == p.perGame {
			rest = append(rest, category)
			continue
		}
		if duplicate, similar := nearDuplicate(category.Name, picked); similar {
			p.tel.ReportDebug(report_producer_duplicate, category.Name, duplicate)
			rest = append(rest, category)
			continue
		}
		picked = append(picked, category)
	}
	if len(picked) < p.perGame {
		return submission.Game{}, fmt.Errorf(
			"%w: needed %d distinct categories, found %d",
			ErrDeckExhausted, p.perGame, len(picked),
		)
	}
	p.categories = rest

	game := submission.Game{Categories: make([]submission.Category, len(picked))}
	for i, category := range picked {
		game.Categories[i] = toSubmission(category)
	}
	return game, nil
}

func nearDuplicate(name string, picked []Category) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for _, other := range picked {
		similarity := matchr.JaroWinkler(normalized, strings.ToLower(strings.TrimSpace(other.Name)), false)
		if similarity >= duplicateSimilarity {
			return other.Name, true
		}
	}
	return "", false
}

func toSubmission(category Category) submission.Category {
	out := submission.Category{
		Name:  strings.TrimSpace(category.Name),
		Clues: make([]submission.Clue, len(category.Clues)),
	}
	for i, clue := range category.Clues {
		value := clue.Value
		if value == 0 {
			value = (i + 1) * 100
		}
		out.Clues[i] = submission.Clue{
			Answer:   strings.TrimSpace(clue.Answer),
			Question: strings.TrimSpace(clue.Question),
			Value:    value,
		}
	}
	return out
}
