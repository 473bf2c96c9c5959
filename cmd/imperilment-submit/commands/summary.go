package commands

import (
	"fmt"
	"imperilment-submitter/internal/components/chrono"
	"imperilment-submitter/internal/submission"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
)

// renderSummary writes a table of everything a run created.
func renderSummary(w io.Writer, result submission.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Game", "Ends", "Category", "Name", "Answers"})

	for _, game := range result.Games {
		if len(game.Categories) == 0 {
			t.AppendRow(table.Row{game.Id, game.EndedAt.String(), "", "", ""})
			continue
		}
		for _, category := range game.Categories {
			t.AppendRow(table.Row{
				game.Id,
				game.EndedAt.String(),
				category.Id,
				category.Name,
				answerDates(category.Answers),
			})
		}
	}

	created := fmt.Sprintf("%d answers from %s", result.AnswerCount(), result.StartDate)
	if rejected := result.RejectedCount(); rejected > 0 {
		created += fmt.Sprintf(", %d rejected", rejected)
	}
	t.AppendFooter(table.Row{"", "", "", created, fmt.Sprintf("next %s", result.Cursor)})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func answerDates(dates []chrono.Date) string {
	switch len(dates) {
	case 0:
		return "-"
	case 1, 2:
		return strings.Join(lo.Map(dates, func(d chrono.Date, _ int) string {
			return d.String()
		}), ", ")
	}
	return fmt.Sprintf("%s .. %s", dates[0], dates[len(dates)-1])
}
