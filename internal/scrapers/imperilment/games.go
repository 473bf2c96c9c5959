package imperilment

import (
	"context"
	"encoding/json"
	"fmt"
	"imperilment-submitter/internal/components/chrono"
)

const (
	report_client_latest_game_end = "client.latest-game-end"

	pathGamesJson = "/games.json"
)

// GameSummary is an entry of the public game list.
type GameSummary struct {
	Id      uint64 `json:"id"`
	EndedAt string `json:"ended_at"`
}

// LatestGameEnd returns the day the most recently listed game ended. The list is
// public, so no session is sent.
func (c *Client) LatestGameEnd(ctx context.Context) (chrono.Date, error) {
	res, _, err := c.Get(ctx, pathGamesJson, Session{})
	if err != nil {
		return chrono.Date{}, fmt.Errorf("%w: %w", ErrDiscoveryFailed, err)
	}
	if res.IsError() {
		err := fmt.Errorf("%w: GET %s answered %d", ErrDiscoveryFailed, pathGamesJson, res.StatusCode())
		c.tel.ReportBroken(report_client_latest_game_end, err)
		return chrono.Date{}, err
	}

	var games []GameSummary
	err = json.Unmarshal(res.Body(), &games)
	if err != nil {
		err = fmt.Errorf("%w: decode %s: %w", ErrDiscoveryFailed, pathGamesJson, err)
		c.tel.ReportBroken(report_client_latest_game_end, err)
		return chrono.Date{}, err
	}
	if len(games) == 0 {
		err := fmt.Errorf("%w: the remote has no games", ErrDiscoveryFailed)
		c.tel.ReportWarning(report_client_latest_game_end, err)
		return chrono.Date{}, err
	}

	endedAt, err := chrono.ParseDate(games[0].EndedAt)
	if err != nil {
		err = fmt.Errorf("%w: game %d: %w", ErrDiscoveryFailed, games[0].Id, err)
		c.tel.ReportBroken(report_client_latest_game_end, err)
		return chrono.Date{}, err
	}
	c.tel.ReportDebug(report_client_latest_game_end, games[0].Id, endedAt.String())
	return endedAt, nil
}
