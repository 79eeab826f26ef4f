package handlers

import (
	"context"

	"github.com/ecolearn/ecolearn-api/internal/leaderboard"
)

type LeaderboardHandler struct {
	boards *leaderboard.Aggregator
}

func NewLeaderboardHandler(a *leaderboard.Aggregator) *LeaderboardHandler {
	return &LeaderboardHandler{boards: a}
}

type BoardFilter struct {
	School string `query:"school"`
	Class  string `query:"class"`
	Limit  int    `query:"limit" minimum:"0" maximum:"500" doc:"Defaults to 100"`
}

type LeaderboardInput struct {
	Period   string `path:"period" enum:"daily,weekly,monthly,all-time"`
	Category string `path:"category" enum:"individual,class,school"`
	BoardFilter
}

type PeriodLeaderboardInput struct {
	Period string `path:"period" enum:"daily,weekly,monthly,all-time"`
	BoardFilter
}

type LeaderboardBody struct {
	Success bool `json:"success"`
	leaderboard.Board
}

type LeaderboardOutput struct {
	Body LeaderboardBody
}

func (h *LeaderboardHandler) HandleLeaderboard(ctx context.Context, input *LeaderboardInput) (*LeaderboardOutput, error) {
	return h.board(ctx, input.Period, input.Category, input.BoardFilter)
}

// HandlePeriodLeaderboard serves /leaderboard/{period} as the individual board.
func (h *LeaderboardHandler) HandlePeriodLeaderboard(ctx context.Context, input *PeriodLeaderboardInput) (*LeaderboardOutput, error) {
	return h.board(ctx, input.Period, string(leaderboard.Individual), input.BoardFilter)
}

func (h *LeaderboardHandler) board(ctx context.Context, period, category string, f BoardFilter) (*LeaderboardOutput, error) {
	p, err := leaderboard.ParsePeriod(period)
	if err != nil {
		return nil, err
	}
	g, err := leaderboard.ParseGrouping(category)
	if err != nil {
		return nil, err
	}

	board, err := h.boards.GetLeaderboard(ctx, leaderboard.Query{
		Period:   p,
		Grouping: g,
		School:   f.School,
		Class:    f.Class,
		Limit:    f.Limit,
	})
	if err != nil {
		return nil, err
	}
	return &LeaderboardOutput{Body: LeaderboardBody{Success: true, Board: *board}}, nil
}

type PositionInput struct {
	UserID uint   `path:"userId"`
	Period string `query:"period" enum:"daily,weekly,monthly,all-time" default:"all-time"`
}

type Rankings struct {
	Individual int  `json:"individual"`
	Class      *int `json:"class"`
	School     *int `json:"school"`
}

type PositionOutput struct {
	Body struct {
		Success  bool                   `json:"success"`
		User     leaderboard.RankedUser `json:"user"`
		Rankings Rankings               `json:"rankings"`
		Period   leaderboard.Period     `json:"period"`
		Category leaderboard.Grouping   `json:"category"`
	}
}

func (h *LeaderboardHandler) HandlePosition(ctx context.Context, input *PositionInput) (*PositionOutput, error) {
	p, err := leaderboard.ParsePeriod(input.Period)
	if err != nil {
		return nil, err
	}

	r, err := h.boards.GetUserRanking(ctx, input.UserID, p)
	if err != nil {
		return nil, err
	}

	out := &PositionOutput{}
	out.Body.Success = true
	out.Body.User = r.User
	out.Body.Rankings = Rankings{Individual: r.Individual, Class: r.Class, School: r.School}
	out.Body.Period = r.Period
	out.Body.Category = leaderboard.Individual
	return out, nil
}

type AnalyticsInput struct {
	Scope     string `path:"scope" enum:"global,school,user"`
	UserID    uint   `query:"userId"`
	School    string `query:"school"`
	Timeframe string `query:"timeframe" enum:"daily,weekly,monthly,all-time" default:"all-time"`
}

type AnalyticsBody struct {
	Success bool `json:"success"`
	leaderboard.Analytics
}

type AnalyticsOutput struct {
	Body AnalyticsBody
}

func (h *LeaderboardHandler) HandleAnalytics(ctx context.Context, input *AnalyticsInput) (*AnalyticsOutput, error) {
	tf, err := leaderboard.ParsePeriod(input.Timeframe)
	if err != nil {
		return nil, err
	}

	a, err := h.boards.Analytics(ctx, input.Scope, leaderboard.AnalyticsQuery{
		UserID:    input.UserID,
		School:    input.School,
		Timeframe: tf,
	})
	if err != nil {
		return nil, err
	}
	return &AnalyticsOutput{Body: AnalyticsBody{Success: true, Analytics: *a}}, nil
}
