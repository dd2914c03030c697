package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/sse2016-gomoku-fun/fun-portal/middleware"
	"github.com/sse2016-gomoku-fun/fun-portal/services"
)

// ScoreboardHandler serves the ranked leaderboard, computed fresh on every
// request.
type ScoreboardHandler struct {
	Leaderboard *services.LeaderboardService
}

func SetupScoreboardRoutes(app *fiber.App, h *ScoreboardHandler) {
	app.Get("/scoreboard", middleware.UserContext(), h.getScoreboard)
}

// getScoreboard returns the ranked rows. ?relaxed=true also lists running
// submissions instead of effective ones only.
func (h *ScoreboardHandler) getScoreboard(c *fiber.Ctx) error {
	onlyEffective := !c.QueryBool("relaxed")
	rows, err := h.Leaderboard.Compute(c.Context(), onlyEffective)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(rows)
}
