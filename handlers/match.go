package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/sse2016-gomoku-fun/fun-portal/middleware"
	"github.com/sse2016-gomoku-fun/fun-portal/models"
	"github.com/sse2016-gomoku-fun/fun-portal/services"
	"github.com/sse2016-gomoku-fun/fun-portal/utils"
)

// MatchHandler exposes match/round reads and the judge worker callbacks.
type MatchHandler struct {
	Matches *services.MatchService
	Blobs   utils.BlobStore
}

func SetupMatchRoutes(app *fiber.App, h *MatchHandler, cfg *utils.Config) {
	api := app.Group("/match/api", middleware.WorkerAuth(cfg.APIUsername, cfg.APIPassword))
	api.Post("/roundBegin", h.apiRoundBegin)
	api.Post("/roundComplete", h.apiRoundComplete)
	api.Post("/roundError", h.apiRoundError)

	secured := app.Group("/match", middleware.UserContext())
	secured.Get("/refreshStatus", middleware.RequireAdmin(), h.manageRefreshStatus)
	secured.Get("/:id", h.getDetail)
	secured.Get("/:id/round/:rid/logs", h.getRoundLogs)
}

func (h *MatchHandler) apiRoundBegin(c *fiber.Ctx) error {
	data, err := requireFormValues(c, "mid", "rid")
	if err != nil {
		return renderError(c, err)
	}
	match, err := h.Matches.AcceptRoundStart(c.Context(), data["mid"], data["rid"])
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(match)
}

// apiRoundComplete ingests one judged round. The judge uploads the full
// game log as the "log" multipart file; the log goes to the blob store and
// only the ref is recorded. A non-zero exit code forces the error outcome;
// otherwise the verdict field decides.
func (h *MatchHandler) apiRoundComplete(c *fiber.Ctx) error {
	data, err := requireFormValues(c, "mid", "rid", "exitCode", "summary")
	if err != nil {
		return renderError(c, err)
	}
	exitCode, err := strconv.Atoi(data["exitCode"])
	if err != nil {
		return renderError(c, &services.ValidationError{Msg: "Parameter 'exitCode' is expected to be an integer"})
	}

	file, err := c.FormFile("log")
	if err != nil || file == nil {
		return renderError(c, &services.ValidationError{Msg: "Expect logs"})
	}
	f, err := file.Open()
	if err != nil {
		return renderError(c, err)
	}
	defer f.Close()
	logRef, err := h.Blobs.Put(c.Context(), f, "text/plain", map[string]string{
		"type":  "match.log",
		"match": data["mid"],
		"round": data["rid"],
	})
	if err != nil {
		return renderError(c, err)
	}

	outcome := models.OutcomeFromJudgeExitCode(exitCode, c.FormValue("verdict"))
	match, err := h.Matches.AcceptRoundResult(
		c.Context(), data["mid"], data["rid"], outcome, data["summary"], &logRef, "")
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(match)
}

func (h *MatchHandler) apiRoundError(c *fiber.Ctx) error {
	data, err := requireFormValues(c, "mid", "rid", "text")
	if err != nil {
		return renderError(c, err)
	}
	match, err := h.Matches.AcceptRoundSystemError(c.Context(), data["mid"], data["rid"], data["text"])
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(match)
}

func (h *MatchHandler) manageRefreshStatus(c *fiber.Ctx) error {
	count, err := h.Matches.RefreshAllMatches(c.Context())
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{"refreshed": count})
}

func (h *MatchHandler) getDetail(c *fiber.Ctx) error {
	match, err := h.Matches.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(match)
}

func (h *MatchHandler) getRoundLogs(c *fiber.Ctx) error {
	round, err := h.Matches.GetRound(c.Context(), c.Params("id"), c.Params("rid"))
	if err != nil {
		return renderError(c, err)
	}
	if round.LogBlobRef == nil {
		return renderError(c, &services.NotFoundError{Msg: "Logs not available for this round"})
	}
	body, err := h.Blobs.Get(c.Context(), *round.LogBlobRef)
	if err != nil {
		return renderError(c, err)
	}
	c.Set("Content-Type", "text/plain")
	return c.SendStream(body)
}
