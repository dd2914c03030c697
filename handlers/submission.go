package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/sse2016-gomoku-fun/fun-portal/middleware"
	"github.com/sse2016-gomoku-fun/fun-portal/models"
	"github.com/sse2016-gomoku-fun/fun-portal/services"
	"github.com/sse2016-gomoku-fun/fun-portal/utils"
)

// SubmissionHandler exposes the user submission surface and the compile
// worker callbacks.
type SubmissionHandler struct {
	Submissions *services.SubmissionService
	Blobs       utils.BlobStore
}

func SetupSubmissionRoutes(app *fiber.App, h *SubmissionHandler, cfg *utils.Config) {
	api := app.Group("/submission/api", middleware.WorkerAuth(cfg.APIUsername, cfg.APIPassword))
	api.Get("/limits", h.apiGetLimits)
	api.Get("/binary/:id", h.apiGetBinary)
	api.Post("/compileBegin", h.apiCompileBegin)
	api.Post("/compileEnd", h.apiCompileEnd)
	api.Post("/compileError", h.apiCompileError)

	secured := app.Group("/submission", middleware.UserContext())
	secured.Get("/", h.getMySubmissions)
	secured.Post("/create", h.postCreate)
	secured.Get("/:id", h.getDetail)
	secured.Post("/:id/recompile", middleware.RequireAdmin(), h.manageRecompile)
}

func (h *SubmissionHandler) apiGetLimits(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"LIMIT_SIZE_CODE":       models.LimitSizeCode,
		"LIMIT_SIZE_EXECUTABLE": models.LimitSizeExecutable,
		"LIMIT_SIZE_TEXT":       models.LimitSizeText,
	})
}

// apiGetBinary streams a compiled executable to a judge worker.
func (h *SubmissionHandler) apiGetBinary(c *fiber.Ctx) error {
	sub, err := h.Submissions.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	if sub.ExecutableRef == nil {
		return renderError(c, &services.NotFoundError{Msg: "Executable not available for this submission"})
	}
	body, err := h.Blobs.Get(c.Context(), *sub.ExecutableRef)
	if err != nil {
		return renderError(c, err)
	}
	c.Set("Content-Type", "application/octet-stream")
	return c.SendStream(body)
}

func (h *SubmissionHandler) apiCompileBegin(c *fiber.Ctx) error {
	data, err := requireFormValues(c, "id", "token")
	if err != nil {
		return renderError(c, err)
	}
	sub, err := h.Submissions.AcceptCompileStart(c.Context(), data["id"], data["token"])
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(sub)
}

// apiCompileEnd ingests the compile outcome. On success the worker uploads
// the executable as the "binary" multipart file; it goes to the blob store
// and only the ref reaches the state machine.
func (h *SubmissionHandler) apiCompileEnd(c *fiber.Ctx) error {
	data, err := requireFormValues(c, "id", "token", "success")
	if err != nil {
		return renderError(c, err)
	}
	success, err := strconv.ParseBool(data["success"])
	if err != nil {
		return renderError(c, &services.ValidationError{Msg: "Parameter 'success' is expected to be a boolean"})
	}
	text := c.FormValue("text")

	var executableRef *string
	if success {
		file, err := c.FormFile("binary")
		if err == nil && file != nil {
			if file.Size > models.LimitSizeExecutable {
				return renderError(c, &services.ValidationError{Msg: "Executable is too large."})
			}
			f, err := file.Open()
			if err != nil {
				return renderError(c, err)
			}
			defer f.Close()
			ref, err := h.Blobs.Put(c.Context(), f, "application/octet-stream", map[string]string{
				"type":       "submission.binary",
				"submission": data["id"],
			})
			if err != nil {
				return renderError(c, err)
			}
			executableRef = &ref
		}
	}

	sub, err := h.Submissions.AcceptCompileResult(c.Context(), data["id"], data["token"], success, text, executableRef)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(sub)
}

func (h *SubmissionHandler) apiCompileError(c *fiber.Ctx) error {
	data, err := requireFormValues(c, "id", "token")
	if err != nil {
		return renderError(c, err)
	}
	sub, err := h.Submissions.AcceptSystemError(c.Context(), data["id"], data["token"], c.FormValue("text"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(sub)
}

func (h *SubmissionHandler) getMySubmissions(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	subs, err := h.Submissions.UserSubmissions(c.Context(), userID)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(subs)
}

func (h *SubmissionHandler) postCreate(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	var body struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&body); err != nil {
		return renderError(c, &services.ValidationError{Msg: "invalid JSON"})
	}
	sub, err := h.Submissions.Submit(c.Context(), userID, body.Code)
	if err != nil {
		return renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

func (h *SubmissionHandler) getDetail(c *fiber.Ctx) error {
	sub, err := h.Submissions.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	isAdmin, _ := c.Locals("is_admin").(bool)
	if sub.UserID != c.Locals("user_id").(string) && !isAdmin {
		return renderErrorJSON(c, fiber.StatusForbidden, "PermissionError", "not your submission")
	}
	return c.JSON(sub)
}

func (h *SubmissionHandler) manageRecompile(c *fiber.Ctx) error {
	sub, err := h.Submissions.RecompileForMatch(c.Context(), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(sub)
}
