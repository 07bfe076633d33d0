package handlers

import (
	"bounty-quest/logging"
	"bounty-quest/models"
	"bounty-quest/services"

	"github.com/gofiber/fiber/v2"
)

type createTaskRequest struct {
	DurationHours int `json:"duration_hours"`
}

func SetupTaskRoutes(
	app *fiber.App,
	operator fiber.Handler,
	tasks *services.TaskService,
	lifecycle *services.LifecycleService,
	submissions *services.SubmissionService,
	logger logging.Logger,
) {
	// Public
	app.Get("/tasks/active", func(c *fiber.Ctx) error {
		active, err := tasks.ListActive(c.UserContext())
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(fiber.Map{"tasks": active})
	})

	app.Get("/tasks/past", func(c *fiber.Ctx) error {
		page, err := tasks.ListPast(c.UserContext(), models.PastTaskQuery{
			Category:  models.Category(c.Query("category")),
			SortBy:    c.Query("sortBy", c.Query("sort_by")),
			SortOrder: c.Query("sortOrder", c.Query("sort_order")),
			Page:      c.QueryInt("page", 1),
			PageSize:  c.QueryInt("pageSize", c.QueryInt("page_size")),
		})
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(page)
	})

	app.Get("/tasks/:id", func(c *fiber.Ctx) error {
		task, err := tasks.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(fiber.Map{"task": task})
	})

	app.Get("/tasks/:id/submissions", func(c *fiber.Ctx) error {
		board, err := submissions.Leaderboard(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(fiber.Map{"task_id": c.Params("id"), "submissions": board})
	})

	app.Get("/nft/metadata/:taskId", func(c *fiber.Ctx) error {
		metadata, err := tasks.Metadata(c.UserContext(), c.Params("taskId"))
		if err != nil {
			return respondError(c, logger, err)
		}
		c.Set(fiber.HeaderCacheControl, "public, max-age=300")
		return c.JSON(metadata)
	})

	// Operator
	app.Post("/tasks", operator, func(c *fiber.Ctx) error {
		var req createTaskRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
		task, err := tasks.Create(c.UserContext(), req.DurationHours)
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"task_id": task.ID, "task": task})
	})

	app.Post("/tasks/sweep", operator, func(c *fiber.Ctx) error {
		result, err := lifecycle.Sweep(c.UserContext())
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(result)
	})

	app.Put("/tasks/status", operator, func(c *fiber.Ctx) error {
		closed, err := lifecycle.Close(c.UserContext())
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(fiber.Map{"message": "expired tasks closed", "closed": closed})
	})

	app.Put("/tasks/evaluate", operator, func(c *fiber.Ctx) error {
		adjudicated, err := lifecycle.Adjudicate(c.UserContext())
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(fiber.Map{"message": "winners evaluated", "adjudicated": adjudicated})
	})
}
