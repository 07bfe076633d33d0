package handlers

import (
	"bounty-quest/logging"
	"bounty-quest/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type distributeRequest struct {
	TaskID    string           `json:"task_id"`
	Recipient string           `json:"recipient"`
	Amount    *decimal.Decimal `json:"amount"`
}

func SetupRewardRoutes(app *fiber.App, operator fiber.Handler, rewards *services.RewardService, logger logging.Logger) {
	app.Get("/rewards", func(c *fiber.Ctx) error {
		taskID := c.Query("taskId", c.Query("task_id"))
		if taskID == "" {
			return badRequest(c, "taskId is required")
		}
		status, err := rewards.Status(c.UserContext(), taskID)
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(status)
	})

	app.Post("/rewards", operator, func(c *fiber.Ctx) error {
		var req distributeRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
		result, err := rewards.Distribute(c.UserContext(), services.DistributeRequest{
			TaskID:    req.TaskID,
			Recipient: req.Recipient,
			Amount:    req.Amount,
		})
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(fiber.Map{
			"message": "reward distributed",
			"result":  result,
		})
	})
}
