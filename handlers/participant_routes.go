package handlers

import (
	"bounty-quest/logging"
	"bounty-quest/services"

	"github.com/gofiber/fiber/v2"
)

type gateRequest struct {
	Wallet string `json:"wallet"`
	TaskID string `json:"task_id"`
}

type submitRequest struct {
	TaskID  string `json:"task_id"`
	Wallet  string `json:"wallet"`
	PostURL string `json:"post_url"`
}

type verifyRequest struct {
	Wallet  string `json:"wallet"`
	PostURL string `json:"post_url"`
}

// SetupParticipantRoutes registers the public routes a participant uses to verify, check and submit.
func SetupParticipantRoutes(
	app *fiber.App,
	submissions *services.SubmissionService,
	identities *services.IdentityService,
	logger logging.Logger,
) {
	app.Post("/auth", func(c *fiber.Ctx) error {
		var req gateRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
		result, err := submissions.Check(c.UserContext(), req.Wallet, req.TaskID)
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.JSON(result)
	})

	app.Post("/submissions", func(c *fiber.Ctx) error {
		var req submitRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
		sub, err := submissions.Submit(c.UserContext(), services.SubmitRequest{
			TaskID:        req.TaskID,
			ParticipantID: req.Wallet,
			PostURL:       req.PostURL,
		})
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"submission": sub})
	})

	app.Post("/identity/verify", func(c *fiber.Ctx) error {
		var req verifyRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON body")
		}
		identity, err := identities.Verify(c.UserContext(), services.VerifyRequest{
			PostURL: req.PostURL,
			Wallet:  req.Wallet,
		})
		if err != nil {
			return respondError(c, logger, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"message":  "identity verified",
			"identity": identity,
		})
	})
}
