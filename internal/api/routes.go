package api

import (
	"github.com/gofiber/fiber/v2"
)

func SetupRoutes(app *fiber.App, deps Deps) {
	h := NewHandler(deps)

	v1 := app.Group("/v1")

	v1.Post("/generations", h.SubmitGeneration)
	v1.Get("/generations", h.ListGenerations)
	v1.Get("/generations/stats", h.GenerationStats)
	v1.Get("/generations/:id", h.GetGeneration)
	v1.Delete("/generations/:id", h.DeleteGeneration)

	v1.Get("/notice", h.GetNotice)
	v1.Delete("/notice", h.DismissNotice)

	v1.Get("/settings", h.GetSettings)
	v1.Put("/settings", h.UpdateSettings)
	v1.Get("/balance", h.GetBalance)

	v1.Get("/models", h.ListModels)
	v1.Post("/models/:id/normalize", h.NormalizeDraft)

	v1.Post("/prompts/optimize", h.OptimizePrompt)
	v1.Get("/prompts/library", h.ListPrompts)
	v1.Post("/prompts/library", h.SavePrompt)
	v1.Delete("/prompts/library/:id", h.DeletePrompt)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
