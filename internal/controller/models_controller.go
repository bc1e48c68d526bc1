package controller

import (
	"ai-factcheck-be/internal/dto"
	"ai-factcheck-be/internal/pkg/serverutils"
	"ai-factcheck-be/pkg/prompt"

	"github.com/gofiber/fiber/v2"
)

// ModelLister is satisfied by the adapter registry.
type ModelLister interface {
	Models() []string
}

type IModelsController interface {
	RegisterRoutes(r fiber.Router)
	List(ctx *fiber.Ctx) error
}

type modelsController struct {
	models  ModelLister
	prompts *prompt.Resolver
}

func NewModelsController(models ModelLister, prompts *prompt.Resolver) IModelsController {
	return &modelsController{
		models:  models,
		prompts: prompts,
	}
}

func (c *modelsController) RegisterRoutes(r fiber.Router) {
	r.Get("/analysis/v1/models", c.List)
}

func (c *modelsController) List(ctx *fiber.Ctx) error {
	reportTypes := make([]string, 0, len(prompt.ReportTypes()))
	for _, rt := range prompt.ReportTypes() {
		reportTypes = append(reportTypes, string(rt))
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list models", dto.ModelsResponse{
		Models:      c.models.Models(),
		ReportTypes: reportTypes,
		Commands:    c.prompts.Commands(),
	}))
}
