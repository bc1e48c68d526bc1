package controller

import (
	"ai-factcheck-be/internal/dto"
	"ai-factcheck-be/internal/pkg/serverutils"
	"ai-factcheck-be/internal/service"
	"ai-factcheck-be/pkg/apperror"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IHistoryController interface {
	RegisterRoutes(r fiber.Router)
	List(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Messages(ctx *fiber.Ctx) error
}

type historyController struct {
	persistenceService service.IPersistenceService
	jwtSecret          string
}

func NewHistoryController(persistenceService service.IPersistenceService, jwtSecret string) IHistoryController {
	return &historyController{
		persistenceService: persistenceService,
		jwtSecret:          jwtSecret,
	}
}

func (c *historyController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/analysis/v1/analyses")
	h.Use(serverutils.JwtMiddleware(c.jwtSecret))
	h.Get("", c.List)
	h.Get(":id", c.Show)
	h.Get(":id/messages", c.Messages)
}

func (c *historyController) List(ctx *fiber.Ctx) error {
	var req dto.ListAnalysesRequest
	if err := ctx.QueryParser(&req); err != nil {
		return apperror.NewValidation("", "malformed query string")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.persistenceService.ListAnalyses(ctx.UserContext(), serverutils.UserID(ctx), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success list analyses", res))
}

func (c *historyController) Show(ctx *fiber.Ctx) error {
	id, err := analysisID(ctx)
	if err != nil {
		return err
	}

	res, err := c.persistenceService.GetAnalysis(ctx.UserContext(), serverutils.UserID(ctx), id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show analysis", res))
}

func (c *historyController) Messages(ctx *fiber.Ctx) error {
	id, err := analysisID(ctx)
	if err != nil {
		return err
	}

	res, err := c.persistenceService.ListMessages(ctx.UserContext(), serverutils.UserID(ctx), id)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success list messages", res))
}

func analysisID(ctx *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, apperror.NewValidation("id", "must be a UUID")
	}
	return id, nil
}
