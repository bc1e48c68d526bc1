package controller

import (
	"ai-factcheck-be/internal/dto"
	"ai-factcheck-be/internal/pkg/serverutils"
	"ai-factcheck-be/internal/service"
	"ai-factcheck-be/pkg/apperror"

	"github.com/gofiber/fiber/v2"
)

type IContentController interface {
	RegisterRoutes(r fiber.Router)
	Fetch(ctx *fiber.Ctx) error
}

type contentController struct {
	contentService service.IContentService
	jwtSecret      string
}

func NewContentController(contentService service.IContentService, jwtSecret string) IContentController {
	return &contentController{
		contentService: contentService,
		jwtSecret:      jwtSecret,
	}
}

func (c *contentController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/analysis/v1/content")
	h.Use(serverutils.JwtMiddleware(c.jwtSecret))
	h.Post("fetch", c.Fetch)
}

func (c *contentController) Fetch(ctx *fiber.Ctx) error {
	var req dto.FetchContentRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperror.NewValidation("", "malformed request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.contentService.Fetch(ctx.UserContext(), &req)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success fetch content", res))
}
