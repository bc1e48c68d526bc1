package controller

import (
	"bufio"
	"context"
	"errors"
	"strings"
	"time"

	"ai-factcheck-be/internal/dto"
	"ai-factcheck-be/internal/pkg/logger"
	"ai-factcheck-be/internal/pkg/serverutils"
	"ai-factcheck-be/internal/upload"
	"ai-factcheck-be/pkg/apperror"
	"ai-factcheck-be/pkg/llm"
	"ai-factcheck-be/pkg/session"
	"ai-factcheck-be/pkg/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

type StreamSettings struct {
	Heartbeat    time.Duration
	WriteTimeout time.Duration
}

type IAnalysisController interface {
	RegisterRoutes(r fiber.Router)
	CreateSession(ctx *fiber.Ctx) error
	Start(ctx *fiber.Ctx) error
	Followup(ctx *fiber.Ctx) error
	Stop(ctx *fiber.Ctx) error
	Restart(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Resume(ctx *fiber.Ctx) error
}

type analysisController struct {
	manager   *session.Manager
	uploader  *upload.Handler
	settings  StreamSettings
	jwtSecret string
	logger    logger.ILogger
}

func NewAnalysisController(
	manager *session.Manager,
	uploader *upload.Handler,
	settings StreamSettings,
	jwtSecret string,
	log logger.ILogger,
) IAnalysisController {
	return &analysisController{
		manager:   manager,
		uploader:  uploader,
		settings:  settings,
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

func (c *analysisController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/analysis/v1/sessions")
	h.Use(serverutils.JwtMiddleware(c.jwtSecret))
	h.Post("", c.CreateSession)
	h.Post("resume/:analysisId", c.Resume)
	h.Get(":id", c.Show)
	h.Post(":id/start", c.Start)
	h.Post(":id/followup", c.Followup)
	h.Post(":id/stop", c.Stop)
	h.Post(":id/restart", c.Restart)
	h.Get(":id/ws", upgradeOnly, c.socketHandler())
}

func (c *analysisController) CreateSession(ctx *fiber.Ctx) error {
	s := c.manager.Create(serverutils.UserID(ctx))
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Session created", dto.CreateSessionResponse{
		SessionId: s.ID(),
	}))
}

func (c *analysisController) Start(ctx *fiber.Ctx) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}

	var req dto.StartAnalysisRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperror.NewValidation("", "malformed request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	in := toStartInput(&req)
	if isMultipart(ctx) {
		if fh, err := ctx.FormFile("image"); err == nil {
			img, err := c.uploader.Accept(fh)
			if err != nil {
				return err
			}
			in.Image = img
		}
	}

	relay, err := s.Start(ctx.UserContext(), in)
	if err != nil {
		return err
	}
	return c.streamSSE(ctx, s, relay)
}

func (c *analysisController) Followup(ctx *fiber.Ctx) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}

	var req dto.FollowupRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperror.NewValidation("", "malformed request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	relay, err := s.SendFollowup(ctx.UserContext(), req.Text, req.Command)
	if err != nil {
		return err
	}
	return c.streamSSE(ctx, s, relay)
}

func (c *analysisController) Stop(ctx *fiber.Ctx) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}
	s.Stop()
	return ctx.JSON(serverutils.SuccessResponse("Generation stopped", s.Snapshot()))
}

func (c *analysisController) Restart(ctx *fiber.Ctx) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}
	relay, err := s.Restart(ctx.UserContext())
	if err != nil {
		return err
	}
	return c.streamSSE(ctx, s, relay)
}

func (c *analysisController) Show(ctx *fiber.Ctx) error {
	s, err := c.session(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success show session", s.Snapshot()))
}

func (c *analysisController) Resume(ctx *fiber.Ctx) error {
	analysisId, err := uuid.Parse(ctx.Params("analysisId"))
	if err != nil {
		return apperror.NewValidation("analysis_id", "must be a UUID")
	}

	s, err := c.manager.Resume(ctx.UserContext(), analysisId, serverutils.UserID(ctx))
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Session resumed", dto.ResumeSessionResponse{
		SessionId:  s.ID(),
		AnalysisId: analysisId.String(),
	}))
}

func (c *analysisController) session(ctx *fiber.Ctx) (*session.Session, error) {
	return c.manager.Get(ctx.Params("id"), serverutils.UserID(ctx))
}

// streamSSE hands the relay to fasthttp's body writer. The handler returns
// immediately; the writer runs until the relay closes or the client leaves.
func (c *analysisController) streamSSE(ctx *fiber.Ctx, s *session.Session, relay *stream.Relay) error {
	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	sessionId := s.ID()
	heartbeat := c.settings.Heartbeat
	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		err := stream.Drain(context.Background(), relay, stream.NewSSESink(w), heartbeat)
		if err != nil && errors.Is(err, apperror.ErrPeerGone) {
			c.logger.Info("HTTP", "Client left the stream", map[string]interface{}{
				"session_id": sessionId,
				"error":      err.Error(),
			})
		}
	}))
	return nil
}

func toStartInput(req *dto.StartAnalysisRequest) session.StartInput {
	params := llm.Params{
		MaxTokens: req.MaxTokens,
		Grounding: req.Grounding,
	}
	if req.Temperature != nil {
		params.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		params.TopP = *req.TopP
	}
	return session.StartInput{
		Query:      req.Query,
		ReportType: req.ReportType,
		ModelID:    req.ModelId,
		Params:     params,
	}
}

func isMultipart(ctx *fiber.Ctx) bool {
	return strings.HasPrefix(string(ctx.Request().Header.ContentType()), fiber.MIMEMultipartForm)
}
