// FILE: internal/controller/session_controller.go
// Controller exposing session and conversation state to the serving layer
package controller

import (
	"errors"
	"time"

	"chat-state-be/internal/constant"
	"chat-state-be/internal/dto"
	"chat-state-be/internal/pkg/serverutils"
	"chat-state-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ISessionController interface {
	RegisterRoutes(api fiber.Router, adminMiddleware fiber.Handler)
}

type sessionController struct {
	service service.SessionStateService
}

func NewSessionController(service service.SessionStateService) ISessionController {
	return &sessionController{service: service}
}

func (c *sessionController) RegisterRoutes(api fiber.Router, adminMiddleware fiber.Handler) {
	sessions := api.Group("/sessions")
	sessions.Post("/", c.InitializeSession)
	sessions.Get("/:id", c.GetSession)
	sessions.Get("/:id/conversations", c.GetSessionConversations)

	conversations := api.Group("/conversations")
	conversations.Post("/", c.InitializeConversation)
	conversations.Get("/:id", c.GetConversation)
	conversations.Get("/:id/messages", c.GetConversationMessages)
	conversations.Post("/:id/messages", c.AddMessage)

	api.Get("/stats", c.GetStats)
	api.Get("/health", c.HealthCheck)

	admin := api.Group("/admin", adminMiddleware)
	admin.Post("/cleanup", c.Cleanup)
	admin.Post("/sessions/:id/ttl", c.ExtendSessionTtl)
	admin.Post("/health/probe", c.Probe)
}

func (c *sessionController) InitializeSession(ctx *fiber.Ctx) error {
	var req dto.InitializeSessionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	session, err := c.service.InitializeSession(ctx.Context(), req.SessionId, req.StartTime, seconds(req.TtlSeconds))
	if err != nil {
		return mapServiceError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Session initialized", session))
}

func (c *sessionController) GetSession(ctx *fiber.Ctx) error {
	session, err := c.service.GetSession(ctx.Context(), ctx.Params("id"))
	if err != nil {
		return mapServiceError(err)
	}
	if session == nil {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(fiber.StatusNotFound, "Session not found"))
	}
	return ctx.JSON(serverutils.SuccessResponse("Session retrieved", session))
}

func (c *sessionController) GetSessionConversations(ctx *fiber.Ctx) error {
	id := ctx.Params("id")
	ids, err := c.service.GetSessionConversations(ctx.Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Session conversations retrieved", dto.SessionConversationsResponse{
		SessionId:       id,
		ConversationIds: ids,
	}))
}

func (c *sessionController) InitializeConversation(ctx *fiber.Ctx) error {
	var req dto.InitializeConversationRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	conversation, err := c.service.InitializeConversation(
		ctx.Context(),
		req.ConversationId,
		req.StartTime,
		req.SessionId,
		req.SystemPrompt,
		seconds(req.TtlSeconds),
	)
	if err != nil {
		return mapServiceError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Conversation initialized", conversation))
}

func (c *sessionController) GetConversation(ctx *fiber.Ctx) error {
	conversation, err := c.service.GetConversation(ctx.Context(), ctx.Params("id"))
	if err != nil {
		return mapServiceError(err)
	}
	if conversation == nil {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(fiber.StatusNotFound, "Conversation not found"))
	}
	return ctx.JSON(serverutils.SuccessResponse("Conversation retrieved", conversation))
}

func (c *sessionController) GetConversationMessages(ctx *fiber.Ctx) error {
	id := ctx.Params("id")
	limit := ctx.QueryInt("limit", constant.DefaultConversationMessageLimit)

	messages, err := c.service.GetConversationMessages(ctx.Context(), id, limit)
	if err != nil {
		return mapServiceError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Messages retrieved", dto.GetMessagesResponse{
		ConversationId: id,
		Messages:       messages,
	}))
}

func (c *sessionController) AddMessage(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	var req dto.AddMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	appended, err := c.service.AddMessageToConversation(ctx.Context(), id, req.UserMessage, req.AssistantMessage, req.SessionId)
	if err != nil {
		return mapServiceError(err)
	}
	if !appended {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(fiber.StatusNotFound, "Conversation not found"))
	}

	conversation, err := c.service.GetConversation(ctx.Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	resp := dto.AddMessageResponse{ConversationId: id}
	if conversation != nil {
		resp.MessageCount = conversation.MessageCount
	}
	return ctx.JSON(serverutils.SuccessResponse("Messages stored", resp))
}

func (c *sessionController) GetStats(ctx *fiber.Ctx) error {
	stats, err := c.service.GetSessionStats(ctx.Context())
	if err != nil {
		return mapServiceError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Stats retrieved", stats))
}

func (c *sessionController) HealthCheck(ctx *fiber.Ctx) error {
	report := c.service.HealthCheck(ctx.Context())
	if report.Status == constant.HealthStatusUnhealthy {
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(serverutils.BaseResponse[any]{
			Success: false,
			Code:    fiber.StatusServiceUnavailable,
			Message: report.Error,
			Data:    report,
		})
	}
	return ctx.JSON(serverutils.SuccessResponse("Health check", report))
}

func (c *sessionController) Cleanup(ctx *fiber.Ctx) error {
	var req dto.CleanupRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	maxAge := constant.DefaultCleanupMaxAgeHours
	if req.MaxAgeHours != nil {
		maxAge = *req.MaxAgeHours
	}

	cleaned, err := c.service.CleanupOldSessions(ctx.Context(), maxAge)
	if err != nil {
		return mapServiceError(err)
	}
	stats, err := c.service.GetSessionStats(ctx.Context())
	if err != nil {
		return mapServiceError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Cleanup completed", dto.CleanupResponse{
		CleanedSessions: cleaned,
		RemainingStats:  stats,
	}))
}

func (c *sessionController) ExtendSessionTtl(ctx *fiber.Ctx) error {
	id := ctx.Params("id")

	var req dto.ExtendTtlRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	extended, err := c.service.ExtendSessionTtl(ctx.Context(), id, req.AdditionalSeconds)
	if err != nil {
		return mapServiceError(err)
	}
	if !extended {
		return ctx.Status(fiber.StatusNotFound).JSON(serverutils.ErrorResponse(fiber.StatusNotFound, "Session not found"))
	}
	return ctx.JSON(serverutils.SuccessResponse("Session TTL extended", dto.ExtendTtlResponse{
		SessionId: id,
		Extended:  true,
	}))
}

func (c *sessionController) Probe(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Probe completed", c.service.ProbeRemote(ctx.Context())))
}

func mapServiceError(err error) error {
	if errors.Is(err, service.ErrInvalidArgument) {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
