package api

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"

	"datalens-core/internal/domain/entity"
	"datalens-core/internal/domain/repository"
	"datalens-core/internal/usecase"
)

type AnalysisHandler struct {
	orchestrator *usecase.Orchestrator
	history      repository.HistoryStore
}

func NewAnalysisHandler(orch *usecase.Orchestrator, history repository.HistoryStore) *AnalysisHandler {
	return &AnalysisHandler{orchestrator: orch, history: history}
}

// HandleAnalyze accepts a multipart data file and returns the full analysis.
func (h *AnalysisHandler) HandleAnalyze(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing file upload"})
	}
	f, err := header.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unreadable file upload"})
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unreadable file upload"})
	}

	result, err := h.orchestrator.AnalyzeDocument(c.Context(), header.Filename, data)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(result)
}

type chatRequest struct {
	Message string `json:"message"`
}

// HandleChat answers a follow-up question on the active session.
func (h *AnalysisHandler) HandleChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil || req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	reply, err := h.orchestrator.SendMessage(c.Context(), req.Message)
	if err != nil {
		return h.mapError(c, err)
	}

	c.Set("X-Datalens-Cache-Hit", "false")
	if reply.Cached {
		c.Set("X-Datalens-Cache-Hit", "true")
	}
	return c.Status(fiber.StatusOK).JSON(reply)
}

// HandleStats exposes remote API usage for observability widgets.
func (h *AnalysisHandler) HandleStats(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.orchestrator.Stats())
}

// HandleReset drops the cached session and call counters.
func (h *AnalysisHandler) HandleReset(c *fiber.Ctx) error {
	h.orchestrator.Reset()
	return c.SendStatus(fiber.StatusNoContent)
}

// mapError translates domain errors into HTTP status codes. Rate-limit and
// timeout responses carry a concrete retry suggestion per the error text.
func (h *AnalysisHandler) mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, entity.ErrRateLimitExceeded):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, entity.ErrRunTimeout):
		return c.Status(fiber.StatusGatewayTimeout).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, entity.ErrRunFailed), errors.Is(err, entity.ErrRemoteAPI), errors.Is(err, entity.ErrNetwork):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, entity.ErrInvalidRequest):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

type historyRequest struct {
	Kind    string `json:"kind"`
	Payload []byte `json:"payload"`
}

// HandleHistoryCreate persists one chat/chart/dashboard document.
func (h *AnalysisHandler) HandleHistoryCreate(c *fiber.Ctx) error {
	var req historyRequest
	if err := c.BodyParser(&req); err != nil || req.Kind == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	doc := &entity.HistoryDocument{Kind: req.Kind, Payload: req.Payload}
	if err := h.history.Create(c.Context(), doc); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "history save failed"})
	}
	return c.Status(fiber.StatusCreated).JSON(doc)
}

func (h *AnalysisHandler) HandleHistoryGet(c *fiber.Ctx) error {
	doc, err := h.history.Get(c.Context(), c.Params("kind"), c.Params("id"))
	if err != nil {
		if errors.Is(err, entity.ErrResourceNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "history load failed"})
	}
	return c.Status(fiber.StatusOK).JSON(doc)
}

func (h *AnalysisHandler) HandleHistoryUpdate(c *fiber.Ctx) error {
	var req historyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	doc := &entity.HistoryDocument{
		ID:      c.Params("id"),
		Kind:    c.Params("kind"),
		Payload: req.Payload,
	}
	if err := h.history.Update(c.Context(), doc); err != nil {
		if errors.Is(err, entity.ErrResourceNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "history update failed"})
	}
	return c.Status(fiber.StatusOK).JSON(doc)
}

func (h *AnalysisHandler) HandleHistoryDelete(c *fiber.Ctx) error {
	if err := h.history.Delete(c.Context(), c.Params("kind"), c.Params("id")); err != nil {
		if errors.Is(err, entity.ErrResourceNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "history delete failed"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AnalysisHandler) HandleHistoryList(c *fiber.Ctx) error {
	docs, err := h.history.Query(c.Context(), c.Params("kind"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "history query failed"})
	}
	if docs == nil {
		docs = []*entity.HistoryDocument{}
	}
	return c.Status(fiber.StatusOK).JSON(docs)
}
