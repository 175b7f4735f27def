package api

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/georgeshao/genstudio/internal/billing"
	"github.com/georgeshao/genstudio/internal/catalog"
	"github.com/georgeshao/genstudio/internal/config"
	"github.com/georgeshao/genstudio/internal/dispatcher"
	"github.com/georgeshao/genstudio/internal/lifecycle"
	"github.com/georgeshao/genstudio/internal/storage"
	"github.com/georgeshao/genstudio/pkg/types"
)

type Optimizer interface {
	OptimizePrompt(ctx context.Context, cred config.Credential, prompt string) (string, error)
}

type Deps struct {
	Coordinator *lifecycle.Coordinator
	Catalog     *catalog.Catalog
	Store       storage.Store
	Credentials *config.Cell
	Balance     *billing.Tracker
	Optimizer   Optimizer
	Logger      *slog.Logger
}

type Handler struct {
	coord     *lifecycle.Coordinator
	catalog   *catalog.Catalog
	store     storage.Store
	creds     *config.Cell
	balance   *billing.Tracker
	optimizer Optimizer
	logger    *slog.Logger
	validate  *validator.Validate
}

func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		coord:     deps.Coordinator,
		catalog:   deps.Catalog,
		store:     deps.Store,
		creds:     deps.Credentials,
		balance:   deps.Balance,
		optimizer: deps.Optimizer,
		logger:    logger,
		validate:  validator.New(),
	}
}

func (h *Handler) SubmitGeneration(c *fiber.Ctx) error {
	var req types.SubmitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Invalid request body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: validationMessage(err)})
	}

	records, err := h.coord.Submit(c.UserContext(), req)
	switch {
	case errors.Is(err, dispatcher.ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: err.Error()})
	case errors.Is(err, lifecycle.ErrClosed):
		return c.Status(fiber.StatusServiceUnavailable).JSON(types.ErrorResponse{Error: "Server is shutting down"})
	case err != nil:
		h.logger.Error("submit failed", "model_id", req.ModelID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to submit generation"})
	}

	return c.Status(fiber.StatusAccepted).JSON(types.SubmitResponse{Generations: recordsToGenerations(records)})
}

func (h *Handler) ListGenerations(c *fiber.Ctx) error {
	status := types.Status(c.Query("status"))
	kind := types.Kind(c.Query("kind"))

	var filtered []*storage.AssetRecord
	for _, r := range h.coord.List() {
		if status != "" && r.Status != status {
			continue
		}
		if kind != "" && r.Kind != kind {
			continue
		}
		filtered = append(filtered, r)
	}

	return c.JSON(types.ListGenerationsResponse{
		Generations: recordsToGenerations(filtered),
		Total:       len(filtered),
	})
}

func (h *Handler) GenerationStats(c *fiber.Ctx) error {
	return c.JSON(h.coord.Stats())
}

func (h *Handler) GetGeneration(c *fiber.Ctx) error {
	record, ok := h.coord.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{Error: "Generation not found"})
	}
	return c.JSON(recordToGeneration(record))
}

func (h *Handler) DeleteGeneration(c *fiber.Ctx) error {
	if !h.coord.Delete(c.UserContext(), c.Params("id")) {
		return c.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{Error: "Generation not found"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) GetNotice(c *fiber.Ctx) error {
	notice, ok := h.coord.Notice()
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(notice)
}

func (h *Handler) DismissNotice(c *fiber.Ctx) error {
	h.coord.DismissNotice()
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) settings() types.Settings {
	cred := h.creds.Current()
	return types.Settings{
		BaseURL:    cred.BaseURL,
		APIKeySet:  cred.Valid(),
		APIKeyHint: maskKey(cred.APIKey),
		Source:     h.creds.Source(),
	}
}

func (h *Handler) GetSettings(c *fiber.Ctx) error {
	return c.JSON(h.settings())
}

// UpdateSettings saves the user key. An empty key reverts to the
// environment-provided one, when there is one.
func (h *Handler) UpdateSettings(c *fiber.Ctx) error {
	var req types.UpdateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Invalid request body"})
	}
	key := strings.TrimSpace(req.APIKey)

	if err := h.store.SaveSettings(c.UserContext(), &storage.SettingsRecord{APIKey: key, UpdatedAt: time.Now()}); err != nil {
		h.logger.Error("failed to save settings", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to save settings"})
	}
	h.creds.Set(key)
	h.logger.Info("api key updated", "source", h.creds.Source())

	if h.balance != nil {
		h.balance.Refresh(c.UserContext())
	}
	return c.JSON(h.settings())
}

func (h *Handler) GetBalance(c *fiber.Ctx) error {
	if c.QueryBool("refresh") {
		return c.JSON(h.balance.Refresh(c.UserContext()))
	}
	return c.JSON(h.balance.Current())
}

func (h *Handler) ListModels(c *fiber.Ctx) error {
	models := h.catalog.Models()
	out := make([]types.ModelInfo, 0, len(models))
	for _, m := range models {
		out = append(out, m.Info())
	}
	return c.JSON(out)
}

func (h *Handler) NormalizeDraft(c *fiber.Ctx) error {
	model, ok := h.catalog.Lookup(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{Error: "Model not found"})
	}

	var req types.NormalizeDraftRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Invalid request body"})
	}

	draft, dropped := model.Normalize(catalog.Draft{
		AspectRatio: req.AspectRatio,
		Resolution:  req.Resolution,
		VideoOption: req.VideoOption,
		References:  req.ReferenceImages,
	})

	return c.JSON(types.NormalizeDraftResponse{
		AspectRatio:       draft.AspectRatio,
		Resolution:        draft.Resolution,
		VideoOption:       draft.VideoOption,
		ReferenceImages:   draft.References,
		DroppedReferences: dropped,
	})
}

func (h *Handler) OptimizePrompt(c *fiber.Ctx) error {
	var req types.OptimizePromptRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Invalid request body"})
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Prompt is required"})
	}

	cred := h.creds.Current()
	if !cred.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "API key is not configured"})
	}

	optimized, err := h.optimizer.OptimizePrompt(c.UserContext(), cred, prompt)
	if err != nil {
		h.logger.Warn("prompt optimization failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(types.ErrorResponse{Error: err.Error()})
	}
	return c.JSON(types.OptimizePromptResponse{Prompt: optimized})
}

func (h *Handler) ListPrompts(c *fiber.Ctx) error {
	records, err := h.store.ListPrompts(c.UserContext())
	if err != nil {
		h.logger.Error("failed to list prompts", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to list prompts"})
	}

	prompts := make([]types.SavedPrompt, 0, len(records))
	for _, r := range records {
		prompts = append(prompts, recordToPrompt(r))
	}
	return c.JSON(prompts)
}

func (h *Handler) SavePrompt(c *fiber.Ctx) error {
	var req types.SavePromptRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Invalid request body"})
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Text is required"})
	}

	record := &storage.PromptRecord{
		ID:        uuid.New().String(),
		Text:      text,
		CreatedAt: time.Now(),
	}
	if err := h.store.SavePrompt(c.UserContext(), record); err != nil {
		h.logger.Error("failed to save prompt", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to save prompt"})
	}
	return c.Status(fiber.StatusCreated).JSON(recordToPrompt(record))
}

func (h *Handler) DeletePrompt(c *fiber.Ctx) error {
	if err := h.store.DeletePrompt(c.UserContext(), c.Params("id")); err != nil {
		h.logger.Error("failed to delete prompt", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to delete prompt"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
