package handlers

import (
	"io"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

type AssetHandler struct {
	s  service.AssetService
	js service.JobService
}

func NewAssetHandler(s service.AssetService, js service.JobService) *AssetHandler {
	return &AssetHandler{s: s, js: js}
}

func formBool(c *fiber.Ctx, key string, def bool) bool {
	v := strings.TrimSpace(c.FormValue(key))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func (h *AssetHandler) UploadAsset(c *fiber.Ctx) error {
	file, err := c.FormFile("video")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file uploaded",
		})
	}
	if file.Size > service.MaxUploadSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "File too large (max 100MB)",
		})
	}

	f, err := file.Open()
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to read file",
		})
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to read file",
		})
	}

	asset, err := h.s.Upload(c.Context(), file.Filename, data, transfer.AssetUpload{
		Caption:       c.FormValue("caption"),
		Hashtags:      c.FormValue("hashtags"),
		CutVertical:   formBool(c, "cut_vertical", true),
		CutSquare:     formBool(c, "cut_square", true),
		CutHorizontal: formBool(c, "cut_horizontal", false),
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"video": asset,
	})
}

func (h *AssetHandler) ListAssets(c *fiber.Ctx) error {
	assets, err := h.s.List(c.Context())
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"videos": assets,
	})
}

func (h *AssetHandler) GetAsset(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}

	asset, err := h.s.Get(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"video": asset,
	})
}

func (h *AssetHandler) ProcessAsset(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}

	asset, err := h.s.Process(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"video": asset,
	})
}

func (h *AssetHandler) DeleteAsset(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}

	if err := h.s.Delete(c.Context(), id); err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Video removed successfully",
	})
}

func (h *AssetHandler) PostAsset(c *fiber.Ctx) error {
	id, ok := paramID(c)
	if !ok {
		return invalidID(c)
	}

	var req transfer.CreateJobsRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unable to parse request body",
			})
		}
	}

	jobs, err := h.js.CreateBatch(c.Context(), id, &req)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":    "Posting jobs scheduled",
		"jobs":       jobs,
		"jobs_count": len(jobs),
	})
}
