package server

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/charatag/charatag/internal/dataset"
	"github.com/charatag/charatag/internal/imagecache"
	"github.com/charatag/charatag/internal/logging"
	"github.com/charatag/charatag/internal/tag"
)

// apiHandler 承载 /v1 路由的业务逻辑，依赖在 NewApp 中注入。
type apiHandler struct {
	logger   *logrus.Logger
	library  *dataset.Library
	previews *imagecache.Cache
}

func (h *apiHandler) listDatasets(c fiber.Ctx) error {
	files := h.library.Files()
	if files == nil {
		files = []string{}
	}
	return c.JSON(fiber.Map{"datasets": files})
}

func (h *apiHandler) listCharacters(c fiber.Ctx) error {
	name := strings.TrimSpace(c.Params("dataset"))

	names, err := h.library.CharacterNames(name)
	if err != nil {
		return h.renderDatasetError(c, name, err)
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(fiber.Map{"dataset": name, "characters": names})
}

func (h *apiHandler) renderTag(c fiber.Ctx) error {
	datasetName := strings.TrimSpace(c.Query("dataset"))
	character := strings.TrimSpace(c.Query("character"))
	formatKey := strings.TrimSpace(c.Query("format"))

	if datasetName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "dataset_required"})
	}
	if character == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "character_required"})
	}
	if formatKey == "" {
		formatKey = tag.DefaultKey()
	}

	format, ok := tag.Resolve(formatKey)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "format_unknown"})
	}

	record, found, err := h.library.Find(datasetName, character)
	if err != nil {
		return h.renderDatasetError(c, datasetName, err)
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "character_not_found"})
	}

	text := format.Render(record)
	h.logger.WithFields(logging.LookupFields(datasetName, character, format.Key)).Debug("tag_rendered")

	return c.JSON(fiber.Map{
		"dataset":   datasetName,
		"character": character,
		"format":    format.Key,
		"text":      text,
	})
}

// renderPreview 与底层缓存一样是全量契约：任何失败都退回占位图，
// 永远响应 200，命中层级通过 X-Charatag-Source 头暴露。
func (h *apiHandler) renderPreview(c fiber.Ctx) error {
	datasetName := strings.TrimSpace(c.Query("dataset"))
	character := strings.TrimSpace(c.Query("character"))

	iconURL := ""
	if datasetName != "" && character != "" {
		record, found, err := h.library.Find(datasetName, character)
		switch {
		case err != nil:
			h.logger.WithError(err).WithField("dataset", datasetName).Warn("preview_dataset_unavailable")
		case !found:
			h.logger.WithFields(logrus.Fields{"dataset": datasetName, "character": character}).Debug("preview_character_unknown")
		default:
			iconURL = record.IconURL
		}
	}

	var ctx context.Context = c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	img, source := h.previews.Resolve(ctx, iconURL)
	return h.sendBitmap(c, img, source)
}

func (h *apiHandler) sendBitmap(c fiber.Ctx, img *image.NRGBA, source imagecache.Source) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		// NRGBA 内存图编码失败意味着进程级异常，此时退回占位图重试一次
		h.logger.WithError(err).Error("preview_encode_failed")
		buf.Reset()
		if err := png.Encode(&buf, imagecache.Placeholder()); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "preview_unavailable"})
		}
		source = imagecache.SourcePlaceholder
	}

	c.Set("X-Charatag-Source", string(source))
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(buf.Bytes())
}

// renderDatasetError 把数据集层错误映射为 API 错误码：路径逃逸是调用方
// 参数问题，其余（缺文件、JSON 解析失败）统一按数据集不存在处理。
func (h *apiHandler) renderDatasetError(c fiber.Ctx, name string, err error) error {
	if errors.Is(err, dataset.ErrOutsideDataDir) {
		h.logger.WithField("dataset", name).Warn("dataset_path_rejected")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_dataset"})
	}

	h.logger.WithError(err).WithField("dataset", name).Warn("dataset_unavailable")
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "dataset_not_found"})
}
