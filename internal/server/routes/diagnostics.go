// Package routes 注册 /-/ 诊断接口，与 /v1 业务 API 分开维护。
package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/charatag/charatag/internal/dataset"
	"github.com/charatag/charatag/internal/tag"
)

// RegisterDiagnosticRoutes 暴露 /-/formats 与 /-/datasets，供运维确认
// 已注册的输出格式与当前可见的数据集状态。
func RegisterDiagnosticRoutes(app *fiber.App, library *dataset.Library) {
	if app == nil || library == nil {
		return
	}

	app.Get("/-/formats", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"default": tag.DefaultKey(),
			"formats": encodeFormats(tag.List()),
		})
	})

	app.Get("/-/datasets", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"data_dir": library.Dir(),
			"datasets": encodeDatasets(library),
		})
	})
}

type formatPayload struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type datasetPayload struct {
	File       string `json:"file"`
	Characters int    `json:"characters"`
	Error      string `json:"error,omitempty"`
}

func encodeFormats(formats []tag.Format) []formatPayload {
	result := make([]formatPayload, 0, len(formats))
	for _, format := range formats {
		result = append(result, formatPayload{Key: format.Key, Label: format.Label})
	}
	return result
}

func encodeDatasets(library *dataset.Library) []datasetPayload {
	files := library.Files()
	result := make([]datasetPayload, 0, len(files))
	for _, file := range files {
		item := datasetPayload{File: file}
		names, err := library.CharacterNames(file)
		if err != nil {
			item.Error = err.Error()
		} else {
			item.Characters = len(names)
		}
		result = append(result, item)
	}
	return result
}
