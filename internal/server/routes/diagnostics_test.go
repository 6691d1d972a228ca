package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/charatag/charatag/internal/dataset"
)

func newDiagnosticsApp(t *testing.T, datasets map[string]string) *fiber.App {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	dataDir := t.TempDir()
	for name, content := range datasets {
		if err := os.WriteFile(filepath.Join(dataDir, name), []byte(content), 0o600); err != nil {
			t.Fatalf("写入数据集失败: %v", err)
		}
	}

	library, err := dataset.NewLibrary(dataDir, logger, nil)
	if err != nil {
		t.Fatalf("构建 Library 失败: %v", err)
	}

	app := fiber.New()
	RegisterDiagnosticRoutes(app, library)
	return app
}

func TestFormatsDiagnostics(t *testing.T) {
	app := newDiagnosticsApp(t, nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/formats", nil))
	if err != nil {
		t.Fatalf("app.Test 失败: %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Default string `json:"default"`
		Formats []struct {
			Key   string `json:"key"`
			Label string `json:"label"`
		} `json:"formats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if payload.Default != "danbooru_tag" {
		t.Fatalf("缺省格式应为 danbooru_tag，得到 %s", payload.Default)
	}
	if len(payload.Formats) != 4 {
		t.Fatalf("期望 4 种格式，得到 %d", len(payload.Formats))
	}
	for _, format := range payload.Formats {
		if format.Key == "" || format.Label == "" {
			t.Fatalf("格式项缺少 key 或 label: %+v", format)
		}
	}
}

func TestDatasetsDiagnostics(t *testing.T) {
	app := newDiagnosticsApp(t, map[string]string{
		"good.json":   `[{"name_en": "Miku"}, {"name_en": "Saber"}, {}]`,
		"broken.json": `{"not": "an array"}`,
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/-/datasets", nil))
	if err != nil {
		t.Fatalf("app.Test 失败: %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		DataDir  string `json:"data_dir"`
		Datasets []struct {
			File       string `json:"file"`
			Characters int    `json:"characters"`
			Error      string `json:"error"`
		} `json:"datasets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if payload.DataDir == "" {
		t.Fatal("响应缺少 data_dir")
	}
	if len(payload.Datasets) != 2 {
		t.Fatalf("期望 2 个数据集，得到 %d", len(payload.Datasets))
	}

	byFile := make(map[string]struct {
		Characters int
		Error      string
	})
	for _, item := range payload.Datasets {
		byFile[item.File] = struct {
			Characters int
			Error      string
		}{item.Characters, item.Error}
	}

	if got := byFile["good.json"]; got.Characters != 2 || got.Error != "" {
		t.Fatalf("good.json 应有 2 个角色且无错误，得到 %+v", got)
	}
	if got := byFile["broken.json"]; got.Error == "" {
		t.Fatalf("broken.json 应报告解析错误，得到 %+v", got)
	}
}
