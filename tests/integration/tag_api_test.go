package integration

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/charatag/charatag/internal/imagecache"
)

func TestTagEndToEnd(t *testing.T) {
	env := newTestEnv(t, imagecache.Options{})

	content := `[
	  {"name_cn": "初音未来", "name_en": "Hatsune Miku", "source_cn": "术力口", "source_en": "Vocaloid", "tag": "hatsune_miku"},
	  {"name_en": "Plain Jane", "source_en": "Some Show"}
	]`
	if err := os.WriteFile(filepath.Join(env.dataDir, "vocaloid.json"), []byte(content), 0o600); err != nil {
		t.Fatalf("写入数据集失败: %v", err)
	}

	tagQuery := func(character, format string) string {
		q := "/v1/tag?dataset=vocaloid.json&character=" + url.QueryEscape(character)
		if format != "" {
			q += "&format=" + url.QueryEscape(format)
		}
		return q
	}

	cases := []struct {
		name     string
		target   string
		wantText string
	}{
		{"缺省格式直用 tag 字段", tagQuery("初音未来 (Hatsune Miku)", ""), "hatsune_miku"},
		{"兜底拼接标签", tagQuery("Plain Jane", "danbooru_tag"), "plain_jane_(some_show)"},
		{"英文自然语言", tagQuery("Plain Jane", "natural_en"), "Plain Jane from Some Show"},
		{"中文自然语言", tagQuery("初音未来 (Hatsune Miku)", "natural_cn"), "初音未来来自术力口"},
		{"中文名加出处", tagQuery("初音未来 (Hatsune Miku)", "cn_name_source"), "初音未来, 术力口"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.get(t, tc.target)
			defer resp.Body.Close()

			if resp.StatusCode != fiber.StatusOK {
				t.Fatalf("期望 200，得到 %d", resp.StatusCode)
			}

			var payload struct {
				Dataset   string `json:"dataset"`
				Character string `json:"character"`
				Format    string `json:"format"`
				Text      string `json:"text"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				t.Fatalf("解析响应失败: %v", err)
			}
			if payload.Text != tc.wantText {
				t.Fatalf("期望文本 %q，得到 %q", tc.wantText, payload.Text)
			}
			if payload.Dataset != "vocaloid.json" {
				t.Fatalf("响应应回显数据集名，得到 %q", payload.Dataset)
			}
		})
	}
}

func TestTagErrorCodes(t *testing.T) {
	env := newTestEnv(t, imagecache.Options{})
	env.writeDataset(t, "show.json", "Miku", "")

	cases := []struct {
		name       string
		target     string
		wantStatus int
		wantError  string
	}{
		{"未知格式", "/v1/tag?dataset=show.json&character=Miku&format=bogus", fiber.StatusBadRequest, "format_unknown"},
		{"未知角色", "/v1/tag?dataset=show.json&character=Nobody", fiber.StatusNotFound, "character_not_found"},
		{"未知数据集", "/v1/tag?dataset=missing.json&character=Miku", fiber.StatusNotFound, "dataset_not_found"},
		{"路径逃逸", "/v1/tag?dataset=" + url.QueryEscape("../sneaky.json") + "&character=Miku", fiber.StatusBadRequest, "invalid_dataset"},
		{"缺少参数", "/v1/tag?dataset=show.json", fiber.StatusBadRequest, "character_required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := env.get(t, tc.target)
			defer resp.Body.Close()

			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("期望状态 %d，得到 %d", tc.wantStatus, resp.StatusCode)
			}

			var payload struct {
				Error string `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
				t.Fatalf("解析响应失败: %v", err)
			}
			if payload.Error != tc.wantError {
				t.Fatalf("期望错误码 %q，得到 %q", tc.wantError, payload.Error)
			}
		})
	}
}
