package integration

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/charatag/charatag/internal/dataset"
	"github.com/charatag/charatag/internal/imagecache"
	"github.com/charatag/charatag/internal/server"
	"github.com/charatag/charatag/internal/server/routes"
)

// pngBytes 生成指定尺寸的纯色 PNG，用作上游图床的响应正文。
func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	fill := color.NRGBA{R: 200, G: 80, B: 40, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("生成测试 PNG 失败: %v", err)
	}
	return buf.Bytes()
}

// originStub 模拟角色图标的上游图床，记录 GET 次数供去重断言。
type originStub struct {
	server *httptest.Server

	mu   sync.Mutex
	hits int
	body []byte
	ct   string
}

func newOriginStub(t *testing.T, body []byte, contentType string) *originStub {
	t.Helper()

	stub := &originStub{body: body, ct: contentType}
	stub.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stub.mu.Lock()
		stub.hits++
		body := stub.body
		ct := stub.ct
		stub.mu.Unlock()

		if ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(stub.server.Close)
	return stub
}

func (s *originStub) URL() string {
	return s.server.URL + "/icon.png"
}

func (s *originStub) Hits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits
}

// testEnv 把一次集成测试需要的全部部件攒在一起：数据目录、缓存目录、
// Library、预览缓存与装配完成的 Fiber 应用。
type testEnv struct {
	app      *fiber.App
	library  *dataset.Library
	previews *imagecache.Cache
	dataDir  string
	cacheDir string
	logger   *logrus.Logger
}

// newTestEnv 按 main.go 的装配顺序构建应用。cacheOpts 中的零值字段
// 沿用缺省上限。
func newTestEnv(t *testing.T, cacheOpts imagecache.Options) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	env := &testEnv{
		dataDir:  t.TempDir(),
		cacheDir: t.TempDir(),
		logger:   logger,
	}
	if cacheOpts.CacheDir != "" {
		env.cacheDir = cacheOpts.CacheDir
	}

	library, err := dataset.NewLibrary(env.dataDir, logger, nil)
	if err != nil {
		t.Fatalf("构建 Library 失败: %v", err)
	}
	env.library = library

	cacheOpts.CacheDir = env.cacheDir
	cacheOpts.Logger = logger
	previews, err := imagecache.New(cacheOpts)
	if err != nil {
		t.Fatalf("构建预览缓存失败: %v", err)
	}
	env.previews = previews

	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Library:    library,
		Previews:   previews,
		ListenPort: 5100,
	})
	if err != nil {
		t.Fatalf("构建应用失败: %v", err)
	}
	routes.RegisterDiagnosticRoutes(app, library)
	env.app = app
	return env
}

// writeDataset 在数据目录下写入单角色数据集，返回数据集文件名。
func (e *testEnv) writeDataset(t *testing.T, file, nameEN, iconURL string) {
	t.Helper()

	content := fmt.Sprintf(`[{"name_en": %q, "source_en": "Test Show", "icon_url": %q}]`, nameEN, iconURL)
	if err := os.WriteFile(filepath.Join(e.dataDir, file), []byte(content), 0o600); err != nil {
		t.Fatalf("写入数据集失败: %v", err)
	}
}

func (e *testEnv) get(t *testing.T, target string) *http.Response {
	t.Helper()

	resp, err := e.app.Test(httptest.NewRequest("GET", target, nil))
	if err != nil {
		t.Fatalf("app.Test 失败: %v", err)
	}
	return resp
}

// diskEntryPaths 返回某 URL 对应磁盘条目的正文与摘要路径。
func (e *testEnv) diskEntryPaths(rawURL string) (string, string) {
	key := imagecache.CacheKey(rawURL)
	return filepath.Join(e.cacheDir, key+".jpg"), filepath.Join(e.cacheDir, key+".sha256")
}
