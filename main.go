package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/charatag/charatag/internal/config"
	"github.com/charatag/charatag/internal/dataset"
	"github.com/charatag/charatag/internal/imagecache"
	"github.com/charatag/charatag/internal/logging"
	"github.com/charatag/charatag/internal/metrics"
	"github.com/charatag/charatag/internal/server"
	"github.com/charatag/charatag/internal/server/routes"
	"github.com/charatag/charatag/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	// 指标为可选能力：未配置监听地址时保持 nil，所有埋点自动退化为空操作。
	var instruments *metrics.Metrics
	if cfg.Global.MetricsEnabled() {
		instruments = metrics.NewMetrics("charatag")
	}

	library, err := dataset.NewLibrary(cfg.Global.DataDir, logger, instruments)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化数据集目录失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["listen_port"] = cfg.Global.ListenPort
		fields["data_dir"] = cfg.Global.DataDir
		fields["datasets"] = len(library.Files())
		fields["cache_dir"] = cfg.Global.CacheDir
		fields["max_download_bytes"] = cfg.Global.MaxDownloadBytes
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序：配置 → 日志 → 数据集 → 预览缓存 → 指标 → Fiber server，
	// 保证所有请求共享同一份缓存与锁表实例。
	previews, err := imagecache.New(imagecache.Options{
		CacheDir:         cfg.Global.CacheDir,
		Logger:           logger,
		Metrics:          instruments,
		MemoryMaxItems:   cfg.Global.MemoryCacheMaxItems,
		MemoryMaxBytes:   cfg.Global.MemoryCacheMaxBytes,
		MaxDownloadBytes: cfg.Global.MaxDownloadBytes,
		ConnectTimeout:   cfg.Global.ConnectTimeout.DurationValue(),
		ReadTimeout:      cfg.Global.ReadTimeout.DurationValue(),
		StoredMaxEdge:    cfg.Global.StoredMaxEdge,
		PreviewMaxEdge:   cfg.Global.PreviewMaxEdge,
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化预览缓存失败: %v\n", err)
		return 1
	}

	if instruments != nil {
		metricsServer := metrics.NewMetricsServer(cfg.Global.MetricsAddr)
		metricsServer.StartAsync()
		logger.WithFields(logrus.Fields{
			"action": "metrics_listen",
			"addr":   cfg.Global.MetricsAddr,
		}).Info("指标服务启动")
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["datasets"] = len(library.Files())
	fields["cache_dir"] = cfg.Global.CacheDir
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, library, previews, instruments, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("charatag", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 CHARATAG_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("CHARATAG_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(cfg *config.Config, library *dataset.Library, previews *imagecache.Cache, instruments *metrics.Metrics, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Library:    library,
		Previews:   previews,
		Metrics:    instruments,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterDiagnosticRoutes(app, library)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}
