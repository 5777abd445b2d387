package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/asset-hub/internal/asset"
	"github.com/any-hub/asset-hub/internal/cache"
	"github.com/any-hub/asset-hub/internal/config"
	"github.com/any-hub/asset-hub/internal/fetch"
	"github.com/any-hub/asset-hub/internal/logging"
	"github.com/any-hub/asset-hub/internal/server"
	"github.com/any-hub/asset-hub/internal/server/routes"
	"github.com/any-hub/asset-hub/internal/version"
)

// provisionTimeout 限制启动时配额申请的等待时间，超时视为申请失败。
const provisionTimeout = 10 * time.Second

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	refreshOnly bool
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

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["storage_path"] = cfg.Global.StoragePath
		fields["bundle_path"] = cfg.Assets.BundlePath
		fields["remote_root"] = cfg.Assets.RemoteRoot
		fields["refresh"] = cfg.Assets.RefreshSummary()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	// 启动顺序为“配置 → 缓存层配额 → Fetcher → Resolver → Fiber server”，
	// 配额申请在接收请求前完成，失败时整个进程降级为只读内置资源。
	tier, err := cache.NewTier(cfg.Global.StoragePath, cfg.Global.StorageQuota)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存层失败: %v\n", err)
		return 1
	}
	provisionTier(tier, logger)

	fetcher := fetch.New(fetch.Options{
		Client:     server.NewUpstreamClient(cfg),
		RemoteRoot: cfg.Assets.RemoteRoot,
		Bundle:     os.DirFS(cfg.Assets.BundlePath),
		Timeout:    cfg.Assets.FetchTimeout.DurationValue(),
	})
	resolver, err := asset.NewResolver(tier, fetcher, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "构建 Resolver 失败: %v\n", err)
		return 1
	}

	if opts.refreshOnly {
		if failed := refreshAssets(resolver, cfg, logger); failed > 0 {
			return 1
		}
		return 0
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["cache_state"] = tier.State().String()
	fields["bundle_path"] = cfg.Assets.BundlePath
	fields["remote_root"] = cfg.Assets.RemoteRoot
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if cfg.Assets.RefreshOnStart {
		go refreshAssets(resolver, cfg, logger)
	}

	dispatcher := asset.NewDispatcher(resolver, asset.LogNotifier(logger))
	if err := startHTTPServer(cfg, dispatcher, tier, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// provisionTier 申请缓存配额；失败只记录日志，后续请求全部走内置资源。
func provisionTier(tier *cache.Tier, logger *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), provisionTimeout)
	defer cancel()

	_, quota := tier.Usage()
	fields := logrus.Fields{
		"action":       "provision",
		"storage_path": tier.BasePath(),
		"quota_bytes":  quota,
	}
	if err := tier.Provision(ctx); err != nil {
		logger.WithFields(fields).WithError(err).Warn("缓存层不可用，降级为内置资源")
		return
	}
	used, _ := tier.Usage()
	fields["used_bytes"] = used
	logger.WithFields(fields).Info("缓存层就绪")
}

// refreshAssets 按配置并发刷新 Refresh 列表，返回失败数量。
func refreshAssets(resolver *asset.Resolver, cfg *config.Config, logger *logrus.Logger) int {
	started := time.Now()
	results := resolver.UpdateMany(context.Background(), cfg.Assets.Refresh, cfg.Assets.RefreshConcurrency)

	failed := 0
	for _, res := range results {
		if !res.OK() {
			failed++
		}
	}
	logger.WithFields(logrus.Fields{
		"action":     "refresh",
		"requested":  len(cfg.Assets.Refresh),
		"reported":   len(results),
		"failed":     failed,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("资源刷新完成")
	return failed
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("asset-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		refresh    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 ASSET_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.BoolVar(&refresh, "refresh", false, "刷新 Assets.Refresh 中的全部资源后退出")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("ASSET_HUB_CONFIG")
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
		refreshOnly: refresh,
	}, nil
}

// startHTTPServer 启动 Fiber 服务；收到 SIGINT/SIGTERM 时停止接收请求，
// 并等待已发起的操作把终态消息交付给 notifier 后返回。
func startHTTPServer(cfg *config.Config, dispatcher *asset.Dispatcher, tier *cache.Tier, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Dispatcher: dispatcher,
		ListenPort: port,
	})
	if err != nil {
		return err
	}
	routes.RegisterStatusRoutes(app, tier, cfg.Assets.RemoteRoot)

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", port))
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-sigChan:
		logger.WithFields(logrus.Fields{
			"action": "shutdown",
			"signal": sig.String(),
		}).Info("收到退出信号，等待进行中的操作完成")
	}

	if err := app.Shutdown(); err != nil {
		logger.WithError(err).Warn("Fiber 服务关闭失败")
	}
	dispatcher.Wait()
	return nil
}
