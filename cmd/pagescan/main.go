package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	cfgpkg "pagescan/internal/config"
	"pagescan/internal/diag"
	"pagescan/internal/ledger"
	"pagescan/internal/pipeline"
	"pagescan/pkg/contract"
)

// 退出码
const (
	exitOK          = 0
	exitRuntime     = 1
	exitManifest    = 2
	exitConfig      = 3
	exitRecordFails = 4
)

var pipelineRun = pipeline.Run

// 诊断输出（stdout）与终端提示（stderr）；测试可替换。
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// 简化的 CLI：默认行为为一次扫描运行。
// 位置参数（可选）为清单路径，等价于 --manifest。
// 全局旗标：--config, --manifest, --root, --max-records, --ledger, --history, --init-config, --status
func main() {
	os.Exit(run())
}

func run() int {
	start := time.Now()
	corrID := uuid.NewString()
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")
	// 先占位默认，稍后在解析/合并配置后重建 logger 以使用最终 level/dir
	logger := diag.NewLogger(corrID, "info", "")
	defer func() { _ = logger.Close() }()

	var (
		flagConfig     string
		flagManifest   string
		flagRoot       string
		flagMaxRecords int
		flagLedger     string
		flagHistory    int
		flagInitDir    string
		flagStatus     bool
	)
	flag.StringVar(&flagConfig, "config", "", "配置文件路径（JSON 或 YAML）；缺省读取 ./pagescan.json 或 ./pagescan.yaml（若存在）")
	flag.StringVar(&flagManifest, "manifest", "", "清单路径（覆盖配置；默认 ./trace_map.csv）")
	flag.StringVar(&flagRoot, "root", "", "页文件根目录（覆盖配置；默认当前目录）")
	// max-records 允许显式设置为 0（不限）；默认 -1 表示“未覆盖”。
	flag.IntVar(&flagMaxRecords, "max-records", -1, "最多读取的记录数（覆盖配置；0 表示不限）")
	flag.StringVar(&flagLedger, "ledger", "", "SQLite 运行历史路径（覆盖配置）")
	flag.IntVar(&flagHistory, "history", 0, "打印最近 N 次运行历史后退出（需配置 ledger）")
	flag.StringVar(&flagInitDir, "init-config", "", "在指定目录生成默认配置 pagescan.json 和 .env 模板（若已存在则跳过，不覆盖）；不带值时默认当前目录")
	flag.BoolVar(&flagStatus, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")
	normalizeInitArg()
	flag.Parse()

	args := flag.Args()
	if len(args) > 1 {
		fprintf(stderr, "至多一个位置参数（清单路径），实得 %d 个\n", len(args))
		return exitConfig
	}

	// --init-config: 生成模板并退出
	if initDir := strings.TrimSpace(flagInitDir); initDir != "" {
		if err := os.MkdirAll(initDir, 0o755); err != nil {
			fprintf(stderr, "生成默认配置失败: %v\n", err)
			logger.Error("config", string(diag.Classify(err)), "first error", &start)
			return exitConfig
		}
		cfg := cfgpkg.DefaultTemplateConfig()
		if err := writeConfig(filepath.Join(initDir, "pagescan.json"), cfg); err != nil {
			fprintf(stderr, "生成默认配置失败: %v\n", err)
			logger.Error("config", string(diag.Classify(err)), "first error", &start)
			return exitConfig
		}
		if err := writeDotEnv(filepath.Join(initDir, ".env")); err != nil {
			fprintf(stderr, "提示：.env 生成失败（已跳过）：%v\n", err)
		}
		return exitOK
	}

	cfg, err := loadConfig(flagConfig)
	if err != nil {
		fprintf(stderr, "配置解析失败: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		return exitConfig
	}

	// CLI 覆盖
	overCLI := cfgpkg.Config{MaxRecords: flagMaxRecords}
	overCLI.Manifest = flagManifest
	if len(args) == 1 {
		overCLI.Manifest = args[0]
	}
	overCLI.RootDir = flagRoot
	overCLI.Ledger = flagLedger
	cfg = cfgpkg.Merge(cfg, overCLI)

	if err := cfgpkg.Validate(cfg); err != nil {
		fprintf(stderr, "配置校验失败: %v\n", err)
		// 提示打印有效配置，便于诊断
		_ = dumpConfig(cfg)
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		return exitConfig
	}

	// 使用最终配置中的日志级别与目录重建 logger
	_ = logger.Close()
	logger = diag.NewLogger(corrID, cfg.Logging.Level, cfg.Logging.Dir)

	if flagHistory > 0 {
		return printHistory(cfg.Ledger, flagHistory)
	}

	comp, set, closer, err := cfgpkg.Assemble(cfg, stdout)
	if err != nil {
		fprintf(stderr, "装配失败: %v\n", err)
		logger.Error("config", string(diag.Classify(err)), "first error", &start)
		return exitConfig
	}
	defer func() {
		if cerr := closer.Close(); cerr != nil {
			logger.Error("ledger", string(diag.Classify(cerr)), cerr.Error(), nil)
		}
	}()
	set.RunID = corrID

	// 终端信息提示（非日志）：按 CLI 启用，默认开启
	term := diag.NewTerminal(stderr, flagStatus)
	diag.SetTerminal(term)
	defer diag.SetTerminal(nil)

	logger.Debug("config", "effective", map[string]string{
		"manifest":    cfg.Manifest,
		"root_dir":    cfg.RootDir,
		"max_records": fmt.Sprintf("%d", cfg.MaxRecords),
		"ledger":      cfg.Ledger,
		"scanner":     effName(cfg.Components.Scanner, "sequential"),
		"observer":    effName(cfg.Components.Observer, "console"),
		"writer":      cfg.Components.Writer,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	t := logger.Start("pipeline", "run")
	sum, err := pipelineRun(ctx, comp, set, logger)
	code := exitCode(sum, err)
	if err != nil {
		ec := string(diag.Classify(err))
		logger.Error("pipeline", ec, "first error", &start)
		diag.IncOp("pipeline", "error", "error")
		if ec != "" && ec != string(diag.CodeUnknown) {
			diag.IncError("pipeline", ec)
		}
		if !errors.Is(err, context.Canceled) {
			fprintf(stderr, "运行失败: %v\n", err)
		}
		return code
	}
	t.Finish("run", int64(len(sum.Records)))
	diag.IncOp("pipeline", "finish", "success")
	diag.ObserveDuration("pipeline", "finish", time.Since(start).Milliseconds())
	return code
}

// exitCode 将运行结果映射为退出码。
// 清单不可用优先；仅含记录级错误（且未中止）为 4；其余失败为 1。
func exitCode(sum pipeline.Summary, err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, contract.ErrManifestUnavailable):
		return exitManifest
	case sum.Fatal == "" && contract.IsRecordError(err):
		return exitRecordFails
	default:
		return exitRuntime
	}
}

// loadConfig 按 defaults < 配置文件/JSON < ENV 的顺序合并。
func loadConfig(path string) (cfgpkg.Config, error) {
	cfg := cfgpkg.Defaults()
	if path == "" {
		path = os.Getenv("PAGESCAN_CONFIG_FILE")
	}
	// 默认读取工作目录下 pagescan.json / pagescan.yaml（若存在）
	if path == "" {
		for _, name := range []string{"pagescan.json", "pagescan.yaml", "pagescan.yml"} {
			if st, err := os.Stat(name); err == nil && !st.IsDir() {
				path = name
				break
			}
		}
	}
	if path != "" {
		base, err := cfgpkg.LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = cfgpkg.Merge(cfg, base)
	}
	// 内联 JSON 位于文件之上
	if s := os.Getenv("PAGESCAN_CONFIG_JSON"); s != "" {
		inline, err := cfgpkg.LoadJSON("", []byte(s))
		if err != nil {
			return cfg, fmt.Errorf("PAGESCAN_CONFIG_JSON: %w", err)
		}
		cfg = cfgpkg.Merge(cfg, inline)
	}
	overEnv, err := cfgpkg.EnvOverlay(os.Environ())
	if err != nil {
		return cfg, err
	}
	return cfgpkg.Merge(cfg, overEnv), nil
}

// printHistory 打印最近 n 次运行（新到旧）。
func printHistory(path string, n int) int {
	if strings.TrimSpace(path) == "" {
		fprintf(stderr, "未配置 ledger（--ledger / PAGESCAN_LEDGER），无历史可查\n")
		return exitConfig
	}
	st, err := ledger.Open(path)
	if err != nil {
		fprintf(stderr, "打开历史失败: %v\n", err)
		return exitRuntime
	}
	defer st.Close()
	runs, err := st.Runs(context.Background(), n)
	if err != nil {
		fprintf(stderr, "读取历史失败: %v\n", err)
		return exitRuntime
	}
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tMANIFEST\tRECORDS\tFAILED\tPAGES\tBYTES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.RunID, r.StartedAt.Format(time.RFC3339), r.Manifest, r.Records, r.Failed, r.Totals.Pages, r.Totals.Bytes)
	}
	if err := tw.Flush(); err != nil {
		return exitRuntime
	}
	return exitOK
}

func fprintf(w io.Writer, format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}

func dumpConfig(c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, _ = stderr.Write(append([]byte("有效配置:\n"), b...))
	_, _ = stderr.Write([]byte("\n"))
	return nil
}

func writeConfig(path string, c cfgpkg.Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if path == "-" {
		_, err = stdout.Write(append(b, '\n'))
		return err
	}
	// 不覆盖已存在文件
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	_, _ = f.Write([]byte("\n"))
	return nil
}

// loadDotEnv 读取简单的 .env 文件格式并注入进程环境。
// 规则：
// - 忽略不存在的文件；无法读取时返回错误（但调用处可忽略）。
// - 跳过空行与以 # 开头的行；支持可选的前缀 "export ".
// - 仅按首个 '=' 分割；key 与 value 去首尾空白；成对引号去除。
// - 不覆盖已存在的环境变量（保持系统/调用者优先）。
func loadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		eq := strings.IndexByte(line, '=')
		if eq <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		if len(val) >= 2 {
			if (val[0] == '\'' && val[len(val)-1] == '\'') || (val[0] == '"' && val[len(val)-1] == '"') {
				val = val[1 : len(val)-1]
			}
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, val)
	}
	return s.Err()
}

// normalizeInitArg: 允许 --init-config 在未提供路径值时采用默认值当前目录 "."。
//
//	--init-config                => 等价于 --init-config .
//	--init-config=out
//	--init-config out
func normalizeInitArg() {
	args := os.Args
	if len(args) <= 1 {
		return
	}
	out := make([]string, 0, len(args)+1)
	out = append(out, args[0])
	for i := 1; i < len(args); i++ {
		a := args[i]
		out = append(out, a)
		if a == "--init-config" || a == "-init-config" {
			if i == len(args)-1 || strings.HasPrefix(args[i+1], "-") {
				out = append(out, ".")
			}
		}
	}
	os.Args = out
}

// writeDotEnv 生成 .env 模板（若文件已存在则跳过）。
func writeDotEnv(path string) error {
	var b strings.Builder
	b.WriteString("# pagescan .env 模板（由 --init-config 生成）\n")
	b.WriteString("# 优先级：CLI > ENV(.env) > 配置文件\n")
	b.WriteString("# 空值表示未设置。\n\n")

	b.WriteString("# 配置来源（可二选一）\n")
	b.WriteString("PAGESCAN_CONFIG_FILE=\n")
	b.WriteString("PAGESCAN_CONFIG_JSON=\n\n")

	b.WriteString("# 运行参数覆盖\n")
	b.WriteString("PAGESCAN_MANIFEST=\n")
	b.WriteString("PAGESCAN_ROOT_DIR=\n")
	b.WriteString("PAGESCAN_MAX_RECORDS=\n")
	b.WriteString("PAGESCAN_LEDGER=\n")
	b.WriteString("PAGESCAN_LOG_LEVEL=\n")
	b.WriteString("PAGESCAN_LOG_DIR=\n\n")

	b.WriteString("# 组件选择\n")
	b.WriteString("PAGESCAN_COMPONENTS_MANIFEST=\n")
	b.WriteString("PAGESCAN_COMPONENTS_SCANNER=\n")
	b.WriteString("PAGESCAN_COMPONENTS_OBSERVER=\n")
	b.WriteString("PAGESCAN_COMPONENTS_WRITER=\n\n")

	b.WriteString("# 组件选项（原样 JSON）\n")
	b.WriteString("PAGESCAN_OPTIONS_MANIFEST_JSON=\n")
	b.WriteString("PAGESCAN_OPTIONS_SCANNER_JSON=\n")
	b.WriteString("PAGESCAN_OPTIONS_OBSERVER_JSON=\n")
	b.WriteString("PAGESCAN_OPTIONS_WRITER_JSON=\n")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(b.String())
	return err
}
