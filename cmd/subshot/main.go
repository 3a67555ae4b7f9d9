package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/John-Robertt/SubShot/internal/app/run"
	"github.com/John-Robertt/SubShot/internal/config"
	"github.com/John-Robertt/SubShot/internal/domain"
	"github.com/John-Robertt/SubShot/internal/extract"
	"github.com/John-Robertt/SubShot/internal/infra/ffmpeg"
	"github.com/John-Robertt/SubShot/internal/infra/fsx"
	"github.com/John-Robertt/SubShot/internal/infra/logx"
	"github.com/John-Robertt/SubShot/internal/infra/metrics"
)

// newOpener 构造解码器入口；测试替换为不依赖 ffmpeg 的实现。
var newOpener = func(eff config.EffectiveConfig, log *zap.Logger) extract.Opener {
	tool := ffmpeg.New(eff.FFmpeg, eff.FFprobe, log)
	return extract.OpenerFunc(func(ctx context.Context, path string) (extract.Decoder, error) {
		v, err := tool.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return v, nil
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// runMain 返回进程退出码：0 全部成功；1 有视频失败或产物写入失败；2 用法/配置错误。
func runMain(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	code := 0
	root := newRootCmd(ctx, stdin, stdout, stderr, &code)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
		fmt.Fprint(stderr, root.UsageString())
		return 2
	}
	return code
}

type cliFlags struct {
	config      string
	startMode   string
	startValue  float64
	endMode     string
	endValue    float64
	videoExt    string
	rangePolicy string
	concurrency int
	quality     int
	labelScale  int
	gallery     bool
	report      string
	metricsFile string
	logLevel    string
	pause       bool
}

func newRootCmd(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, code *int) *cobra.Command {
	var f cliFlags
	cmd := &cobra.Command{
		Use:   "subshot [flags] <timeline|dir>...",
		Short: "按时间轴为伴随视频截取前后两组带时间标注的截图",
		Long: `subshot 读取两行一组的时间轴文件（标签行 + "HH:MM:SS,mmm --> HH:MM:SS,mmm"），
在同名 .mp4 视频中截取每条的起点（Aqian）与终点（Bhou）画面，
分别写入 <名称>_Aqian 与 <名称>_Bhou 两个目录。

参数可以是时间轴文件或目录（递归查找 .srt/.txt）。
配置优先级：命令行 > SUBSHOT_* 环境变量 > subshot.json > 默认值。`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			*code = runCmd(ctx, cmd, f, args, stdin, stdout, stderr)
			return nil
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	fl := cmd.Flags()
	fl.StringVar(&f.config, "config", "", "配置文件路径（默认读取当前目录下的 subshot.json，可选）")
	fl.StringVar(&f.startMode, "start-mode", "", "前轴调整方式：advance_seconds|delay_seconds|advance_frames|delay_frames（默认 advance_seconds）")
	fl.Float64Var(&f.startValue, "start-value", 0, "前轴调整幅度（秒或帧，默认 1）")
	fl.StringVar(&f.endMode, "end-mode", "", "后轴调整方式（默认 advance_frames）")
	fl.Float64Var(&f.endValue, "end-value", 0, "后轴调整幅度（秒或帧，默认 10）")
	fl.StringVar(&f.videoExt, "video-ext", "", "伴随视频扩展名（默认 .mp4）")
	fl.StringVar(&f.rangePolicy, "range", "", "越界处理：skip|clamp|pass（默认 skip）")
	fl.IntVar(&f.concurrency, "concurrency", 0, "同时处理的视频数 [1,32]（默认 1）")
	fl.IntVar(&f.quality, "quality", 0, "JPEG 质量 [1,100]（默认 95）")
	fl.IntVar(&f.labelScale, "label-scale", 0, "标注文字放大倍数 [1,8]（默认 1）")
	fl.BoolVar(&f.gallery, "gallery", false, "为每个视频生成 <名称>_gallery.html 核对页")
	fl.StringVar(&f.report, "report", "", "写出 JSON 运行报告；\"-\" 表示写到 stdout")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "写出 Prometheus textfile 指标")
	fl.StringVar(&f.logLevel, "log-level", "", "日志级别：debug|info|warn|error（默认 warn）")
	fl.BoolVar(&f.pause, "pause", false, "结束后等待回车再退出（拖放运行时保留窗口）")
	return cmd
}

func runCmd(ctx context.Context, cmd *cobra.Command, f cliFlags, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	defer func() {
		if f.pause {
			waitEnter(stdin, stderr)
		}
	}()

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return 1
	}

	eff, err := config.LoadEffective(cwd, cliArgs(cmd, f, args), os.Environ())
	if err != nil {
		fmt.Fprintf(stderr, "配置错误：%v\n", err)
		return 2
	}

	log, err := logx.New(eff.LogLevel)
	if err != nil {
		fmt.Fprintf(stderr, "初始化日志失败：%v\n", err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	summaryW := stdout
	if eff.ReportPath == config.ReportStdout {
		summaryW = stderr
	}

	// 注意：不能把 nil 指针直接放进接口切片。
	observers := make([]run.Observer, 0, 2)
	if w, interactive := pickProgressWriter(stdout, stderr, eff.ReportPath == config.ReportStdout); interactive {
		observers = append(observers, newProgressUI(w))
	} else {
		observers = append(observers, newPlainProgress(w))
	}
	var rec *metrics.Recorder
	if eff.MetricsFile != "" {
		rec = metrics.New()
		observers = append(observers, rec)
	}
	obs := run.Observers(observers...)

	rr := run.ExecuteWithObserver(ctx, eff, newOpener(eff, log), log, obs)

	exit := 0
	if rr.Summary.Failed > 0 {
		exit = 1
	}

	if eff.ReportPath != "" {
		if err := emitReport(stdout, eff.ReportPath, rr); err != nil {
			fmt.Fprintf(stderr, "写入运行报告失败：%v\n", err)
			exit = 1
		}
	}
	if rec != nil {
		if err := rec.WriteTextfile(eff.MetricsFile); err != nil {
			fmt.Fprintf(stderr, "写入指标文件失败：%v\n", err)
			exit = 1
		}
	}

	printSummary(summaryW, rr)
	if eff.ReportPath != "" && eff.ReportPath != config.ReportStdout {
		fmt.Fprintf(summaryW, "report: %s\n", eff.ReportPath)
	}
	return exit
}

// cliArgs 只把显式指定的参数交给配置合并，保证 --gallery=false 之类能覆盖配置文件。
func cliArgs(cmd *cobra.Command, f cliFlags, args []string) config.CLIArgs {
	fl := cmd.Flags()
	ca := config.CLIArgs{
		Inputs:     args,
		ConfigPath: f.config,
		Pause:      f.pause,
	}
	if fl.Changed("start-mode") {
		ca.StartMode = &f.startMode
	}
	if fl.Changed("start-value") {
		ca.StartValue = &f.startValue
	}
	if fl.Changed("end-mode") {
		ca.EndMode = &f.endMode
	}
	if fl.Changed("end-value") {
		ca.EndValue = &f.endValue
	}
	if fl.Changed("video-ext") {
		ca.VideoExt = &f.videoExt
	}
	if fl.Changed("range") {
		ca.Range = &f.rangePolicy
	}
	if fl.Changed("concurrency") {
		ca.Concurrency = &f.concurrency
	}
	if fl.Changed("quality") {
		ca.Quality = &f.quality
	}
	if fl.Changed("label-scale") {
		ca.LabelScale = &f.labelScale
	}
	if fl.Changed("gallery") {
		ca.Gallery = &f.gallery
	}
	if fl.Changed("report") {
		ca.Report = &f.report
	}
	if fl.Changed("metrics-file") {
		ca.MetricsFile = &f.metricsFile
	}
	if fl.Changed("log-level") {
		ca.LogLevel = &f.logLevel
	}
	return ca
}

func emitReport(stdout io.Writer, path string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if path == config.ReportStdout {
		_, err := stdout.Write(b)
		return err
	}
	return fsx.WriteFileAtomic(filepath.Dir(path), filepath.Base(path), b)
}

// printSummary 先按输入顺序逐个视频列出，再给出总计。
func printSummary(w io.Writer, rr domain.RunReport) {
	fmt.Fprintln(w, "汇总：")
	for _, v := range rr.Videos {
		name := v.Base
		if name == "" {
			name = "<输入>"
		}
		switch v.Status {
		case domain.StatusProcessed:
			fmt.Fprintf(w, "  [%d] %s：Aqian %d 张，Bhou %d 张（共 %d 条", v.Seq, name, v.Aqian, v.Bhou, v.Total)
			if n := countEntries(v, domain.EntryDecodeFailed, domain.EntryWriteFailed); n > 0 {
				fmt.Fprintf(w, "，失败 %d", n)
			}
			if n := countEntries(v, domain.EntryOutOfRange); n > 0 {
				fmt.Fprintf(w, "，越界 %d", n)
			}
			fmt.Fprintln(w, "）")
		case domain.StatusSkipped:
			fmt.Fprintf(w, "  [%d] %s：跳过 %s：%s\n", v.Seq, name, v.ErrorCode, v.ErrorMsg)
		default:
			fmt.Fprintf(w, "  [%d] %s：失败 %s：%s（已写出 %d 张）\n", v.Seq, name, v.ErrorCode, truncate(v.ErrorMsg, 160), v.Images())
		}
	}
	s := rr.Summary
	fmt.Fprintf(w, "总计：视频 %d 个（成功 %d / 跳过 %d / 失败 %d），图片 %d 张（Aqian %d / Bhou %d）\n",
		s.Videos, s.Processed, s.Skipped, s.Failed, s.Images, s.Aqian, s.Bhou,
	)
}

func countEntries(v domain.VideoResult, statuses ...string) int {
	n := 0
	for _, e := range v.Entries {
		for _, st := range statuses {
			if e.Status == st {
				n++
				break
			}
		}
	}
	return n
}

func waitEnter(stdin io.Reader, w io.Writer) {
	fmt.Fprint(w, "按回车键退出...")
	_, _ = bufio.NewReader(stdin).ReadString('\n')
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter(stdout, stderr io.Writer, stdoutReserved bool) (io.Writer, bool) {
	// 交互终端优先；默认走 stderr（stdout 留给摘要或 JSON 报告）。
	if isTTY(stderr) {
		return stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if !stdoutReserved && isTTY(stdout) {
		return stdout, true
	}
	// 都不是终端（管道/日志文件）：仍在 stderr 逐行输出，只是不带横幅与 keepalive。
	return stderr, false
}
