package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/John-Robertt/SubShot/internal/adjust"
	"github.com/John-Robertt/SubShot/internal/domain"
	"github.com/John-Robertt/SubShot/internal/extract"
	"github.com/John-Robertt/SubShot/internal/infra/imgx"
	"github.com/John-Robertt/SubShot/internal/infra/logx"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件/环境变量/参数无法解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
)

const (
	// FileName 是 cwd 下自动发现的配置文件名（可选）。
	FileName = "subshot.json"
	// EnvPrefix 是环境变量覆盖项的前缀。
	EnvPrefix = "SUBSHOT_"

	DefaultConcurrency = 1
	MaxConcurrency     = 32
	DefaultLabelScale  = 1
	MaxLabelScale      = 8

	// ReportStdout 作为 report 的值表示把 JSON 报告写到 stdout。
	ReportStdout = "-"
)

// DefaultTimelineExts 是目录参数展开时识别的时间轴文件扩展名。
var DefaultTimelineExts = []string{".srt", ".txt"}

// CLIArgs 是命令行入口；指针字段为 nil 表示“未显式指定”。
// 这能保证覆盖优先级可实现：例如 --gallery=false 必须能覆盖 config.gallery=true。
type CLIArgs struct {
	Inputs     []string
	ConfigPath string

	StartMode   *string
	StartValue  *float64
	EndMode     *string
	EndValue    *float64
	VideoExt    *string
	Range       *string
	Concurrency *int
	Quality     *int
	LabelScale  *int
	Gallery     *bool
	Report      *string
	MetricsFile *string
	LogLevel    *string

	Pause bool
}

// EdgeConfig 是配置文件里单端的调整项。
type EdgeConfig struct {
	Mode  string   `json:"mode"`
	Value *float64 `json:"value"`
}

// FileConfig 对应 subshot.json 的解析结构。
type FileConfig struct {
	Start        *EdgeConfig `json:"start"`
	End          *EdgeConfig `json:"end"`
	VideoExt     string      `json:"video_ext"`
	TimelineExts []string    `json:"timeline_exts"`
	ExcludeDirs  []string    `json:"exclude_dirs"`
	Range        string      `json:"range"`
	Concurrency  int         `json:"concurrency"`
	Quality      int         `json:"quality"`
	LabelScale   int         `json:"label_scale"`
	Gallery      *bool       `json:"gallery"`
	Report       string      `json:"report"`
	MetricsFile  string      `json:"metrics_file"`
	LogLevel     string      `json:"log_level"`
	FFmpeg       string      `json:"ffmpeg"`
	FFprobe      string      `json:"ffprobe"`
}

// EnvConfig 是 SUBSHOT_* 环境变量覆盖项；未设置的保持 nil。
type EnvConfig struct {
	StartMode   *string  `env:"START_MODE"`
	StartValue  *float64 `env:"START_VALUE"`
	EndMode     *string  `env:"END_MODE"`
	EndValue    *float64 `env:"END_VALUE"`
	VideoExt    *string  `env:"VIDEO_EXT"`
	Range       *string  `env:"RANGE"`
	Concurrency *int     `env:"CONCURRENCY"`
	Quality     *int     `env:"QUALITY"`
	LabelScale  *int     `env:"LABEL_SCALE"`
	Gallery     *bool    `env:"GALLERY"`
	Report      *string  `env:"REPORT"`
	MetricsFile *string  `env:"METRICS_FILE"`
	LogLevel    *string  `env:"LOG_LEVEL"`
	FFmpeg      *string  `env:"FFMPEG"`
	FFprobe     *string  `env:"FFPROBE"`
}

// EffectiveConfig 是合并并规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// Inputs 是绝对路径形式的时间轴文件/目录参数，保持命令行顺序。
	Inputs []string
	// ConfigPath 是实际读取到的配置文件；没有则为空。
	ConfigPath string

	Policy       adjust.Policy
	VideoExt     string
	TimelineExts []string
	ExcludeDirs  []string
	Range        extract.RangePolicy
	Concurrency  int
	Quality      int
	LabelScale   int

	Gallery     bool
	ReportPath  string
	MetricsFile string
	LogLevel    string

	FFmpeg  string
	FFprobe string

	Pause bool
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：%s 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：%s 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，与环境变量、CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在
// 2) 否则尝试 <cwd>/subshot.json（可选）
//
// 覆盖优先级（固定）：CLI > SUBSHOT_* 环境变量 > 配置文件 > 内置默认。
// environ 采用 os.Environ() 的 KEY=VALUE 形式，便于测试注入。
func LoadEffective(cwd string, cli CLIArgs, environ []string) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
		exists  bool
	)
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		cfgPath = filepath.Join(cwdAbs, FileName)
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			cfgPath = ""
		}
	}

	ec, err := readEnvConfig(environ)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: "环境变量 " + EnvPrefix + "*", Err: err}
	}

	eff, err := merge(cli, ec, fc)
	if err != nil {
		where := cfgPath
		if where == "" {
			where = "参数"
		}
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: where, Err: err}
	}

	eff.ConfigPath = cfgPath
	eff.Inputs = make([]string, 0, len(cli.Inputs))
	for _, in := range cli.Inputs {
		if p := absCleanFrom(cwdAbs, in); p != "" {
			eff.Inputs = append(eff.Inputs, p)
		}
	}
	if eff.ReportPath != "" && eff.ReportPath != ReportStdout {
		eff.ReportPath = absCleanFrom(cwdAbs, eff.ReportPath)
	}
	if eff.MetricsFile != "" {
		eff.MetricsFile = absCleanFrom(cwdAbs, eff.MetricsFile)
	}
	eff.Pause = cli.Pause
	return eff, nil
}

func merge(cli CLIArgs, ec EnvConfig, fc FileConfig) (EffectiveConfig, error) {
	policy := adjust.DefaultPolicy()
	if err := mergeEdge(&policy.Start, fc.Start, ec.StartMode, ec.StartValue, cli.StartMode, cli.StartValue); err != nil {
		return EffectiveConfig{}, fmt.Errorf("start：%w", err)
	}
	if err := mergeEdge(&policy.End, fc.End, ec.EndMode, ec.EndValue, cli.EndMode, cli.EndValue); err != nil {
		return EffectiveConfig{}, fmt.Errorf("end：%w", err)
	}
	if err := policy.Validate(); err != nil {
		return EffectiveConfig{}, err
	}

	videoExt := normalizeExt(pick(domain.DefaultVideoExt, fc.VideoExt, ec.VideoExt, cli.VideoExt))
	if videoExt == "" || videoExt == "." {
		return EffectiveConfig{}, fmt.Errorf("video_ext 不能为空")
	}

	timelineExts := DefaultTimelineExts
	if len(fc.TimelineExts) > 0 {
		timelineExts = fc.TimelineExts
	}
	exts := make([]string, 0, len(timelineExts))
	for _, x := range timelineExts {
		if x = normalizeExt(x); x != "" && x != "." {
			exts = append(exts, strings.ToLower(x))
		}
	}

	rng, err := extract.ParseRange(pick(string(extract.RangeSkip), fc.Range, ec.Range, cli.Range))
	if err != nil {
		return EffectiveConfig{}, err
	}

	concurrency := pickInt(DefaultConcurrency, fc.Concurrency, ec.Concurrency, cli.Concurrency)
	// 超出 [1, 32] 截断。
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}

	quality := pickInt(imgx.DefaultQuality, fc.Quality, ec.Quality, cli.Quality)
	if quality < 1 || quality > 100 {
		return EffectiveConfig{}, fmt.Errorf("quality 必须在 [1, 100]，实际 %d", quality)
	}

	labelScale := pickInt(DefaultLabelScale, fc.LabelScale, ec.LabelScale, cli.LabelScale)
	if labelScale < 1 || labelScale > MaxLabelScale {
		return EffectiveConfig{}, fmt.Errorf("label_scale 必须在 [1, %d]，实际 %d", MaxLabelScale, labelScale)
	}

	gallery := false
	for _, b := range []*bool{fc.Gallery, ec.Gallery, cli.Gallery} {
		if b != nil {
			gallery = *b
		}
	}

	logLevel := pick(logx.DefaultLevel, fc.LogLevel, ec.LogLevel, cli.LogLevel)
	if _, err := logx.ParseLevel(logLevel); err != nil {
		return EffectiveConfig{}, err
	}

	return EffectiveConfig{
		Policy:       policy,
		VideoExt:     videoExt,
		TimelineExts: exts,
		ExcludeDirs:  append([]string(nil), fc.ExcludeDirs...),
		Range:        rng,
		Concurrency:  concurrency,
		Quality:      quality,
		LabelScale:   labelScale,
		Gallery:      gallery,
		ReportPath:   pick("", fc.Report, ec.Report, cli.Report),
		MetricsFile:  pick("", fc.MetricsFile, ec.MetricsFile, cli.MetricsFile),
		LogLevel:     strings.ToLower(logLevel),
		FFmpeg:       pick("ffmpeg", fc.FFmpeg, ec.FFmpeg, nil),
		FFprobe:      pick("ffprobe", fc.FFprobe, ec.FFprobe, nil),
	}, nil
}

func mergeEdge(dst *adjust.EdgePolicy, fc *EdgeConfig, envMode *string, envValue *float64, cliMode *string, cliValue *float64) error {
	mode := string(dst.Mode)
	value := dst.Magnitude
	if fc != nil {
		if strings.TrimSpace(fc.Mode) != "" {
			mode = fc.Mode
		}
		if fc.Value != nil {
			value = *fc.Value
		}
	}
	for _, m := range []*string{envMode, cliMode} {
		if m != nil {
			mode = *m
		}
	}
	for _, v := range []*float64{envValue, cliValue} {
		if v != nil {
			value = *v
		}
	}

	m, err := adjust.ParseMode(mode)
	if err != nil {
		return err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return fmt.Errorf("value 必须是非负有限数，实际 %v", value)
	}
	dst.Mode, dst.Magnitude = m, value
	return nil
}

// pick 按 默认 < 文件 < 环境变量 < CLI 的顺序取字符串；文件中的空串视为未设置。
func pick(def, file string, envVal, cliVal *string) string {
	out := def
	if strings.TrimSpace(file) != "" {
		out = strings.TrimSpace(file)
	}
	for _, p := range []*string{envVal, cliVal} {
		if p != nil {
			out = strings.TrimSpace(*p)
		}
	}
	return out
}

// pickInt 同 pick；文件中的 0 视为未设置。
func pickInt(def, file int, envVal, cliVal *int) int {
	out := def
	if file != 0 {
		out = file
	}
	for _, p := range []*int{envVal, cliVal} {
		if p != nil {
			out = *p
		}
	}
	return out
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

func readEnvConfig(environ []string) (EnvConfig, error) {
	vars := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, EnvPrefix) {
			vars[k] = v
		}
	}
	var ec EnvConfig
	if err := env.ParseWithOptions(&ec, env.Options{Prefix: EnvPrefix, Environment: vars}); err != nil {
		return EnvConfig{}, err
	}
	return ec, nil
}
