package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/SubShot/internal/adjust"
	"github.com/John-Robertt/SubShot/internal/extract"
)

func TestLoadEffective_Defaults(t *testing.T) {
	cwd := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{Inputs: []string{"a.srt"}}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ConfigPath != "" {
		t.Fatalf("cwd 下没有 %s 时 ConfigPath 应为空，实际=%q", FileName, eff.ConfigPath)
	}
	if eff.Policy != adjust.DefaultPolicy() {
		t.Fatalf("期望默认策略，实际=%+v", eff.Policy)
	}
	if eff.VideoExt != ".mp4" || eff.Range != extract.RangeSkip || eff.Concurrency != 1 || eff.Quality != 95 || eff.LabelScale != 1 {
		t.Fatalf("默认值不符：%+v", eff)
	}
	if len(eff.TimelineExts) != 2 || eff.TimelineExts[0] != ".srt" || eff.TimelineExts[1] != ".txt" {
		t.Fatalf("期望默认时间轴扩展名 [.srt .txt]，实际=%v", eff.TimelineExts)
	}
	want := filepath.Join(cwd, "a.srt")
	if len(eff.Inputs) != 1 || eff.Inputs[0] != want {
		t.Fatalf("期望 inputs=[%q]，实际=%v", want, eff.Inputs)
	}
}

func TestLoadEffective_ExplicitConfigNotFound(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{ConfigPath: "nope.json"}, nil)
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadEffective_InvalidJSON(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{`))

	_, err := LoadEffective(cwd, CLIArgs{}, nil)
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func TestLoadEffective_MergeOrder(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{
		"start": {"mode": "delay_seconds", "value": 2},
		"end": {"mode": "delay_frames", "value": 3},
		"video_ext": "mkv",
		"range": "pass",
		"concurrency": 4,
		"gallery": true
	}`))

	// 只有配置文件。
	eff, err := LoadEffective(cwd, CLIArgs{}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Policy.Start != (adjust.EdgePolicy{Mode: adjust.DelaySeconds, Magnitude: 2}) {
		t.Fatalf("start 应来自配置文件，实际=%+v", eff.Policy.Start)
	}
	if eff.VideoExt != ".mkv" || eff.Range != extract.RangePass || eff.Concurrency != 4 || !eff.Gallery {
		t.Fatalf("配置文件字段未生效：%+v", eff)
	}
	if eff.ConfigPath != filepath.Join(cwd, FileName) {
		t.Fatalf("ConfigPath=%q", eff.ConfigPath)
	}

	// 环境变量覆盖配置文件。
	environ := []string{"SUBSHOT_START_VALUE=0.5", "SUBSHOT_RANGE=clamp", "SUBSHOT_GALLERY=false", "PATH=/bin"}
	eff, err = LoadEffective(cwd, CLIArgs{}, environ)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Policy.Start != (adjust.EdgePolicy{Mode: adjust.DelaySeconds, Magnitude: 0.5}) {
		t.Fatalf("start.value 应来自环境变量，实际=%+v", eff.Policy.Start)
	}
	if eff.Range != extract.RangeClamp || eff.Gallery {
		t.Fatalf("环境变量未覆盖：range=%q gallery=%v", eff.Range, eff.Gallery)
	}

	// CLI 覆盖环境变量。
	mode := "advance_frames"
	rng := "skip"
	gallery := true
	eff, err = LoadEffective(cwd, CLIArgs{StartMode: &mode, Range: &rng, Gallery: &gallery}, environ)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Policy.Start != (adjust.EdgePolicy{Mode: adjust.AdvanceFrames, Magnitude: 0.5}) {
		t.Fatalf("start.mode 应来自 CLI，实际=%+v", eff.Policy.Start)
	}
	if eff.Range != extract.RangeSkip || !eff.Gallery {
		t.Fatalf("CLI 未覆盖：range=%q gallery=%v", eff.Range, eff.Gallery)
	}
	if eff.Policy.End != (adjust.EdgePolicy{Mode: adjust.DelayFrames, Magnitude: 3}) {
		t.Fatalf("end 两端互相独立，应保持配置文件值，实际=%+v", eff.Policy.End)
	}
}

func TestLoadEffective_ConcurrencyClamp(t *testing.T) {
	cwd := t.TempDir()

	for _, tc := range []struct{ in, want int }{{-3, 1}, {0, 0}, {100, 32}, {8, 8}} {
		n := tc.in
		eff, err := LoadEffective(cwd, CLIArgs{Concurrency: &n}, nil)
		if err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
		want := tc.want
		if want == 0 {
			want = 1
		}
		if eff.Concurrency != want {
			t.Fatalf("concurrency=%d 期望 %d，实际 %d", tc.in, want, eff.Concurrency)
		}
	}
}

func TestLoadEffective_InvalidValues(t *testing.T) {
	cwd := t.TempDir()

	badMode := "rewind"
	negative := -1.0
	quality := 101
	scale := 0
	level := "loud"
	rng := "wrap"
	cases := map[string]CLIArgs{
		"mode":    {StartMode: &badMode},
		"value":   {EndValue: &negative},
		"quality": {Quality: &quality},
		"scale":   {LabelScale: &scale},
		"level":   {LogLevel: &level},
		"range":   {Range: &rng},
	}
	for name, cli := range cases {
		_, err := LoadEffective(cwd, cli, nil)
		if Code(err) != ErrCodeInvalid {
			t.Fatalf("%s：期望 %q，实际 err=%v (code=%q)", name, ErrCodeInvalid, err, Code(err))
		}
	}
}

func TestLoadEffective_InvalidEnv(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{}, []string{"SUBSHOT_CONCURRENCY=many"})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func TestLoadEffective_RelativeArtifactsResolvedFromCwd(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{"report":"out/report.json","timeline_exts":["SRT"]}`))

	eff, err := LoadEffective(cwd, CLIArgs{}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if want := filepath.Join(cwd, "out", "report.json"); eff.ReportPath != want {
		t.Fatalf("期望 report=%q，实际=%q", want, eff.ReportPath)
	}
	if len(eff.TimelineExts) != 1 || eff.TimelineExts[0] != ".srt" {
		t.Fatalf("期望 timeline_exts=[.srt]，实际=%v", eff.TimelineExts)
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}
