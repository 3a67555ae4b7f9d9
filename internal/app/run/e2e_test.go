package run

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/SubShot/internal/adjust"
	"github.com/John-Robertt/SubShot/internal/config"
	"github.com/John-Robertt/SubShot/internal/domain"
	"github.com/John-Robertt/SubShot/internal/extract"
	"github.com/John-Robertt/SubShot/internal/gallery"
)

// stubDecoder 生成纯色帧；帧号超出 [0, frames) 时读取失败。
type stubDecoder struct {
	fps    float64
	frames int64
}

func (d stubDecoder) Info() domain.VideoInfo {
	return domain.VideoInfo{FPS: d.fps, FrameCount: d.frames, Width: 160, Height: 90}
}

func (d stubDecoder) ReadFrame(ctx context.Context, index int64) (image.Image, error) {
	if index < 0 || index >= d.frames {
		return nil, errors.New("seek past end")
	}
	img := image.NewRGBA(image.Rect(0, 0, 160, 90))
	for y := 0; y < 90; y++ {
		for x := 0; x < 160; x++ {
			img.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	return img, nil
}

func (d stubDecoder) Close() error { return nil }

func stubOpener(fps float64, frames int64) extract.Opener {
	return extract.OpenerFunc(func(ctx context.Context, path string) (extract.Decoder, error) {
		return stubDecoder{fps: fps, frames: frames}, nil
	})
}

func baseConfig(inputs ...string) config.EffectiveConfig {
	return config.EffectiveConfig{
		Inputs:       inputs,
		Policy:       adjust.DefaultPolicy(),
		VideoExt:     ".mp4",
		TimelineExts: []string{".srt", ".txt"},
		Range:        extract.RangeSkip,
		Concurrency:  1,
		Quality:      90,
		LabelScale:   1,
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}

func names(t *testing.T, dir string) []string {
	t.Helper()
	des, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("读取目录失败 %q：%v", dir, err)
	}
	out := make([]string, 0, len(des))
	for _, de := range des {
		out = append(out, de.Name())
	}
	sort.Strings(out)
	return out
}

const twoEntries = "1\n00:00:05,000 --> 00:00:06,000\n2\n00:00:10,000 --> 00:00:11,000\n"

func TestExecute_SingleVideo_WritesBothFolders(t *testing.T) {
	root := t.TempDir()
	tl := filepath.Join(root, "ep01.srt")
	writeFile(t, tl, twoEntries)
	writeFile(t, filepath.Join(root, "ep01.mp4"), "x")

	rr := Execute(context.Background(), baseConfig(tl), stubOpener(30, 30*60), nil)

	if rr.RunID == "" {
		t.Fatalf("期望生成 run_id")
	}
	if rr.Summary.Videos != 1 || rr.Summary.Processed != 1 || rr.Summary.Images != 4 {
		t.Fatalf("summary 不符合预期：%+v", rr.Summary)
	}
	if rr.Summary.Aqian != 2 || rr.Summary.Bhou != 2 {
		t.Fatalf("每个目录应各 2 张：%+v", rr.Summary)
	}

	wantA := []string{"1_Aqian_00-00-04,00.jpg", "2_Aqian_00-00-09,00.jpg"}
	wantB := []string{"1_Bhou_00-00-05,66.jpg", "2_Bhou_00-00-10,66.jpg"}
	gotA := names(t, filepath.Join(root, "ep01_Aqian"))
	gotB := names(t, filepath.Join(root, "ep01_Bhou"))
	for i := range wantA {
		if len(gotA) != len(wantA) || gotA[i] != wantA[i] {
			t.Fatalf("Aqian 文件不符合预期：got=%v want=%v", gotA, wantA)
		}
		if len(gotB) != len(wantB) || gotB[i] != wantB[i] {
			t.Fatalf("Bhou 文件不符合预期：got=%v want=%v", gotB, wantB)
		}
	}

	// 截图保持源帧尺寸，顶部是黑色标注条、下方保留原画面。
	b, err := os.ReadFile(filepath.Join(root, "ep01_Bhou", wantB[0]))
	if err != nil {
		t.Fatalf("读取截图失败：%v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("解码截图失败：%v", err)
	}
	if img.Bounds().Dx() != 160 || img.Bounds().Dy() != 90 {
		t.Fatalf("截图尺寸不符合预期：%v", img.Bounds())
	}
	top := color.RGBAModel.Convert(img.At(150, 3)).(color.RGBA)
	bottom := color.RGBAModel.Convert(img.At(80, 80)).(color.RGBA)
	if top.R > 60 || bottom.R < 200 {
		t.Fatalf("标注条/原画面像素不符合预期：top=%v bottom=%v", top, bottom)
	}
}

func TestExecute_MixedBatch_SkipAndParseFailureDoNotStopOthers(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.srt")
	b := filepath.Join(root, "b.srt")
	c := filepath.Join(root, "c.srt")
	writeFile(t, a, twoEntries)
	writeFile(t, filepath.Join(root, "a.mp4"), "x")
	writeFile(t, b, twoEntries) // 没有 b.mp4
	writeFile(t, c, "1\n00:00:05 --> 00:00:06,000\n")
	writeFile(t, filepath.Join(root, "c.mp4"), "x")

	rr := Execute(context.Background(), baseConfig(a, b, c), stubOpener(30, 30*60), nil)

	if len(rr.Videos) != 3 {
		t.Fatalf("期望 3 个视频结果，实际 %d", len(rr.Videos))
	}
	if rr.Videos[0].Status != domain.StatusProcessed || rr.Videos[0].Images() != 4 {
		t.Fatalf("a 应成功写出 4 张：%+v", rr.Videos[0])
	}
	if rr.Videos[1].Status != domain.StatusSkipped || rr.Videos[1].ErrorCode != domain.ErrCodeMissingVideo {
		t.Fatalf("b 应因缺少视频被跳过：%+v", rr.Videos[1])
	}
	if rr.Videos[2].Status != domain.StatusFailed || rr.Videos[2].ErrorCode != domain.ErrCodeParseFailed {
		t.Fatalf("c 应解析失败：%+v", rr.Videos[2])
	}
	if rr.Summary.Processed != 1 || rr.Summary.Skipped != 1 || rr.Summary.Failed != 1 || rr.Summary.Images != 4 {
		t.Fatalf("summary 不符合预期：%+v", rr.Summary)
	}

	// 被跳过/解析失败的视频不创建任何输出目录。
	for _, base := range []string{"b", "c"} {
		for _, suffix := range []string{"_Aqian", "_Bhou"} {
			if _, err := os.Stat(filepath.Join(root, base+suffix)); !os.IsNotExist(err) {
				t.Fatalf("%s%s 不应存在，Stat err=%v", base, suffix, err)
			}
		}
	}
}

func TestExecute_DirectoryInput_ConcurrentKeepsInputOrder(t *testing.T) {
	root := t.TempDir()
	for _, base := range []string{"03", "01", "02", "04"} {
		writeFile(t, filepath.Join(root, base+".srt"), twoEntries)
		writeFile(t, filepath.Join(root, base+".mp4"), "x")
	}

	cfg := baseConfig(root)
	cfg.Concurrency = 4
	rr := Execute(context.Background(), cfg, stubOpener(25, 25*60), nil)

	if len(rr.Videos) != 4 {
		t.Fatalf("期望 4 个视频结果，实际 %d", len(rr.Videos))
	}
	for i, v := range rr.Videos {
		want := []string{"01", "02", "03", "04"}[i]
		if v.Seq != i+1 || v.Base != want || v.Status != domain.StatusProcessed {
			t.Fatalf("第 %d 个结果不符合预期：%+v", i, v)
		}
	}
	if rr.Summary.Images != 16 {
		t.Fatalf("期望共 16 张，实际 %d", rr.Summary.Images)
	}
}

func TestExecute_Gallery(t *testing.T) {
	root := t.TempDir()
	tl := filepath.Join(root, "ep01.srt")
	writeFile(t, tl, twoEntries)
	writeFile(t, filepath.Join(root, "ep01.mp4"), "x")

	cfg := baseConfig(tl)
	cfg.Gallery = true
	rr := Execute(context.Background(), cfg, stubOpener(30, 30*60), nil)

	want := filepath.Join(root, "ep01"+gallery.Suffix)
	if rr.Videos[0].Gallery != want {
		t.Fatalf("期望核对页 %q，实际 %q", want, rr.Videos[0].Gallery)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("核对页未写出：%v", err)
	}
}

func TestExecute_Gallery_OnlyListsCurrentRun(t *testing.T) {
	root := t.TempDir()
	tl := filepath.Join(root, "ep01.srt")
	writeFile(t, tl, twoEntries)
	writeFile(t, filepath.Join(root, "ep01.mp4"), "x")

	// 第一次：默认策略，两条。
	if rr := Execute(context.Background(), baseConfig(tl), stubOpener(30, 30*60), nil); rr.Summary.Images != 4 {
		t.Fatalf("第一次运行期望 4 张，实际 %d", rr.Summary.Images)
	}

	// 第二次：只剩一条，前轴提前 2 秒；旧截图仍留在目录里。
	writeFile(t, tl, "1\n00:00:05,000 --> 00:00:06,000\n")
	cfg := baseConfig(tl)
	cfg.Policy.Start = adjust.EdgePolicy{Mode: adjust.AdvanceSeconds, Magnitude: 2}
	cfg.Gallery = true
	rr := Execute(context.Background(), cfg, stubOpener(30, 30*60), nil)
	if rr.Videos[0].Aqian != 1 || rr.Videos[0].Total != 1 {
		t.Fatalf("第二次运行结果不符合预期：%+v", rr.Videos[0])
	}

	b, err := os.ReadFile(rr.Videos[0].Gallery)
	if err != nil {
		t.Fatalf("读取核对页失败：%v", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("解析核对页失败：%v", err)
	}
	if n := doc.Find("tbody tr").Length(); n != 1 {
		t.Fatalf("核对页期望 1 行，实际 %d", n)
	}
	src, _ := doc.Find("td.aqian img").Attr("src")
	if src != "ep01_Aqian/"+url.PathEscape("1_Aqian_00-00-03,00.jpg") {
		t.Fatalf("核对页应引用本次的前轴截图，实际 %q", src)
	}
	if bytes.Contains(b, []byte("00-00-04")) || bytes.Contains(b, []byte("2_Aqian")) {
		t.Fatalf("核对页不应包含上一次运行的截图：\n%s", b)
	}
}

func TestExecute_Canceled(t *testing.T) {
	root := t.TempDir()
	tl := filepath.Join(root, "ep01.srt")
	writeFile(t, tl, twoEntries)
	writeFile(t, filepath.Join(root, "ep01.mp4"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rr := Execute(ctx, baseConfig(tl), stubOpener(30, 30*60), nil)

	if rr.Videos[0].Status != domain.StatusFailed || rr.Videos[0].ErrorCode != domain.ErrCodeCanceled {
		t.Fatalf("期望 canceled：%+v", rr.Videos[0])
	}
}

func TestRunReport_JSONStable(t *testing.T) {
	root := t.TempDir()
	b := filepath.Join(root, "b.srt")
	writeFile(t, b, twoEntries)

	rr := Execute(context.Background(), baseConfig(b), stubOpener(30, 30*60), nil)
	raw, err := json.Marshal(rr)
	if err != nil {
		t.Fatalf("序列化失败：%v", err)
	}
	var back map[string]any
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("反序列化失败：%v", err)
	}
	videos, ok := back["videos"].([]any)
	if !ok || len(videos) != 1 {
		t.Fatalf("videos 字段不符合预期：%s", raw)
	}
	if entries, ok := videos[0].(map[string]any)["entries"].([]any); !ok || len(entries) != 0 {
		t.Fatalf("跳过的视频 entries 应为 []：%s", raw)
	}
}
