package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/John-Robertt/SubShot/internal/domain"
)

type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

// Probe 用 ffprobe 读取第一条视频流的帧率、帧数、时长与尺寸。
func (t *Tool) Probe(ctx context.Context, path string) (domain.VideoInfo, error) {
	out, err := t.output(ctx, t.ffprobe(),
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_type,width,height,r_frame_rate,avg_frame_rate,nb_frames,duration:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return domain.VideoInfo{}, fmt.Errorf("ffprobe %q：%w", path, err)
	}
	return parseProbe(out)
}

func parseProbe(b []byte) (domain.VideoInfo, error) {
	var pr probeResult
	if err := json.Unmarshal(b, &pr); err != nil {
		return domain.VideoInfo{}, fmt.Errorf("解析 ffprobe 输出失败：%w", err)
	}

	var st *probeStream
	for i := range pr.Streams {
		if pr.Streams[i].CodecType == "" || pr.Streams[i].CodecType == "video" {
			st = &pr.Streams[i]
			break
		}
	}
	if st == nil {
		return domain.VideoInfo{}, errors.New("文件中没有视频流")
	}

	// avg_frame_rate 更接近 OpenCV CAP_PROP_FPS；为 0/0 时退回 r_frame_rate。
	fps, err := parseRate(st.AvgFrameRate)
	if err != nil || fps <= 0 {
		fps, err = parseRate(st.RFrameRate)
	}
	if err != nil || fps <= 0 {
		return domain.VideoInfo{}, fmt.Errorf("无法确定帧率（avg=%q r=%q）", st.AvgFrameRate, st.RFrameRate)
	}

	info := domain.VideoInfo{
		FPS:    fps,
		Width:  st.Width,
		Height: st.Height,
	}

	info.Duration = parseFloat(st.Duration)
	if info.Duration <= 0 {
		info.Duration = parseFloat(pr.Format.Duration)
	}

	if n, err := strconv.ParseInt(strings.TrimSpace(st.NbFrames), 10, 64); err == nil && n > 0 {
		info.FrameCount = n
	} else if info.Duration > 0 {
		info.FrameCount = int64(math.Floor(info.Duration * fps))
	}
	return info, nil
}

// parseRate 解析 "30000/1001" 或 "25" 形式的帧率。
func parseRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("帧率为空")
	}
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, err
	}
	if !ok {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, errors.New("帧率分母为 0")
	}
	return n / d, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
