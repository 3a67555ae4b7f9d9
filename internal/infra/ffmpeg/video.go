package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/SubShot/internal/domain"
)

// ErrNoFrame 表示目标帧无法解码（通常是帧下标为负或超过视频末尾）。
var ErrNoFrame = errors.New("未读取到帧")

// ErrClosed 表示在 Close 之后继续读帧。
var ErrClosed = errors.New("视频已关闭")

// Tool 持有 ffmpeg/ffprobe 可执行文件路径。
type Tool struct {
	FFmpeg  string
	FFprobe string
	Logger  *zap.Logger
}

func New(ffmpegPath, ffprobePath string, log *zap.Logger) *Tool {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tool{FFmpeg: ffmpegPath, FFprobe: ffprobePath, Logger: log}
}

func (t *Tool) ffmpeg() string {
	if t.FFmpeg == "" {
		return "ffmpeg"
	}
	return t.FFmpeg
}

func (t *Tool) ffprobe() string {
	if t.FFprobe == "" {
		return "ffprobe"
	}
	return t.FFprobe
}

// Video 是一个已探测的视频文件；每次 ReadFrame 都是一次独立的随机定位 + 单帧解码。
//
// 不并发安全：由单个视频的提取循环独占。
type Video struct {
	tool   *Tool
	path   string
	info   domain.VideoInfo
	closed bool
}

// Open 探测视频并返回可随机读帧的句柄。
func (t *Tool) Open(ctx context.Context, path string) (*Video, error) {
	info, err := t.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	t.Logger.Debug("video opened",
		zap.String("path", path),
		zap.Float64("fps", info.FPS),
		zap.Int64("frames", info.FrameCount),
		zap.Float64("duration", info.Duration),
	)
	return &Video{tool: t, path: path, info: info}, nil
}

func (v *Video) Info() domain.VideoInfo { return v.info }

// ReadFrame 定位到第 index 帧并解码一帧。
//
// 定位时间取 (index-0.5)/fps：ffmpeg 的精确定位会输出第一帧 pts ≥ 定位时间的帧，
// 半帧余量让浮点误差不会把结果推到下一帧。
func (v *Video) ReadFrame(ctx context.Context, index int64) (image.Image, error) {
	if v.closed {
		return nil, ErrClosed
	}
	if index < 0 {
		return nil, fmt.Errorf("帧下标 %d：%w", index, ErrNoFrame)
	}

	seek := (float64(index) - 0.5) / v.info.FPS
	if seek < 0 {
		seek = 0
	}

	started := time.Now()
	out, err := v.tool.output(ctx, v.tool.ffmpeg(),
		"-hide_banner",
		"-loglevel", "error",
		"-nostdin",
		"-ss", strconv.FormatFloat(seek, 'f', 6, 64),
		"-i", v.path,
		"-map", "0:v:0",
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"-",
	)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg 读取第 %d 帧：%w", index, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("帧下标 %d：%w", index, ErrNoFrame)
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("解码第 %d 帧 PNG：%w", index, err)
	}
	v.tool.Logger.Debug("frame decoded",
		zap.String("path", v.path),
		zap.Int64("frame", index),
		zap.Duration("took", time.Since(started)),
	)
	return img, nil
}

// Close 释放句柄。每次读帧都是独立子进程，这里只做状态标记。
func (v *Video) Close() error {
	v.closed = true
	return nil
}

func (t *Tool) output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	t.Logger.Debug("exec", zap.String("cmd", name), zap.Strings("args", args))
	out, err := cmd.Output()
	if err != nil {
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return nil, fmt.Errorf("%w：%s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
