package domain

import (
	"path/filepath"
	"strings"

	"github.com/John-Robertt/SubShot/internal/timecode"
)

// DefaultVideoExt 是伴随视频的固定扩展名。
const DefaultVideoExt = ".mp4"

// VideoJob 是一个时间轴文件 + 其伴随视频的工作单元。
//
// 生命周期：只在该视频的提取循环内存在；结束后只保留 VideoResult。
type VideoJob struct {
	// Seq 是该任务在输入列表中的序号（从 1 开始）。
	Seq int

	TimelinePath string
	VideoPath    string
	// Base 是时间轴文件去掉扩展名后的文件名，也是输出目录的前缀。
	Base string

	Entries []timecode.Entry

	AqianDir string
	BhouDir  string
}

// Dir 返回指定端的输出目录。
func (j VideoJob) Dir(edge Edge) string {
	if edge == EdgeEnd {
		return j.BhouDir
	}
	return j.AqianDir
}

// CompanionVideo 把时间轴路径的扩展名替换为 videoExt（同目录）。
func CompanionVideo(timelinePath, videoExt string) string {
	if videoExt == "" {
		videoExt = DefaultVideoExt
	}
	if !strings.HasPrefix(videoExt, ".") {
		videoExt = "." + videoExt
	}
	return strings.TrimSuffix(timelinePath, filepath.Ext(timelinePath)) + videoExt
}

// NewVideoJob 按命名约定推导伴随视频与两个输出目录（<dir>/<base>_Aqian、<dir>/<base>_Bhou）。
// 只做路径推导，不触碰文件系统。
func NewVideoJob(seq int, timelinePath, videoExt string) VideoJob {
	dir := filepath.Dir(timelinePath)
	base := strings.TrimSuffix(filepath.Base(timelinePath), filepath.Ext(timelinePath))
	return VideoJob{
		Seq:          seq,
		TimelinePath: timelinePath,
		VideoPath:    CompanionVideo(timelinePath, videoExt),
		Base:         base,
		AqianDir:     filepath.Join(dir, base+EdgeStart.DirSuffix()),
		BhouDir:      filepath.Join(dir, base+EdgeEnd.DirSuffix()),
	}
}

// VideoInfo 是解码器打开视频后得到的流信息。
type VideoInfo struct {
	FPS float64
	// FrameCount 为 0 表示未知（部分容器不提供帧数且无法从时长推算）。
	FrameCount int64
	Duration   float64 // 秒
	Width      int
	Height     int
}
