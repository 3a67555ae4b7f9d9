package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/John-Robertt/SubShot/internal/adjust"
	"github.com/John-Robertt/SubShot/internal/domain"
	"github.com/John-Robertt/SubShot/internal/infra/fsx"
	"github.com/John-Robertt/SubShot/internal/infra/imgx"
	"github.com/John-Robertt/SubShot/internal/output"
	"github.com/John-Robertt/SubShot/internal/timecode"
)

// Decoder 是支持任意帧随机定位的视频解码句柄。
type Decoder interface {
	Info() domain.VideoInfo
	// ReadFrame 定位到第 index 帧并解码一帧；每次调用都是独立的随机访问。
	ReadFrame(ctx context.Context, index int64) (image.Image, error)
	Close() error
}

// Opener 打开视频得到 Decoder。
type Opener interface {
	Open(ctx context.Context, path string) (Decoder, error)
}

// OpenerFunc 让普通函数满足 Opener。
type OpenerFunc func(ctx context.Context, path string) (Decoder, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (Decoder, error) { return f(ctx, path) }

// RangePolicy 决定调整后落在 [0, 帧数) 之外的时间点如何处理。
type RangePolicy string

const (
	// RangeSkip：不解码，条目记为 out_of_range。
	RangeSkip RangePolicy = "skip"
	// RangeClamp：把帧下标截断到 [0, 帧数-1]，标注显示截断后的时间。
	RangeClamp RangePolicy = "clamp"
	// RangePass：原样交给解码器，越界表现为解码失败。
	RangePass RangePolicy = "pass"
)

// ParseRange 解析越界策略，空串视为 RangeSkip。
func ParseRange(s string) (RangePolicy, error) {
	r := RangePolicy(strings.ToLower(strings.TrimSpace(s)))
	switch r {
	case "":
		return RangeSkip, nil
	case RangeSkip, RangeClamp, RangePass:
		return r, nil
	default:
		return "", fmt.Errorf("未知越界策略 %q（可选 skip|clamp|pass）", s)
	}
}

// Options 是一次运行内固定不变的提取参数。
type Options struct {
	Policy  adjust.Policy
	Range   RangePolicy
	Quality int
	Band    imgx.Band
}

// Extractor 对单个视频执行“调整 → 定位 → 解码 → 标注 → 落盘”。
//
// 落盘门槛：前后两次读取都成功才写出两张图；任意一次失败两张都不写。
type Extractor struct {
	opener Opener
	opts   Options
	log    *zap.Logger
}

func New(opener Opener, opts Options, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Range == "" {
		opts.Range = RangeSkip
	}
	return &Extractor{opener: opener, opts: opts, log: log}
}

// Extract 处理一个视频的全部条目，返回不可变的 VideoResult。
//
// onEntry（可为 nil）在每条结果产生后立即回调，用于进度展示。
// 单条失败不影响后续条目；解码器在返回前关闭。
func (x *Extractor) Extract(ctx context.Context, job domain.VideoJob, onEntry func(domain.EntryResult)) domain.VideoResult {
	res := domain.VideoResult{
		Seq:      job.Seq,
		Timeline: job.TimelinePath,
		Video:    job.VideoPath,
		Base:     job.Base,
		Status:   domain.StatusProcessed,
		AqianDir: job.AqianDir,
		BhouDir:  job.BhouDir,
		Total:    len(job.Entries),
		Entries:  make([]domain.EntryResult, 0, len(job.Entries)),
	}

	dec, err := x.opener.Open(ctx, job.VideoPath)
	if err != nil {
		return failVideo(res, domain.ErrCodeOpenFailed, fmt.Sprintf("打开视频失败：%v", err))
	}
	defer func() {
		if err := dec.Close(); err != nil {
			x.log.Warn("close decoder", zap.String("video", job.VideoPath), zap.Error(err))
		}
	}()

	info := dec.Info()
	if !(info.FPS > 0) {
		return failVideo(res, domain.ErrCodeOpenFailed, fmt.Sprintf("视频帧率无效：%v", info.FPS))
	}
	res.FPS = info.FPS

	w := output.NewWriter(job)
	if err := w.Prepare(); err != nil {
		return failVideo(res, outputErrCode(err), err.Error())
	}

	for i, entry := range job.Entries {
		if ctx.Err() != nil {
			for _, rest := range job.Entries[i:] {
				er := domain.EntryResult{
					Index:   rest.Index,
					Start:   rest.Start.String(),
					End:     rest.End.String(),
					Status:  domain.EntryCanceled,
					Message: ctx.Err().Error(),
				}
				res.Entries = append(res.Entries, er)
			}
			res.Status = domain.StatusFailed
			res.ErrorCode = domain.ErrCodeCanceled
			res.ErrorMsg = fmt.Sprintf("已取消：剩余 %d 条未处理", len(job.Entries)-i)
			break
		}

		er, writeErr := x.extractEntry(ctx, dec, info, w, entry, len(job.Entries))
		res.Entries = append(res.Entries, er)
		// 输出目录本身出了问题（被挂载点替换、目标位置被目录占用）：条目继续，视频记为失败。
		if writeErr != nil && res.ErrorCode == "" && (fsx.IsCrossDevice(writeErr) || fsx.IsPathTypeConflict(writeErr)) {
			res.Status = domain.StatusFailed
			res.ErrorCode = outputErrCode(writeErr)
			res.ErrorMsg = er.Message
		}
		if onEntry != nil {
			onEntry(er)
		}
	}

	res.Tally()
	return res
}

// outputErrCode 把输出目录相关的错误映射为视频级 error_code。
func outputErrCode(err error) string {
	if fsx.IsPathTypeConflict(err) {
		return domain.ErrCodeTargetConflict
	}
	return domain.ErrCodeIOFailed
}

func failVideo(res domain.VideoResult, code, msg string) domain.VideoResult {
	res.Status = domain.StatusFailed
	res.ErrorCode = code
	res.ErrorMsg = msg
	return res
}

func (x *Extractor) extractEntry(ctx context.Context, dec Decoder, info domain.VideoInfo, w output.Writer, entry timecode.Entry, total int) (domain.EntryResult, error) {
	er := domain.EntryResult{
		Index: entry.Index,
		Start: entry.Start.String(),
		End:   entry.End.String(),
	}
	if entry.Reversed() {
		x.log.Warn("timeline entry ends before it starts",
			zap.Int("index", entry.Index), zap.Int("line", entry.Line),
			zap.String("start", er.Start), zap.String("end", er.End),
		)
	}

	start, err := adjust.Apply(entry.Start.TotalMillis(), domain.EdgeStart, x.opts.Policy, info.FPS)
	if err != nil {
		er.Status = domain.EntryDecodeFailed
		er.Message = err.Error()
		return er, nil
	}
	end, err := adjust.Apply(entry.End.TotalMillis(), domain.EdgeEnd, x.opts.Policy, info.FPS)
	if err != nil {
		er.Status = domain.EntryDecodeFailed
		er.Message = err.Error()
		return er, nil
	}

	var outside []string
	start, outside = x.fitRange(start, info, domain.EdgeStart, outside)
	end, outside = x.fitRange(end, info, domain.EdgeEnd, outside)

	er.AdjStart, er.AdjEnd = start.Label(), end.Label()
	er.StartFrame, er.EndFrame = start.Frame, end.Frame

	if len(outside) > 0 {
		er.Status = domain.EntryOutOfRange
		er.Message = strings.Join(outside, "；")
		x.log.Info("entry out of range", zap.Int("index", entry.Index), zap.String("reason", er.Message))
		return er, nil
	}

	startImg, startErr := dec.ReadFrame(ctx, start.Frame)
	endImg, endErr := dec.ReadFrame(ctx, end.Frame)
	er.StartRead = startErr == nil
	er.EndRead = endErr == nil

	if !er.StartRead || !er.EndRead {
		er.Status = domain.EntryDecodeFailed
		er.Message = joinErrs(startErr, endErr)
		x.log.Warn("frame read failed",
			zap.Int("index", entry.Index),
			zap.Int64("start_frame", start.Frame), zap.Int64("end_frame", end.Frame),
			zap.NamedError("start_err", startErr), zap.NamedError("end_err", endErr),
		)
		return er, nil
	}

	aqian, err := x.render(startImg, domain.EdgeStart, er.AdjStart, entry.Index, total)
	if err != nil {
		er.Status = domain.EntryWriteFailed
		er.Message = err.Error()
		return er, nil
	}
	bhou, err := x.render(endImg, domain.EdgeEnd, er.AdjEnd, entry.Index, total)
	if err != nil {
		er.Status = domain.EntryWriteFailed
		er.Message = err.Error()
		return er, nil
	}

	aqianName := output.FileName(entry.Index, total, domain.EdgeStart, er.AdjStart)
	bhouName := output.FileName(entry.Index, total, domain.EdgeEnd, er.AdjEnd)

	aqianPath, err := w.Write(domain.EdgeStart, aqianName, aqian)
	if err != nil {
		er.Status = domain.EntryWriteFailed
		er.Message = fmt.Sprintf("写入 %s 失败：%v", aqianName, err)
		return er, err
	}
	if _, err := w.Write(domain.EdgeEnd, bhouName, bhou); err != nil {
		er.Status = domain.EntryWriteFailed
		er.Message = fmt.Sprintf("写入 %s 失败：%v", bhouName, err)
		// 成对落盘：后轴失败则回滚前轴，目录里不会出现落单的截图。
		if rmErr := os.Remove(aqianPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			x.log.Warn("rollback aqian image", zap.String("path", aqianPath), zap.Error(rmErr))
		}
		return er, err
	}

	er.Status = domain.EntryWritten
	er.AqianFile = filepath.Base(aqianPath)
	er.BhouFile = bhouName
	return er, nil
}

// fitRange 按越界策略处理单端时间点；越界且策略为 skip 时把原因追加到 outside。
func (x *Extractor) fitRange(in adjust.Instant, info domain.VideoInfo, edge domain.Edge, outside []string) (adjust.Instant, []string) {
	last := info.FrameCount - 1
	below := in.Frame < 0
	above := info.FrameCount > 0 && in.Frame > last
	if !below && !above {
		return in, outside
	}

	switch x.opts.Range {
	case RangePass:
		return in, outside
	case RangeClamp:
		f := last
		if below {
			f = 0
		}
		return adjust.Instant{Millis: timecode.FrameMillis(f, info.FPS), Frame: f}, outside
	default:
		return in, append(outside, fmt.Sprintf("%s 调整后 %s（第 %d 帧）超出视频范围 [0, %d)",
			edge.Label(), in.Label(), in.Frame, info.FrameCount))
	}
}

func (x *Extractor) render(img image.Image, edge domain.Edge, label string, index, total int) ([]byte, error) {
	text := fmt.Sprintf("Timestamp: %s (%s)  |  %d/%d", label, edge.Label(), index, total)
	annotated, err := imgx.Annotate(img, text, x.opts.Band)
	if err != nil {
		return nil, fmt.Errorf("标注 %s 失败：%w", edge.Label(), err)
	}
	b, err := imgx.EncodeJPEG(annotated, x.opts.Quality)
	if err != nil {
		return nil, fmt.Errorf("编码 %s 失败：%w", edge.Label(), err)
	}
	return b, nil
}

func joinErrs(startErr, endErr error) string {
	parts := make([]string, 0, 2)
	if startErr != nil {
		parts = append(parts, "前轴："+startErr.Error())
	}
	if endErr != nil {
		parts = append(parts, "后轴："+endErr.Error())
	}
	return strings.Join(parts, "；")
}
