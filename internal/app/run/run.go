package run

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/John-Robertt/SubShot/internal/config"
	"github.com/John-Robertt/SubShot/internal/domain"
	"github.com/John-Robertt/SubShot/internal/extract"
	"github.com/John-Robertt/SubShot/internal/gallery"
	"github.com/John-Robertt/SubShot/internal/infra/imgx"
	"github.com/John-Robertt/SubShot/internal/scan"
	"github.com/John-Robertt/SubShot/internal/timecode"
)

// Execute 执行一次批处理，并返回 RunReport。
// 该函数尽量把错误“降级”为视频级失败（单个视频失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, opener extract.Opener, log *zap.Logger) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, opener, log, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, opener extract.Opener, log *zap.Logger, obs Observer) domain.RunReport {
	if log == nil {
		log = zap.NewNop()
	}
	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Videos:    make([]domain.VideoResult, 0, len(eff.Inputs)),
	}
	log = log.With(zap.String("run_id", rr.RunID))

	paths, err := scan.ExpandInputs(eff.Inputs, eff.TimelineExts, eff.ExcludeDirs)
	if err != nil {
		rr.Videos = append(rr.Videos, domain.VideoResult{
			Status:    domain.StatusFailed,
			ErrorCode: domain.ErrCodeIOFailed,
			ErrorMsg:  fmt.Sprintf("展开输入失败：%v", err),
		})
		return finish(rr, obs)
	}
	total := len(paths)

	if obs != nil {
		obs.OnStart(eff, total)
	}

	x := extract.New(opener, extract.Options{
		Policy:  eff.Policy,
		Range:   eff.Range,
		Quality: eff.Quality,
		Band:    imgx.Band{Scale: eff.LabelScale},
	}, log)

	// 按视频并发（worker pool），视频内串行；默认 1 个 worker 即完全顺序执行。
	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > total && total > 0 {
		workers = total
	}

	type execResult struct {
		res domain.VideoResult
		dur time.Duration
	}

	jobs := make(chan int)
	results := make(chan execResult, total)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				started := time.Now()
				r := execOne(ctx, eff, x, idx+1, total, paths[idx], log, obs)
				results <- execResult{res: r, dur: time.Since(started)}
			}
		}()
	}

	go func() {
		for i := range paths {
			jobs <- i
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	done := 0
	for it := range results {
		done++
		rr.Videos = append(rr.Videos, it.res)
		if obs != nil {
			obs.OnVideoDone(done, total, it.res, it.dur)
		}
	}

	return finish(rr, obs)
}

func finish(rr domain.RunReport, obs Observer) domain.RunReport {
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	if obs != nil {
		obs.OnFinish(rr)
	}
	return rr
}

// execOne 处理一个时间轴文件：伴随视频检查 → 解析 → 提取 → 可选核对页。
func execOne(ctx context.Context, eff config.EffectiveConfig, x *extract.Extractor, seq, total int, path string, log *zap.Logger, obs Observer) domain.VideoResult {
	job := domain.NewVideoJob(seq, path, eff.VideoExt)
	res := domain.VideoResult{
		Seq:      seq,
		Timeline: job.TimelinePath,
		Video:    job.VideoPath,
		Base:     job.Base,
		AqianDir: job.AqianDir,
		BhouDir:  job.BhouDir,
	}
	log = log.With(zap.Int("seq", seq), zap.String("timeline", path))

	res, ok := precheck(ctx, &job, res, log)
	if obs != nil {
		obs.OnVideoStart(seq, total, job)
	}
	if !ok {
		return res
	}

	var onEntry func(domain.EntryResult)
	if obs != nil {
		onEntry = func(er domain.EntryResult) { obs.OnEntryDone(job, er) }
	}
	res = x.Extract(ctx, job, onEntry)

	if eff.Gallery && res.Status == domain.StatusProcessed {
		p, err := gallery.Write(res)
		if err != nil {
			// 核对页只是附加产物，失败不改变视频状态。
			log.Warn("write gallery", zap.Error(err))
		} else {
			res.Gallery = p
		}
	}

	log.Info("video done",
		zap.String("status", res.Status),
		zap.Int("aqian", res.Aqian), zap.Int("bhou", res.Bhou),
		zap.Int("entries", res.Total),
	)
	return res
}

// precheck 做提取前的检查；返回 ok=false 时 res 已是最终结果。
// 伴随视频缺失时不会创建任何输出目录。
func precheck(ctx context.Context, job *domain.VideoJob, res domain.VideoResult, log *zap.Logger) (domain.VideoResult, bool) {
	if err := ctx.Err(); err != nil {
		res.Status = domain.StatusFailed
		res.ErrorCode = domain.ErrCodeCanceled
		res.ErrorMsg = fmt.Sprintf("已取消：%v", err)
		return res, false
	}

	st, err := os.Stat(job.VideoPath)
	if err != nil || st.IsDir() {
		res.Status = domain.StatusSkipped
		res.ErrorCode = domain.ErrCodeMissingVideo
		res.ErrorMsg = fmt.Sprintf("未找到伴随视频 %s", job.VideoPath)
		log.Info("companion video missing", zap.String("video", job.VideoPath))
		return res, false
	}

	entries, err := timecode.ReadTimelineFile(job.TimelinePath)
	if err != nil {
		res.Status = domain.StatusFailed
		res.ErrorCode = domain.ErrCodeParseFailed
		var pe *fs.PathError
		if errors.As(err, &pe) {
			res.ErrorCode = domain.ErrCodeIOFailed
		}
		res.ErrorMsg = err.Error()
		log.Warn("timeline rejected", zap.String("code", res.ErrorCode), zap.Error(err))
		return res, false
	}

	job.Entries = entries
	res.Total = len(entries)
	return res, true
}
