package run

import (
	"time"

	"github.com/John-Robertt/SubShot/internal/config"
	"github.com/John-Robertt/SubShot/internal/domain"
)

// Observer 用于把“运行进度/视频/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出。
// - Observer 的实现必须并发安全：concurrency>1 时事件来自多个 goroutine。
// - 每个视频恰好一次 OnVideoStart 与一次 OnVideoDone，且前者先于后者。
type Observer interface {
	// OnStart 在输入展开后调用，total 为视频（时间轴文件）数。
	OnStart(eff config.EffectiveConfig, total int)
	// OnVideoStart 在伴随视频检查与时间轴解析之后、提取之前调用；job.Entries 可能为空。
	OnVideoStart(idx, total int, job domain.VideoJob)
	// OnEntryDone 在某条时间轴处理完成时调用。
	OnEntryDone(job domain.VideoJob, er domain.EntryResult)
	// OnVideoDone 在视频结果确定后调用；idx 为完成顺序（1..total）。
	OnVideoDone(idx, total int, res domain.VideoResult, dur time.Duration)
	// OnFinish 在 RunReport 折叠完成后调用。
	OnFinish(rr domain.RunReport)
}

type multiObserver []Observer

// Observers 把多个 Observer 合并为一个（nil 被忽略）；全部为 nil 时返回 nil。
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return out
	}
}

func (m multiObserver) OnStart(eff config.EffectiveConfig, total int) {
	for _, o := range m {
		o.OnStart(eff, total)
	}
}

func (m multiObserver) OnVideoStart(idx, total int, job domain.VideoJob) {
	for _, o := range m {
		o.OnVideoStart(idx, total, job)
	}
}

func (m multiObserver) OnEntryDone(job domain.VideoJob, er domain.EntryResult) {
	for _, o := range m {
		o.OnEntryDone(job, er)
	}
}

func (m multiObserver) OnVideoDone(idx, total int, res domain.VideoResult, dur time.Duration) {
	for _, o := range m {
		o.OnVideoDone(idx, total, res, dur)
	}
}

func (m multiObserver) OnFinish(rr domain.RunReport) {
	for _, o := range m {
		o.OnFinish(rr)
	}
}
