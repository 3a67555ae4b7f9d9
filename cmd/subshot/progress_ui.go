package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/SubShot/internal/adjust"
	"github.com/John-Robertt/SubShot/internal/app/run"
	"github.com/John-Robertt/SubShot/internal/config"
	"github.com/John-Robertt/SubShot/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - 每条时间轴一行、每个视频一行；并发时行首带视频名区分
// - keepalive：长时间无输出时也会定期输出一行，降低等待焦虑
//
// 非交互（输出被重定向）时使用 newPlainProgress：不打印配置横幅，也不启动 keepalive。
type progressUI struct {
	w           io.Writer
	interactive bool

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	ok      int
	fail    int
	skip    int
	images  int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		interactive:        true,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func newPlainProgress(w io.Writer) *progressUI {
	return &progressUI{w: w}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig, total int) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}
	p.total = total
	p.workers = eff.Concurrency

	if !p.interactive {
		fmt.Fprintf(p.w, "时间轴文件: %d\n", total)
		p.lastPrinted = time.Now()
		return
	}

	fmt.Fprintf(p.w, "[%s] SubShot run\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigPath != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
	}
	fmt.Fprintf(p.w, "  前轴(Aqian): %s\n", formatEdge(eff.Policy.Start))
	fmt.Fprintf(p.w, "  后轴(Bhou): %s\n", formatEdge(eff.Policy.End))
	fmt.Fprintf(p.w, "  video_ext: %s\n", eff.VideoExt)
	fmt.Fprintf(p.w, "  range: %s\n", eff.Range)
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  quality: %d  label_scale: %d\n", eff.Quality, eff.LabelScale)
	fmt.Fprintf(p.w, "  gallery: %s\n", onOff(eff.Gallery))
	if eff.MetricsFile != "" {
		fmt.Fprintf(p.w, "  metrics: %s\n", eff.MetricsFile)
	}
	fmt.Fprintf(p.w, "时间轴文件: %d\n\n", total)

	p.lastPrinted = time.Now()
	if total > 0 && !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnVideoStart(idx, total int, job domain.VideoJob) {
	if len(job.Entries) == 0 {
		// 跳过/解析失败的视频在 OnVideoDone 里一行说明即可。
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "[%d/%d] %s 开始：%d 条\n", idx, total, job.Base, len(job.Entries))
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnEntryDone(job domain.VideoJob, er domain.EntryResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(job.Entries)
	switch er.Status {
	case domain.EntryWritten:
		p.images += 2
		fmt.Fprintf(p.w, "  %s %d/%d OK %s / %s\n", job.Base, er.Index, n, er.AdjStart, er.AdjEnd)
	case domain.EntryOutOfRange:
		fmt.Fprintf(p.w, "  %s %d/%d RANGE %s\n", job.Base, er.Index, n, truncate(er.Message, 120))
	default:
		fmt.Fprintf(p.w, "  %s %d/%d FAIL %s (前轴=%s 后轴=%s) %s\n",
			job.Base, er.Index, n, er.Status, okFail(er.StartRead), okFail(er.EndRead), truncate(er.Message, 120),
		)
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnVideoDone(idx, total int, res domain.VideoResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// idx/total 由 run 层给出；这里同时维护自己的计数，供 keepalive 使用。
	p.done = idx
	p.total = total

	switch res.Status {
	case domain.StatusProcessed:
		p.ok++
		fmt.Fprintf(p.w, "[%d/%d] %s OK Aqian=%d Bhou=%d (%s)\n",
			idx, total, res.Base, res.Aqian, res.Bhou, formatShortDuration(dur),
		)
	case domain.StatusSkipped:
		p.skip++
		fmt.Fprintf(p.w, "[%d/%d] %s SKIP %s: %s\n", idx, total, res.Base, res.ErrorCode, truncate(res.ErrorMsg, 160))
	default:
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s: %s (%s)\n",
			idx, total, res.Base, res.ErrorCode, truncate(res.ErrorMsg, 160), formatShortDuration(dur),
		)
	}
	if res.Gallery != "" {
		fmt.Fprintf(p.w, "  gallery: %s\n", res.Gallery)
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnFinish(rr domain.RunReport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// 结束：停止 ticker，避免在摘要打印后又冒出 keepalive。
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
	fmt.Fprintf(p.w, "\n完成：用时 %s\n", formatElapsed(rr.FinishedAt.Sub(rr.StartedAt)))
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintln(p.w, p.progressLineLocked())
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func (p *progressUI) progressLineLocked() string {
	active := p.workers
	if remain := p.total - p.done; remain < active {
		active = remain
	}
	if active < 0 {
		active = 0
	}
	return fmt.Sprintf("进度: done=%d/%d ok=%d fail=%d skip=%d images=%d active=%d elapsed=%s",
		p.done, p.total, p.ok, p.fail, p.skip, p.images, active, formatElapsed(time.Since(p.startedAt)),
	)
}

func formatEdge(ep adjust.EdgePolicy) string {
	return fmt.Sprintf("%s %g", ep.Mode, ep.Magnitude)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func okFail(v bool) string {
	if v {
		return "ok"
	}
	return "fail"
}

// truncate 按字符（而非字节）截断，避免切坏中文。
func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
