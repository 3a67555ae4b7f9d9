package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/John-Robertt/SubShot/internal/config"
	"github.com/John-Robertt/SubShot/internal/domain"
)

// Recorder 把一次运行的事件累计为 Prometheus 指标，结束时写成 textfile
// （node_exporter textfile collector 可直接采集）。
//
// 指标挂在独立的 Registry 上，不污染全局 DefaultRegisterer。
type Recorder struct {
	reg *prometheus.Registry

	VideosTotal     *prometheus.CounterVec
	EntriesTotal    *prometheus.CounterVec
	ImagesTotal     *prometheus.CounterVec
	VideoDuration   prometheus.Histogram
	ActiveVideos    prometheus.Gauge
	RunFinishedUnix prometheus.Gauge
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		VideosTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "subshot_videos_total",
			Help: "Videos handled in this run, by status",
		}, []string{"status"}),
		EntriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "subshot_entries_total",
			Help: "Timeline entries handled in this run, by status",
		}, []string{"status"}),
		ImagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "subshot_images_written_total",
			Help: "Annotated images written, by folder",
		}, []string{"folder"}),
		VideoDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "subshot_video_duration_seconds",
			Help:    "Wall time spent per video",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		ActiveVideos: f.NewGauge(prometheus.GaugeOpts{
			Name: "subshot_active_videos",
			Help: "Videos currently being extracted",
		}),
		RunFinishedUnix: f.NewGauge(prometheus.GaugeOpts{
			Name: "subshot_run_finished_timestamp_seconds",
			Help: "Unix time the run finished",
		}),
	}
}

// Gatherer 暴露底层 Registry（测试与写文件共用）。
func (r *Recorder) Gatherer() prometheus.Gatherer { return r.reg }

// WriteTextfile 以 Prometheus 文本格式写入 path（内部先写临时文件再 rename）。
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}

func (r *Recorder) OnStart(eff config.EffectiveConfig, total int) {}

func (r *Recorder) OnVideoStart(idx, total int, job domain.VideoJob) {
	r.ActiveVideos.Inc()
}

func (r *Recorder) OnEntryDone(job domain.VideoJob, er domain.EntryResult) {
	r.EntriesTotal.WithLabelValues(er.Status).Inc()
	if er.AqianFile != "" {
		r.ImagesTotal.WithLabelValues(domain.EdgeStart.Label()).Inc()
	}
	if er.BhouFile != "" {
		r.ImagesTotal.WithLabelValues(domain.EdgeEnd.Label()).Inc()
	}
}

func (r *Recorder) OnVideoDone(idx, total int, res domain.VideoResult, dur time.Duration) {
	r.VideosTotal.WithLabelValues(res.Status).Inc()
	r.ActiveVideos.Dec()
	r.VideoDuration.Observe(dur.Seconds())
	// 被取消的条目不经过 OnEntryDone，这里补记。
	for _, er := range res.Entries {
		if er.Status == domain.EntryCanceled {
			r.EntriesTotal.WithLabelValues(er.Status).Inc()
		}
	}
}

func (r *Recorder) OnFinish(rr domain.RunReport) {
	r.RunFinishedUnix.Set(float64(rr.FinishedAt.Unix()))
}
