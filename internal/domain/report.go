package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

const (
	EntryWritten      = "written"
	EntryDecodeFailed = "decode_failed"
	EntryOutOfRange   = "out_of_range"
	EntryWriteFailed  = "write_failed"
	EntryCanceled     = "canceled"
)

const (
	ErrCodeMissingVideo   = "missing_video"
	ErrCodeParseFailed    = "parse_failed"
	ErrCodeOpenFailed     = "open_failed"
	ErrCodeIOFailed       = "io_failed"
	ErrCodeTargetConflict = "target_conflict"
	ErrCodeDecodeFailed   = "decode_failed"
	ErrCodeOutOfRange     = "out_of_range"
	ErrCodeCanceled       = "canceled"
	ErrCodeConfigInvalid  = "config_invalid"
)

// RunReport 是一次批处理的汇总结果（控制台摘要与可选 report.json 共用）。
type RunReport struct {
	RunID string `json:"run_id"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Videos  []VideoResult `json:"videos"`
}

type ReportSummary struct {
	Videos    int `json:"videos"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`

	Images int `json:"images"`
	Aqian  int `json:"aqian"`
	Bhou   int `json:"bhou"`

	EntriesWritten    int `json:"entries_written"`
	EntriesFailed     int `json:"entries_failed"`
	EntriesOutOfRange int `json:"entries_out_of_range"`
}

// VideoResult 是单个视频任务的不可变结果记录。
type VideoResult struct {
	Seq      int    `json:"seq"`
	Timeline string `json:"timeline"`
	Video    string `json:"video"`
	Base     string `json:"base"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	FPS      float64 `json:"fps"`
	AqianDir string  `json:"aqian_dir"`
	BhouDir  string  `json:"bhou_dir"`
	// Gallery 是可选的核对页路径（未生成时为空）。
	Gallery string `json:"gallery,omitempty"`

	Total   int           `json:"total"`
	Aqian   int           `json:"aqian"`
	Bhou    int           `json:"bhou"`
	Entries []EntryResult `json:"entries"`
}

// Images 返回该视频写出的图片总数。
func (v VideoResult) Images() int { return v.Aqian + v.Bhou }

// EntryResult 是单条时间轴的两步结果（前轴读取、后轴读取）与落盘情况。
type EntryResult struct {
	Index int    `json:"index"`
	Start string `json:"start"`
	End   string `json:"end"`

	AdjStart   string `json:"adj_start"`
	AdjEnd     string `json:"adj_end"`
	StartFrame int64  `json:"start_frame"`
	EndFrame   int64  `json:"end_frame"`

	StartRead bool `json:"start_read"`
	EndRead   bool `json:"end_read"`

	Status  string `json:"status"`
	Message string `json:"message,omitempty"`

	AqianFile string `json:"aqian_file,omitempty"`
	BhouFile  string `json:"bhou_file,omitempty"`
}

// Tally 从条目结果计算两个目录的图片数。
func (v *VideoResult) Tally() {
	v.Aqian, v.Bhou = 0, 0
	for _, e := range v.Entries {
		if e.AqianFile != "" {
			v.Aqian++
		}
		if e.BhouFile != "" {
			v.Bhou++
		}
	}
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) videos 按输入序号稳定排序（并发执行时完成顺序不确定）
// 3) summary 由 videos 折叠得出，不依赖执行过程中的共享计数
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Videos, func(i, j int) bool { return r.Videos[i].Seq < r.Videos[j].Seq })

	s := ReportSummary{Videos: len(r.Videos)}
	for _, v := range r.Videos {
		s = s.Add(v)
	}
	r.Summary = s
}

// Add 把一个视频结果折叠进汇总。
func (s ReportSummary) Add(v VideoResult) ReportSummary {
	switch v.Status {
	case StatusProcessed:
		s.Processed++
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
	s.Aqian += v.Aqian
	s.Bhou += v.Bhou
	s.Images += v.Aqian + v.Bhou
	for _, e := range v.Entries {
		switch e.Status {
		case EntryWritten:
			s.EntriesWritten++
		case EntryOutOfRange:
			s.EntriesOutOfRange++
		case EntryDecodeFailed, EntryWriteFailed:
			s.EntriesFailed++
		}
	}
	return s
}

// MarshalJSON 集中约束输出稳定性：nil 切片输出为 []。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	a := Alias(r)
	// 复制一份再补空切片，序列化不改动调用方的 RunReport。
	a.Videos = append([]VideoResult{}, r.Videos...)
	for i := range a.Videos {
		if a.Videos[i].Entries == nil {
			a.Videos[i].Entries = []EntryResult{}
		}
	}
	return json.Marshal(a)
}
