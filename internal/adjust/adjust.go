package adjust

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/John-Robertt/SubShot/internal/domain"
	"github.com/John-Robertt/SubShot/internal/timecode"
)

// Mode 是单端的调整方式。
type Mode string

const (
	AdvanceSeconds Mode = "advance_seconds"
	DelaySeconds   Mode = "delay_seconds"
	AdvanceFrames  Mode = "advance_frames"
	DelayFrames    Mode = "delay_frames"
)

// ParseMode 解析调整方式（大小写不敏感）。
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case AdvanceSeconds, DelaySeconds, AdvanceFrames, DelayFrames:
		return m, nil
	default:
		return "", fmt.Errorf("未知调整方式 %q（可选 advance_seconds|delay_seconds|advance_frames|delay_frames）", s)
	}
}

// EdgePolicy 是单端配置：方式 + 幅度（秒数或帧数，取决于方式）。
type EdgePolicy struct {
	Mode      Mode    `json:"mode"`
	Magnitude float64 `json:"value"`
}

// Policy 是 start/end 两端互相独立的调整策略。
//
// 策略在一次运行开始时确定一次，作为值传入；不存在包级可变状态。
type Policy struct {
	Start EdgePolicy `json:"start"`
	End   EdgePolicy `json:"end"`
}

// DefaultPolicy：前轴提前 1 秒，后轴提前 10 帧。
func DefaultPolicy() Policy {
	return Policy{
		Start: EdgePolicy{Mode: AdvanceSeconds, Magnitude: 1},
		End:   EdgePolicy{Mode: AdvanceFrames, Magnitude: 10},
	}
}

// For 返回指定端的配置。
func (p Policy) For(edge domain.Edge) EdgePolicy {
	if edge == domain.EdgeEnd {
		return p.End
	}
	return p.Start
}

// Validate 校验两端配置。
func (p Policy) Validate() error {
	for _, edge := range domain.Edges() {
		ep := p.For(edge)
		if _, err := ParseMode(string(ep.Mode)); err != nil {
			return fmt.Errorf("%s：%w", edge, err)
		}
		if math.IsNaN(ep.Magnitude) || math.IsInf(ep.Magnitude, 0) || ep.Magnitude < 0 {
			return fmt.Errorf("%s：调整幅度必须是非负有限数，实际 %v", edge, ep.Magnitude)
		}
	}
	return nil
}

// Instant 是调整后的时间点及其帧下标。
type Instant struct {
	Millis float64
	Frame  int64
}

// Label 返回 Instant 的展示文本（HH:MM:SS,cc）。
func (in Instant) Label() string { return timecode.Label(in.Millis) }

var ErrInvalidFPS = errors.New("帧率必须为正数")

// OffsetMillis 返回单端配置对应的有符号毫秒偏移（提前为负，延后为正）。
func (ep EdgePolicy) OffsetMillis(fps float64) (float64, error) {
	switch ep.Mode {
	case AdvanceSeconds:
		return -ep.Magnitude * 1000, nil
	case DelaySeconds:
		return ep.Magnitude * 1000, nil
	case AdvanceFrames, DelayFrames:
		if !(fps > 0) {
			return 0, ErrInvalidFPS
		}
		d := ep.Magnitude * 1000 / fps
		if ep.Mode == AdvanceFrames {
			d = -d
		}
		return d, nil
	default:
		return 0, fmt.Errorf("未知调整方式 %q", ep.Mode)
	}
}

// Apply 对原始毫秒值应用 edge 端的策略，返回调整后的毫秒与帧下标 floor(ms*fps/1000)。
//
// 不做任何截断：结果可能为负，或超过视频时长；如何处理交给调用方。
func Apply(rawMs int64, edge domain.Edge, p Policy, fps float64) (Instant, error) {
	if !(fps > 0) {
		return Instant{}, ErrInvalidFPS
	}
	off, err := p.For(edge).OffsetMillis(fps)
	if err != nil {
		return Instant{}, err
	}
	ms := float64(rawMs) + off
	return Instant{Millis: ms, Frame: timecode.FrameIndex(ms, fps)}, nil
}
