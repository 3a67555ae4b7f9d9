package timecode

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// Timecode 是 HH:MM:SS,mmm 形式的时间点。
//
// 不变量：各字段非负；Minutes/Seconds ∈ [0,59]；Millis ∈ [0,999]。
type Timecode struct {
	Hours   int
	Minutes int
	Seconds int
	Millis  int
}

const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
)

var (
	// 时间轴文件中的严格格式：毫秒必须是 3 位。
	strictRE = regexp.MustCompile(`^(\d{2,}):([0-5]\d):([0-5]\d),(\d{3})$`)
	// 展示格式（文件名/标注）：亚秒只保留 2 位（厘秒）。
	labelRE = regexp.MustCompile(`^(\d{2,}):([0-5]\d):([0-5]\d),(\d{2})$`)
)

// Parse 解析严格的 HH:MM:SS,mmm。
func Parse(s string) (Timecode, error) {
	m := strictRE.FindStringSubmatch(s)
	if m == nil {
		return Timecode{}, fmt.Errorf("时间码格式无效：%q（期望 HH:MM:SS,mmm）", s)
	}
	return fromParts(m[1], m[2], m[3], m[4], 1)
}

// ParseLabel 解析 Label 生成的展示格式 HH:MM:SS,cc，返回毫秒数。
// 由于展示格式只有厘秒精度：ParseLabel(Label(ms)) == ms - ms%10。
func ParseLabel(s string) (int64, error) {
	m := labelRE.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("展示时间码格式无效：%q（期望 HH:MM:SS,cc）", s)
	}
	tc, err := fromParts(m[1], m[2], m[3], m[4], 10)
	if err != nil {
		return 0, err
	}
	return tc.TotalMillis(), nil
}

func fromParts(h, m, s, frac string, fracScale int) (Timecode, error) {
	hh, err := strconv.Atoi(h)
	if err != nil {
		return Timecode{}, fmt.Errorf("小时无效：%q：%w", h, err)
	}
	// 其余字段已由正则保证为纯数字。
	mm, _ := strconv.Atoi(m)
	ss, _ := strconv.Atoi(s)
	ff, _ := strconv.Atoi(frac)
	return Timecode{Hours: hh, Minutes: mm, Seconds: ss, Millis: ff * fracScale}, nil
}

// TotalMillis 返回总毫秒数。
func (t Timecode) TotalMillis() int64 {
	return int64(t.Hours)*msPerHour +
		int64(t.Minutes)*msPerMinute +
		int64(t.Seconds)*msPerSecond +
		int64(t.Millis)
}

// FromMillis 把非负毫秒数拆回 Timecode；负数按 0 处理。
func FromMillis(ms int64) Timecode {
	if ms < 0 {
		ms = 0
	}
	h := ms / msPerHour
	ms %= msPerHour
	m := ms / msPerMinute
	ms %= msPerMinute
	s := ms / msPerSecond
	ms %= msPerSecond
	return Timecode{Hours: int(h), Minutes: int(m), Seconds: int(s), Millis: int(ms)}
}

// String 返回规范文本 HH:MM:SS,mmm（无损）。
func (t Timecode) String() string {
	return fmt.Sprintf("%02d:%02d:%02d,%03d", t.Hours, t.Minutes, t.Seconds, t.Millis)
}

// Label 把（可能带小数的）毫秒值渲染为 HH:MM:SS,cc。
//
// 只用于标注文字与文件名：亚秒部分按整数除以 10 截断为厘秒，计算仍使用完整毫秒。
// 负值带前导 '-'。
func Label(ms float64) string {
	sign := ""
	if ms < 0 {
		sign = "-"
		ms = -ms
	}
	t := FromMillis(int64(math.Floor(ms)))
	return fmt.Sprintf("%s%02d:%02d:%02d,%02d", sign, t.Hours, t.Minutes, t.Seconds, t.Millis/10)
}

// frameEpsilon 吸收浮点误差：5666.666…ms@30fps 应落在第 170 帧而不是 169。
const frameEpsilon = 1e-6

// FrameIndex 返回时间点对应的帧下标：floor(ms*fps/1000)。
func FrameIndex(ms, fps float64) int64 {
	return int64(math.Floor(ms*fps/msPerSecond + frameEpsilon))
}

// FrameMillis 是 FrameIndex 的反向：帧下标对应的起始毫秒。
func FrameMillis(frame int64, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(frame) * msPerSecond / fps
}
