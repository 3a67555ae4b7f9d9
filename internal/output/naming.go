package output

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/John-Robertt/SubShot/internal/domain"
	"github.com/John-Robertt/SubShot/internal/timecode"
)

// Ext 是截图文件的固定扩展名。
const Ext = ".jpg"

// PadWidth 返回序号补 0 的位数：total 的十进制位数（至少 1）。
func PadWidth(total int) int {
	if total < 1 {
		return 1
	}
	return len(strconv.Itoa(total))
}

// PadIndex 按 total 的位数给 index 补 0。
func PadIndex(index, total int) string {
	return fmt.Sprintf("%0*d", PadWidth(total), index)
}

// FileName 生成 {序号}_{Aqian|Bhou}_{时间码}.jpg；时间码中的 ':' 替换为 '-'。
//
// 同一视频内序号唯一且等宽，所以不会重名，字典序与序号顺序一致。
func FileName(index, total int, edge domain.Edge, label string) string {
	return PadIndex(index, total) + "_" + edge.Label() + "_" + strings.ReplaceAll(label, ":", "-") + Ext
}

// Name 是从文件名反解出的信息。
type Name struct {
	Index  int
	Edge   domain.Edge
	Label  string // HH:MM:SS,cc
	Millis int64
}

var nameRE = regexp.MustCompile(`^(\d+)_(Aqian|Bhou)_(-?\d{2,}-\d{2}-\d{2},\d{2})\.jpg$`)

// ParseFileName 是 FileName 的反向（核对页用它从文件名取标注）。
func ParseFileName(name string) (Name, bool) {
	m := nameRE.FindStringSubmatch(name)
	if m == nil {
		return Name{}, false
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return Name{}, false
	}
	edge := domain.EdgeStart
	if m[2] == domain.EdgeEnd.Label() {
		edge = domain.EdgeEnd
	}

	label := strings.Replace(m[3], "-", ":", 2)
	if strings.HasPrefix(m[3], "-") {
		// 负时间（range=pass 时可能出现）：首个 '-' 是符号。
		label = "-" + strings.Replace(m[3][1:], "-", ":", 2)
	}
	ms, err := timecode.ParseLabel(strings.TrimPrefix(label, "-"))
	if err != nil {
		return Name{}, false
	}
	if strings.HasPrefix(label, "-") {
		ms = -ms
	}
	return Name{Index: idx, Edge: edge, Label: label, Millis: ms}, true
}
