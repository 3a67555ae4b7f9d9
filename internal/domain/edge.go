package domain

// Edge 标识时间轴条目的哪一端：start（前轴）或 end（后轴）。
type Edge string

const (
	EdgeStart Edge = "start"
	EdgeEnd   Edge = "end"
)

// Label 返回该端在文件名/目录名/标注文字中使用的固定标签。
func (e Edge) Label() string {
	switch e {
	case EdgeStart:
		return "Aqian"
	case EdgeEnd:
		return "Bhou"
	default:
		return ""
	}
}

// DirSuffix 返回输出目录的后缀（<base>_Aqian / <base>_Bhou）。
func (e Edge) DirSuffix() string {
	if l := e.Label(); l != "" {
		return "_" + l
	}
	return ""
}

// Edges 按固定顺序返回两端（先 start 后 end）。
func Edges() []Edge { return []Edge{EdgeStart, EdgeEnd} }
