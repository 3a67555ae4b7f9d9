package output

import (
	"fmt"
	"path/filepath"

	"github.com/John-Robertt/SubShot/internal/domain"
	"github.com/John-Robertt/SubShot/internal/infra/fsx"
)

// Writer 把同一视频的截图分别写入 Aqian/Bhou 两个目录。
type Writer struct {
	AqianDir string
	BhouDir  string
}

// NewWriter 按 VideoJob 的目录约定构造 Writer。
func NewWriter(job domain.VideoJob) Writer {
	return Writer{AqianDir: job.AqianDir, BhouDir: job.BhouDir}
}

func (w Writer) dir(edge domain.Edge) string {
	if edge == domain.EdgeEnd {
		return w.BhouDir
	}
	return w.AqianDir
}

// Prepare 幂等地创建两个输出目录；在第一次写入之前调用一次。
func (w Writer) Prepare() error {
	for _, edge := range domain.Edges() {
		if err := fsx.EnsureDir(w.dir(edge)); err != nil {
			return fmt.Errorf("创建 %s 目录失败：%w", edge.Label(), err)
		}
	}
	return nil
}

// Write 原子写入一张截图（同名覆盖），返回最终路径。
func (w Writer) Write(edge domain.Edge, name string, data []byte) (string, error) {
	dir := w.dir(edge)
	if err := fsx.WriteFileAtomic(dir, name, data); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
