package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/SubShot/internal/domain"
)

// ExpandInputs 把命令行参数展开为有序的时间轴文件列表。
//
// 规则（硬约束）：
// - 文件参数：原样保留（不检查扩展名），保持参数顺序
// - 目录参数：递归查找扩展名属于 timelineExts 的文件，按相对路径排序后追加
// - 永久排除：输出目录 *_Aqian / *_Bhou
// - excludeDirs：来自配置文件，均视为相对目录参数的路径（若是绝对路径，则按绝对路径处理）
// - 同一路径只保留第一次出现
//
// 注意：扫描阶段只做 stat，不读文件内容。
func ExpandInputs(args, timelineExts, excludeDirs []string) ([]string, error) {
	out := make([]string, 0, len(args))
	seen := make(map[string]bool, len(args))
	add := func(p string) {
		p = filepath.Clean(p)
		if seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	for _, arg := range args {
		st, err := os.Stat(arg)
		if err != nil {
			if os.IsNotExist(err) {
				// 不存在的文件参数仍交给编排器，由它报告 missing 而不是整体失败。
				add(arg)
				continue
			}
			return nil, fmt.Errorf("读取输入 %q 失败：%w", arg, err)
		}
		if !st.IsDir() {
			add(arg)
			continue
		}
		files, err := scanDir(arg, timelineExts, excludeDirs)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			add(f)
		}
	}
	return out, nil
}

func scanDir(root string, timelineExts, excludeDirs []string) ([]string, error) {
	root = filepath.Clean(root)
	excluded := buildExcluded(root, excludeDirs)

	type hit struct{ abs, rel string }
	hits := make([]hit, 0, 16)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if d.IsDir() {
			if path != root && (isOutputDir(d.Name()) || isExcluded(path, excluded)) {
				return filepath.SkipDir
			}
			return nil
		}
		if isExcluded(path, excluded) {
			return nil
		}

		if !hasExt(d.Name(), timelineExts) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		hits = append(hits, hit{abs: path, rel: rel})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// 强制稳定输出，避免不同平台/文件系统行为差异带来的不确定性。
	sort.Slice(hits, func(i, j int) bool { return hits[i].rel < hits[j].rel })
	files := make([]string, 0, len(hits))
	for _, h := range hits {
		files = append(files, h.abs)
	}
	return files, nil
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, x := range exts {
		if ext == strings.ToLower(x) {
			return true
		}
	}
	return false
}

func isOutputDir(name string) bool {
	for _, edge := range domain.Edges() {
		if strings.HasSuffix(name, edge.DirSuffix()) {
			return true
		}
	}
	return false
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, len(excludeDirs))
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		// x 是相对路径：相对 root。
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}

	// 排除列表排序后，isExcluded 的行为更可预测（且便于测试）。
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
