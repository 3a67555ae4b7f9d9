package scan

import (
	"os"
	"path/filepath"
	"testing"
)

var exts = []string{".srt", ".txt"}

func TestExpandInputs_SkipsOutputDirs(t *testing.T) {
	root := t.TempDir()

	// 输出目录里的文件永远不会被当作时间轴。
	touch(t, filepath.Join(root, "ep01_Aqian", "notes.txt"))
	touch(t, filepath.Join(root, "ep01_Bhou", "x.srt"))

	touch(t, filepath.Join(root, "ep01.srt"))
	touch(t, filepath.Join(root, "ep01.mp4"))

	got, err := ExpandInputs([]string{root}, exts, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 || got[0] != filepath.Join(root, "ep01.srt") {
		t.Fatalf("期望只有 ep01.srt，实际 %v", got)
	}
}

func TestExpandInputs_SortedAndExcluded(t *testing.T) {
	root := t.TempDir()

	touch(t, filepath.Join(root, "b", "02.srt"))
	touch(t, filepath.Join(root, "a", "10.TXT"))
	touch(t, filepath.Join(root, "temp", "03.srt"))

	got, err := ExpandInputs([]string{root}, exts, []string{"temp"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := []string{filepath.Join(root, "a", "10.TXT"), filepath.Join(root, "b", "02.srt")}
	if len(got) != len(want) {
		t.Fatalf("期望 %v，实际 %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("第 %d 个期望 %q，实际 %q", i, want[i], got[i])
		}
	}
}

func TestExpandInputs_FilesKeepArgOrderAndDedup(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "z.srt")
	b := filepath.Join(root, "a.srt")
	missing := filepath.Join(root, "missing.srt")
	touch(t, a)
	touch(t, b)

	got, err := ExpandInputs([]string{a, b, missing, a}, exts, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := []string{a, b, missing}
	if len(got) != len(want) {
		t.Fatalf("期望 %v，实际 %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("第 %d 个期望 %q，实际 %q", i, want[i], got[i])
		}
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
