package timecode

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Separator 是时间行中两个时间码之间的字面分隔符。
const Separator = " --> "

// Entry 是时间轴中的一条 (start, end)。
//
// Index 从 1 开始，按文件顺序递增，决定输出文件名中的序号。
type Entry struct {
	Index int
	Start Timecode
	End   Timecode
	// Line 是时间行在文件中的行号（从 1 开始），只用于诊断。
	Line int
}

// Reversed 报告 end 是否早于 start（文件本身不保证 start ≤ end）。
func (e Entry) Reversed() bool { return e.End.TotalMillis() < e.Start.TotalMillis() }

// LineError 表示某一时间行格式错误；整份时间轴因此失败。
type LineError struct {
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("第 %d 行时间轴格式错误 %q：%v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// ParseTimeline 解析两行一组的时间轴：每组第 1 行是标签（忽略），第 2 行是
// "HH:MM:SS,mmm --> HH:MM:SS,mmm"。末尾只有标签没有时间行的残组会被忽略。
func ParseTimeline(r io.Reader) ([]Entry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	entries := make([]Entry, 0, 64)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if lineNo%2 == 1 {
			continue
		}

		raw := strings.TrimRight(sc.Text(), "\r")
		e, err := parseTimingLine(strings.TrimSpace(raw))
		if err != nil {
			return nil, &LineError{Line: lineNo, Text: raw, Err: err}
		}
		e.Index = len(entries) + 1
		e.Line = lineNo
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseTimingLine(line string) (Entry, error) {
	// 文件第一行可能带 UTF-8 BOM；这里只会出现在标签行，但时间行也做兜底。
	line = strings.TrimPrefix(line, "\ufeff")

	parts := strings.Split(line, Separator)
	if len(parts) != 2 {
		return Entry{}, fmt.Errorf("缺少分隔符 %q", strings.TrimSpace(Separator))
	}
	start, err := Parse(parts[0])
	if err != nil {
		return Entry{}, err
	}
	end, err := Parse(parts[1])
	if err != nil {
		return Entry{}, err
	}
	return Entry{Start: start, End: end}, nil
}

// ReadTimelineFile 打开并解析时间轴文件。
func ReadTimelineFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseTimeline(f)
}
