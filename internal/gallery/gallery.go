package gallery

import (
	"bytes"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/SubShot/internal/domain"
	"github.com/John-Robertt/SubShot/internal/infra/fsx"
	"github.com/John-Robertt/SubShot/internal/output"
)

// Suffix 是核对页文件名后缀：<dir>/<base>_gallery.html。
const Suffix = "_gallery.html"

// Pair 是同一序号的前后轴截图；缺失的一侧 File 为空。
type Pair struct {
	Index int

	AqianFile  string
	AqianLabel string
	BhouFile   string
	BhouLabel  string

	// Status 是该条目的结果状态（written/decode_failed/...）。
	Status string
}

const skeleton = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title></title>
<style>
body{font-family:sans-serif;margin:16px;background:#111;color:#ddd}
table{border-collapse:collapse}
td,th{border:1px solid #333;padding:4px;vertical-align:top}
td.idx{text-align:right;font-family:monospace}
td.missing{color:#c66}
img{max-width:480px;display:block}
figcaption{font-family:monospace;font-size:12px}
</style>
</head>
<body>
<h1></h1>
<p class="summary"></p>
<table>
<thead><tr><th>#</th><th>Aqian</th><th>Bhou</th></tr></thead>
<tbody></tbody>
</table>
</body>
</html>`

// Path 返回视频结果对应的核对页路径（与输出目录同级）。
func Path(res domain.VideoResult) string {
	return filepath.Join(filepath.Dir(res.AqianDir), res.Base+Suffix)
}

// Write 按本次运行的条目结果配对生成核对页并原子写入，返回页面路径。
// 目录里上一次运行留下的截图不会出现在页面上。
func Write(res domain.VideoResult) (string, error) {
	pairs := FromEntries(res.Entries)
	page, err := Render(res.Base, pairs, filepath.Base(res.AqianDir), filepath.Base(res.BhouDir))
	if err != nil {
		return "", err
	}
	p := Path(res)
	if err := fsx.WriteFileAtomic(filepath.Dir(p), filepath.Base(p), page); err != nil {
		return "", fmt.Errorf("写入核对页失败：%w", err)
	}
	return p, nil
}

// FromEntries 每条时间轴一行；未落盘的一侧留空。
// 标注取自文件名本身，保证与磁盘上的截图一致。
func FromEntries(entries []domain.EntryResult) []Pair {
	pairs := make([]Pair, 0, len(entries))
	for _, e := range entries {
		p := Pair{Index: e.Index, Status: e.Status}
		if n, ok := output.ParseFileName(e.AqianFile); ok && n.Edge == domain.EdgeStart && n.Index == e.Index {
			p.AqianFile, p.AqianLabel = e.AqianFile, n.Label
		}
		if n, ok := output.ParseFileName(e.BhouFile); ok && n.Edge == domain.EdgeEnd && n.Index == e.Index {
			p.BhouFile, p.BhouLabel = e.BhouFile, n.Label
		}
		pairs = append(pairs, p)
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Index < pairs[j].Index })
	return pairs
}

// Render 生成核对页 HTML；图片以相对路径（aqianRel/bhouRel 为目录名）引用。
func Render(title string, pairs []Pair, aqianRel, bhouRel string) ([]byte, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(skeleton))
	if err != nil {
		return nil, err
	}

	doc.Find("title").SetText(title)
	doc.Find("h1").SetText(title)

	complete := 0
	tbody := doc.Find("tbody")
	for _, p := range pairs {
		tbody.AppendHtml(`<tr><td class="idx"></td><td class="aqian"></td><td class="bhou"></td></tr>`)
		row := tbody.Children().Last()
		row.SetAttr("data-index", strconv.Itoa(p.Index))
		if p.Status != "" {
			row.SetAttr("data-status", p.Status)
		}
		row.Find("td.idx").SetText(strconv.Itoa(p.Index))
		fillCell(row.Find("td.aqian"), aqianRel, p.AqianFile, p.AqianLabel)
		fillCell(row.Find("td.bhou"), bhouRel, p.BhouFile, p.BhouLabel)
		if p.AqianFile != "" && p.BhouFile != "" {
			complete++
		}
	}
	doc.Find("p.summary").SetText(fmt.Sprintf("%d 组，完整 %d 组", len(pairs), complete))

	html, err := doc.Html()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(html)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func fillCell(cell *goquery.Selection, dir, file, label string) {
	if file == "" {
		cell.AddClass("missing").SetText("缺失")
		return
	}
	cell.AppendHtml(`<figure><img loading="lazy"><figcaption></figcaption></figure>`)
	cell.Find("img").SetAttr("src", url.PathEscape(dir)+"/"+url.PathEscape(file)).SetAttr("alt", file)
	cell.Find("figcaption").SetText(label)
}
