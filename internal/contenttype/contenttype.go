// Package contenttype はファイル名から Content-Type を決定します。
//
// ES モジュールの JavaScript と JSON はブラウザが厳密に MIME タイプを
// 確認するため、OS の mime.types に依存せず固定値を返します。
// それ以外は mime.TypeByExtension にフォールバックします。
package contenttype

import (
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// OctetStream は判定できない場合の Content-Type
const OctetStream = "application/octet-stream"

// Classifier はファイル名から Content-Type を返すインターフェース
type Classifier interface {
	Classify(name string) string
}

// Table は拡張子ごとの固定値を持つ Classifier 実装
//
// 作成後は変更されないため、複数のゴルーチンから同時に使える
type Table struct {
	overrides map[string]string
	fallback  func(ext string) string
}

// DefaultOverrides は固定で返す拡張子と Content-Type の対応
func DefaultOverrides() map[string]string {
	return map[string]string{
		".js":   "text/javascript; charset=UTF-8",
		".mjs":  "text/javascript; charset=UTF-8",
		".json": "application/json; charset=UTF-8",
		".html": "text/html; charset=UTF-8",
		".htm":  "text/html; charset=UTF-8",
		".css":  "text/css; charset=UTF-8",
	}
}

// New は overrides を優先し、それ以外を mime.TypeByExtension で判定する Table を作成する
//
// overrides のキーは小文字に正規化される
func New(overrides map[string]string) *Table {
	t := &Table{
		overrides: make(map[string]string, len(overrides)),
		fallback:  mime.TypeByExtension,
	}
	for ext, typ := range overrides {
		t.overrides[strings.ToLower(ext)] = typ
	}
	return t
}

// Default はデフォルトの対応表を持つ Table を返す
func Default() *Table {
	return New(DefaultOverrides())
}

// Classify は name の最後の要素の拡張子から Content-Type を返す
func (t *Table) Classify(name string) string {
	ext := strings.ToLower(Ext(name))
	if ext == "" {
		return OctetStream
	}
	if typ, ok := t.overrides[ext]; ok {
		return typ
	}
	if typ := t.fallback(ext); typ != "" {
		return typ
	}
	return OctetStream
}

// Ext は最後のパス要素の拡張子（先頭の "." を含む）を返す
//
// "/" と "\" のどちらも区切りとして扱う
func Ext(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return path.Ext(name)
}

// Sniff はファイル内容から Content-Type を推定する
func Sniff(data []byte) string {
	return mimetype.Detect(data).String()
}
