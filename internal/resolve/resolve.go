// Package resolve はリクエストパスを配信ルート内のファイルへ対応付けます。
//
// ルートパス "/" はリダイレクト用ドキュメントが存在すればそこへのリダイレクト、
// 存在しなければインデックスドキュメントに対応します。
// ルートの外へ出る ".." を含むパスは ErrOutsideRoot で拒否します。
package resolve

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"modserve/internal/store"
)

// ErrOutsideRoot はリクエストパスが配信ルートの外を指す場合のエラー
var ErrOutsideRoot = errors.New("path escapes serving root")

// Kind は解決結果の種類
type Kind int

const (
	KindFile     Kind = iota // ファイルを返す
	KindRedirect             // Location へリダイレクトする
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindRedirect:
		return "redirect"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Resolution は1リクエスト分の解決結果
type Resolution struct {
	Kind        Kind
	RequestPath string // 受信したリクエストパス
	Name        string // ルート相対のスラッシュ区切りパス（KindFile のみ）
	FilePath    string // ログ用の絶対パス（KindFile のみ）
	Location    string // リダイレクト先（KindRedirect のみ）
}

// Resolver はリクエストパスを解決するインターフェース
type Resolver interface {
	Resolve(requestPath string) (Resolution, error)
}

// Options は PathResolver の設定
type Options struct {
	IndexFile    string // "/" に対応するドキュメント名
	RedirectFile string // 空ならリダイレクトしない
}

// PathResolver は Store を使ってリダイレクトドキュメントの有無を確認する Resolver 実装
type PathResolver struct {
	store store.Store
	opts  Options
}

// New は新しい PathResolver を作成する
func New(s store.Store, opts Options) *PathResolver {
	if opts.IndexFile == "" {
		opts.IndexFile = "index.html"
	}
	return &PathResolver{store: s, opts: opts}
}

// Resolve はリクエストパスを解決する
//
// ファイルの存在確認は行わない（リダイレクトドキュメントを除く）
func (r *PathResolver) Resolve(requestPath string) (Resolution, error) {
	res := Resolution{Kind: KindFile, RequestPath: requestPath}

	if requestPath == "/" || requestPath == "" {
		if r.opts.RedirectFile != "" {
			ok, err := store.IsRegularFile(r.store, r.opts.RedirectFile)
			if err == nil && ok {
				res.Kind = KindRedirect
				res.Location = "/" + r.opts.RedirectFile
				return res, nil
			}
		}
		res.Name = r.opts.IndexFile
		res.FilePath = filepath.Join(r.store.Root(), filepath.FromSlash(res.Name))
		return res, nil
	}

	name, err := Clean(requestPath)
	if err != nil {
		return res, err
	}
	res.Name = name
	res.FilePath = filepath.Join(r.store.Root(), filepath.FromSlash(name))
	return res, nil
}

// Clean はリクエストパスをルート相対のスラッシュ区切りパスへ正規化する
//
// 先頭の "/" を取り除き、"." と空の要素を捨てる。".." がルートより上へ
// 遡る場合、または結果がローカルパスとして不正な場合は ErrOutsideRoot を返す。
// 結果が空（ルートそのもの）の場合は "." を返す
func Clean(requestPath string) (string, error) {
	if strings.ContainsRune(requestPath, 0) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, requestPath)
	}

	rel := strings.TrimLeft(requestPath, "/")
	segments := make([]string, 0, strings.Count(rel, "/")+1)
	for _, seg := range strings.Split(rel, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(segments) == 0 {
				return "", fmt.Errorf("%w: %q", ErrOutsideRoot, requestPath)
			}
			segments = segments[:len(segments)-1]
		default:
			segments = append(segments, seg)
		}
	}

	if len(segments) == 0 {
		return ".", nil
	}

	name := path.Join(segments...)
	// Windows の "C:" やバックスラッシュ区切りの ".." などを弾く
	if !filepath.IsLocal(filepath.FromSlash(name)) || strings.Contains(name, `\`) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, requestPath)
	}
	return name, nil
}
