// Package store は配信ルート配下のファイルへの読み取り専用アクセスを提供します。
//
// 実体は go-billy のファイルシステムで、本番では BoundOS の osfs を使い
// シンボリックリンクを含めてルートの外へ出られないようにしています。
// テストでは memfs を渡せます。
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"syscall"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// Store は配信ファイルへのアクセスを抽象化するインターフェース
type Store interface {
	// Root は配信ルートの絶対パスを返す
	Root() string

	// Stat はルート相対パスのファイル情報を返す
	Stat(name string) (fs.FileInfo, error)

	// ReadFile はルート相対パスのファイル内容をすべて読み込む
	ReadFile(name string) ([]byte, error)
}

// BillyStore は billy.Filesystem をバックエンドにした Store 実装
type BillyStore struct {
	fs   billy.Filesystem
	root string
}

// NewOS はディスク上のディレクトリを配信する Store を作成する
func NewOS(root string) (*BillyStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("配信ルートの解決に失敗: %w", err)
	}
	return New(osfs.New(abs, osfs.WithBoundOS()), abs), nil
}

// New は任意の billy.Filesystem から Store を作成する
func New(bfs billy.Filesystem, root string) *BillyStore {
	return &BillyStore{fs: bfs, root: root}
}

// Root は配信ルートの絶対パスを返す
func (s *BillyStore) Root() string {
	return s.root
}

// Stat はルート相対パスのファイル情報を返す
func (s *BillyStore) Stat(name string) (fs.FileInfo, error) {
	return s.fs.Stat(name)
}

// ReadFile はルート相対パスのファイル内容をすべて読み込む
func (s *BillyStore) ReadFile(name string) ([]byte, error) {
	return util.ReadFile(s.fs, name)
}

// IsRegularFile は name が通常ファイルとして存在するかどうかを返す
//
// 存在しない場合は (false, nil)。それ以外の Stat エラーはそのまま返す
// （パーミッションエラーやルート外を指すシンボリックリンクなど）
func IsRegularFile(s Store, name string) (bool, error) {
	info, err := s.Stat(name)
	if err != nil {
		if isNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
