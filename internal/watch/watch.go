// Package watch は配信ルート配下の変更を検出してログに出力します。
//
// 内容の再生成やブラウザへの通知は行いません。どのファイルが変わったかを
// 開発者が確認できるようにするだけです。
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher は配信ルートを再帰的に監視する
type Watcher struct {
	root    string
	logger  logrus.FieldLogger
	watcher *fsnotify.Watcher

	// OnChange はテストや呼び出し側が変更を受け取るためのフック（任意）
	OnChange func(rel string, op fsnotify.Op)

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New は root 以下のディレクトリをすべて登録した Watcher を作成する
func New(root string, logger logrus.FieldLogger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("ファイル監視の作成に失敗: %w", err)
	}

	w := &Watcher{root: root, logger: logger, watcher: fw}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Start は監視ループを開始する。ctx がキャンセルされるか Stop が呼ばれると終了する
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.loop(ctx)
	w.logger.Infof("ファイル監視を開始しました: %s", w.root)
}

// Stop は監視を停止し、ループの終了を待つ
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("ファイル監視でエラーが発生しました: %v", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		rel = event.Name
	}
	rel = filepath.ToSlash(rel)

	// 新しく作られたディレクトリも監視対象に加える
	if event.Has(fsnotify.Create) {
		if err := w.addTree(event.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			w.logger.Warnf("監視対象の追加に失敗: %s: %v", rel, err)
		}
	}

	w.logger.WithField("op", strings.ToLower(event.Op.String())).Infof("変更を検出しました: %s", rel)
	if w.OnChange != nil {
		w.OnChange(rel, event.Op)
	}
}

// addTree は path 以下のディレクトリを監視対象に加える。隠しディレクトリは除外する
func (w *Watcher) addTree(path string) error {
	return filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("監視対象の追加に失敗 (%s): %w", p, err)
		}
		return nil
	})
}
