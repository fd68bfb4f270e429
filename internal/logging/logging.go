// Package logging はコンソールと任意のログファイルへ出力する logrus ロガーを組み立てます。
//
// ロガーはプロセス全体で1つだけ作成し、各コンポーネントには
// logrus.FieldLogger として明示的に渡します。
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"modserve/internal/config"
)

const timestampFormat = "2006-01-02 15:04:05,000"

// New は設定に従ってロガーを作成する
//
// 返される io.Closer はログファイルを閉じる。ファイル出力が無効でも nil ではない
func New(cfg config.LogConfig, console io.Writer) (*logrus.Logger, io.Closer, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("ログレベルの解析に失敗: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(console)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
	})

	if cfg.File == "" {
		return logger, nopCloser{}, nil
	}

	f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("ログファイルを開けません: %w", err)
	}
	logger.AddHook(NewFileHook(f))

	return logger, f, nil
}

// FileHook は全レベルのエントリを色なしでファイルへ書き出す logrus フック
type FileHook struct {
	mu        sync.Mutex
	w         io.Writer
	formatter logrus.Formatter
}

// NewFileHook は w へ書き出すフックを作成する
func NewFileHook(w io.Writer) *FileHook {
	return &FileHook{
		w: w,
		formatter: &logrus.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: timestampFormat,
		},
	}
}

// Levels はフックが受け取るレベルを返す
func (h *FileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire はエントリを整形して書き込む
func (h *FileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(line)
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
