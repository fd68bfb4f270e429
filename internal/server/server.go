package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"modserve/internal/config"
	"modserve/internal/contenttype"
	"modserve/internal/resolve"
	"modserve/internal/store"
	"modserve/internal/watch"
)

// State はサーバーのライフサイクル状態
type State int32

const (
	StateIdle         State = iota // 起動前
	StateListening                 // 接続受付中
	StateShuttingDown              // 停止処理中
	StateStopped                   // 停止済み
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	logger     logrus.FieldLogger
	engine     *gin.Engine
	httpServer *http.Server
	acquirer   *Acquirer
	store      store.Store

	started  atomic.Bool
	state    atomic.Int32
	port     atomic.Int32
	ready    chan struct{}

	mu       sync.Mutex
	listener net.Listener
	watcher  *watch.Watcher

	// signals は受信するシグナル。テストで差し替えられる
	signals []os.Signal

	shutdownOnce sync.Once
	shutdownErr  error
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, logger logrus.FieldLogger) (*Server, error) {
	st, err := store.NewOS(cfg.Serve.Root)
	if err != nil {
		return nil, err
	}
	return NewWithStore(cfg, st, contenttype.Default(), logger), nil
}

// NewWithStore は任意の Store と Classifier を使う Server を作成する
func NewWithStore(cfg *config.Config, st store.Store, cl contenttype.Classifier, logger logrus.FieldLogger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config:   cfg,
		logger:   logger,
		engine:   gin.New(),
		acquirer: NewAcquirer(cfg.Server.Host, logger),
		store:    st,
		ready:    make(chan struct{}),
		signals:  []os.Signal{syscall.SIGINT, syscall.SIGTERM},
	}

	// 末尾スラッシュの自動リダイレクトはミドルウェアを通らず固定ヘッダーが付かないため無効にする
	s.engine.RedirectTrailingSlash = false

	resolver := resolve.New(st, resolve.Options{
		IndexFile:    cfg.Serve.IndexFile,
		RedirectFile: cfg.Serve.RedirectFile,
	})
	files := NewFileHandler(resolver, cl, st, logger, cfg.Serve.SniffUnknown)
	s.setupRoutes(files)

	s.httpServer = &http.Server{
		Handler:      s.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes(files *FileHandler) {
	s.engine.Use(accessLog(s.logger), recovery(s.logger))

	// ステータスエンドポイント
	if s.config.Server.StatusPath != "" {
		s.engine.GET(s.config.Server.StatusPath, devHeaders(), s.handleStatus)
	}

	// それ以外はすべて静的ファイル
	s.engine.NoRoute(files.Handlers()...)
}

// Handler はリクエスト処理チェーンを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// handleStatus はサーバーの状態をJSONで返す
func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:    s.State().String(),
		Port:      s.Port(),
		Root:      s.store.Root(),
		Timestamp: time.Now(),
	})
}

// State は現在の状態を返す
func (s *Server) State() State {
	return State(s.state.Load())
}

// Port はバインドしたポートを返す。Listening になる前は 0
func (s *Server) Port() int {
	return int(s.port.Load())
}

// Ready は Listening に遷移したときに閉じられるチャンネルを返す
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Start はサーバーを起動する
//
// シグナルの受信または ctx のキャンセルで停止し nil を返す。
// どのポートにもバインドできない場合は ErrNoAvailablePort を返す
func (s *Server) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("サーバーは既に起動されています: %s", s.State())
	}

	// シグナルハンドリングはバインド前に登録する
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, s.signals...)
	defer signal.Stop(sigCh)

	ln, err := s.acquirer.Acquire(ctx, s.config.Server.Port, s.config.Server.FallbackPorts)
	if err != nil {
		s.state.Store(int32(StateStopped))
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.port.Store(int32(ListenerPort(ln)))

	s.logger.Infof("Server started at http://localhost:%d", s.Port())
	s.logger.Infof("Serving files from: %s", s.store.Root())
	s.logger.Info("Press Ctrl+C to stop the server")

	if s.config.Serve.Watch {
		s.startWatcher(ctx)
	}

	// サーバーを別ゴルーチンで起動
	serveCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveCh <- fmt.Errorf("サーバーの実行に失敗: %w", err)
		}
		close(serveCh)
	}()

	s.state.CompareAndSwap(int32(StateIdle), int32(StateListening))
	close(s.ready)

	// コンテキストかシグナルを待つ
	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.logger.Infof("シグナルを受信しました: %v", sig)
	case err, ok := <-serveCh:
		if ok {
			runErr = err
			s.logger.Errorf("%v", err)
		}
	}

	if err := s.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown は新しい接続の受付を止め、リスナーを閉じる
//
// 処理中のリクエストは shutdown_timeout まで待ち、それを過ぎたら強制的に切断する
func (s *Server) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.state.Store(int32(StateShuttingDown))
		s.logger.Info("Server stopping...")

		s.mu.Lock()
		watcher, listener := s.watcher, s.listener
		s.mu.Unlock()

		if watcher != nil {
			if err := watcher.Stop(); err != nil {
				s.logger.Warnf("ファイル監視の停止に失敗: %v", err)
			}
		}

		timeout := s.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warnf("グレースフルシャットダウンがタイムアウトしました: %v", err)
			if cerr := s.httpServer.Close(); cerr != nil {
				s.shutdownErr = fmt.Errorf("サーバーのシャットダウンに失敗: %w", cerr)
			}
		}
		// Serve が始まる前に停止した場合に備えてリスナーを明示的に閉じる
		if listener != nil {
			if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				s.logger.Debugf("リスナーのクローズ: %v", err)
			}
		}

		s.state.Store(int32(StateStopped))
		s.logger.Info("Server stopped")
	})
	return s.shutdownErr
}

func (s *Server) startWatcher(ctx context.Context) {
	w, err := watch.New(s.store.Root(), s.logger)
	if err != nil {
		// 監視は補助機能のため起動は継続する
		s.logger.Warnf("ファイル監視を開始できません: %v", err)
		return
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	w.Start(ctx)
}
