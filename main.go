// Package main は開発用静的ファイルサーバーのコマンドです
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"modserve/internal/config"
	"modserve/internal/logging"
	"modserve/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	defaults := config.Default()

	// コマンドラインオプション
	var (
		configPath    = flag.String("config", "", "設定ファイル (.yaml / .yml / .toml)")
		host          = flag.String("host", defaults.Server.Host, "サーバーのホスト (デフォルト: 全インターフェース)")
		port          = flag.Int("port", defaults.Server.Port, "優先ポート")
		fallbackPorts = flag.String("fallback-ports", joinPorts(defaults.Server.FallbackPorts), "優先ポートが使用中のときに試すポート (カンマ区切り)")
		dir           = flag.String("dir", defaults.Serve.Root, "配信するディレクトリ")
		index         = flag.String("index", defaults.Serve.IndexFile, "\"/\" に対応するファイル")
		redirect      = flag.String("redirect", defaults.Serve.RedirectFile, "存在すれば \"/\" をリダイレクトするファイル")
		logFile       = flag.String("log-file", defaults.Log.File, "ログを追記するファイル (空文字で無効)")
		logLevel      = flag.String("log-level", defaults.Log.Level, "ログレベル (debug, info, warn, error)")
		watchRoot     = flag.Bool("watch", false, "配信ディレクトリの変更をログに出力")
		help          = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("modserve")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  modserve [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		return 0
	}

	// 設定を読み込む
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗しました: %v\n", err)
		return 1
	}

	// 明示的に指定されたオプションだけで設定を上書き
	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Server.Host = *host
		case "port":
			cfg.Server.Port = *port
		case "fallback-ports":
			ports, err := config.ParsePorts(*fallbackPorts)
			if err != nil {
				flagErr = err
				return
			}
			cfg.Server.FallbackPorts = ports
		case "dir":
			cfg.Serve.Root = *dir
		case "index":
			cfg.Serve.IndexFile = *index
		case "redirect":
			cfg.Serve.RedirectFile = *redirect
		case "log-file":
			cfg.Log.File = *logFile
		case "log-level":
			cfg.Log.Level = *logLevel
		case "watch":
			cfg.Serve.Watch = *watchRoot
		}
	})
	if flagErr != nil {
		fmt.Fprintf(os.Stderr, "オプションが不正です: %v\n", flagErr)
		return 1
	}
	if err := cfg.Normalize(); err != nil {
		fmt.Fprintf(os.Stderr, "設定の読み込みに失敗しました: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "設定が不正です: %v\n", err)
		return 1
	}

	logger, closer, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ログの初期化に失敗しました: %v\n", err)
		return 1
	}
	defer closer.Close()

	printBanner(cfg)

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Errorf("サーバーの作成に失敗しました: %v", err)
		return 1
	}

	// サーバーを起動（シグナルを受信するまで戻らない）
	if err := srv.Start(context.Background()); err != nil {
		logger.Errorf("サーバーの起動に失敗しました: %v", err)
		return 1
	}
	return 0
}

func printBanner(cfg *config.Config) {
	title := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.Faint)

	title.Println("modserve")
	dim.Printf("  root:  %s\n", cfg.Serve.Root)
	dim.Printf("  ports: %v\n", cfg.Candidates())
	fmt.Println()
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}
