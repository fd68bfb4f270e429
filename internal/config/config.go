package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server ServerConfig `yaml:"server" toml:"server"`
	Serve  ServeConfig  `yaml:"serve" toml:"serve"`
	Log    LogConfig    `yaml:"log" toml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host          string `yaml:"host" toml:"host"`                     // リッスンするホスト（空なら全インターフェース）
	Port          int    `yaml:"port" toml:"port"`                     // 優先ポート
	FallbackPorts []int  `yaml:"fallback_ports" toml:"fallback_ports"` // 優先ポートが使えないときに順に試すポート

	// タイムアウト設定（0 は無制限）
	ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`

	// StatusPath はステータスエンドポイントのパス。空なら無効
	StatusPath string `yaml:"status_path" toml:"status_path"`
}

// ServeConfig は静的ファイル配信の設定
type ServeConfig struct {
	Root         string `yaml:"root" toml:"root"`                   // 配信ルートディレクトリ
	IndexFile    string `yaml:"index_file" toml:"index_file"`       // "/" に対応するドキュメント
	RedirectFile string `yaml:"redirect_file" toml:"redirect_file"` // 存在すれば "/" をここへリダイレクト
	SniffUnknown bool   `yaml:"sniff_unknown" toml:"sniff_unknown"` // 拡張子で判定できない場合に内容から推定する
	Watch        bool   `yaml:"watch" toml:"watch"`                 // 配信ルートの変更をログに出す
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
	File  string `yaml:"file" toml:"file"` // 追記するログファイル。空ならコンソールのみ
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "",
			Port:            5555,
			FallbackPorts:   []int{8000, 8080, 3000},
			ShutdownTimeout: 5 * time.Second,
			StatusPath:      "/__devserver/status",
		},
		Serve: ServeConfig{
			Root:         ".",
			IndexFile:    "index.html",
			RedirectFile: "server-redirect.html",
		},
		Log: LogConfig{
			Level: "info",
			File:  "server_logs.txt",
		},
	}
}

// Load は設定を読み込む
//
// 優先順位: デフォルト < 設定ファイル < .env < 環境変数
// path が空の場合は設定ファイルを読まない。
// 呼び出し側で上書きした後に Validate で検証すること
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	// .env は任意
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".env の読み込みに失敗: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile は拡張子に応じて YAML または TOML の設定ファイルを読み込む
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	case ".toml":
		_, err = toml.Decode(string(data), c)
	default:
		return fmt.Errorf("未対応の設定ファイル形式: %s", path)
	}
	if err != nil {
		return fmt.Errorf("設定ファイルの解析に失敗 (%s): %w", path, err)
	}
	return nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() error {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Serve.Root = getEnvOrDefault("SERVE_ROOT", c.Serve.Root)
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnvOrDefault("LOG_FILE", c.Log.File)

	if value := os.Getenv("FALLBACK_PORTS"); value != "" {
		ports, err := ParsePorts(value)
		if err != nil {
			return fmt.Errorf("FALLBACK_PORTS が不正です: %w", err)
		}
		c.Server.FallbackPorts = ports
	}
	return nil
}

// Normalize は配信ルートを絶対パスに変換する
func (c *Config) Normalize() error {
	root := c.Serve.Root
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("配信ルートの解決に失敗: %w", err)
	}
	c.Serve.Root = abs
	return nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if err := validatePort(c.Server.Port); err != nil {
		return err
	}
	for _, p := range c.Server.FallbackPorts {
		if err := validatePort(p); err != nil {
			return fmt.Errorf("フォールバックポート: %w", err)
		}
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("シャットダウンタイムアウトが負の値です: %s", c.Server.ShutdownTimeout)
	}
	if c.Server.StatusPath != "" && !strings.HasPrefix(c.Server.StatusPath, "/") {
		return fmt.Errorf("ステータスパスは / で始まる必要があります: %q", c.Server.StatusPath)
	}

	info, err := os.Stat(c.Serve.Root)
	if err != nil {
		return fmt.Errorf("配信ルートが見つかりません: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("配信ルートがディレクトリではありません: %s", c.Serve.Root)
	}

	if !isPlainName(c.Serve.IndexFile) {
		return fmt.Errorf("無効なインデックスファイル名: %q", c.Serve.IndexFile)
	}
	if c.Serve.RedirectFile != "" && !isPlainName(c.Serve.RedirectFile) {
		return fmt.Errorf("無効なリダイレクトファイル名: %q", c.Serve.RedirectFile)
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("無効なログレベル: %w", err)
	}

	return nil
}

// Candidates は試行順のポート候補（優先ポート + フォールバック）を返す
func (c *Config) Candidates() []int {
	ports := make([]int, 0, len(c.Server.FallbackPorts)+1)
	ports = append(ports, c.Server.Port)
	return append(ports, c.Server.FallbackPorts...)
}

// ServerAddress は優先ポートのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// ParsePorts はカンマ区切りのポート一覧を解析する
func ParsePorts(s string) ([]int, error) {
	var ports []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("ポート番号ではありません: %q", part)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func validatePort(p int) error {
	if p < 1 || p > 65535 {
		return fmt.Errorf("無効なポート番号: %d", p)
	}
	return nil
}

// isPlainName はディレクトリ要素を含まないファイル名かどうかを返す
func isPlainName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
