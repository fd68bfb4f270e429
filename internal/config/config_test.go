package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// clearEnv は設定に影響する環境変数を空にする
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"SERVER_HOST", "PORT", "FALLBACK_PORTS", "SERVE_ROOT", "LOG_LEVEL", "LOG_FILE"} {
		t.Setenv(key, "")
	}
}

// TestConfigLoad はデフォルト設定の読み込みをテストする
func TestConfigLoad(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Port != 5555 {
		t.Errorf("優先ポートが一致しません: got %d, want 5555", cfg.Server.Port)
	}
	if want := []int{8000, 8080, 3000}; !reflect.DeepEqual(cfg.Server.FallbackPorts, want) {
		t.Errorf("フォールバックポートが一致しません: got %v, want %v", cfg.Server.FallbackPorts, want)
	}
	if cfg.Serve.IndexFile != "index.html" {
		t.Errorf("インデックスファイルが一致しません: got %s", cfg.Serve.IndexFile)
	}
	if cfg.Serve.RedirectFile != "server-redirect.html" {
		t.Errorf("リダイレクトファイルが一致しません: got %s", cfg.Serve.RedirectFile)
	}
	if !filepath.IsAbs(cfg.Serve.Root) {
		t.Errorf("配信ルートが絶対パスではありません: %s", cfg.Serve.Root)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("シャットダウンタイムアウトが一致しません: got %s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Log.File != "server_logs.txt" {
		t.Errorf("ログファイルが一致しません: got %q, want %q", cfg.Log.File, "server_logs.txt")
	}
}

// TestLoadDefersValidation は Load が検証を行わず、上書き後の Validate で判定されることをテストする
func TestLoadDefersValidation(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	clearEnv(t)

	missing := filepath.Join(dir, "missing")
	t.Setenv("SERVE_ROOT", missing)

	path := filepath.Join(dir, "modserve.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load は検証前の設定を返すべきです: %v", err)
	}
	if cfg.Server.Port != 0 || cfg.Serve.Root != missing {
		t.Fatalf("ファイルと環境変数が反映されていません: port=%d root=%s", cfg.Server.Port, cfg.Serve.Root)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("上書き前の設定は検証エラーになるべきです")
	}

	// コマンドラインオプション相当の上書き
	cfg.Server.Port = 6000
	cfg.Serve.Root = dir
	if err := cfg.Normalize(); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("上書き後の設定でエラーが発生しました: %v", err)
	}
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	valid := func() *Config {
		cfg := Default()
		cfg.Serve.Root = root
		return cfg
	}

	testCases := []struct {
		name      string
		mutate    func(*Config)
		expectErr bool
	}{
		{"正常な設定", func(*Config) {}, false},
		{"無効なポート番号", func(c *Config) { c.Server.Port = 99999 }, true},
		{"ポート0", func(c *Config) { c.Server.Port = 0 }, true},
		{"無効なフォールバックポート", func(c *Config) { c.Server.FallbackPorts = []int{8000, -1} }, true},
		{"フォールバックなし", func(c *Config) { c.Server.FallbackPorts = nil }, false},
		{"存在しない配信ルート", func(c *Config) { c.Serve.Root = filepath.Join(root, "missing") }, true},
		{"ファイルを配信ルートに指定", func(c *Config) { c.Serve.Root = file }, true},
		{"インデックスにディレクトリを含む", func(c *Config) { c.Serve.IndexFile = "a/index.html" }, true},
		{"インデックスが空", func(c *Config) { c.Serve.IndexFile = "" }, true},
		{"リダイレクト無効", func(c *Config) { c.Serve.RedirectFile = "" }, false},
		{"リダイレクトに親ディレクトリ", func(c *Config) { c.Serve.RedirectFile = ".." }, true},
		{"無効なログレベル", func(c *Config) { c.Log.Level = "loud" }, true},
		{"ステータスパスがスラッシュで始まらない", func(c *Config) { c.Server.StatusPath = "status" }, true},
		{"負のシャットダウンタイムアウト", func(c *Config) { c.Server.ShutdownTimeout = -time.Second }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.expectErr && err == nil {
				t.Error("エラーが期待されましたが、エラーが発生しませんでした")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("予期しないエラーが発生しました: %v", err)
			}
		})
	}
}

// TestServerAddress はサーバーアドレスの生成をテストする
func TestServerAddress(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "192.168.1.100",
			Port: 9090,
		},
	}

	expected := "192.168.1.100:9090"
	if actual := cfg.ServerAddress(); actual != expected {
		t.Errorf("サーバーアドレスが一致しません: got %s, want %s", actual, expected)
	}
}

func TestCandidates(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: 5555, FallbackPorts: []int{8000, 8000, 3000}}}

	want := []int{5555, 8000, 8000, 3000}
	if got := cfg.Candidates(); !reflect.DeepEqual(got, want) {
		t.Errorf("候補が一致しません: got %v, want %v", got, want)
	}
}

func TestParsePorts(t *testing.T) {
	testCases := []struct {
		in        string
		want      []int
		expectErr bool
	}{
		{"8000,8080,3000", []int{8000, 8080, 3000}, false},
		{" 8000 , 9000 ,", []int{8000, 9000}, false},
		{"", nil, false},
		{"8000,abc", nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParsePorts(tc.in)
			if tc.expectErr {
				if err == nil {
					t.Fatal("エラーが期待されました")
				}
				return
			}
			if err != nil {
				t.Fatalf("予期しないエラー: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

// TestEnvironmentVariables は環境変数の処理をテストする
func TestEnvironmentVariables(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	t.Setenv("SERVER_HOST", "127.0.0.1")
	t.Setenv("PORT", "9999")
	t.Setenv("FALLBACK_PORTS", "9001,9002")
	t.Setenv("SERVE_ROOT", dir)
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("環境変数のホストが反映されていません: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("環境変数のポートが反映されていません: got %d, want 9999", cfg.Server.Port)
	}
	if want := []int{9001, 9002}; !reflect.DeepEqual(cfg.Server.FallbackPorts, want) {
		t.Errorf("環境変数のフォールバックが反映されていません: got %v", cfg.Server.FallbackPorts)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("環境変数のログレベルが反映されていません: got %s", cfg.Log.Level)
	}
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	clearEnv(t)
	os.Unsetenv("PORT")

	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=7777\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// godotenv.Load が設定した値をテスト後に消す
	t.Cleanup(func() { os.Unsetenv("PORT") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf(".env のポートが反映されていません: got %d, want 7777", cfg.Server.Port)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	clearEnv(t)

	yamlPath := filepath.Join(dir, "modserve.yaml")
	yamlData := `server:
  port: 6000
  fallback_ports: [6001, 6002]
  shutdown_timeout: 2s
serve:
  index_file: main.html
  redirect_file: ""
  watch: true
log:
  level: warn
`
	tomlPath := filepath.Join(dir, "modserve.toml")
	tomlData := `[server]
port = 6000
fallback_ports = [6001, 6002]
shutdown_timeout = "2s"

[serve]
index_file = "main.html"
redirect_file = ""
watch = true

[log]
level = "warn"
`
	for path, data := range map[string]string{yamlPath: yamlData, tomlPath: tomlData} {
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	for _, path := range []string{yamlPath, tomlPath} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("設定の読み込みに失敗しました: %v", err)
			}
			if cfg.Server.Port != 6000 {
				t.Errorf("ポート: got %d, want 6000", cfg.Server.Port)
			}
			if want := []int{6001, 6002}; !reflect.DeepEqual(cfg.Server.FallbackPorts, want) {
				t.Errorf("フォールバック: got %v, want %v", cfg.Server.FallbackPorts, want)
			}
			if cfg.Server.ShutdownTimeout != 2*time.Second {
				t.Errorf("シャットダウンタイムアウト: got %s", cfg.Server.ShutdownTimeout)
			}
			if cfg.Serve.IndexFile != "main.html" || cfg.Serve.RedirectFile != "" || !cfg.Serve.Watch {
				t.Errorf("配信設定が反映されていません: %+v", cfg.Serve)
			}
			if cfg.Log.Level != "warn" {
				t.Errorf("ログレベル: got %s", cfg.Log.Level)
			}
			// ファイルに無い項目はデフォルトのまま
			if cfg.Server.StatusPath != "/__devserver/status" {
				t.Errorf("ステータスパス: got %s", cfg.Server.StatusPath)
			}
		})
	}

	if _, err := Load(filepath.Join(dir, "modserve.ini")); err == nil {
		t.Error("未対応の形式でエラーが期待されました")
	}
}

// chdir はテスト中だけ作業ディレクトリを変更する (testing.T.Chdir 相当)
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
