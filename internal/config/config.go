// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/joho/godotenv"
)

// 既定の Ghostscript 配置場所（Linux / macOS Homebrew / Windows）。
var defaultGrayscaleToolPaths = []string{
	"/usr/bin/gs",
	"/usr/local/bin/gs",
	"/opt/homebrew/bin/gs",
	`C:\Program Files\gs\gs10.03.1\bin\gswin64c.exe`,
	`C:\Program Files\gs\gs10.02.1\bin\gswin64c.exe`,
}

// MaxQRCaptionLength は QR ページに折り返して収まるキャプションの上限文字数です。
const MaxQRCaptionLength = 500

var defaultRasterizerPaths = []string{
	"/usr/bin/gs",
	"/usr/local/bin/gs",
	"/opt/homebrew/bin/gs",
	"/usr/bin/pdftoppm",
	"/usr/local/bin/pdftoppm",
	"/opt/homebrew/bin/pdftoppm",
}

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// 認証設定（オペレーター1名）
	AppUsername     string // ログイン用ユーザー名
	AppPasswordHash string // bcryptでハッシュ化されたパスワード
	SessionSecret   string // セッション署名用の秘密鍵

	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ファイル制限
	MaxFileSize      int64  // 単一ファイルの最大サイズ（バイト）
	MaxPages         int    // 単一ファイルの最大ページ数
	JobExpireMinutes int    // ジョブの有効期限（分）
	WorkDir          string // ジョブ作業ディレクトリのルート

	// ジョブ/キュー設定
	QueueRedisURL       string // Asynq用Redis接続URL（空の場合は同期処理のみ）
	AsyncThresholdBytes int64  // 同期処理から非同期へ切り替えるサイズ閾値
	AsyncThresholdPages int    // 同期処理から非同期へ切り替えるページ閾値
	JobResultBaseURL    string // 結果ファイル取得用のベースURL

	// 後処理設定
	RenderScale        float64  // ページ描画倍率（1.0 = 72dpi）
	WhitewashThreshold int      // この輝度を超える画素を白に飛ばす
	LogoPath           string   // 表紙に重ねるロゴ画像（任意）
	RasterizerPaths    []string // ページ描画ツールの候補パス
	GrayscaleToolPaths []string // グレースケール変換ツールの候補パス

	// QRページ設定
	QRCaption string // QRコード下のキャプション
	QRBaseURL string // 注文番号から QR ペイロードを組み立てる際の接頭辞

	// 成果物の公開（S3）
	ResultBucket           string // 空の場合はローカル配信のみ
	AWSRegion              string
	ResultURLExpireMinutes int // 署名付きURLの有効期限（分）
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		AppUsername:     getEnv("APP_USERNAME", ""),
		AppPasswordHash: getEnv("APP_PASSWORD_HASH", ""),
		SessionSecret:   getEnv("SESSION_SECRET", ""),

		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),

		MaxFileSize:      getEnvAsInt64("MAX_FILE_SIZE", 104857600), // 100MB
		MaxPages:         getEnvAsInt("MAX_PAGES", 200),
		JobExpireMinutes: getEnvAsInt("JOB_EXPIRE_MINUTES", 10),
		WorkDir:          getEnv("WORK_DIR", filepath.Join(os.TempDir(), "storybook-forge")),

		QueueRedisURL:       getEnv("QUEUE_REDIS_URL", ""),
		AsyncThresholdBytes: getEnvAsInt64("ASYNC_THRESHOLD_BYTES", 50*1024*1024), // 50MB
		AsyncThresholdPages: getEnvAsInt("ASYNC_THRESHOLD_PAGES", 40),
		JobResultBaseURL:    getEnv("JOB_RESULT_BASE_URL", ""),

		RenderScale:        getEnvAsFloat("RENDER_SCALE", 1.0),
		WhitewashThreshold: getEnvAsInt("WHITEWASH_THRESHOLD", 200),
		LogoPath:           getEnv("LOGO_PATH", ""),
		RasterizerPaths:    getEnvAsList("RASTERIZER_PATHS", defaultRasterizerPaths),
		GrayscaleToolPaths: getEnvAsList("GRAYSCALE_TOOL_PATHS", defaultGrayscaleToolPaths),

		QRCaption: getEnv("QR_CAPTION", "Scan this code to access the audio content"),
		QRBaseURL: getEnv("QR_BASE_URL", "https://example.com/order/"),

		ResultBucket:           getEnv("RESULT_BUCKET", ""),
		AWSRegion:              getEnv("AWS_REGION", "us-east-1"),
		ResultURLExpireMinutes: getEnvAsInt("RESULT_URL_EXPIRE_MINUTES", 60),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	if c.RenderScale <= 0 {
		return fmt.Errorf("RENDER_SCALE must be positive (got %v)", c.RenderScale)
	}
	// 0 は「既定値を使う」と区別できないため受け付けない
	if c.WhitewashThreshold < 1 || c.WhitewashThreshold > 255 {
		return fmt.Errorf("WHITEWASH_THRESHOLD must be within 1-255 (got %d)", c.WhitewashThreshold)
	}
	if n := utf8.RuneCountInString(c.QRCaption); n > MaxQRCaptionLength {
		return fmt.Errorf("QR_CAPTION must be at most %d characters (got %d)", MaxQRCaptionLength, n)
	}
	if c.WorkDir == "" {
		return fmt.Errorf("WORK_DIR must not be empty")
	}

	// ローカル運用では認証設定は任意、本番では厳格にチェックする
	if c.GinMode == "release" {
		if c.AppUsername == "" {
			return fmt.Errorf("APP_USERNAME is required in release mode")
		}
		if c.AppPasswordHash == "" {
			return fmt.Errorf("APP_PASSWORD_HASH is required in release mode")
		}
		if c.SessionSecret == "" {
			return fmt.Errorf("SESSION_SECRET is required in release mode")
		}
		if c.QueueRedisURL == "" {
			return fmt.Errorf("QUEUE_REDIS_URL is required in release mode")
		}
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList はカンマ区切りの環境変数を空要素を除いたスライスとして取得します。
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if strings.TrimSpace(valueStr) == "" {
		return append([]string(nil), defaultValue...)
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			values = append(values, p)
		}
	}
	return values
}
