package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// requestIDKey は gin.Context に格納するリクエストIDのキー
const requestIDKey = "request_id"

// DevHeaders は開発用にすべてのレスポンスへ付与する固定ヘッダー
var DevHeaders = [][2]string{
	{"Access-Control-Allow-Origin", "*"},
	{"Access-Control-Allow-Methods", "GET, OPTIONS"},
	{"Access-Control-Allow-Headers", "X-Requested-With, Content-Type"},
	{"Cache-Control", "no-store, no-cache, must-revalidate, max-age=0"},
	{"Pragma", "no-cache"},
	{"Expires", "0"},
}

// devHeaders は CORS と キャッシュ無効化のヘッダーを設定する
func devHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		for _, kv := range DevHeaders {
			h.Set(kv[0], kv[1])
		}
		c.Next()
	}
}

// accessLog はリクエストIDを割り当て、1リクエストにつき1行のアクセスログを出力する
func accessLog(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		id := uuid.New().String()
		c.Set(requestIDKey, id)
		c.Header("X-Request-Id", id)

		c.Next()

		entry := logger.WithFields(logrus.Fields{
			requestIDKey: id,
			"client":     c.ClientIP(),
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).Round(time.Microsecond),
		})
		entry.Infof("%q %d", c.Request.Method+" "+c.Request.URL.RequestURI()+" "+c.Request.Proto, c.Writer.Status())
	}
}

// recovery はハンドラー内の panic を 500 エラーに変換し、プロセスを継続させる
func recovery(logger logrus.FieldLogger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		requestLogger(c, logger).Errorf("リクエスト処理中に panic が発生しました: %v", recovered)
		if c.Writer.Written() {
			c.Abort()
			return
		}
		writeError(c, http.StatusInternalServerError, "internal_error", "Internal server error")
	})
}

// requestLogger はリクエストIDを付与したロガーを返す
func requestLogger(c *gin.Context, logger logrus.FieldLogger) logrus.FieldLogger {
	if id, ok := c.Get(requestIDKey); ok {
		return logger.WithField(requestIDKey, id)
	}
	return logger
}
