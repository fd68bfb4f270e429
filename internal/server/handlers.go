package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"modserve/internal/contenttype"
	"modserve/internal/resolve"
	"modserve/internal/store"
)

// resolutionKey は解決結果を gin.Context に格納するキー
const resolutionKey = "resolution"

// ErrorResponse はエラー時に返すJSON
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Path      string    `json:"path,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse はステータスエンドポイントのJSON
type StatusResponse struct {
	Status    string    `json:"status"`
	Port      int       `json:"port"`
	Root      string    `json:"root"`
	Timestamp time.Time `json:"timestamp"`
}

// resolved は resolve ステージの結果
type resolved struct {
	res resolve.Resolution
	err error
}

// FileHandler は Path Resolver → Classifier → Store の順に処理して静的ファイルを返す
type FileHandler struct {
	resolver     resolve.Resolver
	classifier   contenttype.Classifier
	store        store.Store
	logger       logrus.FieldLogger
	sniffUnknown bool
}

// NewFileHandler は新しい FileHandler を作成する
func NewFileHandler(r resolve.Resolver, cl contenttype.Classifier, s store.Store, logger logrus.FieldLogger, sniffUnknown bool) *FileHandler {
	return &FileHandler{
		resolver:     r,
		classifier:   cl,
		store:        s,
		logger:       logger,
		sniffUnknown: sniffUnknown,
	}
}

// Handlers は固定ヘッダーを挟んだ処理チェーンを返す
func (h *FileHandler) Handlers() []gin.HandlerFunc {
	return []gin.HandlerFunc{h.Resolve, devHeaders(), h.Serve}
}

// Resolve はリクエストパスを解決する
//
// ルートのリダイレクトはここで 302 を返し、以降のヘッダー付与を行わない
func (h *FileHandler) Resolve(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		c.Next()
		return
	}

	res, err := h.resolver.Resolve(c.Request.URL.Path)
	if err == nil && res.Kind == resolve.KindRedirect {
		requestLogger(c, h.logger).Infof("Redirecting %s -> %s", res.RequestPath, res.Location)
		c.Header("Location", res.Location)
		c.AbortWithStatus(http.StatusFound)
		return
	}

	c.Set(resolutionKey, resolved{res: res, err: err})
	c.Next()
}

// Serve は解決済みのファイルを返す
func (h *FileHandler) Serve(c *gin.Context) {
	log := requestLogger(c, h.logger)
	requestPath := c.Request.URL.Path

	if c.Request.Method != http.MethodGet {
		log.Warnf("Unsupported method %s for %s", c.Request.Method, requestPath)
		writeError(c, http.StatusNotImplemented, "unsupported_method",
			fmt.Sprintf("Unsupported method (%s)", c.Request.Method))
		return
	}

	r, ok := c.MustGet(resolutionKey).(resolved)
	if !ok {
		panic("server: resolve stage missing from handler chain")
	}

	if r.err != nil {
		if errors.Is(r.err, resolve.ErrOutsideRoot) {
			log.Warnf("Rejected path outside serving root: %s", requestPath)
		} else {
			log.Warnf("Failed to resolve %s: %v", requestPath, r.err)
		}
		h.notFound(c, requestPath)
		return
	}

	log.Infof("GET request for %s -> %s", requestPath, r.res.FilePath)

	exists, err := store.IsRegularFile(h.store, r.res.Name)
	if err != nil {
		log.Warnf("Cannot stat %s: %v", r.res.FilePath, err)
	}
	if !exists {
		log.Warnf("File not found: %s", r.res.FilePath)
		h.notFound(c, requestPath)
		return
	}

	h.sendFile(c, log, r.res)
}

// sendFile はファイル全体を読み込んでから送信する
//
// 読み込みに失敗した場合は何も書き込まずに 500 を返す
func (h *FileHandler) sendFile(c *gin.Context, log logrus.FieldLogger, res resolve.Resolution) {
	data, err := h.store.ReadFile(res.Name)
	if err != nil {
		log.Errorf("Error serving %s: %v", res.FilePath, err)
		writeError(c, http.StatusInternalServerError, "internal_error",
			fmt.Sprintf("Internal server error: %v", err))
		return
	}

	contentType := h.classifier.Classify(res.Name)
	if h.sniffUnknown && contentType == contenttype.OctetStream {
		contentType = contenttype.Sniff(data)
	}

	header := c.Writer.Header()
	header.Set("Content-Type", contentType)
	header.Set("Content-Length", strconv.Itoa(len(data)))
	c.Status(http.StatusOK)

	n, err := c.Writer.Write(data)
	if err != nil || n != len(data) {
		// ステータスは送信済みのため、接続の状態は保証できない
		log.Errorf("Partial write for %s: wrote %d of %d bytes: %v", res.FilePath, n, len(data), err)
		return
	}

	log.Infof("Successfully served %s (%s) as %s", res.FilePath, humanize.Bytes(uint64(len(data))), contentType)
}

func (h *FileHandler) notFound(c *gin.Context, requestPath string) {
	writeError(c, http.StatusNotFound, "not_found", "File not found: "+requestPath)
}

// writeError は固定ヘッダーを付けてエラーJSONを返し、チェーンを中断する
func writeError(c *gin.Context, status int, code, message string) {
	h := c.Writer.Header()
	for _, kv := range DevHeaders {
		h.Set(kv[0], kv[1])
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     code,
		Message:   message,
		Path:      c.Request.URL.Path,
		Timestamp: time.Now(),
	})
}
