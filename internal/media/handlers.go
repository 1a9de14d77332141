package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tommygebru/vitrine-highlights/internal/common"
	"github.com/tommygebru/vitrine-highlights/internal/highlights"
)

// UploadResult is returned to the client, which then submits the highlight
type UploadResult struct {
	MediaURL  string               `json:"media_url"`
	MediaType highlights.MediaType `json:"media_type"`
	Size      int64                `json:"size"`
}

type Handler struct {
	storage Storage
	maxSize int64
	now     func() time.Time
	logger  *zap.Logger
}

func NewHandler(storage Storage, maxSize int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{storage: storage, maxSize: maxSize, now: time.Now, logger: logger}
}

func RegisterRoutes(router *mux.Router, handler *Handler, authMiddleware func(http.Handler) http.Handler) {
	router.Handle("/api/v1/media", authMiddleware(http.HandlerFunc(handler.Upload))).Methods("POST")
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	viewer, err := common.GetViewer(r.Context())
	if err != nil {
		common.Unauthorized(w, "Unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+1<<20)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			common.BadRequest(w, "File is too large")
			return
		}
		common.BadRequest(w, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		common.BadRequest(w, "File is required")
		return
	}
	defer file.Close()

	if header.Size > h.maxSize {
		common.BadRequest(w, fmt.Sprintf("File is too large (max %d MB)", h.maxSize>>20))
		return
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		common.BadRequest(w, "File is empty")
		return
	}
	head = head[:n]

	contentType := detectContentType(head, header.Filename)
	mediaType, ok := mediaTypeOf(contentType)
	if !ok {
		common.BadRequest(w, "Only image and video files are allowed")
		return
	}

	key := h.objectKey(contentType, header.Filename)
	url, err := h.storage.Save(r.Context(), key, io.MultiReader(bytes.NewReader(head), file), contentType)
	if err != nil {
		h.logger.Error("store uploaded media", zap.String("user_id", viewer.ID), zap.Error(err))
		common.InternalError(w, "Failed to store media")
		return
	}

	h.logger.Info("media uploaded",
		zap.String("user_id", viewer.ID),
		zap.String("key", key),
		zap.String("content_type", contentType),
		zap.Int64("size", header.Size),
	)
	common.Created(w, "Media uploaded", UploadResult{MediaURL: url, MediaType: mediaType, Size: header.Size})
}

func (h *Handler) objectKey(contentType, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	return fmt.Sprintf("highlights/%s/%s%s", h.now().UTC().Format("2006/01"), uuid.NewString(), ext)
}

func detectContentType(head []byte, filename string) string {
	ct := http.DetectContentType(head)
	if ct == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
			ct = byExt
		}
	}
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

func mediaTypeOf(contentType string) (highlights.MediaType, bool) {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return highlights.MediaImage, true
	case strings.HasPrefix(contentType, "video/"):
		return highlights.MediaVideo, true
	}
	return "", false
}
