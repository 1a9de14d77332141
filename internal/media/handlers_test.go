package media

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/tommygebru/vitrine-highlights/internal/common"
	"github.com/tommygebru/vitrine-highlights/internal/highlights"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func multipartRequest(t *testing.T, filename string, content []byte, viewer bool) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write(content)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/media", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if viewer {
		req = req.WithContext(common.WithViewer(req.Context(), &common.Viewer{ID: "u1", Role: common.RoleUser}))
	}
	return req
}

func TestUploadToLocalStorage(t *testing.T) {
	dir := t.TempDir()
	h := NewHandler(NewLocalStorage(dir), 1<<20, nil)
	h.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartRequest(t, "banner.png", pngHeader, true))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data UploadResult `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.MediaType != highlights.MediaImage {
		t.Fatalf("media type = %s", resp.Data.MediaType)
	}
	if !strings.HasPrefix(resp.Data.MediaURL, "/uploads/highlights/2026/03/") || !strings.HasSuffix(resp.Data.MediaURL, ".png") {
		t.Fatalf("media url = %s", resp.Data.MediaURL)
	}

	stored, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(resp.Data.MediaURL, "/uploads/")))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if !bytes.Equal(stored, pngHeader) {
		t.Fatalf("stored content differs")
	}
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content []byte
		viewer  bool
		want    int
	}{
		{"anonymous", "a.png", pngHeader, false, http.StatusUnauthorized},
		{"text file", "notes.txt", []byte("just some text"), true, http.StatusBadRequest},
		{"empty file", "a.png", nil, true, http.StatusBadRequest},
		{"too large", "big.png", append(append([]byte{}, pngHeader...), make([]byte, 4096)...), true, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(NewLocalStorage(t.TempDir()), 1024, nil)
			rec := httptest.NewRecorder()
			h.Upload(rec, multipartRequest(t, tt.file, tt.content, tt.viewer))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d, body=%s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

type fakeUploader struct {
	input *s3manager.UploadInput
	body  []byte
}

func (f *fakeUploader) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeUploader) UploadWithContext(ctx aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3manager.UploadOutput{Location: "https://bucket.s3.amazonaws.com/" + aws.StringValue(in.Key)}, nil
}

func TestS3StorageSave(t *testing.T) {
	tests := []struct {
		name      string
		publicURL string
		want      string
	}{
		{"sdk location", "", "https://bucket.s3.amazonaws.com/highlights/x.png"},
		{"cdn url", "https://cdn.vitrine.test/", "https://cdn.vitrine.test/highlights/x.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUploader{}
			s := NewS3StorageWithUploader(up, "bucket", tt.publicURL)

			url, err := s.Save(context.Background(), "highlights/x.png", bytes.NewReader(pngHeader), "image/png")
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			if url != tt.want {
				t.Fatalf("url = %s, want %s", url, tt.want)
			}
			if aws.StringValue(up.input.Bucket) != "bucket" || aws.StringValue(up.input.ContentType) != "image/png" {
				t.Fatalf("upload input = %+v", up.input)
			}
			if !bytes.Equal(up.body, pngHeader) {
				t.Fatalf("uploaded body differs")
			}
		})
	}
}

func TestLocalStorageConfinesKeys(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStorage(dir)

	url, err := s.Save(context.Background(), "../../etc/evil.png", bytes.NewReader(pngHeader), "image/png")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if url != "/uploads/etc/evil.png" {
		t.Fatalf("url = %s", url)
	}
	if _, err := os.Stat(filepath.Join(dir, "etc", "evil.png")); err != nil {
		t.Fatalf("file not written inside upload dir: %v", err)
	}
}
