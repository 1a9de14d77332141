package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tommygebru/vitrine-highlights/internal/highlights"
)

const (
	adminHighlightsPath = "/api/v1/admin/highlights"
	maxResponseBytes    = 2 * 1024 * 1024
)

// RequestError describes a failed call to the admin API
type RequestError struct {
	Op         string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Err != nil && e.StatusCode > 0:
		return fmt.Sprintf("%s: status=%d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("%s: status=%d", e.Op, e.StatusCode)
	default:
		return e.Op
	}
}

func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsRetryable reports whether err is worth another attempt
func IsRetryable(err error) bool {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.Retryable
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

type actorContextKeyType struct{}

var actorContextKey actorContextKeyType

// WithActor tags outgoing requests with the moderator performing them
func WithActor(ctx context.Context, actorID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, actorID)
}

func actorFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(actorContextKey).(string)
	return value
}

type HTTPStoreConfig struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	Attempts   uint
	RetryDelay time.Duration
}

// HTTPStore talks to the highlights admin API. Reads are retried and
// cache-busted; mutations are sent exactly once.
type HTTPStore struct {
	baseURL    string
	token      string
	attempts   uint
	retryDelay time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

func NewHTTPStore(cfg HTTPStoreConfig, logger *zap.Logger) (*HTTPStore, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	token := strings.TrimSpace(cfg.Token)
	if base == "" || token == "" {
		return nil, &RequestError{Op: "create admin store", Err: errors.New("admin api url or token is empty")}
	}

	parsed, err := url.Parse(base)
	if err != nil {
		return nil, &RequestError{Op: "parse admin api url", Err: err}
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, &RequestError{Op: "validate admin api url", Err: fmt.Errorf("invalid admin api url: %s", base)}
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTPStore{
		baseURL:    strings.TrimRight(base, "/"),
		token:      token,
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Meta    *struct {
		Total int64 `json:"total"`
	} `json:"meta"`
}

func (s *HTTPStore) List(ctx context.Context, params ListParams) (*ListResult, error) {
	q := url.Values{}
	q.Set("status", string(params.Status))
	if params.AdminOnly {
		q.Set("admin_only", "true")
	}
	if params.AuthorID != "" {
		q.Set("author_id", params.AuthorID)
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", strconv.Itoa(params.Offset))
	}

	env, err := s.read(ctx, adminHighlightsPath, q)
	if err != nil {
		return nil, err
	}

	result := &ListResult{Success: env.Success}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &result.Items); err != nil {
			return nil, &RequestError{Op: "decode highlight list", Err: err}
		}
	}
	if env.Meta != nil {
		result.Total = env.Meta.Total
	} else {
		result.Total = int64(len(result.Items))
	}
	return result, nil
}

func (s *HTTPStore) Stats(ctx context.Context) (*highlights.Stats, error) {
	env, err := s.read(ctx, adminHighlightsPath+"/stats", url.Values{})
	if err != nil {
		return nil, err
	}
	var stats highlights.Stats
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		return nil, &RequestError{Op: "decode highlight stats", Err: err}
	}
	return &stats, nil
}

func (s *HTTPStore) Update(ctx context.Context, id string, update StatusUpdate) (*highlights.Item, error) {
	env, err := s.mutate(ctx, http.MethodPatch, adminHighlightsPath+"/"+url.PathEscape(id), update)
	if err != nil {
		return nil, err
	}
	return decodeItem(env, "decode updated highlight")
}

func (s *HTTPStore) Delete(ctx context.Context, id string) error {
	_, err := s.mutate(ctx, http.MethodDelete, adminHighlightsPath+"/"+url.PathEscape(id), nil)
	return err
}

func (s *HTTPStore) Create(ctx context.Context, req *highlights.SubmitRequest) (*highlights.Item, error) {
	env, err := s.mutate(ctx, http.MethodPost, adminHighlightsPath, req)
	if err != nil {
		return nil, err
	}
	return decodeItem(env, "decode created highlight")
}

func decodeItem(env *envelope, op string) (*highlights.Item, error) {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}
	var item highlights.Item
	if err := json.Unmarshal(env.Data, &item); err != nil {
		return nil, &RequestError{Op: op, Err: err}
	}
	return &item, nil
}

// read issues a GET with a unique cache-busting token per attempt
func (s *HTTPStore) read(ctx context.Context, path string, q url.Values) (*envelope, error) {
	var (
		env     *envelope
		lastErr error
	)

	err := retry.Do(
		func() error {
			q.Set("_", uuid.NewString())
			res, err := s.do(ctx, http.MethodGet, path+"?"+q.Encode(), nil)
			if err != nil {
				lastErr = err
				if !IsRetryable(err) {
					return retry.Unrecoverable(err)
				}
				return err
			}
			env = res
			return nil
		},
		retry.Attempts(s.attempts),
		retry.Delay(s.retryDelay),
		retry.MaxDelay(10*s.retryDelay),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("retrying admin api read",
				zap.String("path", path),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return env, nil
}

func (s *HTTPStore) mutate(ctx context.Context, method, path string, body interface{}) (*envelope, error) {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, &RequestError{Op: "marshal request body", Err: err}
		}
		payload = raw
	}
	return s.do(ctx, method, path, payload)
}

func (s *HTTPStore) do(ctx context.Context, method, path string, body []byte) (*envelope, error) {
	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, bodyReader)
	if err != nil {
		return nil, &RequestError{Op: "create http request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor := actorFromContext(ctx); actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &RequestError{
			Op:        method + " " + path,
			Retryable: errors.Is(err, context.DeadlineExceeded) || isNetError(err),
			Err:       err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &RequestError{Op: "read http response", StatusCode: resp.StatusCode, Err: err}
	}

	s.logger.Debug("admin api call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(env.Error)
		if msg == "" {
			msg = strings.TrimSpace(env.Message)
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		inner := errors.New(msg)
		if resp.StatusCode == http.StatusNotFound {
			inner = fmt.Errorf("%s: %w", msg, highlights.ErrNotFound)
		}
		return nil, &RequestError{
			Op:         method + " " + path,
			StatusCode: resp.StatusCode,
			Retryable:  resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
			Err:        inner,
		}
	}

	if decodeErr != nil {
		return nil, &RequestError{Op: "decode http response", StatusCode: resp.StatusCode, Err: decodeErr}
	}
	return &env, nil
}

func isNetError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}
