// Package receiver Monitor 端接收 POST /moduledata 的 HTTP 处理器。
package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/monitor-client/pkg/buffer"
	"github.com/monitor-client/pkg/flush"
)

// Path 接收路径
const Path = "/moduledata"

// Saver 记录存储
type Saver interface {
	Save(ctx context.Context, records map[string]buffer.Record) ([]string, error)
}

// Options 接收参数；Tokens 为空时不校验 clienttoken
type Options struct {
	MaxBodyBytes int64
	Tokens       []string
	Logger       *zap.Logger
}

// Handler 接收处理器
type Handler struct {
	saver  Saver
	opts   Options
	tokens map[string]struct{}
}

func NewHandler(saver Saver, opts Options) *Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 4 << 20
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	tokens := make(map[string]struct{}, len(opts.Tokens))
	for _, t := range opts.Tokens {
		tokens[t] = struct{}{}
	}
	return &Handler{saver: saver, opts: opts, tokens: tokens}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := r.Header.Get(flush.TokenHeader)
	if !h.authorized(token) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.opts.Logger.Warn("module data too large", zap.Int64("limit", tooLarge.Limit))
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	var records map[string]buffer.Record
	if err := json.Unmarshal([]byte(r.PostForm.Get(flush.FormField)), &records); err != nil {
		http.Error(w, "malformed moduledata", http.StatusBadRequest)
		return
	}

	keys, err := h.saver.Save(r.Context(), records)
	if err != nil {
		h.opts.Logger.Error("save module data failed", zap.Int("records", len(records)), zap.Error(err))
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	h.opts.Logger.Debug("module data saved", zap.Int("keys", len(keys)))

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(flush.AckBody{Data: keys})
}

func (h *Handler) authorized(token string) bool {
	if len(h.tokens) == 0 {
		return true
	}
	_, ok := h.tokens[token]
	return ok
}
