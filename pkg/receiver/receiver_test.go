package receiver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/monitor-client/pkg/buffer"
	"github.com/monitor-client/pkg/flush"
	"github.com/monitor-client/pkg/receiver"
	"github.com/monitor-client/pkg/store"
)

type saverFunc func(ctx context.Context, records map[string]buffer.Record) ([]string, error)

func (f saverFunc) Save(ctx context.Context, records map[string]buffer.Record) ([]string, error) {
	return f(ctx, records)
}

func acceptAll(_ context.Context, records map[string]buffer.Record) ([]string, error) {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	return keys, nil
}

func post(t *testing.T, h http.Handler, token, moduledata string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{flush.FormField: {moduledata}}
	req := httptest.NewRequest(http.MethodPost, receiver.Path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(flush.TokenHeader, token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReceiverAcknowledgesSavedKeys(t *testing.T) {
	h := receiver.NewHandler(saverFunc(acceptAll), receiver.Options{Tokens: []string{"secret"}, Logger: zaptest.NewLogger(t)})

	rec := post(t, h, "secret", `{"k1":{"moduleName":"cpu","date":1,"monitorClientId":"c","data":50}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body flush.AckBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"k1"}, body.Data)
}

func TestReceiverRejections(t *testing.T) {
	failing := saverFunc(func(context.Context, map[string]buffer.Record) ([]string, error) {
		return nil, errors.New("redis down")
	})
	tests := []struct {
		name   string
		saver  receiver.Saver
		token  string
		data   string
		status int
	}{
		{"bad token", saverFunc(acceptAll), "wrong", `{}`, http.StatusUnauthorized},
		{"too large", saverFunc(acceptAll), "secret", `{"k1":{"data":"` + strings.Repeat("x", 256) + `"}}`, http.StatusRequestEntityTooLarge},
		{"malformed", saverFunc(acceptAll), "secret", `{"k1":`, http.StatusBadRequest},
		{"save failed", failing, "secret", `{}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := receiver.NewHandler(tt.saver, receiver.Options{MaxBodyBytes: 128, Tokens: []string{"secret"}})
			assert.Equal(t, tt.status, post(t, h, tt.token, tt.data).Code)
		})
	}
}

func TestReceiverWithoutTokensAcceptsAnyClient(t *testing.T) {
	h := receiver.NewHandler(saverFunc(acceptAll), receiver.Options{})
	rec := post(t, h, "", `{}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}

func TestReceiverMethodNotAllowed(t *testing.T) {
	h := receiver.NewHandler(saverFunc(acceptAll), receiver.Options{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, receiver.Path, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// 缓冲区 -> HTTP 投递 -> 接收端 -> Redis，确认后缓冲区清空
func TestEndToEndDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	st, err := store.Open("redis://"+mr.Addr()+"/0", "module_data")
	require.NoError(t, err)
	defer st.Close()

	srv := httptest.NewServer(receiver.NewHandler(st, receiver.Options{
		Tokens: []string{"secret"},
		Logger: zaptest.NewLogger(t),
	}))
	defer srv.Close()

	buf := buffer.New()
	for _, m := range []string{"cpu", "memory", "disk"} {
		_, err := buf.Insert(buffer.NewRecord(m, "client-1", time.Now(), 1))
		require.NoError(t, err)
	}

	coord := flush.NewCoordinator(buf, flush.NewHTTPTransport(srv.URL+receiver.Path, "secret", time.Second),
		flush.Options{Logger: zaptest.NewLogger(t)})
	assert.Equal(t, flush.OutcomeAcked, coord.Flush(context.Background()))
	assert.True(t, buf.IsEmpty())

	n, err := st.Len(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	// 接收端过载时整个缓冲区被丢弃
	small := httptest.NewServer(receiver.NewHandler(st, receiver.Options{MaxBodyBytes: 16}))
	defer small.Close()
	_, err = buf.Insert(buffer.NewRecord("cpu", "client-1", time.Now(), strings.Repeat("x", 64)))
	require.NoError(t, err)
	coord = flush.NewCoordinator(buf, flush.NewHTTPTransport(small.URL+receiver.Path, "", time.Second), flush.Options{})
	assert.Equal(t, flush.OutcomeOverload, coord.Flush(context.Background()))
	assert.True(t, buf.IsEmpty())
}
