package flush_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monitor-client/pkg/buffer"
	"github.com/monitor-client/pkg/flush"
)

func TestHTTPTransportDeliver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get(flush.TokenHeader))
		require.NoError(t, r.ParseForm())
		assert.JSONEq(t, `{"k1":{"moduleName":"cpu"}}`, r.PostForm.Get(flush.FormField))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":["k1"]}`))
	}))
	defer srv.Close()

	tr := flush.NewHTTPTransport(srv.URL, "secret", time.Second)
	ack, err := tr.Deliver(context.Background(), flush.Batch{Payload: []byte(`{"k1":{"moduleName":"cpu"}}`)})
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, ack.Keys)
}

func TestHTTPTransportStatuses(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "overload",
			status: http.StatusRequestEntityTooLarge,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, flush.ErrOverload) },
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var se *flush.StatusError
				require.True(t, errors.As(err, &se))
				assert.Equal(t, http.StatusInternalServerError, se.Code)
				assert.NotErrorIs(t, err, flush.ErrUnreachable)
			},
		},
		{
			name:   "malformed ack",
			status: http.StatusOK,
			body:   `{"data":`,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, flush.ErrBadAcknowledgement) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := flush.NewHTTPTransport(srv.URL, "t", time.Second).
				Deliver(context.Background(), flush.Batch{Payload: []byte(`{}`)})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestHTTPTransportUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := flush.NewHTTPTransport(url, "t", time.Second).
		Deliver(context.Background(), flush.Batch{Payload: []byte(`{"k1":{}}`)})
	assert.ErrorIs(t, err, flush.ErrUnreachable)
}

func TestLocalTransport(t *testing.T) {
	tr := flush.NewLocalTransport(func(_ context.Context, records map[string]buffer.Record) ([]string, error) {
		keys := make([]string, 0, len(records))
		for k := range records {
			keys = append(keys, k)
		}
		return keys, nil
	})
	ack, err := tr.Deliver(context.Background(), flush.Batch{Records: map[string]buffer.Record{"k1": cpuRecord(1)}})
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, ack.Keys)

	failing := flush.NewLocalTransport(func(context.Context, map[string]buffer.Record) ([]string, error) {
		return nil, errors.New("store down")
	})
	_, err = failing.Deliver(context.Background(), flush.Batch{})
	assert.EqualError(t, err, "store down")
}
