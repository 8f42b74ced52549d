package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitLoggerEnvironments(t *testing.T) {
	for _, env := range []string{"production", "development"} {
		t.Run(env, func(t *testing.T) {
			require.NoError(t, InitLogger(LogConfig{Level: "debug", Environment: env, ServiceName: "nel-test"}))
			assert.NotNil(t, GetLogger())
		})
	}
	SetLogger(nil)
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	core, _ := observer.New(zap.InfoLevel)
	global := zap.New(core)
	SetLogger(global)
	t.Cleanup(func() { SetLogger(nil) })

	assert.Same(t, global, FromContext(context.Background()))

	scoped := global.With(zap.String("k", "v"))
	ctx := WithContext(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx))
}

func TestMiddlewareLogsRequest(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(nil) })

	var sawScoped bool
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawScoped = FromContext(r.Context()) != GetLogger()
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, sawScoped)
	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, "/api/health", fields["path"])
}
