package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/metrics-forwarder/internal/errs"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestRun_InvalidConfig(t *testing.T) {
	err := run(context.Background(), nil, envOf(nil))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	err = run(context.Background(), []string{"-k", "t", "--trusted-subnet", "nope"}, envOf(nil))
	require.ErrorIs(t, err, errs.ErrInvalidConfig)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, []string{"-k", "t", "--api-url", ts.URL, "-s", "test", "-l", "127.0.0.1:0", "--log-level", "error"}, envOf(nil))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return")
	}
}
