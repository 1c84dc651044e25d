package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	stop     chan struct{}
	listenFn func() error
	shutdown atomic.Bool
}

func (f *fakeServer) ListenAndServe() error {
	if f.listenFn != nil {
		return f.listenFn()
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.shutdown.Store(true)
	close(f.stop)
	return nil
}

func TestHTTPServiceShutsDownOnCancel(t *testing.T) {
	srv := &fakeServer{stop: make(chan struct{})}
	svc := NewHTTPService(srv, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("service did not stop")
	}
	assert.True(t, srv.shutdown.Load())
	assert.Equal(t, "http-server", svc.String())
}

func TestHTTPServiceListenError(t *testing.T) {
	boom := errors.New("address in use")
	svc := NewHTTPService(&fakeServer{listenFn: func() error { return boom }}, 0)

	err := svc.Serve(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSupervisorRunsAndRestarts(t *testing.T) {
	var runs atomic.Int32
	flaky := NewFunc("flaky", func(ctx context.Context) error {
		if runs.Add(1) == 1 {
			return errors.New("first run fails")
		}
		<-ctx.Done()
		return ctx.Err()
	})

	var looped atomic.Bool
	loop := Loop("loop", func(ctx context.Context) {
		looped.Store(true)
		<-ctx.Done()
	})

	sup := New("test", TreeConfig{FailureBackoff: 10 * time.Millisecond, ShutdownTimeout: time.Second})
	sup.Add(flaky)
	sup.Add(loop)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	require.Eventually(t, func() bool { return runs.Load() >= 2 && looped.Load() }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-errCh
	assert.Equal(t, "flaky", flaky.String())
}
