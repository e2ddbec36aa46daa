package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/teamgate"
	"github.com/MrEthical07/teamgate/secret"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func devServices(t *testing.T) (Config, *Services) {
	t.Helper()
	clearEnv(t)

	cfg, err := LoadConfig("", DevMode)
	require.NoError(t, err)

	svc, err := Open(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return cfg, svc
}

func TestOpenDevServices(t *testing.T) {
	_, svc := devServices(t)

	require.NotNil(t, svc.Engine)
	require.NotNil(t, svc.Redis)
	assert.Nil(t, svc.Pool)
	require.NoError(t, svc.Ping(context.Background()))

	removed, err := svc.PurgeExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)

	acct, err := svc.Engine.Register(context.Background(), teamgate.NewAccountInput{
		Name: "Root", Email: "root@example.com", Password: "bootstrap-pass", Role: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, teamgate.RoleAdministrator, acct.Role)

	pendingID, err := svc.Engine.Login(context.Background(), "root@example.com", "bootstrap-pass", "198.51.100.7")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, pendingID)
}

type cutoffRecorder struct {
	cutoffs []time.Time
}

func (r *cutoffRecorder) PurgeExpired(_ context.Context, cutoff time.Time) (int64, error) {
	r.cutoffs = append(r.cutoffs, cutoff)
	return 2, nil
}

func TestPurgeExpiredKeepsRetentionGrace(t *testing.T) {
	rec := &cutoffRecorder{}
	svc := &Services{purger: rec}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	removed, err := svc.PurgeExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	require.Len(t, rec.cutoffs, 1)
	assert.Equal(t, now.Add(-secret.DefaultRetention), rec.cutoffs[0])
	assert.True(t, rec.cutoffs[0].Before(now), "a secret that just expired must survive the sweep")
}

func TestServicesCloseIsIdempotent(t *testing.T) {
	_, svc := devServices(t)
	svc.Close()
	svc.Close()
}

func TestRuntimeServesHealthAndMetrics(t *testing.T) {
	cfg, svc := devServices(t)

	rt, err := NewRuntime(cfg, svc, discardLogger())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	rt.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	rt.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRuntimeRunStopsWithContext(t *testing.T) {
	cfg, svc := devServices(t)
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.PurgeInterval = 10 * time.Millisecond

	rt, err := NewRuntime(cfg, svc, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop")
	}
}

func TestPurgeLoopRunsUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		purgeLoop(ctx, 5*time.Millisecond, func(context.Context, time.Time) (int64, error) {
			if calls.Add(1) == 2 {
				return 0, errors.New("database down")
			}
			return 1, nil
		}, discardLogger())
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestPurgeLoopDisabled(t *testing.T) {
	called := false
	purgeLoop(context.Background(), 0, func(context.Context, time.Time) (int64, error) {
		called = true
		return 0, nil
	}, discardLogger())
	assert.False(t, called)
}
