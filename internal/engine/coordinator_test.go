package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	name    string
	started atomic.Bool
	stopped atomic.Bool
	panicOn bool
	block   time.Duration // keeps running after cancel
}

func (f *fakeRunner) Name() string { return f.name }

func (f *fakeRunner) Run(ctx context.Context) error {
	f.started.Store(true)
	if f.panicOn {
		panic("boom")
	}
	<-ctx.Done()
	if f.block > 0 {
		time.Sleep(f.block)
	}
	f.stopped.Store(true)
	return nil
}

type fakeStore struct {
	mu     sync.Mutex
	closed int
	err    error
}

func (f *fakeStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.err
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestRunRequiresAtLeastOneRunner(t *testing.T) {
	c := New(Config{}, nil, &fakeStore{}, quietLogger())
	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no strategies enabled")
}

func TestRunStartsAllAndFlushesStoreOnShutdown(t *testing.T) {
	runners := []*fakeRunner{{name: "momentum"}, {name: "penny"}}
	store := &fakeStore{}
	c := New(Config{ShutdownGrace: time.Second}, []Runner{runners[0], runners[1]}, store, quietLogger())
	c.SetSeed(1)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		return runners[0].started.Load() && runners[1].started.Load()
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)
	assert.True(t, runners[0].stopped.Load())
	assert.True(t, runners[1].stopped.Load())
	assert.Equal(t, 1, store.closed)
}

func TestPanickingRunnerDoesNotTakeOthersDown(t *testing.T) {
	bad := &fakeRunner{name: "deep_analyzer", panicOn: true}
	good := &fakeRunner{name: "momentum"}
	c := New(Config{ShutdownGrace: time.Second}, []Runner{bad, good}, &fakeStore{}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return good.started.Load() }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)
	assert.True(t, good.stopped.Load())
}

func TestShutdownGraceBoundsDrain(t *testing.T) {
	slow := &fakeRunner{name: "momentum", block: 3 * time.Second}
	c := New(Config{ShutdownGrace: 50 * time.Millisecond}, []Runner{slow}, &fakeStore{}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return slow.started.Load() }, 2*time.Second, 5*time.Millisecond)
	start := time.Now()
	cancel()
	require.NoError(t, <-errCh)
	assert.Less(t, time.Since(start), 2*time.Second, "Run returns once the grace lapses")
}

func TestStoreFlushErrorSurfaces(t *testing.T) {
	r := &fakeRunner{name: "momentum"}
	store := &fakeStore{err: errors.New("disk full")}
	c := New(Config{ShutdownGrace: time.Second}, []Runner{r}, store, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	require.Eventually(t, func() bool { return r.started.Load() }, 2*time.Second, 5*time.Millisecond)
	cancel()

	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestStartupStaggerDelaysLaunch(t *testing.T) {
	r := &fakeRunner{name: "momentum"}
	c := New(Config{StartupDelay: 40 * time.Millisecond, ShutdownGrace: time.Second}, []Runner{r}, &fakeStore{}, quietLogger())
	c.SetSeed(42)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return r.started.Load() }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)
}
