package uploader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smahi/mirrorbot/internal/hosts"
	"github.com/smahi/mirrorbot/internal/hosts/mockhost"
	"github.com/smahi/mirrorbot/internal/models"
	"github.com/smahi/mirrorbot/internal/status"
)

func newTestScheduler(t *testing.T, cfg Config, mocks ...*mockhost.Host) (*Scheduler, *status.Registry) {
	t.Helper()
	set := hosts.NewSet()
	for _, m := range mocks {
		set.RegisterUploader(m)
	}
	registry := status.New(status.DefaultGrace)
	return New(registry, set, cfg), registry
}

func testJob(hostNames ...string) models.UploadJob {
	return models.UploadJob{
		Section:      "Ebooks",
		ItemTitle:    "Some Release",
		ArtifactPath: "/tmp/release.rar",
		Hosts:        hostNames,
	}
}

func TestAllHostsSucceed(t *testing.T) {
	h1 := mockhost.New("h1.example")
	h2 := mockhost.New("h2.example")
	h3 := mockhost.New("h3.example")
	s, registry := newTestScheduler(t, Config{}, h1, h2, h3)

	batch, err := s.NewBatch(testJob("h1.example", "h2.example", "h3.example"))
	require.NoError(t, err)

	outcome := batch.Run(context.Background())
	assert.Equal(t, OutcomeSuccess, outcome)

	urls := batch.SuccessfulURLs()
	require.Len(t, urls, 3)
	for host, hostURLs := range urls {
		require.Len(t, hostURLs, 1, "one url per host")
		assert.Contains(t, hostURLs[0], host)
	}

	ops := registry.GetAll()
	require.Len(t, ops, 1)
	assert.Equal(t, models.StatusCompleted, ops[0].Status)
	assert.Len(t, ops[0].HostResults, 3)
	for _, r := range ops[0].HostResults {
		assert.Equal(t, models.HostSuccess, r.Status)
	}
}

func TestRetryOnlyFailedHosts(t *testing.T) {
	hA := mockhost.New("a.example")
	hB := mockhost.New("b.example")
	hA.Script("/tmp/release.rar", mockhost.Behavior{Fail: true})
	s, _ := newTestScheduler(t, Config{MinSuccessHosts: 2, MaxRetries: 3}, hA, hB)

	batch, err := s.NewBatch(testJob("a.example", "b.example"))
	require.NoError(t, err)

	outcome := batch.Run(context.Background())
	assert.Equal(t, OutcomeFailed, outcome, "policy needs both hosts")

	results := batch.Results()
	assert.Equal(t, models.HostFailed, results["a.example"].Status)
	assert.Equal(t, models.HostSuccess, results["b.example"].Status)
	urlBefore := results["b.example"].URLs[0]

	// Fix the flaky host and retry; only it should be re-attempted.
	hA.Script("/tmp/release.rar", mockhost.Behavior{})
	outcome, err = batch.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)

	assert.Len(t, hA.Uploads(), 2, "failed host re-attempted")
	assert.Len(t, hB.Uploads(), 1, "succeeded host left alone")
	assert.Equal(t, urlBefore, batch.Results()["b.example"].URLs[0], "recorded url untouched")
}

func TestRetryBudget(t *testing.T) {
	hA := mockhost.New("a.example")
	hA.Script("/tmp/release.rar", mockhost.Behavior{Fail: true})
	s, _ := newTestScheduler(t, Config{MaxRetries: 2}, hA)

	batch, _, err := s.RunWithRetries(context.Background(), testJob("a.example"))
	require.Error(t, err, "retry budget must stop a permanently failing host")
	assert.Len(t, hA.Uploads(), 3, "initial pass plus two retries")
	assert.Equal(t, models.HostFailed, batch.Results()["a.example"].Status)
}

func TestCancelRetryRestart(t *testing.T) {
	hA := mockhost.New("a.example")
	hB := mockhost.New("b.example")
	hA.Script("/tmp/release.rar", mockhost.Behavior{Ticks: 100, TickDelay: 50 * time.Millisecond})
	s, _ := newTestScheduler(t, Config{MinSuccessHosts: 2}, hA, hB)

	batch, err := s.NewBatch(testJob("a.example", "b.example"))
	require.NoError(t, err)

	done := make(chan Outcome, 1)
	go func() { done <- batch.Run(context.Background()) }()

	time.Sleep(100 * time.Millisecond)
	batch.Cancel()
	batch.Cancel() // idempotent

	select {
	case outcome := <-done:
		assert.Equal(t, OutcomeCancelled, outcome)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	// A fresh retry pass after the cancel must reach a clean success.
	hA.Script("/tmp/release.rar", mockhost.Behavior{})
	outcome, err := batch.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	for host, r := range batch.Results() {
		assert.Equal(t, models.HostSuccess, r.Status, "host %s", host)
	}
}

func TestCancelledPassKeepsRetryBudget(t *testing.T) {
	hA := mockhost.New("a.example")
	hA.Script("/tmp/release.rar", mockhost.Behavior{Ticks: 100, TickDelay: 50 * time.Millisecond})
	s, _ := newTestScheduler(t, Config{MaxRetries: 1}, hA)

	batch, err := s.NewBatch(testJob("a.example"))
	require.NoError(t, err)

	done := make(chan Outcome, 1)
	go func() { done <- batch.Run(context.Background()) }()
	time.Sleep(100 * time.Millisecond)
	batch.Cancel()
	require.Equal(t, OutcomeCancelled, <-done)

	// Restarting after the cancel is free; only the failing pass below
	// draws on the single-retry budget.
	hA.Script("/tmp/release.rar", mockhost.Behavior{Fail: true})
	outcome, err := batch.Retry(context.Background())
	require.NoError(t, err, "retry after a cancel must not be budget-limited")
	require.Equal(t, OutcomeFailed, outcome)

	hA.Script("/tmp/release.rar", mockhost.Behavior{})
	outcome, err = batch.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, outcome)
	assert.Equal(t, models.HostSuccess, batch.Results()["a.example"].Status)
}

func TestMinSuccessPolicy(t *testing.T) {
	hA := mockhost.New("a.example")
	hB := mockhost.New("b.example")
	hA.Script("/tmp/release.rar", mockhost.Behavior{Fail: true})

	// Default policy: one good host is enough.
	s, _ := newTestScheduler(t, Config{}, hA, hB)
	batch, err := s.NewBatch(testJob("a.example", "b.example"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, batch.Run(context.Background()))
}

func TestMissingCapabilityFailsThatHostOnly(t *testing.T) {
	hB := mockhost.New("b.example")
	s, _ := newTestScheduler(t, Config{}, hB)

	batch, err := s.NewBatch(testJob("ghost.example", "b.example"))
	require.NoError(t, err)

	outcome := batch.Run(context.Background())
	assert.Equal(t, OutcomeSuccess, outcome, "one good host still satisfies the policy")

	results := batch.Results()
	assert.Equal(t, models.HostFailed, results["ghost.example"].Status)
	assert.Contains(t, results["ghost.example"].Error, "no capability")
	assert.Equal(t, models.HostSuccess, results["b.example"].Status)
}

func TestEmptyHostListRejected(t *testing.T) {
	s, _ := newTestScheduler(t, Config{})
	_, err := s.NewBatch(testJob())
	require.Error(t, err)
}
