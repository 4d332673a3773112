package neon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hatchpad/hatchpad-backend/internal/pkg/logger"
)

type fakeOperationGetter struct {
	mu       sync.Mutex
	statuses map[string][]OperationStatus
	fetches  map[string]int
}

func newFakeOperationGetter() *fakeOperationGetter {
	return &fakeOperationGetter{
		statuses: map[string][]OperationStatus{},
		fetches:  map[string]int{},
	}
}

func (f *fakeOperationGetter) set(operationID string, seq ...OperationStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[operationID] = seq
}

func (f *fakeOperationGetter) GetOperation(_ context.Context, _ string, operationID string) (Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seq, ok := f.statuses[operationID]
	if !ok {
		return Operation{}, errors.New("unknown operation")
	}
	i := f.fetches[operationID]
	f.fetches[operationID]++
	if i >= len(seq) {
		i = len(seq) - 1
	}
	return Operation{ID: operationID, Status: seq[i]}, nil
}

func (f *fakeOperationGetter) fetchCount(operationID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[operationID]
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	require.NoError(t, err)
	return log
}

func TestWaitForOne_TerminalOnFirstPoll(t *testing.T) {
	ops := newFakeOperationGetter()
	ops.set("op-1", StatusFinished)
	poller := NewPoller(ops, testLogger(t))

	started := time.Now()
	status, err := poller.WaitForOne(context.Background(), "proj", "op-1", PollOptions{
		Interval: 2 * time.Second,
		Timeout:  10 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, status)
	// A first-poll terminal must return without sleeping an interval.
	assert.Less(t, time.Since(started), time.Second)
	assert.Equal(t, 1, ops.fetchCount("op-1"))
}

func TestWaitForOne_FailedIsReturnedNotError(t *testing.T) {
	ops := newFakeOperationGetter()
	ops.set("op-1", StatusRunning, StatusFailed)
	poller := NewPoller(ops, testLogger(t))

	status, err := poller.WaitForOne(context.Background(), "proj", "op-1", PollOptions{
		Interval: 5 * time.Millisecond,
		Timeout:  time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status)
	assert.True(t, status.Terminal())
	assert.False(t, status.Succeeded())
}

func TestWaitForOne_TimeoutCarriesLastStatus(t *testing.T) {
	ops := newFakeOperationGetter()
	ops.set("op-1", StatusScheduling, StatusRunning)
	poller := NewPoller(ops, testLogger(t))

	status, err := poller.WaitForOne(context.Background(), "proj", "op-1", PollOptions{
		Interval: 5 * time.Millisecond,
		Timeout:  30 * time.Millisecond,
	})
	require.Error(t, err)
	assert.Empty(t, status)

	var timeoutErr *OperationTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "op-1", timeoutErr.OperationID)
	assert.Equal(t, StatusRunning, timeoutErr.LastStatus)
}

func TestWaitForOne_OnUpdateObservesEveryPoll(t *testing.T) {
	ops := newFakeOperationGetter()
	ops.set("op-1", StatusScheduling, StatusRunning, StatusFinished)
	poller := NewPoller(ops, testLogger(t))

	var seen []OperationStatus
	_, err := poller.WaitForOne(context.Background(), "proj", "op-1", PollOptions{
		Interval: time.Millisecond,
		Timeout:  time.Second,
		OnUpdate: func(projectID, operationID string, status OperationStatus) {
			assert.Equal(t, "proj", projectID)
			assert.Equal(t, "op-1", operationID)
			seen = append(seen, status)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []OperationStatus{StatusScheduling, StatusRunning, StatusFinished}, seen)
}

func TestWaitForOne_FinalPollAtDeadline(t *testing.T) {
	ops := newFakeOperationGetter()
	ops.set("op-1", StatusRunning, StatusFinished)
	poller := NewPoller(ops, testLogger(t))

	// Less than one interval of budget remains after the first poll; the
	// poller still spends it instead of timing out an interval early.
	status, err := poller.WaitForOne(context.Background(), "proj", "op-1", PollOptions{
		Interval: 100 * time.Millisecond,
		Timeout:  60 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, status)
	assert.Equal(t, 2, ops.fetchCount("op-1"))
}

func TestWaitForMany_SiblingsSettleIndependently(t *testing.T) {
	ops := newFakeOperationGetter()
	ops.set("op-fast", StatusFinished)
	ops.set("op-slow", StatusRunning, StatusRunning, StatusCancelled)
	ops.set("op-stuck", StatusRunning)
	poller := NewPoller(ops, testLogger(t))

	results, err := poller.WaitForMany(context.Background(), "proj", []string{"op-fast", "op-slow", "op-stuck"}, PollOptions{
		Interval: 5 * time.Millisecond,
		Timeout:  40 * time.Millisecond,
	})

	// op-stuck times out but op-slow still settled to its terminal status.
	var timeoutErr *OperationTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "op-stuck", timeoutErr.OperationID)
	assert.Equal(t, StatusFinished, results["op-fast"])
	assert.Equal(t, StatusCancelled, results["op-slow"])
	_, stuckSettled := results["op-stuck"]
	assert.False(t, stuckSettled)
}

func TestWaitForMany_NoOperations(t *testing.T) {
	poller := NewPoller(newFakeOperationGetter(), testLogger(t))
	results, err := poller.WaitForMany(context.Background(), "proj", nil, PollOptions{})
	require.NoError(t, err)
	assert.Empty(t, results)
}
