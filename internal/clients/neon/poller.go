package neon

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hatchpad/hatchpad-backend/internal/pkg/logger"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 5 * time.Minute
)

// OperationGetter is what the poller needs from the control-plane client.
type OperationGetter interface {
	GetOperation(ctx context.Context, projectID, operationID string) (Operation, error)
}

type PollOptions struct {
	Interval time.Duration
	Timeout  time.Duration
	// OnUpdate is a progress hook invoked after every fetch. It must not
	// block; it has no bearing on the returned status.
	OnUpdate func(projectID, operationID string, status OperationStatus)
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = DefaultPollInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultPollTimeout
	}
	return o
}

// Poller turns the control plane's fire-and-forget operations into bounded
// synchronous waits.
type Poller struct {
	ops OperationGetter
	log *logger.Logger
}

func NewPoller(ops OperationGetter, baseLog *logger.Logger) *Poller {
	return &Poller{
		ops: ops,
		log: baseLog.With("service", "NeonPoller"),
	}
}

// WaitForOne polls until the operation reaches a terminal status or the
// timeout elapses. Terminal failure statuses are returned, not wrapped as
// errors: the caller decides whether "failed" or "cancelled" aborts it.
// A timeout returns *OperationTimeoutError carrying the last observed
// non-terminal status; the operation's real outcome is unknown.
func (p *Poller) WaitForOne(ctx context.Context, projectID, operationID string, opts PollOptions) (OperationStatus, error) {
	opts = opts.withDefaults()
	started := time.Now()
	deadline := started.Add(opts.Timeout)
	lastStatus := OperationStatus("")

	for {
		op, err := p.ops.GetOperation(ctx, projectID, operationID)
		if err != nil {
			return "", err
		}
		lastStatus = op.Status
		if opts.OnUpdate != nil {
			opts.OnUpdate(projectID, operationID, op.Status)
		}
		if op.Status.Terminal() {
			return op.Status, nil
		}

		// Use the whole budget: when less than an interval remains, sleep
		// only to the deadline and take one last look before giving up.
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", &OperationTimeoutError{
				OperationID: operationID,
				LastStatus:  lastStatus,
				Waited:      time.Since(started),
			}
		}
		sleep := opts.Interval
		if sleep > remaining {
			sleep = remaining
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// WaitForMany waits for every operation independently. Sibling waits are not
// cancelled when one times out or errors: all ids settle (or exhaust their
// own budget) before this returns. The map holds the terminal status of every
// operation that did settle; the returned error is the first failure.
func (p *Poller) WaitForMany(ctx context.Context, projectID string, operationIDs []string, opts PollOptions) (map[string]OperationStatus, error) {
	results := make(map[string]OperationStatus, len(operationIDs))
	if len(operationIDs) == 0 {
		return results, nil
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, operationID := range operationIDs {
		g.Go(func() error {
			status, err := p.WaitForOne(ctx, projectID, operationID, opts)
			if err != nil {
				return err
			}
			mu.Lock()
			results[operationID] = status
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return results, err
}
