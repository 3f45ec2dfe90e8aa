package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"price_crew/logging"
	"price_crew/models"
)

const (
	defaultMaxOutput = 4 * 1024 * 1024
	stderrTailSize   = 2048
	defaultWaitDelay = 5 * time.Second
)

// Invoker runs one region's worker for one product id. Implementations never
// return an error: every failure becomes a failed outcome.
type Invoker interface {
	Invoke(ctx context.Context, productID string, region models.Region, timeout time.Duration) models.WorkerOutcome
}

// ProcessInvoker runs each worker as its own OS process. The product id is
// appended to the region's worker arguments.
type ProcessInvoker struct {
	MaxOutputBytes int64
	WaitDelay      time.Duration
	Logger         *log.Logger
}

func NewProcessInvoker(maxOutput int64) *ProcessInvoker {
	return &ProcessInvoker{MaxOutputBytes: maxOutput}
}

func (p *ProcessInvoker) Invoke(ctx context.Context, productID string, region models.Region, timeout time.Duration) models.WorkerOutcome {
	start := time.Now()
	elapsed := func() int64 { return time.Since(start).Milliseconds() }

	runCtx, cancel := withOptionalTimeout(ctx, timeout)
	defer cancel()

	args := append(slices.Clone(region.Worker.Args), productID)
	cmd := exec.CommandContext(runCtx, region.Worker.Command, args...)
	cmd.Dir = region.Worker.Dir
	if len(region.Worker.Env) > 0 {
		cmd.Env = append(os.Environ(), region.Worker.Env...)
	}

	stdout := &limitedBuffer{max: p.maxOutput()}
	stderr := logging.NewLineWriter(p.Logger, "["+strings.ToUpper(region.Code)+"]", stderrTailSize)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = p.waitDelay()
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return models.FailedOutcome(productID, region, models.FailureSpawn,
			fmt.Sprintf("start worker: %v", err), elapsed())
	}

	waitErr := cmd.Wait()
	killProcessGroup(cmd)
	stderr.Flush()

	// A clean exit whose children kept the pipes open is still a normal
	// termination; the group is already reaped above.
	if errors.Is(waitErr, exec.ErrWaitDelay) && cmd.ProcessState != nil && cmd.ProcessState.Success() {
		log.Printf("Invoker: %s worker left processes holding its output", region.Code)
		waitErr = nil
	}

	if waitErr != nil {
		switch {
		case ctx.Err() != nil:
			return models.FailedOutcome(productID, region, models.FailureCanceled, models.MsgDispatchCanceled, elapsed())
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return models.FailedOutcome(productID, region, models.FailureTimeout, models.MsgTimeoutExceeded, elapsed())
		}
		return models.FailedOutcome(productID, region, models.FailureExit,
			exitDetail(waitErr, stderr.Tail()), elapsed())
	}

	if stdout.truncated {
		log.Printf("Invoker: %s worker output exceeded %d bytes", region.Code, stdout.max)
		return models.FailedOutcome(productID, region, models.FailureMalformed, models.MsgMalformedOutput, elapsed())
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		msg := "worker produced no output"
		if tail := stderr.Tail(); tail != "" {
			msg += ": " + tail
		}
		return models.FailedOutcome(productID, region, models.FailureExit, msg, elapsed())
	}

	outcome, err := decodeWorkerOutput([]byte(out), productID, region)
	if err != nil {
		log.Printf("Invoker: %s worker output rejected: %v", region.Code, err)
		return models.FailedOutcome(productID, region, models.FailureMalformed, models.MsgMalformedOutput, elapsed())
	}
	outcome.ElapsedMs = elapsed()
	return outcome
}

func (p *ProcessInvoker) maxOutput() int64 {
	if p.MaxOutputBytes > 0 {
		return p.MaxOutputBytes
	}
	return defaultMaxOutput
}

func (p *ProcessInvoker) waitDelay() time.Duration {
	if p.WaitDelay > 0 {
		return p.WaitDelay
	}
	return defaultWaitDelay
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func exitDetail(err error, stderrTail string) string {
	var msg string
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg = fmt.Sprintf("worker exited with code %d", exitErr.ExitCode())
	} else {
		msg = fmt.Sprintf("worker failed: %v", err)
	}
	if stderrTail != "" {
		if i := strings.LastIndexByte(stderrTail, '\n'); i >= 0 {
			stderrTail = stderrTail[i+1:]
		}
		msg += ": " + stderrTail
	}
	return msg
}

// limitedBuffer keeps at most max bytes and silently drops the rest so the
// worker never blocks on a full pipe.
type limitedBuffer struct {
	buf       []byte
	max       int64
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.max - int64(len(b.buf))
	if room <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if int64(len(p)) > room {
		b.buf = append(b.buf, p[:room]...)
		b.truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return string(b.buf)
}
