package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ruddro420/storefront-cart/pkg/logger"
)

type fakeLock struct {
	acquired bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	failing := &testJob{name: "fail", err: errors.New("boom")}
	success := &testJob{name: "success"}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(failing, nil, success),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if failing.runs != 1 || success.runs != 1 {
		t.Fatalf("expected both jobs to run once, got %d and %d", failing.runs, success.runs)
	}
	if lock.releases != 1 || lock.acquired {
		t.Fatalf("expected lock released after the cycle")
	}
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{acquired: true},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job skipped while lock is held")
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "job"}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Registry: NewRegistry(job), Interval: time.Hour})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the initial cycle to run, ran %d", job.runs)
	}
}

func TestNewServiceRequiresLogger(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatalf("expected error without logger")
	}
}

type fakeDeleter struct {
	removed int64
	err     error
	calls   int
}

func (f *fakeDeleter) DeleteExpired(context.Context) (int64, error) {
	f.calls++
	return f.removed, f.err
}

func TestCartExpiryJob(t *testing.T) {
	deleter := &fakeDeleter{removed: 3}
	job, err := NewCartExpiryJob(deleter, nil)
	if err != nil {
		t.Fatalf("new job: %v", err)
	}
	if job.Name() != cartExpiryJobName {
		t.Fatalf("unexpected name %s", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if deleter.calls != 1 {
		t.Fatalf("expected one sweep, got %d", deleter.calls)
	}

	deleter.err = errors.New("db gone")
	if err := job.Run(context.Background()); err == nil {
		t.Fatalf("expected sweep error to surface")
	}

	if _, err := NewCartExpiryJob(nil, nil); err == nil {
		t.Fatalf("expected error without a store")
	}
}
