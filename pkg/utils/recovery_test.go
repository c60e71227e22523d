package utils

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"gitlab.com/timkado/api/churn-analytics-platform/pkg/logger"
)

// setupTestLogger sets up a test logger and returns a function to restore the original logger
func setupTestLogger(t *testing.T) func() {
	testLogger := zaptest.NewLogger(t)
	originalLogger := logger.Log
	logger.Log = testLogger
	return func() {
		logger.Log = originalLogger
	}
}

// setupContextWithLogger creates a context with a test logger
func setupContextWithLogger(t *testing.T) context.Context {
	testLogger := zaptest.NewLogger(t)
	return logger.WithLogger(context.Background(), testLogger)
}

func TestSafeGo(t *testing.T) {
	cleanup := setupTestLogger(t)
	defer cleanup()

	// Function runs without panic
	successChan := make(chan bool, 1)
	SafeGo(func() {
		successChan <- true
	}, nil)
	if !<-successChan {
		t.Error("Expected function to execute successfully")
	}

	// Function panics and is recovered by the custom handler
	var wg sync.WaitGroup
	wg.Add(1)
	var recoveredPanic interface{}

	SafeGo(func() {
		panic("test panic")
	}, func(r interface{}, stack []byte) {
		defer wg.Done()
		recoveredPanic = r
	})

	wg.Wait()
	if recoveredPanic != "test panic" {
		t.Errorf("Expected panic to be recovered with 'test panic', got %v", recoveredPanic)
	}
}

func TestWrapWithContextRecovery(t *testing.T) {
	cleanup := setupTestLogger(t)
	defer cleanup()

	ctx := setupContextWithLogger(t)

	// Function executes without panic
	wrappedNormal := WrapWithContextRecovery(func(ctx context.Context) error { return nil })
	if err := wrappedNormal(ctx); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}

	// Function returns error without panic
	wrappedErr := WrapWithContextRecovery(func(ctx context.Context) error {
		return errors.New("test error with context")
	})
	if err := wrappedErr(ctx); err == nil || err.Error() != "test error with context" {
		t.Errorf("Expected 'test error with context', got %v", err)
	}

	// Function panics
	wrappedPanic := WrapWithContextRecovery(func(ctx context.Context) error {
		panic("test panic with context")
	})
	if err := wrappedPanic(ctx); err == nil || err.Error() != "panic recovered: test panic with context" {
		t.Errorf("Expected 'panic recovered: test panic with context', got %v", err)
	}
}

func TestSafeGoWait_PanicMarksGroupDoneOnce(t *testing.T) {
	cleanup := setupTestLogger(t)
	defer cleanup()

	var wg sync.WaitGroup
	var ran sync.WaitGroup
	ran.Add(2)
	SafeGoWait(&wg, "stop worker", func() {
		ran.Done()
		panic("stop failed")
	})
	SafeGoWait(&wg, "close connections", func() {
		ran.Done()
	})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected wait group to be released after a panicking step")
	}
	ran.Wait()

	// The group is reusable, so the counter never went negative.
	SafeGoWait(&wg, "again", func() {})
	wg.Wait()
}
