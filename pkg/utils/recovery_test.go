package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.com/jackdesk/api/bcast-conversation-hub/pkg/logger"
)

func swapTestLogger(t *testing.T) {
	t.Helper()
	original := logger.Log
	logger.Log = zaptest.NewLogger(t)
	t.Cleanup(func() { logger.Log = original })
}

func TestSafeGo_RunsFunction(t *testing.T) {
	swapTestLogger(t)

	done := make(chan struct{})
	SafeGo(func() { close(done) }, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestSafeGo_PanicReachesHandler(t *testing.T) {
	swapTestLogger(t)

	var wg sync.WaitGroup
	wg.Add(1)
	var recovered interface{}
	var stack []byte

	SafeGo(func() {
		panic("campaign worker blew up")
	}, func(r interface{}, s []byte) {
		recovered = r
		stack = s
		wg.Done()
	})

	wg.Wait()
	assert.Equal(t, "campaign worker blew up", recovered)
	require.NotEmpty(t, stack)
}

func TestSafeGo_PanicWithoutHandlerIsLogged(t *testing.T) {
	swapTestLogger(t)

	var wg sync.WaitGroup
	wg.Add(1)
	SafeGo(func() {
		defer wg.Done()
		panic("unhandled")
	}, nil)

	// Must not crash the test process; the default handler logs and returns.
	wg.Wait()
}
