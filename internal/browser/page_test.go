package browser

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCombineContextCancelsWithCaller(t *testing.T) {
	pageCtx := context.Background()
	callCtx, cancelCall := context.WithCancel(context.Background())

	combined, cancel := combineContext(pageCtx, callCtx)
	defer cancel()

	cancelCall()
	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context did not observe caller cancellation")
	}
}

func TestCombineContextCancelsWithPage(t *testing.T) {
	pageCtx, cancelPage := context.WithCancel(context.Background())
	combined, cancel := combineContext(pageCtx, context.Background())
	defer cancel()

	cancelPage()
	select {
	case <-combined.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context did not observe page cancellation")
	}
}

func TestJSReadStorageTargetsRequestedStore(t *testing.T) {
	script := jsReadStorage("localStorage")
	assert.True(t, strings.Contains(script, "window.localStorage"))
	assert.False(t, strings.Contains(script, "sessionStorage"))
}
