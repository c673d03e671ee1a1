package api //nolint:revive // package name is intentional

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeCloser struct {
	closed atomic.Int64
}

func (f *fakeCloser) Close() error {
	f.closed.Add(1)
	return nil
}

func TestRefSwapUsesLatestValue(t *testing.T) {
	first := &fakeCloser{}
	s := newRefSwap(first)

	got, release := s.acquire()
	require.Same(t, first, got)
	release()

	next := &fakeCloser{}
	s.swap(next)

	got, release = s.acquire()
	require.Same(t, next, got)
	release()
	require.Same(t, next, s.currentValue())
}

func TestRefSwapDefersCloseUntilRelease(t *testing.T) {
	first := &fakeCloser{}
	s := newRefSwap(first)

	_, release := s.acquire()
	s.swap(&fakeCloser{})
	require.Equal(t, int64(0), first.closed.Load())

	release()
	require.Equal(t, int64(1), first.closed.Load())

	// a second release path must not close twice
	s.closeCurrent()
	require.Equal(t, int64(1), first.closed.Load())
}

func TestRefSwapClosesIdleValueOnSwap(t *testing.T) {
	first := &fakeCloser{}
	s := newRefSwap(first)

	s.swap(&fakeCloser{})

	require.Equal(t, int64(1), first.closed.Load())
}

func TestRefSwapCloseCurrent(t *testing.T) {
	first := &fakeCloser{}
	s := newRefSwap(first)

	_, release := s.acquire()
	s.closeCurrent()
	require.Equal(t, int64(0), first.closed.Load())

	release()
	require.Equal(t, int64(1), first.closed.Load())
}
