package utils

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	tomb "gopkg.in/tomb.v2"
)

func TestWorkerPool_RunsEveryTask(t *testing.T) {
	var tb tomb.Tomb
	pool := NewWorkerPool(4)

	var wg sync.WaitGroup
	var sum atomic.Int64
	pool.Start(&tb, func(_ *tomb.Tomb, task any) error {
		defer wg.Done()
		sum.Add(int64(task.(int)))
		return nil
	})

	for i := 1; i <= 200; i++ {
		wg.Add(1)
		assert.NoError(t, pool.AddTask(&tb, i))
	}
	wg.Wait()

	tb.Kill(nil)
	assert.NoError(t, tb.Wait())
	assert.Equal(t, int64(200*201/2), sum.Load())
}

func TestWorkerPool_ErrorKillsTomb(t *testing.T) {
	var tb tomb.Tomb
	pool := NewWorkerPool(2)
	boom := errors.New("boom")

	pool.Start(&tb, func(*tomb.Tomb, any) error { return boom })
	assert.NoError(t, pool.AddTask(&tb, 1))

	assert.ErrorIs(t, tb.Wait(), boom)
	assert.ErrorIs(t, pool.AddTask(&tb, 2), ErrPoolDying)
}

func TestNewWorkerPool_MinimumSize(t *testing.T) {
	assert.Equal(t, 1, NewWorkerPool(0).Size())
}
