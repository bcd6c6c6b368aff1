package jobqueue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewManager(t *testing.T) {
	queue := NewQueue(nil, Config{})
	manager := NewManager(queue)

	assert.Same(t, queue, manager.GetQueue())
	assert.False(t, manager.IsRunning())
	assert.Empty(t, manager.tasks)
}

func TestManager_StopWithoutStart(t *testing.T) {
	manager := NewManager(NewQueue(nil, Config{}))

	assert.False(t, manager.IsRunning())
	manager.Stop()
	assert.False(t, manager.IsRunning())
}

func TestManager_RunsPeriodicTasks(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)

	var runs int32
	manager := NewManager(NewQueue(client, Config{Workers: 1}))
	manager.AddTask(PeriodicTask{
		Name:     "test ticker",
		Interval: 20 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})
	manager.AddTask(PeriodicTask{Name: "disabled", Interval: 0})

	manager.Start()
	assert.True(t, manager.IsRunning())

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) >= 2 }, 2*time.Second, 10*time.Millisecond)

	manager.Stop()
	assert.False(t, manager.IsRunning())

	after := atomic.LoadInt32(&runs)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&runs))
}
