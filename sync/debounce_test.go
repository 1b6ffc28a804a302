package sync

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer_CoalescesBurst(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(40*time.Millisecond, func() { fired.Add(1) })
	defer d.Stop()

	for i := 0; i < 20; i++ {
		d.Trigger()
		time.Sleep(time.Millisecond)
	}
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestDebouncer_SeparatedTriggersFireEach(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { fired.Add(1) })
	defer d.Stop()

	for i := 0; i < 3; i++ {
		d.Trigger()
		time.Sleep(80 * time.Millisecond)
	}
	assert.Equal(t, int32(3), fired.Load())
}

func TestDebouncer_StopCancelsPending(t *testing.T) {
	var fired atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { fired.Add(1) })
	d.Trigger()
	d.Stop()
	d.Trigger()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
