package pipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testItem struct {
	Link
	name string
}

func names(p *Pipe) []string {
	var out []string
	p.Each(func(it Item) { out = append(out, it.(*testItem).name) })
	return out
}

func TestPipe_FIFO(t *testing.T) {
	var p Pipe
	a, b, c := &testItem{name: "a"}, &testItem{name: "b"}, &testItem{name: "c"}
	p.Push(a)
	p.Push(b)
	p.Push(c)

	require.Equal(t, 3, p.Len())
	assert.True(t, a.Queued())

	it, ok := p.Pop()
	require.True(t, ok)
	assert.Same(t, a, it)
	assert.False(t, a.Queued())
	assert.Equal(t, []string{"b", "c"}, names(&p))
}

func TestPipe_PushAfter(t *testing.T) {
	var p Pipe
	a, b := &testItem{name: "a"}, &testItem{name: "b"}
	p.Push(a)
	p.Push(b)

	p.PushAfter(a, &testItem{name: "a2"})
	p.PushAfter(b, &testItem{name: "b2"})
	assert.Equal(t, []string{"a", "a2", "b", "b2"}, names(&p))

	// an anchor that already left the pipe degrades to Push
	p.Pop()
	p.PushAfter(a, &testItem{name: "tail"})
	assert.Equal(t, []string{"a2", "b", "b2", "tail"}, names(&p))
}

func TestPipe_RemoveMiddle(t *testing.T) {
	var p Pipe
	a, b, c := &testItem{name: "a"}, &testItem{name: "b"}, &testItem{name: "c"}
	p.Push(a)
	p.Push(b)
	p.Push(c)

	assert.True(t, p.Remove(b))
	assert.False(t, p.Remove(b), "second remove is a no-op")
	assert.Equal(t, []string{"a", "c"}, names(&p))

	var other Pipe
	assert.False(t, other.Remove(a), "item belongs to another pipe")
	assert.True(t, p.Remove(c))
	assert.True(t, p.Remove(a))
	assert.Equal(t, 0, p.Len())
	_, ok := p.Front()
	assert.False(t, ok)
}

func TestPipe_PushQueuedItemPanics(t *testing.T) {
	var p Pipe
	a := &testItem{name: "a"}
	p.Push(a)
	assert.Panics(t, func() { p.Push(a) })
}

func TestPipe_Clear(t *testing.T) {
	var p Pipe
	for _, n := range []string{"x", "y", "z"} {
		p.Push(&testItem{name: n})
	}
	var released []string
	n := p.Clear(func(it Item) {
		ti := it.(*testItem)
		assert.False(t, ti.Queued())
		released = append(released, ti.name)
	})
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"x", "y", "z"}, released)
	assert.Equal(t, 0, p.Len())
}

func TestWindow_Backpressure(t *testing.T) {
	w := NewWindow(2)
	for i := 0; i < 4; i++ {
		w.Sent()
		assert.False(t, w.Waiting(), "after %d sends", i+1)
	}
	w.Sent()
	assert.True(t, w.Waiting())

	assert.True(t, w.Ack())
	assert.Equal(t, 3, w.Outstanding())
	assert.False(t, w.Waiting())
}

func TestWindow_Generations(t *testing.T) {
	w := NewWindow(1)
	w.Sent()
	w.Sent()
	w.Sent()
	require.True(t, w.Waiting())

	gen := w.SetAck(4)
	assert.Equal(t, uint32(1), gen)
	assert.Equal(t, 0, w.Outstanding())

	w.Sent()
	assert.False(t, w.Ack(), "client has not synced the new generation")
	assert.Equal(t, 1, w.Outstanding())

	w.Sync(gen)
	assert.True(t, w.Ack())
	assert.Equal(t, 0, w.Outstanding(), "never negative")
}

func TestWindow_Disabled(t *testing.T) {
	w := NewWindow(0)
	for i := 0; i < 100; i++ {
		w.Sent()
	}
	assert.False(t, w.Waiting())
}
