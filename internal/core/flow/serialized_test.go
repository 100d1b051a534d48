package flow

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gated blocks every callback until release is closed.
type gated struct {
	*recorder
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGated() *gated {
	return &gated{recorder: newRecorder("gated"), entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gated) Callback(topic string, msg Message) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	g.recorder.Callback(topic, msg)
}

type panicky struct {
	*recorder
}

func (p panicky) Callback(topic string, msg Message) {
	if msg.Text() == "boom" {
		panic("boom")
	}
	p.recorder.Callback(topic, msg)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNewSerializedAgentValidation(t *testing.T) {
	_, err := NewSerializedAgent(nil, 1)
	assert.ErrorIs(t, err, ErrNilAgent)
	_, err = NewSerializedAgent(newRecorder("r"), 0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}

func TestSerializedAgentFIFO(t *testing.T) {
	reg := NewRegistry()
	rec := newRecorder("rec")
	sa, err := NewSerializedAgent(rec, 100)
	require.NoError(t, err)
	defer sa.Close()
	assert.Equal(t, 100, sa.Capacity())
	reg.Topic("T").Subscribe(sa)

	want := make([]string, 0, 100)
	for i := 0; i < 100; i++ {
		s := strconv.Itoa(i)
		want = append(want, s)
		reg.Topic("T").Publish(NewTextMessage(s))
	}
	waitFor(t, func() bool { return rec.count() == 100 })
	assert.Equal(t, want, rec.texts())
}

func TestSerializedAgentBackpressure(t *testing.T) {
	const capacity = 3
	inner := newGated()
	sa, err := NewSerializedAgent(inner, capacity)
	require.NoError(t, err)
	defer sa.Close()

	// The worker takes the first message and parks inside the inner callback.
	sa.Callback("T", NewTextMessage("m0"))
	<-inner.entered

	for i := 1; i <= capacity; i++ {
		sa.Callback("T", NewTextMessage(strconv.Itoa(i)))
	}
	assert.Equal(t, capacity, sa.Pending())

	blocked := make(chan struct{})
	go func() {
		sa.Callback("T", NewTextMessage("last"))
		close(blocked)
	}()

	select {
	case <-blocked:
		t.Fatal("publish into a full mailbox must block")
	case <-time.After(100 * time.Millisecond):
	}

	close(inner.release)
	select {
	case <-blocked:
	case <-time.After(3 * time.Second):
		t.Fatal("blocked publisher was not released after draining")
	}
	waitFor(t, func() bool { return inner.count() == capacity+2 })
	assert.Equal(t, []string{"m0", "1", "2", "3", "last"}, inner.texts())
}

func TestSerializedAgentCloseIsIdempotent(t *testing.T) {
	rec := newRecorder("rec")
	sa, err := NewSerializedAgent(rec, 10)
	require.NoError(t, err)

	require.NoError(t, sa.Close())
	require.NoError(t, sa.Close())
	assert.True(t, sa.Closed())
	assert.Equal(t, 1, rec.closed)

	select {
	case <-sa.Done():
	default:
		t.Fatal("worker still running after Close")
	}

	sa.Callback("T", NewTextMessage("late"))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, rec.count())

	reg := NewRegistry()
	reg.Topic("T").Subscribe(sa)
	assert.Empty(t, reg.Topic("T").Subscribers(), "closed agents are not subscribed")
}

func TestSerializedAgentCloseReleasesBlockedPublisher(t *testing.T) {
	inner := newGated()
	sa, err := NewSerializedAgent(inner, 1, WithCloseGrace(50*time.Millisecond))
	require.NoError(t, err)

	sa.Callback("T", NewTextMessage("a"))
	<-inner.entered
	sa.Callback("T", NewTextMessage("b"))

	released := make(chan struct{})
	go func() {
		sa.Callback("T", NewTextMessage("c"))
		close(released)
	}()

	start := time.Now()
	require.NoError(t, sa.Close())
	assert.Less(t, time.Since(start), time.Second)
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("publisher stayed blocked after Close")
	}
	close(inner.release)
}

func TestSerializedAgentRecoversPanics(t *testing.T) {
	rec := newRecorder("rec")
	sa, err := NewSerializedAgent(panicky{rec}, 4)
	require.NoError(t, err)
	defer sa.Close()

	sa.Callback("T", NewTextMessage("boom"))
	sa.Callback("T", NewTextMessage("ok"))
	waitFor(t, func() bool { return rec.count() == 1 })
	assert.Equal(t, []string{"ok"}, rec.texts())
}

func TestSerializedAgentDelegates(t *testing.T) {
	rec := newRecorder("Plus[A,B->C]")
	sa, err := NewSerializedAgent(rec, 1)
	require.NoError(t, err)
	defer sa.Close()

	assert.Equal(t, "Recorder", sa.Name())
	assert.Equal(t, "Plus[A,B->C]", sa.ID())
	assert.Same(t, rec, sa.Inner())
	assert.Nil(t, sa.Inputs())
	assert.Nil(t, sa.Outputs())
}
