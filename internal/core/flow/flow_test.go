package flow

import (
	"math"
	"strconv"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a sink agent that captures every callback.
type recorder struct {
	id string

	mu     sync.Mutex
	topics []string
	msgs   []Message
	closed int
}

func newRecorder(id string) *recorder { return &recorder{id: id} }

func (r *recorder) Name() string { return "Recorder" }
func (r *recorder) ID() string   { return r.id }
func (r *recorder) Reset()       {}

func (r *recorder) Callback(topic string, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) OnClearInput(string) {}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.Text()
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func TestMessageViews(t *testing.T) {
	for _, s := range []string{"5", "-2.25", "1e3", " 42 ", "0.1"} {
		want, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		require.NoError(t, err)
		m := NewTextMessage(s)
		assert.Equal(t, want, m.Number(), s)
		assert.Equal(t, s, m.Text())
		assert.Equal(t, []byte(s), m.Bytes())
	}

	for _, d := range []float64{0, 14, -3.5, 1.0 / 3, 1e300, math.Inf(1)} {
		m := NewNumberMessage(d)
		assert.Equal(t, d, m.Number())
		back, err := strconv.ParseFloat(m.Text(), 64)
		require.NoError(t, err)
		assert.Equal(t, d, back)
	}

	raw := []byte("héllo")
	m := NewBytesMessage(raw)
	raw[0] = 'X'
	assert.Equal(t, "héllo", m.Text(), "source buffer must be copied")
	assert.True(t, math.IsNaN(m.Number()))
	assert.False(t, m.IsNumber())

	b := m.Bytes()
	b[0] = 'Y'
	assert.Equal(t, "héllo", m.Text())
	assert.Equal(t, "h", string(m.Bytes()[:1]))
}

func TestBytesMessageInvalidUTF8(t *testing.T) {
	raw := []byte{'a', 0xff, 0xfe, 'b'}
	m := NewBytesMessage(raw)
	assert.Equal(t, "a\uFFFDb", m.Text())
	assert.True(t, utf8.ValidString(m.Text()))
	assert.Equal(t, raw, m.Bytes(), "bytes view is not rewritten")
	assert.False(t, m.IsNumber())

	assert.Equal(t, 7.5, NewBytesMessage([]byte("7.5")).Number())
}

func TestEmptyMessage(t *testing.T) {
	m := EmptyMessage()
	assert.Empty(t, m.Bytes())
	assert.Empty(t, m.Text())
	assert.True(t, math.IsNaN(m.Number()))
	assert.False(t, m.Timestamp().IsZero())
	assert.True(t, m.Equal(NewTextMessage("")))
}

func TestSubscribeIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	topic := reg.Topic("A")
	rec := newRecorder("rec")
	for i := 0; i < 5; i++ {
		topic.Subscribe(rec)
		topic.AddPublisher(rec)
	}
	assert.Len(t, topic.Subscribers(), 1)
	assert.Len(t, topic.Publishers(), 1)

	topic.Publish(NewNumberMessage(1))
	assert.Equal(t, 1, rec.count())

	topic.Unsubscribe(rec)
	topic.RemovePublisher(rec)
	topic.Publish(NewNumberMessage(2))
	assert.Equal(t, 1, rec.count())
	assert.Empty(t, topic.Publishers())
}

func TestPublishOrderAndListener(t *testing.T) {
	reg := NewRegistry()
	var mu sync.Mutex
	var seen []string
	reg.SetListener(ListenerFuncs{
		Publish: func(topic string, msg Message) {
			mu.Lock()
			seen = append(seen, "pub:"+topic+":"+msg.Text())
			mu.Unlock()
		},
		AgentPublish: func(agentID, topic string, msg Message) {
			mu.Lock()
			seen = append(seen, "agent:"+agentID+":"+topic)
			mu.Unlock()
		},
	})

	first, second := newRecorder("first"), newRecorder("second")
	topic := reg.Topic("T")
	topic.Subscribe(first)
	topic.Subscribe(second)
	subs := topic.Subscribers()
	require.Len(t, subs, 2)
	assert.Same(t, first, subs[0])
	assert.Same(t, second, subs[1])

	topic.Publish(NewTextMessage("x"))
	topic.PublishFrom("Inc[A->T]", NewTextMessage("y"))

	assert.Equal(t, []string{"x", "y"}, first.texts())
	assert.Equal(t, []string{"x", "y"}, second.texts())
	assert.Equal(t, []string{"pub:T:x", "pub:T:y", "agent:Inc[A->T]:T"}, seen)

	reg.SetListener(nil)
	assert.Nil(t, reg.Listener())
}

func TestRegistryLifecycle(t *testing.T) {
	reg := NewRegistry()
	a := reg.Topic("b")
	assert.Same(t, a, reg.Topic("b"))
	reg.Topic("a")
	assert.Equal(t, []string{"a", "b"}, reg.Names())
	assert.Equal(t, 2, reg.Len())

	_, ok := reg.Lookup("zzz")
	assert.False(t, ok)

	reg.Clear()
	assert.Zero(t, reg.Len())
	assert.NotSame(t, a, reg.Topic("b"))
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()
	rec := newRecorder("rec")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				topic := reg.Topic(strconv.Itoa(j % 10))
				topic.Subscribe(rec)
				topic.Publish(NewNumberMessage(float64(j)))
				_ = reg.Topics()
				if i == 0 && j%50 == 0 {
					topic.Unsubscribe(rec)
				}
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, reg.Len(), 10)
}

func TestAttachAndDetach(t *testing.T) {
	reg := NewRegistry()
	rec := newRecorder("rec")
	Attach(reg, rec, []string{"A", "B"}, []string{"C"})

	assert.Len(t, reg.Topic("A").Subscribers(), 1)
	assert.Len(t, reg.Topic("B").Subscribers(), 1)
	assert.Len(t, reg.Topic("C").Publishers(), 1)

	Detach(reg, rec, []string{"A", "B"}, []string{"C"})
	assert.Empty(t, reg.Topic("A").Subscribers())
	assert.Empty(t, reg.Topic("C").Publishers())
}
