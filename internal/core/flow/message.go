// Package flow is the dataflow runtime: immutable messages, named topics held
// in a registry, the agent contract and the mailbox wrapper that gives each
// agent its own serialized worker.
package flow

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"time"
)

// Message is an immutable payload with bytes, text and number views computed
// once at construction.
type Message struct {
	data   []byte
	text   string
	number float64
	at     time.Time
}

// NewBytesMessage copies b and decodes it as UTF-8 text. Invalid sequences
// read as U+FFFD in the text view; the bytes view keeps them.
func NewBytesMessage(b []byte) Message {
	data := append([]byte{}, b...)
	text := strings.ToValidUTF8(string(data), "\uFFFD")
	return Message{data: data, text: text, number: parseNumber(text), at: time.Now()}
}

// NewTextMessage builds a message whose number view is the parse of s, or NaN.
func NewTextMessage(s string) Message {
	return Message{data: []byte(s), text: s, number: parseNumber(s), at: time.Now()}
}

// NewNumberMessage builds a message whose text view is the shortest decimal
// form that parses back to v.
func NewNumberMessage(v float64) Message {
	text := strconv.FormatFloat(v, 'g', -1, 64)
	return Message{data: []byte(text), text: text, number: v, at: time.Now()}
}

// EmptyMessage has empty bytes, empty text and a NaN number.
func EmptyMessage() Message {
	return Message{data: []byte{}, number: math.NaN(), at: time.Now()}
}

// Bytes returns a copy of the bytes view.
func (m Message) Bytes() []byte {
	return append([]byte{}, m.data...)
}

func (m Message) Text() string { return m.text }

// Number is NaN when the message has no numeric reading.
func (m Message) Number() float64 { return m.number }

// IsNumber reports whether Number is not NaN.
func (m Message) IsNumber() bool { return !math.IsNaN(m.number) }

func (m Message) Timestamp() time.Time { return m.at }

// Equal compares the bytes views.
func (m Message) Equal(o Message) bool {
	return bytes.Equal(m.data, o.data)
}

func (m Message) String() string { return m.text }

func parseNumber(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		// ParseFloat reports ±Inf with ErrRange for overflowing input; keep
		// that reading instead of collapsing it to NaN.
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return v
		}
		return math.NaN()
	}
	return v
}
