package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishOrder(t *testing.T) {
	bus := NewBus[string]()
	var got []string

	bus.Subscribe(func(e string) { got = append(got, "a:"+e) })
	bus.Subscribe(func(e string) { got = append(got, "b:"+e) })

	bus.Publish("x")

	assert.Equal(t, []string{"a:x", "b:x"}, got)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus[int]()
	calls := 0

	sub := bus.Subscribe(func(int) { calls++ })
	bus.Publish(1)

	assert.True(t, bus.Unsubscribe(sub))
	assert.False(t, bus.Unsubscribe(sub))
	bus.Publish(2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Len())
}

func TestUnsubscribeFromHandler(t *testing.T) {
	bus := NewBus[int]()
	calls := 0

	var sub Subscription
	sub = bus.Subscribe(func(int) {
		calls++
		bus.Unsubscribe(sub)
	})

	bus.Publish(1)
	bus.Publish(2)

	assert.Equal(t, 1, calls)
}
