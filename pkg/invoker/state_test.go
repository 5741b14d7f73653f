package invoker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLifecycle_TransitionSucceedsOnlyFromExpectedState(t *testing.T) {
	var l lifecycle
	assert.Equal(t, StateNew, l.current())

	assert.False(t, l.transition(StateOpened, StateClosing), "transition from the wrong state must fail")
	assert.Equal(t, StateNew, l.current())

	assert.True(t, l.transition(StateNew, StateOpening))
	assert.Equal(t, StateOpening, l.current())

	assert.False(t, l.transition(StateNew, StateOpening), "a second transition from the same origin must fail once it has moved on")
}

func TestLifecycle_ConcurrentTransitionsOnlyOneWins(t *testing.T) {
	var l lifecycle
	const n = 50
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		go func() {
			wins <- l.transition(StateNew, StateOpening)
		}()
	}
	successes := 0
	for i := 0; i < n; i++ {
		if <-wins {
			successes++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, StateOpening, l.current())
}

func TestLifecycle_SetForcesStateUnconditionally(t *testing.T) {
	var l lifecycle
	l.set(StateClosed)
	assert.Equal(t, StateClosed, l.current())
}

func TestState_StringCoversAllValues(t *testing.T) {
	cases := map[State]string{
		StateNew:     "NEW",
		StateOpening: "OPENING",
		StateOpened:  "OPENED",
		StateClosing: "CLOSING",
		StateClosed:  "CLOSED",
		State(99):    "UNKNOWN",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}
