package agentrt

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

// TestBroadcasterPreservesFIFOOrderUnderCapacity is spec.md §8 property 6's
// first half: so long as sends never exceed the channel's capacity, every
// event surfaces to Recv in the exact order it was Sent.
func TestBroadcasterPreservesFIFOOrderUnderCapacity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("n sends within capacity drain in FIFO order", prop.ForAllNoError(
		func(callIDs []string) bool {
			b := newBroadcaster()
			for _, id := range callIDs {
				b.Send(Event{Value: &AgentMessage{CallID: id}})
			}
			b.Close()

			i := 0
			for evt := range b.Recv() {
				if evt.Value.CallID != callIDs[i] {
					return false
				}
				i++
			}
			return i == len(callIDs)
		},
		gen.SliceOfN(broadcastCapacity/2, gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestBroadcasterDropsOldestWhenOverCapacity is spec.md §8 property 6's
// second half: once sends exceed capacity, the broadcaster never blocks --
// it drops the oldest buffered event -- and whatever survives is still a
// contiguous, order-preserving suffix of what was sent.
func TestBroadcasterDropsOldestWhenOverCapacity(t *testing.T) {
	b := newBroadcaster()
	total := broadcastCapacity + 100
	for i := 0; i < total; i++ {
		b.Send(Event{Value: &AgentMessage{CallID: callIDFor(i)}})
	}
	b.Close()

	var survivors []string
	for evt := range b.Recv() {
		survivors = append(survivors, evt.Value.CallID)
	}
	// Sequential sends past capacity behave like a ring buffer: exactly the
	// last broadcastCapacity events sent survive, in order.
	require.Equal(t, broadcastCapacity, len(survivors))
	want := make([]string, 0, broadcastCapacity)
	for i := total - broadcastCapacity; i < total; i++ {
		want = append(want, callIDFor(i))
	}
	require.Equal(t, want, survivors)
}

func callIDFor(i int) string {
	return string(rune('a'+i%26)) + string(rune('A'+(i/26)%26))
}
