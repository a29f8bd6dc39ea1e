package agentrt

import "github.com/lumenanalytics/agentd/chunkproc"

// broadcastCapacity is the fixed channel capacity spec.md §4.5 requires
// (1024), beyond which the channel drops the oldest pending message rather
// than block the runtime.
const broadcastCapacity = 1024

// AgentMessage is one event delivered to a StreamProcessThread consumer:
// a progress update (Message non-nil), optionally paired with the C6
// ProcessedOutput for the tool call currently accumulating (CallID/Chunk
// non-nil while an Assistant message is still InProgress), or a terminal
// Done marker.
type AgentMessage struct {
	Message *Message
	CallID  string
	Chunk   *chunkproc.ProcessedOutput
	Done    bool
}

// Event is the Result<AgentMessage, AgentError> the broadcast channel
// carries: exactly one of Value or Err is set.
type Event struct {
	Value *AgentMessage
	Err   *AgentError
}

// broadcaster is a bounded, lossy-for-slow-consumers event channel: Send
// never blocks the runtime. When the channel is full, the oldest buffered
// event is dropped to make room for the new one, so a slow consumer falls
// behind rather than stalling turn processing (spec.md §4.5's broadcast
// channel contract).
type broadcaster struct {
	ch     chan Event
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{ch: make(chan Event, broadcastCapacity)}
}

// Send enqueues evt, dropping the oldest buffered event first if the
// channel is full. It is a no-op after Close.
func (b *broadcaster) Send(evt Event) {
	if b.closed {
		return
	}
	for {
		select {
		case b.ch <- evt:
			return
		default:
			select {
			case <-b.ch:
			default:
			}
		}
	}
}

// Recv exposes the channel for consumers (agentrt.Agent.StreamProcessThread
// returns this as a receive-only channel).
func (b *broadcaster) Recv() <-chan Event {
	return b.ch
}

// Close closes the channel. Safe to call once; further Sends are dropped.
func (b *broadcaster) Close() {
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}
