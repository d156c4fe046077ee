// Package event provides a pub-sub event bus that decouples the chat protocol
// from the things that consume its output.
//
// The chat endpoint publishes what happened during a turn; the console, the
// history log and the diagnostic logger subscribe. None of them needs a
// reference to the others.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Messages:
//   - [MessageReceivedEvent]: a peer message was drained
//   - [MessageSentEvent]: a local message was appended
//
// Peer and flow:
//   - [PeerLeftEvent]: the peer's leave notice arrived or the peer vanished
//   - [BackpressureEvent]: a send found the queue full and is backing off
//   - [LeaveDroppedEvent]: the local leave notice could not be delivered
//
// Session:
//   - [SessionStartedEvent]: bootstrap resolved the role
//   - [SessionClosedEvent]: the session ended
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	bus.Subscribe(event.TypeMessageReceived, func(e event.Event) {
//	    msg := e.(event.MessageReceivedEvent)
//	    fmt.Printf("%s: %s\n", msg.Sender, msg.Text)
//	})
//
//	bus.Publish(event.NewMessageReceivedEvent(1, "A", "alice", "hello"))
//
// # Panic Recovery
//
// A panicking handler is recovered and reported through the logger set
// with [Bus.SetLogger], or stderr if none; the remaining handlers still run.
package event
