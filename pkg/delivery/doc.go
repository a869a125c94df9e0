// Package delivery defines the message handed to subscribers and the sink
// contract the hub delivers through.
//
// A Message is created once per accepted publish and shared, read-only, by
// every matched subscriber. The hub stamps it with a sequence number before
// fan-out:
//
//	msg := delivery.NewMessage("floor1.device11.sensor1", payload).WithSequence(seq)
//	err := sink.Deliver(ctx, "S1", msg)
//
// Sinks report failures by returning an error. The hub counts and logs them
// but never retries.
package delivery
