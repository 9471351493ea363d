package didcomm

import "context"

// Mediator is the duplex connection to a DIDComm mediator that delivers
// inbound envelopes and accepts outbound ones. The real transport
// (WebSocket to a mediator, live unpack/pack) is out of scope per
// spec.md §1; this interface exists so the messaging worker (C11) and
// this package's dispatch logic are exercised and testable against a
// fake, mirroring the teacher's pkg/slack.Provider pattern of a real
// implementation plus a test fake.
type Mediator interface {
	Connect(ctx context.Context) error
	Recv() <-chan Envelope
	Send(ctx context.Context, env Envelope) error
	Close() error
}

// FakeMediator is an in-memory Mediator used by tests and by the
// messaging worker, since no real mediator transport is bundled.
type FakeMediator struct {
	inbox  chan Envelope
	sent   []Envelope
	closed bool
}

// NewFakeMediator constructs a FakeMediator with the given inbound
// channel buffer size.
func NewFakeMediator(buffer int) *FakeMediator {
	return &FakeMediator{inbox: make(chan Envelope, buffer)}
}

func (f *FakeMediator) Connect(ctx context.Context) error { return nil }

func (f *FakeMediator) Recv() <-chan Envelope { return f.inbox }

func (f *FakeMediator) Send(ctx context.Context, env Envelope) error {
	f.sent = append(f.sent, env)
	return nil
}

func (f *FakeMediator) Close() error {
	if !f.closed {
		f.closed = true
		close(f.inbox)
	}
	return nil
}

// Deliver injects an inbound envelope, simulating a message arriving
// from the mediator.
func (f *FakeMediator) Deliver(env Envelope) {
	f.inbox <- env
}

// Sent returns every envelope passed to Send, for test assertions.
func (f *FakeMediator) Sent() []Envelope {
	return f.sent
}
