package didcomm_test

import (
	"context"
	"testing"

	"github.com/affinidi/webvh-server/internal/didcomm"
)

func TestRegistryDispatchesRegisteredType(t *testing.T) {
	reg := didcomm.NewRegistry()
	called := false
	reg.Register(didcomm.TypeDIDRequest, func(ctx context.Context, env *didcomm.Envelope) (*didcomm.Envelope, error) {
		called = true
		return &didcomm.Envelope{Type: didcomm.TypeDIDOffer, To: []string{env.From}}, nil
	})

	resp, err := reg.Dispatch(context.Background(), &didcomm.Envelope{Type: didcomm.TypeDIDRequest, From: "did:example:alice"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !called {
		t.Fatal("handler was not invoked")
	}
	if resp.Type != didcomm.TypeDIDOffer {
		t.Fatalf("resp.Type = %q", resp.Type)
	}
}

func TestRegistryDispatchUnknownTypeReturnsProblemReport(t *testing.T) {
	reg := didcomm.NewRegistry()
	resp, err := reg.Dispatch(context.Background(), &didcomm.Envelope{Type: "https://example.com/unknown/1.0", From: "did:example:bob"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if resp.Type != didcomm.TypeDIDProblemReport {
		t.Fatalf("resp.Type = %q, want problem-report", resp.Type)
	}
	if len(resp.To) != 1 || resp.To[0] != "did:example:bob" {
		t.Fatalf("resp.To = %v", resp.To)
	}
}

func TestFakeMediatorDeliverAndSend(t *testing.T) {
	m := didcomm.NewFakeMediator(1)
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	m.Deliver(didcomm.Envelope{Type: didcomm.TypeTrustPing})
	got := <-m.Recv()
	if got.Type != didcomm.TypeTrustPing {
		t.Fatalf("Recv() = %+v", got)
	}

	if err := m.Send(context.Background(), didcomm.Envelope{Type: didcomm.TypeDIDInfo}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent := m.Sent(); len(sent) != 1 || sent[0].Type != didcomm.TypeDIDInfo {
		t.Fatalf("Sent() = %+v", sent)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
