// Package didcomm implements C9: DIDComm message-type dispatch and
// routing. The cryptographic unpack/pack/mediator-transport layer is an
// external black box (spec.md §1 Non-goals) — this package defines the
// interfaces the rest of the system calls through, plus the dispatch
// registry that is actually exercised in-process.
package didcomm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Message types the server recognizes, per spec.md §6.
const (
	TypeAuthenticate             = "https://affinidi.com/webvh/1.0/authenticate"
	TypeAuthenticateResponse     = "https://affinidi.com/webvh/1.0/authenticate-response"
	TypeAuthenticateRefresh      = "https://affinidi.com/webvh/1.0/authenticate/refresh"
	TypeDIDRequest               = "https://affinidi.com/webvh/1.0/did/request"
	TypeDIDOffer                 = "https://affinidi.com/webvh/1.0/did/offer"
	TypeDIDPublish               = "https://affinidi.com/webvh/1.0/did/publish"
	TypeDIDConfirm               = "https://affinidi.com/webvh/1.0/did/confirm"
	TypeDIDWitnessPublish        = "https://affinidi.com/webvh/1.0/did/witness-publish"
	TypeDIDWitnessConfirm        = "https://affinidi.com/webvh/1.0/did/witness-confirm"
	TypeDIDInfoRequest           = "https://affinidi.com/webvh/1.0/did/info-request"
	TypeDIDInfo                  = "https://affinidi.com/webvh/1.0/did/info"
	TypeDIDListRequest           = "https://affinidi.com/webvh/1.0/did/list-request"
	TypeDIDList                  = "https://affinidi.com/webvh/1.0/did/list"
	TypeDIDDelete                = "https://affinidi.com/webvh/1.0/did/delete"
	TypeDIDDeleteConfirm         = "https://affinidi.com/webvh/1.0/did/delete-confirm"
	TypeDIDProblemReport         = "https://affinidi.com/webvh/1.0/did/problem-report"
	TypeTrustPing                = "https://didcomm.org/trust-ping/2.0/ping"
	TypeDiscoverFeatures         = "https://didcomm.org/discover-features/2.0/queries"
	TypeDiscoverFeaturesDisclose = "https://didcomm.org/discover-features/2.0/disclose"
)

// Envelope is the unpacked shape of a DIDComm plaintext message this
// package operates on; the signing/encryption envelope around it is
// the codec's concern, not this package's.
type Envelope struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	From string         `json:"from"`
	To   []string       `json:"to,omitempty"`
	Body map[string]any `json:"body"`
}

// ProblemReport builds the standard error envelope for code/comment,
// addressed back to the original sender.
func ProblemReport(to, code, comment string) *Envelope {
	return &Envelope{
		Type: TypeDIDProblemReport,
		To:   []string{to},
		Body: map[string]any{
			"code":    code,
			"comment": comment,
		},
	}
}

// Codec unpacks a wire-format packed message into an Envelope and packs
// an Envelope back into wire format for a recipient. A real
// implementation performs DIDComm signing/encryption/decryption; it is
// out of scope here, so callers depend on this interface and tests
// exercise it against a fake.
type Codec interface {
	Unpack(ctx context.Context, packed string) (*Envelope, error)
	Pack(ctx context.Context, env *Envelope, to string) (string, error)
}

// FakeCodec "packs" and "unpacks" envelopes as plain JSON, with no
// signing or encryption, mirroring FakeMediator's role as a stand-in
// for the real transport in tests and in deployments that have not
// configured one.
type FakeCodec struct{}

func (FakeCodec) Unpack(_ context.Context, packed string) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(packed), &env); err != nil {
		return nil, fmt.Errorf("unpacking envelope: %w", err)
	}
	return &env, nil
}

func (FakeCodec) Pack(_ context.Context, env *Envelope, to string) (string, error) {
	env.To = []string{to}
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("packing envelope: %w", err)
	}
	return string(b), nil
}
