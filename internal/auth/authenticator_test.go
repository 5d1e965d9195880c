package auth

import (
	"context"
	"io"
	"testing"
)

func TestNegotiateNone(t *testing.T) {
	m, err := Negotiate([]string{"none"}, "", false, nil)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if m.Name() != "none" {
		t.Fatalf("got %q, want none", m.Name())
	}
}

func TestNegotiatePreferenceNotOffered(t *testing.T) {
	_, err := Negotiate([]string{"none"}, "gssapi", false, nil)
	if err == nil {
		t.Fatal("expected error when preferred mechanism is not offered")
	}
}

func TestNegotiatePrefersStrongest(t *testing.T) {
	m, err := Negotiate([]string{"none", "external", "ntlm"}, "", false, StaticCredentials{})
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if m.Name() != "ntlm" {
		t.Fatalf("got %q, want ntlm (strongest offered)", m.Name())
	}
}

func TestNegotiateNoSupportedMechanism(t *testing.T) {
	_, err := Negotiate([]string{"krb5-des"}, "", false, nil)
	if err == nil {
		t.Fatal("expected error for unsupported offer")
	}
}

func TestExternalRequiresUnix(t *testing.T) {
	m := ExternalMechanism{UnixTransport: false}
	_, err := m.Init(context.Background())
	if err != ErrExternalRequiresUnix {
		t.Fatalf("got %v, want ErrExternalRequiresUnix", err)
	}
}

// fakeExchanger implements Exchanger against a canned script of replies.
type fakeExchanger struct {
	replies  [][]byte
	complete []bool
	i        int
	sent     [][]byte
}

func (f *fakeExchanger) Exchange(ctx context.Context, payload []byte) ([]byte, bool, error) {
	f.sent = append(f.sent, payload)
	reply := f.replies[f.i]
	complete := f.complete[f.i]
	f.i++
	return reply, complete, nil
}

// pipeRW is a throwaway io.ReadWriter for exercising the layer returned by
// Run; it is never actually read from or written to in these tests.
type pipeRW struct{}

func (pipeRW) Read(p []byte) (int, error)  { return 0, io.EOF }
func (pipeRW) Write(p []byte) (int, error) { return len(p), nil }

func TestRunNoneMechanismCompletesImmediately(t *testing.T) {
	ex := &fakeExchanger{replies: [][]byte{nil}, complete: []bool{true}}
	layer, err := Run(context.Background(), NoneMechanism{}, ex, pipeRW{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if layer == nil {
		t.Fatal("expected a non-nil SecurityLayer (Passthrough) for a mechanism with no LayerNegotiator")
	}
	if len(ex.sent) != 1 {
		t.Fatalf("expected exactly one exchange, got %d", len(ex.sent))
	}
}
