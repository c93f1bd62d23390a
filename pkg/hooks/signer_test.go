package hooks

import (
	"strings"
	"testing"
)

func TestSignAndVerify(t *testing.T) {
	secret := "test-secret-key"
	payload := []byte(`{"session_id":"u1","object":"lookup"}`)

	sig := Sign(secret, payload)

	if !strings.HasPrefix(sig, "sha256=") {
		t.Errorf("signature should start with 'sha256=', got %q", sig)
	}
	if len(sig) != len("sha256=")+64 {
		t.Errorf("signature length = %d", len(sig))
	}
	if !Verify(secret, payload, sig) {
		t.Error("Verify should return true for valid signature")
	}
	if Verify("wrong-secret", payload, sig) {
		t.Error("Verify should return false for wrong secret")
	}
	if Verify(secret, []byte("tampered"), sig) {
		t.Error("Verify should return false for tampered payload")
	}
}
