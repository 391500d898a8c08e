package vtm

import (
	"errors"
	"testing"
)

func TestErrorWrapAndDescribe(t *testing.T) {
	cause := errors.New("boom")
	e := ErrTransactionConcurrentLock(cause)
	if !IsKind(e, KindTransactionConcurrentLock) {
		t.Fatalf("expected KindTransactionConcurrentLock, got %v", e.Kind)
	}
	if !errors.Is(e, cause) {
		t.Fatalf("Error should unwrap to cause")
	}
	if e.Error() == "" {
		t.Fatal("Error() should not be empty")
	}
}

func TestRegistryDescribeUnknownCode(t *testing.T) {
	r := NewRegistry()
	if got := r.Describe(ErrorCode(99999)); got != "unknown error" {
		t.Errorf("Describe(unregistered) = %q, want %q", got, "unknown error")
	}
}

func TestRegistryCategoriesDoNotCollide(t *testing.T) {
	vtmCode := codeOf(VTMCategory, KindFileOpen)
	trieCode := codeOf(TrieCategory, KindFileOpen)
	if vtmCode == trieCode {
		t.Fatal("VTM and trie category codes must not collide")
	}
}

func TestRegistryRegisterOverride(t *testing.T) {
	r := NewRegistry()
	code := codeOf(VTMCategory, KindNoMemory)
	r.Register(code, "custom description")
	if got := r.Describe(code); got != "custom description" {
		t.Errorf("Describe after Register = %q, want override", got)
	}
}
