package hashing

import "testing"

func TestHashDeterministic(t *testing.T) {
	if Hash("same-input") != Hash("same-input") {
		t.Fatal("expected identical digests for identical input")
	}
	if Hash("a") == Hash("b") {
		t.Fatal("expected different digests for different input")
	}
}

func TestHashKnownDigest(t *testing.T) {
	const want = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Hash(""); got != want {
		t.Fatalf("Hash(\"\") = %s, want %s", got, want)
	}
	if len(HashPrompt("hello")) != 64 {
		t.Fatalf("expected 64 hex chars")
	}
}

func TestHashUserIDEmpty(t *testing.T) {
	if got := HashUserID(""); got != "" {
		t.Fatalf("HashUserID(\"\") = %q, want empty", got)
	}
	if HashUserID("u1") != Hash("u1") {
		t.Fatal("HashUserID should match Hash for non-empty input")
	}
}
