package passphrase

import "testing"

func TestSourceReadsEnvironment(t *testing.T) {
	t.Setenv("YEI_TEST_PASS", "correct horse")
	src := NewSource("YEI_TEST_PASS")
	got, err := src.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "correct horse" {
		t.Fatalf("unexpected passphrase %q", got)
	}
	t.Setenv("YEI_TEST_PASS", "changed")
	if again, _ := src.Get(); again != "correct horse" {
		t.Fatalf("expected cached passphrase, got %q", again)
	}
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("YEI_TEST_PASS", "   ")
	if _, err := NewSource("YEI_TEST_PASS").Get(); err == nil {
		t.Fatal("expected blank passphrase to be rejected")
	}
}
