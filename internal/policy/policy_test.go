package policy

import (
	"testing"

	clierr "github.com/ggonzalez94/clonekit/internal/errors"
)

func TestCheckCommandAllowed(t *testing.T) {
	if err := CheckCommandAllowed(nil, "provision"); err != nil {
		t.Fatalf("unexpected error with empty allowlist: %v", err)
	}
	if err := CheckCommandAllowed([]string{" Cache  Show "}, "cache show"); err != nil {
		t.Fatalf("expected normalized entry to match: %v", err)
	}
	if err := CheckCommandAllowed([]string{"cache"}, "cache clear"); err != nil {
		t.Fatalf("expected group entry to allow subcommand: %v", err)
	}
	if err := CheckCommandAllowed([]string{"cache"}, "cachex"); err == nil {
		t.Fatal("group entry must not match by string prefix")
	}
	err := CheckCommandAllowed([]string{"cache show"}, "provision")
	if !clierr.Is(err, clierr.CodeBlocked) {
		t.Fatalf("expected blocked error, got %v", err)
	}
}
