package policy

import (
	"errors"
	"testing"

	"github.com/peerloom/liveclass-service/internal/errs"
)

func TestClaimFirstWins(t *testing.T) {
	var c Claim
	if err := c.Acquire("a", false); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := c.Acquire("b", false); !errors.Is(err, errs.ErrPresenterBusy) {
		t.Fatalf("second acquire err = %v, want ErrPresenterBusy", err)
	}
	if c.Holder() != "a" {
		t.Fatalf("holder = %q, want a", c.Holder())
	}
}

func TestClaimReacquireIsNoop(t *testing.T) {
	var c Claim
	_ = c.Acquire("a", false)
	if err := c.Acquire("a", false); err != nil {
		t.Fatalf("re-acquire by holder: %v", err)
	}
}

func TestClaimHolderOnlyRelease(t *testing.T) {
	var c Claim
	_ = c.Acquire("a", false)
	if c.Release("b") {
		t.Fatal("non-holder release should report false")
	}
	if !c.Held() {
		t.Fatal("slot freed by non-holder")
	}
	if !c.Release("a") {
		t.Fatal("holder release should report true")
	}
	if c.Held() {
		t.Fatal("slot still held after release")
	}
	if c.Release("a") {
		t.Fatal("releasing a free slot should report false")
	}
}

func TestClaimForceRelease(t *testing.T) {
	var c Claim
	_ = c.Acquire("a", true)
	if !c.Immune() {
		t.Fatal("immune flag lost on acquire")
	}
	c.ForceRelease()
	if c.Held() || c.Immune() {
		t.Fatal("force release must clear holder and immunity")
	}
	if err := c.Acquire("b", false); err != nil {
		t.Fatalf("acquire after force release: %v", err)
	}
}
