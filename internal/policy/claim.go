package policy

import "github.com/peerloom/liveclass-service/internal/errs"

// Claim is a single-holder slot (presenter, spotlight) with
// first-valid-claim-wins acquire, holder-only release, and a host
// override path. Not self-synchronized; the owning state guards it.
type Claim struct {
	holder string
	immune bool
}

// Holder returns the current holder id, empty when free.
func (c *Claim) Holder() string { return c.holder }

// Held reports whether the slot is taken.
func (c *Claim) Held() bool { return c.holder != "" }

// Immune reports whether automatic rotation may not override the slot.
func (c *Claim) Immune() bool { return c.immune }

// Acquire claims the slot for userID. Re-acquiring by the current
// holder is a no-op; a claim while another user holds fails.
func (c *Claim) Acquire(userID string, immune bool) error {
	if c.holder != "" && c.holder != userID {
		return errs.ErrPresenterBusy
	}
	c.holder = userID
	c.immune = immune
	return nil
}

// Release frees the slot if userID holds it. Releasing a slot held by
// someone else (or already free) is a no-op and reports false.
func (c *Claim) Release(userID string) bool {
	if c.holder != userID || userID == "" {
		return false
	}
	c.holder = ""
	c.immune = false
	return true
}

// ForceRelease frees the slot regardless of holder. Host override.
func (c *Claim) ForceRelease() {
	c.holder = ""
	c.immune = false
}
