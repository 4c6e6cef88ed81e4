package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/layer-3/eden/core"
	"github.com/layer-3/eden/ports"
)

// ErrNotConfigured is returned by every call on an Unconfigured ledger.
var ErrNotConfigured = fmt.Errorf("%w: contract address not configured", core.ErrLedger)

// Unconfigured stands in for the contract when no RPC endpoint or contract
// address is set. Bookings created against it stay pending.
type Unconfigured struct{}

var _ ports.Ledger = Unconfigured{}

func (Unconfigured) IsTimeSlotAvailable(context.Context, string, time.Time, time.Time) (bool, error) {
	return false, ErrNotConfigured
}

func (Unconfigured) Commit(context.Context, string, time.Time, time.Time, string) (string, error) {
	return "", ErrNotConfigured
}

func (Unconfigured) Cancel(context.Context, string, time.Time, time.Time, string) (string, error) {
	return "", ErrNotConfigured
}

func (Unconfigured) HasCommitment(context.Context, string, string) (bool, error) {
	return false, ErrNotConfigured
}
