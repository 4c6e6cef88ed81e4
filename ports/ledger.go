package ports

import (
	"context"
	"time"
)

// Ledger is the read/write interface of the booking anchoring contract.
// Times are sent as Unix seconds, hashes as 0x-prefixed 32 byte hex.
type Ledger interface {
	IsTimeSlotAvailable(ctx context.Context, provider string, start, end time.Time) (bool, error)
	// Commit anchors the hash. It checks availability first and fails with
	// core.ErrSlotUnavailable when the slot is taken.
	Commit(ctx context.Context, provider string, start, end time.Time, commitmentHash string) (txHash string, err error)
	Cancel(ctx context.Context, provider string, start, end time.Time, commitmentHash string) (txHash string, err error)
	HasCommitment(ctx context.Context, provider string, commitmentHash string) (bool, error)
}
