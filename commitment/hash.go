// Package commitment computes the deterministic content hash that anchors a
// booking on the ledger.
package commitment

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/layer-3/eden/core"
)

// Prefix precedes the hex digest, giving a bytes32-style identifier.
const Prefix = "0x"

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Input holds the booking fields covered by the commitment.
type Input struct {
	BookingID       string
	ProviderAddress string
	ClientAddress   string // Empty when absent
	StartTime       time.Time
	EndTime         time.Time
	Metadata        core.Metadata
}

// FromBooking extracts the hashed fields of b.
func FromBooking(b core.Booking) Input {
	return Input{
		BookingID:       b.ID,
		ProviderAddress: b.ProviderAddress,
		ClientAddress:   b.ClientAddress,
		StartTime:       b.StartTime,
		EndTime:         b.EndTime,
		Metadata:        b.Metadata,
	}
}

// Hash returns "0x" followed by the hex SHA-256 of the canonical encoding of in.
func Hash(in Input) string {
	sum := sha256.Sum256(Canonical(in))
	return Prefix + hex.EncodeToString(sum[:])
}

// Verify recomputes the hash of in and compares it with expected, ignoring
// hex case. A malformed expected value never verifies.
func Verify(in Input, expected string) bool {
	if !IsValid(expected) {
		return false
	}
	return strings.EqualFold(Hash(in), expected)
}

// IsValid reports whether h has the 0x + 64 hex digit form.
func IsValid(h string) bool {
	digits, ok := strings.CutPrefix(h, Prefix)
	if !ok || len(digits) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(digits)
	return err == nil
}

// Canonical renders in as compact JSON with a fixed top-level field order,
// lower-cased addresses, UTC millisecond timestamps, an empty string for a
// missing client and sorted metadata keys. Strings are NFC normalized and
// HTML characters are not escaped.
func Canonical(in Input) []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	writeField(&buf, "bookingId", in.BookingID, true)
	writeField(&buf, "providerAddress", strings.ToLower(in.ProviderAddress), false)
	writeField(&buf, "clientAddress", strings.ToLower(in.ClientAddress), false)
	writeField(&buf, "startTime", in.StartTime.UTC().Format(timeLayout), false)
	writeField(&buf, "endTime", in.EndTime.UTC().Format(timeLayout), false)

	buf.WriteString(`,"metadata":{`)
	keys := make([]string, 0, len(in.Metadata))
	for k := range in.Metadata {
		keys = append(keys, k)
	}
	// Ties between keys with the same NFC form fall back to the raw key so
	// the order never depends on map iteration.
	sort.Slice(keys, func(i, j int) bool {
		ni, nj := norm.NFC.String(keys[i]), norm.NFC.String(keys[j])
		if ni != nj {
			return ni < nj
		}
		return keys[i] < keys[j]
	})
	for i, k := range keys {
		writeField(&buf, k, in.Metadata[k], i == 0)
	}
	buf.WriteString("}}")
	return buf.Bytes()
}

// ValidateMetadata rejects metadata holding two keys with the same NFC form.
// Such keys would encode as duplicate JSON members.
func ValidateMetadata(m core.Metadata) error {
	seen := make(map[string]string, len(m))
	for k := range m {
		n := norm.NFC.String(k)
		if other, ok := seen[n]; ok {
			return fmt.Errorf("%w: %q and %q", core.ErrMetadataKeyCollision, other, k)
		}
		seen[n] = k
	}
	return nil
}

func writeField(buf *bytes.Buffer, key, value string, first bool) {
	if !first {
		buf.WriteByte(',')
	}
	buf.Write(encodeString(key))
	buf.WriteByte(':')
	buf.Write(encodeString(value))
}

func encodeString(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		// Encoding a Go string cannot fail.
		panic(err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
}
