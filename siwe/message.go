// Package siwe builds, parses and verifies EIP-4361 "Sign-In with Ethereum"
// messages.
package siwe

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/eden/core"
)

const (
	// Version is the only message version accepted.
	Version = "1"

	// DefaultStatement is shown to the wallet holder when signing.
	DefaultStatement = "Sign in with Ethereum to Planet Eden"

	preambleSuffix = " wants you to sign in with your Ethereum account:"
	timeLayout     = "2006-01-02T15:04:05.000Z07:00"
)

// Message is a structured sign-in message.
type Message struct {
	Domain         string
	Address        string // Rendered with its EIP-55 checksum
	Statement      string
	URI            string
	Version        string
	ChainID        int64
	Nonce          string
	IssuedAt       time.Time
	ExpirationTime time.Time // Zero when absent
}

// Params are the inputs of BuildMessage.
type Params struct {
	Address   string
	Domain    string
	Origin    string
	Statement string
	ChainID   int64
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// BuildMessage renders the canonical text for p. Equal params always render
// to the same text.
func BuildMessage(p Params) string {
	statement := p.Statement
	if statement == "" {
		statement = DefaultStatement
	}
	return Message{
		Domain:         p.Domain,
		Address:        p.Address,
		Statement:      statement,
		URI:            p.Origin,
		Version:        Version,
		ChainID:        p.ChainID,
		Nonce:          p.Nonce,
		IssuedAt:       p.IssuedAt,
		ExpirationTime: p.ExpiresAt,
	}.String()
}

// String renders the message in EIP-4361 layout.
func (m Message) String() string {
	var b strings.Builder
	b.WriteString(m.Domain + preambleSuffix + "\n")
	b.WriteString(common.HexToAddress(m.Address).Hex() + "\n")
	b.WriteString("\n")
	if m.Statement != "" {
		b.WriteString(m.Statement + "\n")
		b.WriteString("\n")
	}
	b.WriteString("URI: " + m.URI + "\n")
	b.WriteString("Version: " + m.Version + "\n")
	b.WriteString("Chain ID: " + strconv.FormatInt(m.ChainID, 10) + "\n")
	b.WriteString("Nonce: " + m.Nonce + "\n")
	b.WriteString("Issued At: " + formatTime(m.IssuedAt))
	if !m.ExpirationTime.IsZero() {
		b.WriteString("\nExpiration Time: " + formatTime(m.ExpirationTime))
	}
	return b.String()
}

// ParseMessage parses the text form of a message. Any structural problem is
// reported as core.ErrMalformedMessage.
func ParseMessage(text string) (Message, error) {
	text = strings.TrimRight(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := strings.Split(text, "\n")
	if len(lines) < 8 {
		return Message{}, malformed("message too short")
	}

	var m Message
	domain, ok := strings.CutSuffix(lines[0], preambleSuffix)
	if !ok || domain == "" {
		return Message{}, malformed("missing preamble")
	}
	m.Domain = domain

	if _, err := core.NormalizeAddress(lines[1]); err != nil {
		return Message{}, malformed("invalid address")
	}
	m.Address = lines[1]

	if lines[2] != "" {
		return Message{}, malformed("expected blank line after address")
	}
	rest := lines[3:]
	if !strings.HasPrefix(rest[0], "URI: ") {
		if len(rest) < 2 || rest[1] != "" {
			return Message{}, malformed("expected blank line after statement")
		}
		m.Statement = rest[0]
		rest = rest[2:]
	}

	fields := make(map[string]string, len(rest))
	for _, line := range rest {
		key, value, found := strings.Cut(line, ": ")
		if !found {
			return Message{}, malformed(fmt.Sprintf("invalid field line %q", line))
		}
		if _, dup := fields[key]; dup {
			return Message{}, malformed("duplicate field " + key)
		}
		fields[key] = value
	}

	for _, key := range []string{"URI", "Version", "Chain ID", "Nonce", "Issued At"} {
		if fields[key] == "" {
			return Message{}, malformed("missing field " + key)
		}
	}

	m.URI = fields["URI"]
	m.Version = fields["Version"]
	if m.Version != Version {
		return Message{}, malformed("unsupported version")
	}

	chainID, err := strconv.ParseInt(fields["Chain ID"], 10, 64)
	if err != nil || chainID <= 0 {
		return Message{}, malformed("invalid chain id")
	}
	m.ChainID = chainID

	m.Nonce = fields["Nonce"]
	if !isAlphanumeric(m.Nonce) || len(m.Nonce) < 8 {
		return Message{}, malformed("invalid nonce")
	}

	if m.IssuedAt, err = time.Parse(time.RFC3339Nano, fields["Issued At"]); err != nil {
		return Message{}, malformed("invalid issued at")
	}
	if exp, ok := fields["Expiration Time"]; ok {
		if m.ExpirationTime, err = time.Parse(time.RFC3339Nano, exp); err != nil {
			return Message{}, malformed("invalid expiration time")
		}
	}

	return m, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", core.ErrMalformedMessage, reason)
}
