package siwe

import (
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/layer-3/eden/core"
)

// RecoverAddress returns the address whose key produced the personal_sign
// signature over text.
func RecoverAddress(text, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, core.ErrMalformedSignature
	}

	// Wallets emit v as 27/28, crypto expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return common.Address{}, core.ErrMalformedSignature
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(text)), sig)
	if err != nil {
		return common.Address{}, core.ErrInvalidSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySignature checks that address signed exactly text.
func VerifySignature(text, signature, address string) error {
	signer, err := RecoverAddress(text, signature)
	if err != nil {
		return err
	}
	if signer != common.HexToAddress(address) {
		return core.ErrInvalidSignature
	}
	return nil
}
