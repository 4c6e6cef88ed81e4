package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/layer-3/eden/core"
	"github.com/layer-3/eden/ports"
)

// BookingIntegrityABI is the subset of the BookingIntegrity contract used here.
const BookingIntegrityABI = `[
	{"type":"function","name":"commitBooking","stateMutability":"nonpayable",
	 "inputs":[{"name":"startTime","type":"uint256"},{"name":"endTime","type":"uint256"},{"name":"bookingHash","type":"bytes32"}],
	 "outputs":[{"name":"success","type":"bool"}]},
	{"type":"function","name":"cancelBooking","stateMutability":"nonpayable",
	 "inputs":[{"name":"startTime","type":"uint256"},{"name":"endTime","type":"uint256"},{"name":"bookingHash","type":"bytes32"}],
	 "outputs":[]},
	{"type":"function","name":"isTimeSlotAvailable","stateMutability":"view",
	 "inputs":[{"name":"provider","type":"address"},{"name":"startTime","type":"uint256"},{"name":"endTime","type":"uint256"}],
	 "outputs":[{"name":"available","type":"bool"}]},
	{"type":"function","name":"hasBooking","stateMutability":"view",
	 "inputs":[{"name":"provider","type":"address"},{"name":"bookingHash","type":"bytes32"}],
	 "outputs":[{"name":"exists","type":"bool"}]}
]`

// Backend is the part of an RPC client the ledger needs. *ethclient.Client
// satisfies it.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// EthereumLedger anchors booking hashes in the BookingIntegrity contract.
// Transactions are signed with a single operator key.
type EthereumLedger struct {
	backend  Backend
	contract common.Address
	abi      abi.ABI
	key      *ecdsa.PrivateKey
	from     common.Address
	signer   types.Signer

	// sendMu keeps nonce assignment and broadcast in order for the operator key.
	sendMu sync.Mutex
}

var _ ports.Ledger = (*EthereumLedger)(nil)

// NewEthereumLedger creates a ledger client for the contract at contract.
func NewEthereumLedger(backend Backend, contract string, key *ecdsa.PrivateKey, chainID *big.Int) (*EthereumLedger, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid contract address %q", contract)
	}
	if key == nil {
		return nil, errors.New("operator key is required")
	}
	parsed, err := abi.JSON(strings.NewReader(BookingIntegrityABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract abi: %w", err)
	}

	return &EthereumLedger{
		backend:  backend,
		contract: common.HexToAddress(contract),
		abi:      parsed,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		signer:   types.LatestSignerForChainID(chainID),
	}, nil
}

// Operator returns the address transactions are sent from.
func (l *EthereumLedger) Operator() common.Address {
	return l.from
}

func (l *EthereumLedger) IsTimeSlotAvailable(ctx context.Context, provider string, start, end time.Time) (bool, error) {
	if !common.IsHexAddress(provider) {
		return false, core.ErrInvalidAddress
	}
	var available bool
	err := l.call(ctx, &available, "isTimeSlotAvailable", common.HexToAddress(provider), unixBig(start), unixBig(end))
	return available, err
}

// Commit checks the slot first and fails with core.ErrSlotUnavailable before
// spending gas on a transaction the contract would reject.
func (l *EthereumLedger) Commit(ctx context.Context, provider string, start, end time.Time, commitmentHash string) (string, error) {
	hash, err := toBytes32(commitmentHash)
	if err != nil {
		return "", err
	}

	available, err := l.IsTimeSlotAvailable(ctx, provider, start, end)
	if err != nil {
		return "", err
	}
	if !available {
		return "", core.ErrSlotUnavailable
	}

	return l.transact(ctx, "commitBooking", unixBig(start), unixBig(end), hash)
}

func (l *EthereumLedger) Cancel(ctx context.Context, provider string, start, end time.Time, commitmentHash string) (string, error) {
	hash, err := toBytes32(commitmentHash)
	if err != nil {
		return "", err
	}
	return l.transact(ctx, "cancelBooking", unixBig(start), unixBig(end), hash)
}

func (l *EthereumLedger) HasCommitment(ctx context.Context, provider string, commitmentHash string) (bool, error) {
	if !common.IsHexAddress(provider) {
		return false, core.ErrInvalidAddress
	}
	hash, err := toBytes32(commitmentHash)
	if err != nil {
		return false, err
	}
	var exists bool
	err = l.call(ctx, &exists, "hasBooking", common.HexToAddress(provider), hash)
	return exists, err
}

// call runs a read-only contract method and unpacks its single bool result.
func (l *EthereumLedger) call(ctx context.Context, out *bool, method string, args ...interface{}) error {
	data, err := l.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}

	res, err := l.backend.CallContract(ctx, ethereum.CallMsg{From: l.from, To: &l.contract, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", core.ErrLedger, method, err)
	}

	values, err := l.abi.Unpack(method, res)
	if err != nil {
		return fmt.Errorf("%w: %s: failed to unpack result: %w", core.ErrLedger, method, err)
	}
	if len(values) != 1 {
		return fmt.Errorf("%w: %s: unexpected result of %d values", core.ErrLedger, method, len(values))
	}
	v, ok := values[0].(bool)
	if !ok {
		return fmt.Errorf("%w: %s: unexpected result type %T", core.ErrLedger, method, values[0])
	}
	*out = v
	return nil
}

// transact signs and broadcasts a contract call and returns its hash without
// waiting for inclusion. Gas estimation surfaces contract reverts.
func (l *EthereumLedger) transact(ctx context.Context, method string, args ...interface{}) (string, error) {
	data, err := l.abi.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("failed to pack %s: %w", method, err)
	}

	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	nonce, err := l.backend.PendingNonceAt(ctx, l.from)
	if err != nil {
		return "", fmt.Errorf("%w: %s: pending nonce: %w", core.ErrLedger, method, err)
	}
	gasPrice, err := l.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %s: gas price: %w", core.ErrLedger, method, err)
	}
	gas, err := l.backend.EstimateGas(ctx, ethereum.CallMsg{From: l.from, To: &l.contract, Data: data})
	if err != nil {
		return "", fmt.Errorf("%w: %s: estimate gas: %w", core.ErrLedger, method, err)
	}

	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &l.contract,
		Value:    big.NewInt(0),
		Data:     data,
	}), l.signer, l.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", method, err)
	}

	if err := l.backend.SendTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("%w: %s: send: %w", core.ErrLedger, method, err)
	}

	return tx.Hash().Hex(), nil
}

func unixBig(t time.Time) *big.Int {
	return big.NewInt(t.Unix())
}

func toBytes32(h string) ([32]byte, error) {
	var out [32]byte
	raw, err := hexutil.Decode(h)
	if err != nil || len(raw) != len(out) {
		return out, core.ErrInvalidHash
	}
	copy(out[:], raw)
	return out, nil
}
