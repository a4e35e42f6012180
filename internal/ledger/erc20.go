package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/adcal/slotmarket/internal/domain"
)

// erc20ABI covers the subset of the ERC-20 interface the market consumes.
const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// ERC20Config holds connection parameters for the on-chain ledger adapter.
type ERC20Config struct {
	// RPCURL is the JSON-RPC endpoint of the chain the token lives on.
	RPCURL string
	// TokenAddress is the ERC-20 contract address.
	TokenAddress string
	// OperatorKeyHex is the hex-encoded secp256k1 key whose address acts
	// as the market's spender context for TransferFrom.
	OperatorKeyHex string
	// ChainID is required for EIP-155 transaction signing.
	ChainID int64
}

// ERC20 implements domain.TokenLedger against a real ERC-20 contract over
// JSON-RPC. Transactions are signed with the operator key and mined before
// the call returns, so payment success is known synchronously.
type ERC20 struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	key      *ecdsa.PrivateKey
	operator common.Address
	chainID  *big.Int
}

// NewERC20 dials the RPC endpoint and binds the token contract.
func NewERC20(ctx context.Context, cfg ERC20Config) (*ERC20, error) {
	if cfg.TokenAddress == "" {
		return nil, fmt.Errorf("ledger: erc20 token address is required")
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("ledger: erc20 operator key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: erc20 dial %s: %w", cfg.RPCURL, err)
	}

	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ledger: erc20 abi: %w", err)
	}

	addr := common.HexToAddress(cfg.TokenAddress)
	return &ERC20{
		client:   client,
		contract: bind.NewBoundContract(addr, parsed, client, client, client),
		key:      key,
		operator: ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:  big.NewInt(cfg.ChainID),
	}, nil
}

// Operator returns the address acting as the ledger's holder and spender
// context. Buyers must approve this address before BuyFromAsk or SellToBid
// can move their tokens.
func (e *ERC20) Operator() common.Address {
	return e.operator
}

// Close releases the RPC connection.
func (e *ERC20) Close() {
	e.client.Close()
}

// BalanceOf returns account's token balance in base units.
func (e *ERC20) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	var out []any
	opts := &bind.CallOpts{Context: ctx}
	if err := e.contract.Call(opts, &out, "balanceOf", account); err != nil {
		return nil, fmt.Errorf("ledger: erc20 balanceOf %s: %w", account, err)
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("ledger: erc20 balanceOf %s: unexpected result type %T", account, out[0])
	}
	return bal, nil
}

// Transfer moves amount from the operator account to `to`.
func (e *ERC20) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	return e.transact(ctx, "transfer", to, amount)
}

// TransferFrom moves amount from `from` to `to` against the allowance the
// holder granted the operator. A reverted transaction (insufficient balance
// or allowance) surfaces as an error.
func (e *ERC20) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) error {
	return e.transact(ctx, "transferFrom", from, to, amount)
}

// transact signs, submits, and waits for a state-changing token call,
// treating a reverted receipt as failure.
func (e *ERC20) transact(ctx context.Context, method string, args ...any) error {
	opts, err := bind.NewKeyedTransactorWithChainID(e.key, e.chainID)
	if err != nil {
		return fmt.Errorf("ledger: erc20 transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := e.contract.Transact(opts, method, args...)
	if err != nil {
		return fmt.Errorf("ledger: erc20 %s: %w", method, err)
	}

	receipt, err := bind.WaitMined(ctx, e.client, tx)
	if err != nil {
		return fmt.Errorf("ledger: erc20 %s wait %s: %w", method, tx.Hash(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("ledger: erc20 %s reverted in tx %s", method, tx.Hash())
	}
	return nil
}

var _ domain.TokenLedger = (*ERC20)(nil)
