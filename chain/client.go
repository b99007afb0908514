// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package chain implements the client used for every ledger
// interaction: it owns the RPC connection, the signing account, fee
// and gas estimation, transaction construction and broadcast, and
// receipt polling.
//
// A Client is constructed once at startup, shared by reference, and
// released with Close. Transactions from one account are serialized
// from nonce allocation through broadcast, so concurrent runs never
// reuse a nonce.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/esims/chainvault/config"
	"github.com/esims/chainvault/errors"
	"github.com/esims/chainvault/log"
	"github.com/esims/chainvault/retry"
	"github.com/esims/chainvault/security/keycrypt"
	"github.com/esims/chainvault/sync/ctxsync"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"
)

const (
	// FallbackGasLimit is used when gas estimation fails.
	FallbackGasLimit = 250000
	// DefaultReceiptTimeout bounds WaitReceipt.
	DefaultReceiptTimeout = 20 * time.Second
)

var (
	// FallbackPriorityFee is used when the node cannot suggest a tip.
	FallbackPriorityFee = big.NewInt(2e9)
	// FallbackBaseFee is used when the node cannot suggest a gas price.
	FallbackBaseFee = big.NewInt(20e9)
)

// receiptPolicy paces receipt polling.
var receiptPolicy = retry.Jitter(retry.Backoff(500*time.Millisecond, 4*time.Second, 1.5), 0.2)

// Backend is the subset of the node RPC surface used by Client. It is
// implemented by *ethclient.Client and, in tests, by chaintest.Backend.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (tx *types.Transaction, isPending bool, err error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Options configures a Client built by New.
type Options struct {
	// Contract is the address of the target contract.
	Contract common.Address
	// Key signs transactions. Read-only clients leave it nil.
	Key *ecdsa.PrivateKey
	// ChainID is used for signing. When nil, it is read from the node.
	ChainID *big.Int
	// ReceiptTimeout bounds WaitReceipt; DefaultReceiptTimeout if zero.
	ReceiptTimeout time.Duration
	// RPCRate limits calls to the node per second; unlimited if zero.
	RPCRate float64
	Log     *log.Logger
}

// Client is a handle to one contract on one chain, acting as a
// single externally owned account.
type Client struct {
	backend        Backend
	closer         func()
	contract       common.Address
	key            *ecdsa.PrivateKey
	chainID        *big.Int
	signer         types.Signer
	receiptTimeout time.Duration
	limiter        *rate.Limiter
	accounts       ctxsync.KeyedMutex
	log            *log.Logger
	now            func() time.Time
}

// New creates a client over an existing backend.
func New(ctx context.Context, backend Backend, opts Options) (*Client, error) {
	c := &Client{
		backend:        backend,
		contract:       opts.Contract,
		key:            opts.Key,
		chainID:        opts.ChainID,
		receiptTimeout: opts.ReceiptTimeout,
		log:            log.OrNop(opts.Log),
		now:            time.Now,
	}
	if c.receiptTimeout <= 0 {
		c.receiptTimeout = DefaultReceiptTimeout
	}
	if opts.RPCRate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RPCRate), 1)
	}
	if c.chainID == nil {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		id, err := backend.ChainID(ctx)
		if err != nil {
			return nil, errors.E(errors.ChainUnavailable, "eth_chainId", err)
		}
		c.chainID = id
	}
	c.signer = types.LatestSignerForChainID(c.chainID)
	return c, nil
}

// Dial connects to the node described by settings. It fails with
// errors.NotConfigured when settings are absent or name no endpoint or
// contract; callers treat this as the chain capability being disabled.
// A missing signing key is not an error here; see Account.
func Dial(ctx context.Context, settings *config.ChainSettings, logger *log.Logger) (*Client, error) {
	if settings == nil || settings.Endpoint == "" {
		return nil, errors.E(errors.NotConfigured, "chain endpoint")
	}
	if settings.Contract == "" {
		return nil, errors.E(errors.NotConfigured, "contract address")
	}
	if !common.IsHexAddress(settings.Contract) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("contract address %q", settings.Contract))
	}
	opts := Options{
		Contract:       common.HexToAddress(settings.Contract),
		ReceiptTimeout: settings.ReceiptTimeout,
		RPCRate:        settings.RPCRate,
		Log:            logger,
	}
	if settings.ChainID != 0 {
		opts.ChainID = big.NewInt(settings.ChainID)
	}
	if settings.SigningKey != "" {
		key, err := ParseKey(settings.SigningKey)
		if err != nil {
			return nil, err
		}
		opts.Key = key
	}
	timeout := settings.RPCTimeout
	if timeout <= 0 {
		timeout = config.DefaultRPCTimeout
	}
	rc, err := rpc.DialOptions(ctx, settings.Endpoint, rpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, errors.E(errors.ChainUnavailable, "dialing "+settings.Endpoint, err)
	}
	ec := ethclient.NewClient(rc)
	c, err := New(ctx, ec, opts)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closer = ec.Close
	return c, nil
}

// ParseKey resolves ref through keycrypt and parses the resulting
// hex private key, with or without a 0x prefix.
func ParseKey(ref string) (*ecdsa.PrivateKey, error) {
	b, err := keycrypt.Get(ref)
	if err != nil {
		return nil, errors.E(errors.NotConfigured, "missing signing key", err)
	}
	s := strings.TrimPrefix(strings.TrimPrefix(string(b), "0x"), "0X")
	key, err := crypto.HexToECDSA(s)
	if err != nil {
		return nil, errors.E(errors.Invalid, "parsing signing key", err)
	}
	return key, nil
}

// Close releases the connection to the node.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Contract returns the target contract address.
func (c *Client) Contract() common.Address { return c.contract }

// ChainID returns the chain id used for signing.
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

// Account returns the signing address.
func (c *Client) Account() (common.Address, error) {
	if c.key == nil {
		return common.Address{}, errors.E(errors.NotConfigured, "missing signing key")
	}
	return crypto.PubkeyToAddress(c.key.PublicKey), nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.E(errors.Canceled, "rate limited", err)
	}
	return nil
}

// Fees holds EIP-1559 fee parameters, in wei.
type Fees struct {
	Priority *big.Int
	Base     *big.Int
	// Fallback is set when either value is a fallback default.
	Fallback bool
}

// MaxFee is the fee cap: twice the base fee, and never below the tip.
func (f Fees) MaxFee() *big.Int {
	max := new(big.Int).Mul(f.Base, big.NewInt(2))
	if max.Cmp(f.Priority) < 0 {
		max.Set(f.Priority)
	}
	return max
}

// EstimateFees asks the node for fee suggestions. It never fails:
// errors fall back to FallbackPriorityFee and FallbackBaseFee.
func (c *Client) EstimateFees(ctx context.Context) Fees {
	var f Fees
	f.Priority = c.suggest(ctx, "priority fee", c.backend.SuggestGasTipCap)
	if f.Priority == nil {
		f.Priority, f.Fallback = new(big.Int).Set(FallbackPriorityFee), true
	}
	f.Base = c.suggest(ctx, "gas price", c.backend.SuggestGasPrice)
	if f.Base == nil {
		f.Base, f.Fallback = new(big.Int).Set(FallbackBaseFee), true
	}
	return f
}

func (c *Client) suggest(ctx context.Context, what string, oracle func(context.Context) (*big.Int, error)) *big.Int {
	if err := c.wait(ctx); err != nil {
		return nil
	}
	v, err := oracle(ctx)
	if err != nil || v == nil {
		c.log.Warn(ctx, what+" suggestion failed; using fallback", "error", err)
		return nil
	}
	return v
}

// NextNonce returns the pending transaction count of addr.
func (c *Client) NextNonce(ctx context.Context, addr common.Address) (uint64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	n, err := c.backend.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, errors.E(errors.ChainUnavailable, "eth_getTransactionCount", err)
	}
	return n, nil
}

// GasLimit estimates gas for calling the contract with calldata and
// adds 20%. If estimation fails, it returns FallbackGasLimit and
// fallback=true.
func (c *Client) GasLimit(ctx context.Context, from common.Address, calldata []byte) (gas uint64, fallback bool) {
	if err := c.wait(ctx); err != nil {
		return FallbackGasLimit, true
	}
	est, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &c.contract, Data: calldata})
	if err != nil || est == 0 {
		c.log.Warn(ctx, "gas estimation failed; using fallback limit", "error", err, "gas", FallbackGasLimit)
		return FallbackGasLimit, true
	}
	// ceil(est * 1.2)
	return (est*12 + 9) / 10, false
}

// Submission describes a broadcast transaction.
type Submission struct {
	Method      string
	Hash        common.Hash
	From        common.Address
	Nonce       uint64
	Gas         uint64
	GasFallback bool
	Fees        Fees
	SubmittedAt time.Time
}

// Transact signs and broadcasts a call of the contract with
// calldata. method names the contract method for logging. The
// account is locked from nonce allocation until the node has
// accepted the transaction. Transact does not wait for a receipt and
// never retries.
func (c *Client) Transact(ctx context.Context, method string, calldata []byte) (Submission, error) {
	from, err := c.Account()
	if err != nil {
		return Submission{}, err
	}
	unlock, err := c.accounts.Lock(ctx, from.Hex())
	if err != nil {
		return Submission{}, errors.E(err, "locking account", from.Hex())
	}
	defer unlock()

	nonce, err := c.NextNonce(ctx, from)
	if err != nil {
		return Submission{}, errors.E(method, err)
	}
	fees := c.EstimateFees(ctx)
	gas, fallback := c.GasLimit(ctx, from, calldata)
	to := c.contract
	tx, err := types.SignTx(types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: fees.Priority,
		GasFeeCap: fees.MaxFee(),
		Gas:       gas,
		To:        &to,
		Data:      calldata,
	}), c.signer, c.key)
	if err != nil {
		return Submission{}, errors.E(errors.Invalid, "signing "+method, err)
	}
	if err := c.wait(ctx); err != nil {
		return Submission{}, err
	}
	if err := c.backend.SendTransaction(ctx, tx); err != nil {
		return Submission{}, errors.E(errors.ChainUnavailable, "eth_sendRawTransaction "+method, err)
	}
	s := Submission{
		Method:      method,
		Hash:        tx.Hash(),
		From:        from,
		Nonce:       nonce,
		Gas:         gas,
		GasFallback: fallback,
		Fees:        fees,
		SubmittedAt: c.now(),
	}
	c.log.Info(ctx, "transaction broadcast", "method", method, "tx", s.Hash.Hex(), "nonce", nonce, "gas", gas)
	return s, nil
}

// WaitReceipt polls for the receipt of hash for up to the receipt
// timeout. It returns nil, nil if the timeout elapses first; the
// transaction may still be mined, and callers reconcile later. It
// returns an error only if ctx itself is done.
func (c *Client) WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	wctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()
	for retries := 0; ; retries++ {
		if err := c.wait(wctx); err == nil {
			r, err := c.backend.TransactionReceipt(wctx, hash)
			if err == nil && r != nil {
				return r, nil
			}
			if err != nil && err != ethereum.NotFound && wctx.Err() == nil {
				c.log.Debug(ctx, "receipt poll failed", "tx", hash.Hex(), "error", err)
			}
		}
		if err := retry.Wait(wctx, receiptPolicy, retries); err != nil {
			if ctx.Err() != nil {
				return nil, errors.E(ctx.Err(), "waiting for receipt", hash.Hex())
			}
			c.log.Info(ctx, "receipt not available before timeout", "tx", hash.Hex(), "timeout", c.receiptTimeout)
			return nil, nil
		}
	}
}

// Receipt returns the receipt of hash, or nil if it is not yet mined.
func (c *Client) Receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	r, err := c.backend.TransactionReceipt(ctx, hash)
	if err == ethereum.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.E(errors.ChainUnavailable, "eth_getTransactionReceipt", err)
	}
	return r, nil
}

// Call executes a read-only call of the contract at the latest block.
func (c *Client) Call(ctx context.Context, calldata []byte) ([]byte, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: calldata}, nil)
	if err != nil {
		return nil, errors.E(errors.ChainUnavailable, "eth_call", err)
	}
	return out, nil
}

// Details is the on-chain outcome of a transaction.
type Details struct {
	Hash        common.Hash
	BlockNumber uint64
	// Status is types.ReceiptStatusSuccessful or types.ReceiptStatusFailed.
	Status            uint64
	GasUsed           uint64
	EffectiveGasPrice *big.Int
	// Fee is GasUsed * EffectiveGasPrice, in wei.
	Fee *big.Int
	// MinedAt is the timestamp of the including block; zero if unknown.
	MinedAt time.Time
}

// Details returns the outcome of a mined transaction, or nil if no
// receipt is available yet.
func (c *Client) Details(ctx context.Context, hash common.Hash) (*Details, error) {
	r, err := c.Receipt(ctx, hash)
	if r == nil || err != nil {
		return nil, err
	}
	d := &Details{Hash: hash, Status: r.Status, GasUsed: r.GasUsed}
	if r.BlockNumber != nil {
		d.BlockNumber = r.BlockNumber.Uint64()
	}
	if r.EffectiveGasPrice != nil {
		d.EffectiveGasPrice = new(big.Int).Set(r.EffectiveGasPrice)
		d.Fee = new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice)
	}
	if r.BlockNumber == nil {
		return d, nil
	}
	if err := c.wait(ctx); err != nil {
		return d, nil
	}
	// A missing header leaves MinedAt unset.
	if h, err := c.backend.HeaderByNumber(ctx, r.BlockNumber); err == nil && h != nil {
		d.MinedAt = time.Unix(int64(h.Time), 0).UTC()
	} else if err != nil {
		c.log.Debug(ctx, "block header lookup failed", "block", d.BlockNumber, "error", err)
	}
	return d, nil
}
