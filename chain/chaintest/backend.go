// Copyright 2026 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package chaintest provides an in-memory chain backend that executes
// the document registry contract, for testing code that talks to the
// ledger. Calldata is decoded with the same ABI the gateway encodes
// with, transactions are signature- and nonce-checked, and every
// accepted transaction is mined into its own block.
package chaintest

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/esims/chainvault/chain"
	"github.com/esims/chainvault/contract"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ChainID is the id of the simulated chain.
	ChainID = big.NewInt(1337)
	// ContractAddress is the address the registry is deployed at.
	ContractAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	// TipCap and GasPrice are the fee suggestions of the simulated node.
	TipCap   = big.NewInt(1e9)
	GasPrice = big.NewInt(10e9)
)

// TestKeyHex is the private key of the funded test account.
const TestKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

// TestKey returns the private key of the funded test account.
func TestKey() *ecdsa.PrivateKey {
	key, err := crypto.HexToECDSA(TestKeyHex)
	if err != nil {
		panic(err)
	}
	return key
}

// Sent describes a transaction accepted by the backend.
type Sent struct {
	Method    string
	Hash      common.Hash
	From      common.Address
	Nonce     uint64
	Gas       uint64
	GasTipCap *big.Int
	GasFeeCap *big.Int
	Args      []interface{}
	Reverted  bool
}

type record struct {
	submitter common.Address
	status    contract.Status
}

// Backend is an in-memory chain.Backend. Exported fields inject
// faults; they may be changed between calls.
type Backend struct {
	// FailTipCap and FailGasPrice make the fee oracle calls fail.
	FailTipCap, FailGasPrice bool
	// FailEstimate makes gas estimation fail.
	FailEstimate bool
	// SendErr, if set, is consulted before accepting a transaction;
	// a non-nil error rejects it without consuming the nonce.
	SendErr func(method string, tx *types.Transaction) error
	// CallErr, if set, fails every read.
	CallErr error
	// HideReceipts withholds receipts until RevealReceipts is called.
	HideReceipts bool

	mu       sync.Mutex
	abi      abi.ABI
	signer   types.Signer
	now      time.Time
	nonces   map[common.Address]uint64
	headers  []*types.Header
	txs      map[common.Hash]*types.Transaction
	receipts map[common.Hash]*types.Receipt
	sent     []Sent
	calls    map[string]int
	records  map[int64]*record
	raw      map[int64][][]byte
	enc      map[int64][][]byte
	hashes   map[int64][][32]byte
}

// New returns a backend at block 0 with the registry deployed.
func New() *Backend {
	a, err := contract.ParseABI(contract.DefaultABI)
	if err != nil {
		panic(err)
	}
	b := &Backend{
		abi:      a,
		signer:   types.LatestSignerForChainID(ChainID),
		now:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		nonces:   make(map[common.Address]uint64),
		txs:      make(map[common.Hash]*types.Transaction),
		receipts: make(map[common.Hash]*types.Receipt),
		calls:    make(map[string]int),
		records:  make(map[int64]*record),
		raw:      make(map[int64][][]byte),
		enc:      make(map[int64][][]byte),
		hashes:   make(map[int64][][32]byte),
	}
	b.headers = []*types.Header{{Number: big.NewInt(0), Time: uint64(b.now.Unix())}}
	return b
}

// Client returns a chain client over b, signing with TestKey.
func (b *Backend) Client(t testing.TB, opts chain.Options) *chain.Client {
	t.Helper()
	if opts.Contract == (common.Address{}) {
		opts.Contract = ContractAddress
	}
	if opts.Key == nil {
		opts.Key = TestKey()
	}
	c, err := chain.New(context.Background(), b, opts)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// Gateway returns a contract gateway over a client of b.
func (b *Backend) Gateway(t testing.TB) *contract.Gateway {
	t.Helper()
	return contract.New(b.Client(t, chain.Options{ReceiptTimeout: time.Second}), b.abi)
}

func gasFor(data []byte) uint64 {
	return 21000 + 16*uint64(len(data))
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(ChainID), nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if b.FailTipCap {
		return nil, fmt.Errorf("eth_maxPriorityFeePerGas: method not found")
	}
	return new(big.Int).Set(TipCap), nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if b.FailGasPrice {
		return nil, fmt.Errorf("eth_gasPrice: upstream timeout")
	}
	return new(big.Int).Set(GasPrice), nil
}

func (b *Backend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if b.FailEstimate {
		return 0, fmt.Errorf("eth_estimateGas: execution reverted")
	}
	return gasFor(msg.Data), nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	method, args, err := b.decode(tx.Data(), true)
	if err != nil {
		return err
	}
	if b.SendErr != nil {
		if err := b.SendErr(method.Name, tx); err != nil {
			return err
		}
	}
	from, err := types.Sender(b.signer, tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %v", err)
	}
	if tx.To() == nil || *tx.To() != ContractAddress {
		return fmt.Errorf("unexpected recipient %v", tx.To())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if want := b.nonces[from]; tx.Nonce() != want {
		return fmt.Errorf("invalid nonce %d, want %d", tx.Nonce(), want)
	}
	b.nonces[from]++
	gasUsed := gasFor(tx.Data())
	ok := gasUsed <= tx.Gas() && b.apply(from, method.Name, args)

	b.now = b.now.Add(12 * time.Second)
	header := &types.Header{Number: big.NewInt(int64(len(b.headers))), Time: uint64(b.now.Unix())}
	b.headers = append(b.headers, header)
	price := new(big.Int).Add(GasPrice, tx.GasTipCap())
	if price.Cmp(tx.GasFeeCap()) > 0 {
		price.Set(tx.GasFeeCap())
	}
	status := types.ReceiptStatusSuccessful
	if !ok {
		status = types.ReceiptStatusFailed
	}
	b.txs[tx.Hash()] = tx
	b.receipts[tx.Hash()] = &types.Receipt{
		Type:              tx.Type(),
		Status:            status,
		TxHash:            tx.Hash(),
		BlockNumber:       new(big.Int).Set(header.Number),
		BlockHash:         common.BigToHash(header.Number),
		GasUsed:           gasUsed,
		CumulativeGasUsed: gasUsed,
		EffectiveGasPrice: price,
	}
	b.sent = append(b.sent, Sent{
		Method:    method.Name,
		Hash:      tx.Hash(),
		From:      from,
		Nonce:     tx.Nonce(),
		Gas:       tx.Gas(),
		GasTipCap: tx.GasTipCap(),
		GasFeeCap: tx.GasFeeCap(),
		Args:      args,
		Reverted:  !ok,
	})
	return nil
}

// apply executes a registry write and reports whether it succeeded.
func (b *Backend) apply(from common.Address, method string, args []interface{}) bool {
	doc := args[0].(*big.Int).Int64()
	switch method {
	case contract.MethodRecordSubmission:
		if r := b.records[doc]; r != nil && r.submitter != (common.Address{}) {
			return false
		}
		b.records[doc] = &record{submitter: from, status: contract.StatusSubmitted}
	case contract.MethodMarkApproved, contract.MethodMarkRejected:
		r := b.records[doc]
		if r == nil || r.status != contract.StatusSubmitted {
			return false
		}
		if method == contract.MethodMarkApproved {
			r.status = contract.StatusApproved
		} else {
			r.status = contract.StatusRejected
		}
	case contract.MethodAddFileHash:
		b.hashes[doc] = append(b.hashes[doc], args[1].([32]byte))
	case contract.MethodAddFileChunk:
		b.raw[doc] = append(b.raw[doc], args[1].([]byte))
	case contract.MethodAddFileChunks:
		b.raw[doc] = append(b.raw[doc], args[1].([][]byte)...)
	case contract.MethodAddEncryptedChunks:
		b.enc[doc] = append(b.enc[doc], args[1].([][]byte)...)
	default:
		return false
	}
	return true
}

func (b *Backend) decode(data []byte, write bool) (*abi.Method, []interface{}, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("calldata too short")
	}
	method, err := b.abi.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	if write == method.IsConstant() {
		return nil, nil, fmt.Errorf("method %s called with the wrong mode", method.Name)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, err
	}
	return method, args, nil
}

func (b *Backend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.receipts[hash]
	if r == nil || b.HideReceipts {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *Backend) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tx := b.txs[hash]
	if tx == nil {
		return nil, false, ethereum.NotFound
	}
	return tx, false, nil
}

func (b *Backend) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if number == nil {
		return b.headers[len(b.headers)-1], nil
	}
	if !number.IsInt64() || number.Int64() < 0 || number.Int64() >= int64(len(b.headers)) {
		return nil, ethereum.NotFound
	}
	return b.headers[number.Int64()], nil
}

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if b.CallErr != nil {
		return nil, b.CallErr
	}
	method, args, err := b.decode(msg.Data, false)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[method.Name]++
	doc := args[0].(*big.Int).Int64()
	switch method.Name {
	case contract.MethodGetFileChunkCount:
		return method.Outputs.Pack(big.NewInt(int64(len(b.raw[doc]))))
	case contract.MethodGetEncryptedChunkCount:
		return method.Outputs.Pack(big.NewInt(int64(len(b.enc[doc]))))
	case contract.MethodReadFileChunk, contract.MethodReadEncryptedChunk:
		chunks := b.raw[doc]
		if method.Name == contract.MethodReadEncryptedChunk {
			chunks = b.enc[doc]
		}
		i := args[1].(*big.Int)
		if !i.IsInt64() || i.Int64() >= int64(len(chunks)) {
			return nil, fmt.Errorf("execution reverted: index out of range")
		}
		return method.Outputs.Pack(chunks[i.Int64()])
	case contract.MethodGetRecord:
		r := b.records[doc]
		if r == nil {
			r = &record{}
		}
		return method.Outputs.Pack(r.submitter, uint8(r.status))
	}
	return nil, fmt.Errorf("unsupported call %s", method.Name)
}

// RevealReceipts makes withheld receipts available.
func (b *Backend) RevealReceipts() {
	b.mu.Lock()
	b.HideReceipts = false
	b.mu.Unlock()
}

// Sent returns the accepted transactions in order.
func (b *Backend) Sent() []Sent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Sent(nil), b.sent...)
}

// Methods returns the method names of the accepted transactions.
func (b *Backend) Methods() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var names []string
	for _, s := range b.sent {
		names = append(names, s.Method)
	}
	return names
}

// Calls returns how many times the named read was issued.
func (b *Backend) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

// Reads returns the total number of reads issued.
func (b *Backend) Reads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var n int
	for _, c := range b.calls {
		n += c
	}
	return n
}

// SetRecord overwrites the registration of doc.
func (b *Backend) SetRecord(doc int64, submitter common.Address, status contract.Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[doc] = &record{submitter: submitter, status: status}
}

// EncryptedChunks returns the encrypted payloads stored for doc.
func (b *Backend) EncryptedChunks(doc int64) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.enc[doc]...)
}

// SetEncryptedChunk replaces payload i of doc, or appends it if i is
// the current count.
func (b *Backend) SetEncryptedChunk(doc int64, i int, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i == len(b.enc[doc]) {
		b.enc[doc] = append(b.enc[doc], payload)
		return
	}
	b.enc[doc][i] = payload
}

// SwapEncryptedChunks exchanges payloads i and j of doc.
func (b *Backend) SwapEncryptedChunks(doc int64, i, j int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.enc[doc]
	c[i], c[j] = c[j], c[i]
}

// RawChunks returns the raw chunks stored for doc.
func (b *Backend) RawChunks(doc int64) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.raw[doc]...)
}

// SetRawChunk replaces raw chunk i of doc.
func (b *Backend) SetRawChunk(doc int64, i int, chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.raw[doc][i] = chunk
}

// FileHashes returns the file hashes anchored for doc.
func (b *Backend) FileHashes(doc int64) [][32]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][32]byte(nil), b.hashes[doc]...)
}
