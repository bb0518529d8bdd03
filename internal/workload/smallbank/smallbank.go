// Package smallbank generates batches for the smallbank transaction family, a
// simple banking benchmark over a fixed set of customer accounts.
package smallbank

import (
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/splintercommunity/transact/internal/workload"
)

const (
	FamilyName    = "smallbank"
	FamilyVersion = "1.0"

	// AddressPrefix is the namespace of smallbank state.
	AddressPrefix = "332514"

	DefaultAccounts = 100
)

// Operation is a smallbank transaction type.
type Operation string

const (
	OpCreateAccount   Operation = "create_account"
	OpDepositChecking Operation = "deposit_checking"
	OpWriteCheck      Operation = "write_check"
	OpTransactSavings Operation = "transact_savings"
	OpSendPayment     Operation = "send_payment"
	OpAmalgamate      Operation = "amalgamate"
)

var mixedOps = []Operation{
	OpDepositChecking,
	OpWriteCheck,
	OpTransactSavings,
	OpSendPayment,
	OpAmalgamate,
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func init() {
	workload.Register(workload.KindSmallbank, "Smallbank", func(opts workload.Options) (workload.Generator, error) {
		var source PayloadSource
		if opts.PlaylistPath != "" {
			f, err := os.Open(opts.PlaylistPath)
			if err != nil {
				return nil, fmt.Errorf("open smallbank playlist: %w", err)
			}
			defer f.Close()
			payloads, err := ReadPlaylist(f)
			if err != nil {
				return nil, err
			}
			source, err = NewReplay(payloads)
			if err != nil {
				return nil, err
			}
		} else {
			accounts := opts.Accounts
			if accounts <= 0 {
				accounts = DefaultAccounts
			}
			source = NewPayloadIter(accounts, opts.Seed)
		}
		return NewGenerator(source, opts.Signer), nil
	})
}

// Payload is one smallbank operation.
type Payload struct {
	Operation        Operation `json:"operation" yaml:"operation"`
	CustomerID       uint32    `json:"customer_id,omitempty" yaml:"customer_id,omitempty"`
	CustomerName     string    `json:"customer_name,omitempty" yaml:"customer_name,omitempty"`
	SourceCustomerID uint32    `json:"source_customer_id,omitempty" yaml:"source_customer_id,omitempty"`
	DestCustomerID   uint32    `json:"dest_customer_id,omitempty" yaml:"dest_customer_id,omitempty"`
	Amount           uint32    `json:"amount,omitempty" yaml:"amount,omitempty"`
	InitialSavings   uint32    `json:"initial_savings_balance,omitempty" yaml:"initial_savings_balance,omitempty"`
	InitialChecking  uint32    `json:"initial_checking_balance,omitempty" yaml:"initial_checking_balance,omitempty"`
}

// Addresses returns the state addresses the payload reads and writes.
func (p Payload) Addresses() []string {
	switch p.Operation {
	case OpSendPayment, OpAmalgamate:
		return []string{CustomerAddress(p.SourceCustomerID), CustomerAddress(p.DestCustomerID)}
	default:
		return []string{CustomerAddress(p.CustomerID)}
	}
}

// CustomerAddress maps a customer id to its state address.
func CustomerAddress(id uint32) string {
	hash := sha512.Sum512([]byte(strconv.FormatUint(uint64(id), 10)))
	return AddressPrefix + hex.EncodeToString(hash[:])[:64]
}

// PayloadSource yields smallbank payloads.
type PayloadSource interface {
	Next() Payload
}

// PayloadIter first creates every account, then yields a seeded mix of the other
// operations over those accounts.
type PayloadIter struct {
	rng      *rand.Rand
	accounts uint32
	created  uint32
}

// NewPayloadIter returns a deterministic payload sequence for the given seed.
func NewPayloadIter(accounts int, seed uint64) *PayloadIter {
	return &PayloadIter{
		rng:      rand.New(rand.NewSource(int64(seed))),
		accounts: uint32(accounts),
	}
}

func (it *PayloadIter) Next() Payload {
	if it.created < it.accounts {
		it.created++
		id := it.created
		return Payload{
			Operation:       OpCreateAccount,
			CustomerID:      id,
			CustomerName:    fmt.Sprintf("customer_%06d", id),
			InitialSavings:  uint32(1_000_000 + it.rng.Intn(1_000_000)),
			InitialChecking: uint32(1_000_000 + it.rng.Intn(1_000_000)),
		}
	}

	op := mixedOps[it.rng.Intn(len(mixedOps))]
	p := Payload{Operation: op}
	switch op {
	case OpSendPayment, OpAmalgamate:
		p.SourceCustomerID, p.DestCustomerID = it.pair()
		if op == OpSendPayment {
			p.Amount = uint32(1 + it.rng.Intn(200))
		}
	default:
		p.CustomerID = it.customer()
		p.Amount = uint32(1 + it.rng.Intn(200))
	}
	return p
}

// Customer ids start at 1.
func (it *PayloadIter) customer() uint32 {
	return 1 + uint32(it.rng.Intn(int(it.accounts)))
}

func (it *PayloadIter) pair() (uint32, uint32) {
	src := it.customer()
	if it.accounts < 2 {
		return src, src
	}
	dst := 1 + uint32(it.rng.Intn(int(it.accounts)-1))
	if dst >= src {
		dst++
	}
	return src, dst
}

// Replay cycles through a recorded playlist.
type Replay struct {
	payloads []Payload
	next     int
}

// NewReplay wraps a non-empty playlist.
func NewReplay(payloads []Payload) (*Replay, error) {
	if len(payloads) == 0 {
		return nil, errors.New("smallbank playlist is empty")
	}
	return &Replay{payloads: payloads}, nil
}

func (r *Replay) Next() Payload {
	p := r.payloads[r.next]
	r.next = (r.next + 1) % len(r.payloads)
	return p
}

// Generator wraps each payload in a single-transaction batch. It is not safe for
// concurrent use.
type Generator struct {
	source PayloadSource
	signer workload.Signer
	seq    uint64
}

// NewGenerator builds a generator over source.
func NewGenerator(source PayloadSource, signer workload.Signer) *Generator {
	return &Generator{source: source, signer: signer}
}

func (g *Generator) NextBatch() (*workload.Batch, error) {
	p := g.source.Next()
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode smallbank payload: %w", err)
	}
	addrs := p.Addresses()
	g.seq++

	txn, err := workload.BuildTransaction(g.signer, workload.TransactionSpec{
		FamilyName:    FamilyName,
		FamilyVersion: FamilyVersion,
		Inputs:        addrs,
		Outputs:       addrs,
		Nonce:         strconv.FormatUint(g.seq, 10),
		Payload:       body,
	})
	if err != nil {
		return nil, err
	}
	return workload.BuildBatch(g.signer, []workload.Transaction{txn}, false)
}
