// Package command generates batches for the command transaction family, which
// executes a list of simple state operations per transaction.
package command

import (
	"encoding/hex"
	"fmt"
	"math/rand"

	"github.com/oklog/ulid/v2"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/splintercommunity/transact/internal/workload"
)

const (
	FamilyName    = "command"
	FamilyVersion = "1"

	// AddressPrefix is the namespace of command family state.
	AddressPrefix = "06abbc"

	addressPoolSize = 256
	maxCommands     = 4
)

// Type is the command type enum.
type Type int

const (
	TypeSetState Type = iota + 1
	TypeGetState
	TypeDeleteState
	TypeAddEvent
	TypeAddReceiptData
	TypeSleep
	TypeReturnInvalid
)

// weights control how often each command type is generated.
var weights = []struct {
	typ    Type
	weight int
}{
	{TypeSetState, 40},
	{TypeGetState, 25},
	{TypeDeleteState, 10},
	{TypeAddEvent, 10},
	{TypeAddReceiptData, 8},
	{TypeSleep, 5},
	{TypeReturnInvalid, 2},
}

func init() {
	workload.Register(workload.KindCommand, "Command", func(opts workload.Options) (workload.Generator, error) {
		return NewGenerator(opts.Seed, opts.Signer), nil
	})
}

// Command is one operation inside a payload.
type Command struct {
	Type      Type
	Addresses []string
	Value     []byte
	Millis    uint32
	Message   string
}

// Generator produces one single-transaction batch per call. It is not safe for
// concurrent use; each worker owns its own generator.
type Generator struct {
	rng     *rand.Rand
	signer  workload.Signer
	pool    []string
	seq     uint64
	totalWt int
}

// NewGenerator seeds a generator. Equal seeds give equal batch sequences.
func NewGenerator(seed uint64, signer workload.Signer) *Generator {
	rng := rand.New(rand.NewSource(int64(seed)))
	pool := make([]string, addressPoolSize)
	for i := range pool {
		pool[i] = randomAddress(rng)
	}
	total := 0
	for _, w := range weights {
		total += w.weight
	}
	return &Generator{rng: rng, signer: signer, pool: pool, totalWt: total}
}

// NextCommands returns the next list of commands without building a transaction.
func (g *Generator) NextCommands() []Command {
	n := 1 + g.rng.Intn(maxCommands)
	cmds := make([]Command, n)
	for i := range cmds {
		cmds[i] = g.nextCommand()
	}
	return cmds
}

func (g *Generator) NextBatch() (*workload.Batch, error) {
	cmds := g.NextCommands()

	var touched []string
	seen := map[string]bool{}
	for _, c := range cmds {
		for _, addr := range c.Addresses {
			if !seen[addr] {
				seen[addr] = true
				touched = append(touched, addr)
			}
		}
	}

	nonce, err := ulid.New(g.seq, g.rng)
	if err != nil {
		return nil, fmt.Errorf("command nonce: %w", err)
	}
	g.seq++

	txn, err := workload.BuildTransaction(g.signer, workload.TransactionSpec{
		FamilyName:    FamilyName,
		FamilyVersion: FamilyVersion,
		Inputs:        touched,
		Outputs:       touched,
		Nonce:         nonce.String(),
		Payload:       MarshalPayload(cmds),
	})
	if err != nil {
		return nil, err
	}
	return workload.BuildBatch(g.signer, []workload.Transaction{txn}, false)
}

func (g *Generator) nextCommand() Command {
	pick := g.rng.Intn(g.totalWt)
	typ := TypeSetState
	for _, w := range weights {
		if pick < w.weight {
			typ = w.typ
			break
		}
		pick -= w.weight
	}

	c := Command{Type: typ}
	switch typ {
	case TypeSetState, TypeGetState, TypeDeleteState:
		c.Addresses = g.addresses(1 + g.rng.Intn(3))
		if typ == TypeSetState {
			c.Value = make([]byte, 8+g.rng.Intn(24))
			g.rng.Read(c.Value)
		}
	case TypeAddEvent, TypeAddReceiptData:
		c.Value = make([]byte, 16)
		g.rng.Read(c.Value)
		c.Message = fmt.Sprintf("workload-%d", g.rng.Intn(1000))
	case TypeSleep:
		c.Millis = uint32(1 + g.rng.Intn(50))
	case TypeReturnInvalid:
		c.Message = "invalid transaction requested by workload"
	}
	return c
}

func (g *Generator) addresses(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = g.pool[g.rng.Intn(len(g.pool))]
	}
	return out
}

func randomAddress(rng *rand.Rand) string {
	raw := make([]byte, 32)
	rng.Read(raw)
	return AddressPrefix + hex.EncodeToString(raw)
}

// MarshalPayload encodes commands as a CommandPayload message.
func MarshalPayload(cmds []Command) []byte {
	var b []byte
	for _, c := range cmds {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalCommand(c))
	}
	return b
}

func marshalCommand(c Command) []byte {
	var body []byte
	switch c.Type {
	case TypeSetState:
		for _, addr := range c.Addresses {
			var entry []byte
			entry = protowire.AppendTag(entry, 1, protowire.BytesType)
			entry = protowire.AppendString(entry, addr)
			entry = protowire.AppendTag(entry, 2, protowire.BytesType)
			entry = protowire.AppendBytes(entry, c.Value)
			body = protowire.AppendTag(body, 1, protowire.BytesType)
			body = protowire.AppendBytes(body, entry)
		}
	case TypeGetState, TypeDeleteState:
		for _, addr := range c.Addresses {
			body = protowire.AppendTag(body, 1, protowire.BytesType)
			body = protowire.AppendString(body, addr)
		}
	case TypeAddEvent, TypeAddReceiptData:
		body = protowire.AppendTag(body, 1, protowire.BytesType)
		body = protowire.AppendString(body, c.Message)
		body = protowire.AppendTag(body, 3, protowire.BytesType)
		body = protowire.AppendBytes(body, c.Value)
	case TypeSleep:
		body = protowire.AppendTag(body, 1, protowire.VarintType)
		body = protowire.AppendVarint(body, uint64(c.Millis))
	case TypeReturnInvalid:
		body = protowire.AppendTag(body, 1, protowire.BytesType)
		body = protowire.AppendString(body, c.Message)
	}

	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.Type))
	b = protowire.AppendTag(b, protowire.Number(1+int(c.Type)), protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	return b
}
