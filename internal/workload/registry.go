// Package workload defines the batch model, the signer and the generator
// capability consumed by the runner.
//
// Workload kinds register a [Factory] under a [Kind] name, usually from an
// init function, so the runner can build generators without knowing the
// concrete types:
//
//	import _ "github.com/splintercommunity/transact/internal/workload/command"
//
//	gen, err := workload.New(workload.KindCommand, workload.Options{Seed: 42, Signer: signer})
//	batch, err := gen.NextBatch()
package workload

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind names a workload generator.
type Kind string

const (
	KindCommand   Kind = "command"
	KindSmallbank Kind = "smallbank"
)

// ErrUnknownKind is returned for kinds nobody registered.
var ErrUnknownKind = errors.New("unsupported workload type")

// Generator produces an effectively infinite sequence of batches. Two
// generators of the same kind built with the same Options yield identical
// sequences.
type Generator interface {
	NextBatch() (*Batch, error)
}

// Options configure a generator.
type Options struct {
	Seed   uint64
	Signer Signer

	// Smallbank settings; other kinds ignore them.
	Accounts     int
	PlaylistPath string
}

// Factory builds a generator.
type Factory func(opts Options) (Generator, error)

type registration struct {
	label   string
	factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = map[Kind]registration{}
)

// Register makes a kind available to New. label is used in counter names, for
// example "Command" gives "Command-Workload-0".
func Register(kind Kind, label string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("workload: Register factory is nil")
	}
	if _, dup := registry[kind]; dup {
		panic("workload: Register called twice for kind " + string(kind))
	}
	registry[kind] = registration{label: label, factory: factory}
}

func lookup(kind Kind) (registration, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[Kind(strings.ToLower(strings.TrimSpace(string(kind))))]
	if !ok {
		return registration{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return reg, nil
}

// New builds a generator of the given kind.
func New(kind Kind, opts Options) (Generator, error) {
	reg, err := lookup(kind)
	if err != nil {
		return nil, err
	}
	if opts.Signer == nil {
		return nil, errors.New("workload: signer is required")
	}
	return reg.factory(opts)
}

// Label returns the display label registered for kind.
func Label(kind Kind) (string, error) {
	reg, err := lookup(kind)
	if err != nil {
		return "", err
	}
	return reg.label, nil
}

// CounterID names the request counter of the i-th worker of a kind.
func CounterID(label string, i int) string {
	return fmt.Sprintf("%s-Workload-%d", label, i)
}

// Kinds lists the registered kinds in sorted order.
func Kinds() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
