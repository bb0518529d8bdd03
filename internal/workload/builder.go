package workload

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
)

// TransactionSpec holds the family-specific parts of a transaction.
type TransactionSpec struct {
	FamilyName    string
	FamilyVersion string
	Inputs        []string
	Outputs       []string
	Dependencies  []string
	Nonce         string
	Payload       []byte
}

// BuildTransaction hashes the payload, encodes and signs the header.
func BuildTransaction(signer Signer, spec TransactionSpec) (Transaction, error) {
	hash := sha512.Sum512(spec.Payload)
	pub := signer.PublicKey()
	header := TransactionHeader{
		BatcherPublicKey: pub,
		Dependencies:     spec.Dependencies,
		FamilyName:       spec.FamilyName,
		FamilyVersion:    spec.FamilyVersion,
		Inputs:           spec.Inputs,
		Nonce:            spec.Nonce,
		Outputs:          spec.Outputs,
		PayloadHash:      hex.EncodeToString(hash[:]),
		SignerPublicKey:  pub,
	}
	headerBytes := header.Marshal()
	sig, err := signer.Sign(headerBytes)
	if err != nil {
		return Transaction{}, fmt.Errorf("sign transaction header: %w", err)
	}
	return Transaction{
		Header:          headerBytes,
		HeaderSignature: hex.EncodeToString(sig),
		Payload:         spec.Payload,
	}, nil
}

// BuildBatch wraps transactions in a signed batch.
func BuildBatch(signer Signer, txns []Transaction, trace bool) (*Batch, error) {
	ids := make([]string, len(txns))
	for i, txn := range txns {
		ids[i] = txn.HeaderSignature
	}
	header := BatchHeader{
		SignerPublicKey: signer.PublicKey(),
		TransactionIDs:  ids,
	}
	headerBytes := header.Marshal()
	sig, err := signer.Sign(headerBytes)
	if err != nil {
		return nil, fmt.Errorf("sign batch header: %w", err)
	}
	return &Batch{
		Header:          headerBytes,
		HeaderSignature: hex.EncodeToString(sig),
		Transactions:    txns,
		Trace:           trace,
	}, nil
}
