package workload

import (
	"google.golang.org/protobuf/encoding/protowire"
)

// TransactionHeader describes a transaction. It is encoded to bytes and signed;
// the hex signature becomes the transaction id.
type TransactionHeader struct {
	BatcherPublicKey []byte
	Dependencies     []string
	FamilyName       string
	FamilyVersion    string
	Inputs           []string
	Nonce            string
	Outputs          []string
	PayloadHash      string
	SignerPublicKey  []byte
}

// Transaction is a signed header plus an opaque family payload.
type Transaction struct {
	Header          []byte
	HeaderSignature string
	Payload         []byte
}

// BatchHeader lists the transactions of a batch in order.
type BatchHeader struct {
	SignerPublicKey []byte
	TransactionIDs  []string
}

// Batch is the unit submitted to a target in a single request.
type Batch struct {
	Header          []byte
	HeaderSignature string
	Transactions    []Transaction
	Trace           bool
}

// ID returns the batch id, which is its header signature.
func (b *Batch) ID() string {
	if b == nil {
		return ""
	}
	return b.HeaderSignature
}

// Marshal encodes the header in protobuf wire format.
func (h *TransactionHeader) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, h.BatcherPublicKey)
	for _, dep := range h.Dependencies {
		b = appendString(b, 2, dep)
	}
	b = appendString(b, 3, h.FamilyName)
	b = appendString(b, 4, h.FamilyVersion)
	for _, in := range h.Inputs {
		b = appendString(b, 5, in)
	}
	b = appendString(b, 6, h.Nonce)
	for _, out := range h.Outputs {
		b = appendString(b, 7, out)
	}
	b = appendString(b, 9, h.PayloadHash)
	b = appendBytes(b, 10, h.SignerPublicKey)
	return b
}

// Marshal encodes the batch header in protobuf wire format.
func (h *BatchHeader) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, h.SignerPublicKey)
	for _, id := range h.TransactionIDs {
		b = appendString(b, 2, id)
	}
	return b
}

// Marshal encodes the transaction in protobuf wire format.
func (t *Transaction) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, t.Header)
	b = appendString(b, 2, t.HeaderSignature)
	b = appendBytes(b, 3, t.Payload)
	return b
}

// Marshal encodes the batch in protobuf wire format.
func (bt *Batch) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, bt.Header)
	b = appendString(b, 2, bt.HeaderSignature)
	for i := range bt.Transactions {
		b = appendBytes(b, 3, bt.Transactions[i].Marshal())
	}
	if bt.Trace {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

// MarshalBatchList encodes batches as a BatchList, the body a target expects.
func MarshalBatchList(batches ...*Batch) []byte {
	var b []byte
	for _, bt := range batches {
		if bt == nil {
			continue
		}
		b = appendBytes(b, 1, bt.Marshal())
	}
	return b
}

// BatchSummary is what a receiver learns from an encoded batch without
// verifying it.
type BatchSummary struct {
	ID           string
	Transactions int
	Trace        bool
}

// UnmarshalBatchList reads the batch ids and transaction counts out of an
// encoded BatchList.
func UnmarshalBatchList(data []byte) ([]BatchSummary, error) {
	var out []BatchSummary
	err := walkFields(data, func(num protowire.Number, raw []byte) error {
		if num != 1 {
			return nil
		}
		summary, err := unmarshalBatchSummary(raw)
		if err != nil {
			return err
		}
		out = append(out, summary)
		return nil
	})
	return out, err
}

func unmarshalBatchSummary(data []byte) (BatchSummary, error) {
	var s BatchSummary
	err := walkFields(data, func(num protowire.Number, raw []byte) error {
		switch num {
		case 2:
			s.ID = string(raw)
		case 3:
			s.Transactions++
		case 4:
			s.Trace = true
		}
		return nil
	})
	return s, err
}

// walkFields calls fn for every field in a message. Length-delimited fields get
// their contents; other fields get nil.
func walkFields(data []byte, fn func(num protowire.Number, raw []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		var raw []byte
		if typ == protowire.BytesType {
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			raw, n = v, m
		} else {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
		}
		data = data[n:]
		if err := fn(num, raw); err != nil {
			return err
		}
	}
	return nil
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}
