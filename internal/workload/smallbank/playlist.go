package smallbank

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// WritePlaylist records count payloads from source as a YAML sequence.
func WritePlaylist(w io.Writer, source PayloadSource, count int) error {
	if count <= 0 {
		return errors.New("playlist length must be > 0")
	}
	payloads := make([]Payload, count)
	for i := range payloads {
		payloads[i] = source.Next()
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(payloads); err != nil {
		return fmt.Errorf("write playlist: %w", err)
	}
	return enc.Close()
}

// ReadPlaylist parses a playlist written by WritePlaylist.
func ReadPlaylist(r io.Reader) ([]Payload, error) {
	var payloads []Payload
	if err := yaml.NewDecoder(r).Decode(&payloads); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("smallbank playlist is empty")
		}
		return nil, fmt.Errorf("read playlist: %w", err)
	}
	for i, p := range payloads {
		switch p.Operation {
		case OpCreateAccount, OpDepositChecking, OpWriteCheck, OpTransactSavings, OpSendPayment, OpAmalgamate:
		default:
			return nil, fmt.Errorf("playlist entry %d: unknown operation %q", i, p.Operation)
		}
	}
	return payloads, nil
}
