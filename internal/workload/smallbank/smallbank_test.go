package smallbank_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splintercommunity/transact/internal/workload"
	"github.com/splintercommunity/transact/internal/workload/smallbank"
)

func newSigner(t *testing.T) workload.Signer {
	t.Helper()
	signer, err := workload.SignerFromHex("2f1e7b7a130d7ba9da0068b3bb0ba1d79e7e77110302c9f746c3c2a63fe40088")
	require.NoError(t, err)
	return signer
}

func TestPayloadIterCreatesAccountsFirst(t *testing.T) {
	it := smallbank.NewPayloadIter(5, 1)
	for i := 1; i <= 5; i++ {
		p := it.Next()
		assert.Equal(t, smallbank.OpCreateAccount, p.Operation)
		assert.Equal(t, uint32(i), p.CustomerID)
	}
	for i := 0; i < 200; i++ {
		p := it.Next()
		require.NotEqual(t, smallbank.OpCreateAccount, p.Operation)
		switch p.Operation {
		case smallbank.OpSendPayment, smallbank.OpAmalgamate:
			assert.NotEqual(t, p.SourceCustomerID, p.DestCustomerID)
			assert.True(t, p.SourceCustomerID >= 1 && p.SourceCustomerID <= 5)
			assert.True(t, p.DestCustomerID >= 1 && p.DestCustomerID <= 5)
		default:
			assert.True(t, p.CustomerID >= 1 && p.CustomerID <= 5)
		}
	}
}

func TestPayloadIterIsDeterministic(t *testing.T) {
	a := smallbank.NewPayloadIter(10, 99)
	b := smallbank.NewPayloadIter(10, 99)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestGeneratorPayloadIsJSON(t *testing.T) {
	gen := smallbank.NewGenerator(smallbank.NewPayloadIter(2, 1), newSigner(t))
	batch, err := gen.NextBatch()
	require.NoError(t, err)
	require.Len(t, batch.Transactions, 1)

	var p smallbank.Payload
	require.NoError(t, jsoniter.Unmarshal(batch.Transactions[0].Payload, &p))
	assert.Equal(t, smallbank.OpCreateAccount, p.Operation)
	assert.Equal(t, "customer_000001", p.CustomerName)
}

func TestCustomerAddress(t *testing.T) {
	addr := smallbank.CustomerAddress(7)
	assert.True(t, strings.HasPrefix(addr, smallbank.AddressPrefix))
	assert.Len(t, addr, 70)
	assert.NotEqual(t, addr, smallbank.CustomerAddress(8))
}

func TestPlaylistRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, smallbank.WritePlaylist(&buf, smallbank.NewPayloadIter(3, 5), 10))
	assert.Contains(t, buf.String(), "operation: create_account")

	payloads, err := smallbank.ReadPlaylist(&buf)
	require.NoError(t, err)
	require.Len(t, payloads, 10)

	want := smallbank.NewPayloadIter(3, 5)
	for i, p := range payloads {
		assert.Equal(t, want.Next(), p, "entry %d", i)
	}
}

func TestPlaylistErrors(t *testing.T) {
	assert.Error(t, smallbank.WritePlaylist(&bytes.Buffer{}, smallbank.NewPayloadIter(1, 1), 0))

	_, err := smallbank.ReadPlaylist(strings.NewReader(""))
	assert.Error(t, err)

	_, err = smallbank.ReadPlaylist(strings.NewReader("- operation: withdraw_all\n"))
	assert.ErrorContains(t, err, "unknown operation")
}

func TestReplayCycles(t *testing.T) {
	_, err := smallbank.NewReplay(nil)
	require.Error(t, err)

	replay, err := smallbank.NewReplay([]smallbank.Payload{
		{Operation: smallbank.OpDepositChecking, CustomerID: 1, Amount: 5},
		{Operation: smallbank.OpWriteCheck, CustomerID: 2, Amount: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, smallbank.OpDepositChecking, replay.Next().Operation)
	assert.Equal(t, smallbank.OpWriteCheck, replay.Next().Operation)
	assert.Equal(t, smallbank.OpDepositChecking, replay.Next().Operation)
}

func TestRegisteredFactoryReplaysPlaylist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playlist.yaml")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, smallbank.WritePlaylist(f, smallbank.NewPayloadIter(1, 1), 3))
	require.NoError(t, f.Close())

	gen, err := workload.New(workload.KindSmallbank, workload.Options{Signer: newSigner(t), PlaylistPath: path})
	require.NoError(t, err)
	batch, err := gen.NextBatch()
	require.NoError(t, err)
	assert.NotEmpty(t, batch.ID())

	_, err = workload.New(workload.KindSmallbank, workload.Options{Signer: newSigner(t), PlaylistPath: path + ".missing"})
	assert.Error(t, err)
}
