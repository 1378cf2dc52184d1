package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"courier/internal/domain"
	"courier/internal/store"
)

func TestSequenceStore_IncrementIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seqs := store.NewSequenceStore(s)

	alice := insertIdentity(t, s, domain.AuthorityEmail, "alice@example.com", false)

	// N increments from 0 yield 0..N-1 in order.
	for want := int64(0); want < 5; want++ {
		got, err := seqs.IncrementSequenceNumber(ctx, alice.ID)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	// The stored next value is one past the last returned.
	got, _, err := store.NewIdentityStore(s).ByID(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.NextSequenceNumber)
}

func TestSequenceStore_IncrementUnknownIdentity(t *testing.T) {
	s := newTestStore(t)
	_, err := store.NewSequenceStore(s).IncrementSequenceNumber(context.Background(), 999)
	require.Error(t, err)
}

func TestSequenceStore_TransmissionRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seqs := store.NewSequenceStore(s)

	a := insertIdentity(t, s, domain.AuthorityEmail, "a@example.com", false)
	b := insertIdentity(t, s, domain.AuthorityEmail, "b@example.com", false)

	msg := domain.NewEncodedMessage([]byte("ciphertext"), true)
	require.NoError(t, store.NewEncodedMessageStore(s).Insert(ctx, &msg))

	require.NoError(t, seqs.StoreSequenceNumbers(ctx, msg.ID, map[int64]int64{
		a.ID: 4,
		b.ID: 9,
	}))

	recs, err := seqs.SequenceNumbers(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	byRecipient := map[int64]int64{}
	for _, r := range recs {
		require.Equal(t, msg.ID, r.EncodedID)
		byRecipient[r.RecipientID] = r.SequenceNumber
	}
	require.Equal(t, map[int64]int64{a.ID: 4, b.ID: 9}, byRecipient)
}

func TestSequenceStore_GapBookkeeping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seqs := store.NewSequenceStore(s)

	peer := insertIdentity(t, s, domain.AuthorityEmail, "peer@example.com", false)
	dev := insertDevice(t, s, peer.ID, "peer-phone")

	// Device max was 5, sequence 8 arrives: the caller inserts the skipped
	// numbers 6 and 7.
	require.NoError(t, seqs.AddMissing(ctx, dev.ID, []int64{6, 7}))

	missing, err := seqs.Missing(ctx, dev.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{6, 7}, missing)

	// Receiving 6 clears exactly 6.
	require.NoError(t, seqs.ReceivedSequenceNumber(ctx, dev.ID, 6))
	missing, err = seqs.Missing(ctx, dev.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{7}, missing)

	// Clearing a number that was never missing is a no-op.
	require.NoError(t, seqs.ReceivedSequenceNumber(ctx, dev.ID, 3))
	missing, err = seqs.Missing(ctx, dev.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{7}, missing)
}

func TestSequenceStore_NoDuplicateMissingRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seqs := store.NewSequenceStore(s)

	peer := insertIdentity(t, s, domain.AuthorityEmail, "peer@example.com", false)
	dev := insertDevice(t, s, peer.ID, "peer-phone")

	require.NoError(t, seqs.AddMissing(ctx, dev.ID, []int64{6}))
	// Re-detecting the same hole must not create a second row.
	require.NoError(t, seqs.AddMissing(ctx, dev.ID, []int64{6, 7}))

	missing, err := seqs.Missing(ctx, dev.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{6, 7}, missing)
}
