package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"courier/internal/domain"
	"courier/internal/store"
)

func TestEncodedStore_DedupByHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	msgs := store.NewEncodedMessageStore(s)

	payload := []byte("ciphertext payload")
	h := domain.HashContent(payload)

	_, ok, err := msgs.LookupByHash(ctx, h)
	require.NoError(t, err)
	require.False(t, ok, "hash must be unknown before insert")

	m := domain.NewEncodedMessage(payload, false)
	require.NoError(t, msgs.Insert(ctx, &m))

	id, ok, err := msgs.LookupByHash(ctx, h)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, m.ID, id)

	// A different payload with a (vanishingly unlikely but simulated) equal
	// short hash must not resolve: full-hash equality decides.
	other := domain.NewEncodedMessage([]byte("different payload"), false)
	require.NoError(t, msgs.Insert(ctx, &other))
	gotID, ok, err := msgs.LookupByHash(ctx, domain.HashContent([]byte("different payload")))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, other.ID, gotID)
}

func TestEncodedStore_MetadataUpdateKeepsPayload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	msgs := store.NewEncodedMessageStore(s)

	sender := insertIdentity(t, s, domain.AuthorityEmail, "sender@example.com", false)
	dev := insertDevice(t, s, sender.ID, "sender-phone")

	m := domain.NewEncodedMessage([]byte("opaque blob"), false)
	require.NoError(t, msgs.Insert(ctx, &m))

	// Decode attaches the verified sender and flips processed.
	m.SenderID = sender.ID
	m.DeviceID = dev.ID
	m.Processed = true
	m.ProcessedAt = time.Unix(1_700_000_000, 0)
	require.NoError(t, msgs.UpdateMetadata(ctx, &m))

	got, ok, err := msgs.ByID(ctx, m.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("opaque blob"), got.Payload)
	require.Equal(t, sender.ID, got.SenderID)
	require.Equal(t, dev.ID, got.DeviceID)
	require.True(t, got.Processed)
	require.Equal(t, int64(1_700_000_000), got.ProcessedAt.Unix())
}

func TestEncodedStore_OutboundQueueExcludesPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	msgs := store.NewEncodedMessageStore(s)

	var ids []int64
	for _, p := range []string{"m1", "m2", "m3"} {
		m := domain.NewEncodedMessage([]byte(p), true)
		require.NoError(t, msgs.Insert(ctx, &m))
		ids = append(ids, m.ID)
	}
	// An inbound and a processed outbound message never enter the queue.
	in := domain.NewEncodedMessage([]byte("inbound"), false)
	require.NoError(t, msgs.Insert(ctx, &in))
	done := domain.NewEncodedMessage([]byte("done"), true)
	done.Processed = true
	done.ProcessedAt = time.Now()
	require.NoError(t, msgs.Insert(ctx, &done))

	queue, err := msgs.UnsentOutboundIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, ids, queue, "FIFO in id order")

	// Claiming m2 hides it until the claim is released.
	require.NoError(t, msgs.OpenPendingUpload(ctx, ids[1]))
	queue, err = msgs.UnsentOutboundIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{ids[0], ids[2]}, queue)

	require.NoError(t, msgs.ClosePendingUpload(ctx, ids[1]))
	queue, err = msgs.UnsentOutboundIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, ids, queue)
}

func TestEncodedStore_InboundDecodeQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	msgs := store.NewEncodedMessageStore(s)

	a := domain.NewEncodedMessage([]byte("in-a"), false)
	require.NoError(t, msgs.Insert(ctx, &a))
	b := domain.NewEncodedMessage([]byte("in-b"), false)
	require.NoError(t, msgs.Insert(ctx, &b))
	out := domain.NewEncodedMessage([]byte("out"), true)
	require.NoError(t, msgs.Insert(ctx, &out))

	queue, err := msgs.NonDecodedInboundIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{a.ID, b.ID}, queue)

	a.Processed = true
	a.ProcessedAt = time.Now()
	require.NoError(t, msgs.UpdateMetadata(ctx, &a))

	queue, err = msgs.NonDecodedInboundIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{b.ID}, queue)
}

func TestEncodedStore_RetentionGC(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	msgs := store.NewEncodedMessageStore(s)

	now := time.Unix(1_700_000_000, 0)
	cutoff := now.AddDate(0, 0, -30)

	old := domain.NewEncodedMessage([]byte("old processed"), false)
	old.Processed = true
	old.ProcessedAt = cutoff.Add(-time.Hour)
	require.NoError(t, msgs.Insert(ctx, &old))

	recent := domain.NewEncodedMessage([]byte("recently processed"), false)
	recent.Processed = true
	recent.ProcessedAt = cutoff.Add(time.Hour)
	require.NoError(t, msgs.Insert(ctx, &recent))

	unprocessed := domain.NewEncodedMessage([]byte("unprocessed"), false)
	require.NoError(t, msgs.Insert(ctx, &unprocessed))

	n, err := msgs.DeleteProcessedOlderThan(ctx, cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, ok, err := msgs.ByID(ctx, old.ID)
	require.NoError(t, err)
	require.False(t, ok, "old processed row must be gone")

	_, ok, err = msgs.ByID(ctx, recent.ID)
	require.NoError(t, err)
	require.True(t, ok, "recently processed row must survive")

	_, ok, err = msgs.ByID(ctx, unprocessed.ID)
	require.NoError(t, err)
	require.True(t, ok, "unprocessed row must survive")
}
