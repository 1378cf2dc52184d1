package provider_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"courier/internal/domain"
	"courier/internal/ibe"
	"courier/internal/keyclock"
	"courier/internal/services/provider"
	"courier/internal/store"
)

func newTestProvider(t *testing.T) (*provider.Service, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "courier.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	scheme, err := ibe.NewDevScheme([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	svc := provider.New(provider.Deps{
		Scheme:     scheme,
		Clock:      keyclock.New(keyclock.DefaultRotation, clock.NewMock()),
		Closer:     st,
		Tx:         st,
		Identities: store.NewIdentityStore(st),
		Devices:    store.NewDeviceStore(st),
		UserKeys:   store.NewUserKeyStore(st),
		Secrets:    store.NewSecretStore(st),
		Sequences:  store.NewSequenceStore(st),
		Encoded:    store.NewEncodedMessageStore(st),
	})
	return svc, st
}

func ownIdentity(t *testing.T, st *store.Store, principal string) domain.Identity {
	t.Helper()
	id := domain.NewIdentity(domain.AuthorityEmail, principal)
	id.Owned = true
	id.Claimed = true
	require.NoError(t, store.NewIdentityStore(st).Insert(context.Background(), &id))
	return id
}

func TestInitializeRequiresOwnedIdentity(t *testing.T) {
	svc, _ := newTestProvider(t)

	err := svc.Initialize(context.Background(), "laptop")
	require.ErrorIs(t, err, domain.ErrNoOwnedIdentity)
}

func TestInitializeOnce(t *testing.T) {
	svc, st := newTestProvider(t)
	ctx := context.Background()

	me := ownIdentity(t, st, "alice@example.com")
	require.NoError(t, svc.Initialize(ctx, "laptop"))

	require.Equal(t, me.ID, svc.LocalIdentity().ID)
	require.Equal(t, "laptop", svc.LocalDevice().Name)
	require.NotZero(t, svc.LocalDevice().ID)

	require.Error(t, svc.Initialize(ctx, "laptop"))
}

func TestInitializeReusesDeviceAcrossRestarts(t *testing.T) {
	svc, st := newTestProvider(t)
	ctx := context.Background()

	ownIdentity(t, st, "alice@example.com")
	require.NoError(t, svc.Initialize(ctx, "laptop"))
	first := svc.LocalDevice().ID

	again := provider.New(provider.Deps{
		Scheme:     svc.Scheme(),
		Clock:      keyclock.New(keyclock.DefaultRotation, clock.NewMock()),
		Tx:         st,
		Identities: store.NewIdentityStore(st),
		Devices:    store.NewDeviceStore(st),
		UserKeys:   store.NewUserKeyStore(st),
		Secrets:    store.NewSecretStore(st),
		Sequences:  store.NewSequenceStore(st),
		Encoded:    store.NewEncodedMessageStore(st),
	})
	require.NoError(t, again.Initialize(ctx, "laptop"))
	require.Equal(t, first, again.LocalDevice().ID)
}

func TestEpochForMatchesClock(t *testing.T) {
	svc, st := newTestProvider(t)
	ownIdentity(t, st, "alice@example.com")
	require.NoError(t, svc.Initialize(context.Background(), "laptop"))

	id := domain.NewIdentity(domain.AuthorityEmail, "bob@example.com")
	at := time.Unix(1_700_000_000, 0)

	kc := keyclock.New(keyclock.DefaultRotation, clock.NewMock())
	require.Equal(t, kc.FrameFor(id.PrincipalHash, at), svc.EpochFor(id, at))
}

func TestAddIdentityUpserts(t *testing.T) {
	svc, st := newTestProvider(t)
	ctx := context.Background()
	ownIdentity(t, st, "alice@example.com")
	require.NoError(t, svc.Initialize(ctx, "laptop"))

	bob, err := svc.AddUnclaimedIdentity(ctx, domain.AuthorityEmail, "bob@example.com")
	require.NoError(t, err)
	require.NotZero(t, bob.ID)
	require.False(t, bob.Claimed)

	// Same principal again: same row, now claimed.
	bob2, err := svc.AddClaimedIdentity(ctx, domain.AuthorityEmail, "bob@example.com")
	require.NoError(t, err)
	require.Equal(t, bob.ID, bob2.ID)
	require.True(t, bob2.Claimed)

	// Claimed status never downgrades.
	bob3, err := svc.AddUnclaimedIdentity(ctx, domain.AuthorityEmail, "bob@example.com")
	require.NoError(t, err)
	require.Equal(t, bob.ID, bob3.ID)
	require.True(t, bob3.Claimed)
}

func TestAddDeviceGeneratesNames(t *testing.T) {
	svc, st := newTestProvider(t)
	ctx := context.Background()
	ownIdentity(t, st, "alice@example.com")
	require.NoError(t, svc.Initialize(ctx, "laptop"))

	bob, err := svc.AddUnclaimedIdentity(ctx, domain.AuthorityEmail, "bob@example.com")
	require.NoError(t, err)

	named, err := svc.AddDevice(ctx, bob.ID, "phone")
	require.NoError(t, err)
	same, err := svc.AddDevice(ctx, bob.ID, "phone")
	require.NoError(t, err)
	require.Equal(t, named.ID, same.ID)

	anon, err := svc.AddDevice(ctx, bob.ID, "")
	require.NoError(t, err)
	anon2, err := svc.AddDevice(ctx, bob.ID, "")
	require.NoError(t, err)
	require.NotEmpty(t, anon.Name)
	require.NotEqual(t, anon.ID, anon2.ID)
}

func TestIsMeAndIsBlacklisted(t *testing.T) {
	svc, st := newTestProvider(t)
	ctx := context.Background()
	me := ownIdentity(t, st, "alice@example.com")
	require.NoError(t, svc.Initialize(ctx, "laptop"))

	bob, err := svc.AddUnclaimedIdentity(ctx, domain.AuthorityEmail, "bob@example.com")
	require.NoError(t, err)
	require.NoError(t, store.NewIdentityStore(st).SetBlocked(ctx, bob.ID, true))

	isMe, err := svc.IsMe(ctx, me)
	require.NoError(t, err)
	require.True(t, isMe)
	isMe, err = svc.IsMe(ctx, bob)
	require.NoError(t, err)
	require.False(t, isMe)

	blocked, err := svc.IsBlacklisted(ctx, bob)
	require.NoError(t, err)
	require.True(t, blocked)

	// Unknown identity is neither me nor blocked.
	carol := domain.NewIdentity(domain.AuthorityEmail, "carol@example.com")
	isMe, err = svc.IsMe(ctx, carol)
	require.NoError(t, err)
	require.False(t, isMe)
	blocked, err = svc.IsBlacklisted(ctx, carol)
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestObserveSequenceNumberGapDetection(t *testing.T) {
	svc, st := newTestProvider(t)
	ctx := context.Background()
	ownIdentity(t, st, "alice@example.com")
	require.NoError(t, svc.Initialize(ctx, "laptop"))

	bob, err := svc.AddUnclaimedIdentity(ctx, domain.AuthorityEmail, "bob@example.com")
	require.NoError(t, err)
	dev, err := svc.AddDevice(ctx, bob.ID, "phone")
	require.NoError(t, err)

	seqs := store.NewSequenceStore(st)
	devs := store.NewDeviceStore(st)

	for _, n := range []int64{0, 1, 2, 3, 4, 5} {
		require.NoError(t, svc.ObserveSequenceNumber(ctx, dev.ID, n))
	}
	missing, err := seqs.Missing(ctx, dev.ID)
	require.NoError(t, err)
	require.Empty(t, missing)

	// Jumping 5 -> 8 records 6 and 7 as holes.
	require.NoError(t, svc.ObserveSequenceNumber(ctx, dev.ID, 8))
	missing, err = seqs.Missing(ctx, dev.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{6, 7}, missing)

	got, ok, err := devs.ByID(ctx, dev.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(8), got.MaxSequenceNumber)

	// The late arrival of 6 clears only 6.
	require.NoError(t, svc.ObserveSequenceNumber(ctx, dev.ID, 6))
	missing, err = seqs.Missing(ctx, dev.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{7}, missing)
}

func TestObserveSequenceNumberGapAtOrigin(t *testing.T) {
	svc, st := newTestProvider(t)
	ctx := context.Background()
	ownIdentity(t, st, "alice@example.com")
	require.NoError(t, svc.Initialize(ctx, "laptop"))

	bob, err := svc.AddUnclaimedIdentity(ctx, domain.AuthorityEmail, "bob@example.com")
	require.NoError(t, err)
	dev, err := svc.AddDevice(ctx, bob.ID, "phone")
	require.NoError(t, err)
	require.Equal(t, int64(-1), dev.MaxSequenceNumber)

	// Sequence numbers are zero-based, so losing a device's very first
	// messages must still register.
	require.NoError(t, svc.ObserveSequenceNumber(ctx, dev.ID, 2))
	missing, err := store.NewSequenceStore(st).Missing(ctx, dev.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1}, missing)

	got, ok, err := store.NewDeviceStore(st).ByID(ctx, dev.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(2), got.MaxSequenceNumber)

	require.NoError(t, svc.ObserveSequenceNumber(ctx, dev.ID, 0))
	missing, err = store.NewSequenceStore(st).Missing(ctx, dev.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, missing)
}

func TestSecretsKeyedToLocalIdentity(t *testing.T) {
	svc, st := newTestProvider(t)
	ctx := context.Background()
	ownIdentity(t, st, "alice@example.com")
	require.NoError(t, svc.Initialize(ctx, "laptop"))

	bob, err := svc.AddUnclaimedIdentity(ctx, domain.AuthorityEmail, "bob@example.com")
	require.NoError(t, err)

	_, ok, err := svc.OutgoingSecret(ctx, bob, 100, 200)
	require.NoError(t, err)
	require.False(t, ok)

	sec := domain.OutgoingSecret{
		OtherIdentityID: bob.ID,
		SignatureEpoch:  100,
		EncryptionEpoch: 200,
		Key:             []byte("channel-key"),
		Signature:       []byte("sig"),
	}
	require.NoError(t, svc.InsertOutgoingSecret(ctx, &sec))
	require.Equal(t, svc.LocalIdentity().ID, sec.MyIdentityID)

	got, ok, err := svc.OutgoingSecret(ctx, bob, 100, 200)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("channel-key"), got.Key)
}

// Exercises the full send path between two nodes sharing no state but the
// scheme: A encodes and records sequence numbers, B deduplicates by hash
// and stores the ciphertext.
func TestSendAndReceiveAcrossNodes(t *testing.T) {
	ctx := context.Background()

	alice, aliceStore := newTestProvider(t)
	ownIdentity(t, aliceStore, "alice@example.com")
	require.NoError(t, alice.Initialize(ctx, "alice-laptop"))

	bob, bobStore := newTestProvider(t)
	ownIdentity(t, bobStore, "bob@example.com")
	require.NoError(t, bob.Initialize(ctx, "bob-phone"))

	// A side: address B, assign a sequence number, store the ciphertext.
	require.NoError(t, alice.Begin(ctx))
	bobAtAlice, err := alice.AddUnclaimedIdentity(ctx, domain.AuthorityEmail, "bob@example.com")
	require.NoError(t, err)

	// The counter rides the recipient's row: one stream per addressee.
	seq, err := alice.IncrementSequenceNumber(ctx, bobAtAlice)
	require.NoError(t, err)
	require.Equal(t, bobAtAlice.NextSequenceNumber, seq)

	epoch := alice.EpochFor(bobAtAlice, time.Unix(1_700_000_000, 0))
	ciphertext, err := alice.Scheme().Encrypt(bobAtAlice.Principal, epoch, []byte("hello bob"))
	require.NoError(t, err)

	msg := domain.NewEncodedMessage(ciphertext, true)
	require.NoError(t, alice.InsertEncodedMessage(ctx, &msg))
	require.NoError(t, alice.StoreSequenceNumbers(ctx, msg.ID, map[int64]int64{bobAtAlice.ID: seq}))
	require.NoError(t, alice.Succeed())
	require.NoError(t, alice.End())

	after, err := alice.IncrementSequenceNumber(ctx, bobAtAlice)
	require.NoError(t, err)
	require.Equal(t, seq+1, after)

	records, err := store.NewSequenceStore(aliceStore).SequenceNumbers(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, seq, records[0].SequenceNumber)

	// B side: unseen hash, store, then the duplicate is detected.
	have, err := bob.HaveHash(ctx, msg.Hash)
	require.NoError(t, err)
	require.False(t, have)

	require.NoError(t, bob.Begin(ctx))
	aliceAtBob, err := bob.AddUnclaimedIdentity(ctx, domain.AuthorityEmail, "alice@example.com")
	require.NoError(t, err)
	aliceDev, err := bob.AddDevice(ctx, aliceAtBob.ID, "alice-laptop")
	require.NoError(t, err)

	inbound := domain.NewEncodedMessage(ciphertext, false)
	require.NoError(t, bob.InsertEncodedMessage(ctx, &inbound))
	require.NoError(t, bob.ObserveSequenceNumber(ctx, aliceDev.ID, seq))
	require.NoError(t, bob.Succeed())
	require.NoError(t, bob.End())

	have, err = bob.HaveHash(ctx, msg.Hash)
	require.NoError(t, err)
	require.True(t, have)

	// The plaintext round-trips through the scheme's private half.
	key, err := bob.Scheme().ExtractEncryptionKey(ctx, "bob@example.com", epoch)
	require.NoError(t, err)
	plain, err := bob.Scheme().Decrypt(key, inbound.Payload)
	require.NoError(t, err)
	require.Equal(t, []byte("hello bob"), plain)
}
