package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"courier/internal/domain"
	"courier/internal/store"
)

func TestSecretStore_OutgoingMissThenHit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	secrets := store.NewSecretStore(s)

	me := insertIdentity(t, s, domain.AuthorityEmail, "me@example.com", true)
	peer := insertIdentity(t, s, domain.AuthorityEmail, "peer@example.com", false)

	_, ok, err := secrets.OutgoingSecret(ctx, me.ID, peer.ID, 100, 200)
	require.NoError(t, err)
	require.False(t, ok, "fresh store must miss")

	sec := domain.OutgoingSecret{
		MyIdentityID:    me.ID,
		OtherIdentityID: peer.ID,
		SignatureEpoch:  100,
		EncryptionEpoch: 200,
		Key:             []byte("derived-symmetric-key"),
		EncryptedKey:    []byte("as-received-blob"),
		Signature:       []byte("validating-signature"),
	}
	require.NoError(t, secrets.InsertOutgoingSecret(ctx, &sec))
	require.NotZero(t, sec.ID)

	got, ok, err := secrets.OutgoingSecret(ctx, me.ID, peer.ID, 100, 200)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sec.Key, got.Key)
	require.Equal(t, sec.EncryptedKey, got.EncryptedKey)

	// A different epoch pair is a different secret.
	_, ok, err = secrets.OutgoingSecret(ctx, me.ID, peer.ID, 100, 300)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSecretStore_IncomingSignatureMustMatchExactly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	secrets := store.NewSecretStore(s)

	me := insertIdentity(t, s, domain.AuthorityEmail, "me@example.com", true)
	peer := insertIdentity(t, s, domain.AuthorityEmail, "peer@example.com", false)
	dev := insertDevice(t, s, peer.ID, "peer-phone")

	signature := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04}
	sec := domain.IncomingSecret{
		MyIdentityID:    me.ID,
		OtherIdentityID: peer.ID,
		DeviceID:        dev.ID,
		SignatureEpoch:  100,
		EncryptionEpoch: 200,
		Key:             []byte("derived-symmetric-key"),
		EncryptedKey:    []byte("as-received-blob"),
		Signature:       signature,
	}
	require.NoError(t, secrets.InsertIncomingSecret(ctx, &sec))

	got, ok, err := secrets.IncomingSecret(ctx, me.ID, peer.ID, dev.ID, 100, 200, signature)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sec.Key, got.Key)

	// One flipped bit in the presented signature downgrades the hit to a
	// miss, even though every other parameter coincides.
	tampered := append([]byte(nil), signature...)
	tampered[0] ^= 0x01
	_, ok, err = secrets.IncomingSecret(ctx, me.ID, peer.ID, dev.ID, 100, 200, tampered)
	require.NoError(t, err)
	require.False(t, ok)

	// And so does an empty signature.
	_, ok, err = secrets.IncomingSecret(ctx, me.ID, peer.ID, dev.ID, 100, 200, nil)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSecretStore_IncomingKeyedByDevice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	secrets := store.NewSecretStore(s)

	me := insertIdentity(t, s, domain.AuthorityEmail, "me@example.com", true)
	peer := insertIdentity(t, s, domain.AuthorityEmail, "peer@example.com", false)
	phone := insertDevice(t, s, peer.ID, "peer-phone")
	laptop := insertDevice(t, s, peer.ID, "peer-laptop")

	sig := []byte("sig")
	require.NoError(t, secrets.InsertIncomingSecret(ctx, &domain.IncomingSecret{
		MyIdentityID: me.ID, OtherIdentityID: peer.ID, DeviceID: phone.ID,
		SignatureEpoch: 1, EncryptionEpoch: 1,
		Key: []byte("phone-key"), Signature: sig,
	}))

	// The laptop has no cached secret even with identical epochs.
	_, ok, err := secrets.IncomingSecret(ctx, me.ID, peer.ID, laptop.ID, 1, 1, sig)
	require.NoError(t, err)
	require.False(t, ok)

	got, ok, err := secrets.IncomingSecret(ctx, me.ID, peer.ID, phone.ID, 1, 1, sig)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("phone-key"), got.Key)
}
