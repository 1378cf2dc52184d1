package capability

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sort"

	"courier/internal/domain"
)

// Service resolves feed capabilities and manages feed membership.
type Service struct {
	tx         domain.TxRunner
	feeds      domain.FeedStore
	identities domain.IdentityStore
}

// New constructs a capability Service over the given stores.
func New(tx domain.TxRunner, feeds domain.FeedStore, identities domain.IdentityStore) *Service {
	return &Service{tx: tx, feeds: feeds, identities: identities}
}

// canonicalize sorts identities by authority then principal-hash bytes and
// collapses exact duplicates.
func canonicalize(ids []domain.Identity) []domain.Identity {
	out := make([]domain.Identity, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Authority != out[j].Authority {
			return out[i].Authority < out[j].Authority
		}
		return bytes.Compare(out[i].PrincipalHash.Slice(), out[j].PrincipalHash.Slice()) < 0
	})
	dedup := out[:0]
	for i, id := range out {
		if i > 0 && id.Authority == out[i-1].Authority && id.PrincipalHash == out[i-1].PrincipalHash {
			continue
		}
		dedup = append(dedup, id)
	}
	return dedup
}

// ComputeFixedCapability folds a hash over the canonicalized member set.
// The result is invariant under permutation and under re-adding an identity
// that is already present.
func (s *Service) ComputeFixedCapability(ids []domain.Identity) domain.Capability {
	h := sha256.New()
	for _, id := range canonicalize(ids) {
		h.Write([]byte(id.Authority))
		h.Write([]byte{0})
		h.Write(id.PrincipalHash.Slice())
	}
	var token domain.Capability
	copy(token[:], h.Sum(nil))
	return token
}

// withOwner returns ids with the caller's first owned identity injected when
// none of the supplied ones is owned. Feeds always include the local side;
// callers may pass it explicitly or rely on the injection, the resulting
// capability is the same either way.
func (s *Service) withOwner(ctx context.Context, ids []domain.Identity) ([]domain.Identity, error) {
	for _, id := range ids {
		if id.Owned {
			return ids, nil
		}
	}
	owned, err := s.identities.Owned(ctx)
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return nil, domain.ErrNoOwnedIdentity
	}
	return append(append([]domain.Identity{}, ids...), owned[0]), nil
}

// GetOrCreateFixedFeed resolves the fixed feed for a group of identities,
// creating it with all its membership rows when absent. Creation is one
// transaction: a failure never leaves a feed with no members. Repeated calls
// for the same group return the same feed.
func (s *Service) GetOrCreateFixedFeed(ctx context.Context, ids []domain.Identity) (domain.Feed, error) {
	members, err := s.withOwner(ctx, ids)
	if err != nil {
		return domain.Feed{}, err
	}
	members = canonicalize(members)
	token := s.ComputeFixedCapability(members)

	if feed, ok, err := s.feeds.ByCapability(ctx, domain.FeedFixed, token); err != nil {
		return domain.Feed{}, err
	} else if ok {
		return feed, nil
	}

	feed := domain.Feed{
		Type:            domain.FeedFixed,
		Capability:      token,
		ShortCapability: token.Short(),
	}
	err = s.tx.InTx(ctx, func() error {
		if err := s.feeds.Insert(ctx, &feed); err != nil {
			return err
		}
		for _, m := range members {
			if m.ID == 0 {
				return fmt.Errorf("feed member %q has no identity row", m.Principal)
			}
			if err := s.feeds.AddMember(ctx, feed.ID, m.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Feed{}, err
	}
	return feed, nil
}

// CreateExpandingFeed creates a feed whose capability is a fresh random
// token, with the same owner-injection rule as fixed feeds.
func (s *Service) CreateExpandingFeed(ctx context.Context, name string, ids []domain.Identity) (domain.Feed, error) {
	members, err := s.withOwner(ctx, ids)
	if err != nil {
		return domain.Feed{}, err
	}
	members = canonicalize(members)

	var token domain.Capability
	if _, err := rand.Read(token[:]); err != nil {
		return domain.Feed{}, err
	}

	feed := domain.Feed{
		Type:            domain.FeedExpanding,
		Capability:      token,
		ShortCapability: token.Short(),
		Name:            name,
	}
	err = s.tx.InTx(ctx, func() error {
		if err := s.feeds.Insert(ctx, &feed); err != nil {
			return err
		}
		for _, m := range members {
			if m.ID == 0 {
				return fmt.Errorf("feed member %q has no identity row", m.Principal)
			}
			if err := s.feeds.AddMember(ctx, feed.ID, m.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Feed{}, err
	}
	return feed, nil
}

// Compile-time assertion that Service implements domain.CapabilityResolver.
var _ domain.CapabilityResolver = (*Service)(nil)
