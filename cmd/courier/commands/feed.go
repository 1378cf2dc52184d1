package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"courier/internal/app"
	"courier/internal/domain"
)

func feedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "Create and inspect feeds",
	}
	cmd.AddCommand(feedCreateCmd(), feedShowCmd())
	return cmd
}

// feed create <principal>...: resolve a feed for the given members plus the
// local identity. Fixed feeds are looked up or created by the derived
// capability; expanding feeds always create a fresh one.
func feedCreateCmd() *cobra.Command {
	var (
		expanding bool
		name      string
	)

	cmd := &cobra.Command{
		Use:   "create <principal>...",
		Short: "Create (or resolve) a feed for the given members",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			members := make([]domain.Identity, 0, len(args))
			for _, principal := range args {
				id, err := a.Transport.AddUnclaimedIdentity(ctx, domain.AuthorityEmail, principal)
				if err != nil {
					return err
				}
				members = append(members, id)
			}

			var feed domain.Feed
			if expanding {
				feed, err = a.Capabilities.CreateExpandingFeed(ctx, name, members)
			} else {
				feed, err = a.Capabilities.GetOrCreateFixedFeed(ctx, members)
			}
			if err != nil {
				return err
			}

			fmt.Printf("Feed %d\nCapability: %s\n", feed.ID, hex.EncodeToString(feed.Capability.Slice()))
			return nil
		},
	}

	cmd.Flags().BoolVar(&expanding, "expanding", false, "create an expanding feed (random capability)")
	cmd.Flags().StringVar(&name, "name", "", "feed name (expanding feeds only)")
	return cmd
}

// feed show <id>: print one feed and its members.
func feedShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a feed and its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.Open(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var feedID int64
			if _, err := fmt.Sscanf(args[0], "%d", &feedID); err != nil {
				return fmt.Errorf("bad feed id %q", args[0])
			}

			feed, ok, err := a.Feeds.ByID(ctx, feedID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no feed %d", feedID)
			}

			fmt.Printf("Feed %d (type %d, unread %d)\n", feed.ID, feed.Type, feed.NumUnread)
			fmt.Printf("Capability: %s\n", hex.EncodeToString(feed.Capability.Slice()))

			memberIDs, err := a.Feeds.Members(ctx, feed.ID)
			if err != nil {
				return err
			}
			for _, mid := range memberIDs {
				id, ok, err := a.Identities.ByID(ctx, mid)
				if err != nil {
					return err
				}
				if ok {
					fmt.Printf("  %s (%s)\n", id.Principal, id.Authority)
				}
			}
			return nil
		},
	}
}
