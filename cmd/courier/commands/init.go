package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"courier/internal/app"
	"courier/internal/domain"
)

// init <principal>: bootstrap the local identity and device.
func initCmd() *cobra.Command {
	var authority string

	cmd := &cobra.Command{
		Use:   "init <principal>",
		Short: "Bootstrap the local identity, device and configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			principal := args[0]

			if cfg.MasterSecret == "" {
				seed := make([]byte, 32)
				if _, err := rand.Read(seed); err != nil {
					return err
				}
				cfg.MasterSecret = hex.EncodeToString(seed)
			}
			if err := writeConfig(cfg); err != nil {
				return err
			}

			w, err := app.NewWire(cfg)
			if err != nil {
				return err
			}
			defer w.Close()
			ctx := cmd.Context()

			owned, err := w.Identities.Owned(ctx)
			if err != nil {
				return err
			}
			if len(owned) > 0 {
				return fmt.Errorf("already initialized as %s", owned[0].Principal)
			}

			id := domain.NewIdentity(domain.Authority(authority), principal)
			id.Owned = true
			id.Claimed = true
			if err := w.Identities.Insert(ctx, &id); err != nil {
				return err
			}

			dev := domain.NewDevice(cfg.DeviceName, id.ID)
			if err := w.Devices.Insert(ctx, &dev); err != nil {
				return err
			}

			fmt.Printf("Initialized %s (%s) on device %q.\n", principal, authority, cfg.DeviceName)
			return nil
		},
	}

	cmd.Flags().StringVar(&authority, "authority", string(domain.AuthorityEmail), "principal namespace (email, phone, self)")
	return cmd
}

func writeConfig(c app.Config) error {
	if err := os.MkdirAll(c.Home, 0o700); err != nil {
		return err
	}
	v := viper.New()
	v.Set("db_path", c.DBPath)
	v.Set("device_name", c.DeviceName)
	v.Set("rotation_days", c.RotationDays)
	v.Set("retention_days", c.RetentionDays)
	v.Set("master_secret", c.MasterSecret)
	v.Set("verbose", c.Verbose)
	return v.WriteConfigAs(filepath.Join(c.Home, "config.yaml"))
}
