package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ethpandaops/portfolioor/pkg/api/store"
)

var promoteEmail string

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage the user directory",
}

var usersPromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Grant the admin role to a registered user",
	Long: `Grant the admin role to the user registered with --email. The user
must have signed in at least once.`,
	RunE: runUsersPromote,
}

func init() {
	usersPromoteCmd.Flags().StringVar(&promoteEmail, "email", "", "email of the user to promote")
	_ = usersPromoteCmd.MarkFlagRequired("email")

	usersCmd.AddCommand(usersPromoteCmd)
	rootCmd.AddCommand(usersCmd)
}

func runUsersPromote(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	st := store.NewStore(log, &cfg.Database)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() {
		if err := st.Stop(); err != nil {
			log.WithError(err).Warn("Failed to close store")
		}
	}()

	user, err := st.GetUserByEmail(ctx, store.NormalizeEmail(promoteEmail))
	if err != nil {
		return fmt.Errorf("looking up %s: %w", promoteEmail, err)
	}

	if user.IsAdmin() {
		log.WithField("email", user.Email).Info("User is already an admin")

		return nil
	}

	if err := st.UpdateUserRole(ctx, user.ID, store.RoleAdmin); err != nil {
		return fmt.Errorf("promoting %s: %w", user.Email, err)
	}

	log.WithField("email", user.Email).
		WithField("uid", user.UID).
		Info("User promoted to admin")

	return nil
}
