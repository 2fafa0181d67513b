package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lumen-lms/apiserver/internal/db"
	"github.com/lumen-lms/apiserver/internal/services"
	"github.com/lumen-lms/apiserver/internal/store"
	"github.com/lumen-lms/apiserver/types"
	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative account tasks",
}

var adminCreateFlags struct {
	username string
	password string
	email    string
	fullName string
}

// adminCreateCmd bootstraps an admin account. Admins have no creator, so
// this is the only way to make one.
var adminCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an admin account",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime()
		if err != nil {
			return err
		}
		defer log.Sync()

		username := strings.ToLower(strings.TrimSpace(adminCreateFlags.username))
		if username == "" {
			return errors.New("--username is required")
		}
		hash, err := services.HashPassword(adminCreateFlags.password)
		if err != nil {
			return err
		}

		conn, err := db.Open(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer conn.Close()

		users := store.NewUserRepository(conn)
		if _, err := users.GetByUsername(cmd.Context(), username); err == nil {
			return fmt.Errorf("user %q already exists", username)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		fullName := strings.TrimSpace(adminCreateFlags.fullName)
		if fullName == "" {
			fullName = username
		}
		user := types.User{
			Username:     username,
			FullName:     fullName,
			Role:         types.RoleAdmin,
			IsActive:     true,
			PasswordSet:  true,
			PasswordHash: hash,
		}
		if email := strings.TrimSpace(adminCreateFlags.email); email != "" {
			user.Email = &email
		}

		created, err := users.Create(cmd.Context(), user)
		if err != nil {
			return err
		}
		log.Info("admin created", "user_id", created.ID, "username", created.Username)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(adminCreateCmd)

	adminCreateCmd.Flags().StringVar(&adminCreateFlags.username, "username", "", "admin username")
	adminCreateCmd.Flags().StringVar(&adminCreateFlags.password, "password", "", "admin password")
	adminCreateCmd.Flags().StringVar(&adminCreateFlags.email, "email", "", "admin email")
	adminCreateCmd.Flags().StringVar(&adminCreateFlags.fullName, "full-name", "", "display name")
}
