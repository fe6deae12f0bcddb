package main

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	aegisauth "github.com/MokshitBindal/Aegis-sub000/internal/auth"
	"github.com/MokshitBindal/Aegis-sub000/internal/config"
	"github.com/MokshitBindal/Aegis-sub000/internal/models"
	"github.com/MokshitBindal/Aegis-sub000/internal/store"
)

var readPassword = term.ReadPassword

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Administrative account management",
	Long:  `Bootstrap the first owner account or issue device-registration invitations from the command line, mirroring the original aegis-manage.py admin scripts.`,
}

var bootstrapOwnerCmd = &cobra.Command{
	Use:   "bootstrap-owner",
	Short: "Create the first owner account",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		if email == "" {
			return fmt.Errorf("--email is required")
		}

		cfg, err := config.LoadServerConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		pass := promptPassword("Enter password for owner account: ")
		if err := aegisauth.ValidatePasswordComplexity(pass); err != nil {
			return err
		}
		hash, err := aegisauth.HashPassword(pass)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := store.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		db := store.New(pool)

		exists, err := db.OwnerExists(ctx)
		if err != nil {
			return fmt.Errorf("check for existing owner: %w", err)
		}
		if exists {
			return fmt.Errorf("an owner account already exists")
		}

		user := models.User{
			ID:       ulid.Make().String(),
			Email:    email,
			PassHash: hash,
			Role:     models.RoleOwner,
			IsActive: true,
		}
		if err := db.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("create owner: %w", err)
		}

		fmt.Printf("Owner account created: %s\n", email)
		return nil
	},
}

var createInvitationCmd = &cobra.Command{
	Use:   "create-invitation",
	Short: "Print a new device-registration invitation token",
	RunE: func(cmd *cobra.Command, args []string) error {
		ownerEmail, _ := cmd.Flags().GetString("owner-email")
		if ownerEmail == "" {
			return fmt.Errorf("--owner-email is required")
		}

		cfg, err := config.LoadServerConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pool, err := store.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		db := store.New(pool)

		owner, ok, err := db.GetUserByEmail(ctx, ownerEmail)
		if err != nil {
			return fmt.Errorf("look up owner: %w", err)
		}
		if !ok {
			return fmt.Errorf("no user with email %s", ownerEmail)
		}

		token, err := aegisauth.GenerateAPIToken()
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		hash, err := aegisauth.HashPassword(token)
		if err != nil {
			return fmt.Errorf("hash token: %w", err)
		}

		inv := models.Invitation{
			ID:        ulid.Make().String(),
			UserID:    owner.ID,
			TokenHash: hash,
			ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
		}
		if err := db.CreateInvitation(ctx, inv); err != nil {
			return fmt.Errorf("create invitation: %w", err)
		}

		fmt.Printf("Invitation created for %s, expires %s\n", ownerEmail, inv.ExpiresAt.Format(time.RFC3339))
		fmt.Printf("Registration token:\n\n%s\n\n", token)
		return nil
	},
}

func promptPassword(prompt string) string {
	fmt.Print(prompt)
	b, err := readPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read password: %v\n", err)
		return ""
	}
	return string(b)
}

func init() {
	bootstrapOwnerCmd.Flags().String("email", "", "owner account email")
	createInvitationCmd.Flags().String("owner-email", "", "email of the owner to attribute the invitation to")

	configCmd.AddCommand(bootstrapOwnerCmd)
	configCmd.AddCommand(createInvitationCmd)
}
