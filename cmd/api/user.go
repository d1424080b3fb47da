package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eris-support/support-desk/internal/domain"
	"github.com/eris-support/support-desk/internal/service"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage operator accounts",
}

var (
	newUserEmail    string
	newUserPassword string
	newUserName     string
	newUserRole     string
	newUserTelegram []int64
)

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an operator account (bootstraps the first admin)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		if err := a.wire(cmd.Context()); err != nil {
			return err
		}

		// The CLI acts with admin rights.
		cli := &domain.User{Role: domain.UserRoleAdmin}
		user, err := a.auth.Register(cmd.Context(), cli, service.RegisterInput{
			Email:       newUserEmail,
			Password:    newUserPassword,
			FullName:    newUserName,
			Role:        domain.UserRole(newUserRole),
			TelegramIDs: newUserTelegram,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created user %d (%s, %s)\n", user.ID, user.Email, user.Role)
		return nil
	},
}

func init() {
	userCreateCmd.Flags().StringVar(&newUserEmail, "email", "", "login email")
	userCreateCmd.Flags().StringVar(&newUserPassword, "password", "", "initial password")
	userCreateCmd.Flags().StringVar(&newUserName, "full-name", "", "display name")
	userCreateCmd.Flags().StringVar(&newUserRole, "role", string(domain.UserRoleOperator), "operator or admin")
	userCreateCmd.Flags().Int64SliceVar(&newUserTelegram, "telegram-id", nil, "linked bot chat id (repeatable)")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")
	userCmd.AddCommand(userCreateCmd)
}
