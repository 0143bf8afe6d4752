package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/defensechain/defensechain/storage/model"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage ops API operators",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all operators",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		users, err := workflow.Backends().Users.List()
		if err != nil {
			return err
		}
		return printJSON(users)
	},
}

var userFlags struct {
	password    string
	displayName string
	role        string
}

var usersAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create an operator",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if userFlags.password == "" {
			return errors.New("a password is required")
		}
		role, err := model.ParseOperatorRole(userFlags.role)
		if err != nil {
			return err
		}
		user, err := workflow.Backends().Users.Create(
			model.NewUser{
				Username:    args[0],
				Password:    userFlags.password,
				DisplayName: userFlags.displayName,
				Role:        role,
			},
		)
		if err != nil {
			return err
		}
		fmt.Printf("created %s %s\n", user.Role, user.Username)
		return nil
	},
}

var usersSetRoleCmd = &cobra.Command{
	Use:   "set-role <username> <viewer|operator|admin>",
	Short: "Change the role of an operator",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		role, err := model.ParseOperatorRole(args[1])
		if err != nil {
			return err
		}
		if _, err = workflow.Backends().Users.Update(args[0], model.UserUpdate{Role: &role}); err != nil {
			return err
		}
		fmt.Printf("%s is now %s\n", args[0], role)
		return nil
	},
}

func setDisabled(disabled bool) func(*cobra.Command, []string) error {
	return func(_ *cobra.Command, args []string) error {
		if _, err := workflow.Backends().Users.Update(args[0], model.UserUpdate{Disabled: &disabled}); err != nil {
			return err
		}
		state := "enabled"
		if disabled {
			state = "disabled"
		}
		fmt.Printf("%s operator %s\n", state, args[0])
		return nil
	}
}

var usersDisableCmd = &cobra.Command{
	Use:   "disable <username>",
	Short: "Disable an operator",
	Args:  cobra.ExactArgs(1),
	RunE:  setDisabled(true),
}

var usersEnableCmd = &cobra.Command{
	Use:   "enable <username>",
	Short: "Enable a disabled operator",
	Args:  cobra.ExactArgs(1),
	RunE:  setDisabled(false),
}

func init() {
	usersAddCmd.Flags().StringVar(&userFlags.password, "password", "", "the password of the operator")
	usersAddCmd.Flags().StringVar(&userFlags.displayName, "display-name", "", "the display name of the operator")
	usersAddCmd.Flags().StringVar(&userFlags.role, "role", string(model.OperatorAdmin), "viewer, operator or admin")
	usersCmd.AddCommand(usersListCmd, usersAddCmd, usersSetRoleCmd, usersDisableCmd, usersEnableCmd)
	rootCmd.AddCommand(usersCmd)
}
