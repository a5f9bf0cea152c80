package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/planner/internal/schema"
	"github.com/mschirtzinger/planner/internal/store"
	"github.com/mschirtzinger/planner/internal/ui"
)

var accountCmd = &cobra.Command{
	Use:     "account",
	GroupID: "setup",
	Short:   "Manage user accounts and calendar links",
}

var accountAddCmd = &cobra.Command{
	Use:   "add <user> [name]",
	Short: "Create an account",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]
		if len(args) == 2 {
			name = args[1]
		}

		a := mustOpen(nil)
		defer a.Close()
		ctx := context.Background()

		if _, err := a.db.GetAccount(ctx, args[0]); err == nil {
			fatalf("account %s already exists", args[0])
		} else if !errors.Is(err, store.ErrNotFound) {
			fatalf("%v", err)
		}

		acct := &schema.Account{ID: args[0], Name: name, SyncEnabled: true, CreatedAt: time.Now().UTC()}
		if err := a.db.UpsertAccount(ctx, acct); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s created %s; link a calendar with 'pl account link %s'\n", ui.RenderPass("✓"), args[0], args[0])
	},
}

var accountLinkCmd = &cobra.Command{
	Use:   "link <user>",
	Short: "Attach remote calendar credentials",
	Long: `Attach the credential the remote calendar client authenticates with.
For the ics client, --url is the subscription URL to fetch.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		token, _ := cmd.Flags().GetString("token")
		url, _ := cmd.Flags().GetString("url")

		a := mustOpen(nil)
		defer a.Close()
		ctx := context.Background()

		acct, err := a.db.GetAccount(ctx, args[0])
		if err != nil {
			fatalf("%v", err)
		}
		if token != "" {
			acct.Credential = token
		}
		if url != "" {
			acct.CalendarURL = url
		}
		if !acct.Linked() {
			fatalf("a --token is required")
		}
		if err := a.db.UpsertAccount(ctx, acct); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("%s linked %s\n", ui.RenderPass("✓"), args[0])
	},
}

var accountEnableCmd = &cobra.Command{
	Use:   "enable <user>",
	Short: "Include an account in scheduled syncs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setSyncEnabled(args[0], true)
	},
}

var accountDisableCmd = &cobra.Command{
	Use:   "disable <user>",
	Short: "Exclude an account from scheduled syncs",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setSyncEnabled(args[0], false)
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpen(nil)
		defer a.Close()

		accounts, err := a.db.ListAccounts(context.Background(), false)
		if err != nil {
			fatalf("%v", err)
		}
		if len(accounts) == 0 {
			fmt.Println(ui.RenderMuted("no accounts"))
			return
		}
		rows := make([][]string, 0, len(accounts))
		for _, acct := range accounts {
			linked := ui.RenderMuted("no")
			if acct.Linked() {
				linked = ui.RenderPass("yes")
			}
			sync := ui.RenderMuted("off")
			if acct.SyncEnabled {
				sync = ui.RenderPass("on")
			}
			rows = append(rows, []string{acct.ID, acct.Name, linked, sync, acct.CalendarURL})
		}
		fmt.Println(ui.Table([]string{"User", "Name", "Linked", "Sync", "Calendar"}, rows))
	},
}

func setSyncEnabled(userID string, enabled bool) {
	a := mustOpen(nil)
	defer a.Close()

	if err := a.db.SetSyncEnabled(context.Background(), userID, enabled); err != nil {
		fatalf("%v", err)
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("%s sync %s for %s\n", ui.RenderPass("✓"), state, userID)
}

func init() {
	accountLinkCmd.Flags().String("token", "", "Remote calendar access token")
	accountLinkCmd.Flags().String("url", "", "Calendar URL (ics subscription or provider calendar path)")

	accountCmd.AddCommand(accountAddCmd, accountLinkCmd, accountEnableCmd, accountDisableCmd, accountListCmd)
	rootCmd.AddCommand(accountCmd)
}
