package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/accounts/auth"
	"mercator-hq/relay/pkg/accounts/pool"
)

var accountsFlags struct {
	name         string
	region       string
	priority     int
	refreshToken string
	accessToken  string
	clientID     string
	clientSecret string
	oidc         bool
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage upstream accounts",
	Long: `Add, list, and remove the upstream accounts relay rotates requests
across. Each account holds one set of Kiro credentials; relay selects
among healthy accounts by priority, then round-robin.`,
}

var accountsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new upstream account",
	Example: `  relay accounts add --name prod --region us-east-1 --refresh-token "..."
  relay accounts add --name prod-oidc --oidc --client-id "..." --client-secret "..." --refresh-token "..."`,
	RunE: addAccount,
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered accounts",
	RunE:  listAccounts,
}

var accountsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an account",
	Args:  cobra.ExactArgs(1),
	RunE:  removeAccount,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsAddCmd, accountsListCmd, accountsRemoveCmd)

	accountsAddCmd.Flags().StringVar(&accountsFlags.name, "name", "", "account name (required)")
	accountsAddCmd.Flags().StringVar(&accountsFlags.region, "region", "us-east-1", "upstream region")
	accountsAddCmd.Flags().IntVar(&accountsFlags.priority, "priority", 0, "selection priority, higher goes first")
	accountsAddCmd.Flags().StringVar(&accountsFlags.refreshToken, "refresh-token", "", "refresh token")
	accountsAddCmd.Flags().StringVar(&accountsFlags.accessToken, "access-token", "", "initial access token, if known")
	accountsAddCmd.Flags().StringVar(&accountsFlags.clientID, "client-id", "", "OIDC client ID")
	accountsAddCmd.Flags().StringVar(&accountsFlags.clientSecret, "client-secret", "", "OIDC client secret")
	accountsAddCmd.Flags().BoolVar(&accountsFlags.oidc, "oidc", false, "use AWS SSO OIDC auth instead of Kiro desktop auth")
	_ = accountsAddCmd.MarkFlagRequired("name")
}

func addAccount(cmd *cobra.Command, args []string) error {
	p, closeFn, err := openPool()
	if err != nil {
		return err
	}
	defer closeFn()

	authType := auth.TypeDesktop
	if accountsFlags.oidc {
		authType = auth.TypeOIDC
	}

	account, err := p.AddAccount(context.Background(), accountsFlags.name, authType, accountsFlags.region,
		accountsFlags.priority, accountsFlags.refreshToken, accountsFlags.accessToken,
		accountsFlags.clientID, accountsFlags.clientSecret)
	if err != nil {
		return fmt.Errorf("add account: %w", err)
	}
	fmt.Printf("account %d (%s) added\n", account.ID, account.Name)
	return nil
}

func listAccounts(cmd *cobra.Command, args []string) error {
	p, closeFn, err := openPool()
	if err != nil {
		return err
	}
	defer closeFn()

	accounts, err := p.ListAccounts(context.Background())
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tREGION\tPRIORITY\tACTIVE\tERRORS\tLAST ERROR")
	for _, a := range accounts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%t\t%d\t%s\n",
			a.ID, a.Name, a.AuthType, a.Region, a.Priority, a.IsActive, a.ErrorCount, a.LastError)
	}
	return nil
}

func removeAccount(cmd *cobra.Command, args []string) error {
	p, closeFn, err := openPool()
	if err != nil {
		return err
	}
	defer closeFn()

	var id int64
	if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
		return fmt.Errorf("invalid account id %q", args[0])
	}

	removed, err := p.DeleteAccount(context.Background(), id)
	if err != nil {
		return fmt.Errorf("remove account: %w", err)
	}
	if !removed {
		return fmt.Errorf("account %d not found", id)
	}
	fmt.Printf("account %d removed\n", id)
	return nil
}

func openPool() (*pool.Pool, func(), error) {
	cfg, err := loadConfigForCLI()
	if err != nil {
		return nil, nil, err
	}
	cipher, err := loadCipher()
	if err != nil {
		return nil, nil, err
	}
	store, err := pool.OpenStore(cfg.Server.AccountsDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open accounts store: %w", err)
	}
	p := pool.New(store, cipher, pool.Config{}, nil)
	return p, func() { store.Close() }, nil
}
