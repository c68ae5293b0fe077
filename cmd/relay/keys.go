package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"mercator-hq/relay/pkg/apikeys"
	"mercator-hq/relay/pkg/usage"
)

var keysFlags struct {
	userID             int64
	name               string
	rateLimitRPM       int
	rateLimitTPM       int
	usageLimitTokens   int64
	usageLimitRequests int64
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage client API keys",
	Long: `Issue, list, and revoke the API keys clients present to relay via
x-api-key or a Bearer Authorization header.`,
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Issue a new API key",
	Example: `  relay keys create --name "my-app"
  relay keys create --name "my-app" --rate-limit-rpm 60 --usage-limit-tokens 1000000`,
	RunE: createKey,
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	RunE:  listKeys,
}

var keysRevokeCmd = &cobra.Command{
	Use:   "revoke <id>",
	Short: "Deactivate an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  revokeKey,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysCreateCmd, keysListCmd, keysRevokeCmd)

	keysCreateCmd.Flags().Int64Var(&keysFlags.userID, "user-id", 0, "owning user id")
	keysCreateCmd.Flags().StringVar(&keysFlags.name, "name", "", "key name (required)")
	keysCreateCmd.Flags().IntVar(&keysFlags.rateLimitRPM, "rate-limit-rpm", 0, "requests per minute, 0 for unlimited")
	keysCreateCmd.Flags().IntVar(&keysFlags.rateLimitTPM, "rate-limit-tpm", 0, "tokens per minute, 0 for unlimited")
	keysCreateCmd.Flags().Int64Var(&keysFlags.usageLimitTokens, "usage-limit-tokens", 0, "lifetime token cap, 0 for unlimited")
	keysCreateCmd.Flags().Int64Var(&keysFlags.usageLimitRequests, "usage-limit-requests", 0, "lifetime request cap, 0 for unlimited")
	_ = keysCreateCmd.MarkFlagRequired("name")

	keysListCmd.Flags().Int64Var(&keysFlags.userID, "user-id", 0, "filter by owning user id")
}

func createKey(cmd *cobra.Command, args []string) error {
	manager, closeFn, err := openKeyManager()
	if err != nil {
		return err
	}
	defer closeFn()

	plaintext, key, err := manager.CreateKey(context.Background(), keysFlags.userID, keysFlags.name,
		keysFlags.rateLimitRPM, keysFlags.rateLimitTPM, keysFlags.usageLimitTokens, keysFlags.usageLimitRequests)
	if err != nil {
		return fmt.Errorf("create key: %w", err)
	}

	fmt.Printf("key id:    %d\n", key.ID)
	fmt.Printf("key name:  %s\n", key.Name)
	fmt.Printf("api key:   %s\n", plaintext)
	fmt.Println()
	fmt.Println("store this key now — it will not be shown again")
	return nil
}

func listKeys(cmd *cobra.Command, args []string) error {
	manager, closeFn, err := openKeyManager()
	if err != nil {
		return err
	}
	defer closeFn()

	keys, err := manager.ListKeys(context.Background(), keysFlags.userID)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "ID\tNAME\tACTIVE\tRATE LIMIT RPM\tUSAGE TOKENS\tUSAGE REQUESTS")
	for _, k := range keys {
		fmt.Fprintf(w, "%d\t%s\t%t\t%d\t%d\t%d\n",
			k.Key.ID, k.Key.Name, k.Key.IsActive, k.Key.RateLimitRPM, k.Stats.TotalTokens, k.Stats.TotalRequests)
	}
	return nil
}

func revokeKey(cmd *cobra.Command, args []string) error {
	manager, closeFn, err := openKeyManager()
	if err != nil {
		return err
	}
	defer closeFn()

	var id int64
	if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
		return fmt.Errorf("invalid key id %q", args[0])
	}

	deactivated, err := manager.DeactivateKey(context.Background(), id)
	if err != nil {
		return fmt.Errorf("revoke key: %w", err)
	}
	if !deactivated {
		return fmt.Errorf("key %d not found", id)
	}
	fmt.Printf("key %d revoked\n", id)
	return nil
}

func openKeyManager() (*apikeys.Manager, func(), error) {
	cfg, err := loadConfigForCLI()
	if err != nil {
		return nil, nil, err
	}
	keyStore, err := apikeys.OpenStore(cfg.Server.APIKeysDBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open api keys store: %w", err)
	}
	usageStore, err := usage.Open(cfg.Server.UsageDBPath, usage.Config{}, nil)
	if err != nil {
		keyStore.Close()
		return nil, nil, fmt.Errorf("open usage store: %w", err)
	}
	manager := apikeys.New(keyStore, usageStore, nil)
	return manager, func() { keyStore.Close(); usageStore.Close() }, nil
}
