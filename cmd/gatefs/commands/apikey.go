package commands

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/gatefs/gatefs/pkg/config"
	"github.com/gatefs/gatefs/pkg/gateway/models"
	"github.com/gatefs/gatefs/pkg/gateway/store"
)

var (
	keyText      bool
	keyFile      bool
	keyMount     bool
	keyBasicPath string
	keyExpiresIn time.Duration
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys",
	Long: `Manage API keys directly against the metadata database.

The server does not need to be running. Keys can also be managed through
the admin API while the server is up.`,
}

var apikeyAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyAdd,
}

var apikeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API keys",
	Args:  cobra.NoArgs,
	RunE:  runAPIKeyList,
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke <name>",
	Short: "Delete an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAPIKeyRevoke,
}

func init() {
	apikeyAddCmd.Flags().BoolVar(&keyText, "text", false, "Grant the text capability")
	apikeyAddCmd.Flags().BoolVar(&keyFile, "file", false, "Grant the file capability")
	apikeyAddCmd.Flags().BoolVar(&keyMount, "mount", true, "Grant the mount capability")
	apikeyAddCmd.Flags().StringVar(&keyBasicPath, "path", "/", "Path prefix the key is scoped to")
	apikeyAddCmd.Flags().DurationVar(&keyExpiresIn, "expires-in", 0, "Key lifetime (0 = never expires)")

	apikeyCmd.AddCommand(apikeyAddCmd)
	apikeyCmd.AddCommand(apikeyListCmd)
	apikeyCmd.AddCommand(apikeyRevokeCmd)
}

func openStore() (store.Store, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, err
	}
	st, err := store.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	return st, nil
}

func runAPIKeyAdd(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	buf := make([]byte, 24)
	rand.Read(buf)
	key := &models.APIKey{
		Name:      args[0],
		Key:       hex.EncodeToString(buf),
		Text:      keyText,
		File:      keyFile,
		Mount:     keyMount,
		BasicPath: keyBasicPath,
	}
	if keyExpiresIn > 0 {
		at := time.Now().Add(keyExpiresIn)
		key.ExpiresAt = &at
	}

	if _, err := st.CreateAPIKey(context.Background(), key); err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}

	fmt.Printf("API key %q created:\n\n  %s\n\n", key.Name, key.Key)
	fmt.Println("WebDAV clients authenticate with this value as both username and password.")
	return nil
}

func runAPIKeyList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	keys, err := st.ListAPIKeys(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list api keys: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Path", "Capabilities", "Expires", "Last Used"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, k := range keys {
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format(time.RFC3339)
		}
		lastUsed := "never"
		if k.LastUsed != nil {
			lastUsed = k.LastUsed.Format(time.RFC3339)
		}
		table.Append([]string{k.Name, k.BasicPath, formatPermissions(k), expires, lastUsed})
	}
	table.Render()
	return nil
}

func formatPermissions(k *models.APIKey) string {
	out := ""
	for _, p := range k.Permissions() {
		if out != "" {
			out += ","
		}
		out += string(p)
	}
	if out == "" {
		out = "-"
	}
	return out
}

func runAPIKeyRevoke(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	key, err := st.GetAPIKeyByName(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to find api key %q: %w", args[0], err)
	}
	if err := st.DeleteAPIKey(context.Background(), key.ID); err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}

	fmt.Printf("API key %q revoked\n", args[0])
	return nil
}
