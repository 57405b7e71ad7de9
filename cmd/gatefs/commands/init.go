package commands

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatefs/gatefs/pkg/config"
	"github.com/gatefs/gatefs/pkg/gateway/secret"
)

var (
	initForce         bool
	initAdminPassword string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize a gatefs configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/gatefs/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  gatefs init

  # Initialize with custom path
  gatefs init --config /etc/gatefs/config.yaml

  # Force overwrite existing config
  gatefs init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().StringVar(&initAdminPassword, "admin-password", "", "Initial admin password (random if omitted)")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	cfg := config.GetDefaultConfig()
	cfg.Auth.JWTSecret = randomHex(32)

	password := initAdminPassword
	generated := password == ""
	if generated {
		password = randomHex(12)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	cfg.Admin.PasswordHash = string(hash)

	if err := config.SaveConfig(cfg, configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	if generated {
		fmt.Printf("\nAdmin user %q password: %s\n", cfg.Admin.Username, password)
		fmt.Println("Please save this password. It will not be shown again.")
	}
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Printf("  2. Set the storage credential secret:\n")
	fmt.Printf("     export %s=$(openssl rand -hex 32)\n", secret.EnvEncryptionSecret)
	fmt.Println("  3. Start the server with: gatefs serve")

	return nil
}

func randomHex(n int) string {
	buf := make([]byte, n)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
