package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"flowvault/pkg/auth"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage storage credentials",
	Long: `Manage stored storage credentials securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (FLOWVAULT_ACCESS_KEY_ID / FLOWVAULT_SECRET_ACCESS_KEY)

Never share your credentials or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store storage credentials securely",
	Long: `Store storage credentials securely in the system keychain or an
encrypted file.

You will be prompted for:
  - Account name (if not provided)
  - Access key ID
  - Secret access key (hidden as you type)
  - Region (optional, press Enter to skip)`,
	Example: `  # Interactive login
  flowvault auth login

  # Login with account name
  flowvault auth login archive`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [name]",
	Short: "Remove stored credentials",
	Long: `Remove stored storage credentials.

If no account name is provided, you will be shown a list of stored
accounts to choose from.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored credential accounts with sensitive values masked.`,
	Run:   runList,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
}

func runLogin(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize credential manager:", err)
		os.Exit(1)
	}

	var name string
	if len(args) > 0 {
		name = args[0]
	}

	reader := bufio.NewReader(os.Stdin)

	if name == "" {
		fmt.Print("Account name: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintln(os.Stderr, "Failed to read account name:", err)
			os.Exit(1)
		}
		name = strings.TrimSpace(input)
	}

	if name == "" {
		fmt.Fprintln(os.Stderr, "Account name is required")
		os.Exit(1)
	}

	// Check if account already exists
	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Account '%s' already exists. Update credentials? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Print("Access key ID: ")
	accessKeyInput, err := reader.ReadString('\n')
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to read access key:", err)
		os.Exit(1)
	}
	accessKey := strings.TrimSpace(accessKeyInput)
	if accessKey == "" {
		fmt.Fprintln(os.Stderr, "Access key ID is required")
		os.Exit(1)
	}

	fmt.Print("Secret access key (hidden): ")
	secretKey, err := readPassword()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to read secret key:", err)
		os.Exit(1)
	}
	if secretKey == "" {
		fmt.Fprintln(os.Stderr, "Secret access key is required")
		os.Exit(1)
	}

	fmt.Print("Region (press Enter to skip): ")
	regionInput, _ := reader.ReadString('\n')
	region := strings.TrimSpace(regionInput)

	account := &auth.Account{
		Name:            name,
		AccessKeyID:     accessKey,
		SecretAccessKey: secretKey,
		Region:          region,
		LastModified:    time.Now(),
	}

	if err := manager.Store(account); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to store credentials:", err)
		os.Exit(1)
	}

	fmt.Printf("\nCredentials stored for account '%s'.\n", name)
	fmt.Println("\nUse them with:")
	fmt.Printf("  flowvault run --bucket <bucket> --account %s\n", name)
}

func runLogout(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize credential manager:", err)
		os.Exit(1)
	}

	if len(args) > 0 {
		name := args[0]
		if err := manager.Delete(name); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to remove account:", err)
			os.Exit(1)
		}
		fmt.Println("Account removed:", name)
		return
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		fmt.Fprintln(os.Stderr, "No stored accounts found")
		return
	}

	fmt.Println("Select account to remove:")
	for i, account := range accounts {
		fmt.Printf("  %d. %s\n", i+1, account.Name)
	}
	fmt.Println("  0. Cancel")
	fmt.Println()

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Choice: ")
	input, _ := reader.ReadString('\n')

	var choice int
	fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)

	if choice < 1 || choice > len(accounts) {
		return
	}

	name := accounts[choice-1].Name
	if err := manager.Delete(name); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to remove account:", err)
		os.Exit(1)
	}
	fmt.Println("Account removed:", name)
}

func runList(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to initialize credential manager:", err)
		os.Exit(1)
	}

	accounts, err := manager.List()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to list accounts:", err)
		os.Exit(1)
	}

	if len(accounts) == 0 {
		fmt.Println("No stored accounts. Use 'flowvault auth login' to add one.")
		return
	}

	fmt.Println("Stored accounts:")
	fmt.Println()
	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Printf("%d. Name: %s\n", i+1, sanitized.Name)
		fmt.Printf("   Access Key ID: %s\n", sanitized.AccessKeyID)
		fmt.Printf("   Secret Access Key: %s\n", sanitized.SecretAccessKey)
		if sanitized.Region != "" {
			fmt.Printf("   Region: %s\n", sanitized.Region)
		}
		fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
}

// readPassword reads a password from stdin without echoing
func readPassword() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // New line after password
		if err == nil {
			return string(password), nil
		}
	}

	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
