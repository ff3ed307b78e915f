package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the mailfold application
var rootCmd = &cobra.Command{
	Use:   "mailfold",
	Short: "Multi-user HTTP facade over Gmail mailboxes",
	Long: `mailfold exposes Gmail mailboxes over a small REST API. Users
authenticate once through the Google OAuth flow; afterwards their messages,
attachments and an invoice view are available under /mail/{userId}/...

Credentials are held in process memory for the lifetime of the server and
every request re-authorizes against the stored token.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mailfold version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
}
