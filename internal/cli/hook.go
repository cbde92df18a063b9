package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/lazypower/kura/internal/hooks"
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Handle chat frontend hook events",
	Long:  "Hook commands read JSON on stdin and talk to a running kura server (KURA_URL). They always exit 0.",
}

var hookMessageCmd = &cobra.Command{
	Use:   "message",
	Short: "Record a message, capture remember-signals and reclassify its room",
	Run: func(cmd *cobra.Command, args []string) {
		hooks.Handle("message", os.Stdin)
	},
}

var hookContextCmd = &cobra.Command{
	Use:   "context",
	Short: "Print the owner's memory context",
	Run: func(cmd *cobra.Command, args []string) {
		hooks.Handle("context", os.Stdin)
	},
}

func init() {
	hookCmd.AddCommand(hookMessageCmd)
	hookCmd.AddCommand(hookContextCmd)
}
