package cli

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	ownerID    int64
)

var rootCmd = &cobra.Command{
	Use:   "kura",
	Short: "Routes conversations into projects and keeps tiered memories",
	Long: "Kura classifies chat rooms into projects, keeps those routes fresh, and retains\n" +
		"short, medium and long term memories per owner under plan quotas.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env in the working directory is optional
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.kura/config.yaml)")

	for _, c := range []*cobra.Command{classifyCmd, reclassifyCmd, consolidateCmd, projectsCmd, lockCmd, unlockCmd, rememberCmd, recallCmd, planCmd, memoriesCmd, promoteCmd, compressCmd} {
		c.Flags().Int64VarP(&ownerID, "owner", "o", 1, "Owner id")
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(reclassifyCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(projectsCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(rememberCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(memoriesCmd)
	rootCmd.AddCommand(promoteCmd)
	rootCmd.AddCommand(compressCmd)
}
