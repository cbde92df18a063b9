package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/kura/internal/store"
)

// --- remember command ---

var (
	rememberTier       string
	rememberImportance string
	rememberCategory   string
)

var rememberCmd = &cobra.Command{
	Use:   "remember [text]",
	Short: "Retain a memory for the owner",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()

		saved, err := a.memory.Save(ctx, ownerID, store.Tier(rememberTier), strings.Join(args, " "), rememberImportance, rememberCategory)
		if err != nil {
			return err
		}
		if !saved {
			fmt.Fprintf(cmd.OutOrStdout(), "not saved: %s tier is full or disabled on this plan\n", rememberTier)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "saved")
		return nil
	},
}

// --- recall command ---

var recallCmd = &cobra.Command{
	Use:   "recall [history...]",
	Short: "Print the owner's memory context as JSON",
	Long:  "Print long, medium and short term memories. Arguments are treated as conversation history.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()

		mc, err := a.memory.LoadContext(ctx, ownerID, args)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(mc)
	},
}

// --- memories command ---

var memoriesTier string

var memoriesCmd = &cobra.Command{
	Use:   "memories",
	Short: "List the owner's live memories with their ids",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		out := cmd.OutOrStdout()

		tiers := store.Tiers
		if memoriesTier != "" {
			tiers = []store.Tier{store.Tier(memoriesTier)}
		}
		n := 0
		for _, tier := range tiers {
			entries, err := a.memory.List(ctx, ownerID, tier)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%5d  %-6s %-10s %s\n", e.ID, e.Tier, e.Category, strings.ReplaceAll(e.Content, "\n", " / "))
				n++
			}
		}
		if n == 0 {
			fmt.Fprintln(out, "No memories yet.")
		}
		return nil
	},
}

// --- promote command ---

var promoteCmd = &cobra.Command{
	Use:   "promote <memory-id>",
	Short: "Copy a memory into the long tier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()

		saved, err := a.memory.Promote(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if !saved {
			fmt.Fprintln(cmd.OutOrStdout(), "not promoted: long tier is full or disabled on this plan")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "promoted memory %d\n", id)
		return nil
	},
}

// --- compress command ---

var compressCmd = &cobra.Command{
	Use:   "compress",
	Short: "Fold important medium memories into long-term summaries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()

		n, err := a.memory.Compress(ctx, ownerID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "compressed %d memories\n", n)
		return nil
	},
}

// --- plan command ---

var planCmd = &cobra.Command{
	Use:   "plan [name]",
	Short: "Show memory usage, or assign a plan to the owner",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()
		out := cmd.OutOrStdout()

		if len(args) == 1 {
			if !a.quotas.Known(args[0]) {
				return fmt.Errorf("unknown plan %q (known: %s)", args[0], strings.Join(a.quotas.Names(), ", "))
			}
			if err := a.quotas.SetPlan(ctx, ownerID, args[0]); err != nil {
				return err
			}
		}

		stats, err := a.memory.Stats(ctx, ownerID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "plan: %s\n", stats.Plan)
		for _, t := range stats.Tiers {
			limit := fmt.Sprint(t.Limit)
			switch t.Limit {
			case -1:
				limit = "unlimited"
			case 0:
				limit = "disabled"
			}
			fmt.Fprintf(out, "  %-6s %d / %s\n", t.Tier, t.Count, limit)
		}
		return nil
	},
}

func init() {
	rememberCmd.Flags().StringVarP(&rememberTier, "tier", "t", string(store.TierLong), "Memory tier: short, medium or long")
	rememberCmd.Flags().StringVar(&rememberImportance, "importance", "", "Importance label")
	rememberCmd.Flags().StringVarP(&rememberCategory, "category", "c", "", "Category label")
	memoriesCmd.Flags().StringVarP(&memoriesTier, "tier", "t", "", "Only this tier: short, medium or long")
}
