package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/kura/internal/engine"
)

const commandTimeout = 30 * time.Second

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, commandTimeout)
}

// --- classify command ---

var (
	classifyRoom  int64
	classifyFiles []string
)

var classifyCmd = &cobra.Command{
	Use:   "classify [text]",
	Short: "Decide which project a piece of conversation belongs to",
	Long:  "Classify text (and optional file names) into one of the owner's projects. The decision may create a project.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()

	in := engine.Input{Text: strings.Join(args, " "), OwnerID: ownerID}
	for _, f := range classifyFiles {
		in.Files = append(in.Files, engine.File{Name: f})
	}
	if classifyRoom != 0 {
		room, err := a.db.GetRoom(ctx, ownerID, classifyRoom)
		if err != nil {
			return err
		}
		if room == nil {
			return fmt.Errorf("room %d: %w", classifyRoom, engine.ErrRoomNotFound)
		}
		in.Room = room
	}

	c, err := a.engine.Classify(ctx, in)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	name := ""
	if p, err := a.db.GetProject(ctx, ownerID, c.ProjectID); err == nil && p != nil {
		name = p.Name
	}
	fmt.Fprintf(cmd.OutOrStdout(), "project %d %q [%s %.2f]\n  %s\n", c.ProjectID, name, c.Source, c.Confidence, c.Reason)
	return nil
}

// --- reclassify command ---

var reclassifyRoom int64

var reclassifyCmd = &cobra.Command{
	Use:   "reclassify",
	Short: "Reclassify one room, or every due room of the owner",
	RunE:  runReclassify,
}

func runReclassify(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := commandContext(cmd)
	defer cancel()
	out := cmd.OutOrStdout()

	if reclassifyRoom != 0 {
		c, err := a.engine.ReclassifyRoom(ctx, reclassifyRoom, ownerID)
		if err != nil {
			return err
		}
		if c == nil {
			fmt.Fprintf(out, "room %d is locked, left alone\n", reclassifyRoom)
			return nil
		}
		fmt.Fprintf(out, "room %d -> project %d [%s %.2f]\n", reclassifyRoom, c.ProjectID, c.Source, c.Confidence)
		return nil
	}

	res, err := a.engine.BatchReclassify(ctx, ownerID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "reclassified %d, skipped %d, errors %d\n", res.Reclassified, res.Skipped, res.Errors)
	return nil
}

// --- consolidate command ---

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Fold temporary projects into the default project",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()

		res, err := a.engine.ConsolidateTemporaryProjects(ctx, ownerID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "consolidated %d projects, merged %d rooms\n", res.Consolidated, res.Merged)
		return nil
	},
}

// --- projects command ---

var projectsLimit int

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List the owner's projects, most recently updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := commandContext(cmd)
		defer cancel()

		projects, err := a.db.ListProjects(ctx, ownerID, projectsLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(projects) == 0 {
			fmt.Fprintln(out, "No projects yet.")
			return nil
		}
		for _, p := range projects {
			var flags []string
			if p.IsDefault {
				flags = append(flags, "default")
			}
			if p.Temporary {
				flags = append(flags, "temporary")
			}
			suffix := ""
			if len(flags) > 0 {
				suffix = " (" + strings.Join(flags, ", ") + ")"
			}
			fmt.Fprintf(out, "%d\t%s%s\n", p.ID, p.Name, suffix)
		}
		return nil
	},
}

// --- lock / unlock commands ---

var lockProject int64

var lockCmd = &cobra.Command{
	Use:   "lock <room-id>",
	Short: "Pin a room to a project so automatic classification leaves it alone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseID(args[0])
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

		var project *int64
		if lockProject != 0 {
			p, err := a.db.GetProject(ctx, ownerID, lockProject)
			if err != nil {
				return err
			}
			if p == nil {
				return fmt.Errorf("project %d not found", lockProject)
			}
			project = &lockProject
		}
		if err := requireRoom(ctx, a, roomID); err != nil {
			return err
		}
		if err := a.db.LockRoom(ctx, ownerID, roomID, project); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "room %d locked\n", roomID)
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock <room-id>",
	Short: "Return a room to automatic classification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := parseID(args[0])
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

		if err := requireRoom(ctx, a, roomID); err != nil {
			return err
		}
		if err := a.db.UnlockRoom(ctx, ownerID, roomID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "room %d unlocked\n", roomID)
		return nil
	},
}

func requireRoom(ctx context.Context, a *app, roomID int64) error {
	room, err := a.db.GetRoom(ctx, ownerID, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return fmt.Errorf("room %d: %w", roomID, engine.ErrRoomNotFound)
	}
	return nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func init() {
	classifyCmd.Flags().Int64Var(&classifyRoom, "room", 0, "Room the text belongs to (honours its lock)")
	classifyCmd.Flags().StringSliceVarP(&classifyFiles, "file", "f", nil, "Attached file name (repeatable)")
	reclassifyCmd.Flags().Int64Var(&reclassifyRoom, "room", 0, "Reclassify only this room")
	projectsCmd.Flags().IntVarP(&projectsLimit, "limit", "n", 0, "Maximum number of projects (0 = all)")
	lockCmd.Flags().Int64Var(&lockProject, "project", 0, "Project to pin the room to (default: its current project)")
}
