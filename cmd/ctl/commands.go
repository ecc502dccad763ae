package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"comictracker/internal/merge"
	"comictracker/pkg/database"
	"comictracker/pkg/models"
)

func newMergeCommand(ctx *commandContext) *cobra.Command {
	var entity, target string
	var sources []string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge duplicate entities into a target",
		Long: `Merge folds every source into the target inside one transaction and
resyncs the story blocks whose membership changed.

Example:
  comictracker-ctl merge -u USER --entity series --target ID --source ID --source ID`,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}
			kind, err := merge.ParseKind(entity)
			if err != nil {
				return err
			}
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := a.Merge.Merge(cmd.Context(), owner, kind, target, sources)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Merged %d %s into %s\n", res.Merged, res.Kind, res.TargetID)
			if len(res.AffectedStoryBlocks) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Resynced story blocks: %s\n", strings.Join(res.AffectedStoryBlocks, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "Entity kind: "+kindList())
	cmd.Flags().StringVar(&target, "target", "", "Target id that survives the merge")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "Source id to fold into the target (repeatable)")
	_ = cmd.MarkFlagRequired("entity")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newDuplicatesCommand(ctx *commandContext) *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "List likely duplicate groups for an entity kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}
			kind, err := merge.ParseKind(entity)
			if err != nil {
				return err
			}
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			groups, err := merge.FindDuplicates(cmd.Context(), a.DB, owner, kind)
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No duplicates found")
				return nil
			}
			var rows [][]string
			for _, g := range groups {
				for _, item := range g.Items {
					rows = append(rows, []string{g.Key, item.ID, item.Label})
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Key", "ID", "Label"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "Entity kind: "+kindList())
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "sync [story-block-id...]",
		Short: "Re-derive story block status, years and cast",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			ids := args
			if all {
				ids, err = ownerBlockIDs(cmd, a.DB, owner)
				if err != nil {
					return err
				}
			}
			if len(ids) == 0 {
				return fmt.Errorf("pass story block ids or --all")
			}

			var rows [][]string
			for _, id := range ids {
				st, err := a.StoryBlocks.Sync(cmd.Context(), owner, id)
				if err != nil {
					return fmt.Errorf("sync %s: %w", id, err)
				}
				rows = append(rows, []string{
					id,
					string(st.Status),
					yearString(st.StartYear),
					yearString(st.EndYear),
					strconv.Itoa(len(st.CharacterIDs)),
					strconv.Itoa(len(st.TeamIDs)),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Story block", "Status", "Start", "End", "Characters", "Teams"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Sync every story block the owner has")
	return cmd
}

func ownerBlockIDs(cmd *cobra.Command, q database.Querier, owner string) ([]string, error) {
	rows, err := q.QueryContext(cmd.Context(), `SELECT id FROM story_blocks WHERE user_id = ? ORDER BY order_index, name`, owner)
	if err != nil {
		return nil, fmt.Errorf("list story blocks: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan story block: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and drive the background job queue",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show recent jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			// no --owner lists every owner's jobs
			owner := ""
			if ctx.ownerFlag != nil {
				owner = strings.TrimSpace(*ctx.ownerFlag)
			}
			list, err := a.Jobs.List(cmd.Context(), owner, limit)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Owner", "Type", "Status", "Created", "Error"},
				jobRows(list),
				nil,
			))
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of jobs to show")

	runNextCmd := &cobra.Command{
		Use:   "run-next",
		Short: "Process the oldest pending job in this process",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			job, err := a.NewWorker().RunNext(cmd.Context())
			if err != nil {
				return err
			}
			if job == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending jobs")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Owner", "Type", "Status", "Created", "Error"},
				jobRows([]models.Job{*job}),
				nil,
			))
			return nil
		},
	}

	jobsCmd.AddCommand(listCmd, runNextCmd)
	return jobsCmd
}

func jobRows(list []models.Job) [][]string {
	rows := make([][]string, 0, len(list))
	for _, j := range list {
		rows = append(rows, []string{
			j.ID, j.UserID, j.Type, string(j.Status),
			j.CreatedAt.Local().Format(time.DateTime), truncate(j.Error, 60),
		})
	}
	return rows
}

func newTokenCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for the owner (development and tooling)",
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.owner()
			if err != nil {
				return err
			}
			a, err := ctx.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			tok, exp, err := a.Tokens.Sign(owner)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Local().Format(time.DateTime))
			return nil
		},
	}
}

func kindList() string {
	names := make([]string, len(merge.Kinds))
	for i, k := range merge.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func yearString(y *int) string {
	if y == nil {
		return "-"
	}
	return strconv.Itoa(*y)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
