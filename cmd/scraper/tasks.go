package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/aluiziolira/go-scrape-market/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newTasksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage scheduled searches",
	}
	cmd.AddCommand(
		newTasksAddCmd(a),
		newTasksListCmd(a),
		newTasksGetCmd(a),
		newTasksDeleteCmd(a),
	)
	return cmd
}

func newTasksAddCmd(a *app) *cobra.Command {
	var (
		kind   string
		params []string
		at     string
		every  string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule a product or seller search",
		Example: `  scraper tasks add --type product_search --param query="mate imperial" --param max_pages=2
  scraper tasks add --type seller_search --param seller=tienda-mate --at 2024-06-01T03:00:00Z --every weekly`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			recurrence, err := models.ParseRecurrence(every)
			if err != nil {
				return err
			}
			var scheduleTime *time.Time
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("parse --at: %w", err)
				}
				scheduleTime = &t
			}

			sched, _, release, err := a.openScheduler(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			id, err := sched.AddTask(cmd.Context(), models.TaskKind(kind), parsed, scheduleTime, recurrence)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&kind, "type", string(models.TaskProductSearch), "product_search or seller_search")
	flags.StringArrayVar(&params, "param", nil, "task parameter as key=value (repeatable)")
	flags.StringVar(&at, "at", "", "first run time, RFC3339 (default now)")
	flags.StringVar(&every, "every", "", "recurrence: daily, weekly or monthly")
	return cmd
}

func newTasksListCmd(a *app) *cobra.Command {
	var (
		output string
		status string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sched, _, release, err := a.openScheduler(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			tasks := sched.List()
			if status != "" {
				filtered := tasks[:0]
				for _, t := range tasks {
					if string(t.Status) == status {
						filtered = append(filtered, t)
					}
				}
				tasks = filtered
			}
			return writeTasks(cmd.OutOrStdout(), output, tasks)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	cmd.Flags().StringVar(&status, "status", "", "only tasks with this status")
	return cmd
}

func newTasksGetCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, _, release, err := a.openScheduler(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			task, ok := sched.Get(args[0])
			if !ok {
				return fmt.Errorf("task %s not found", args[0])
			}
			if output == "table" {
				output = "yaml"
			}
			return writeTasks(cmd.OutOrStdout(), output, []models.ScheduledTask{task})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format: json or yaml")
	return cmd
}

func newTasksDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sched, _, release, err := a.openScheduler(cmd.Context())
			if err != nil {
				return err
			}
			defer release()
			return sched.Delete(cmd.Context(), args[0])
		},
	}
}

// parseParams turns key=value pairs into task params. Integers and booleans
// keep their type; everything else is a string.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("param %q is not key=value", pair)
		}
		if n, err := strconv.Atoi(value); err == nil {
			params[key] = n
			continue
		}
		if b, err := strconv.ParseBool(value); err == nil {
			params[key] = b
			continue
		}
		params[key] = value
	}
	return params, nil
}

func writeTasks(w io.Writer, format string, tasks []models.ScheduledTask) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tasks)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(tasks); err != nil {
			return err
		}
		return enc.Close()
	case "table":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tRECURRENCE\tNEXT RUN\tLAST RUN")
		for _, t := range tasks {
			recurrence := string(t.Recurrence)
			if recurrence == "" {
				recurrence = "once"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				t.ID, t.Type, t.Status, recurrence, formatTime(t.NextRun), formatTime(t.LastRun))
		}
		return tw.Flush()
	}
	return fmt.Errorf("unknown output format %q", format)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
