package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/localfirst/tasksync/internal/model"
)

var (
	addTagFlag string
	addDueFlag string
)

var addCmd = &cobra.Command{
	Use:   "add [title]",
	Short: "Add a task",
	Long: `Add a task to the local store and queue it for remote sync.

The due date accepts natural language ("tomorrow", "next friday 5pm").
With no arguments on a terminal, an interactive form opens.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		title := strings.Join(args, " ")
		tagName := addTagFlag
		dueText := addDueFlag

		if title == "" && term.IsTerminal(int(os.Stdin.Fd())) {
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().Title("Title").Value(&title),
				huh.NewInput().Title("Tag (optional)").Value(&tagName),
				huh.NewInput().Title("Due (optional, e.g. \"tomorrow 9am\")").Value(&dueText),
			))
			if err := form.Run(); err != nil {
				fatal(err)
			}
		}
		if title == "" {
			fatal(fmt.Errorf("title is required"))
		}

		var due *time.Time
		if dueText != "" {
			t, err := parseDue(dueText)
			if err != nil {
				fatal(err)
			}
			due = t
		}

		now := time.Now()
		task := &model.Task{
			ID:        uuid.New().String(),
			Title:     title,
			Tag:       tagName,
			Due:       due,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := a.store.PutTask(ctx, task); err != nil {
			fatal(err)
		}
		if tagName != "" {
			tag := &model.Tag{Name: tagName, CreatedAt: now}
			if err := a.store.PutTagIfAbsent(ctx, tag); err != nil {
				fatal(err)
			}
		}

		if _, err := a.queue.Enqueue(ctx, model.OpCreate, "task", task); err != nil {
			fatal(err)
		}
		a.flush(ctx)

		fmt.Printf("Added %s (%s)\n", task.Title, shortID(task.ID))
	},
}

var listDoneFlag bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		tasks, err := a.store.ListTasks(ctx)
		if err != nil {
			fatal(err)
		}

		printTasks(tasks, listDoneFlag)
	},
}

var doneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task as done",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		task, err := resolveTask(ctx, a, args[0])
		if err != nil {
			fatal(err)
		}

		task.Done = true
		task.Touch()
		if err := a.store.PutTask(ctx, task); err != nil {
			fatal(err)
		}

		if _, err := a.queue.Enqueue(ctx, model.OpUpdate, "task", task); err != nil {
			fatal(err)
		}
		a.flush(ctx)

		fmt.Printf("Done: %s\n", task.Title)
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			fatal(err)
		}
		defer a.close()

		task, err := resolveTask(ctx, a, args[0])
		if err != nil {
			fatal(err)
		}

		if err := a.store.DeleteTask(ctx, task.ID); err != nil {
			fatal(err)
		}

		payload := map[string]string{"id": task.ID}
		if _, err := a.queue.Enqueue(ctx, model.OpDelete, "task", payload); err != nil {
			fatal(err)
		}
		a.flush(ctx)

		fmt.Printf("Deleted: %s\n", task.Title)
	},
}

func init() {
	addCmd.Flags().StringVar(&addTagFlag, "tag", "", "tag for the task")
	addCmd.Flags().StringVar(&addDueFlag, "due", "", "due date (natural language)")
	listCmd.Flags().BoolVar(&listDoneFlag, "done", false, "include completed tasks")

	rootCmd.AddCommand(addCmd, listCmd, doneCmd, rmCmd)
}

// parseDue interprets a natural-language due date.
func parseDue(text string) (*time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to parse due date %q: %w", text, err)
	}
	if r == nil {
		return nil, fmt.Errorf("could not understand due date %q", text)
	}
	return &r.Time, nil
}

// resolveTask finds a task by full ID or unique prefix.
func resolveTask(ctx context.Context, a *app, id string) (*model.Task, error) {
	if task, err := a.store.GetTask(ctx, id); err == nil {
		return task, nil
	}

	tasks, err := a.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}

	var match *model.Task
	for _, task := range tasks {
		if strings.HasPrefix(task.ID, id) {
			if match != nil {
				return nil, fmt.Errorf("ambiguous task id %q", id)
			}
			match = task
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no task with id %q", id)
	}
	return match, nil
}

var (
	doneStyle    = lipgloss.NewStyle().Strikethrough(true).Faint(true)
	tagStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	overdueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func printTasks(tasks []*model.Task, includeDone bool) {
	shown := 0
	for _, task := range tasks {
		if task.Done && !includeDone {
			continue
		}
		shown++

		marker := "[ ]"
		line := task.Title
		if task.Done {
			marker = "[x]"
			line = doneStyle.Render(line)
		}

		parts := []string{marker, shortID(task.ID), line}
		if task.Tag != "" {
			parts = append(parts, tagStyle.Render("#"+task.Tag))
		}
		if task.Due != nil {
			due := task.Due.Format("Jan 2 15:04")
			if task.Due.Before(time.Now()) && !task.Done {
				parts = append(parts, overdueStyle.Render("due "+due))
			} else {
				parts = append(parts, dueStyle.Render("due "+due))
			}
		}
		if !task.Synced {
			parts = append(parts, pendingStyle.Render("(unsynced)"))
		}

		fmt.Println(strings.Join(parts, " "))
	}

	if shown == 0 {
		fmt.Println("No tasks.")
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
