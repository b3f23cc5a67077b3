package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/sells-group/lead-intel/internal/model"
)

var priorityColors = map[model.Priority]*color.Color{
	model.PriorityCritical: color.New(color.FgRed, color.Bold),
	model.PriorityUrgent:   color.New(color.FgRed),
	model.PriorityHigh:     color.New(color.FgYellow),
	model.PriorityNormal:   color.New(color.FgCyan),
	model.PriorityLow:      color.New(color.FgWhite),
}

func colorPriority(p model.Priority) string {
	if c, ok := priorityColors[p]; ok {
		return c.Sprint(string(p))
	}
	return string(p)
}

// formatQueue writes a day's queue as a table.
func formatQueue(out io.Writer, items []model.ContactQueueItem) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "POS\tID\tOWNER\tPRIORITY\tSTATUS\tREASON")
	_, _ = fmt.Fprintln(w, "---\t--\t-----\t--------\t------\t------")
	for _, it := range items {
		status := string(it.Status)
		if it.Status != model.QueueStatusPending {
			status = color.New(color.Faint).Sprint(status)
		}
		_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\t%s\n",
			it.Position,
			it.ID,
			it.OwnerID,
			colorPriority(it.Priority),
			status,
			truncate(it.Reason, 60),
		)
	}
	_ = w.Flush()
}

// formatWebhooks writes the subscriber list as a table.
func formatWebhooks(out io.Writer, hooks []model.WebhookConfig) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tEVENT\tURL\tACTIVE\tFAILURES\tLAST TRIGGERED")
	_, _ = fmt.Fprintln(w, "--\t-----\t---\t------\t--------\t--------------")
	for _, h := range hooks {
		active := color.New(color.FgGreen).Sprint("yes")
		if !h.IsActive {
			active = color.New(color.FgRed).Sprint("no")
		}
		last := "-"
		if h.LastTriggeredAt != nil {
			last = h.LastTriggeredAt.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n",
			h.ID, h.EventType, truncate(h.URL, 50), active, h.FailureCount, last)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
