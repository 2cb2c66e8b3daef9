package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"collage/internal/imaging"
	"collage/internal/queue"
)

func buildQueueStatsRows(stats map[queue.State]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, state := range queue.AllStates() {
		count, ok := stats[state]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{formatStateLabel(string(state)), humanize.Comma(int64(count))})
	}
	return rows
}

func buildQueueListRows(jobs []*queue.Job, now time.Time, colorize bool) [][]string {
	sorted := make([]*queue.Job, len(jobs))
	copy(sorted, jobs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	rows := make([][]string, 0, len(sorted))
	for _, job := range sorted {
		rows = append(rows, []string{
			job.ID,
			renderState(string(job.State), colorize),
			string(job.Layout),
			formatBorder(job),
			strconv.Itoa(len(job.Inputs)),
			strconv.Itoa(job.Attempt),
			humanize.RelTime(job.CreatedAt, now, "ago", "from now"),
			jobDetail(job),
		})
	}
	return rows
}

func formatBorder(job *queue.Job) string {
	if job.BorderWidth == 0 {
		return "none"
	}
	return fmt.Sprintf("%dpx %s", job.BorderWidth, imaging.FormatColor(job.BorderColor))
}

func jobDetail(job *queue.Job) string {
	switch job.State {
	case queue.StateCompleted:
		return job.ResultRef
	case queue.StateFailed:
		return truncate(job.Error, 60)
	case queue.StateActive:
		if job.HeartbeatAt != nil {
			return fmt.Sprintf("heartbeat %s", humanize.Time(*job.HeartbeatAt))
		}
	}
	return ""
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
