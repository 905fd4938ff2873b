package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/query"
	"github.com/rubiojr/logsearch/pkg/search"
	"github.com/rubiojr/logsearch/pkg/storage"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86")).
			Background(lipgloss.Color("235")).
			Padding(0, 1).
			Margin(0, 0, 1, 0)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214")).
			Margin(1, 0, 0, 0)

	timeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	noDataStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Margin(1, 0)

	levelStyles = map[string]lipgloss.Style{
		"FATAL": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		"ERROR": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("160")),
		"WARN":  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		"INFO":  lipgloss.NewStyle().Foreground(lipgloss.Color("32")),
		"DEBUG": lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		"TRACE": lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
)

var titleCase = cases.Title(language.English)

// formatNumber formats a number with K/M suffixes for readability
func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	} else if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	} else {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
}

// formatTime formats a time relative to now or as an absolute date
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	// If it's within the last day, show relative time
	if diff < 24*time.Hour {
		if diff < time.Hour {
			minutes := int(diff.Minutes())
			if minutes < 1 {
				return "just now"
			}
			return fmt.Sprintf("%d minutes ago", minutes)
		}
		hours := int(diff.Hours())
		return fmt.Sprintf("%d hours ago", hours)
	}

	if diff < 7*24*time.Hour {
		days := int(diff.Hours() / 24)
		return fmt.Sprintf("%d days ago", days)
	}

	if t.Year() == now.Year() {
		return t.Format("Jan 2, 15:04")
	}
	return t.Format("Jan 2, 2006")
}

// formatDuration formats a duration in human-readable form
func formatDuration(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%.1f hours", d.Hours())
	} else if d < 30*24*time.Hour {
		return fmt.Sprintf("%.1f days", d.Hours()/24)
	} else if d < 365*24*time.Hour {
		return fmt.Sprintf("%.1f months", d.Hours()/(24*30))
	} else {
		return fmt.Sprintf("%.1f years", d.Hours()/(24*365))
	}
}

// collectionTitle turns "service_logs" into "Service Logs".
func collectionTitle(collection string) string {
	return titleCase.String(strings.ReplaceAll(collection, "_", " "))
}

func levelLabel(level string) string {
	label := fmt.Sprintf("%-5s", level)
	if style, ok := levelStyles[strings.ToUpper(level)]; ok {
		return style.Render(label)
	}
	return label
}

// formatRecord renders one record on a single styled line, followed by its
// extra fields when verbose is set.
func formatRecord(r core.LogRecord, verbose bool) string {
	var b strings.Builder
	b.WriteString(timeStyle.Render(r.LogTime.UTC().Format("2006-01-02 15:04:05.000")))
	b.WriteString(" ")
	b.WriteString(levelLabel(r.Level))
	b.WriteString(" ")
	b.WriteString(metaStyle.Render(fmt.Sprintf("[%s@%s #%d]", r.Component, r.Host, r.SequenceNumber)))
	b.WriteString(" ")
	b.WriteString(r.Message)
	if verbose {
		b.WriteString(metaStyle.Render(fmt.Sprintf("\n  id=%s file=%s", r.ID, r.File)))
		b.WriteString(core.FormatFields(r.Fields))
	}
	return b.String()
}

// printPage prints a resolved page with its position in the result set.
func printPage(w io.Writer, collection string, page *search.Page[core.LogRecord], verbose bool) {
	title := fmt.Sprintf("%s: %s records", collectionTitle(collection), formatNumber(page.TotalCount))
	fmt.Fprintln(w, titleStyle.Render(title))
	if len(page.Records) == 0 {
		fmt.Fprintln(w, noDataStyle.Render("No records found."))
		return
	}
	for _, r := range page.Records {
		fmt.Fprintln(w, formatRecord(r, verbose))
	}
	pageNum := int64(0)
	if page.PageSize > 0 {
		pageNum = page.StartIndex / int64(page.PageSize)
	}
	fmt.Fprintln(w, metaStyle.Render(fmt.Sprintf("\npage %d, records %d-%d of %d",
		pageNum, page.StartIndex+1, page.StartIndex+int64(len(page.Records)), page.TotalCount)))
}

// printRecords prints records without page information.
func printRecords(w io.Writer, records []core.LogRecord, verbose bool) {
	if len(records) == 0 {
		fmt.Fprintln(w, noDataStyle.Render("No records found."))
		return
	}
	for _, r := range records {
		fmt.Fprintln(w, formatRecord(r, verbose))
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatStats prints per-collection index statistics followed by facet
// counts keyed by collection and field.
func formatStats(w io.Writer, stats []storage.CollectionStats, facets map[string]map[string]*query.FacetNode) {
	fmt.Fprintln(w, titleStyle.Render("📊 Index Statistics"))

	var total int64
	for _, s := range stats {
		total += s.Records
	}
	fmt.Fprintf(w, "Total records: %s\n", formatNumber(total))
	fmt.Fprintf(w, "Collections: %d\n", len(stats))

	if len(stats) == 0 {
		fmt.Fprintln(w, noDataStyle.Render("No records indexed yet."))
		return
	}

	for _, s := range stats {
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("📁 %s", collectionTitle(s.Collection))))
		fmt.Fprintf(w, "   Records: %s", formatNumber(s.Records))
		if total > 0 {
			fmt.Fprintf(w, " (%.1f%%)", float64(s.Records)/float64(total)*100)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "   Last seq: %d\n", s.LastSeq)
		fmt.Fprintf(w, "   Oldest: %s\n", formatTime(s.Oldest))
		fmt.Fprintf(w, "   Newest: %s\n", formatTime(s.Newest))
		fmt.Fprintf(w, "   Span:   %s\n", formatDuration(s.Newest.Sub(s.Oldest)))

		byField := facets[s.Collection]
		fields := make([]string, 0, len(byField))
		for f := range byField {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			fmt.Fprintf(w, "   %s:\n", titleCase.String(f))
			for _, child := range byField[f].Children {
				fmt.Fprintf(w, "     %-20s %s\n", child.Name, formatNumber(child.Count))
			}
		}
	}
}
