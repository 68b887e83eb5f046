package bot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xaenox/habit-coach/internal/analytics"
	"github.com/xaenox/habit-coach/internal/models"
)

var markdownSpecialChars = []string{"\\", "_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!"}

// escapeMarkdown escapes special characters for MarkdownV2.
func escapeMarkdown(text string) string {
	escaped := text
	for _, char := range markdownSpecialChars {
		escaped = strings.ReplaceAll(escaped, char, "\\"+char)
	}
	return escaped
}

// parseAddArgs splits "title | description" and collects #hashtags from both parts as tags.
func parseAddArgs(args string) (title, description string, tags []string) {
	title, description, _ = strings.Cut(args, "|")
	return strings.TrimSpace(title), strings.TrimSpace(description), extractTags(args)
}

func extractTags(content string) []string {
	tags := []string{}
	seen := make(map[string]struct{})
	for _, word := range strings.Fields(content) {
		if !strings.HasPrefix(word, "#") {
			continue
		}
		tag := strings.ToLower(strings.Trim(strings.TrimPrefix(word, "#"), ".,;:!?"))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return tags
}

// parseDayArgs reads "N [YYYY-MM-DD]" where N is the 1-based position in /habits.
// An omitted date is returned empty.
func parseDayArgs(args string) (index int, date string, err error) {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		return 0, "", fmt.Errorf("expected a habit number and an optional date")
	}
	index, err = strconv.Atoi(fields[0])
	if err != nil || index < 1 {
		return 0, "", fmt.Errorf("invalid habit number %q", fields[0])
	}
	if len(fields) == 2 {
		if _, err := models.ParseDate(fields[1]); err != nil {
			return 0, "", fmt.Errorf("invalid date %q, use YYYY-MM-DD", fields[1])
		}
		date = fields[1]
	}
	return index, date, nil
}

// parseLogArgs reads "N [days]"; days is 0 when omitted.
func parseLogArgs(args string) (index, days int, err error) {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		return 0, 0, fmt.Errorf("expected a habit number and an optional day count")
	}
	index, err = strconv.Atoi(fields[0])
	if err != nil || index < 1 {
		return 0, 0, fmt.Errorf("invalid habit number %q", fields[0])
	}
	if len(fields) == 2 {
		days, err = strconv.Atoi(fields[1])
		if err != nil || days < 1 {
			return 0, 0, fmt.Errorf("invalid day count %q", fields[1])
		}
	}
	return index, days, nil
}

func pickHabit(summaries []models.HabitSummary, index int) (models.Habit, bool) {
	if index < 1 || index > len(summaries) {
		return models.Habit{}, false
	}
	return summaries[index-1].Habit, true
}

func formatHabits(summaries []models.HabitSummary, todayKey string) string {
	if len(summaries) == 0 {
		return escapeMarkdown("You don't have any habits yet. Add one with /add Title | description")
	}

	var b strings.Builder
	b.WriteString("*Your habits:*\n\n")
	for i, s := range summaries {
		mark := "⬜"
		for _, e := range s.RecentEntries {
			if e.Key() == todayKey && e.Completed {
				mark = "✅"
				break
			}
		}
		fmt.Fprintf(&b, "%s %d\\. *%s*\n", mark, i+1, escapeMarkdown(s.Habit.Title))
		if s.Habit.Description != "" {
			fmt.Fprintf(&b, "_%s_\n", escapeMarkdown(s.Habit.Description))
		}
		fmt.Fprintf(&b, "🔥 %d %s · %s · best %d\n\n",
			s.CurrentStreak, plural(s.CurrentStreak, "day", "days"),
			escapeMarkdown(fmt.Sprintf("%d%% over %d days", s.CompletionRate, s.WindowDays)),
			s.LongestStreak)
	}
	return b.String()
}

func formatStats(stats analytics.DashboardStats) string {
	var b strings.Builder
	b.WriteString("*Today:*\n")
	fmt.Fprintf(&b, "Completed: %d/%d \\(%d%%\\)\n", stats.CompletedToday, stats.TotalHabits, stats.TodayRate)
	fmt.Fprintf(&b, "Total streak: %d\n", stats.TotalStreak)
	fmt.Fprintf(&b, "Best streak: %d\n", stats.BestStreak)
	return b.String()
}

// formatEntries lists a habit's entries, newest first as returned by the tracker.
func formatEntries(title string, entries []models.HabitEntry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("*%s*\n%s", escapeMarkdown(title), escapeMarkdown("No entries in this period yet."))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", escapeMarkdown(title))
	for _, e := range entries {
		mark := "❌"
		if e.Completed {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s %s", mark, escapeMarkdown(e.Key()))
		if e.Notes != nil && *e.Notes != "" {
			fmt.Fprintf(&b, " _%s_", escapeMarkdown(*e.Notes))
		}
		b.WriteString("\n")
	}
	return b.String()
}

const historyPreviewLength = 60

func formatHistory(conversations []models.Conversation) string {
	if len(conversations) == 0 {
		return escapeMarkdown("You haven't talked to the coach yet.")
	}

	var b strings.Builder
	b.WriteString("*Recent conversations:*\n\n")
	for _, c := range conversations {
		preview := "(empty)"
		for _, m := range c.Messages {
			if m.Role == models.RoleUser {
				preview = truncate(m.Content, historyPreviewLength)
				break
			}
		}
		fmt.Fprintf(&b, "*%s* · %d %s\n_%s_\n\n",
			escapeMarkdown(c.UpdatedAt.Format("2006-01-02 15:04")),
			len(c.Messages), plural(len(c.Messages), "message", "messages"),
			escapeMarkdown(preview))
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
