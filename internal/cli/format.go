package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"github.com/hession/citysim/internal/ledger"
	"github.com/hession/citysim/internal/model"
	"github.com/hession/citysim/internal/simulator"
	"github.com/hession/citysim/internal/store"
)

// memoryTypeIcon returns the list marker for a memory type
func memoryTypeIcon(t model.MemoryType) string {
	switch t {
	case model.MemoryInteraction:
		return "💬"
	case model.MemoryEvent:
		return "📌"
	default:
		return "📄"
	}
}

// relationIcon returns the list marker for a relationship type
func relationIcon(t model.RelationType) string {
	switch t {
	case model.RelationParent, model.RelationChild, model.RelationSibling, model.RelationSpouse:
		return "🏠"
	case model.RelationFriend:
		return "🤝"
	case model.RelationRival, model.RelationEnemy:
		return "⚔️"
	default:
		return "👋"
	}
}

// truncateForDisplay flattens text onto one line and cuts it at maxLen bytes
func truncateForDisplay(text string, maxLen int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.TrimSpace(text)

	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}

// FormatDuration renders d in its largest whole unit
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

func printCitizenLine(w io.Writer, c *model.Citizen) {
	fmt.Fprintf(w, "%s%-24s%s %3d  %-24s %s, %s\n",
		colorCyan, c.Name, colorReset,
		c.Age,
		truncateForDisplay(c.Occupation, 24),
		english.Plural(len(c.Relationships), "bond", "bonds"),
		english.Plural(len(c.Memories), "memory", "memories"))
}

func printCitizen(w io.Writer, c *model.Citizen) {
	fmt.Fprintf(w, "%s%s%s  %s(%s)%s\n", colorCyan, c.Name, colorReset, colorGray, c.ID, colorReset)
	fmt.Fprintf(w, "  Age: %d", c.Age)
	if c.Gender != "" {
		fmt.Fprintf(w, "  Gender: %s", c.Gender)
	}
	fmt.Fprintf(w, "  Occupation: %s\n", c.Occupation)
	fmt.Fprintf(w, "  Joined: %s\n", humanize.Time(c.CreatedAt))

	lists := []struct {
		label string
		items []string
	}{
		{"Traits", c.Traits},
		{"Hobbies", c.Hobbies},
		{"Strengths", c.Strengths},
		{"Weaknesses", c.Weaknesses},
		{"Quirks", c.Quirks},
		{"Values", c.Values},
		{"Fears", c.Fears},
		{"Dreams", c.Dreams},
	}
	for _, l := range lists {
		if len(l.items) > 0 {
			fmt.Fprintf(w, "  %s: %s\n", l.label, strings.Join(l.items, ", "))
		}
	}
	if c.Background != "" {
		fmt.Fprintf(w, "  Background: %s\n", truncateForDisplay(c.Background, 200))
	}

	fmt.Fprintf(w, "\n%sRelationships (%d)%s\n", colorYellow, len(c.Relationships), colorReset)
	rels := append([]model.Relationship(nil), c.Relationships...)
	sort.SliceStable(rels, func(i, j int) bool { return rels[i].Strength > rels[j].Strength })
	for _, r := range rels {
		fmt.Fprintf(w, "  %s %-24s %s\n", relationIcon(r.Type), r.TargetName, r)
		if r.Context != "" {
			fmt.Fprintf(w, "     %s%s%s\n", colorGray, truncateForDisplay(r.Context, 100), colorReset)
		}
	}

	fmt.Fprintf(w, "\n%sMemories (%d, top 10 by importance)%s\n", colorYellow, len(c.Memories), colorReset)
	if len(c.Memories) > 0 {
		fmt.Fprintf(w, "  %s%d from interactions, %d summarised%s\n", colorGray,
			len(c.MemoriesOfType(model.MemoryInteraction)), len(c.MemoriesOfType(model.MemoryEvent)), colorReset)
	}
	for i, m := range ledger.TopByImportance(c, 10) {
		fmt.Fprintf(w, "%2d. %s [%.2f] %s\n", i+1, memoryTypeIcon(m.Type), m.Importance, humanize.Time(m.Timestamp))
		fmt.Fprintf(w, "    %s\n", truncateForDisplay(m.Description, 100))
	}
}

func printStats(w io.Writer, s store.Stats, today int) {
	fmt.Fprintf(w, "%sCity statistics%s\n", colorCyan, colorReset)
	fmt.Fprintf(w, "  Theme:         %s\n", s.Theme)
	if !s.CreatedAt.IsZero() {
		fmt.Fprintf(w, "  Founded:       %s\n", humanize.Time(s.CreatedAt))
	}
	if !s.LastUpdate.IsZero() {
		fmt.Fprintf(w, "  Last update:   %s\n", humanize.Time(s.LastUpdate))
	}
	fmt.Fprintf(w, "  Citizens:      %s\n", humanize.Comma(int64(s.Citizens)))
	fmt.Fprintf(w, "  Interactions:  %s\n", humanize.Comma(int64(s.Interactions)))
	fmt.Fprintf(w, "  Today (UTC):   %s\n", humanize.Comma(int64(today)))
	fmt.Fprintf(w, "  Relationships: %s\n", humanize.Comma(int64(s.Relationships)))
	fmt.Fprintf(w, "  Memories:      %s\n", humanize.Comma(int64(s.Memories)))

	if len(s.Occupations) == 0 {
		return
	}
	type count struct {
		name string
		n    int
	}
	occ := make([]count, 0, len(s.Occupations))
	for name, n := range s.Occupations {
		occ = append(occ, count{name, n})
	}
	sort.Slice(occ, func(i, j int) bool {
		if occ[i].n != occ[j].n {
			return occ[i].n > occ[j].n
		}
		return occ[i].name < occ[j].name
	})
	fmt.Fprintf(w, "\n%sTop occupations%s\n", colorYellow, colorReset)
	for i, o := range occ {
		if i == 10 {
			break
		}
		fmt.Fprintf(w, "  %-30s %d\n", truncateForDisplay(o.name, 30), o.n)
	}
}

func printMessage(w io.Writer, m model.Message) {
	fmt.Fprintf(w, "%s%s:%s %s\n", colorGreen, m.SpeakerName, colorReset, m.Message)
}

func printReport(w io.Writer, r *simulator.Report) {
	names := make([]string, len(r.Participants))
	for i, p := range r.Participants {
		names[i] = p.Name
	}
	fmt.Fprintf(w, "%sInteraction %s%s with %s\n", colorBlue, r.Interaction.ID, colorReset, strings.Join(names, ", "))
	fmt.Fprintf(w, "  %s%s%s\n", colorGray, truncateForDisplay(r.Interaction.Scenario, 160), colorReset)
	for _, p := range r.Participants {
		impact, ok := r.Impacts[p.ID]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "  %-24s impact %+.2f\n", p.Name, impact)
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, "  %sno memory recorded for %s%s\n", colorGray, english.Plural(len(r.Skipped), "participant", "participants"), colorReset)
	}
	if r.ScenarioFallback || r.ReplyFallbacks > 0 {
		fmt.Fprintf(w, "  %sfallbacks: scenario=%v replies=%d%s\n", colorGray, r.ScenarioFallback, r.ReplyFallbacks, colorReset)
	}
}
