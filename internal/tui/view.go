package tui

import (
	"fmt"
	"strconv"
	"strings"

	"configforge/internal/core"
	"configforge/pkg/domain"
)

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Industrial Configuration Wizard"))
	b.WriteString("\n")
	b.WriteString(m.progress())
	b.WriteString("\n\n")

	switch {
	case m.mode == modeReview:
		m.viewReview(&b)
	case m.step < core.LastStep:
		m.viewOptions(&b)
	default:
		m.viewProduct(&b)
	}

	if m.mode == modeEdit || m.mode == modeAsk {
		b.WriteString("\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m Model) progress() string {
	parts := make([]string, 0, len(steps))
	for i, s := range steps {
		n := i + 1
		label := strconv.Itoa(n) + " " + s.Name
		switch {
		case n < m.step:
			label = doneStyle.Render("✓ " + s.Name)
		case n == m.step:
			label = currentStyle.Render("[" + strconv.Itoa(n) + "] " + s.Name)
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, "  ") + fmt.Sprintf("\nStep %d of %d: %s", m.step, len(steps), steps[m.step-1].Description)
}

func (m Model) viewOptions(b *strings.Builder) {
	options := m.svc.Options(domain.Level(m.step))
	if len(options) == 0 {
		b.WriteString("No options available for the current selection.\n")
		return
	}
	selected := m.svc.Store().Hierarchy().At(domain.Level(m.step))
	for i, opt := range options {
		check := " "
		if opt.ID == selected {
			check = "*"
		}
		line := fmt.Sprintf("%s %s  %s", check, opt.Name, opt.Description)
		if i == m.cursor {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
}

func (m Model) viewProduct(b *strings.Builder) {
	b.WriteString(sectionStyle.Render("Parameters"))
	b.WriteString("\n")
	for i, p := range m.svc.Store().Parameters() {
		override := " "
		if p.Overridden() {
			override = "*"
		}
		line := fmt.Sprintf("%s %-28s %12s %s", override, p.Name, strconv.FormatFloat(p.EffectiveValue(), 'f', -1, 64), p.Units)
		if i == m.cursor {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("Calculations"))
	b.WriteString("\n")
	for _, c := range m.svc.Store().Calculations() {
		value := "n/a"
		if c.Value != nil {
			value = strconv.FormatFloat(*c.Value, 'f', 2, 64)
		}
		fmt.Fprintf(b, "  %-30s %12s %s  = %s\n", c.Name, value, c.Units, c.Formula)
	}

	patches := m.svc.Store().Patches()
	if len(patches) > 0 {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render("Pending changes"))
		b.WriteString("\n")
		for _, p := range patches {
			b.WriteString("  ")
			b.WriteString(m.svc.DescribePatch(p))
			b.WriteString("\n")
		}
	}
	if m.answer != "" {
		b.WriteString("\nAssistant: ")
		b.WriteString(m.answer)
		b.WriteString("\n")
	}
	if m.pending != nil {
		b.WriteString("Suggested changes (y to apply, n to discard)\n")
		for _, p := range m.pending.Suggestions {
			b.WriteString(pendingStyle.Render("  + " + m.svc.DescribePatch(p)))
			b.WriteString("\n")
		}
	}
}

func (m Model) viewReview(b *strings.Builder) {
	doc := m.svc.ReviewDocument()
	b.WriteString(sectionStyle.Render("Review"))
	b.WriteString("\n")
	for _, sel := range doc.Selections {
		fmt.Fprintf(b, "  %-11s %s\n", sel.Level.String()+":", sel.Name)
	}
	fmt.Fprintf(b, "  %d parameters, %d calculations\n", len(doc.Parameters), len(doc.Calculations))
	b.WriteString("\ns to save, ← to go back\n")
}
