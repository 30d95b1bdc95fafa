package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	ruleStyle   = lipgloss.NewStyle().Faint(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

const ruleWidth = 70

// console renders the command output. All writes go through it so tests can
// capture the stream.
type console struct {
	out io.Writer
}

func (c console) Rule() {
	fmt.Fprintln(c.out, ruleStyle.Render(strings.Repeat("=", ruleWidth)))
}

func (c console) Header(title string) {
	c.Rule()
	fmt.Fprintln(c.out, headerStyle.Render(title))
	c.Rule()
	fmt.Fprintln(c.out)
}

func (c console) Section(title string) {
	c.Rule()
	fmt.Fprintln(c.out, headerStyle.Render(title))
	c.Rule()
}

func (c console) OK(format string, args ...any) {
	fmt.Fprintln(c.out, okStyle.Render("✓")+" "+fmt.Sprintf(format, args...))
}

func (c console) Warn(format string, args ...any) {
	fmt.Fprintln(c.out, warnStyle.Render("⚠")+" "+fmt.Sprintf(format, args...))
}

func (c console) Fail(format string, args ...any) {
	fmt.Fprintln(c.out, failStyle.Render("✗")+" "+fmt.Sprintf(format, args...))
}

func (c console) Dim(format string, args ...any) {
	fmt.Fprintln(c.out, dimStyle.Render(fmt.Sprintf(format, args...)))
}

func (c console) Printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c console) Println(args ...any) {
	fmt.Fprintln(c.out, args...)
}

// Field prints an aligned key/value line for configuration summaries.
func (c console) Field(name, value string) {
	fmt.Fprintf(c.out, "  %-18s %s\n", name+":", value)
}

// truncate shortens long assistant responses for console display.
func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
