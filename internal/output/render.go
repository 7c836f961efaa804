package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tarsier-dev/tarsier/internal/redact"
)

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 2)
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	nameStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	missStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
)

// Summary renders the on-screen run summary. Secret values are masked;
// only the files carry the real thing.
func (a *Artifacts) Summary() string {
	var rows []string
	rows = append(rows, titleStyle.Render(fmt.Sprintf("credentials · %s", a.Profile.Name)), "")

	for _, f := range a.Profile.Fields {
		if f.List {
			continue
		}
		v := a.Record.Get(f.Name)
		var rendered string
		if v == "" {
			rendered = missStyle.Render("not found")
		} else {
			rendered = valueStyle.Render(redact.Field(f.Name, v))
		}
		rows = append(rows, nameStyle.Render(f.Name)+rendered)
	}
	for _, name := range sortedListNames(a.Record) {
		rows = append(rows, nameStyle.Render(name)+
			valueStyle.Render(fmt.Sprintf("%d found", len(a.Record.Lists[name]))))
	}

	rows = append(rows, "")
	if a.Broker != nil {
		rows = append(rows, nameStyle.Render("broker")+
			valueStyle.Render(fmt.Sprintf("%s:%d", a.Broker.Domain, a.Broker.Port)))
		rows = append(rows, nameStyle.Render("password")+
			valueStyle.Render(redact.Mask(a.Broker.Password)+"  (dynamic, short-lived)"))
	} else {
		rows = append(rows, nameStyle.Render("broker")+missStyle.Render("not validated"))
	}

	return boxStyle.Render(strings.Join(rows, "\n"))
}
