package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

// Custom help styles
var (
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#A40000")).
			MarginBottom(1)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA500")).
			Italic(true).
			MarginBottom(1)

	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FFA500")).
				MarginTop(1)

	helpFlagStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AA00")).
			Bold(true)

	helpArgStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00AAAA")).
			Bold(true)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#888888")).
				Italic(true)
)

// StyledHelpPrinter creates a custom help printer with Lipgloss styling. It
// describes the selected command, or the application when none is selected.
func StyledHelpPrinter(options kong.HelpOptions) func(options kong.HelpOptions, ctx *kong.Context) error {
	return func(options kong.HelpOptions, ctx *kong.Context) error {
		fmt.Fprint(ctx.Stdout, renderHelp(ctx.Model.Node, ctx.Selected()))
		return nil
	}
}

func renderHelp(app, selected *kong.Node) string {
	node := selected
	if node == nil {
		node = app
	}

	var sb strings.Builder

	sb.WriteString(helpTitleStyle.Render("avscope"))
	sb.WriteString("\n")
	desc := app.Help
	if selected != nil && selected.Help != "" {
		desc = selected.Help
	}
	if desc != "" {
		sb.WriteString(helpDescStyle.Render(desc))
		sb.WriteString("\n")
	}

	sb.WriteString(helpSectionStyle.Render("Usage:"))
	sb.WriteString("\n  ")
	sb.WriteString(usage(node))
	sb.WriteString("\n")

	if cmds := getCommands(node); len(cmds) > 0 {
		sb.WriteString("\n")
		sb.WriteString(helpSectionStyle.Render("Commands:"))
		sb.WriteString("\n")
		writeColumn(&sb, cmds, helpArgStyle)
	}

	if args := getArguments(node); len(args) > 0 {
		sb.WriteString("\n")
		sb.WriteString(helpSectionStyle.Render("Arguments:"))
		sb.WriteString("\n")
		writeColumn(&sb, args, helpArgStyle)
	}

	if flags := getFlags(node); len(flags) > 0 {
		sb.WriteString("\n")
		sb.WriteString(helpSectionStyle.Render("Flags:"))
		sb.WriteString("\n")
		for _, flag := range flags {
			sb.WriteString("  ")
			sb.WriteString(helpFlagStyle.Render(flag.flags))
			if flag.help != "" {
				sb.WriteString("  ")
				sb.WriteString(flag.help)
			}
			if flag.defaultVal != "" {
				sb.WriteString(" ")
				sb.WriteString(helpDefaultStyle.Render("(default: " + flag.defaultVal + ")"))
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n")
	return sb.String()
}

type entry struct {
	name string
	help string
}

type flag struct {
	flags      string
	help       string
	defaultVal string
}

func writeColumn(sb *strings.Builder, entries []entry, style lipgloss.Style) {
	width := 0
	for _, e := range entries {
		width = max(width, len(e.name))
	}
	for _, e := range entries {
		sb.WriteString("  ")
		sb.WriteString(style.Render(fmt.Sprintf("%-*s", width, e.name)))
		if e.help != "" {
			sb.WriteString("  ")
			sb.WriteString(e.help)
		}
		sb.WriteString("\n")
	}
}

// usage returns the command line for node, e.g. "avscope cache prune [flags]".
func usage(node *kong.Node) string {
	var path []string
	for n := node; n != nil; n = n.Parent {
		path = append(path, n.Name)
	}
	slices.Reverse(path)

	line := strings.Join(path, " ")
	if len(getCommands(node)) > 0 {
		return line + " <command> [flags]"
	}
	line += " [flags]"
	for _, arg := range node.Positional {
		line += " " + arg.Summary()
	}
	return line
}

func getCommands(node *kong.Node) []entry {
	var cmds []entry
	for _, child := range node.Children {
		if child.Type != kong.CommandNode || child.Hidden {
			continue
		}
		name := child.Name
		for _, arg := range child.Positional {
			name += " " + arg.Summary()
		}
		cmds = append(cmds, entry{name: name, help: child.Help})
	}
	return cmds
}

func getArguments(node *kong.Node) []entry {
	var args []entry
	for _, arg := range node.Positional {
		args = append(args, entry{name: arg.Summary(), help: arg.Help})
	}
	return args
}

// getFlags lists the flags of node and the flags it inherits from its
// parents, nearest first.
func getFlags(node *kong.Node) []flag {
	flags := []flag{{
		flags: "-h, --help",
		help:  "Show context-sensitive help.",
	}}

	for n := node; n != nil; n = n.Parent {
		for _, f := range n.Flags {
			if f.Name == "help" || f.Hidden {
				continue
			}

			flagStr := ""
			if f.Short != 0 {
				flagStr = fmt.Sprintf("-%c, --%s", f.Short, f.Name)
			} else {
				flagStr = fmt.Sprintf("--%s", f.Name)
			}
			if !f.IsBool() {
				placeholder := f.PlaceHolder
				if placeholder == "" {
					placeholder = f.Name
				}
				flagStr += "=" + strings.ToUpper(placeholder)
			}

			defaultVal := ""
			if f.HasDefault && f.Default != "" && !f.IsBool() {
				defaultVal = f.Default
			}
			flags = append(flags, flag{
				flags:      flagStr,
				help:       f.Help,
				defaultVal: defaultVal,
			})
		}
	}
	return flags
}
