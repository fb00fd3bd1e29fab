package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/harun/skillbridge/internal/bridge"
	"github.com/harun/skillbridge/pkg/plugin"
)

// listing is the output of the list command
type listing struct {
	Dir     string              `json:"dir"`
	Plugins []plugin.Descriptor `json:"plugins"`
	Failed  map[string]string   `json:"failed"`
}

func newListCmd(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Discover plugins and print their descriptors",
		Long: `Run one discovery pass over the plugin root and print every registered
descriptor, together with the files that failed to load.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, opts, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format (json, table)")
	return cmd
}

func runList(cmd *cobra.Command, opts *options, format string) error {
	if format != "json" && format != "table" {
		return fmt.Errorf("unknown format %q (want json or table)", format)
	}

	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	log, err := newLogger(cmd, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Close()

	runtime := bridge.NewRuntime(log.Zerolog())
	defer runtime.Shutdown()

	result, err := runtime.Discover(cmd.Context(), cfg.PluginsDir)
	if err != nil {
		return err
	}

	out := listing{
		Dir:     cfg.PluginsDir,
		Plugins: runtime.Registry().List(),
		Failed:  make(map[string]string, len(result.Failed)),
	}
	for _, path := range result.Failed {
		out.Failed[path] = result.Errors[path].Error()
	}

	if format == "table" {
		fmt.Fprintln(cmd.OutOrStdout(), renderTable(out))
		return nil
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// renderTable lays the listing out for a terminal
func renderTable(l listing) string {
	const row = "%-24s │ %-16s │ %-8s │ %-5s │ %-5s │ %s"

	lines := []string{
		headerStyle.Render(fmt.Sprintf(row, "KEY", "NAME", "PRIORITY", "RULES", "TASKS", "BYPASS")),
	}
	for _, d := range l.Plugins {
		lines = append(lines, fmt.Sprintf(row,
			truncateString(d.Key, 24),
			truncateString(d.Name, 16),
			strconv.Itoa(d.Priority),
			strconv.Itoa(len(d.Rules)),
			strconv.Itoa(len(d.Tasks)),
			strconv.FormatBool(d.BypassThrottle),
		))
	}
	if len(l.Plugins) == 0 {
		lines = append(lines, mutedStyle.Render("  no plugins found in "+l.Dir))
	}

	if len(l.Failed) > 0 {
		paths := make([]string, 0, len(l.Failed))
		for path := range l.Failed {
			paths = append(paths, path)
		}
		sort.Strings(paths)

		lines = append(lines, "", headerStyle.Render("FAILED"))
		for _, path := range paths {
			lines = append(lines, failedStyle.Render(path)+"  "+mutedStyle.Render(l.Failed[path]))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// truncateString shortens s to at most max runes
func truncateString(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
