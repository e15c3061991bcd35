package main

import (
	"encoding/json"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// buildStamp describes the running syncsftp binary
type buildStamp struct {
	Version  string `json:"version"`
	Go       string `json:"go"`
	Platform string `json:"platform"`
	Revision string `json:"revision,omitempty"`
	Built    string `json:"built,omitempty"`
	Dirty    bool   `json:"dirty,omitempty"`
}

func readBuildStamp() buildStamp {
	stamp := buildStamp{
		Version:  "dev",
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return stamp
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		stamp.Version = v
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			stamp.Revision = s.Value
		case "vcs.time":
			stamp.Built = s.Value
		case "vcs.modified":
			stamp.Dirty = s.Value == "true"
		}
	}
	return stamp
}

// short is the one line form, e.g. "syncsftp v1.2.0 (abc1234, dirty)"
func (b buildStamp) short() string {
	var extra []string
	if b.Revision != "" {
		extra = append(extra, b.Revision[:min(len(b.Revision), 7)])
	}
	if b.Dirty {
		extra = append(extra, "dirty")
	}
	if len(extra) == 0 {
		return "syncsftp " + b.Version
	}
	return fmt.Sprintf("syncsftp %s (%s)", b.Version, strings.Join(extra, ", "))
}

func (b buildStamp) String() string {
	var sb strings.Builder
	sb.WriteString("🚀 " + b.short() + "\n")
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&sb, "  %-9s %s\n", k+":", v)
		}
	}
	row("built", b.Built)
	row("go", b.Go)
	row("platform", b.Platform)
	return sb.String()
}

func newVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// version needs no root
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			stamp := readBuildStamp()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stamp)
			}
			_, err := fmt.Fprint(cmd.OutOrStdout(), stamp)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print version information as JSON")
	return cmd
}
