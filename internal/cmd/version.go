package cmd

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"

	"github.com/pacerhq/pacer/internal/core/pace"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. --extended adds build details, wrapper kinds and library versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return currentVersion().write(cmd.OutOrStdout(), extended)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}

type versionReport struct {
	name      string
	version   string
	commit    string
	buildDate string
	kinds     []string
}

func currentVersion() versionReport {
	name := "pacer"
	if identity := GetAppIdentity(); identity != nil && identity.BinaryName != "" {
		name = identity.BinaryName
	}
	kinds := make([]string, len(pace.Kinds))
	for i, k := range pace.Kinds {
		kinds[i] = string(k)
	}
	return versionReport{
		name:      name,
		version:   versionInfo.Version,
		commit:    versionInfo.Commit,
		buildDate: versionInfo.BuildDate,
		kinds:     kinds,
	}
}

func (v versionReport) write(w io.Writer, extended bool) error {
	if _, err := fmt.Fprintf(w, "%s %s\n", v.name, v.version); err != nil || !extended {
		return err
	}
	deps := crucible.GetVersion()
	_, err := fmt.Fprintf(w, "Commit: %s\nBuilt: %s\nGo: %s\nKinds: %s\n\nGofulmen: %s\nCrucible: %s\n",
		v.commit, v.buildDate, runtime.Version(), strings.Join(v.kinds, ", "),
		deps.Gofulmen, deps.Crucible)
	return err
}
