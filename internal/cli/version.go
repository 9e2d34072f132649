package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version, GitCommit and BuildDate are overridden via -ldflags at build
// time; debug.BuildInfo is the fallback for `go install`.
var (
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

func getVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "dev"
}

func getGitCommit() string {
	if GitCommit != "none" {
		return GitCommit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				if len(setting.Value) > 7 {
					return setting.Value[:7]
				}
				return setting.Value
			}
		}
	}
	return "none"
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the knowcode version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("knowcode %s (%s), built %s\n", getVersion(), getGitCommit(), BuildDate)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
