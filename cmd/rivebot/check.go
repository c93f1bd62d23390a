package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voicetyped/rivebot/pkg/brain"
	"github.com/voicetyped/rivebot/pkg/script"
)

var checkCmd = &cobra.Command{
	Use:   "check <dir|file>...",
	Short: "Parse and compile scripts, reporting every problem",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var scripts []*script.Script
		for _, arg := range args {
			loaded, err := loadPath(cmd, arg)
			if err != nil {
				return err
			}
			scripts = append(scripts, loaded...)
		}

		b, err := brain.Build(scripts, brain.BuildOptions{})
		var cerr *brain.CompileErrors
		if errors.As(err, &cerr) {
			for _, issue := range cerr.Issues {
				fmt.Fprintln(cmd.OutOrStdout(), issue.Error())
			}
			return fmt.Errorf("%d problem(s) found", len(cerr.Issues))
		}
		if err != nil {
			return err
		}

		stats := b.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d files, %d topics, %d triggers\n", stats.Files, stats.Topics, stats.Triggers)
		return nil
	},
}

func loadPath(cmd *cobra.Command, path string) ([]*script.Script, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return script.NewLoader(path).LoadAll(cmd.Context())
	}
	s, err := script.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return []*script.Script{s}, nil
}
