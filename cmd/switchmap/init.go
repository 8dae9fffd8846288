package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/switchmap/internal/config"
	"github.com/vango-dev/switchmap/internal/errors"
)

func initCmd(flags *globalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default switchmap.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(flags.dir, config.ConfigFileName)
			if _, err := os.Stat(path); err == nil && !force {
				return errors.New("S001").
					WithDetail(path + " already exists").
					WithSuggestion("Pass --force to overwrite it")
			}
			if err := config.New().SaveTo(path); err != nil {
				return err
			}
			success("Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	return cmd
}
