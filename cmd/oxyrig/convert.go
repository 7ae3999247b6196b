package main

import (
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxy-rig/engine/rig"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func runConvert(cmd *cobra.Command, args []string) error {
	in, out := args[0], args[1]
	format, err := rig.FormatFromPath(out)
	if err != nil {
		return err
	}
	cfg, err := rig.Load(in)
	if err != nil {
		return err
	}
	data, err := rig.Marshal(cfg, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", out)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s)\n", out, format)
	return nil
}
