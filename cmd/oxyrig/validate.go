package main

import (
	"encoding/json"
	"fmt"

	"github.com/Carmen-Shannon/oxy-rig/engine/rig"
	"github.com/Carmen-Shannon/oxy-rig/engine/scene"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// ValidateResult is the outcome of checking one rig file.
type ValidateResult struct {
	File      string `json:"file"`
	Rig       string `json:"rig,omitempty"`
	Valid     bool   `json:"valid"`
	Bones     int    `json:"bones,omitempty"`
	Modifiers int    `json:"modifiers,omitempty"`
	Error     string `json:"error,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return errors.Wrap(err, "reading --json flag")
	}
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	// One scene for every file, so node path clashes between rigs are reported too.
	s := scene.NewScene("validate", scene.WithLogger(logger), scene.WithComputeWorkers(1))
	defer s.Release()

	results := make([]ValidateResult, 0, len(args))
	failed := 0
	for _, path := range args {
		res := validateFile(s, path)
		if !res.Valid {
			failed++
		}
		results = append(results, res)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encoding results")
		}
		fmt.Fprintln(out, string(data))
	} else {
		for _, res := range results {
			if res.Valid {
				fmt.Fprintf(out, "ok    %s (%s: %d bones, %d modifiers)\n", res.File, res.Rig, res.Bones, res.Modifiers)
			} else {
				fmt.Fprintf(out, "FAIL  %s: %s\n", res.File, res.Error)
			}
		}
	}

	if failed > 0 {
		return errors.Errorf("%d of %d rig files are invalid", failed, len(args))
	}
	return nil
}

func validateFile(s scene.Scene, path string) ValidateResult {
	res := ValidateResult{File: path}
	cfg, err := rig.Load(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Rig = cfg.Name
	id, err := s.Add(cfg)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	s.View(id, func(r *rig.Rig) {
		res.Bones = r.Skeleton.BoneCount()
		res.Modifiers = r.Stack.ModifierCount()
	})
	res.Valid = true
	return res
}
