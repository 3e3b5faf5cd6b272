package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/sentinel-watch/sentinel/sentinel/config"
)

// validateConfigCommand offline-validates a sentinel.toml without
// connecting to a node, catching unknown fields and scorer-weight
// invariant violations before a restart picks up a bad config.
var validateConfigCommand = &cli.Command{
	Name:  "validate-config",
	Usage: "parse and validate a sentinel.toml file without connecting to a node",
	Flags: []cli.Flag{configFlag},
	Action: func(c *cli.Context) error {
		path := c.String(configFlag.Name)
		f, err := config.Load(path)
		if err != nil {
			return err
		}
		if _, err := config.Resolve(f); err != nil {
			color.Red("config invalid: %v", err)
			return err
		}
		color.Green("%s is valid", path)
		fmt.Printf("  prefilter.suspicion_threshold = %.2f\n", f.Prefilter.SuspicionThreshold)
		fmt.Printf("  analysis.min_confidence       = %.2f\n", f.Analysis.MinConfidence)
		fmt.Printf("  auto_pause.enabled            = %v\n", f.AutoPause.Enabled)
		return nil
	},
}
