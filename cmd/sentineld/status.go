package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

// statusResponse mirrors sentinel.PauseStatus's JSON shape without
// importing the sentinel package's RPC-internal types directly — the
// CLI only needs the wire shape, not the controller itself.
type statusResponse struct {
	Paused       bool  `json:"paused"`
	PausedForSec int64 `json:"pausedForSecs"`
	AutoResumeIn int64 `json:"autoResumeIn"`
}

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "print the sentinel auto-pause controller's current state",
	Flags: []cli.Flag{rpcFlag},
	Action: func(c *cli.Context) error {
		client, err := rpc.DialContext(c.Context, c.String(rpcFlag.Name))
		if err != nil {
			return fmt.Errorf("dialing %s: %w", c.String(rpcFlag.Name), err)
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(c.Context, 5*time.Second)
		defer cancel()

		var status statusResponse
		if err := client.CallContext(ctx, &status, "sentinel_status"); err != nil {
			return fmt.Errorf("sentinel_status: %w", err)
		}
		printStatus(status)
		return nil
	},
}

var resumeCommand = &cli.Command{
	Name:  "resume",
	Usage: "force-resume a paused node via sentinel_resume",
	Flags: []cli.Flag{rpcFlag},
	Action: func(c *cli.Context) error {
		client, err := rpc.DialContext(c.Context, c.String(rpcFlag.Name))
		if err != nil {
			return fmt.Errorf("dialing %s: %w", c.String(rpcFlag.Name), err)
		}
		defer client.Close()

		ctx, cancel := context.WithTimeout(c.Context, 5*time.Second)
		defer cancel()

		var transitioned bool
		if err := client.CallContext(ctx, &transitioned, "sentinel_resume"); err != nil {
			return fmt.Errorf("sentinel_resume: %w", err)
		}
		if transitioned {
			color.Green("resumed: controller was paused and is now idle")
		} else {
			color.Yellow("no-op: controller was already idle")
		}
		return nil
	},
}

func printStatus(s statusResponse) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"field", "value"})

	pausedCell := "false"
	if s.Paused {
		pausedCell = color.RedString("true")
	}
	table.Append([]string{"paused", pausedCell})
	if s.Paused {
		table.Append([]string{"paused for", fmt.Sprintf("%ds", s.PausedForSec)})
		table.Append([]string{"auto-resume in", fmt.Sprintf("%ds", s.AutoResumeIn)})
	}
	table.Render()
}
