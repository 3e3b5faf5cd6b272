// Command sentineld is an operator CLI for the Sentinel subsystem: it
// talks to a running node's admin "sentinel" RPC namespace to report
// pause status and drive resume, and can validate a sentinel.toml
// config offline. It does not itself execute blocks or replay
// transactions — see sentinel.NewSentinelService for in-process wiring.
package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "sentinel.toml",
		Usage:   "path to the sentinel TOML config file",
	}
	rpcFlag = &cli.StringFlag{
		Name:  "rpc",
		Value: "http://127.0.0.1:8551",
		Usage: "admin RPC endpoint exposing the sentinel namespace",
	}
)

func main() {
	setupLogger()

	app := &cli.App{
		Name:  "sentineld",
		Usage: "operate the Sentinel attack-detection subsystem",
		Commands: []*cli.Command{
			statusCommand,
			resumeCommand,
			validateConfigCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogger mirrors the node's own color-aware terminal handler setup:
// colorized when stdout is a real TTY, plain otherwise (piped to a file
// or CI).
func setupLogger() {
	usecolor := isatty.IsTerminal(os.Stdout.Fd()) && os.Getenv("TERM") != "dumb"
	output := os.Stdout
	var handler log.Handler
	if usecolor {
		handler = log.NewTerminalHandlerWithLevel(colorable.NewColorable(output), log.LevelInfo, true)
	} else {
		handler = log.NewTerminalHandlerWithLevel(output, log.LevelInfo, false)
	}
	log.SetDefault(log.NewLogger(handler))
}
