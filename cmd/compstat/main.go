package main

import (
	"context"

	"github.com/alecthomas/kong"
	mangokong "github.com/alecthomas/mango-kong"
)

var CLI struct {
	Run RunCommand        `cmd:"" help:"Measure compression savings over an in-process call pipeline."`
	Man mangokong.ManFlag `help:"Write man page." hidden:""`
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kongCtx := kong.Parse(
		&CLI,
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.ConfigureHelp(kong.HelpOptions{
			Tree:    true,
			Compact: true,
		}),
		kong.Description(`compression filter statistics

Runs payloads through the client compression filter against a simulated
wire and reports the on-wire savings per algorithm.
		`),
	)
	err := kongCtx.Run()
	kongCtx.FatalIfErrorf(err)
}
