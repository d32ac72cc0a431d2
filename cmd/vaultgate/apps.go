package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var originFlag = cli.StringFlag{
	Name:     "origin",
	Usage:    "the origin of the app",
	Required: true,
}

var apps = cli.Command{
	Name:   "apps",
	Usage:  "list the connected apps",
	Action: listAppsAction,
	Subcommands: []*cli.Command{
		{
			Name:   "disconnect",
			Usage:  "revoke the connection of an app",
			Flags:  []cli.Flag{&originFlag},
			Action: disconnectAppAction,
		},
	},
}

var token = cli.Command{
	Name:  "token",
	Usage: "issue a token authenticating an origin on the websocket transport",
	Flags: []cli.Flag{
		&originFlag,
		&cli.Int64Flag{
			Name:  "ttl",
			Usage: "validity of the token in seconds, 0 for the daemon default",
		},
	},
	Action: issueTokenAction,
}

func listAppsAction(_ *cli.Context) error {
	return getAndPrint("/v1/apps")
}

func disconnectAppAction(ctx *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	origin := ctx.String("origin")
	if err := client.post("/v1/apps/disconnect", map[string]string{
		"origin": origin,
	}, nil); err != nil {
		return err
	}

	fmt.Printf("%s disconnected\n", origin)
	return nil
}

func issueTokenAction(ctx *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	var reply struct {
		Token string `json:"token"`
	}
	if err := client.post("/v1/tokens", map[string]interface{}{
		"origin":     ctx.String("origin"),
		"ttlSeconds": ctx.Int64("ttl"),
	}, &reply); err != nil {
		return err
	}

	fmt.Println(reply.Token)
	return nil
}
