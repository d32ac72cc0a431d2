package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var idFlag = cli.StringFlag{
	Name:     "id",
	Usage:    "the id of the approval request",
	Required: true,
}

var approvals = cli.Command{
	Name:   "approvals",
	Usage:  "list the requests waiting for a decision",
	Action: listApprovalsAction,
	Subcommands: []*cli.Command{
		{
			Name:   "approve",
			Usage:  "approve a pending request",
			Flags:  []cli.Flag{&idFlag},
			Action: approveAction,
		},
		{
			Name:  "reject",
			Usage: "reject a pending request",
			Flags: []cli.Flag{
				&idFlag,
				&cli.StringFlag{
					Name:  "reason",
					Usage: "optional reason returned to the app",
				},
			},
			Action: rejectAction,
		},
	},
}

func listApprovalsAction(_ *cli.Context) error {
	return getAndPrint("/v1/approvals")
}

func approveAction(ctx *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	id := ctx.String("id")
	if err := client.post("/v1/approvals/approve", map[string]string{
		"id": id,
	}, nil); err != nil {
		return err
	}

	fmt.Printf("request %s approved\n", id)
	return nil
}

func rejectAction(ctx *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	id := ctx.String("id")
	if err := client.post("/v1/approvals/reject", map[string]string{
		"id":     id,
		"reason": ctx.String("reason"),
	}, nil); err != nil {
		return err
	}

	fmt.Printf("request %s rejected\n", id)
	return nil
}
