package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/urfave/cli/v2"
)

var (
	rpcFlag = cli.StringFlag{
		Name:  "rpcserver",
		Usage: "vaultgated operator interface address host:port",
		Value: "localhost:9000",
	}
	macaroonsPathFlag = cli.StringFlag{
		Name:  "macaroons_path",
		Usage: "path of the admin macaroon of the operator interface",
		Value: filepath.Join(
			btcutil.AppDataDir("vaultgate", false), "macaroons", "admin.macaroon",
		),
	}
)

var config = cli.Command{
	Name:   "config",
	Usage:  "Print local configuration of the vaultgate CLI",
	Action: configAction,
	Subcommands: []*cli.Command{
		{
			Name:   "set",
			Usage:  "set a <key> <value> in the local state",
			Action: configSetAction,
		},
		{
			Name:   "init",
			Usage:  "initialize the local state with flags",
			Action: configInitAction,
			Flags: []cli.Flag{
				&rpcFlag,
				&macaroonsPathFlag,
			},
		},
	},
}

func configAction(_ *cli.Context) error {
	state, err := getState()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(state))
	for key := range state {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Println(key + ": " + state[key])
	}

	return nil
}

func configInitAction(c *cli.Context) error {
	return setState(map[string]string{
		"rpcserver":      c.String("rpcserver"),
		"macaroons_path": c.String("macaroons_path"),
	})
}

func configSetAction(c *cli.Context) error {
	if c.NArg() < 2 {
		return errors.New("key and value are missing")
	}

	key := c.Args().Get(0)
	value := c.Args().Get(1)

	if err := setState(map[string]string{key: value}); err != nil {
		return err
	}

	fmt.Printf("%s %s has been set\n", key, value)

	return nil
}
