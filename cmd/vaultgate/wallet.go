package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"
)

var pinFlag = cli.StringFlag{
	Name:     "pin",
	Usage:    "the PIN protecting the vault",
	Required: true,
}

var genseed = cli.Command{
	Name:   "genseed",
	Usage:  "generate a mnemonic seed",
	Action: genSeedAction,
}

var initwallet = cli.Command{
	Name:  "init",
	Usage: "initialize the vault with a mnemonic seed",
	Flags: []cli.Flag{
		&pinFlag,
		&cli.StringFlag{
			Name:     "seed",
			Usage:    "the mnemonic seed of the vault",
			Required: true,
		},
		&cli.BoolFlag{
			Name:  "restore",
			Value: false,
			Usage: "whether the seed is an existing one being restored",
		},
	},
	Action: initWalletAction,
}

var unlockwallet = cli.Command{
	Name:   "unlock",
	Usage:  "unlock the vault",
	Flags:  []cli.Flag{&pinFlag},
	Action: unlockWalletAction,
}

var lockwallet = cli.Command{
	Name:   "lock",
	Usage:  "lock the vault and wipe the secrets from memory",
	Action: lockWalletAction,
}

var changepin = cli.Command{
	Name:  "changepin",
	Usage: "change the PIN of the vault, the vault is locked afterwards",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "current_pin",
			Usage:    "the current PIN",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "new_pin",
			Usage:    "the new PIN",
			Required: true,
		},
	},
	Action: changePinAction,
}

var status = cli.Command{
	Name:   "status",
	Usage:  "get the lock status of the vault",
	Action: statusAction,
}

var info = cli.Command{
	Name:   "info",
	Usage:  "get the accounts and settings of the vault",
	Action: infoAction,
}

var account = cli.Command{
	Name:  "account",
	Usage: "select the account exposed to connected apps",
	Flags: []cli.Flag{
		&cli.UintFlag{
			Name:     "index",
			Usage:    "the account index",
			Required: true,
		},
	},
	Action: accountAction,
}

var network = cli.Command{
	Name:  "network",
	Usage: "switch the network of the vault",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "name",
			Usage:    "the network name: mainnet or testnet",
			Required: true,
		},
	},
	Action: networkAction,
}

func genSeedAction(_ *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	var reply struct {
		Mnemonic []string `json:"mnemonic"`
	}
	if err := client.post("/v1/wallet/genseed", nil, &reply); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(strings.Join(reply.Mnemonic, " "))
	return nil
}

func initWalletAction(ctx *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	path := "/v1/wallet/init"
	if ctx.Bool("restore") {
		path = "/v1/wallet/restore"
	}
	if err := client.post(path, map[string]string{
		"mnemonic": ctx.String("seed"),
		"pin":      ctx.String("pin"),
	}, nil); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Vault is initialized. You can unlock")
	return nil
}

func unlockWalletAction(ctx *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	if err := client.post("/v1/wallet/unlock", map[string]string{
		"pin": ctx.String("pin"),
	}, nil); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Vault is unlocked")
	return nil
}

func lockWalletAction(_ *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	if err := client.post("/v1/wallet/lock", nil, nil); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Vault is locked")
	return nil
}

func changePinAction(ctx *cli.Context) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	if err := client.post("/v1/wallet/changepin", map[string]string{
		"oldPin": ctx.String("current_pin"),
		"newPin": ctx.String("new_pin"),
	}, nil); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("PIN changed. Unlock the vault with the new one")
	return nil
}

func statusAction(_ *cli.Context) error {
	return getAndPrint("/v1/wallet/status")
}

func infoAction(_ *cli.Context) error {
	return getAndPrint("/v1/wallet/info")
}

func accountAction(ctx *cli.Context) error {
	return postAndPrint("/v1/wallet/account", map[string]uint{
		"index": ctx.Uint("index"),
	})
}

func networkAction(ctx *cli.Context) error {
	return postAndPrint("/v1/wallet/network", map[string]string{
		"network": ctx.String("name"),
	})
}

func getAndPrint(path string) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	var reply map[string]interface{}
	if err := client.get(path, &reply); err != nil {
		return err
	}
	printRespJSON(reply)
	return nil
}

func postAndPrint(path string, body interface{}) error {
	client, err := getOperatorClient()
	if err != nil {
		return err
	}

	var reply map[string]interface{}
	if err := client.post(path, body, &reply); err != nil {
		return err
	}
	printRespJSON(reply)
	return nil
}
