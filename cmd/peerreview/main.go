package main

import (
	"fmt"
	"os"

	"github.com/nspcc-dev/peerreview-contract/common"
	"github.com/urfave/cli"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func version() string {
	return fmt.Sprintf("v%d.%d.%d", common.Version/1_000_000, common.Version/1_000%1_000, common.Version%1_000)
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "peerreview"
	app.Usage = "Encrypted peer review participant tool"
	app.Version = version()
	app.Commands = []cli.Command{
		{
			Name:   "deploy",
			Usage:  "Deploy or update PeerReview contract",
			Flags:  append(walletFlags(), deployFlags...),
			Action: deployContract,
		},
		{
			Name:   "compile",
			Usage:  "Compile PeerReview contract into NEF and manifest files",
			Flags:  []cli.Flag{contractDirFlag, dirFlag},
			Action: compileContract,
		},
		{
			Name:   "address",
			Usage:  "Print PeerReview contract address",
			Flags:  append(walletFlags(), contractDirFlag, addressFlag),
			Action: printAddress,
		},
		{
			Name:   "submit",
			Usage:  "Submit or update an encrypted performance score",
			Flags:  append(clientFlags(), valueFlag),
			Action: submitScore,
		},
		{
			Name:   "my-score",
			Usage:  "Decrypt your submitted score",
			Flags:  clientFlags(),
			Action: myScore,
		},
		{
			Name:   "average",
			Usage:  "Decrypt the encrypted team average",
			Flags:  clientFlags(),
			Action: average,
		},
		{
			Name:   "total",
			Usage:  "Manager: decrypt the encrypted total score",
			Flags:  clientFlags(),
			Action: total,
		},
		{
			Name:   "stats",
			Usage:  "Display contract statistics and participant information",
			Flags:  append(walletFlags(), addressFlag),
			Action: stats,
		},
		{
			Name:   "dump",
			Usage:  "Dump contract state and storage into the local directory",
			Flags:  []cli.Flag{rpcFlag, addressFlag, labelFlag, dirFlag},
			Action: dumpContract,
		},
	}

	return app
}
