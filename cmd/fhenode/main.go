package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nspcc-dev/peerreview-contract/config"
	"github.com/nspcc-dev/peerreview-contract/fhe"
	"github.com/urfave/cli"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "fhenode"
	app.Usage = "FHE node of the encrypted peer review network: input gateway, coprocessor and decryption oracle"
	app.Commands = []cli.Command{
		{
			Name:  "keygen",
			Usage: "Generate network FHE key pair",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "public", Usage: "Output public key file", Value: "fhe.pub"},
				cli.StringFlag{Name: "secret", Usage: "Output secret key file", Value: "fhe.sec"},
			},
			Action: keygen,
		},
		{
			Name:  "run",
			Usage: "Run the node",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "config, c", Usage: "Path to the YAML configuration file", Value: "config.yml"},
			},
			Action: run,
		},
	}

	return app
}

func keygen(c *cli.Context) error {
	pub, sec := c.String("public"), c.String("secret")
	if pub == "" || sec == "" {
		return errors.New("missing key file paths")
	}

	params, err := fhe.NewParameters()
	if err != nil {
		return err
	}

	ks := fhe.GenerateKeySet(params)

	err = ks.WriteFiles(pub, sec)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "FHE public key: %s\nFHE secret key: %s\n", pub, sec)

	return nil
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	log, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	n, err := newNode(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer n.close()

	err = n.run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}

	return err
}
