package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
	"github.com/nspcc-dev/peerreview-contract/client"
	"github.com/nspcc-dev/peerreview-contract/contracts"
	"github.com/nspcc-dev/peerreview-contract/deploy"
	"github.com/nspcc-dev/peerreview-contract/dump"
	"github.com/urfave/cli"
)

func deployContract(c *cli.Context) error {
	ctr, err := contracts.Load(c.String("contract"))
	if err != nil {
		return fmt.Errorf("load contract: %w", err)
	}

	prm := deploy.Prm{
		Logger:    newLogger(c),
		Contract:  deploy.CommonDeployPrm{NEF: ctr.NEF, Manifest: ctr.Manifest},
		AccessTTL: c.Int64("ttl"),
	}

	if s := c.String("update"); s != "" {
		addr, err := parseAddress(s)
		if err != nil {
			return err
		}
		prm.Address = &addr
	} else {
		s := c.String("verifier")
		if s == "" {
			return errors.New("missing input verifier key, use --verifier")
		}

		prm.InputVerifier, err = keys.NewPublicKeyFromString(s)
		if err != nil {
			return fmt.Errorf("invalid input verifier key: %w", err)
		}
		if prm.InputVerifier.IsInfinity() {
			return errors.New("invalid input verifier key: infinity point")
		}
	}

	r, err := dial(c)
	if err != nil {
		return err
	}
	defer r.close()

	prm.Blockchain = r.rpc
	prm.Actor = r.actor
	prm.Manager = r.acc.ScriptHash()

	if s := c.String("manager"); s != "" {
		prm.Manager, err = parseAddress(s)
		if err != nil {
			return err
		}
	}

	addr, err := deploy.Deploy(context.Background(), prm)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "PeerReview address: %s (%s)\n", address.Uint160ToString(addr), addr.StringLE())

	return nil
}

// compileContract compiles contract sources and writes NEF and manifest into
// the output directory, so later commands can use them without the compiler.
func compileContract(c *cli.Context) error {
	ctr, err := contracts.Compile(c.String("contract"))
	if err != nil {
		return err
	}

	out := c.String("dir")

	err = os.MkdirAll(out, 0o755)
	if err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	err = contracts.Write(out, ctr)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Contract %s compiled into %s, checksum %d\n", ctr.Manifest.Name, out, ctr.NEF.Checksum)

	return nil
}

// printAddress prints contract address passed explicitly or the one the
// wallet account deploys the contract to.
func printAddress(c *cli.Context) error {
	var addr util.Uint160

	if c.String("address") != "" {
		var err error

		addr, err = contractAddress(c)
		if err != nil {
			return err
		}
	} else {
		acc, err := openAccount(c)
		if err != nil {
			return err
		}

		ctr, err := contracts.Load(c.String("contract"))
		if err != nil {
			return fmt.Errorf("load contract: %w", err)
		}

		addr = ctr.Hash(acc.ScriptHash())
	}

	fmt.Fprintf(c.App.Writer, "PeerReview address: %s (%s)\n", address.Uint160ToString(addr), addr.StringLE())

	return nil
}

func submitScore(c *cli.Context) error {
	score := c.Int("value")
	if err := client.ValidateScore(score); err != nil {
		return err
	}

	return withClient(c, func(ctx context.Context, cl *client.Client) error {
		h, err := cl.Submit(ctx, score)
		fmt.Fprintf(c.App.Writer, "Submitting encrypted score... tx: %s\n", h.StringLE())
		if err != nil {
			return err
		}

		fmt.Fprintln(c.App.Writer, "Transaction confirmed. status=HALT")
		return nil
	})
}

func myScore(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, cl *client.Client) error {
		res, err := cl.MyScore(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.App.Writer, "Encrypted score: %s\n", res.Handle)
		fmt.Fprintf(c.App.Writer, "Clear score    : %d\n", res.Value)
		return nil
	})
}

func average(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, cl *client.Client) error {
		res, err := cl.Average(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.App.Writer, "Encrypted average: %s\n", res.Handle)
		fmt.Fprintf(c.App.Writer, "Clear average    : %d\n", res.Value)
		fmt.Fprintf(c.App.Writer, "Participant count: %d\n", res.Count)
		return nil
	})
}

func total(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, cl *client.Client) error {
		res, err := cl.Total(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.App.Writer, "Encrypted total : %s\n", res.Handle)
		fmt.Fprintf(c.App.Writer, "Clear total     : %d\n", res.Value)
		fmt.Fprintf(c.App.Writer, "Participant cnt : %d\n", res.Count)
		return nil
	})
}

func stats(c *cli.Context) error {
	return withClient(c, func(_ context.Context, cl *client.Client) error {
		st, err := cl.Stats()
		if err != nil {
			return err
		}

		printStats(c, st)
		return nil
	})
}

func printStats(c *cli.Context, st client.Stats) {
	w := c.App.Writer

	fmt.Fprintln(w, "=== EncryptedPeerReview Contract Statistics ===")
	fmt.Fprintf(w, "Contract address: %s\n", address.Uint160ToString(st.Contract))
	fmt.Fprintf(w, "Manager address : %s\n", address.Uint160ToString(st.Manager))
	fmt.Fprintf(w, "Participants    : %d\n", st.Participants)
	fmt.Fprintf(w, "You submitted   : %t\n", st.Submitted)

	if st.Participants == 0 {
		fmt.Fprintln(w, "No participants have submitted scores yet")
		return
	}

	fmt.Fprintf(w, "Encrypted total : %s\n", st.Total)
	fmt.Fprintf(w, "Encrypted avg   : %s\n", st.Average)
}

func withClient(c *cli.Context, f func(context.Context, *client.Client) error) error {
	r, err := dial(c)
	if err != nil {
		return err
	}
	defer r.close()

	cl, err := newClient(c, r)
	if err != nil {
		return err
	}

	return f(context.Background(), cl)
}

func dumpContract(c *cli.Context) error {
	label := c.String("label")
	if label == "" {
		return errors.New("missing blockchain label, use --label")
	}

	hash, err := contractAddress(c)
	if err != nil {
		return err
	}

	dir := c.String("dir")

	err = os.MkdirAll(dir, 0o700)
	if err != nil {
		return fmt.Errorf("create root dir: %w", err)
	}

	r, err := dialReadOnly(c)
	if err != nil {
		return err
	}
	defer r.close()

	id, err := dump.Take(r.rpc, hash, dir, label, "peerreview")
	if err != nil {
		return err
	}

	d, err := dump.Open(dir, id)
	if err != nil {
		return err
	}

	st := d.PeerReview()

	w := c.App.Writer

	fmt.Fprintf(w, "Dump %s saved to %s\n", id, dir)
	fmt.Fprintf(w, "Manager address : %s\n", address.Uint160ToString(st.Manager))
	if st.InputVerifier != nil {
		fmt.Fprintf(w, "Input verifier  : %s\n", hex.EncodeToString(st.InputVerifier.Bytes()))
	}
	fmt.Fprintf(w, "Access TTL      : %d\n", st.AccessTTL)
	fmt.Fprintf(w, "Participants    : %d\n", st.Participants)
	fmt.Fprintf(w, "Encrypted total : %s\n", st.Total)
	for acc, h := range st.Scores {
		fmt.Fprintf(w, "Score of %s: %s\n", address.Uint160ToString(acc), h)
	}
	fmt.Fprintf(w, "Access grants   : %d\n", len(st.Grants))

	return nil
}

// dialReadOnly connects to the RPC server with a throwaway account.
func dialReadOnly(c *cli.Context) (*remote, error) {
	acc, err := wallet.NewAccount()
	if err != nil {
		return nil, fmt.Errorf("generate new Neo account: %w", err)
	}

	return dialAccount(c, acc)
}
