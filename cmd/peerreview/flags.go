package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/actor"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
	"github.com/nspcc-dev/peerreview-contract/client"
	"github.com/nspcc-dev/peerreview-contract/contracts"
	"github.com/nspcc-dev/peerreview-contract/fhe"
	"github.com/nspcc-dev/peerreview-contract/gateway"
	"github.com/nspcc-dev/peerreview-contract/oracle"
	"github.com/nspcc-dev/peerreview-contract/rpc/peerreview"
	"github.com/urfave/cli"
	"go.uber.org/zap"
)

const requestTimeout = 15 * time.Second

var (
	rpcFlag = cli.StringFlag{
		Name:   "rpc, r",
		Usage:  "Neo RPC server endpoint",
		EnvVar: "PEERREVIEW_RPC",
		Value:  "http://localhost:30333",
	}
	walletFlag = cli.StringFlag{
		Name:   "wallet, w",
		Usage:  "Path to the NEP-6 wallet",
		EnvVar: "PEERREVIEW_WALLET",
	}
	accountFlag = cli.StringFlag{
		Name:  "account, a",
		Usage: "Wallet account address (default account if not set)",
	}
	passwordFlag = cli.StringFlag{
		Name:   "password",
		Usage:  "Password of the wallet account",
		EnvVar: "PEERREVIEW_PASSWORD",
	}
	addressFlag = cli.StringFlag{
		Name:   "address",
		Usage:  "PeerReview contract address",
		EnvVar: "PEERREVIEW_ADDRESS",
	}
	gatewayFlag = cli.StringFlag{
		Name:   "gateway",
		Usage:  "Input gateway endpoint",
		EnvVar: "PEERREVIEW_GATEWAY",
		Value:  "http://localhost:8080",
	}
	oracleFlag = cli.StringFlag{
		Name:   "oracle",
		Usage:  "Decryption oracle endpoint",
		EnvVar: "PEERREVIEW_ORACLE",
		Value:  "http://localhost:8081",
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose, v",
		Usage: "Print debug logs to stderr",
	}
	valueFlag = cli.IntFlag{
		Name:  "value",
		Usage: "Score to submit (0-100)",
		Value: -1,
	}
	contractDirFlag = cli.StringFlag{
		Name:  "contract, c",
		Usage: "Directory with contract artifacts or sources",
		Value: contracts.PeerReviewDir,
	}
	labelFlag = cli.StringFlag{
		Name:  "label",
		Usage: "Label of the blockchain environment (e.g. 'testnet')",
	}
	dirFlag = cli.StringFlag{
		Name:  "dir",
		Usage: "Output directory",
		Value: ".",
	}
	deployFlags = []cli.Flag{
		contractDirFlag,
		cli.StringFlag{
			Name:  "manager",
			Usage: "Manager address (wallet account if not set)",
		},
		cli.StringFlag{
			Name:  "verifier",
			Usage: "Hex-encoded compressed public key of the input verifier",
		},
		cli.Int64Flag{
			Name:  "ttl",
			Usage: "Lifetime of decryption grants in blocks (0 for default)",
		},
		cli.StringFlag{
			Name:  "update",
			Usage: "Address of the deployed contract to update",
		},
	}
)

func walletFlags() []cli.Flag {
	return []cli.Flag{rpcFlag, walletFlag, accountFlag, passwordFlag, verboseFlag}
}

func clientFlags() []cli.Flag {
	return append(walletFlags(), addressFlag, gatewayFlag, oracleFlag)
}

func newLogger(c *cli.Context) *zap.Logger {
	if !c.Bool("verbose") {
		return zap.NewNop()
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}

	return log
}

func parseAddress(s string) (util.Uint160, error) {
	h, err := address.StringToUint160(s)
	if err == nil {
		return h, nil
	}

	h, err = util.Uint160DecodeStringLE(s)
	if err != nil {
		return h, fmt.Errorf("invalid address %q", s)
	}

	return h, nil
}

func contractAddress(c *cli.Context) (util.Uint160, error) {
	s := c.String("address")
	if s == "" {
		return util.Uint160{}, errors.New("missing contract address, use --address")
	}

	return parseAddress(s)
}

// openAccount returns unlocked wallet account.
func openAccount(c *cli.Context) (*wallet.Account, error) {
	path := c.String("wallet")
	if path == "" {
		return nil, errors.New("missing wallet, use --wallet")
	}

	w, err := wallet.NewWalletFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("open wallet: %w", err)
	}

	defer w.Close()

	addr := w.GetChangeAddress()
	if s := c.String("account"); s != "" {
		addr, err = address.StringToUint160(s)
		if err != nil {
			return nil, fmt.Errorf("invalid account address: %w", err)
		}
	}

	acc := w.GetAccount(addr)
	if acc == nil {
		return nil, fmt.Errorf("account %s is missing in the wallet", address.Uint160ToString(addr))
	}

	err = acc.Decrypt(c.String("password"), w.Scrypt)
	if err != nil {
		return nil, fmt.Errorf("unlock account: %w", err)
	}

	return acc, nil
}

// remote groups connections to the network services.
type remote struct {
	rpc   *rpcclient.Client
	actor *actor.Actor
	acc   *wallet.Account
}

func dial(c *cli.Context) (*remote, error) {
	acc, err := openAccount(c)
	if err != nil {
		return nil, err
	}

	return dialAccount(c, acc)
}

func dialAccount(c *cli.Context, acc *wallet.Account) (*remote, error) {
	rpc, err := rpcclient.New(context.Background(), c.String("rpc"), rpcclient.Options{
		DialTimeout:    requestTimeout,
		RequestTimeout: requestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("RPC client dial: %w", err)
	}

	act, err := actor.NewSimple(rpc, acc)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("init actor: %w", err)
	}

	return &remote{rpc: rpc, actor: act, acc: acc}, nil
}

func (x *remote) close() {
	x.rpc.Close()
}

func newClient(c *cli.Context, r *remote) (*client.Client, error) {
	hash, err := contractAddress(c)
	if err != nil {
		return nil, err
	}

	params, err := fhe.NewParameters()
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: requestTimeout}

	return client.New(client.Prm{
		Logger:   newLogger(c),
		Hash:     hash,
		Contract: peerreview.New(r.actor, hash),
		Waiter:   r.actor,
		Account:  r.acc,
		Gateway:  gateway.NewClient(c.String("gateway"), httpClient),
		Oracle:   oracle.NewClient(c.String("oracle"), httpClient),
		Params:   params,
	}), nil
}
