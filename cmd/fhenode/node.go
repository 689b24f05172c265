package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/invoker"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
	"github.com/nspcc-dev/peerreview-contract/config"
	"github.com/nspcc-dev/peerreview-contract/coprocessor"
	"github.com/nspcc-dev/peerreview-contract/fhe"
	"github.com/nspcc-dev/peerreview-contract/gateway"
	"github.com/nspcc-dev/peerreview-contract/oracle"
	"github.com/nspcc-dev/peerreview-contract/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type node struct {
	log *zap.Logger

	ws    *rpcclient.WSClient
	store *store.Bolt

	coprocessor *coprocessor.Coprocessor
	startBlock  uint32
	servers     []*http.Server
}

func newNode(ctx context.Context, cfg *config.Config, log *zap.Logger) (*node, error) {
	contract, err := cfg.ContractHash()
	if err != nil {
		return nil, err
	}

	params, err := fhe.NewParameters()
	if err != nil {
		return nil, err
	}

	ks, err := fhe.ReadKeySet(params, cfg.Keys.Public, cfg.Keys.Secret)
	if err != nil {
		return nil, err
	}

	pub, err := ks.MarshalPublicKey()
	if err != nil {
		return nil, err
	}

	st, err := store.OpenBolt(cfg.Store.Path)
	if err != nil {
		return nil, err
	}

	n := &node{log: log, store: st, startBlock: cfg.Store.StartBlock}

	n.ws, err = rpcclient.NewWS(ctx, cfg.RPC.Endpoint, rpcclient.WSOptions{
		Options: rpcclient.Options{
			DialTimeout:    cfg.RPC.DialTimeout,
			RequestTimeout: cfg.RPC.DialTimeout,
		},
	})
	if err != nil {
		n.close()
		return nil, fmt.Errorf("RPC client dial: %w", err)
	}

	err = n.ws.Init()
	if err != nil {
		n.close()
		return nil, fmt.Errorf("init RPC client: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	n.coprocessor = coprocessor.New(coprocessor.Prm{
		Logger:    log.With(zap.String("component", "coprocessor")),
		Contract:  contract,
		Store:     st,
		Evaluator: fhe.NewEvaluator(params, ks.PublicKey),
		Metrics:   coprocessor.NewMetrics(reg),
	})

	if cfg.Gateway.Address != "" {
		key, err := verifierKey(cfg.Verifier)
		if err != nil {
			n.close()
			return nil, err
		}

		gw := gateway.New(gateway.Prm{
			Logger:    log.With(zap.String("component", "gateway")),
			Key:       key,
			Params:    params,
			PublicKey: pub,
			Store:     st,
			OnInput:   func(fhe.Handle) { n.coprocessor.Retry() },
		})

		n.servers = append(n.servers, &http.Server{Addr: cfg.Gateway.Address, Handler: gw.Handler()})
	}

	if cfg.Oracle.Address != "" {
		o := oracle.New(oracle.Prm{
			Logger:    log.With(zap.String("component", "oracle")),
			ACL:       oracle.NewContractACL(invoker.New(n.ws, nil)),
			Store:     st,
			Decryptor: fhe.NewDecryptor(params, ks.SecretKey),
		})

		n.servers = append(n.servers, &http.Server{Addr: cfg.Oracle.Address, Handler: o.Handler()})
	}

	if cfg.Metrics.Address != "" {
		n.servers = append(n.servers, &http.Server{
			Addr:    cfg.Metrics.Address,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		})
	}

	return n, nil
}

// run serves HTTP endpoints and executes FHE operations until the context is
// done or any service fails. All services are stopped on return.
func (n *node) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(n.servers)+1)

	for _, srv := range n.servers {
		srv := srv

		n.log.Info("starting HTTP server", zap.String("address", srv.Addr))

		go func() {
			err := srv.ListenAndServe()
			if !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("HTTP server %s: %w", srv.Addr, err)
			}
		}()
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- n.coprocessor.Listen(ctx, n.ws, n.startBlock)
	}()

	var err error

	select {
	case <-ctx.Done():
		err = ctx.Err()
	case err = <-errCh:
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	for _, srv := range n.servers {
		if e := srv.Shutdown(shutdownCtx); e != nil {
			n.log.Warn("failed to shutdown HTTP server", zap.String("address", srv.Addr), zap.Error(e))
		}
	}

	// coprocessor writes into the store until it returns
	wg.Wait()

	return err
}

func (n *node) close() {
	if n.ws != nil {
		n.ws.Close()
	}

	if err := n.store.Close(); err != nil {
		n.log.Warn("failed to close store", zap.Error(err))
	}
}

func verifierKey(w config.Wallet) (*keys.PrivateKey, error) {
	wlt, err := wallet.NewWalletFromFile(w.Path)
	if err != nil {
		return nil, fmt.Errorf("open verifier wallet: %w", err)
	}
	defer wlt.Close()

	addr, err := address.StringToUint160(w.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid verifier address: %w", err)
	}

	acc := wlt.GetAccount(addr)
	if acc == nil {
		return nil, fmt.Errorf("verifier account %s is missing in the wallet", w.Address)
	}

	err = acc.Decrypt(w.Password, wlt.Scrypt)
	if err != nil {
		return nil, fmt.Errorf("unlock verifier account: %w", err)
	}

	return acc.PrivateKey(), nil
}
