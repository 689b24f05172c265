/*
Package deploy provides deployment procedure of the PeerReview contract.
*/
package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/management"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract/manifest"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract/nef"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/vmstate"
	"github.com/nspcc-dev/peerreview-contract/rpc/peerreview"
	"go.uber.org/zap"
)

// Blockchain groups services provided by particular Neo blockchain network
// required for deployment.
type Blockchain interface {
	// GetContractStateByHash returns network state of the smart contract by its
	// address. Nil state or error is returned for missing contracts.
	GetContractStateByHash(util.Uint160) (*state.Contract, error)
}

// Actor composes, signs and sends transactions on behalf of the local
// account. It is implemented by actor.Actor.
type Actor interface {
	peerreview.Actor

	Sender() util.Uint160
	Wait(h util.Uint256, vub uint32, err error) (*state.AppExecResult, error)
}

// CommonDeployPrm groups common deployment parameters of the smart contract.
type CommonDeployPrm struct {
	NEF      nef.File
	Manifest manifest.Manifest
}

// Prm groups parameters of the deployment procedure.
type Prm struct {
	// Writes progress into the log.
	Logger *zap.Logger

	Blockchain Blockchain

	// Transaction sender. Fresh contract address depends on its account.
	// Update must be signed by the committee.
	Actor Actor

	Contract CommonDeployPrm

	// Address of the already deployed contract to update. If not set, new
	// contract is deployed unless it already exists.
	Address *util.Uint160

	// Contract deployment data.
	Manager       util.Uint160
	InputVerifier *keys.PublicKey
	AccessTTL     int64
}

// Deploy makes the contract available on the chain and returns its address.
//
// Without Prm.Address, Deploy calculates contract address from the sender,
// NEF and manifest, and deploys the contract if it is missing. With
// Prm.Address, the contract located there is updated unless its executable
// is already the same.
func Deploy(ctx context.Context, prm Prm) (util.Uint160, error) {
	log := prm.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if prm.Address != nil {
		return *prm.Address, update(ctx, log, prm)
	}

	addr := state.CreateContractHash(prm.Actor.Sender(), prm.Contract.NEF.Checksum, prm.Contract.Manifest.Name)
	log = log.With(zap.Stringer("address", addr))

	st, err := prm.Blockchain.GetContractStateByHash(addr)
	if err == nil && st != nil {
		log.Info("contract is already deployed, skip")
		return addr, nil
	}

	if prm.InputVerifier == nil {
		return addr, errors.New("missing input verifier key")
	}

	nefBytes, manifestBytes, err := encodeContract(prm.Contract)
	if err != nil {
		return addr, err
	}

	if err = ctx.Err(); err != nil {
		return addr, err
	}

	log.Info("deploying contract...")

	h, vub, err := prm.Actor.SendCall(management.Hash, "deploy", nefBytes, manifestBytes,
		[]any{prm.Manager, prm.InputVerifier.Bytes(), prm.AccessTTL})
	err = wait(prm.Actor, h, vub, err)
	if err != nil {
		return addr, fmt.Errorf("deploy contract: %w", err)
	}

	log.Info("contract successfully deployed")

	return addr, nil
}

func update(ctx context.Context, log *zap.Logger, prm Prm) error {
	addr := *prm.Address
	log = log.With(zap.Stringer("address", addr))

	st, err := prm.Blockchain.GetContractStateByHash(addr)
	if err != nil {
		return fmt.Errorf("get state of the contract to update: %w", err)
	}

	if st == nil {
		return fmt.Errorf("contract %s is missing", addr.StringLE())
	}

	if st.NEF.Checksum == prm.Contract.NEF.Checksum {
		log.Info("contract executable is up-to-date, skip")
		return nil
	}

	nefBytes, manifestBytes, err := encodeContract(prm.Contract)
	if err != nil {
		return err
	}

	if err = ctx.Err(); err != nil {
		return err
	}

	log.Info("updating contract...")

	h, vub, err := peerreview.New(prm.Actor, addr).Update(nefBytes, manifestBytes, nil)
	err = wait(prm.Actor, h, vub, err)
	if err != nil {
		return fmt.Errorf("update contract: %w", err)
	}

	log.Info("contract successfully updated")

	return nil
}

func encodeContract(c CommonDeployPrm) ([]byte, []byte, error) {
	nefBytes, err := c.NEF.Bytes()
	if err != nil {
		return nil, nil, fmt.Errorf("encode NEF: %w", err)
	}

	manifestBytes, err := json.Marshal(c.Manifest)
	if err != nil {
		return nil, nil, fmt.Errorf("encode manifest: %w", err)
	}

	return nefBytes, manifestBytes, nil
}

func wait(a Actor, h util.Uint256, vub uint32, err error) error {
	res, err := a.Wait(h, vub, err)
	if err != nil {
		return err
	}

	if res.VMState != vmstate.Halt {
		return fmt.Errorf("transaction %s failed: %s", h.StringLE(), res.FaultException)
	}

	return nil
}
