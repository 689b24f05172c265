package dump

import (
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/neorpc/result"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/peerreview-contract/fhe"
)

// Source provides blockchain data required to dump the contract. It is
// implemented by rpcclient.Client.
type Source interface {
	GetBlockCount() (uint32, error)
	GetContractStateByHash(util.Uint160) (*state.Contract, error)
	GetStateRootByHeight(uint32) (*state.MPTRoot, error)
	FindStates(stateroot util.Uint256, historicalContractHash util.Uint160, historicalPrefix []byte,
		start []byte, maxCount *int) (result.FindStates, error)
}

// Take pulls and decodes storage of the PeerReview contract deployed at the
// given address and dumps it into the directory. Name is used in errors only.
// The dump is labeled with the given label and the penult block of the chain,
// the latest state root may not be available yet.
func Take(src Source, contract util.Uint160, dir, label, name string) (ID, error) {
	var id ID

	nLatestBlock, err := src.GetBlockCount()
	if err != nil {
		return id, fmt.Errorf("get number of the latest block: %w", err)
	}

	if nLatestBlock < 2 {
		return id, fmt.Errorf("too short chain of %d blocks", nLatestBlock)
	}

	id = ID{Label: label, Block: nLatestBlock - 1}

	st, err := src.GetContractStateByHash(contract)
	if err != nil {
		return id, fmt.Errorf("get state of the requested contract by hash '%s': %w", contract.StringLE(), err)
	}

	var (
		pr = PeerReview{Scores: make(map[util.Uint160]fhe.Handle)}
		n  int
	)

	err = iterateContractStorage(src, id.Block, contract, func(key, value []byte) error {
		n++
		if err := pr.decodeItem(key, value); err != nil {
			return fmt.Errorf("decode storage item with key %x: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return id, fmt.Errorf("iterate '%s' contract storage: %w", name, err)
	}

	if n == 0 {
		return id, fmt.Errorf("storage of '%s' contract is empty", name)
	}

	d, err := NewCreator(dir, id)
	if err != nil {
		return id, fmt.Errorf("init local dumper: %w", err)
	}

	defer d.Close()

	err = d.Write(*st, pr)
	if err != nil {
		return id, fmt.Errorf("write dump: %w", err)
	}

	return id, nil
}

// iterateContractStorage iterates over all storage items of the Neo smart
// contract referenced by given address at the given height and passes them
// into f. iterateContractStorage breaks on any f's error and returns it.
func iterateContractStorage(src Source, height uint32, contract util.Uint160, f func(key, value []byte) error) error {
	stateRoot, err := src.GetStateRootByHeight(height)
	if err != nil {
		return fmt.Errorf("get state root at block #%d: %w", height, err)
	}

	var start []byte

	for {
		res, err := src.FindStates(stateRoot.Root, contract, nil, start, nil)
		if err != nil {
			return fmt.Errorf("get historical storage items of the requested contract at state root '%s': %w", stateRoot.Root, err)
		}

		for i := range res.Results {
			err = f(res.Results[i].Key, res.Results[i].Value)
			if err != nil {
				return err
			}
		}

		if !res.Truncated || len(res.Results) == 0 {
			return nil
		}

		start = res.Results[len(res.Results)-1].Key
	}
}
