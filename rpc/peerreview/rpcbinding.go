// Package peerreview contains RPC wrappers for PeerReview contract.
package peerreview

import (
	"crypto/elliptic"
	"errors"
	"fmt"
	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/neorpc/result"
	"github.com/nspcc-dev/neo-go/pkg/rpcclient/unwrap"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"math/big"
)

// PeerreviewAggregate is a contract-specific peerreview.Aggregate type used by its methods.
type PeerreviewAggregate struct {
	Handle []byte
	Count *big.Int
}

// ScoreSubmittedEvent represents "ScoreSubmitted" event emitted by the contract.
type ScoreSubmittedEvent struct {
	Reviewer util.Uint160
	Updated bool
}

// DecryptionAccessRequestedEvent represents "DecryptionAccessRequested" event emitted by the contract.
type DecryptionAccessRequestedEvent struct {
	Requester util.Uint160
	Kind *big.Int
}

// FheComputeEvent represents "FheCompute" event emitted by the contract.
type FheComputeEvent struct {
	Op *big.Int
	Lhs []byte
	Rhs []byte
	Result []byte
}

// Invoker is used by ContractReader to call various safe methods.
type Invoker interface {
	Call(contract util.Uint160, operation string, params ...any) (*result.Invoke, error)
}

// Actor is used by Contract to call state-changing methods.
type Actor interface {
	Invoker

	MakeCall(contract util.Uint160, method string, params ...any) (*transaction.Transaction, error)
	MakeRun(script []byte) (*transaction.Transaction, error)
	MakeUnsignedCall(contract util.Uint160, method string, attrs []transaction.Attribute, params ...any) (*transaction.Transaction, error)
	MakeUnsignedRun(script []byte, attrs []transaction.Attribute) (*transaction.Transaction, error)
	SendCall(contract util.Uint160, method string, params ...any) (util.Uint256, uint32, error)
	SendRun(script []byte) (util.Uint256, uint32, error)
}

// ContractReader implements safe contract methods.
type ContractReader struct {
	invoker Invoker
	hash util.Uint160
}

// Contract implements all contract methods.
type Contract struct {
	ContractReader
	actor Actor
	hash util.Uint160
}

// NewReader creates an instance of ContractReader using provided contract hash and the given Invoker.
func NewReader(invoker Invoker, hash util.Uint160) *ContractReader {
	return &ContractReader{invoker, hash}
}

// New creates an instance of Contract using provided contract hash and the given Actor.
func New(actor Actor, hash util.Uint160) *Contract {
	return &Contract{ContractReader{actor, hash}, actor, hash}
}

// AccessTTL invokes `accessTTL` method of contract.
func (c *ContractReader) AccessTTL() (*big.Int, error) {
	return unwrap.BigInt(c.invoker.Call(c.hash, "accessTTL"))
}

// GetEncryptedAverage invokes `getEncryptedAverage` method of contract.
func (c *ContractReader) GetEncryptedAverage() (*PeerreviewAggregate, error) {
	return itemToPeerreviewAggregate(unwrap.Item(c.invoker.Call(c.hash, "getEncryptedAverage")))
}

// GetEncryptedTotal invokes `getEncryptedTotal` method of contract.
func (c *ContractReader) GetEncryptedTotal() (*PeerreviewAggregate, error) {
	return itemToPeerreviewAggregate(unwrap.Item(c.invoker.Call(c.hash, "getEncryptedTotal")))
}

// GetMyScore invokes `getMyScore` method of contract.
func (c *ContractReader) GetMyScore(reviewer util.Uint160) ([]byte, error) {
	return unwrap.Bytes(c.invoker.Call(c.hash, "getMyScore", reviewer))
}

// HasSubmitted invokes `hasSubmitted` method of contract.
func (c *ContractReader) HasSubmitted(account util.Uint160) (bool, error) {
	return unwrap.Bool(c.invoker.Call(c.hash, "hasSubmitted", account))
}

// InputVerifier invokes `inputVerifier` method of contract.
func (c *ContractReader) InputVerifier() (*keys.PublicKey, error) {
	return func (item stackitem.Item, err error) (*keys.PublicKey, error) {
		if err != nil {
			return nil, err
		}
		b, err := item.TryBytes()
		if err != nil {
			return nil, err
		}
		k, err := keys.NewPublicKeyFromBytes(b, elliptic.P256())
		if err != nil {
			return nil, err
		}
		return k, nil
	} (unwrap.Item(c.invoker.Call(c.hash, "inputVerifier")))
}

// IsAllowed invokes `isAllowed` method of contract.
func (c *ContractReader) IsAllowed(handle []byte, account util.Uint160) (bool, error) {
	return unwrap.Bool(c.invoker.Call(c.hash, "isAllowed", handle, account))
}

// Manager invokes `manager` method of contract.
func (c *ContractReader) Manager() (util.Uint160, error) {
	return unwrap.Uint160(c.invoker.Call(c.hash, "manager"))
}

// ParticipantCount invokes `participantCount` method of contract.
func (c *ContractReader) ParticipantCount() (*big.Int, error) {
	return unwrap.BigInt(c.invoker.Call(c.hash, "participantCount"))
}

// ProtocolId invokes `protocolId` method of contract.
func (c *ContractReader) ProtocolId() (*big.Int, error) {
	return unwrap.BigInt(c.invoker.Call(c.hash, "protocolId"))
}

// Version invokes `version` method of contract.
func (c *ContractReader) Version() (*big.Int, error) {
	return unwrap.BigInt(c.invoker.Call(c.hash, "version"))
}

// RequestAverageAccess creates a transaction invoking `requestAverageAccess` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) RequestAverageAccess(requester util.Uint160) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "requestAverageAccess", requester)
}

// RequestAverageAccessTransaction creates a transaction invoking `requestAverageAccess` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) RequestAverageAccessTransaction(requester util.Uint160) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "requestAverageAccess", requester)
}

// RequestAverageAccessUnsigned creates a transaction invoking `requestAverageAccess` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) RequestAverageAccessUnsigned(requester util.Uint160) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "requestAverageAccess", nil, requester)
}

// RequestMyScoreAccess creates a transaction invoking `requestMyScoreAccess` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) RequestMyScoreAccess(reviewer util.Uint160) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "requestMyScoreAccess", reviewer)
}

// RequestMyScoreAccessTransaction creates a transaction invoking `requestMyScoreAccess` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) RequestMyScoreAccessTransaction(reviewer util.Uint160) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "requestMyScoreAccess", reviewer)
}

// RequestMyScoreAccessUnsigned creates a transaction invoking `requestMyScoreAccess` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) RequestMyScoreAccessUnsigned(reviewer util.Uint160) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "requestMyScoreAccess", nil, reviewer)
}

// RequestTotalAccess creates a transaction invoking `requestTotalAccess` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) RequestTotalAccess(requester util.Uint160) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "requestTotalAccess", requester)
}

// RequestTotalAccessTransaction creates a transaction invoking `requestTotalAccess` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) RequestTotalAccessTransaction(requester util.Uint160) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "requestTotalAccess", requester)
}

// RequestTotalAccessUnsigned creates a transaction invoking `requestTotalAccess` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) RequestTotalAccessUnsigned(requester util.Uint160) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "requestTotalAccess", nil, requester)
}

// SetInputVerifier creates a transaction invoking `setInputVerifier` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) SetInputVerifier(key *keys.PublicKey) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "setInputVerifier", key)
}

// SetInputVerifierTransaction creates a transaction invoking `setInputVerifier` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) SetInputVerifierTransaction(key *keys.PublicKey) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "setInputVerifier", key)
}

// SetInputVerifierUnsigned creates a transaction invoking `setInputVerifier` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) SetInputVerifierUnsigned(key *keys.PublicKey) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "setInputVerifier", nil, key)
}

// SubmitScore creates a transaction invoking `submitScore` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) SubmitScore(reviewer util.Uint160, scoreHandle []byte, scoreProof []byte) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "submitScore", reviewer, scoreHandle, scoreProof)
}

// SubmitScoreTransaction creates a transaction invoking `submitScore` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) SubmitScoreTransaction(reviewer util.Uint160, scoreHandle []byte, scoreProof []byte) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "submitScore", reviewer, scoreHandle, scoreProof)
}

// SubmitScoreUnsigned creates a transaction invoking `submitScore` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) SubmitScoreUnsigned(reviewer util.Uint160, scoreHandle []byte, scoreProof []byte) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "submitScore", nil, reviewer, scoreHandle, scoreProof)
}

// Update creates a transaction invoking `update` method of the contract.
// This transaction is signed and immediately sent to the network.
// The values returned are its hash, ValidUntilBlock value and error if any.
func (c *Contract) Update(script []byte, manifest []byte, data any) (util.Uint256, uint32, error) {
	return c.actor.SendCall(c.hash, "update", script, manifest, data)
}

// UpdateTransaction creates a transaction invoking `update` method of the contract.
// This transaction is signed, but not sent to the network, instead it's
// returned to the caller.
func (c *Contract) UpdateTransaction(script []byte, manifest []byte, data any) (*transaction.Transaction, error) {
	return c.actor.MakeCall(c.hash, "update", script, manifest, data)
}

// UpdateUnsigned creates a transaction invoking `update` method of the contract.
// This transaction is not signed, it's simply returned to the caller.
// Any fields of it that do not affect fees can be changed (ValidUntilBlock,
// Nonce), fee values (NetworkFee, SystemFee) can be increased as well.
func (c *Contract) UpdateUnsigned(script []byte, manifest []byte, data any) (*transaction.Transaction, error) {
	return c.actor.MakeUnsignedCall(c.hash, "update", nil, script, manifest, data)
}

// itemToPeerreviewAggregate converts stack item into *PeerreviewAggregate.
func itemToPeerreviewAggregate(item stackitem.Item, err error) (*PeerreviewAggregate, error) {
	if err != nil {
		return nil, err
	}
	var res = new(PeerreviewAggregate)
	err = res.FromStackItem(item)
	return res, err
}

// FromStackItem retrieves fields of PeerreviewAggregate from the given
// [stackitem.Item] or returns an error if it's not possible to do to so.
func (res *PeerreviewAggregate) FromStackItem(item stackitem.Item) error {
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 2 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	res.Handle, err = func (item stackitem.Item) ([]byte, error) {
		if _, ok := item.(stackitem.Null); ok {
			return nil, nil
		}
		return item.TryBytes()
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Handle: %w", err)
	}

	index++
	res.Count, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Count: %w", err)
	}

	return nil
}

// ScoreSubmittedEventsFromApplicationLog retrieves a set of all emitted events
// with "ScoreSubmitted" name from the provided [result.ApplicationLog].
func ScoreSubmittedEventsFromApplicationLog(log *result.ApplicationLog) ([]*ScoreSubmittedEvent, error) {
	if log == nil {
		return nil, errors.New("nil application log")
	}

	var res []*ScoreSubmittedEvent
	for i, ex := range log.Executions {
		for j, e := range ex.Events {
			if e.Name != "ScoreSubmitted" {
				continue
			}
			event := new(ScoreSubmittedEvent)
			err := event.FromStackItem(e.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize ScoreSubmittedEvent from stackitem (execution #%d, event #%d): %w", i, j, err)
			}
			res = append(res, event)
		}
	}

	return res, nil
}

// FromStackItem converts provided [stackitem.Array] to ScoreSubmittedEvent or
// returns an error if it's not possible to do to so.
func (e *ScoreSubmittedEvent) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 2 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	e.Reviewer, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Reviewer: %w", err)
	}

	index++
	e.Updated, err = arr[index].TryBool()
	if err != nil {
		return fmt.Errorf("field Updated: %w", err)
	}

	return nil
}

// DecryptionAccessRequestedEventsFromApplicationLog retrieves a set of all emitted events
// with "DecryptionAccessRequested" name from the provided [result.ApplicationLog].
func DecryptionAccessRequestedEventsFromApplicationLog(log *result.ApplicationLog) ([]*DecryptionAccessRequestedEvent, error) {
	if log == nil {
		return nil, errors.New("nil application log")
	}

	var res []*DecryptionAccessRequestedEvent
	for i, ex := range log.Executions {
		for j, e := range ex.Events {
			if e.Name != "DecryptionAccessRequested" {
				continue
			}
			event := new(DecryptionAccessRequestedEvent)
			err := event.FromStackItem(e.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize DecryptionAccessRequestedEvent from stackitem (execution #%d, event #%d): %w", i, j, err)
			}
			res = append(res, event)
		}
	}

	return res, nil
}

// FromStackItem converts provided [stackitem.Array] to DecryptionAccessRequestedEvent or
// returns an error if it's not possible to do to so.
func (e *DecryptionAccessRequestedEvent) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 2 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	e.Requester, err = func (item stackitem.Item) (util.Uint160, error) {
		b, err := item.TryBytes()
		if err != nil {
			return util.Uint160{}, err
		}
		u, err := util.Uint160DecodeBytesBE(b)
		if err != nil {
			return util.Uint160{}, err
		}
		return u, nil
	} (arr[index])
	if err != nil {
		return fmt.Errorf("field Requester: %w", err)
	}

	index++
	e.Kind, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Kind: %w", err)
	}

	return nil
}

// FheComputeEventsFromApplicationLog retrieves a set of all emitted events
// with "FheCompute" name from the provided [result.ApplicationLog].
func FheComputeEventsFromApplicationLog(log *result.ApplicationLog) ([]*FheComputeEvent, error) {
	if log == nil {
		return nil, errors.New("nil application log")
	}

	var res []*FheComputeEvent
	for i, ex := range log.Executions {
		for j, e := range ex.Events {
			if e.Name != "FheCompute" {
				continue
			}
			event := new(FheComputeEvent)
			err := event.FromStackItem(e.Item)
			if err != nil {
				return nil, fmt.Errorf("failed to deserialize FheComputeEvent from stackitem (execution #%d, event #%d): %w", i, j, err)
			}
			res = append(res, event)
		}
	}

	return res, nil
}

// FromStackItem converts provided [stackitem.Array] to FheComputeEvent or
// returns an error if it's not possible to do to so.
func (e *FheComputeEvent) FromStackItem(item *stackitem.Array) error {
	if item == nil {
		return errors.New("nil item")
	}
	arr, ok := item.Value().([]stackitem.Item)
	if !ok {
		return errors.New("not an array")
	}
	if len(arr) != 4 {
		return errors.New("wrong number of structure elements")
	}

	var (
		index = -1
		err error
	)
	index++
	e.Op, err = arr[index].TryInteger()
	if err != nil {
		return fmt.Errorf("field Op: %w", err)
	}

	index++
	e.Lhs, err = arr[index].TryBytes()
	if err != nil {
		return fmt.Errorf("field Lhs: %w", err)
	}

	index++
	e.Rhs, err = arr[index].TryBytes()
	if err != nil {
		return fmt.Errorf("field Rhs: %w", err)
	}

	index++
	e.Result, err = arr[index].TryBytes()
	if err != nil {
		return fmt.Errorf("field Result: %w", err)
	}

	return nil
}
