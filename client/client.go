/*
Package client provides high-level operations of the PeerReview participants:
encrypted score submission and decryption of own score and aggregates.

Each operation mirrors a CLI command: values are encrypted locally under the
network FHE key, registered in the gateway, submitted to the contract, and
decrypted through the oracle after the contract grants access.
*/
package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/vmstate"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
	"github.com/nspcc-dev/peerreview-contract/fhe"
	"github.com/nspcc-dev/peerreview-contract/gateway"
	"github.com/nspcc-dev/peerreview-contract/oracle"
	"github.com/nspcc-dev/peerreview-contract/rpc/peerreview"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
	"go.uber.org/zap"
)

// Score bounds.
const (
	MinScore = 0
	MaxScore = 100
)

// ErrInvalidScore is returned for scores out of [MinScore, MaxScore] range.
var ErrInvalidScore = errors.New("Argument --value must be an integer between 0 and 100") //nolint:stylecheck

// ValidateScore checks that the score can be submitted.
func ValidateScore(score int) error {
	if score < MinScore || score > MaxScore {
		return ErrInvalidScore
	}
	return nil
}

// Contract is a PeerReview contract interface used by the Client. It is
// implemented by peerreview.Contract.
type Contract interface {
	SubmitScore(reviewer util.Uint160, scoreHandle []byte, scoreProof []byte) (util.Uint256, uint32, error)
	RequestMyScoreAccess(reviewer util.Uint160) (util.Uint256, uint32, error)
	RequestAverageAccess(requester util.Uint160) (util.Uint256, uint32, error)
	RequestTotalAccess(requester util.Uint160) (util.Uint256, uint32, error)

	GetMyScore(reviewer util.Uint160) ([]byte, error)
	GetEncryptedAverage() (*peerreview.PeerreviewAggregate, error)
	GetEncryptedTotal() (*peerreview.PeerreviewAggregate, error)
	HasSubmitted(account util.Uint160) (bool, error)
	ParticipantCount() (*big.Int, error)
	Manager() (util.Uint160, error)
}

// Waiter waits for transaction acceptance. It is implemented by actor.Actor.
type Waiter interface {
	Wait(h util.Uint256, vub uint32, err error) (*state.AppExecResult, error)
}

// Gateway registers encrypted inputs. It is implemented by gateway.Client.
type Gateway interface {
	Register(ctx context.Context, contract, user util.Uint160, ciphertext []byte) (gateway.Input, error)
	PublicKey(ctx context.Context) ([]byte, error)
}

// Oracle decrypts permitted handles. It is implemented by oracle.Client.
type Oracle interface {
	Decrypt(ctx context.Context, req oracle.Request) (uint64, error)
}

// Prm groups Client parameters.
type Prm struct {
	Logger *zap.Logger

	// Contract address and its RPC wrapper.
	Hash     util.Uint160
	Contract Contract
	Waiter   Waiter

	// Unlocked account of the participant.
	Account *wallet.Account

	Gateway Gateway
	Oracle  Oracle

	// Network FHE parameters.
	Params bgv.Parameters

	// Interval between decryption attempts while the ciphertext is being
	// computed. Defaults to one second.
	PollInterval time.Duration
}

// Client performs PeerReview operations on behalf of a single account.
type Client struct {
	log      *zap.Logger
	hash     util.Uint160
	contract Contract
	waiter   Waiter
	acc      *wallet.Account
	gateway  Gateway
	oracle   Oracle
	params   bgv.Parameters
	poll     time.Duration

	// network public key is fetched on first successful use
	encMtx sync.Mutex
	enc    *fhe.Encryptor
}

// New creates Client.
func New(prm Prm) *Client {
	log := prm.Logger
	if log == nil {
		log = zap.NewNop()
	}

	poll := prm.PollInterval
	if poll <= 0 {
		poll = time.Second
	}

	return &Client{
		log:      log,
		hash:     prm.Hash,
		contract: prm.Contract,
		waiter:   prm.Waiter,
		acc:      prm.Account,
		gateway:  prm.Gateway,
		oracle:   prm.Oracle,
		params:   prm.Params,
		poll:     poll,
	}
}

// Address returns script hash of the client account.
func (c *Client) Address() util.Uint160 {
	return c.acc.ScriptHash()
}

// Submit encrypts and submits the score, replacing the previous one if any.
func (c *Client) Submit(ctx context.Context, score int) (util.Uint256, error) {
	if err := ValidateScore(score); err != nil {
		return util.Uint256{}, err
	}

	enc, err := c.encryptor(ctx)
	if err != nil {
		return util.Uint256{}, err
	}

	ct, err := enc.Encrypt(uint64(score))
	if err != nil {
		return util.Uint256{}, fmt.Errorf("encrypt score: %w", err)
	}

	in, err := c.gateway.Register(ctx, c.hash, c.Address(), ct)
	if err != nil {
		return util.Uint256{}, fmt.Errorf("register encrypted input: %w", err)
	}

	c.log.Info("submitting encrypted score", zap.Stringer("handle", in.Handle))

	h, err := c.wait(c.contract.SubmitScore(c.Address(), in.Handle.Bytes(), in.Proof))
	if err != nil {
		return h, fmt.Errorf("submit score: %w", err)
	}

	return h, nil
}

// Decrypted is a decrypted value along with its handle.
type Decrypted struct {
	Handle fhe.Handle
	Value  uint64
}

// AggregateValue is a decrypted aggregate.
type AggregateValue struct {
	Decrypted
	Count int64
}

// MyScore requests access to the submitted score and decrypts it.
func (c *Client) MyScore(ctx context.Context) (Decrypted, error) {
	if _, err := c.wait(c.contract.RequestMyScoreAccess(c.Address())); err != nil {
		return Decrypted{}, fmt.Errorf("request access: %w", err)
	}

	b, err := c.contract.GetMyScore(c.Address())
	if err != nil {
		return Decrypted{}, fmt.Errorf("get score handle: %w", err)
	}

	return c.decrypt(ctx, b)
}

// Average requests access to the current average and decrypts it.
func (c *Client) Average(ctx context.Context) (AggregateValue, error) {
	if _, err := c.wait(c.contract.RequestAverageAccess(c.Address())); err != nil {
		return AggregateValue{}, fmt.Errorf("request access: %w", err)
	}

	agg, err := c.contract.GetEncryptedAverage()
	if err != nil {
		return AggregateValue{}, fmt.Errorf("get average handle: %w", err)
	}

	return c.decryptAggregate(ctx, agg)
}

// Total requests access to the current total and decrypts it. Only manager
// is permitted to do this.
func (c *Client) Total(ctx context.Context) (AggregateValue, error) {
	if _, err := c.wait(c.contract.RequestTotalAccess(c.Address())); err != nil {
		return AggregateValue{}, fmt.Errorf("request access: %w", err)
	}

	agg, err := c.contract.GetEncryptedTotal()
	if err != nil {
		return AggregateValue{}, fmt.Errorf("get total handle: %w", err)
	}

	return c.decryptAggregate(ctx, agg)
}

// Stats describes public contract state.
type Stats struct {
	Contract     util.Uint160
	Manager      util.Uint160
	Participants int64
	Submitted    bool
	// Zero when there are no participants.
	Total   fhe.Handle
	Average fhe.Handle
}

// Stats reads public contract state without sending transactions.
func (c *Client) Stats() (Stats, error) {
	res := Stats{Contract: c.hash}

	var err error

	res.Manager, err = c.contract.Manager()
	if err != nil {
		return res, fmt.Errorf("get manager: %w", err)
	}

	n, err := c.contract.ParticipantCount()
	if err != nil {
		return res, fmt.Errorf("get participant count: %w", err)
	}
	res.Participants = n.Int64()

	res.Submitted, err = c.contract.HasSubmitted(c.Address())
	if err != nil {
		return res, fmt.Errorf("get submission status: %w", err)
	}

	if res.Participants == 0 {
		return res, nil
	}

	total, err := c.contract.GetEncryptedTotal()
	if err != nil {
		return res, fmt.Errorf("get total handle: %w", err)
	}

	avg, err := c.contract.GetEncryptedAverage()
	if err != nil {
		return res, fmt.Errorf("get average handle: %w", err)
	}

	if res.Total, err = fhe.DecodeHandle(total.Handle); err != nil {
		return res, err
	}

	if res.Average, err = fhe.DecodeHandle(avg.Handle); err != nil {
		return res, err
	}

	return res, nil
}

func (c *Client) decryptAggregate(ctx context.Context, agg *peerreview.PeerreviewAggregate) (AggregateValue, error) {
	d, err := c.decrypt(ctx, agg.Handle)
	if err != nil {
		return AggregateValue{}, err
	}

	return AggregateValue{Decrypted: d, Count: agg.Count.Int64()}, nil
}

// decrypt polls the oracle until the ciphertext is computed.
func (c *Client) decrypt(ctx context.Context, b []byte) (Decrypted, error) {
	h, err := fhe.DecodeHandle(b)
	if err != nil {
		return Decrypted{}, err
	}

	key := c.acc.PrivateKey()

	for {
		v, err := c.oracle.Decrypt(ctx, oracle.NewRequest(key, c.hash, h, time.Minute))
		if err == nil {
			return Decrypted{Handle: h, Value: v}, nil
		}

		if !errors.Is(err, oracle.ErrNotReady) {
			return Decrypted{}, fmt.Errorf("decrypt %s: %w", h, err)
		}

		c.log.Debug("ciphertext is not ready yet, waiting", zap.Stringer("handle", h))

		select {
		case <-ctx.Done():
			return Decrypted{}, fmt.Errorf("decrypt %s: %w", h, ctx.Err())
		case <-time.After(c.poll):
		}
	}
}

func (c *Client) wait(h util.Uint256, vub uint32, err error) (util.Uint256, error) {
	res, err := c.waiter.Wait(h, vub, err)
	if err != nil {
		return h, err
	}

	if res.VMState != vmstate.Halt {
		return h, fmt.Errorf("transaction %s failed: %s", h.StringLE(), res.FaultException)
	}

	c.log.Debug("transaction accepted", zap.Stringer("tx", h))

	return h, nil
}

func (c *Client) encryptor(ctx context.Context) (*fhe.Encryptor, error) {
	c.encMtx.Lock()
	defer c.encMtx.Unlock()

	if c.enc != nil {
		return c.enc, nil
	}

	data, err := c.gateway.PublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("get network public key: %w", err)
	}

	pk, err := fhe.UnmarshalPublicKey(c.params, data)
	if err != nil {
		return nil, err
	}

	c.enc = fhe.NewEncryptor(c.params, pk)

	return c.enc, nil
}
