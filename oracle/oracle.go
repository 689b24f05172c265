/*
Package oracle implements decryption service of the PeerReview system.

A user asks the oracle to decrypt a handle by presenting a signed request.
The oracle recovers user account from the public key, checks that the
contract granted this account access to the handle and returns the clear
value to the requester only.
*/
package oracle

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/peerreview-contract/fhe"
	"github.com/nspcc-dev/peerreview-contract/rpc/peerreview"
	"github.com/nspcc-dev/peerreview-contract/store"
	"go.uber.org/zap"
)

var (
	// ErrAccessDenied is returned when the requester has no valid grant for
	// the handle.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotReady is returned when the ciphertext of the handle has not been
	// computed yet.
	ErrNotReady = errors.New("ciphertext is not ready")

	// ErrInvalidRequest is returned for malformed or expired requests.
	ErrInvalidRequest = errors.New("invalid request")
)

const requestPrefix = "decrypt"

// MaxRequestTTL limits how far in the future request expiration may be set,
// signed requests are replayable until they expire.
const MaxRequestTTL = 5 * time.Minute

// Request is a signed decryption request.
type Request struct {
	Contract util.Uint160
	Handle   fhe.Handle
	Key      *keys.PublicKey
	// Unix time in seconds after which the request is not accepted.
	Expires   int64
	Signature []byte
}

// RequestMessage returns message signed by the requester.
func RequestMessage(contract util.Uint160, h fhe.Handle, expires int64) []byte {
	msg := make([]byte, 0, len(requestPrefix)+fhe.HandleSize+util.Uint160Size+8)
	msg = append(msg, requestPrefix...)
	msg = append(msg, h[:]...)
	msg = append(msg, contract.BytesBE()...)
	msg = binary.BigEndian.AppendUint64(msg, uint64(expires))
	return msg
}

// NewRequest creates request signed by the key.
func NewRequest(key *keys.PrivateKey, contract util.Uint160, h fhe.Handle, ttl time.Duration) Request {
	expires := time.Now().Add(ttl).Unix()
	return Request{
		Contract:  contract,
		Handle:    h,
		Key:       key.PublicKey(),
		Expires:   expires,
		Signature: key.Sign(RequestMessage(contract, h, expires)),
	}
}

// ACL checks decryption permissions.
type ACL interface {
	IsAllowed(contract util.Uint160, handle []byte, account util.Uint160) (bool, error)
}

// ContractACL is an ACL backed by the contract isAllowed method.
type ContractACL struct {
	inv peerreview.Invoker
}

// NewContractACL creates ContractACL calling contracts with the invoker.
func NewContractACL(inv peerreview.Invoker) *ContractACL {
	return &ContractACL{inv: inv}
}

// IsAllowed implements ACL.
func (a *ContractACL) IsAllowed(contract util.Uint160, handle []byte, account util.Uint160) (bool, error) {
	return peerreview.NewReader(a.inv, contract).IsAllowed(handle, account)
}

// Prm groups Oracle parameters.
type Prm struct {
	Logger    *zap.Logger
	ACL       ACL
	Store     store.Store
	Decryptor *fhe.Decryptor

	// Optional, time.Now is used if not set.
	Clock func() time.Time
}

// Oracle decrypts ciphertexts for permitted accounts.
type Oracle struct {
	log   *zap.Logger
	acl   ACL
	store store.Store
	dec   *fhe.Decryptor
	clock func() time.Time
}

// New creates Oracle.
func New(prm Prm) *Oracle {
	log := prm.Logger
	if log == nil {
		log = zap.NewNop()
	}

	clock := prm.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Oracle{
		log:   log,
		acl:   prm.ACL,
		store: prm.Store,
		dec:   prm.Decryptor,
		clock: clock,
	}
}

// Decrypt verifies request and returns clear value of the handle. Each call
// is tagged with a unique ID returned along with the result.
func (o *Oracle) Decrypt(req Request) (uuid.UUID, uint64, error) {
	id := uuid.New()
	log := o.log.With(zap.Stringer("request", id), zap.Stringer("handle", req.Handle))

	v, err := o.decrypt(req, log)
	if err != nil {
		log.Info("decryption rejected", zap.Error(err))
		return id, 0, err
	}

	log.Info("decryption completed")

	return id, v, nil
}

func (o *Oracle) decrypt(req Request, log *zap.Logger) (uint64, error) {
	if req.Key == nil {
		return 0, fmt.Errorf("%w: missing public key", ErrInvalidRequest)
	}

	now := o.clock()
	if now.Unix() > req.Expires {
		return 0, fmt.Errorf("%w: request expired", ErrInvalidRequest)
	}

	if req.Expires > now.Add(MaxRequestTTL).Unix() {
		return 0, fmt.Errorf("%w: expiration is too far in the future", ErrInvalidRequest)
	}

	msg := RequestMessage(req.Contract, req.Handle, req.Expires)
	if !req.Key.Verify(req.Signature, hash.Sha256(msg).BytesBE()) {
		return 0, fmt.Errorf("%w: wrong signature", ErrInvalidRequest)
	}

	account := req.Key.GetScriptHash()

	ok, err := o.acl.IsAllowed(req.Contract, req.Handle.Bytes(), account)
	if err != nil {
		return 0, fmt.Errorf("check access: %w", err)
	}

	if !ok {
		return 0, fmt.Errorf("%w: account %s", ErrAccessDenied, account.StringLE())
	}

	r, err := o.store.Get(req.Handle)
	if errors.Is(err, store.ErrNotFound) {
		return 0, ErrNotReady
	} else if err != nil {
		return 0, fmt.Errorf("read ciphertext: %w", err)
	}

	log.Debug("decrypting", zap.Stringer("account", account))

	v, err := o.dec.Decrypt(r)
	if err != nil {
		return 0, fmt.Errorf("decrypt: %w", err)
	}

	return v, nil
}
