/*
Package gateway implements input verifier of the PeerReview system.

Gateway accepts ciphertexts encrypted by the clients under the network FHE
key, checks that they are well-formed, stores them and returns the handle
along with the input proof: verifier signature of the handle bound to the
contract and the submitting user. PeerReview contract accepts the handle
only if the proof is valid for the key set as its input verifier.
*/
package gateway

import (
	"errors"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/peerreview-contract/fhe"
	"github.com/nspcc-dev/peerreview-contract/store"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
	"go.uber.org/zap"
)

// MaxCiphertextSize limits size of the accepted ciphertext.
const MaxCiphertextSize = 1 << 20

// ErrInvalidCiphertext is returned when submitted ciphertext can not be used
// with the network parameters.
var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// Input is the result of the ciphertext registration.
type Input struct {
	Handle fhe.Handle
	Proof  []byte
}

// Prm groups Gateway parameters.
type Prm struct {
	// Writes request processing into the log.
	Logger *zap.Logger

	// Input verifier key, its public part must be set in the contract.
	Key *keys.PrivateKey

	// Network FHE parameters and public key.
	Params    bgv.Parameters
	PublicKey []byte

	// Storage for the registered ciphertexts.
	Store store.Store

	// Optional callback invoked after each stored input.
	OnInput func(fhe.Handle)
}

// Gateway registers client inputs.
type Gateway struct {
	log     *zap.Logger
	key     *keys.PrivateKey
	params  bgv.Parameters
	pubKey  []byte
	store   store.Store
	onInput func(fhe.Handle)
}

// New creates Gateway.
func New(prm Prm) *Gateway {
	log := prm.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Gateway{
		log:     log,
		key:     prm.Key,
		params:  prm.Params,
		pubKey:  prm.PublicKey,
		store:   prm.Store,
		onInput: prm.OnInput,
	}
}

// VerifierKey returns public key of the input verifier.
func (g *Gateway) VerifierKey() *keys.PublicKey {
	return g.key.PublicKey()
}

// FHEPublicKey returns binary network FHE public key.
func (g *Gateway) FHEPublicKey() []byte {
	return g.pubKey
}

// Register verifies and stores the ciphertext submitted by the user for the
// contract. Repeated registration of the same input is allowed and returns
// the same handle.
func (g *Gateway) Register(contract, user util.Uint160, ciphertext []byte) (Input, error) {
	if len(ciphertext) > MaxCiphertextSize {
		return Input{}, fmt.Errorf("%w: size %d exceeds limit", ErrInvalidCiphertext, len(ciphertext))
	}

	if _, err := fhe.DecodeCiphertext(g.params, ciphertext); err != nil {
		return Input{}, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}

	h := fhe.InputHandle(ciphertext, contract, user)

	err := g.store.Put(h, fhe.Record{Ciphertext: ciphertext})
	if err != nil {
		return Input{}, fmt.Errorf("store ciphertext: %w", err)
	}

	g.log.Info("input registered",
		zap.Stringer("contract", contract),
		zap.Stringer("user", user),
		zap.Stringer("handle", h))

	if g.onInput != nil {
		g.onInput(h)
	}

	return Input{
		Handle: h,
		Proof:  g.key.Sign(fhe.ProofMessage(h, contract, user)),
	}, nil
}
