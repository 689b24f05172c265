package fhe

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/mr-tron/base58"
	"github.com/nspcc-dev/neo-go/pkg/encoding/bigint"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/peerreview-contract/contracts/peerreview/peerreviewconst"
)

// HandleSize is the length of the ciphertext handle in bytes.
const HandleSize = peerreviewconst.HandleLength

// Handle is a symbolic reference to a ciphertext. Contract operates on
// handles only, actual ciphertexts are kept off-chain.
type Handle [HandleSize]byte

// Op is an operation code used in handle derivation.
type Op byte

// Operations announced by the contract.
const (
	OpTrivial = Op(peerreviewconst.OpTrivial)
	OpAdd     = Op(peerreviewconst.OpAdd)
	OpSub     = Op(peerreviewconst.OpSub)
	OpDiv     = Op(peerreviewconst.OpDiv)
)

// String implements fmt.Stringer.
func (o Op) String() string {
	switch o {
	case OpTrivial:
		return "trivial"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpDiv:
		return "div"
	default:
		return fmt.Sprintf("op(%d)", byte(o))
	}
}

// DecodeHandle converts binary handle to Handle.
func DecodeHandle(b []byte) (Handle, error) {
	var h Handle
	if len(b) != HandleSize {
		return h, fmt.Errorf("invalid handle length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// ParseHandle decodes base58 string produced by Handle.String.
func ParseHandle(s string) (Handle, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return Handle{}, fmt.Errorf("decode base58: %w", err)
	}
	return DecodeHandle(b)
}

// String returns base58 encoding of the handle.
func (h Handle) String() string {
	return base58.Encode(h[:])
}

// Bytes returns a copy of the handle as a byte slice.
func (h Handle) Bytes() []byte {
	return append([]byte(nil), h[:]...)
}

// InputHandle returns handle of the client-provided ciphertext bound to the
// contract and user.
func InputHandle(ciphertext []byte, contract, user util.Uint160) Handle {
	s := sha256.New()
	s.Write(ciphertext)
	s.Write(contract.BytesBE())
	s.Write(user.BytesBE())

	var h Handle
	s.Sum(h[:0])
	return h
}

// ComputeHandle returns handle of the operation result exactly as the
// contract derives it.
func ComputeHandle(op Op, contract util.Uint160, lhs, rhs []byte) Handle {
	s := sha256.New()
	s.Write([]byte{byte(op)})
	s.Write(contract.BytesBE())
	s.Write(lhs)
	s.Write(rhs)

	var h Handle
	s.Sum(h[:0])
	return h
}

// ProofMessage returns message signed by the input verifier for the handle.
func ProofMessage(h Handle, contract, user util.Uint160) []byte {
	msg := make([]byte, 0, HandleSize+2*util.Uint160Size)
	msg = append(msg, h[:]...)
	msg = append(msg, contract.BytesBE()...)
	msg = append(msg, user.BytesBE()...)
	return msg
}

// EncodeScalar encodes integer the way NeoVM converts integers to bytes.
func EncodeScalar(v int64) []byte {
	return bigint.ToBytes(big.NewInt(v))
}

// DecodeScalar decodes integer encoded by EncodeScalar. The value must fit
// into uint64.
func DecodeScalar(b []byte) (uint64, error) {
	v := bigint.FromBytes(b)
	if v.Sign() < 0 || !v.IsUint64() {
		return 0, fmt.Errorf("scalar %s is out of range", v)
	}
	return v.Uint64(), nil
}
