/*
Package fhe provides homomorphic encryption primitives used by the PeerReview
services: client-side encryption of scores, evaluation of the operations
announced by the contract and decryption by the key holder.

The scheme is BGV over a single ciphertext modulus which is enough for the
additive workload of the contract. Division by a plaintext integer is not
evaluated homomorphically: it is recorded as a divisor of the ciphertext
record and applied to the decrypted value, so only the quotient is ever
revealed.
*/
package fhe

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
)

// PlaintextModulus is the plaintext modulus of the default parameters. Sums
// of encrypted values are computed modulo this number.
const PlaintextModulus = 0x3ee0001

// DefaultParametersLiteral is the parameter set used by all network
// participants.
var DefaultParametersLiteral = bgv.ParametersLiteral{
	LogN:             12,
	LogQ:             []int{56},
	LogP:             []int{55},
	PlaintextModulus: PlaintextModulus,
}

// NewParameters returns BGV parameters built from DefaultParametersLiteral.
func NewParameters() (bgv.Parameters, error) {
	params, err := bgv.NewParametersFromLiteral(DefaultParametersLiteral)
	if err != nil {
		return bgv.Parameters{}, fmt.Errorf("build BGV parameters: %w", err)
	}
	return params, nil
}
