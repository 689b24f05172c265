package fhe

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
)

// Encryptor encrypts plaintext integers with the network public key. It is
// safe for concurrent use.
type Encryptor struct {
	mu      sync.Mutex
	params  bgv.Parameters
	encoder *bgv.Encoder
	enc     *rlwe.Encryptor
}

// NewEncryptor creates Encryptor for the public key.
func NewEncryptor(params bgv.Parameters, pk *rlwe.PublicKey) *Encryptor {
	return &Encryptor{
		params:  params,
		encoder: bgv.NewEncoder(params),
		enc:     rlwe.NewEncryptor(params, pk),
	}
}

// Encrypt encrypts the value and returns serialized ciphertext.
func (e *Encryptor) Encrypt(v uint64) ([]byte, error) {
	if v >= e.params.PlaintextModulus() {
		return nil, fmt.Errorf("value %d exceeds plaintext modulus", v)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	pt := bgv.NewPlaintext(e.params, e.params.MaxLevel())
	if err := e.encoder.Encode([]uint64{v}, pt); err != nil {
		return nil, fmt.Errorf("encode plaintext: %w", err)
	}

	ct, err := e.enc.EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}

	data, err := ct.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode ciphertext: %w", err)
	}

	return data, nil
}

// DecodeCiphertext decodes ciphertext and checks that it is a degree-one
// ciphertext of the parameters. Ring degree, moduli chain, coefficient range
// and encoding metadata are verified, so the result is safe to pass to the
// evaluator and decryptor.
func DecodeCiphertext(params bgv.Parameters, data []byte) (*rlwe.Ciphertext, error) {
	ct := bgv.NewCiphertext(params, 1, params.MaxLevel())
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	if ct.Degree() != 1 {
		return nil, fmt.Errorf("unexpected ciphertext degree %d", ct.Degree())
	}

	moduli := params.RingQ().ModuliChain()

	for i := range ct.Value {
		if n := ct.Value[i].N(); n != params.N() {
			return nil, fmt.Errorf("unexpected ring degree %d in polynomial #%d", n, i)
		}

		if l := ct.Value[i].Level(); l != params.MaxLevel() {
			return nil, fmt.Errorf("unexpected level %d of polynomial #%d", l, i)
		}

		for j, q := range moduli {
			for _, c := range ct.Value[i].Coeffs[j] {
				if c >= q {
					return nil, fmt.Errorf("coefficient of polynomial #%d exceeds modulus #%d", i, j)
				}
			}
		}
	}

	switch {
	case ct.MetaData == nil:
		return nil, errors.New("missing ciphertext metadata")
	case ct.IsNTT != params.NTTFlag():
		return nil, fmt.Errorf("unexpected NTT flag %t", ct.IsNTT)
	case ct.IsMontgomery:
		return nil, errors.New("ciphertext is in Montgomery domain")
	case !ct.IsBatched:
		return nil, errors.New("ciphertext is not batched")
	case ct.LogDimensions != params.LogMaxDimensions():
		return nil, fmt.Errorf("unexpected plaintext dimensions %v", ct.LogDimensions)
	case !ct.Scale.Equal(params.DefaultScale()):
		return nil, errors.New("unexpected ciphertext scale")
	}

	return ct, nil
}
