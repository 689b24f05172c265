package fhe

import (
	"fmt"
	"sync"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
)

// Decryptor decrypts records with the network secret key. It is safe for
// concurrent use.
type Decryptor struct {
	mu      sync.Mutex
	params  bgv.Parameters
	encoder *bgv.Encoder
	dec     *rlwe.Decryptor
}

// NewDecryptor creates Decryptor for the secret key.
func NewDecryptor(params bgv.Parameters, sk *rlwe.SecretKey) *Decryptor {
	return &Decryptor{
		params:  params,
		encoder: bgv.NewEncoder(params),
		dec:     rlwe.NewDecryptor(params, sk),
	}
}

// Decrypt returns plaintext value of the record with the divisor applied.
func (d *Decryptor) Decrypt(r Record) (uint64, error) {
	ct, err := DecodeCiphertext(d.params, r.Ciphertext)
	if err != nil {
		return 0, err
	}

	values := make([]uint64, d.params.MaxSlots())

	d.mu.Lock()
	pt := d.dec.DecryptNew(ct)
	err = d.encoder.Decode(pt, values)
	d.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("decode plaintext: %w", err)
	}

	v := values[0]
	if r.Divided() {
		v /= r.Divisor
	}

	return v, nil
}
