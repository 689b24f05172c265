package fhe

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
)

// Evaluator performs operations announced by the contract over ciphertext
// records. It is safe for concurrent use.
type Evaluator struct {
	mu     sync.Mutex
	params bgv.Parameters
	eval   *bgv.Evaluator
	enc    *Encryptor
}

// NewEvaluator creates Evaluator. Public key is used for trivial encryptions.
func NewEvaluator(params bgv.Parameters, pk *rlwe.PublicKey) *Evaluator {
	return &Evaluator{
		params: params,
		eval:   bgv.NewEvaluator(params, nil),
		enc:    NewEncryptor(params, pk),
	}
}

// Trivial returns encryption of the known value.
func (e *Evaluator) Trivial(v uint64) (Record, error) {
	ct, err := e.enc.Encrypt(v)
	if err != nil {
		return Record{}, err
	}
	return Record{Ciphertext: ct}, nil
}

// Add returns record of the sum of a and b.
func (e *Evaluator) Add(a, b Record) (Record, error) {
	return e.binary(a, b, func(x, y *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
		return e.eval.AddNew(x, y)
	})
}

// Sub returns record of the difference of a and b.
func (e *Evaluator) Sub(a, b Record) (Record, error) {
	return e.binary(a, b, func(x, y *rlwe.Ciphertext) (*rlwe.Ciphertext, error) {
		return e.eval.SubNew(x, y)
	})
}

// Div returns record of a divided by d. The ciphertext is left intact.
func (e *Evaluator) Div(a Record, d uint64) (Record, error) {
	if d == 0 {
		return Record{}, errors.New("division by zero")
	}
	if a.Divided() {
		return Record{}, ErrDivided
	}
	return Record{
		Ciphertext: a.Ciphertext,
		Divisor:    d,
	}, nil
}

func (e *Evaluator) binary(a, b Record, f func(x, y *rlwe.Ciphertext) (*rlwe.Ciphertext, error)) (Record, error) {
	if a.Divided() || b.Divided() {
		return Record{}, ErrDivided
	}

	x, err := DecodeCiphertext(e.params, a.Ciphertext)
	if err != nil {
		return Record{}, fmt.Errorf("left operand: %w", err)
	}

	y, err := DecodeCiphertext(e.params, b.Ciphertext)
	if err != nil {
		return Record{}, fmt.Errorf("right operand: %w", err)
	}

	e.mu.Lock()
	res, err := f(x, y)
	e.mu.Unlock()
	if err != nil {
		return Record{}, fmt.Errorf("evaluate: %w", err)
	}

	data, err := res.MarshalBinary()
	if err != nil {
		return Record{}, fmt.Errorf("encode ciphertext: %w", err)
	}

	return Record{Ciphertext: data}, nil
}
