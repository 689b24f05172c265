/*
Package coprocessor executes FHE operations announced by the PeerReview
contract.

Contract works with ciphertext handles only. Each derived handle is announced
with FheCompute notification carrying operation code and operands.
Coprocessor validates derivation, evaluates the operation over stored
ciphertexts and saves the result under the announced handle. Operations
referencing records which are not known yet are kept pending and retried
each time a new record appears.
*/
package coprocessor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/peerreview-contract/fhe"
	"github.com/nspcc-dev/peerreview-contract/rpc/peerreview"
	"github.com/nspcc-dev/peerreview-contract/store"
	"go.uber.org/zap"
)

// ErrInvalidOperation is returned for operations that can never be executed.
var ErrInvalidOperation = errors.New("invalid operation")

// Operation is a single FHE operation announced by the contract.
type Operation struct {
	Op     fhe.Op
	Lhs    []byte
	Rhs    []byte
	Result fhe.Handle
}

// OperationFromEvent converts contract notification to Operation.
func OperationFromEvent(e *peerreview.FheComputeEvent) (Operation, error) {
	if e.Op == nil || !e.Op.IsUint64() || e.Op.Uint64() > 0xff {
		return Operation{}, fmt.Errorf("%w: op code %v", ErrInvalidOperation, e.Op)
	}

	res, err := fhe.DecodeHandle(e.Result)
	if err != nil {
		return Operation{}, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}

	return Operation{
		Op:     fhe.Op(e.Op.Uint64()),
		Lhs:    e.Lhs,
		Rhs:    e.Rhs,
		Result: res,
	}, nil
}

// Prm groups Coprocessor parameters.
type Prm struct {
	Logger *zap.Logger

	// Address of the contract whose notifications are processed.
	Contract util.Uint160

	Store     store.Store
	Evaluator *fhe.Evaluator

	// Optional, unregistered metrics are used if not set.
	Metrics *Metrics
}

// Coprocessor executes contract operations.
type Coprocessor struct {
	log      *zap.Logger
	contract util.Uint160
	store    store.Store
	eval     *fhe.Evaluator
	metrics  *Metrics

	mu      sync.Mutex
	pending []Operation
}

// New creates Coprocessor.
func New(prm Prm) *Coprocessor {
	log := prm.Logger
	if log == nil {
		log = zap.NewNop()
	}

	m := prm.Metrics
	if m == nil {
		m = NewMetrics(nil)
	}

	return &Coprocessor{
		log:      log,
		contract: prm.Contract,
		store:    prm.Store,
		eval:     prm.Evaluator,
		metrics:  m,
	}
}

// Pending returns the number of operations waiting for operands.
func (c *Coprocessor) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Process validates and executes operation. Operation is queued if its
// operands are not available yet, such operations are retried after each
// successful execution and on Retry call. Invalid operations are rejected
// with ErrInvalidOperation.
func (c *Coprocessor) Process(op Operation) error {
	if expected := fhe.ComputeHandle(op.Op, c.contract, op.Lhs, op.Rhs); expected != op.Result {
		c.metrics.rejected.Inc()
		return fmt.Errorf("%w: result handle mismatch, expected %s, got %s", ErrInvalidOperation, expected, op.Result)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	done, err := c.execute(op)
	if err != nil {
		if errors.Is(err, ErrInvalidOperation) {
			c.metrics.rejected.Inc()
		}
		return err
	}

	if !done {
		c.log.Debug("operation is pending",
			zap.Stringer("op", op.Op), zap.Stringer("result", op.Result))
		c.pending = append(c.pending, op)
		c.metrics.pending.Set(float64(len(c.pending)))
		return nil
	}

	c.retryPending()

	return nil
}

// Retry re-executes pending operations. It is called when records are added
// to the store outside of the Coprocessor.
func (c *Coprocessor) Retry() {
	c.mu.Lock()
	c.retryPending()
	c.mu.Unlock()
}

func (c *Coprocessor) retryPending() {
	for progress := true; progress && len(c.pending) > 0; {
		progress = false

		left := c.pending[:0]
		for _, op := range c.pending {
			done, err := c.execute(op)
			if err != nil {
				c.log.Error("pending operation failed",
					zap.Stringer("op", op.Op), zap.Stringer("result", op.Result), zap.Error(err))
				c.metrics.rejected.Inc()
				progress = true
				continue
			}

			if done {
				progress = true
				continue
			}

			left = append(left, op)
		}

		c.pending = left
	}

	c.metrics.pending.Set(float64(len(c.pending)))
}

// execute returns false if operands are missing. Panics of the evaluation
// are reported as ErrInvalidOperation.
func (c *Coprocessor) execute(op Operation) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			done, err = false, fmt.Errorf("%w: evaluation panic: %v", ErrInvalidOperation, r)
		}
	}()

	ok, err := c.store.Has(op.Result)
	if err != nil {
		return false, fmt.Errorf("check result presence: %w", err)
	}

	if ok {
		return true, nil
	}

	var res fhe.Record

	switch op.Op {
	case fhe.OpTrivial:
		v, err := fhe.DecodeScalar(op.Lhs)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
		}

		res, err = c.eval.Trivial(v)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
		}
	case fhe.OpAdd, fhe.OpSub:
		lhs, ok, err := c.operand(op.Lhs)
		if err != nil || !ok {
			return false, err
		}

		rhs, ok, err := c.operand(op.Rhs)
		if err != nil || !ok {
			return false, err
		}

		if op.Op == fhe.OpAdd {
			res, err = c.eval.Add(lhs, rhs)
		} else {
			res, err = c.eval.Sub(lhs, rhs)
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
		}
	case fhe.OpDiv:
		lhs, ok, err := c.operand(op.Lhs)
		if err != nil || !ok {
			return false, err
		}

		d, err := fhe.DecodeScalar(op.Rhs)
		if err != nil {
			return false, fmt.Errorf("%w: divisor: %v", ErrInvalidOperation, err)
		}

		res, err = c.eval.Div(lhs, d)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
		}
	default:
		return false, fmt.Errorf("%w: unknown op %s", ErrInvalidOperation, op.Op)
	}

	if err = c.store.Put(op.Result, res); err != nil {
		return false, fmt.Errorf("store result: %w", err)
	}

	c.metrics.executed.WithLabelValues(op.Op.String()).Inc()
	c.log.Debug("operation executed",
		zap.Stringer("op", op.Op), zap.Stringer("result", op.Result))

	return true, nil
}

func (c *Coprocessor) operand(b []byte) (fhe.Record, bool, error) {
	h, err := fhe.DecodeHandle(b)
	if err != nil {
		return fhe.Record{}, false, fmt.Errorf("%w: operand: %v", ErrInvalidOperation, err)
	}

	r, err := c.store.Get(h)
	if errors.Is(err, store.ErrNotFound) {
		return fhe.Record{}, false, nil
	} else if err != nil {
		return fhe.Record{}, false, fmt.Errorf("read operand %s: %w", h, err)
	}

	return r, true, nil
}
