package coprocessor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/core/block"
	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/neorpc"
	"github.com/nspcc-dev/neo-go/pkg/neorpc/result"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract/trigger"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/vmstate"
	"github.com/nspcc-dev/peerreview-contract/fhe"
	"github.com/nspcc-dev/peerreview-contract/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// testChain is a blockchain client serving blocks from memory and
// forwarding manually pushed events to subscribers.
type testChain struct {
	mu        sync.Mutex
	blocks    []*block.Block
	logs      map[util.Uint256]*result.ApplicationLog
	requested []uint32

	notifications chan<- *state.ContainedNotificationEvent
	newBlocks     chan<- *block.Block
	subscribed    chan struct{}
	unsubscribed  []string
}

func newTestChain() *testChain {
	c := &testChain{
		logs:       make(map[util.Uint256]*result.ApplicationLog),
		subscribed: make(chan struct{}),
	}
	c.addBlock() // genesis
	return c
}

// addBlock accepts block with a transaction emitting the events, if any.
func (c *testChain) addBlock(events ...state.NotificationEvent) *block.Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := &block.Block{Header: block.Header{Index: uint32(len(c.blocks))}}

	if len(events) > 0 {
		tx := transaction.New([]byte{byte(b.Index)}, 0)
		tx.Nonce = b.Index

		b.Transactions = append(b.Transactions, tx)
		c.logs[tx.Hash()] = &result.ApplicationLog{
			Container: tx.Hash(),
			Executions: []state.Execution{{
				Trigger: trigger.Application,
				VMState: vmstate.Halt,
				Events:  events,
			}},
		}
	}

	c.blocks = append(c.blocks, b)

	return b
}

func (c *testChain) takeRequested() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := c.requested
	c.requested = nil
	return res
}

func (c *testChain) GetBlockCount() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return uint32(len(c.blocks)), nil
}

func (c *testChain) GetBlockByIndex(index uint32) (*block.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if int(index) >= len(c.blocks) {
		return nil, errors.New("unknown block")
	}

	c.requested = append(c.requested, index)

	return c.blocks[index], nil
}

func (c *testChain) GetApplicationLog(h util.Uint256, _ *trigger.Type) (*result.ApplicationLog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.logs[h]
	if !ok {
		return nil, errors.New("unknown transaction")
	}

	return l, nil
}

func (c *testChain) ReceiveExecutionNotifications(_ *neorpc.NotificationFilter, rcvr chan<- *state.ContainedNotificationEvent) (string, error) {
	c.mu.Lock()
	c.notifications = rcvr
	c.mu.Unlock()
	return "notifications", nil
}

func (c *testChain) ReceiveBlocks(_ *neorpc.BlockFilter, rcvr chan<- *block.Block) (string, error) {
	c.mu.Lock()
	c.newBlocks = rcvr
	c.mu.Unlock()
	close(c.subscribed)
	return "blocks", nil
}

func (c *testChain) Unsubscribe(id string) error {
	c.mu.Lock()
	c.unsubscribed = append(c.unsubscribed, id)
	c.mu.Unlock()
	return nil
}

func lastBlock(t *testing.T, s store.Store) uint32 {
	last, err := s.LastBlock()
	require.NoError(t, err)
	return last
}

func TestCoprocessor_CatchUp(t *testing.T) {
	env := newTestEnv(t)
	chain := newTestChain()
	ctx := context.Background()

	a := env.input(t, 80, util.Uint160{1})

	zero := env.op(fhe.OpTrivial, fhe.EncodeScalar(0), []byte{})
	sum := env.op(fhe.OpAdd, zero.Result[:], a[:])
	invalid := env.op(fhe.OpAdd, a[:], a[:])
	invalid.Result[0] ^= 0xff

	chain.addBlock(env.event(zero))
	chain.addBlock(env.event(invalid), env.event(sum))
	chain.addBlock()

	require.NoError(t, env.cp.CatchUp(ctx, chain, 1))
	require.Equal(t, []uint32{1, 2, 3}, chain.takeRequested())
	require.EqualValues(t, 3, lastBlock(t, env.store))
	require.EqualValues(t, 80, env.decrypt(t, sum.Result))
	require.EqualValues(t, 3, testutil.ToFloat64(env.metrics.lastBlock))

	// nothing new
	require.NoError(t, env.cp.CatchUp(ctx, chain, 1))
	require.Empty(t, chain.takeRequested())

	t.Run("restart", func(t *testing.T) {
		avg := env.op(fhe.OpDiv, sum.Result[:], fhe.EncodeScalar(2))
		chain.addBlock(env.event(avg))

		// start index is ignored once blocks are processed
		restarted := New(Prm{
			Logger:    zaptest.NewLogger(t),
			Contract:  env.contract,
			Store:     env.store,
			Evaluator: fhe.NewEvaluator(env.keys.Params, env.keys.PublicKey),
		})

		require.NoError(t, restarted.CatchUp(ctx, chain, 0))
		require.Equal(t, []uint32{4}, chain.takeRequested())
		require.EqualValues(t, 4, lastBlock(t, env.store))
		require.EqualValues(t, 40, env.decrypt(t, avg.Result))
	})

	t.Run("canceled", func(t *testing.T) {
		chain.addBlock()

		canceled, cancel := context.WithCancel(ctx)
		cancel()

		require.ErrorIs(t, env.cp.CatchUp(canceled, chain, 0), context.Canceled)
		require.EqualValues(t, 4, lastBlock(t, env.store))
	})
}

func TestCoprocessor_Listen(t *testing.T) {
	env := newTestEnv(t)
	chain := newTestChain()

	a := env.input(t, 30, util.Uint160{1})

	zero := env.op(fhe.OpTrivial, fhe.EncodeScalar(0), []byte{})
	sum := env.op(fhe.OpAdd, zero.Result[:], a[:])
	avg := env.op(fhe.OpDiv, sum.Result[:], fhe.EncodeScalar(3))

	chain.addBlock(env.event(zero))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)

	go func() {
		errCh <- env.cp.Listen(ctx, chain, 0)
	}()

	select {
	case <-chain.subscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("coprocessor has not subscribed")
	}

	// blocks accepted before subscription are replayed
	require.EqualValues(t, 1, lastBlock(t, env.store))
	require.EqualValues(t, 0, env.decrypt(t, zero.Result))

	b := chain.addBlock(env.event(sum))
	chain.notifications <- &state.ContainedNotificationEvent{
		Container:         b.Transactions[0].Hash(),
		NotificationEvent: env.event(sum),
	}
	chain.newBlocks <- b

	require.Eventually(t, func() bool {
		last, err := env.store.LastBlock()
		return err == nil && last == 2
	}, 5*time.Second, 10*time.Millisecond)
	require.EqualValues(t, 30, env.decrypt(t, sum.Result))

	// block 3 is missed by the subscription
	chain.takeRequested()
	chain.addBlock(env.event(avg))
	chain.newBlocks <- chain.addBlock()

	require.Eventually(t, func() bool {
		last, err := env.store.LastBlock()
		return err == nil && last == 4
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, []uint32{3}, chain.takeRequested())
	require.EqualValues(t, 10, env.decrypt(t, avg.Result))

	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("coprocessor has not stopped")
	}

	require.ElementsMatch(t, []string{"blocks", "notifications"}, chain.unsubscribed)
}
