package coprocessor

import (
	"context"
	"errors"
	"fmt"

	"github.com/nspcc-dev/neo-go/pkg/core/block"
	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/neorpc"
	"github.com/nspcc-dev/neo-go/pkg/neorpc/result"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract/trigger"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/nspcc-dev/neo-go/pkg/vm/vmstate"
	"github.com/nspcc-dev/peerreview-contract/rpc/peerreview"
	"github.com/nspcc-dev/peerreview-contract/store"
	"go.uber.org/zap"
)

const computeEvent = "FheCompute"

var errChannelClosed = errors.New("subscription channel closed")

// NotificationSubscriber is a blockchain client able to stream contract
// notifications and new blocks. It is implemented by rpcclient.WSClient.
type NotificationSubscriber interface {
	ReceiveBlocks(flt *neorpc.BlockFilter, rcvr chan<- *block.Block) (string, error)
	ReceiveExecutionNotifications(flt *neorpc.NotificationFilter, rcvr chan<- *state.ContainedNotificationEvent) (string, error)
	Unsubscribe(id string) error
}

// BlockSource provides accepted blocks along with execution results of their
// transactions. It is implemented by rpcclient.Client.
type BlockSource interface {
	GetBlockCount() (uint32, error)
	GetBlockByIndex(index uint32) (*block.Block, error)
	GetApplicationLog(hash util.Uint256, trig *trigger.Type) (*result.ApplicationLog, error)
}

// Chain combines notification stream and block history. It is implemented by
// rpcclient.WSClient.
type Chain interface {
	NotificationSubscriber
	BlockSource
}

// ProcessLog processes all FheCompute notifications of the contract found in
// the application log. Failed notifications do not prevent processing of the
// following ones, all errors are returned joined.
func (c *Coprocessor) ProcessLog(log *result.ApplicationLog) error {
	if log == nil {
		return errors.New("nil application log")
	}

	var errs []error

	for i := range log.Executions {
		if log.Executions[i].VMState != vmstate.Halt {
			continue
		}

		for _, ev := range log.Executions[i].Events {
			if ev.ScriptHash != c.contract || ev.Name != computeEvent {
				continue
			}

			if err := c.processNotification(ev.Item); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// CatchUp processes operations announced in the blocks accepted since the
// last processed one up to the current chain height. Blocks are replayed
// from the start index if the store has no processed blocks. Progress is
// saved after each block, so interrupted replay is continued on the next
// call.
func (c *Coprocessor) CatchUp(ctx context.Context, src BlockSource, start uint32) error {
	next := start

	last, err := c.store.LastBlock()
	switch {
	case err == nil:
		next = last + 1
	case errors.Is(err, store.ErrNotFound):
	default:
		return fmt.Errorf("read last processed block: %w", err)
	}

	count, err := src.GetBlockCount()
	if err != nil {
		return fmt.Errorf("get block count: %w", err)
	}

	if next >= count {
		c.log.Debug("no blocks to replay", zap.Uint32("next", next), zap.Uint32("height", count-1))
		return nil
	}

	c.log.Info("replaying blocks", zap.Uint32("from", next), zap.Uint32("to", count-1))

	err = c.replay(ctx, src, next, count-1)
	if err != nil {
		return err
	}

	c.log.Info("blocks replayed", zap.Uint32("height", count-1))

	return nil
}

func (c *Coprocessor) replay(ctx context.Context, src BlockSource, from, to uint32) error {
	for i := from; i <= to; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		b, err := src.GetBlockByIndex(i)
		if err != nil {
			return fmt.Errorf("get block #%d: %w", i, err)
		}

		for _, tx := range b.Transactions {
			appLog, err := src.GetApplicationLog(tx.Hash(), nil)
			if err != nil {
				return fmt.Errorf("get application log of tx %s: %w", tx.Hash().StringLE(), err)
			}

			if err = c.ProcessLog(appLog); err != nil {
				c.log.Error("failed to process transaction",
					zap.Uint32("block", i), zap.Stringer("tx", tx.Hash()), zap.Error(err))
			}
		}

		if err = c.markProcessed(i); err != nil {
			return err
		}
	}

	return nil
}

func (c *Coprocessor) markProcessed(index uint32) error {
	if err := c.store.SetLastBlock(index); err != nil {
		return fmt.Errorf("save last processed block: %w", err)
	}

	c.metrics.lastBlock.Set(float64(index))

	return nil
}

// Listen replays missed blocks and then processes contract notifications
// until the context is done or subscription fails. Block index is saved once
// all notifications of the block are processed. Blocks skipped between
// subscriptions are replayed through the chain history. Invalid operations
// are logged and skipped.
func (c *Coprocessor) Listen(ctx context.Context, chain Chain, start uint32) error {
	err := c.CatchUp(ctx, chain, start)
	if err != nil {
		return fmt.Errorf("catch up: %w", err)
	}

	var (
		hash = c.contract
		name = computeEvent

		notifications = make(chan *state.ContainedNotificationEvent, 64)
		blocks        = make(chan *block.Block, 16)
	)

	nID, err := chain.ReceiveExecutionNotifications(&neorpc.NotificationFilter{
		Contract: &hash,
		Name:     &name,
	}, notifications)
	if err != nil {
		return fmt.Errorf("subscribe to notifications: %w", err)
	}

	bID, err := chain.ReceiveBlocks(nil, blocks)
	if err != nil {
		unsubscribe(chain, []string{nID}, notifications, blocks)
		return fmt.Errorf("subscribe to blocks: %w", err)
	}

	defer unsubscribe(chain, []string{bID, nID}, notifications, blocks)

	c.log.Info("listening to contract notifications", zap.Stringer("contract", c.contract))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-notifications:
			if !ok {
				return errChannelClosed
			}

			c.handleNotification(ev)
		case b, ok := <-blocks:
			if !ok {
				return errChannelClosed
			}

			err = c.handleBlock(ctx, chain, b.Index, notifications)
			if err != nil {
				return err
			}
		}
	}
}

// handleBlock saves block as processed. Notifications of the block are
// announced before the block itself, so they are either processed already
// or buffered in the channel.
func (c *Coprocessor) handleBlock(ctx context.Context, src BlockSource, index uint32, notifications <-chan *state.ContainedNotificationEvent) error {
	for drained := false; !drained; {
		select {
		case ev, ok := <-notifications:
			if !ok {
				return errChannelClosed
			}

			c.handleNotification(ev)
		default:
			drained = true
		}
	}

	last, err := c.store.LastBlock()
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("read last processed block: %w", err)
	}

	if err == nil && index <= last {
		return nil
	}

	if err == nil && index > last+1 {
		c.log.Info("replaying skipped blocks", zap.Uint32("from", last+1), zap.Uint32("to", index-1))

		err = c.replay(ctx, src, last+1, index-1)
		if err != nil {
			return err
		}
	}

	return c.markProcessed(index)
}

func (c *Coprocessor) handleNotification(ev *state.ContainedNotificationEvent) {
	if ev.ScriptHash != c.contract || ev.Name != computeEvent {
		return
	}

	err := c.processNotification(ev.Item)
	if err != nil {
		c.log.Error("failed to process notification",
			zap.Stringer("tx", ev.Container), zap.Error(err))
	}
}

func (c *Coprocessor) processNotification(item *stackitem.Array) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.rejected.Inc()
			err = fmt.Errorf("%w: panic: %v", ErrInvalidOperation, r)
		}
	}()

	var e peerreview.FheComputeEvent

	err = e.FromStackItem(item)
	if err != nil {
		return fmt.Errorf("decode %s notification: %w", computeEvent, err)
	}

	op, err := OperationFromEvent(&e)
	if err != nil {
		return err
	}

	return c.Process(op)
}

// unsubscribe keeps receivers drained while subscriptions are being removed,
// client blocks on full receivers otherwise.
func unsubscribe(sub NotificationSubscriber, ids []string, notifications <-chan *state.ContainedNotificationEvent, blocks <-chan *block.Block) {
	done := make(chan struct{})

	go func() {
		for _, id := range ids {
			_ = sub.Unsubscribe(id)
		}
		close(done)
	}()

	for {
		select {
		case <-done:
			return
		case _, ok := <-notifications:
			if !ok {
				notifications = nil
			}
		case _, ok := <-blocks:
			if !ok {
				blocks = nil
			}
		}
	}
}
