package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nspcc-dev/neo-go/pkg/neotest"
	"github.com/nspcc-dev/peerreview-contract/client"
	"github.com/nspcc-dev/peerreview-contract/fhe"
	"github.com/nspcc-dev/peerreview-contract/internal/chaintest"
	"github.com/nspcc-dev/peerreview-contract/oracle"
	"github.com/nspcc-dev/peerreview-contract/rpc/peerreview"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newClient(t *testing.T, env *chaintest.Env, signer neotest.SingleSigner) *client.Client {
	act := env.Actor(t, signer)

	return client.New(client.Prm{
		Logger:       zaptest.NewLogger(t),
		Hash:         env.Hash,
		Contract:     peerreview.New(act, env.Hash),
		Waiter:       act,
		Account:      signer.Account(),
		Gateway:      chaintest.LocalGateway{Gateway: env.Gateway},
		Oracle:       chaintest.LocalOracle{Oracle: env.Oracle},
		Params:       env.Keys.Params,
		PollInterval: 10 * time.Millisecond,
	})
}

func TestValidateScore(t *testing.T) {
	for _, v := range []int{0, 1, 50, 100} {
		require.NoError(t, client.ValidateScore(v))
	}

	for _, v := range []int{-1, 101, 1000} {
		require.ErrorIs(t, client.ValidateScore(v), client.ErrInvalidScore)
	}

	require.EqualError(t, client.ErrInvalidScore, "Argument --value must be an integer between 0 and 100")
}

func TestClient(t *testing.T) {
	env := chaintest.NewEnv(t, 0)
	ctx := context.Background()

	alice := newClient(t, env, env.Executor.NewAccount(t).(neotest.SingleSigner))
	bob := newClient(t, env, env.Executor.NewAccount(t).(neotest.SingleSigner))
	manager := newClient(t, env, env.Manager)

	stats, err := alice.Stats()
	require.NoError(t, err)
	require.Equal(t, env.Hash, stats.Contract)
	require.Equal(t, env.Manager.ScriptHash(), stats.Manager)
	require.Zero(t, stats.Participants)
	require.False(t, stats.Submitted)
	require.Equal(t, fhe.Handle{}, stats.Average)

	_, err = alice.MyScore(ctx)
	require.ErrorContains(t, err, "PeerReview: no submission")

	_, err = alice.Average(ctx)
	require.ErrorContains(t, err, "PeerReview: no submissions")

	_, err = alice.Submit(ctx, 101)
	require.ErrorIs(t, err, client.ErrInvalidScore)

	_, err = alice.Submit(ctx, 80)
	require.NoError(t, err)
	_, err = bob.Submit(ctx, 60)
	require.NoError(t, err)

	score, err := alice.MyScore(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 80, score.Value)

	avg, err := bob.Average(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 70, avg.Value)
	require.EqualValues(t, 2, avg.Count)

	_, err = bob.Total(ctx)
	require.ErrorContains(t, err, "PeerReview: only manager")

	total, err := manager.Total(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 140, total.Value)
	require.EqualValues(t, 2, total.Count)

	// manager has not submitted but may read the average
	avg, err = manager.Average(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 70, avg.Value)

	_, err = alice.Submit(ctx, 100)
	require.NoError(t, err)

	avg, err = alice.Average(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 80, avg.Value)

	stats, err = bob.Stats()
	require.NoError(t, err)
	require.EqualValues(t, 2, stats.Participants)
	require.True(t, stats.Submitted)
	require.Equal(t, avg.Handle, stats.Average)
	require.NotEqual(t, fhe.Handle{}, stats.Total)

	t.Run("oracle denies foreign handle", func(t *testing.T) {
		bobScore, err := env.Invoker(env.Executor.Committee).TestInvoke(t, "getMyScore", bob.Address())
		require.NoError(t, err)

		b, err := bobScore.Pop().Item().TryBytes()
		require.NoError(t, err)
		h, err := fhe.DecodeHandle(b)
		require.NoError(t, err)

		key := env.Manager.Account().PrivateKey()
		_, _, err = env.Oracle.Decrypt(oracle.NewRequest(key, env.Hash, h, time.Minute))
		require.ErrorIs(t, err, oracle.ErrAccessDenied)
	})
}

// flakyGateway fails to return the public key a given number of times.
type flakyGateway struct {
	chaintest.LocalGateway
	failures int
	calls    int
}

func (g *flakyGateway) PublicKey(ctx context.Context) ([]byte, error) {
	g.calls++
	if g.failures > 0 {
		g.failures--
		return nil, errors.New("gateway is unavailable")
	}
	return g.LocalGateway.PublicKey(ctx)
}

func TestClient_PublicKeyRetry(t *testing.T) {
	env := chaintest.NewEnv(t, 0)
	ctx := context.Background()

	signer := env.Executor.NewAccount(t).(neotest.SingleSigner)
	act := env.Actor(t, signer)
	gw := &flakyGateway{LocalGateway: chaintest.LocalGateway{Gateway: env.Gateway}, failures: 1}

	cli := client.New(client.Prm{
		Logger:       zaptest.NewLogger(t),
		Hash:         env.Hash,
		Contract:     peerreview.New(act, env.Hash),
		Waiter:       act,
		Account:      signer.Account(),
		Gateway:      gw,
		Oracle:       chaintest.LocalOracle{Oracle: env.Oracle},
		Params:       env.Keys.Params,
		PollInterval: 10 * time.Millisecond,
	})

	_, err := cli.Submit(ctx, 42)
	require.ErrorContains(t, err, "gateway is unavailable")

	// failure is not remembered
	_, err = cli.Submit(ctx, 42)
	require.NoError(t, err)

	_, err = cli.Submit(ctx, 43)
	require.NoError(t, err)
	require.Equal(t, 2, gw.calls)

	score, err := cli.MyScore(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 43, score.Value)
}
