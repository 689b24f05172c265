package peerreview_test

import (
	"encoding/json"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/neorpc/result"
	"github.com/nspcc-dev/neo-go/pkg/neotest"
	"github.com/nspcc-dev/neo-go/pkg/neotest/chain"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract/trigger"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/stackitem"
	"github.com/nspcc-dev/peerreview-contract/common"
	"github.com/nspcc-dev/peerreview-contract/contracts/peerreview/peerreviewconst"
	"github.com/nspcc-dev/peerreview-contract/fhe"
	"github.com/nspcc-dev/peerreview-contract/internal/chaintest"
	"github.com/nspcc-dev/peerreview-contract/rpc/peerreview"
	"github.com/stretchr/testify/require"
)

func newReader(t *testing.T, env *chaintest.Env) *peerreview.ContractReader {
	return peerreview.NewReader(env.Actor(t, env.Executor.Committee), env.Hash)
}

func appLog(t *testing.T, env *chaintest.Env, h util.Uint256) *result.ApplicationLog {
	aers, err := env.Executor.Chain.GetAppExecResults(h, trigger.Application)
	require.NoError(t, err)
	log := result.NewApplicationLog(h, aers, trigger.Application)
	return &log
}

// grantStored checks presence of the decryption grant in the contract storage
// regardless of its expiration.
func grantStored(t *testing.T, env *chaintest.Env, handle []byte, account util.Uint160) bool {
	cs := env.Executor.Chain.GetContractState(env.Hash)
	require.NotNil(t, cs)

	key := append([]byte{'a'}, handle...)
	key = append(key, account.BytesBE()...)

	return env.Executor.Chain.GetStorageItem(cs.ID, key) != nil
}

func submit(t *testing.T, env *chaintest.Env, reviewer neotest.Signer, score uint64) util.Uint256 {
	in := env.Input(t, reviewer.ScriptHash(), score)
	h := env.Invoker(reviewer).Invoke(t, stackitem.Null{}, "submitScore",
		reviewer.ScriptHash(), in.Handle.Bytes(), in.Proof)
	env.Sync(t, h)
	return h
}

func TestPeerReview_Deploy(t *testing.T) {
	env := chaintest.NewEnv(t, 0)
	r := newReader(t, env)

	manager, err := r.Manager()
	require.NoError(t, err)
	require.Equal(t, env.Manager.ScriptHash(), manager)

	verifier, err := r.InputVerifier()
	require.NoError(t, err)
	require.Equal(t, env.Verifier.PublicKey().Bytes(), verifier.Bytes())

	ttl, err := r.AccessTTL()
	require.NoError(t, err)
	require.EqualValues(t, peerreviewconst.DefaultAccessTTL, ttl.Int64())

	n, err := r.ParticipantCount()
	require.NoError(t, err)
	require.Zero(t, n.Sign())

	v, err := r.Version()
	require.NoError(t, err)
	require.EqualValues(t, common.Version, v.Int64())

	id, err := r.ProtocolId()
	require.NoError(t, err)
	require.EqualValues(t, peerreviewconst.ProtocolID, id.Int64())

	avg, err := r.GetEncryptedAverage()
	require.NoError(t, err)
	require.Nil(t, avg.Handle)
	require.Zero(t, avg.Count.Sign())

	total, err := r.GetEncryptedTotal()
	require.NoError(t, err)
	require.Zero(t, total.Count.Sign())

	zero := fhe.ComputeHandle(fhe.OpTrivial, env.Hash, fhe.EncodeScalar(0), nil)
	require.Equal(t, zero.Bytes(), total.Handle)
	require.EqualValues(t, 0, env.Decrypt(t, total.Handle))

	env.Invoker(env.Executor.Committee).InvokeFail(t, peerreviewconst.ErrNoSubmission, "getMyScore", env.Manager.ScriptHash())
}

func TestPeerReview_DeployArgs(t *testing.T) {
	bc, acc := chain.NewSingle(t)
	e := neotest.NewExecutor(t, bc, acc, acc)
	c := chaintest.CompileContract(t, e.CommitteeHash)

	key, err := keys.NewPrivateKey()
	require.NoError(t, err)

	e.DeployContractCheckFAULT(t, c, []any{[]byte{1, 2, 3}, key.PublicKey().Bytes(), 0},
		"incorrect length of manager script hash")
	e.DeployContractCheckFAULT(t, c, []any{util.Uint160{1}, []byte{1, 2, 3}, 0},
		"incorrect input verifier public key length")
	e.DeployContractCheckFAULT(t, c, []any{util.Uint160{1}, key.PublicKey().Bytes(), -1},
		"negative access TTL")
}

func TestPeerReview_Submit(t *testing.T) {
	env := chaintest.NewEnv(t, 0)
	r := newReader(t, env)

	alice := env.Executor.NewAccount(t)
	bob := env.Executor.NewAccount(t)

	h := submit(t, env, alice, 80)

	events, err := peerreview.ScoreSubmittedEventsFromApplicationLog(appLog(t, env, h))
	require.NoError(t, err)
	require.Equal(t, []*peerreview.ScoreSubmittedEvent{{Reviewer: alice.ScriptHash(), Updated: false}}, events)

	computes, err := peerreview.FheComputeEventsFromApplicationLog(appLog(t, env, h))
	require.NoError(t, err)
	require.Len(t, computes, 2) // add, div

	firstAvg, err := r.GetEncryptedAverage()
	require.NoError(t, err)
	firstTotal, err := r.GetEncryptedTotal()
	require.NoError(t, err)
	require.True(t, grantStored(t, env, firstAvg.Handle, alice.ScriptHash()))
	require.True(t, grantStored(t, env, firstTotal.Handle, env.Manager.ScriptHash()))

	submit(t, env, bob, 60)

	n, err := r.ParticipantCount()
	require.NoError(t, err)
	require.EqualValues(t, 2, n.Int64())

	total, err := r.GetEncryptedTotal()
	require.NoError(t, err)
	require.EqualValues(t, 2, total.Count.Int64())
	require.EqualValues(t, 140, env.Decrypt(t, total.Handle))

	avg, err := r.GetEncryptedAverage()
	require.NoError(t, err)
	require.EqualValues(t, 2, avg.Count.Int64())
	require.EqualValues(t, 70, env.Decrypt(t, avg.Handle))

	for _, s := range []neotest.Signer{alice, bob} {
		ok, err := r.HasSubmitted(s.ScriptHash())
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := r.HasSubmitted(env.Manager.ScriptHash())
	require.NoError(t, err)
	require.False(t, ok)

	score, err := r.GetMyScore(bob.ScriptHash())
	require.NoError(t, err)
	require.EqualValues(t, 60, env.Decrypt(t, score))

	// submission grants
	for _, tc := range []struct {
		handle  []byte
		account util.Uint160
		allowed bool
	}{
		{score, bob.ScriptHash(), true},
		{score, alice.ScriptHash(), false},
		{avg.Handle, alice.ScriptHash(), false},
		{avg.Handle, bob.ScriptHash(), true},
		{avg.Handle, env.Manager.ScriptHash(), true},
		{total.Handle, env.Manager.ScriptHash(), true},
		{total.Handle, bob.ScriptHash(), false},
		{firstAvg.Handle, alice.ScriptHash(), false},
		{firstAvg.Handle, env.Manager.ScriptHash(), false},
		{firstTotal.Handle, env.Manager.ScriptHash(), false},
	} {
		ok, err := r.IsAllowed(tc.handle, tc.account)
		require.NoError(t, err)
		require.Equal(t, tc.allowed, ok)
	}

	// grants of superseded aggregates are removed from the storage
	require.False(t, grantStored(t, env, firstAvg.Handle, alice.ScriptHash()))
	require.False(t, grantStored(t, env, firstAvg.Handle, env.Manager.ScriptHash()))
	require.False(t, grantStored(t, env, firstTotal.Handle, env.Manager.ScriptHash()))

	// earlier reviewers request access to the current average explicitly
	env.Invoker(alice).Invoke(t, stackitem.Null{}, "requestAverageAccess", alice.ScriptHash())

	ok, err = r.IsAllowed(avg.Handle, alice.ScriptHash())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPeerReview_Resubmit(t *testing.T) {
	env := chaintest.NewEnv(t, 0)
	r := newReader(t, env)

	alice := env.Executor.NewAccount(t)
	bob := env.Executor.NewAccount(t)

	submit(t, env, alice, 90)
	submit(t, env, bob, 55)

	avg, err := r.GetEncryptedAverage()
	require.NoError(t, err)
	require.EqualValues(t, 72, env.Decrypt(t, avg.Handle))

	prevScore, err := r.GetMyScore(alice.ScriptHash())
	require.NoError(t, err)
	require.True(t, grantStored(t, env, prevScore, alice.ScriptHash()))

	h := submit(t, env, alice, 72)

	events, err := peerreview.ScoreSubmittedEventsFromApplicationLog(appLog(t, env, h))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.True(t, events[0].Updated)

	computes, err := peerreview.FheComputeEventsFromApplicationLog(appLog(t, env, h))
	require.NoError(t, err)
	require.Len(t, computes, 3) // sub, add, div
	require.EqualValues(t, peerreviewconst.OpSub, computes[0].Op.Int64())

	total, err := r.GetEncryptedTotal()
	require.NoError(t, err)
	require.EqualValues(t, 2, total.Count.Int64())
	require.EqualValues(t, 127, env.Decrypt(t, total.Handle))

	avg, err = r.GetEncryptedAverage()
	require.NoError(t, err)
	require.EqualValues(t, 63, env.Decrypt(t, avg.Handle))

	score, err := r.GetMyScore(alice.ScriptHash())
	require.NoError(t, err)
	require.EqualValues(t, 72, env.Decrypt(t, score))

	// replaced score is no longer decryptable by its author
	require.False(t, grantStored(t, env, prevScore, alice.ScriptHash()))
	require.True(t, grantStored(t, env, score, alice.ScriptHash()))
}

func TestPeerReview_SubmitInvalid(t *testing.T) {
	env := chaintest.NewEnv(t, 0)

	alice := env.Executor.NewAccount(t)
	bob := env.Executor.NewAccount(t)
	inv := env.Invoker(alice)

	in := env.Input(t, alice.ScriptHash(), 50)

	t.Run("witness", func(t *testing.T) {
		env.Invoker(bob).InvokeFail(t, common.ErrOwnerWitnessFailed, "submitScore",
			alice.ScriptHash(), in.Handle.Bytes(), in.Proof)
	})

	t.Run("handle length", func(t *testing.T) {
		inv.InvokeFail(t, peerreviewconst.ErrInvalidHandle, "submitScore",
			alice.ScriptHash(), in.Handle.Bytes()[1:], in.Proof)
	})

	t.Run("proof of other user", func(t *testing.T) {
		other := env.Input(t, bob.ScriptHash(), 50)
		inv.InvokeFail(t, peerreviewconst.ErrInvalidProof, "submitScore",
			alice.ScriptHash(), other.Handle.Bytes(), other.Proof)
	})

	t.Run("proof of other handle", func(t *testing.T) {
		other := env.Input(t, alice.ScriptHash(), 51)
		inv.InvokeFail(t, peerreviewconst.ErrInvalidProof, "submitScore",
			alice.ScriptHash(), in.Handle.Bytes(), other.Proof)
	})

	t.Run("foreign verifier", func(t *testing.T) {
		key, err := keys.NewPrivateKey()
		require.NoError(t, err)

		proof := key.Sign(fhe.ProofMessage(in.Handle, env.Hash, alice.ScriptHash()))
		inv.InvokeFail(t, peerreviewconst.ErrInvalidProof, "submitScore",
			alice.ScriptHash(), in.Handle.Bytes(), proof)
	})

	inv.Invoke(t, stackitem.Null{}, "submitScore", alice.ScriptHash(), in.Handle.Bytes(), in.Proof)

	n, err := newReader(t, env).ParticipantCount()
	require.NoError(t, err)
	require.EqualValues(t, 1, n.Int64())
}

func TestPeerReview_AccessRequests(t *testing.T) {
	env := chaintest.NewEnv(t, 0)
	r := newReader(t, env)

	alice := env.Executor.NewAccount(t)
	bob := env.Executor.NewAccount(t)
	mgr := env.Invoker(env.Manager)

	env.Invoker(alice).InvokeFail(t, peerreviewconst.ErrNoSubmission, "requestMyScoreAccess", alice.ScriptHash())
	env.Invoker(alice).InvokeFail(t, peerreviewconst.ErrNoSubmissions, "requestAverageAccess", alice.ScriptHash())

	submit(t, env, alice, 40)

	t.Run("my score", func(t *testing.T) {
		env.Invoker(bob).InvokeFail(t, common.ErrOwnerWitnessFailed, "requestMyScoreAccess", alice.ScriptHash())
		env.Invoker(bob).InvokeFail(t, peerreviewconst.ErrNoSubmission, "requestMyScoreAccess", bob.ScriptHash())

		h := env.Invoker(alice).Invoke(t, stackitem.Null{}, "requestMyScoreAccess", alice.ScriptHash())

		events, err := peerreview.DecryptionAccessRequestedEventsFromApplicationLog(appLog(t, env, h))
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, alice.ScriptHash(), events[0].Requester)
		require.EqualValues(t, peerreviewconst.AccessScore, events[0].Kind.Int64())
	})

	t.Run("average", func(t *testing.T) {
		env.Invoker(alice).InvokeFail(t, common.ErrWitnessFailed, "requestAverageAccess", bob.ScriptHash())

		avg, err := r.GetEncryptedAverage()
		require.NoError(t, err)

		ok, err := r.IsAllowed(avg.Handle, bob.ScriptHash())
		require.NoError(t, err)
		require.False(t, ok)

		h := env.Invoker(bob).Invoke(t, stackitem.Null{}, "requestAverageAccess", bob.ScriptHash())

		events, err := peerreview.DecryptionAccessRequestedEventsFromApplicationLog(appLog(t, env, h))
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, bob.ScriptHash(), events[0].Requester)
		require.EqualValues(t, peerreviewconst.AccessAverage, events[0].Kind.Int64())

		ok, err = r.IsAllowed(avg.Handle, bob.ScriptHash())
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("total", func(t *testing.T) {
		env.Invoker(alice).InvokeFail(t, peerreviewconst.ErrOnlyManager, "requestTotalAccess", alice.ScriptHash())
		env.Invoker(alice).InvokeFail(t, common.ErrWitnessFailed, "requestTotalAccess", env.Manager.ScriptHash())

		h := mgr.Invoke(t, stackitem.Null{}, "requestTotalAccess", env.Manager.ScriptHash())

		events, err := peerreview.DecryptionAccessRequestedEventsFromApplicationLog(appLog(t, env, h))
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, env.Manager.ScriptHash(), events[0].Requester)
		require.EqualValues(t, peerreviewconst.AccessTotal, events[0].Kind.Int64())
	})
}

func TestPeerReview_GrantExpiration(t *testing.T) {
	const ttl = 3

	env := chaintest.NewEnv(t, ttl)
	r := newReader(t, env)

	alice := env.Executor.NewAccount(t)
	submit(t, env, alice, 10)

	score, err := r.GetMyScore(alice.ScriptHash())
	require.NoError(t, err)

	ok, err := r.IsAllowed(score, alice.ScriptHash())
	require.NoError(t, err)
	require.True(t, ok)

	for i := 0; i < ttl+1; i++ {
		env.Executor.AddNewBlock(t)
	}

	ok, err = r.IsAllowed(score, alice.ScriptHash())
	require.NoError(t, err)
	require.False(t, ok)

	env.Invoker(alice).Invoke(t, stackitem.Null{}, "requestMyScoreAccess", alice.ScriptHash())

	ok, err = r.IsAllowed(score, alice.ScriptHash())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPeerReview_SetInputVerifier(t *testing.T) {
	env := chaintest.NewEnv(t, 0)
	r := newReader(t, env)

	key, err := keys.NewPrivateKey()
	require.NoError(t, err)

	alice := env.Executor.NewAccount(t)

	env.Invoker(alice).InvokeFail(t, common.ErrOwnerWitnessFailed, "setInputVerifier", key.PublicKey().Bytes())
	env.Invoker(env.Manager).Invoke(t, stackitem.Null{}, "setInputVerifier", key.PublicKey().Bytes())

	verifier, err := r.InputVerifier()
	require.NoError(t, err)
	require.Equal(t, key.PublicKey().Bytes(), verifier.Bytes())

	// proofs of the previous verifier are not accepted anymore
	in := env.Input(t, alice.ScriptHash(), 30)
	env.Invoker(alice).InvokeFail(t, peerreviewconst.ErrInvalidProof, "submitScore",
		alice.ScriptHash(), in.Handle.Bytes(), in.Proof)

	proof := key.Sign(fhe.ProofMessage(in.Handle, env.Hash, alice.ScriptHash()))
	env.Invoker(alice).Invoke(t, stackitem.Null{}, "submitScore", alice.ScriptHash(), in.Handle.Bytes(), proof)
}

func TestPeerReview_Update(t *testing.T) {
	env := chaintest.NewEnv(t, 0)

	nefBytes, err := env.Contract.NEF.Bytes()
	require.NoError(t, err)

	manifestBytes, err := json.Marshal(env.Contract.Manifest)
	require.NoError(t, err)

	env.Invoker(env.Manager).InvokeFail(t, "only committee can update contract", "update",
		nefBytes, manifestBytes, nil)

	// same version can not be applied twice
	env.Invoker(env.Executor.Committee).InvokeFail(t, common.ErrAlreadyUpdated, "update",
		nefBytes, manifestBytes, nil)
}
