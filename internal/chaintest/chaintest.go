/*
Package chaintest provides in-memory PeerReview network for tests: single-node
blockchain with deployed contract, FHE keys and all off-chain services wired
together. Transactions sent through Actor are accepted in a new block right
away, and FHE operations announced in them are executed before Actor returns.
*/
package chaintest

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/core/transaction"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/neorpc/result"
	"github.com/nspcc-dev/neo-go/pkg/neotest"
	"github.com/nspcc-dev/neo-go/pkg/neotest/chain"
	"github.com/nspcc-dev/neo-go/pkg/smartcontract/trigger"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/neo-go/pkg/vm/vmstate"
	"github.com/nspcc-dev/peerreview-contract/coprocessor"
	"github.com/nspcc-dev/peerreview-contract/fhe"
	"github.com/nspcc-dev/peerreview-contract/gateway"
	"github.com/nspcc-dev/peerreview-contract/oracle"
	"github.com/nspcc-dev/peerreview-contract/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// ContractPath returns path to the PeerReview contract sources.
func ContractPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "contracts", "peerreview")
}

// CompileContract compiles PeerReview contract deployed by the sender.
// Compilation result is cached per test binary, so Hash field of the returned
// contract corresponds to the sender of the first call.
func CompileContract(t testing.TB, sender util.Uint160) *neotest.Contract {
	dir := ContractPath()
	return neotest.CompileFile(t, sender, dir, filepath.Join(dir, "config.yml"))
}

// Env is a PeerReview test network.
type Env struct {
	Executor *neotest.Executor
	Contract *neotest.Contract
	Hash     util.Uint160

	Manager  neotest.SingleSigner
	Verifier *keys.PrivateKey
	TTL      int64

	Keys        *fhe.KeySet
	Store       *store.Memory
	Gateway     *gateway.Gateway
	Coprocessor *coprocessor.Coprocessor
	Oracle      *oracle.Oracle
}

// NewEnv deploys PeerReview contract with the given access TTL (0 for
// default) and starts off-chain services.
func NewEnv(t testing.TB, ttl int64) *Env {
	bc, acc := chain.NewSingle(t)
	e := neotest.NewExecutor(t, bc, acc, acc)

	verifier, err := keys.NewPrivateKey()
	require.NoError(t, err)

	params, err := fhe.NewParameters()
	require.NoError(t, err)

	env := &Env{
		Executor: e,
		Contract: CompileContract(t, e.CommitteeHash),
		Manager:  e.NewAccount(t).(neotest.SingleSigner),
		Verifier: verifier,
		TTL:      ttl,
		Keys:     fhe.GenerateKeySet(params),
		Store:    store.NewMemory(),
	}
	env.Hash = env.Contract.Hash

	pub, err := env.Keys.MarshalPublicKey()
	require.NoError(t, err)

	log := zaptest.NewLogger(t)

	env.Coprocessor = coprocessor.New(coprocessor.Prm{
		Logger:    log,
		Contract:  env.Hash,
		Store:     env.Store,
		Evaluator: fhe.NewEvaluator(params, env.Keys.PublicKey),
	})

	env.Gateway = gateway.New(gateway.Prm{
		Logger:    log,
		Key:       verifier,
		Params:    params,
		PublicKey: pub,
		Store:     env.Store,
		OnInput:   func(fhe.Handle) { env.Coprocessor.Retry() },
	})

	env.Oracle = oracle.New(oracle.Prm{
		Logger:    log,
		ACL:       oracle.NewContractACL(env.Actor(t, e.Committee)),
		Store:     env.Store,
		Decryptor: fhe.NewDecryptor(params, env.Keys.SecretKey),
	})

	tx := e.NewDeployTx(t, e.Chain, env.Contract, env.DeployData())
	e.AddNewBlock(t, tx)
	e.CheckHalt(t, tx.Hash())
	env.Sync(t, tx.Hash())

	return env
}

// DeployData returns deployment parameters of the contract.
func (e *Env) DeployData() []any {
	return []any{e.Manager.ScriptHash(), e.Verifier.PublicKey().Bytes(), e.TTL}
}

// Invoker returns contract invoker signed by the given signers.
func (e *Env) Invoker(signers ...neotest.Signer) *neotest.ContractInvoker {
	return e.Executor.NewInvoker(e.Hash, signers...)
}

// Sync executes FHE operations announced in the transactions.
func (e *Env) Sync(t testing.TB, txs ...util.Uint256) {
	for _, h := range txs {
		aers, err := e.Executor.Chain.GetAppExecResults(h, trigger.Application)
		require.NoError(t, err)

		log := result.NewApplicationLog(h, aers, trigger.Application)
		require.NoError(t, e.Coprocessor.ProcessLog(&log))
	}
}

// Input encrypts the value, registers it in the gateway on behalf of the
// user and returns handle and proof.
func (e *Env) Input(t testing.TB, user util.Uint160, v uint64) gateway.Input {
	ct, err := fhe.NewEncryptor(e.Keys.Params, e.Keys.PublicKey).Encrypt(v)
	require.NoError(t, err)

	in, err := e.Gateway.Register(e.Hash, user, ct)
	require.NoError(t, err)

	return in
}

// Decrypt returns clear value of the stored handle bypassing access control.
func (e *Env) Decrypt(t testing.TB, h []byte) uint64 {
	handle, err := fhe.DecodeHandle(h)
	require.NoError(t, err)

	r, err := e.Store.Get(handle)
	require.NoError(t, err)

	v, err := fhe.NewDecryptor(e.Keys.Params, e.Keys.SecretKey).Decrypt(r)
	require.NoError(t, err)

	return v
}

// Actor returns Actor sending transactions signed by the signer.
func (e *Env) Actor(t testing.TB, signer neotest.Signer) *Actor {
	return &Actor{t: t, env: e, signer: signer}
}

var errNotSupported = errors.New("not supported by test actor")

// Actor implements RPC actor over the test chain. It satisfies
// peerreview.Actor, deploy.Actor and client.Waiter.
type Actor struct {
	t      testing.TB
	env    *Env
	signer neotest.Signer
}

// Call performs test invocation of the contract method.
func (a *Actor) Call(contract util.Uint160, operation string, params ...any) (*result.Invoke, error) {
	stack, err := a.env.Executor.NewInvoker(contract, a.signer).TestInvoke(a.t, operation, params...)
	if err != nil {
		return &result.Invoke{
			State:          vmstate.Fault.String(),
			FaultException: err.Error(),
		}, nil
	}

	return &result.Invoke{
		State: vmstate.Halt.String(),
		Stack: stack.ToArray(),
	}, nil
}

// SendCall accepts transaction calling the method in a new block and
// executes announced FHE operations.
func (a *Actor) SendCall(contract util.Uint160, method string, params ...any) (util.Uint256, uint32, error) {
	return a.send(a.env.Executor.NewInvoker(contract, a.signer).PrepareInvoke(a.t, method, params...))
}

// SendRun accepts transaction with the script in a new block and executes
// announced FHE operations.
func (a *Actor) SendRun(script []byte) (util.Uint256, uint32, error) {
	return a.send(a.env.Executor.PrepareInvocation(a.t, script, []neotest.Signer{a.signer}))
}

func (a *Actor) send(tx *transaction.Transaction) (util.Uint256, uint32, error) {
	a.env.Executor.AddNewBlock(a.t, tx)
	a.env.Sync(a.t, tx.Hash())
	return tx.Hash(), tx.ValidUntilBlock, nil
}

// Sender returns script hash of the signer.
func (a *Actor) Sender() util.Uint160 {
	return a.signer.ScriptHash()
}

// Wait returns execution result of the accepted transaction.
func (a *Actor) Wait(h util.Uint256, _ uint32, err error) (*state.AppExecResult, error) {
	if err != nil {
		return nil, err
	}
	return a.env.Executor.GetTxExecResult(a.t, h), nil
}

// MakeCall is not supported.
func (a *Actor) MakeCall(util.Uint160, string, ...any) (*transaction.Transaction, error) {
	return nil, errNotSupported
}

// MakeRun is not supported.
func (a *Actor) MakeRun([]byte) (*transaction.Transaction, error) {
	return nil, errNotSupported
}

// MakeUnsignedCall is not supported.
func (a *Actor) MakeUnsignedCall(util.Uint160, string, []transaction.Attribute, ...any) (*transaction.Transaction, error) {
	return nil, errNotSupported
}

// MakeUnsignedRun is not supported.
func (a *Actor) MakeUnsignedRun([]byte, []transaction.Attribute) (*transaction.Transaction, error) {
	return nil, errNotSupported
}

// LocalGateway exposes Gateway through the client interface.
type LocalGateway struct {
	*gateway.Gateway
}

// Register implements client.Gateway.
func (g LocalGateway) Register(_ context.Context, contract, user util.Uint160, ciphertext []byte) (gateway.Input, error) {
	return g.Gateway.Register(contract, user, ciphertext)
}

// PublicKey implements client.Gateway.
func (g LocalGateway) PublicKey(context.Context) ([]byte, error) {
	return g.FHEPublicKey(), nil
}

// LocalOracle exposes Oracle through the client interface.
type LocalOracle struct {
	*oracle.Oracle
}

// Decrypt implements client.Oracle.
func (o LocalOracle) Decrypt(_ context.Context, req oracle.Request) (uint64, error) {
	_, v, err := o.Oracle.Decrypt(req)
	return v, err
}
