package peerreview

import (
	"github.com/nspcc-dev/neo-go/pkg/interop"
	"github.com/nspcc-dev/neo-go/pkg/interop/contract"
	"github.com/nspcc-dev/neo-go/pkg/interop/convert"
	"github.com/nspcc-dev/neo-go/pkg/interop/iterator"
	"github.com/nspcc-dev/neo-go/pkg/interop/native/crypto"
	"github.com/nspcc-dev/neo-go/pkg/interop/native/ledger"
	"github.com/nspcc-dev/neo-go/pkg/interop/native/management"
	"github.com/nspcc-dev/neo-go/pkg/interop/runtime"
	"github.com/nspcc-dev/neo-go/pkg/interop/storage"
	"github.com/nspcc-dev/peerreview-contract/common"
	"github.com/nspcc-dev/peerreview-contract/contracts/peerreview/peerreviewconst"
)

// Aggregate is an encrypted aggregate value along with the number of
// participants it was computed over.
type Aggregate struct {
	Handle []byte
	Count  int
}

const (
	managerKey  = "manager"
	verifierKey = "verifier"
	ttlKey      = "ttl"
	countKey    = "count"
	totalKey    = "total"
	averageKey  = "average"

	scorePrefix = 's'
	grantPrefix = 'a'
)

// nolint:deadcode,unused
func _deploy(data any, isUpdate bool) {
	ctx := storage.GetContext()

	if isUpdate {
		args := data.([]any)
		common.CheckVersion(args[len(args)-1].(int))
		return
	}

	args := data.(struct {
		manager  interop.Hash160
		verifier interop.PublicKey
		ttl      int
	})

	if len(args.manager) != interop.Hash160Len {
		panic("incorrect length of manager script hash")
	}

	if len(args.verifier) != interop.PublicKeyCompressedLen {
		panic("incorrect input verifier public key length")
	}

	ttl := args.ttl
	if ttl < 0 {
		panic("negative access TTL")
	} else if ttl == 0 {
		ttl = peerreviewconst.DefaultAccessTTL
	}

	storage.Put(ctx, managerKey, args.manager)
	storage.Put(ctx, verifierKey, args.verifier)
	storage.Put(ctx, ttlKey, ttl)
	storage.Put(ctx, countKey, 0)

	// total starts from the encrypted zero so that every submission is a
	// plain homomorphic addition
	total := compute(peerreviewconst.OpTrivial, convert.ToBytes(0), []byte{})
	storage.Put(ctx, totalKey, total)

	runtime.Log("peerreview contract initialized")
}

// Update method updates contract source code and manifest. It can be invoked
// only by committee.
func Update(script []byte, manifest []byte, data any) {
	if !common.HasUpdateAccess() {
		panic("only committee can update contract")
	}

	contract.Call(interop.Hash160(management.Hash), "update",
		contract.All, script, manifest, common.AppendVersion(data))
	runtime.Log("peerreview contract updated")
}

// SubmitScore method saves encrypted score of the reviewer and updates
// encrypted aggregates. It must be signed by the reviewer.
//
// ScoreHandle is a handle of the ciphertext registered by the input verifier,
// scoreProof is the verifier's signature of the handle bound to this contract
// and reviewer. Repeated submission replaces previous score and does not
// change participant count.
//
// Produces ScoreSubmitted notification.
func SubmitScore(reviewer interop.Hash160, scoreHandle []byte, scoreProof interop.Signature) {
	ctx := storage.GetContext()

	common.CheckOwnerWitness(reviewer)

	if len(scoreHandle) != peerreviewconst.HandleLength {
		panic(peerreviewconst.ErrInvalidHandle)
	}

	verifyInput(ctx, reviewer, scoreHandle, scoreProof)

	total := storage.Get(ctx, totalKey).([]byte)
	count := common.GetInt(ctx, countKey)

	// superseded aggregates must not stay decryptable, difference of two
	// consecutive ones reveals a single score
	revoke(ctx, total)
	if prevAverage := storage.Get(ctx, averageKey); prevAverage != nil {
		revoke(ctx, prevAverage.([]byte))
	}

	key := common.PrefixedKey(scorePrefix, reviewer)
	prev := storage.Get(ctx, key)
	updated := prev != nil

	if updated {
		revoke(ctx, prev.([]byte))
		total = compute(peerreviewconst.OpSub, total, prev.([]byte))
	} else {
		count++
		storage.Put(ctx, countKey, count)
	}

	total = compute(peerreviewconst.OpAdd, total, scoreHandle)
	average := compute(peerreviewconst.OpDiv, total, convert.ToBytes(count))

	storage.Put(ctx, key, scoreHandle)
	storage.Put(ctx, totalKey, total)
	storage.Put(ctx, averageKey, average)

	manager := storage.Get(ctx, managerKey).(interop.Hash160)

	allow(ctx, scoreHandle, reviewer)
	allow(ctx, average, reviewer)
	allow(ctx, total, manager)
	allow(ctx, average, manager)

	runtime.Notify("ScoreSubmitted", reviewer, updated)
}

// RequestMyScoreAccess method grants the reviewer permission to decrypt its
// own score. It must be signed by the reviewer.
//
// Produces DecryptionAccessRequested notification.
func RequestMyScoreAccess(reviewer interop.Hash160) {
	ctx := storage.GetContext()

	common.CheckOwnerWitness(reviewer)

	h := storage.Get(ctx, common.PrefixedKey(scorePrefix, reviewer))
	if h == nil {
		panic(peerreviewconst.ErrNoSubmission)
	}

	allow(ctx, h.([]byte), reviewer)

	runtime.Notify("DecryptionAccessRequested", reviewer, peerreviewconst.AccessScore)
}

// RequestAverageAccess method grants the requester permission to decrypt
// current encrypted average. It must be signed by the requester.
//
// Produces DecryptionAccessRequested notification.
func RequestAverageAccess(requester interop.Hash160) {
	ctx := storage.GetContext()

	common.CheckWitness(requester)

	h := storage.Get(ctx, averageKey)
	if h == nil {
		panic(peerreviewconst.ErrNoSubmissions)
	}

	allow(ctx, h.([]byte), requester)

	runtime.Notify("DecryptionAccessRequested", requester, peerreviewconst.AccessAverage)
}

// RequestTotalAccess method grants the manager permission to decrypt current
// encrypted total. It must be signed by the requester which must be the
// manager.
//
// Produces DecryptionAccessRequested notification.
func RequestTotalAccess(requester interop.Hash160) {
	ctx := storage.GetContext()

	common.CheckWitness(requester)

	manager := storage.Get(ctx, managerKey).(interop.Hash160)
	if !common.BytesEqual(requester, manager) {
		panic(peerreviewconst.ErrOnlyManager)
	}

	allow(ctx, storage.Get(ctx, totalKey).([]byte), manager)

	runtime.Notify("DecryptionAccessRequested", manager, peerreviewconst.AccessTotal)
}

// SetInputVerifier method replaces public key of the input verifier. It must
// be signed by the manager.
func SetInputVerifier(key interop.PublicKey) {
	ctx := storage.GetContext()

	common.CheckOwnerWitness(storage.Get(ctx, managerKey).(interop.Hash160))

	if len(key) != interop.PublicKeyCompressedLen {
		panic("incorrect input verifier public key length")
	}

	storage.Put(ctx, verifierKey, key)

	runtime.Log("input verifier changed")
}

// GetMyScore method returns handle of the encrypted score submitted by the
// reviewer.
func GetMyScore(reviewer interop.Hash160) []byte {
	ctx := storage.GetReadOnlyContext()

	h := storage.Get(ctx, common.PrefixedKey(scorePrefix, reviewer))
	if h == nil {
		panic(peerreviewconst.ErrNoSubmission)
	}

	return h.([]byte)
}

// GetEncryptedTotal method returns handle of the encrypted sum of all current
// scores and the number of participants.
func GetEncryptedTotal() Aggregate {
	ctx := storage.GetReadOnlyContext()

	return Aggregate{
		Handle: storage.Get(ctx, totalKey).([]byte),
		Count:  common.GetInt(ctx, countKey),
	}
}

// GetEncryptedAverage method returns handle of the encrypted average of all
// current scores and the number of participants. Handle is null until the
// first submission.
func GetEncryptedAverage() Aggregate {
	ctx := storage.GetReadOnlyContext()

	var h []byte
	if v := storage.Get(ctx, averageKey); v != nil {
		h = v.([]byte)
	}

	return Aggregate{
		Handle: h,
		Count:  common.GetInt(ctx, countKey),
	}
}

// HasSubmitted method returns true if the account has submitted a score.
func HasSubmitted(account interop.Hash160) bool {
	ctx := storage.GetReadOnlyContext()
	return storage.Get(ctx, common.PrefixedKey(scorePrefix, account)) != nil
}

// ParticipantCount method returns the number of distinct reviewers.
func ParticipantCount() int {
	ctx := storage.GetReadOnlyContext()
	return common.GetInt(ctx, countKey)
}

// Manager method returns script hash of the manager account.
func Manager() interop.Hash160 {
	ctx := storage.GetReadOnlyContext()
	return storage.Get(ctx, managerKey).(interop.Hash160)
}

// InputVerifier method returns public key of the input verifier.
func InputVerifier() interop.PublicKey {
	ctx := storage.GetReadOnlyContext()
	return storage.Get(ctx, verifierKey).(interop.PublicKey)
}

// AccessTTL method returns the number of blocks decryption grants stay valid.
func AccessTTL() int {
	ctx := storage.GetReadOnlyContext()
	return common.GetInt(ctx, ttlKey)
}

// IsAllowed method returns true if the account is permitted to decrypt the
// handle at the current height.
func IsAllowed(handle []byte, account interop.Hash160) bool {
	ctx := storage.GetReadOnlyContext()

	until := storage.Get(ctx, grantKey(handle, account))
	if until == nil {
		return false
	}

	return ledger.CurrentIndex() <= until.(int)
}

// ProtocolId method returns identifier of the handle derivation and input
// proof rules.
func ProtocolId() int { //nolint:revive
	return peerreviewconst.ProtocolID
}

// Version returns the version of the contract.
func Version() int {
	return common.Version
}

func allow(ctx storage.Context, handle []byte, account interop.Hash160) {
	ttl := common.GetInt(ctx, ttlKey)
	storage.Put(ctx, grantKey(handle, account), ledger.CurrentIndex()+ttl)
}

// revoke removes all decryption grants of the handle.
func revoke(ctx storage.Context, handle []byte) {
	var keys [][]byte

	it := storage.Find(ctx, common.PrefixedKey(grantPrefix, handle), storage.KeysOnly)
	for iterator.Next(it) {
		keys = append(keys, iterator.Value(it).([]byte))
	}

	for i := range keys {
		storage.Delete(ctx, keys[i])
	}
}

func grantKey(handle []byte, account interop.Hash160) []byte {
	return append(common.PrefixedKey(grantPrefix, handle), account...)
}

// verifyInput panics if proof is not the input verifier signature of
// handle || contract || user.
func verifyInput(ctx storage.Context, user interop.Hash160, handle []byte, proof interop.Signature) {
	key := storage.Get(ctx, verifierKey).(interop.PublicKey)

	msg := append([]byte{}, handle...)
	msg = append(msg, runtime.GetExecutingScriptHash()...)
	msg = append(msg, user...)

	if !crypto.VerifyWithECDsa(msg, key, proof, crypto.Secp256r1) {
		panic(peerreviewconst.ErrInvalidProof)
	}
}

// compute derives handle of the operation result and notifies off-chain
// executors about it.
func compute(op byte, lhs []byte, rhs []byte) []byte {
	buf := []byte{op}
	buf = append(buf, runtime.GetExecutingScriptHash()...)
	buf = append(buf, lhs...)
	buf = append(buf, rhs...)

	var result []byte = crypto.Sha256(buf)

	runtime.Notify("FheCompute", int(op), lhs, rhs, result)

	return result
}
