package fhe

import (
	"path/filepath"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/stretchr/testify/require"
	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
)

func newTestKeys(t *testing.T) *KeySet {
	params, err := NewParameters()
	require.NoError(t, err)
	return GenerateKeySet(params)
}

func encrypt(t *testing.T, e *Encryptor, v uint64) Record {
	ct, err := e.Encrypt(v)
	require.NoError(t, err)
	return Record{Ciphertext: ct}
}

func TestArithmetic(t *testing.T) {
	keys := newTestKeys(t)
	enc := NewEncryptor(keys.Params, keys.PublicKey)
	eval := NewEvaluator(keys.Params, keys.PublicKey)
	dec := NewDecryptor(keys.Params, keys.SecretKey)

	zero, err := eval.Trivial(0)
	require.NoError(t, err)

	total, err := eval.Add(zero, encrypt(t, enc, 80))
	require.NoError(t, err)
	total, err = eval.Add(total, encrypt(t, enc, 60))
	require.NoError(t, err)

	v, err := dec.Decrypt(total)
	require.NoError(t, err)
	require.EqualValues(t, 140, v)

	avg, err := eval.Div(total, 2)
	require.NoError(t, err)
	v, err = dec.Decrypt(avg)
	require.NoError(t, err)
	require.EqualValues(t, 70, v)

	total, err = eval.Sub(total, encrypt(t, enc, 60))
	require.NoError(t, err)
	avg, err = eval.Div(total, 3)
	require.NoError(t, err)
	v, err = dec.Decrypt(avg)
	require.NoError(t, err)
	require.EqualValues(t, 26, v)

	t.Run("divided operand", func(t *testing.T) {
		_, err := eval.Add(avg, total)
		require.ErrorIs(t, err, ErrDivided)

		_, err = eval.Div(avg, 2)
		require.ErrorIs(t, err, ErrDivided)
	})

	t.Run("division by zero", func(t *testing.T) {
		_, err := eval.Div(total, 0)
		require.Error(t, err)
	})

	t.Run("value out of range", func(t *testing.T) {
		_, err := enc.Encrypt(PlaintextModulus)
		require.Error(t, err)
	})

	t.Run("invalid ciphertext", func(t *testing.T) {
		_, err := dec.Decrypt(Record{Ciphertext: []byte{1, 2, 3}})
		require.Error(t, err)
	})
}

func TestDecodeCiphertext(t *testing.T) {
	keys := newTestKeys(t)
	params := keys.Params

	data, err := NewEncryptor(params, keys.PublicKey).Encrypt(7)
	require.NoError(t, err)

	ct, err := DecodeCiphertext(params, data)
	require.NoError(t, err)
	require.Equal(t, 1, ct.Degree())

	mutate := func(t *testing.T, f func(ct *rlwe.Ciphertext)) []byte {
		ct, err := DecodeCiphertext(params, data)
		require.NoError(t, err)

		f(ct)

		res, err := ct.MarshalBinary()
		require.NoError(t, err)
		return res
	}

	t.Run("foreign ring", func(t *testing.T) {
		lit := DefaultParametersLiteral
		lit.LogN = 13

		other, err := bgv.NewParametersFromLiteral(lit)
		require.NoError(t, err)

		foreign, err := NewEncryptor(other, GenerateKeySet(other).PublicKey).Encrypt(7)
		require.NoError(t, err)

		_, err = DecodeCiphertext(params, foreign)
		require.ErrorContains(t, err, "ring degree")

		eval := NewEvaluator(params, keys.PublicKey)
		_, err = eval.Add(Record{Ciphertext: data}, Record{Ciphertext: foreign})
		require.Error(t, err)

		_, err = NewDecryptor(params, keys.SecretKey).Decrypt(Record{Ciphertext: foreign})
		require.Error(t, err)
	})

	t.Run("degree", func(t *testing.T) {
		_, err := DecodeCiphertext(params, mutate(t, func(ct *rlwe.Ciphertext) {
			ct.Value = ct.Value[:1]
		}))
		require.ErrorContains(t, err, "degree")
	})

	t.Run("coefficient out of range", func(t *testing.T) {
		_, err := DecodeCiphertext(params, mutate(t, func(ct *rlwe.Ciphertext) {
			ct.Value[1].Coeffs[0][0] = params.RingQ().ModuliChain()[0]
		}))
		require.ErrorContains(t, err, "exceeds modulus")
	})

	t.Run("metadata", func(t *testing.T) {
		for name, f := range map[string]func(ct *rlwe.Ciphertext){
			"NTT":        func(ct *rlwe.Ciphertext) { ct.IsNTT = !ct.IsNTT },
			"Montgomery": func(ct *rlwe.Ciphertext) { ct.IsMontgomery = true },
			"batched":    func(ct *rlwe.Ciphertext) { ct.IsBatched = false },
			"dimensions": func(ct *rlwe.Ciphertext) { ct.LogDimensions.Cols-- },
			"scale":      func(ct *rlwe.Ciphertext) { ct.Scale = rlwe.NewScale(3) },
		} {
			_, err := DecodeCiphertext(params, mutate(t, f))
			require.Error(t, err, name)
		}
	})
}

func TestRecord(t *testing.T) {
	r := Record{Ciphertext: []byte{1, 2, 3}, Divisor: 7}

	var res Record
	require.NoError(t, res.Unmarshal(r.Marshal()))
	require.Equal(t, r, res)
	require.True(t, res.Divided())

	require.Error(t, res.Unmarshal([]byte{1, 2}))
}

func TestHandles(t *testing.T) {
	contract := util.Uint160{1, 2, 3}
	user := util.Uint160{4, 5, 6}

	h1 := InputHandle([]byte{1}, contract, user)
	require.NotEqual(t, h1, InputHandle([]byte{1}, contract, util.Uint160{}))
	require.NotEqual(t, h1, InputHandle([]byte{1}, util.Uint160{}, user))

	parsed, err := ParseHandle(h1.String())
	require.NoError(t, err)
	require.Equal(t, h1, parsed)

	_, err = DecodeHandle([]byte{1})
	require.Error(t, err)

	sum := ComputeHandle(OpAdd, contract, h1[:], h1[:])
	require.NotEqual(t, sum, ComputeHandle(OpSub, contract, h1[:], h1[:]))

	msg := ProofMessage(h1, contract, user)
	require.Len(t, msg, HandleSize+2*util.Uint160Size)
	require.Equal(t, h1[:], msg[:HandleSize])

	require.Empty(t, EncodeScalar(0))
	require.Equal(t, []byte{2}, EncodeScalar(2))
	require.Equal(t, []byte{0x80, 0}, EncodeScalar(128))

	v, err := DecodeScalar(EncodeScalar(300))
	require.NoError(t, err)
	require.EqualValues(t, 300, v)

	_, err = DecodeScalar(EncodeScalar(-1))
	require.Error(t, err)

	require.Equal(t, "add", OpAdd.String())
}

func TestKeyFiles(t *testing.T) {
	keys := newTestKeys(t)
	dir := t.TempDir()
	pub := filepath.Join(dir, "fhe.pub")
	sec := filepath.Join(dir, "fhe.key")

	require.NoError(t, keys.WriteFiles(pub, sec))

	restored, err := ReadKeySet(keys.Params, pub, sec)
	require.NoError(t, err)

	enc := NewEncryptor(keys.Params, restored.PublicKey)
	dec := NewDecryptor(keys.Params, keys.SecretKey)

	v, err := dec.Decrypt(encrypt(t, enc, 42))
	require.NoError(t, err)
	require.EqualValues(t, 42, v)

	dec = NewDecryptor(keys.Params, restored.SecretKey)
	v, err = dec.Decrypt(encrypt(t, NewEncryptor(keys.Params, keys.PublicKey), 17))
	require.NoError(t, err)
	require.EqualValues(t, 17, v)

	pubOnly, err := ReadKeySet(keys.Params, pub, "")
	require.NoError(t, err)
	require.Nil(t, pubOnly.SecretKey)
	_, err = pubOnly.MarshalSecretKey()
	require.Error(t, err)
}
