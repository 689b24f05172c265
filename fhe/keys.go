package fhe

import (
	"errors"
	"fmt"
	"os"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"
)

// KeySet groups network FHE keys. SecretKey is nil for participants that
// only encrypt or evaluate.
type KeySet struct {
	Params    bgv.Parameters
	SecretKey *rlwe.SecretKey
	PublicKey *rlwe.PublicKey
}

// GenerateKeySet generates a new key pair for the given parameters.
func GenerateKeySet(params bgv.Parameters) *KeySet {
	sk, pk := rlwe.NewKeyGenerator(params).GenKeyPairNew()
	return &KeySet{
		Params:    params,
		SecretKey: sk,
		PublicKey: pk,
	}
}

// MarshalPublicKey returns binary encoding of the public key.
func (x *KeySet) MarshalPublicKey() ([]byte, error) {
	return x.PublicKey.MarshalBinary()
}

// MarshalSecretKey returns binary encoding of the secret key.
func (x *KeySet) MarshalSecretKey() ([]byte, error) {
	if x.SecretKey == nil {
		return nil, errors.New("secret key is missing")
	}
	return x.SecretKey.MarshalBinary()
}

// UnmarshalPublicKey decodes public key for the given parameters.
func UnmarshalPublicKey(params bgv.Parameters, data []byte) (*rlwe.PublicKey, error) {
	pk := rlwe.NewPublicKey(params)
	if err := pk.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	return pk, nil
}

// UnmarshalSecretKey decodes secret key for the given parameters.
func UnmarshalSecretKey(params bgv.Parameters, data []byte) (*rlwe.SecretKey, error) {
	sk := rlwe.NewSecretKey(params)
	if err := sk.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	return sk, nil
}

// WriteFiles saves the public key and, if present, the secret key into the
// specified files. Secret key file is readable by the owner only.
func (x *KeySet) WriteFiles(publicPath, secretPath string) error {
	pk, err := x.MarshalPublicKey()
	if err != nil {
		return fmt.Errorf("encode public key: %w", err)
	}

	if err = os.WriteFile(publicPath, pk, 0644); err != nil {
		return fmt.Errorf("write public key file: %w", err)
	}

	if x.SecretKey == nil || secretPath == "" {
		return nil
	}

	sk, err := x.MarshalSecretKey()
	if err != nil {
		return fmt.Errorf("encode secret key: %w", err)
	}

	if err = os.WriteFile(secretPath, sk, 0600); err != nil {
		return fmt.Errorf("write secret key file: %w", err)
	}

	return nil
}

// ReadKeySet reads keys saved by WriteFiles. Empty secretPath leaves
// SecretKey unset.
func ReadKeySet(params bgv.Parameters, publicPath, secretPath string) (*KeySet, error) {
	data, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("read public key file: %w", err)
	}

	res := &KeySet{Params: params}

	res.PublicKey, err = UnmarshalPublicKey(params, data)
	if err != nil {
		return nil, err
	}

	if secretPath == "" {
		return res, nil
	}

	data, err = os.ReadFile(secretPath)
	if err != nil {
		return nil, fmt.Errorf("read secret key file: %w", err)
	}

	res.SecretKey, err = UnmarshalSecretKey(params, data)
	if err != nil {
		return nil, err
	}

	return res, nil
}
