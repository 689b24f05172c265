package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/wallet"
	"github.com/nspcc-dev/peerreview-contract/config"
	"github.com/nspcc-dev/peerreview-contract/fhe"
	"github.com/stretchr/testify/require"
)

func runApp(t *testing.T, args ...string) (string, error) {
	buf := bytes.NewBuffer(nil)

	app := newApp()
	app.Writer = buf
	app.ErrWriter = buf

	err := app.Run(append([]string{"fhenode"}, args...))

	return buf.String(), err
}

func TestKeygen(t *testing.T) {
	dir := t.TempDir()
	pub := filepath.Join(dir, "fhe.pub")
	sec := filepath.Join(dir, "fhe.sec")

	out, err := runApp(t, "keygen", "--public", pub, "--secret", sec)
	require.NoError(t, err)
	require.Contains(t, out, pub)

	params, err := fhe.NewParameters()
	require.NoError(t, err)

	ks, err := fhe.ReadKeySet(params, pub, sec)
	require.NoError(t, err)
	require.NotNil(t, ks.SecretKey)

	fi, err := os.Stat(sec)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	_, err = runApp(t, "keygen", "--public", "", "--secret", sec)
	require.Error(t, err)
}

func TestRunInvalidConfig(t *testing.T) {
	_, err := runApp(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("rpc:\n  endpoint: ws://localhost/ws\n"), 0o600))

	_, err = runApp(t, "run", "--config", path)
	require.ErrorContains(t, err, "missing contract")
}

func TestVerifierKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")

	w, err := wallet.NewWallet(path)
	require.NoError(t, err)

	acc, err := wallet.NewAccount()
	require.NoError(t, err)
	require.NoError(t, acc.Encrypt("pass", keys.NEP2ScryptParams()))
	w.AddAccount(acc)
	require.NoError(t, w.Save())
	w.Close()

	cfg := config.Wallet{Path: path, Address: acc.Address, Password: "pass"}

	key, err := verifierKey(cfg)
	require.NoError(t, err)
	require.Equal(t, acc.ScriptHash(), key.GetScriptHash())

	wrong := cfg
	wrong.Password = "wrong"
	_, err = verifierKey(wrong)
	require.ErrorContains(t, err, "unlock verifier account")

	missing := cfg
	missing.Address = address.Uint160ToString(acc.ScriptHash().Reverse())
	_, err = verifierKey(missing)
	require.ErrorContains(t, err, "is missing in the wallet")

	_, err = verifierKey(config.Wallet{Path: filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)
}
