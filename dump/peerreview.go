package dump

import (
	"bytes"
	"crypto/elliptic"
	"errors"
	"fmt"
	"slices"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/encoding/bigint"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/peerreview-contract/fhe"
)

// Storage layout of the PeerReview contract.
const (
	keyManager  = "manager"
	keyVerifier = "verifier"
	keyTTL      = "ttl"
	keyCount    = "count"
	keyTotal    = "total"
	keyAverage  = "average"

	prefixScore = 's'
	prefixGrant = 'a'
)

// Grant is a decryption permission stored in the contract.
type Grant struct {
	Handle  fhe.Handle
	Account util.Uint160
	// Last block at which the grant is valid.
	Until int64
}

// PeerReview is a decoded storage of the PeerReview contract.
type PeerReview struct {
	Manager       util.Uint160
	InputVerifier *keys.PublicKey
	AccessTTL     int64
	Participants  int64
	Total         fhe.Handle
	// Zero until the first submission.
	Average fhe.Handle

	Scores map[util.Uint160]fhe.Handle
	Grants []Grant
}

// sortedGrants returns grants ordered by handle and account.
func sortedGrants(gs []Grant) []Grant {
	res := slices.Clone(gs)
	slices.SortFunc(res, func(a, b Grant) int {
		if c := bytes.Compare(a.Handle[:], b.Handle[:]); c != 0 {
			return c
		}
		return bytes.Compare(a.Account.BytesBE(), b.Account.BytesBE())
	})
	return res
}

func (x *PeerReview) decodeItem(k, v []byte) error {
	var err error

	switch string(k) {
	case keyManager:
		x.Manager, err = util.Uint160DecodeBytesBE(v)
	case keyVerifier:
		x.InputVerifier, err = keys.NewPublicKeyFromBytes(v, elliptic.P256())
	case keyTTL:
		x.AccessTTL, err = decodeInt(v)
	case keyCount:
		x.Participants, err = decodeInt(v)
	case keyTotal:
		x.Total, err = fhe.DecodeHandle(v)
	case keyAverage:
		x.Average, err = fhe.DecodeHandle(v)
	default:
		if len(k) == 0 {
			return errors.New("empty key")
		}

		switch k[0] {
		case prefixScore:
			var acc util.Uint160
			var h fhe.Handle

			acc, err = util.Uint160DecodeBytesBE(k[1:])
			if err == nil {
				h, err = fhe.DecodeHandle(v)
				x.Scores[acc] = h
			}
		case prefixGrant:
			var g Grant

			if len(k) != 1+fhe.HandleSize+util.Uint160Size {
				return fmt.Errorf("invalid grant key length %d", len(k))
			}

			g.Handle, _ = fhe.DecodeHandle(k[1 : 1+fhe.HandleSize])
			g.Account, _ = util.Uint160DecodeBytesBE(k[1+fhe.HandleSize:])
			g.Until, err = decodeInt(v)
			x.Grants = append(x.Grants, g)
		default:
			return errors.New("unknown key")
		}
	}

	return err
}

func decodeInt(v []byte) (int64, error) {
	n := bigint.FromBytes(v)
	if !n.IsInt64() {
		return 0, fmt.Errorf("integer overflow %s", n)
	}
	return n.Int64(), nil
}
