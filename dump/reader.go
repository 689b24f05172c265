package dump

import (
	"crypto/elliptic"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/peerreview-contract/fhe"
)

// IterateDumps iterates over all dumps created by the Creator in the
// specified directory, and passes ID and Reader of each dump into f. Missing
// directory is treated as empty.
func IterateDumps(dir string, f func(ID, *Reader)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, e error) error {
		if errors.Is(e, fs.ErrNotExist) {
			return nil
		} else if e != nil {
			return e
		}

		name := d.Name()
		if d.IsDir() || !strings.HasSuffix(name, sep+contractFileSuffix) {
			return nil
		}

		var id ID

		err := id.decodeString(strings.TrimSuffix(name, sep+contractFileSuffix))
		if err != nil {
			return fmt.Errorf("decode dump ID from file name '%s': %w", name, err)
		}

		r, err := Open(filepath.Dir(path), id)
		if err != nil {
			return fmt.Errorf("open dump '%s': %w", id, err)
		}

		f(id, r)

		return nil
	})
}

// Reader provides the contract collected in the superior dump.
type Reader struct {
	state state.Contract
	pr    PeerReview
}

// Open reads the dump with the given ID located in the directory.
func Open(dir string, id ID) (*Reader, error) {
	var r Reader

	fContract, err := os.Open(dumpFilePath(dir, id, contractFileSuffix))
	if err != nil {
		return nil, fmt.Errorf("open contract file: %w", err)
	}
	defer fContract.Close()

	fRecords, err := os.Open(dumpFilePath(dir, id, recordsFileSuffix))
	if err != nil {
		return nil, fmt.Errorf("open records file: %w", err)
	}
	defer fRecords.Close()

	err = r.readContract(fContract)
	if err != nil {
		return nil, err
	}

	err = r.readRecords(fRecords)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

func (x *Reader) readContract(rd io.Reader) error {
	var doc contractFile

	err := json.NewDecoder(rd).Decode(&doc)
	if err != nil {
		return fmt.Errorf("decode contract from JSON: %w", err)
	}

	x.state = doc.State
	x.pr = PeerReview{
		AccessTTL:    doc.Settings.AccessTTL,
		Participants: doc.Settings.Participants,
		Scores:       make(map[util.Uint160]fhe.Handle),
	}

	x.pr.Manager, err = address.StringToUint160(doc.Settings.Manager)
	if err != nil {
		return fmt.Errorf("decode manager: %w", err)
	}

	if doc.Settings.InputVerifier != "" {
		b, err := hex.DecodeString(doc.Settings.InputVerifier)
		if err != nil {
			return fmt.Errorf("decode input verifier: %w", err)
		}

		x.pr.InputVerifier, err = keys.NewPublicKeyFromBytes(b, elliptic.P256())
		if err != nil {
			return fmt.Errorf("decode input verifier: %w", err)
		}
	}

	x.pr.Total, err = fhe.ParseHandle(doc.Settings.Total)
	if err != nil {
		return fmt.Errorf("decode total: %w", err)
	}

	if doc.Settings.Average != "" {
		x.pr.Average, err = fhe.ParseHandle(doc.Settings.Average)
		if err != nil {
			return fmt.Errorf("decode average: %w", err)
		}
	}

	return nil
}

func (x *Reader) readRecords(rd io.Reader) error {
	_csv := csv.NewReader(rd)
	_csv.FieldsPerRecord = 4
	_csv.ReuseRecord = true

	for {
		rec, err := _csv.Read()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("read next CSV record: %w", err)
		}

		// out-of-range safety guaranteed by csv settings
		h, err := fhe.ParseHandle(rec[1])
		if err != nil {
			return fmt.Errorf("decode %s handle: %w", rec[0], err)
		}

		acc, err := address.StringToUint160(rec[2])
		if err != nil {
			return fmt.Errorf("decode %s account: %w", rec[0], err)
		}

		switch rec[0] {
		case kindScore:
			x.pr.Scores[acc] = h
		case kindGrant:
			until, err := strconv.ParseInt(rec[3], 10, 64)
			if err != nil {
				return fmt.Errorf("decode grant expiration: %w", err)
			}

			x.pr.Grants = append(x.pr.Grants, Grant{Handle: h, Account: acc, Until: until})
		default:
			return fmt.Errorf("unknown record kind '%s'", rec[0])
		}
	}
}

// ContractState returns state of the contract from the superior dump.
func (x *Reader) ContractState() state.Contract {
	return x.state
}

// PeerReview returns contract storage from the superior dump.
func (x *Reader) PeerReview() PeerReview {
	return x.pr
}
