package dump

import (
	"bytes"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
	"github.com/nspcc-dev/peerreview-contract/fhe"
)

// Creator writes the PeerReview contract dump. Output file format:
//
//	'<label>-<block>-contract.json': contract state and settings
//	'<label>-<block>-records.csv': scores and access grants
//
// Records are 'kind,handle,account,until' rows. Kind is either 'score' or
// 'grant', handles are base58 and accounts are Neo addresses. Until is the
// last block of the grant validity and is empty for scores.
//
// Use IterateDumps to access existing dumps.
type Creator struct {
	contract, records *os.File

	csv *csv.Writer
	n   int
}

// NewCreator returns Creator which dumps contract into given directory. The
// dump is identified by specified ID. Resulting Creator should be closed when
// finished working with it.
//
// NewCreator fails if dump with provided ID already exists.
func NewCreator(dir string, id ID) (*Creator, error) {
	var (
		res Creator
		err error
	)

	res.contract, err = createFile(dumpFilePath(dir, id, contractFileSuffix))
	if err != nil {
		return nil, err
	}

	res.records, err = createFile(dumpFilePath(dir, id, recordsFileSuffix))
	if err != nil {
		_ = res.contract.Close()
		_ = os.Remove(res.contract.Name())
		return nil, err
	}

	res.csv = csv.NewWriter(res.records)

	return &res, nil
}

// Write saves the contract state along with its decoded storage and flushes
// the dump to the file system. Scores are ordered by account, grants
// by handle and account.
func (x *Creator) Write(st state.Contract, pr PeerReview) error {
	doc := contractFile{
		State: st,
		Settings: settings{
			Manager:      address.Uint160ToString(pr.Manager),
			AccessTTL:    pr.AccessTTL,
			Participants: pr.Participants,
			Total:        pr.Total.String(),
		},
	}

	if pr.InputVerifier != nil {
		doc.Settings.InputVerifier = hex.EncodeToString(pr.InputVerifier.Bytes())
	}

	if pr.Average != (fhe.Handle{}) {
		doc.Settings.Average = pr.Average.String()
	}

	jEnc := json.NewEncoder(x.contract)
	jEnc.SetIndent("", " ")

	err := jEnc.Encode(doc)
	if err != nil {
		return fmt.Errorf("encode contract to JSON: %w", err)
	}

	accounts := make([]util.Uint160, 0, len(pr.Scores))
	for acc := range pr.Scores {
		accounts = append(accounts, acc)
	}

	slices.SortFunc(accounts, func(a, b util.Uint160) int {
		return bytes.Compare(a.BytesBE(), b.BytesBE())
	})

	for _, acc := range accounts {
		err = x.writeRecord(kindScore, pr.Scores[acc].String(), acc, "")
		if err != nil {
			return err
		}
	}

	for _, g := range sortedGrants(pr.Grants) {
		err = x.writeRecord(kindGrant, g.Handle.String(), g.Account, strconv.FormatInt(g.Until, 10))
		if err != nil {
			return err
		}
	}

	x.csv.Flush()

	err = x.csv.Error()
	if err != nil {
		return fmt.Errorf("flush CSV data: %w", err)
	}

	return nil
}

func (x *Creator) writeRecord(kind, handle string, acc util.Uint160, until string) error {
	err := x.csv.Write([]string{kind, handle, address.Uint160ToString(acc), until})
	if err != nil {
		return fmt.Errorf("write %s record as CSV data: %w", kind, err)
	}

	x.n++

	return nil
}

// Written returns number of records written so far.
func (x *Creator) Written() int {
	return x.n
}

// Close releases underlying resources of the Creator and makes it unusable.
func (x *Creator) Close() {
	_ = x.records.Close()
	_ = x.contract.Close()
}
