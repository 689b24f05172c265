package dump

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/core/state"
)

// ID is a unique identifier of the dump.
type ID struct {
	// Label of the dump source (e.g. testnet, review-2024).
	Label string
	// Blockchain height at which the state was pulled.
	Block uint32
}

// String returns hyphen-separated ID fields.
func (x ID) String() string {
	return x.Label + sep + strconv.FormatUint(uint64(x.Block), 10)
}

// decodeString decodes ID from the dump file name. Labels must not contain
// separators.
func (x *ID) decodeString(s string) error {
	label, block, ok := strings.Cut(s, sep)
	if !ok {
		return fmt.Errorf("missing '%s' separator", sep)
	}

	block, _, _ = strings.Cut(block, sep)

	n, err := strconv.ParseUint(block, 10, 32)
	if err != nil {
		return fmt.Errorf("decode block number from '%s': %w", block, err)
	}

	x.Label = label
	x.Block = uint32(n)

	return nil
}

const (
	sep = "-"

	contractFileSuffix = "contract.json"
	recordsFileSuffix  = "records.csv"
)

// Kinds of the records file rows.
const (
	kindScore = "score"
	kindGrant = "grant"
)

// contractFile is the JSON document with the contract state and its settings.
type contractFile struct {
	State    state.Contract `json:"state"`
	Settings settings       `json:"settings"`
}

// settings are singleton storage items in readable form: addresses, base58
// handles and hex public key.
type settings struct {
	Manager       string `json:"manager"`
	InputVerifier string `json:"input_verifier,omitempty"`
	AccessTTL     int64  `json:"access_ttl"`
	Participants  int64  `json:"participants"`
	Total         string `json:"total"`
	Average       string `json:"average,omitempty"`
}

func dumpFilePath(dir string, id ID, suffix string) string {
	return filepath.Join(dir, id.String()+sep+suffix)
}

// createFile creates write-only dump file, existing files are never
// overwritten.
func createFile(p string) (*os.File, error) {
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("dump file '%s' already exists", p)
	} else if err != nil {
		return nil, fmt.Errorf("create dump file '%s': %w", p, err)
	}
	return f, nil
}
