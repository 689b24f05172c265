package fhe

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Record is a stored ciphertext. Non-zero Divisor means the plaintext value
// is the decrypted one divided by Divisor with the remainder dropped.
type Record struct {
	Ciphertext []byte
	Divisor    uint64
}

const recordHeaderSize = 8

// ErrDivided is returned on attempt to use divided record as an operand of
// an arithmetic operation.
var ErrDivided = errors.New("record is already divided")

// Marshal returns binary encoding of the record: 8-byte little-endian divisor
// followed by the serialized ciphertext.
func (r Record) Marshal() []byte {
	buf := make([]byte, recordHeaderSize+len(r.Ciphertext))
	binary.LittleEndian.PutUint64(buf, r.Divisor)
	copy(buf[recordHeaderSize:], r.Ciphertext)
	return buf
}

// Unmarshal decodes record from Marshal output.
func (r *Record) Unmarshal(data []byte) error {
	if len(data) < recordHeaderSize {
		return fmt.Errorf("record is too short: %d bytes", len(data))
	}
	r.Divisor = binary.LittleEndian.Uint64(data)
	r.Ciphertext = append([]byte(nil), data[recordHeaderSize:]...)
	return nil
}

// Divided checks whether the record carries a pending division.
func (r Record) Divided() bool {
	return r.Divisor > 1
}
