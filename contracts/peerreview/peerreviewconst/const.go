// Package peerreviewconst contains constants shared by the PeerReview contract
// and off-chain services working with it.
package peerreviewconst

const (
	// HandleLength is the length of the encrypted value handle in bytes.
	HandleLength = 32

	// DefaultAccessTTL is the number of blocks a decryption grant stays valid
	// if no other value is provided on contract deployment.
	DefaultAccessTTL = 5760

	// ProtocolID identifies the handle derivation and input proof rules used by
	// the contract. Off-chain services refuse to work with other values.
	ProtocolID = 1
)

// Operation codes of the FheCompute notification.
const (
	OpTrivial = 1
	OpAdd     = 2
	OpSub     = 3
	OpDiv     = 4
)

// Kinds of the DecryptionAccessRequested notification.
const (
	AccessScore   = 0
	AccessAverage = 1
	AccessTotal   = 2
)

// Exception messages thrown by the contract.
const (
	ErrInvalidHandle = "PeerReview: invalid handle"
	ErrInvalidProof  = "PeerReview: invalid input proof"
	ErrNoSubmission  = "PeerReview: no submission"
	ErrNoSubmissions = "PeerReview: no submissions"
	ErrOnlyManager   = "PeerReview: only manager"
)
