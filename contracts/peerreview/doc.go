/*
Package peerreview implements PeerReview contract collecting encrypted
performance scores of reviewers.

Scores are never revealed to the chain. A reviewer encrypts the score with the
network FHE public key, registers the ciphertext at the input verifier and
submits the returned handle along with the verifier's signature. The contract
keeps the handle of every reviewer, the handle of the encrypted total and of
the encrypted average. It does not perform homomorphic arithmetic itself: it
derives the handle of each result and announces the operation so that FHE
executors compute the ciphertext off-chain.

Decryption is performed by the decryption oracle which asks the contract
whether the account is allowed to decrypt the handle. Grants are given on
submission (reviewer for own score and average, manager for total and
average) and on explicit request. Every grant expires after the configured
number of blocks, so access must be re-requested.

# Contract notifications

ScoreSubmitted notification. This notification is produced when a reviewer
submits or replaces the score.

	ScoreSubmitted:
	  - name: reviewer
	    type: Hash160
	  - name: updated
	    type: Boolean

DecryptionAccessRequested notification. This notification is produced when an
account requests a decryption grant. Kind is 0 for own score, 1 for average
and 2 for total.

	DecryptionAccessRequested:
	  - name: requester
	    type: Hash160
	  - name: kind
	    type: Integer

FheCompute notification. This notification is produced for every homomorphic
operation. Op is 1 for trivial encryption of the integer in lhs, 2 for
addition, 3 for subtraction and 4 for division of lhs by the integer in rhs.
Result is the handle of the resulting ciphertext computed as
SHA256(op || contract || lhs || rhs).

	FheCompute:
	  - name: op
	    type: Integer
	  - name: lhs
	    type: ByteArray
	  - name: rhs
	    type: ByteArray
	  - name: result
	    type: ByteArray
*/
package peerreview

/*
Contract storage model.

# Summary
Key-value storage format:
  - 'manager' -> interop.Hash160
    manager account
  - 'verifier' -> interop.PublicKey
    input verifier key
  - 'ttl' -> int
    lifetime of decryption grants in blocks
  - 'count' -> int
    number of distinct reviewers
  - 'total' -> []byte
    handle of the encrypted total
  - 'average' -> []byte
    handle of the encrypted average
  - 's' + interop.Hash160 -> []byte
    handle of the reviewer's score
  - 'a' + handle + interop.Hash160 -> int
    height of the last block the account is allowed to decrypt the handle at
*/
