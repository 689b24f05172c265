/*
Package dump provides I/O operations for collected states of the PeerReview
contract.

State collection is used to inspect a live contract. A dump is a pair of
human-readable files: contract state with its settings, and score and access
grant records decoded from the contract storage. Take pulls the contract from
the remote node, IterateDumps and Open read dumps back.
*/
package dump
