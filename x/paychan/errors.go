package paychan

import (
	"github.com/iov-one/weave/errors"
)

// paychan reserves ABCI codes 1021-1029.
var (
	// ErrStaleSequence is returned when a cheque sequence number is not
	// strictly greater than the last one consumed for that recipient.
	ErrStaleSequence = errors.Register(1021, "stale cheque sequence")

	// ErrRecipientLimit is returned when adding a recipient would exceed
	// the configured per channel recipient cap.
	ErrRecipientLimit = errors.Register(1022, "recipient number exceeded")

	// ErrCommitment is returned when a commitment proof was rejected by
	// the verifier.
	ErrCommitment = errors.Register(1023, "commitment verification failed")
)
