package paychan

import (
	"math"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
)

func init() {
	migration.MustRegister(1, &PaymentChannel{}, migration.NoModification)
}

var _ orm.CloneableData = (*PaymentChannel)(nil)

// Validate ensures the payment channel is valid.
func (pc *PaymentChannel) Validate() error {
	var errs error

	errs = errors.AppendField(errs, "Metadata", pc.Metadata.Validate())
	errs = errors.AppendField(errs, "Operator", pc.Operator.Validate())
	for _, r := range pc.Recipients {
		if err := r.Validate(); err != nil {
			errs = errors.AppendField(errs, "Recipients", err)
		}
	}
	return errs
}

// Copy returns a deep copy of this payment channel.
func (pc *PaymentChannel) Copy() orm.CloneableData {
	cpy := &PaymentChannel{
		Operator:   pc.Operator.Clone(),
		Recipients: make([]*Recipient, 0, len(pc.Recipients)),
	}
	if pc.Metadata != nil {
		cpy.Metadata = pc.Metadata.Copy()
	}
	for _, r := range pc.Recipients {
		cpy.Recipients = append(cpy.Recipients, r.copy())
	}
	return cpy
}

// Recipient returns the slot allocated for given recipient identity or nil.
func (pc *PaymentChannel) Recipient(key weave.Address) *Recipient {
	for _, r := range pc.Recipients {
		if r.RecipientKey.Equals(key) {
			return r
		}
	}
	return nil
}

// applyClaim tops up an existing recipient slot or creates a new one. Only a
// creating claim sets the face value, a top up never alters it.
func (pc *PaymentChannel) applyClaim(c *RecipientClaim) error {
	if r := pc.Recipient(c.RecipientKey); r != nil {
		total, err := r.MaxAmount.Add(*c.MaxAmount)
		if err != nil {
			return errors.Wrap(err, "max amount")
		}
		r.MaxAmount = &total
		return nil
	}
	pc.Recipients = append(pc.Recipients, &Recipient{
		RecipientKey: c.RecipientKey,
		MaxAmount:    c.MaxAmount.Clone(),
		FaceValue:    c.FaceValue.Clone(),
	})
	return nil
}

// removeRecipient drops the slot of given recipient. Unknown keys are
// ignored.
func (pc *PaymentChannel) removeRecipient(key weave.Address) {
	for i, r := range pc.Recipients {
		if r.RecipientKey.Equals(key) {
			pc.Recipients = append(pc.Recipients[:i], pc.Recipients[i+1:]...)
			return
		}
	}
}

// Validate ensures the recipient slot is valid.
func (r *Recipient) Validate() error {
	var errs error

	errs = errors.AppendField(errs, "RecipientKey", r.RecipientKey.Validate())
	if r.MaxAmount == nil || !r.MaxAmount.IsNonNegative() {
		errs = errors.Append(errs,
			errors.Field("MaxAmount", errors.ErrModel, "negative max amount"))
	}
	if r.FaceValue != nil && !r.FaceValue.IsPositive() {
		errs = errors.Append(errs,
			errors.Field("FaceValue", errors.ErrModel, "non positive face value"))
	}
	if err := r.AutoRelease.Validate(); err != nil {
		errs = errors.AppendField(errs, "AutoRelease", err)
	}
	for _, s := range r.ApproveSigners {
		if err := s.Validate(); err != nil {
			errs = errors.AppendField(errs, "ApproveSigners", err)
		}
	}
	return errs
}

func (r *Recipient) copy() *Recipient {
	cpy := &Recipient{
		RecipientKey:       r.RecipientKey.Clone(),
		MaxAmount:          r.MaxAmount.Clone(),
		FaceValue:          r.FaceValue.Clone(),
		WithdrawalSequence: r.WithdrawalSequence,
		AutoRelease:        r.AutoRelease,
	}
	for _, s := range r.ApproveSigners {
		cpy.ApproveSigners = append(cpy.ApproveSigners, s.Clone())
	}
	return cpy
}

// Consumed returns the cumulative value already withdrawn from this slot.
func (r *Recipient) Consumed() (coin.Coin, error) {
	if r.FaceValue == nil || r.WithdrawalSequence == 0 {
		return coin.Coin{Ticker: r.MaxAmount.Ticker}, nil
	}
	if r.WithdrawalSequence > math.MaxInt64 {
		return coin.Coin{}, errors.Wrap(errors.ErrOverflow, "withdrawal sequence")
	}
	return r.FaceValue.Multiply(int64(r.WithdrawalSequence))
}

// Remaining returns the part of the escrow ceiling not yet withdrawn. The
// result is never negative: a state in which more was consumed than
// deposited cannot be reached through any operation.
func (r *Recipient) Remaining() (coin.Coin, error) {
	consumed, err := r.Consumed()
	if err != nil {
		return coin.Coin{}, err
	}
	rem, err := r.MaxAmount.Subtract(consumed)
	if err != nil {
		return coin.Coin{}, err
	}
	if !rem.IsNonNegative() {
		return coin.Coin{}, errors.Wrap(errors.ErrOverflow, "remaining balance")
	}
	return rem, nil
}

// redeem consumes a cheque with given absolute sequence number and returns
// the amount it pays out. The sequence number must advance strictly and the
// cumulative withdrawal must stay within the escrow ceiling. On any failure
// the slot is left unchanged.
func (r *Recipient) redeem(sequence uint64) (coin.Coin, error) {
	if r.FaceValue == nil {
		return coin.Coin{}, errors.Wrap(errors.ErrState, "recipient without face value")
	}
	if sequence <= r.WithdrawalSequence {
		return coin.Coin{}, errors.Wrapf(ErrStaleSequence, "sequence %d already consumed", sequence)
	}
	if sequence > math.MaxInt64 {
		return coin.Coin{}, errors.Wrap(errors.ErrOverflow, "sequence")
	}
	payable, err := r.FaceValue.Multiply(int64(sequence - r.WithdrawalSequence))
	if err != nil {
		return coin.Coin{}, errors.Wrap(err, "payable")
	}
	consumed, err := r.FaceValue.Multiply(int64(sequence))
	if err != nil {
		return coin.Coin{}, errors.Wrap(err, "consumed")
	}
	if !r.MaxAmount.IsGTE(consumed) {
		return coin.Coin{}, errors.Wrap(errors.ErrOverflow, "withdrawal exceeds escrow ceiling")
	}
	r.WithdrawalSequence = sequence
	return payable, nil
}

// NewBucket returns a bucket for storing payment channels, keyed by the
// sender identity.
func NewBucket() orm.ModelBucket {
	b := orm.NewModelBucket("paychan", &PaymentChannel{})
	return migration.NewModelBucket("paychan", b)
}
