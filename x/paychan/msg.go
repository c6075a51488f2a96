package paychan

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/migration"
)

func init() {
	migration.MustRegister(1, &DepositMsg{}, migration.NoModification)
	migration.MustRegister(1, &AddSignersMsg{}, migration.NoModification)
	migration.MustRegister(1, &CashChequesMsg{}, migration.NoModification)
	migration.MustRegister(1, &CloseChannelMsg{}, migration.NoModification)
	migration.MustRegister(1, &UpdateConfigurationMsg{}, migration.NoModification)
}

var _ weave.Msg = (*DepositMsg)(nil)

func (DepositMsg) Path() string {
	return "paychan/deposit"
}

func (m *DepositMsg) Validate() error {
	var errs error

	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	errs = errors.AppendField(errs, "ChannelKey", m.ChannelKey.Validate())
	errs = errors.AppendField(errs, "Operator", m.Operator.Validate())
	if len(m.Recipients) == 0 {
		errs = errors.Append(errs,
			errors.Field("Recipients", errors.ErrEmpty, "at least one recipient claim is required"))
	}
	for _, c := range m.Recipients {
		errs = errors.Append(errs, c.Validate())
	}
	if m.Amount == nil || !m.Amount.IsPositive() {
		errs = errors.Append(errs,
			errors.Field("Amount", errors.ErrAmount, "positive deposit is required"))
	}
	// Source is only set for native deposits. Token deposits leave it
	// empty, the configured contract provides the funds.
	if len(m.Source) != 0 {
		errs = errors.AppendField(errs, "Source", m.Source.Validate())
	}
	return errs
}

// Validate ensures the recipient claim is valid.
func (c *RecipientClaim) Validate() error {
	var errs error

	errs = errors.AppendField(errs, "RecipientKey", c.RecipientKey.Validate())
	if c.MaxAmount == nil || !c.MaxAmount.IsPositive() {
		errs = errors.Append(errs,
			errors.Field("MaxAmount", errors.ErrAmount, "positive amount is required"))
	}
	if c.FaceValue != nil && !c.FaceValue.IsPositive() {
		errs = errors.Append(errs,
			errors.Field("FaceValue", errors.ErrAmount, "face value must be positive"))
	}
	return errs
}

var _ weave.Msg = (*AddSignersMsg)(nil)

func (AddSignersMsg) Path() string {
	return "paychan/add_signers"
}

func (m *AddSignersMsg) Validate() error {
	var errs error

	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	errs = errors.AppendField(errs, "ChannelKey", m.ChannelKey.Validate())
	errs = errors.AppendField(errs, "RecipientKey", m.RecipientKey.Validate())
	if len(m.Signers) == 0 {
		errs = errors.Append(errs,
			errors.Field("Signers", errors.ErrEmpty, "at least one signer is required"))
	}
	for _, s := range m.Signers {
		if err := s.Validate(); err != nil {
			errs = errors.AppendField(errs, "Signers", err)
		}
	}
	return errs
}

var _ weave.Msg = (*CashChequesMsg)(nil)

func (CashChequesMsg) Path() string {
	return "paychan/cash"
}

func (m *CashChequesMsg) Validate() error {
	var errs error

	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	errs = errors.AppendField(errs, "RecipientKey", m.RecipientKey.Validate())
	if len(m.Cheques) == 0 {
		errs = errors.Append(errs,
			errors.Field("Cheques", errors.ErrEmpty, "at least one cheque is required"))
	}
	for _, c := range m.Cheques {
		errs = errors.Append(errs, c.Validate())
	}
	return errs
}

// Validate ensures the cheque is complete.
func (c *Cheque) Validate() error {
	var errs error

	errs = errors.AppendField(errs, "ChannelKey", c.ChannelKey.Validate())
	if c.Sequence == 0 {
		errs = errors.Append(errs,
			errors.Field("Sequence", errors.ErrInput, "sequence number is required"))
	}
	if len(c.Commitment) == 0 {
		errs = errors.Append(errs,
			errors.Field("Commitment", errors.ErrEmpty, "commitment is required"))
	}
	return errs
}

var _ weave.Msg = (*CloseChannelMsg)(nil)

func (CloseChannelMsg) Path() string {
	return "paychan/close"
}

func (m *CloseChannelMsg) Validate() error {
	var errs error

	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	errs = errors.AppendField(errs, "ChannelKey", m.ChannelKey.Validate())
	if len(m.Closures) == 0 {
		errs = errors.Append(errs,
			errors.Field("Closures", errors.ErrEmpty, "at least one closure is required"))
	}
	for _, c := range m.Closures {
		errs = errors.AppendField(errs, "RecipientKey", c.RecipientKey.Validate())
	}
	return errs
}

var _ weave.Msg = (*UpdateConfigurationMsg)(nil)

func (UpdateConfigurationMsg) Path() string {
	return "paychan/update_configuration"
}

func (m *UpdateConfigurationMsg) Validate() error {
	var errs error

	errs = errors.AppendField(errs, "Metadata", m.Metadata.Validate())
	if m.Patch == nil {
		errs = errors.Append(errs,
			errors.Field("Patch", errors.ErrEmpty, "configuration patch is required"))
	}
	return errs
}
