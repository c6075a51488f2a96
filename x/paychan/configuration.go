package paychan

import (
	"regexp"

	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/gconf"
)

var isTicker = regexp.MustCompile(`^[A-Z]{3,4}$`).MatchString

// Validate ensures the configuration can be used by the handlers.
func (c *Configuration) Validate() error {
	var errs error

	errs = errors.AppendField(errs, "Metadata", c.Metadata.Validate())
	errs = errors.AppendField(errs, "Owner", c.Owner.Validate())
	if c.Denom == nil {
		errs = errors.Append(errs,
			errors.Field("Denom", errors.ErrState, "denomination missing"))
	} else if err := c.Denom.Validate(); err != nil {
		errs = errors.AppendField(errs, "Denom", err)
	}
	if c.AutoReleaseTime <= 0 {
		errs = errors.Append(errs,
			errors.Field("AutoReleaseTime", errors.ErrState, "dispute window is required"))
	}
	if c.MaxRecipients == 0 {
		errs = errors.Append(errs,
			errors.Field("MaxRecipients", errors.ErrState, "recipient cap is required"))
	}
	return errs
}

// Validate ensures the denomination declaration is complete.
func (d *Denom) Validate() error {
	var errs error

	if !isTicker(d.Ticker) {
		errs = errors.Append(errs,
			errors.Field("Ticker", errors.ErrCurrency, "invalid ticker"))
	}
	if len(d.Contract) != 0 {
		errs = errors.AppendField(errs, "Contract", d.Contract.Validate())
	}
	return errs
}

// IsNative returns true when the deployment settles in the native asset and
// not through a token contract.
func (d *Denom) IsNative() bool {
	return len(d.Contract) == 0
}

func loadConf(db gconf.ReadStore) (*Configuration, error) {
	var conf Configuration
	if err := gconf.Load(db, "paychan", &conf); err != nil {
		return nil, errors.Wrap(err, "load configuration")
	}
	return &conf, nil
}
