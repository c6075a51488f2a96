package paychan

import (
	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/gconf"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/orm"
	"github.com/iov-one/weave/x"
	"github.com/iov-one/weave/x/cash"
)

const (
	depositCost    int64 = 300
	cashChequeCost int64 = 5
)

// RegisterRoutes will instantiate and register all handlers in this package.
func RegisterRoutes(r weave.Registry, auth x.Authenticator, ctrl cash.Controller, verifier CommitmentVerifier, tokens TokenMover) {
	r = migration.SchemaMigratingRegistry("paychan", r)
	bucket := NewBucket()
	settle := settler{bank: ctrl, tokens: tokens}

	r.Handle(&DepositMsg{}, &depositHandler{auth: auth, bucket: bucket, bank: ctrl})
	r.Handle(&AddSignersMsg{}, &addSignersHandler{auth: auth, bucket: bucket})
	r.Handle(&CashChequesMsg{}, &cashChequesHandler{auth: auth, bucket: bucket, verifier: verifier, settle: settle})
	r.Handle(&CloseChannelMsg{}, &closeChannelHandler{auth: auth, bucket: bucket, verifier: verifier, settle: settle})
	r.Handle(&UpdateConfigurationMsg{}, gconf.NewUpdateConfigurationHandler(
		"paychan", &Configuration{}, auth, migration.CurrentAdmin))
}

type depositHandler struct {
	auth   x.Authenticator
	bucket orm.ModelBucket
	bank   cash.Controller
}

var _ weave.Handler = (*depositHandler)(nil)

func (h *depositHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: depositCost}, nil
}

func (h *depositHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, conf, pc, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}

	for _, c := range msg.Recipients {
		if err := pc.applyClaim(c); err != nil {
			return nil, err
		}
		// Checked per insertion so that a batch pushing over the
		// limit is rejected at the offending element.
		if uint32(len(pc.Recipients)) > conf.MaxRecipients {
			return nil, errors.Wrapf(ErrRecipientLimit,
				"cannot hold more than %d recipients", conf.MaxRecipients)
		}
	}
	if _, err := h.bucket.Put(db, msg.ChannelKey, pc); err != nil {
		return nil, errors.Wrap(err, "save channel")
	}

	if conf.Denom.IsNative() {
		// For a token denomination the funds stay with the token
		// contract that announced this deposit.
		if err := h.bank.MoveCoins(db, msg.Source, PoolAccount(), *msg.Amount); err != nil {
			return nil, errors.Wrap(err, "escrow deposit")
		}
	}
	return &weave.DeliverResult{Data: msg.ChannelKey}, nil
}

func (h *depositHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*DepositMsg, *Configuration, *PaymentChannel, error) {
	var msg DepositMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, nil, errors.Wrap(err, "load msg")
	}
	conf, err := loadConf(db)
	if err != nil {
		return nil, nil, nil, err
	}
	if msg.Amount.Ticker != conf.Denom.Ticker {
		return nil, nil, nil, errors.Wrapf(errors.ErrCurrency,
			"unsupported denomination %q", msg.Amount.Ticker)
	}
	for _, c := range msg.Recipients {
		if c.MaxAmount.Ticker != conf.Denom.Ticker {
			return nil, nil, nil, errors.Wrapf(errors.ErrCurrency,
				"claim for %s in unsupported denomination %q", c.RecipientKey, c.MaxAmount.Ticker)
		}
		if c.FaceValue != nil && c.FaceValue.Ticker != conf.Denom.Ticker {
			return nil, nil, nil, errors.Wrapf(errors.ErrCurrency,
				"face value for %s in unsupported denomination %q", c.RecipientKey, c.FaceValue.Ticker)
		}
	}
	total, err := claimTotal(msg.Recipients)
	if err != nil {
		return nil, nil, nil, err
	}
	if !msg.Amount.IsGTE(total) {
		return nil, nil, nil, errors.Wrapf(errors.ErrAmount,
			"deposit %s does not cover claims %s", msg.Amount, total)
	}
	if conf.Denom.IsNative() {
		if len(msg.Source) == 0 {
			return nil, nil, nil, errors.Wrap(errors.ErrEmpty, "source")
		}
		if !h.auth.HasAddress(ctx, msg.Source) {
			return nil, nil, nil, errors.Wrap(errors.ErrUnauthorized,
				"source did not authorize the deposit")
		}
	} else {
		// A token deposit is the receive callback of the configured
		// contract, so the contract itself must authorize it.
		if !h.auth.HasAddress(ctx, conf.Denom.Contract) {
			return nil, nil, nil, errors.Wrap(errors.ErrUnauthorized,
				"token deposit must be announced by the configured contract")
		}
	}
	pc, err := h.channel(db, &msg)
	if err != nil {
		return nil, nil, nil, err
	}
	return &msg, conf, pc, nil
}

// channel returns the existing channel for the message key or a fresh one.
// An existing channel is only handed out when the stored operator matches.
func (h *depositHandler) channel(db weave.KVStore, msg *DepositMsg) (*PaymentChannel, error) {
	var pc PaymentChannel
	switch err := h.bucket.One(db, msg.ChannelKey, &pc); {
	case err == nil:
		if !pc.Operator.Equals(msg.Operator) {
			return nil, errors.Wrapf(errors.ErrUnauthorized,
				"channel is operated by %s", pc.Operator)
		}
		return &pc, nil
	case errors.ErrNotFound.Is(err):
		return &PaymentChannel{
			Metadata: &weave.Metadata{Schema: 1},
			Operator: msg.Operator,
		}, nil
	default:
		return nil, errors.Wrap(err, "load channel")
	}
}

// claimTotal sums the escrow allocation of all claims. All claims must be
// of a single denomination.
func claimTotal(claims []*RecipientClaim) (coin.Coin, error) {
	var total coin.Coin
	for i, c := range claims {
		if i == 0 {
			total = *c.MaxAmount
			continue
		}
		t, err := total.Add(*c.MaxAmount)
		if err != nil {
			return coin.Coin{}, errors.Wrap(err, "claim total")
		}
		total = t
	}
	return total, nil
}

type addSignersHandler struct {
	auth   x.Authenticator
	bucket orm.ModelBucket
}

var _ weave.Handler = (*addSignersHandler)(nil)

func (h *addSignersHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{}, nil
}

func (h *addSignersHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, pc, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	r := pc.Recipient(msg.RecipientKey)
	if r == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "recipient %s", msg.RecipientKey)
	}
	// Duplicates are allowed, only membership is ever tested.
	r.ApproveSigners = append(r.ApproveSigners, msg.Signers...)

	if _, err := h.bucket.Put(db, msg.ChannelKey, pc); err != nil {
		return nil, errors.Wrap(err, "save channel")
	}
	return &weave.DeliverResult{}, nil
}

func (h *addSignersHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*AddSignersMsg, *PaymentChannel, error) {
	var msg AddSignersMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}
	var pc PaymentChannel
	if err := h.bucket.One(db, msg.ChannelKey, &pc); err != nil {
		return nil, nil, errors.Wrap(err, "load channel")
	}
	if !h.auth.HasAddress(ctx, pc.Operator) {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "not the channel operator")
	}
	return &msg, &pc, nil
}

type cashChequesHandler struct {
	auth     x.Authenticator
	bucket   orm.ModelBucket
	verifier CommitmentVerifier
	settle   settler
}

var _ weave.Handler = (*cashChequesHandler)(nil)

func (h *cashChequesHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	msg, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	return &weave.CheckResult{GasAllocated: int64(len(msg.Cheques)) * cashChequeCost}, nil
}

// Deliver applies the whole batch atomically: cheques are validated and
// applied against in memory copies and nothing is persisted until every
// cheque was accepted. The accumulated payable settles as one transfer to
// the payee.
func (h *cashChequesHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	conf, err := loadConf(db)
	if err != nil {
		return nil, err
	}
	// The recipient, when authenticated, is always the payee. Only when
	// the recipient did not sign may an approved signer collect instead.
	var payee weave.Address
	if h.auth.HasAddress(ctx, msg.RecipientKey) {
		payee = msg.RecipientKey
	}

	channels := make(map[string]*PaymentChannel)
	var order []string

	total := coin.Coin{Ticker: conf.Denom.Ticker}
	for _, cheque := range msg.Cheques {
		if !h.verifier.Verify(cheque.ChannelKey, ClaimCheque, cheque.Commitment) {
			return nil, errors.Wrapf(ErrCommitment, "cheque %d", cheque.Sequence)
		}
		pc, ok := channels[string(cheque.ChannelKey)]
		if !ok {
			var loaded PaymentChannel
			if err := h.bucket.One(db, cheque.ChannelKey, &loaded); err != nil {
				return nil, errors.Wrap(err, "load channel")
			}
			pc = &loaded
			channels[string(cheque.ChannelKey)] = pc
			order = append(order, string(cheque.ChannelKey))
		}
		r := pc.Recipient(msg.RecipientKey)
		if r == nil {
			return nil, errors.Wrapf(errors.ErrNotFound, "recipient %s", msg.RecipientKey)
		}
		if payee == nil {
			payee = h.approvedPayee(ctx, r)
		}
		if payee == nil || !h.mayRedeem(payee, msg.RecipientKey, r) {
			return nil, errors.Wrap(errors.ErrUnauthorized,
				"neither the recipient nor an approved signer authorized the transaction")
		}
		payable, err := r.redeem(cheque.Sequence)
		if err != nil {
			return nil, err
		}
		t, err := total.Add(payable)
		if err != nil {
			return nil, errors.Wrap(err, "payable total")
		}
		total = t
	}

	for _, key := range order {
		if _, err := h.bucket.Put(db, []byte(key), channels[key]); err != nil {
			return nil, errors.Wrap(err, "save channel")
		}
	}

	if total.IsZero() {
		return &weave.DeliverResult{}, nil
	}
	payment, err := newPayment(conf, PoolAccount(), payee, total)
	if err != nil {
		return nil, err
	}
	if err := h.settle.pay(db, payment); err != nil {
		return nil, errors.Wrap(err, "settle")
	}
	return &weave.DeliverResult{}, nil
}

// approvedPayee returns the first approved signer of the slot that
// authenticated this transaction, or nil when none did.
func (h *cashChequesHandler) approvedPayee(ctx weave.Context, r *Recipient) weave.Address {
	for _, s := range r.ApproveSigners {
		if h.auth.HasAddress(ctx, s) {
			return s
		}
	}
	return nil
}

func (h *cashChequesHandler) mayRedeem(payee weave.Address, recipient weave.Address, r *Recipient) bool {
	if payee.Equals(recipient) {
		return true
	}
	for _, s := range r.ApproveSigners {
		if payee.Equals(s) {
			return true
		}
	}
	return false
}

func (h *cashChequesHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*CashChequesMsg, error) {
	var msg CashChequesMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, errors.Wrap(err, "load msg")
	}
	return &msg, nil
}

type closeChannelHandler struct {
	auth     x.Authenticator
	bucket   orm.ModelBucket
	verifier CommitmentVerifier
	settle   settler
}

var _ weave.Handler = (*closeChannelHandler)(nil)

func (h *closeChannelHandler) Check(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.CheckResult, error) {
	if _, _, err := h.validate(ctx, db, tx); err != nil {
		return nil, err
	}
	return &weave.CheckResult{}, nil
}

// Deliver runs the closing protocol for every requested recipient slot. A
// slot with an accepted close commitment settles immediately. Without one
// the first request only starts the dispute window and a later request,
// once the window elapsed, refunds the remainder and removes the slot. The
// accumulated refund is paid to the channel operator in one transfer.
func (h *closeChannelHandler) Deliver(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*weave.DeliverResult, error) {
	msg, pc, err := h.validate(ctx, db, tx)
	if err != nil {
		return nil, err
	}
	conf, err := loadConf(db)
	if err != nil {
		return nil, err
	}
	now, err := weave.BlockTime(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "block time")
	}

	refund := coin.Coin{Ticker: conf.Denom.Ticker}
	for _, cl := range msg.Closures {
		r := pc.Recipient(cl.RecipientKey)
		if r == nil {
			// Already finalized or never existed. Closing is
			// idempotent, so this is not an error.
			continue
		}
		if len(cl.Commitment) != 0 && h.verifier.Verify(cl.RecipientKey, ClaimCloseChannel, cl.Commitment) {
			// Cooperative close, no waiting period.
			refund, err = addRemaining(refund, r)
			if err != nil {
				return nil, err
			}
			pc.removeRecipient(cl.RecipientKey)
			continue
		}
		if r.AutoRelease == 0 {
			// Start the dispute window. The recipient can still
			// cash outstanding cheques until it elapses.
			r.AutoRelease = weave.AsUnixTime(now).Add(conf.AutoReleaseTime.Duration())
			continue
		}
		if IsExpired(ctx, r.AutoRelease) {
			refund, err = addRemaining(refund, r)
			if err != nil {
				return nil, err
			}
			pc.removeRecipient(cl.RecipientKey)
		}
		// Window still open: no state change, retry later.
	}

	if _, err := h.bucket.Put(db, msg.ChannelKey, pc); err != nil {
		return nil, errors.Wrap(err, "save channel")
	}

	if refund.IsZero() {
		return &weave.DeliverResult{}, nil
	}
	payment, err := newPayment(conf, PoolAccount(), pc.Operator, refund)
	if err != nil {
		return nil, err
	}
	if err := h.settle.pay(db, payment); err != nil {
		return nil, errors.Wrap(err, "settle")
	}
	return &weave.DeliverResult{}, nil
}

func addRemaining(refund coin.Coin, r *Recipient) (coin.Coin, error) {
	rem, err := r.Remaining()
	if err != nil {
		return coin.Coin{}, err
	}
	total, err := refund.Add(rem)
	if err != nil {
		return coin.Coin{}, errors.Wrap(err, "refund total")
	}
	return total, nil
}

func (h *closeChannelHandler) validate(ctx weave.Context, db weave.KVStore, tx weave.Tx) (*CloseChannelMsg, *PaymentChannel, error) {
	var msg CloseChannelMsg
	if err := weave.LoadMsg(tx, &msg); err != nil {
		return nil, nil, errors.Wrap(err, "load msg")
	}
	var pc PaymentChannel
	if err := h.bucket.One(db, msg.ChannelKey, &pc); err != nil {
		return nil, nil, errors.Wrap(err, "load channel")
	}
	if !h.auth.HasAddress(ctx, pc.Operator) {
		return nil, nil, errors.Wrap(errors.ErrUnauthorized, "not the channel operator")
	}
	return &msg, &pc, nil
}
