package paychan

import (
	"testing"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/weavetest/assert"
)

func TestDepositMsgValidate(t *testing.T) {
	sender := weavetest.NewCondition().Address()
	operator := weavetest.NewCondition().Address()
	recipient := weavetest.NewCondition().Address()

	cases := map[string]struct {
		msg      DepositMsg
		errField string
		errKind  *errors.Error
	}{
		"valid message": {
			msg: DepositMsg{
				Metadata:   &weave.Metadata{Schema: 1},
				ChannelKey: sender,
				Operator:   operator,
				Recipients: []*RecipientClaim{
					{
						RecipientKey: recipient,
						MaxAmount:    coin.NewCoinp(100, 0, "IOV"),
						FaceValue:    coin.NewCoinp(1, 0, "IOV"),
					},
				},
				Amount: coin.NewCoinp(100, 0, "IOV"),
			},
		},
		"missing metadata": {
			msg: DepositMsg{
				ChannelKey: sender,
				Operator:   operator,
				Recipients: []*RecipientClaim{
					{RecipientKey: recipient, MaxAmount: coin.NewCoinp(100, 0, "IOV")},
				},
				Amount: coin.NewCoinp(100, 0, "IOV"),
			},
			errField: "Metadata",
			errKind:  errors.ErrMetadata,
		},
		"missing recipients": {
			msg: DepositMsg{
				Metadata:   &weave.Metadata{Schema: 1},
				ChannelKey: sender,
				Operator:   operator,
				Amount:     coin.NewCoinp(100, 0, "IOV"),
			},
			errField: "Recipients",
			errKind:  errors.ErrEmpty,
		},
		"zero amount": {
			msg: DepositMsg{
				Metadata:   &weave.Metadata{Schema: 1},
				ChannelKey: sender,
				Operator:   operator,
				Recipients: []*RecipientClaim{
					{RecipientKey: recipient, MaxAmount: coin.NewCoinp(100, 0, "IOV")},
				},
				Amount: coin.NewCoinp(0, 0, "IOV"),
			},
			errField: "Amount",
			errKind:  errors.ErrAmount,
		},
		"negative claim": {
			msg: DepositMsg{
				Metadata:   &weave.Metadata{Schema: 1},
				ChannelKey: sender,
				Operator:   operator,
				Recipients: []*RecipientClaim{
					{RecipientKey: recipient, MaxAmount: coin.NewCoinp(-4, 0, "IOV")},
				},
				Amount: coin.NewCoinp(100, 0, "IOV"),
			},
			errField: "MaxAmount",
			errKind:  errors.ErrAmount,
		},
		"malformed source": {
			msg: DepositMsg{
				Metadata:   &weave.Metadata{Schema: 1},
				ChannelKey: sender,
				Operator:   operator,
				Recipients: []*RecipientClaim{
					{RecipientKey: recipient, MaxAmount: coin.NewCoinp(100, 0, "IOV")},
				},
				Amount: coin.NewCoinp(100, 0, "IOV"),
				Source: []byte("too short"),
			},
			errField: "Source",
			errKind:  errors.ErrInput,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.errKind == nil {
				assert.Nil(t, err)
			} else {
				assert.FieldError(t, err, tc.errField, tc.errKind)
			}
		})
	}
}

func TestCashChequesMsgValidate(t *testing.T) {
	sender := weavetest.NewCondition().Address()
	recipient := weavetest.NewCondition().Address()

	cases := map[string]struct {
		msg      CashChequesMsg
		errField string
		errKind  *errors.Error
	}{
		"valid message": {
			msg: CashChequesMsg{
				Metadata:     &weave.Metadata{Schema: 1},
				RecipientKey: recipient,
				Cheques: []*Cheque{
					{ChannelKey: sender, Sequence: 1, Commitment: []byte("proof")},
				},
			},
		},
		"no cheques": {
			msg: CashChequesMsg{
				Metadata:     &weave.Metadata{Schema: 1},
				RecipientKey: recipient,
			},
			errField: "Cheques",
			errKind:  errors.ErrEmpty,
		},
		"zero sequence": {
			msg: CashChequesMsg{
				Metadata:     &weave.Metadata{Schema: 1},
				RecipientKey: recipient,
				Cheques: []*Cheque{
					{ChannelKey: sender, Commitment: []byte("proof")},
				},
			},
			errField: "Sequence",
			errKind:  errors.ErrInput,
		},
		"missing commitment": {
			msg: CashChequesMsg{
				Metadata:     &weave.Metadata{Schema: 1},
				RecipientKey: recipient,
				Cheques: []*Cheque{
					{ChannelKey: sender, Sequence: 1},
				},
			},
			errField: "Commitment",
			errKind:  errors.ErrEmpty,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.errKind == nil {
				assert.Nil(t, err)
			} else {
				assert.FieldError(t, err, tc.errField, tc.errKind)
			}
		})
	}
}

func TestCloseChannelMsgValidate(t *testing.T) {
	sender := weavetest.NewCondition().Address()
	recipient := weavetest.NewCondition().Address()

	msg := CloseChannelMsg{
		Metadata:   &weave.Metadata{Schema: 1},
		ChannelKey: sender,
		Closures: []*Closure{
			{RecipientKey: recipient},
		},
	}
	assert.Nil(t, msg.Validate())

	msg.Closures = nil
	assert.FieldError(t, msg.Validate(), "Closures", errors.ErrEmpty)
}
