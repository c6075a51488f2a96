package paychan

import (
	"testing"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/weavetest/assert"
)

func TestRecipientRedeem(t *testing.T) {
	cases := map[string]struct {
		recipient   Recipient
		sequence    uint64
		wantErr     *errors.Error
		wantPayable coin.Coin
		wantSeq     uint64
	}{
		"first cheque pays face value times sequence": {
			recipient: Recipient{
				MaxAmount: coin.NewCoinp(10000, 0, "IOV"),
				FaceValue: coin.NewCoinp(100, 0, "IOV"),
			},
			sequence:    3,
			wantPayable: coin.NewCoin(300, 0, "IOV"),
			wantSeq:     3,
		},
		"later cheque pays only the advance": {
			recipient: Recipient{
				MaxAmount:          coin.NewCoinp(10000, 0, "IOV"),
				FaceValue:          coin.NewCoinp(100, 0, "IOV"),
				WithdrawalSequence: 3,
			},
			sequence:    5,
			wantPayable: coin.NewCoin(200, 0, "IOV"),
			wantSeq:     5,
		},
		"sequence can consume the full escrow": {
			recipient: Recipient{
				MaxAmount: coin.NewCoinp(10000, 0, "IOV"),
				FaceValue: coin.NewCoinp(100, 0, "IOV"),
			},
			sequence:    100,
			wantPayable: coin.NewCoin(10000, 0, "IOV"),
			wantSeq:     100,
		},
		"replayed sequence is rejected": {
			recipient: Recipient{
				MaxAmount:          coin.NewCoinp(10000, 0, "IOV"),
				FaceValue:          coin.NewCoinp(100, 0, "IOV"),
				WithdrawalSequence: 3,
			},
			sequence: 3,
			wantErr:  ErrStaleSequence,
			wantSeq:  3,
		},
		"older sequence is rejected": {
			recipient: Recipient{
				MaxAmount:          coin.NewCoinp(10000, 0, "IOV"),
				FaceValue:          coin.NewCoinp(100, 0, "IOV"),
				WithdrawalSequence: 3,
			},
			sequence: 2,
			wantErr:  ErrStaleSequence,
			wantSeq:  3,
		},
		"withdrawal beyond the escrow ceiling is rejected": {
			recipient: Recipient{
				MaxAmount: coin.NewCoinp(10000, 0, "IOV"),
				FaceValue: coin.NewCoinp(100, 0, "IOV"),
			},
			sequence: 101,
			wantErr:  errors.ErrOverflow,
		},
		"slot without a face value cannot redeem": {
			recipient: Recipient{
				MaxAmount: coin.NewCoinp(10000, 0, "IOV"),
			},
			sequence: 1,
			wantErr:  errors.ErrState,
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			payable, err := tc.recipient.redeem(tc.sequence)
			if !tc.wantErr.Is(err) {
				t.Fatalf("unexpected error: %+v", err)
			}
			if tc.wantErr == nil {
				assert.Equal(t, tc.wantPayable, payable)
			}
			assert.Equal(t, tc.wantSeq, tc.recipient.WithdrawalSequence)
		})
	}
}

func TestRecipientRemaining(t *testing.T) {
	r := Recipient{
		MaxAmount: coin.NewCoinp(10000, 0, "IOV"),
		FaceValue: coin.NewCoinp(100, 0, "IOV"),
	}
	rem, err := r.Remaining()
	assert.Nil(t, err)
	assert.Equal(t, coin.NewCoin(10000, 0, "IOV"), rem)

	if _, err := r.redeem(3); err != nil {
		t.Fatalf("cannot redeem: %+v", err)
	}
	rem, err = r.Remaining()
	assert.Nil(t, err)
	assert.Equal(t, coin.NewCoin(9700, 0, "IOV"), rem)
}

func TestChannelApplyClaim(t *testing.T) {
	alice := weavetest.NewCondition().Address()
	bob := weavetest.NewCondition().Address()

	pc := PaymentChannel{
		Metadata: &weave.Metadata{Schema: 1},
		Operator: weavetest.NewCondition().Address(),
	}
	err := pc.applyClaim(&RecipientClaim{
		RecipientKey: alice,
		MaxAmount:    coin.NewCoinp(500, 0, "IOV"),
		FaceValue:    coin.NewCoinp(5, 0, "IOV"),
	})
	assert.Nil(t, err)
	err = pc.applyClaim(&RecipientClaim{
		RecipientKey: bob,
		MaxAmount:    coin.NewCoinp(100, 0, "IOV"),
		FaceValue:    coin.NewCoinp(1, 0, "IOV"),
	})
	assert.Nil(t, err)
	assert.Equal(t, 2, len(pc.Recipients))

	// Top up adds to the ceiling and must not touch the face value.
	err = pc.applyClaim(&RecipientClaim{
		RecipientKey: alice,
		MaxAmount:    coin.NewCoinp(250, 0, "IOV"),
		FaceValue:    coin.NewCoinp(9999, 0, "IOV"),
	})
	assert.Nil(t, err)
	assert.Equal(t, 2, len(pc.Recipients))
	a := pc.Recipient(alice)
	assert.Equal(t, coin.NewCoinp(750, 0, "IOV"), a.MaxAmount)
	assert.Equal(t, coin.NewCoinp(5, 0, "IOV"), a.FaceValue)

	pc.removeRecipient(alice)
	assert.Equal(t, 1, len(pc.Recipients))
	if pc.Recipient(alice) != nil {
		t.Fatal("removed recipient still present")
	}
	if pc.Recipient(bob) == nil {
		t.Fatal("wrong recipient removed")
	}
}

func TestPaymentChannelCopy(t *testing.T) {
	alice := weavetest.NewCondition().Address()
	pc := &PaymentChannel{
		Metadata: &weave.Metadata{Schema: 1},
		Operator: weavetest.NewCondition().Address(),
		Recipients: []*Recipient{
			{
				RecipientKey:   alice,
				MaxAmount:      coin.NewCoinp(100, 0, "IOV"),
				FaceValue:      coin.NewCoinp(1, 0, "IOV"),
				ApproveSigners: []weave.Address{weavetest.NewCondition().Address()},
			},
		},
	}
	cpy := pc.Copy().(*PaymentChannel)
	cpy.Recipients[0].WithdrawalSequence = 42
	cpy.Recipients[0].MaxAmount.Whole = 1

	assert.Equal(t, uint64(0), pc.Recipients[0].WithdrawalSequence)
	assert.Equal(t, int64(100), pc.Recipients[0].MaxAmount.Whole)
}
