package paychan_test

import (
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/app"
	"github.com/iov-one/weave/coin"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/gconf"
	"github.com/iov-one/weave/migration"
	"github.com/iov-one/weave/store"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/weavetest/assert"
	"github.com/iov-one/weave/x"
	"github.com/iov-one/weave/x/cash"
	"golang.org/x/crypto/ed25519"

	"github.com/gotabit/micro-payment/x/paychan"
)

var blockNow = time.Now()

// identity is an ed25519 key together with its ledger condition. Channel and
// recipient keys are condition addresses, so off chain commitments can be
// checked against them.
type identity struct {
	priv ed25519.PrivateKey
	cond weave.Condition
}

func genIdentity(t testing.TB) identity {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("cannot generate key: %s", err)
	}
	return identity{
		priv: priv,
		cond: weave.NewCondition("sigs", "ed25519", pub),
	}
}

func (id identity) address() weave.Address {
	return id.cond.Address()
}

func TestDepositHandler(t *testing.T) {
	sender := genIdentity(t)
	operator := weavetest.NewCondition()
	depositor := weavetest.NewCondition()
	alice := weavetest.NewCondition()
	bob := weavetest.NewCondition()

	bank := cash.NewBucket()
	ctrl := cash.NewController(bank)
	bucket := paychan.NewBucket()

	r := app.NewRouter()
	authenticator := &weavetest.CtxAuth{Key: "auth"}
	auth := x.ChainAuth(authenticator)
	paychan.RegisterRoutes(r, auth, ctrl, paychan.Ed25519Verifier{}, paychan.DenyTokenMover{})

	cases := map[string]struct {
		setup          func(t *testing.T, ctx weave.Context, db weave.KVStore) weave.Context
		mutator        func(msg *paychan.DepositMsg)
		wantCheckErr   *errors.Error
		wantDeliverErr *errors.Error
		check          func(t *testing.T, db weave.KVStore)
	}{
		"happy path": {
			setup: func(t *testing.T, ctx weave.Context, db weave.KVStore) weave.Context {
				setBalance(t, bank, db, depositor.Address(), coin.NewCoin(20000, 0, "IOV"))
				return authenticator.SetConditions(ctx, depositor)
			},
			check: func(t *testing.T, db weave.KVStore) {
				var pc paychan.PaymentChannel
				assert.Nil(t, bucket.One(db, sender.address(), &pc))
				assert.Equal(t, operator.Address(), pc.Operator)
				assert.Equal(t, 1, len(pc.Recipients))
				assert.Equal(t, coin.NewCoinp(10000, 0, "IOV"), pc.Recipients[0].MaxAmount)
				assert.Equal(t, coin.NewCoinp(100, 0, "IOV"), pc.Recipients[0].FaceValue)

				assert.Equal(t, coin.NewCoin(10000, 0, "IOV"), balance(t, ctrl, db, paychan.PoolAccount()))
				assert.Equal(t, coin.NewCoin(10000, 0, "IOV"), balance(t, ctrl, db, depositor.Address()))
			},
		},
		"amount below the claim total": {
			setup: func(t *testing.T, ctx weave.Context, db weave.KVStore) weave.Context {
				setBalance(t, bank, db, depositor.Address(), coin.NewCoin(20000, 0, "IOV"))
				return authenticator.SetConditions(ctx, depositor)
			},
			mutator: func(msg *paychan.DepositMsg) {
				msg.Amount = coin.NewCoinp(9999, 0, "IOV")
			},
			wantCheckErr:   errors.ErrAmount,
			wantDeliverErr: errors.ErrAmount,
		},
		"unsupported denomination": {
			setup: func(t *testing.T, ctx weave.Context, db weave.KVStore) weave.Context {
				return authenticator.SetConditions(ctx, depositor)
			},
			mutator: func(msg *paychan.DepositMsg) {
				msg.Amount = coin.NewCoinp(10000, 0, "BTC")
				msg.Recipients[0].MaxAmount = coin.NewCoinp(10000, 0, "BTC")
			},
			wantCheckErr:   errors.ErrCurrency,
			wantDeliverErr: errors.ErrCurrency,
		},
		"no depositor signature": {
			wantCheckErr:   errors.ErrUnauthorized,
			wantDeliverErr: errors.ErrUnauthorized,
		},
		"source that did not sign": {
			setup: func(t *testing.T, ctx weave.Context, db weave.KVStore) weave.Context {
				return authenticator.SetConditions(ctx, depositor)
			},
			mutator: func(msg *paychan.DepositMsg) {
				msg.Source = weavetest.NewCondition().Address()
			},
			wantCheckErr:   errors.ErrUnauthorized,
			wantDeliverErr: errors.ErrUnauthorized,
		},
		"face value in a foreign denomination": {
			setup: func(t *testing.T, ctx weave.Context, db weave.KVStore) weave.Context {
				setBalance(t, bank, db, depositor.Address(), coin.NewCoin(20000, 0, "IOV"))
				return authenticator.SetConditions(ctx, depositor)
			},
			mutator: func(msg *paychan.DepositMsg) {
				msg.Recipients[0].FaceValue = coin.NewCoinp(100, 0, "BTC")
			},
			wantCheckErr:   errors.ErrCurrency,
			wantDeliverErr: errors.ErrCurrency,
		},
		"claim ceiling in a foreign denomination": {
			setup: func(t *testing.T, ctx weave.Context, db weave.KVStore) weave.Context {
				setBalance(t, bank, db, depositor.Address(), coin.NewCoin(20000, 0, "IOV"))
				return authenticator.SetConditions(ctx, depositor)
			},
			mutator: func(msg *paychan.DepositMsg) {
				msg.Recipients[0].MaxAmount = coin.NewCoinp(10000, 0, "BTC")
			},
			wantCheckErr:   errors.ErrCurrency,
			wantDeliverErr: errors.ErrCurrency,
		},
		"existing channel with another operator": {
			setup: func(t *testing.T, ctx weave.Context, db weave.KVStore) weave.Context {
				setBalance(t, bank, db, depositor.Address(), coin.NewCoin(20000, 0, "IOV"))
				_, err := bucket.Put(db, sender.address(), &paychan.PaymentChannel{
					Metadata: &weave.Metadata{Schema: 1},
					Operator: weavetest.NewCondition().Address(),
				})
				assert.Nil(t, err)
				return authenticator.SetConditions(ctx, depositor)
			},
			wantCheckErr:   errors.ErrUnauthorized,
			wantDeliverErr: errors.ErrUnauthorized,
		},
		"recipient limit is enforced per insertion": {
			setup: func(t *testing.T, ctx weave.Context, db weave.KVStore) weave.Context {
				setBalance(t, bank, db, depositor.Address(), coin.NewCoin(40000, 0, "IOV"))
				return authenticator.SetConditions(ctx, depositor)
			},
			mutator: func(msg *paychan.DepositMsg) {
				for _, key := range []weave.Address{alice.Address(), bob.Address()} {
					msg.Recipients = append(msg.Recipients, &paychan.RecipientClaim{
						RecipientKey: key,
						MaxAmount:    coin.NewCoinp(1000, 0, "IOV"),
						FaceValue:    coin.NewCoinp(10, 0, "IOV"),
					})
				}
				msg.Amount = coin.NewCoinp(12000, 0, "IOV")
			},
			wantDeliverErr: paychan.ErrRecipientLimit,
			check: func(t *testing.T, db weave.KVStore) {
				// The failed batch must leave no trace.
				var pc paychan.PaymentChannel
				assert.IsErr(t, errors.ErrNotFound, bucket.One(db, sender.address(), &pc))
				assert.Equal(t, coin.NewCoin(0, 0, ""), balance(t, ctrl, db, paychan.PoolAccount()))
			},
		},
		"top up extends the ceiling but not the face value": {
			setup: func(t *testing.T, ctx weave.Context, db weave.KVStore) weave.Context {
				setBalance(t, bank, db, depositor.Address(), coin.NewCoin(40000, 0, "IOV"))
				_, err := bucket.Put(db, sender.address(), &paychan.PaymentChannel{
					Metadata: &weave.Metadata{Schema: 1},
					Operator: operator.Address(),
					Recipients: []*paychan.Recipient{
						{
							RecipientKey: alice.Address(),
							MaxAmount:    coin.NewCoinp(500, 0, "IOV"),
							FaceValue:    coin.NewCoinp(5, 0, "IOV"),
						},
					},
				})
				assert.Nil(t, err)
				return authenticator.SetConditions(ctx, depositor)
			},
			mutator: func(msg *paychan.DepositMsg) {
				msg.Recipients = []*paychan.RecipientClaim{
					{
						RecipientKey: alice.Address(),
						MaxAmount:    coin.NewCoinp(250, 0, "IOV"),
						FaceValue:    coin.NewCoinp(9000, 0, "IOV"),
					},
				}
				msg.Amount = coin.NewCoinp(250, 0, "IOV")
			},
			check: func(t *testing.T, db weave.KVStore) {
				var pc paychan.PaymentChannel
				assert.Nil(t, bucket.One(db, sender.address(), &pc))
				assert.Equal(t, 1, len(pc.Recipients))
				assert.Equal(t, coin.NewCoinp(750, 0, "IOV"), pc.Recipients[0].MaxAmount)
				assert.Equal(t, coin.NewCoinp(5, 0, "IOV"), pc.Recipients[0].FaceValue)
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			db := store.MemStore()
			migration.MustInitPkg(db, "paychan", "cash")
			saveConf(t, db, 2)

			ctx := weave.WithHeight(context.Background(), 100)
			ctx = weave.WithBlockTime(ctx, blockNow)
			if tc.setup != nil {
				ctx = tc.setup(t, ctx, db)
			}

			msg := &paychan.DepositMsg{
				Metadata:   &weave.Metadata{Schema: 1},
				ChannelKey: sender.address(),
				Operator:   operator.Address(),
				Recipients: []*paychan.RecipientClaim{
					{
						RecipientKey: alice.Address(),
						MaxAmount:    coin.NewCoinp(10000, 0, "IOV"),
						FaceValue:    coin.NewCoinp(100, 0, "IOV"),
					},
				},
				Amount: coin.NewCoinp(10000, 0, "IOV"),
				Source: depositor.Address(),
			}
			if tc.mutator != nil {
				tc.mutator(msg)
			}
			tx := &weavetest.Tx{Msg: msg}

			cache := db.CacheWrap()
			if _, err := r.Check(ctx, cache, tx); !tc.wantCheckErr.Is(err) {
				t.Fatalf("check expected %v, got %+v", tc.wantCheckErr, err)
			}
			cache.Discard()

			if _, err := r.Deliver(ctx, db, tx); !tc.wantDeliverErr.Is(err) {
				t.Fatalf("deliver expected %v, got %+v", tc.wantDeliverErr, err)
			}
			if tc.check != nil {
				tc.check(t, db)
			}
		})
	}
}

func TestCashChequesHandler(t *testing.T) {
	sender := genIdentity(t)
	recipient := genIdentity(t)
	approved := weavetest.NewCondition()
	stranger := weavetest.NewCondition()

	bank := cash.NewBucket()
	ctrl := cash.NewController(bank)
	bucket := paychan.NewBucket()

	r := app.NewRouter()
	authenticator := &weavetest.CtxAuth{Key: "auth"}
	auth := x.ChainAuth(authenticator)
	paychan.RegisterRoutes(r, auth, ctrl, paychan.Ed25519Verifier{}, paychan.DenyTokenMover{})

	cheque := func(sequence uint64) *paychan.Cheque {
		return &paychan.Cheque{
			ChannelKey: sender.address(),
			Sequence:   sequence,
			Commitment: paychan.BuildCommitment(sender.priv, paychan.ClaimCheque, nil),
		}
	}

	cases := map[string]struct {
		signers        []weave.Condition
		payee          weave.Condition
		cheques        []*paychan.Cheque
		wantDeliverErr *errors.Error
		wantPaid       coin.Coin
		wantSeq        uint64
	}{
		"recipient cashes a single cheque": {
			signers:  []weave.Condition{recipient.cond},
			payee:    recipient.cond,
			cheques:  []*paychan.Cheque{cheque(3)},
			wantPaid: coin.NewCoin(300, 0, "IOV"),
			wantSeq:  3,
		},
		"batch settles as one payout": {
			signers:  []weave.Condition{recipient.cond},
			payee:    recipient.cond,
			cheques:  []*paychan.Cheque{cheque(2), cheque(5)},
			wantPaid: coin.NewCoin(500, 0, "IOV"),
			wantSeq:  5,
		},
		"approved signer may cash": {
			signers:  []weave.Condition{approved},
			payee:    approved,
			cheques:  []*paychan.Cheque{cheque(1)},
			wantPaid: coin.NewCoin(100, 0, "IOV"),
			wantSeq:  1,
		},
		"recipient is preferred over a co-signing approved signer": {
			signers:  []weave.Condition{approved, recipient.cond},
			payee:    recipient.cond,
			cheques:  []*paychan.Cheque{cheque(2)},
			wantPaid: coin.NewCoin(200, 0, "IOV"),
			wantSeq:  2,
		},
		"stranger may not cash": {
			signers:        []weave.Condition{stranger},
			cheques:        []*paychan.Cheque{cheque(1)},
			wantDeliverErr: errors.ErrUnauthorized,
		},
		"stale cheque rejects the whole batch": {
			signers:        []weave.Condition{recipient.cond},
			cheques:        []*paychan.Cheque{cheque(4), cheque(2), cheque(7)},
			wantDeliverErr: paychan.ErrStaleSequence,
			wantSeq:        2,
		},
		"foreign commitment is rejected": {
			signers: []weave.Condition{recipient.cond},
			cheques: []*paychan.Cheque{
				{
					ChannelKey: sender.address(),
					Sequence:   1,
					Commitment: paychan.BuildCommitment(recipient.priv, paychan.ClaimCheque, nil),
				},
			},
			wantDeliverErr: paychan.ErrCommitment,
		},
		"close commitment does not authorize cashing": {
			signers: []weave.Condition{recipient.cond},
			cheques: []*paychan.Cheque{
				{
					ChannelKey: sender.address(),
					Sequence:   1,
					Commitment: paychan.BuildCommitment(sender.priv, paychan.ClaimCloseChannel, nil),
				},
			},
			wantDeliverErr: paychan.ErrCommitment,
		},
		"unknown channel": {
			signers: []weave.Condition{recipient.cond},
			cheques: []*paychan.Cheque{
				{
					ChannelKey: weavetest.NewCondition().Address(),
					Sequence:   1,
					Commitment: paychan.BuildCommitment(sender.priv, paychan.ClaimCheque, nil),
				},
			},
			wantDeliverErr: errors.ErrNotFound,
		},
		"withdrawal beyond the ceiling": {
			signers:        []weave.Condition{recipient.cond},
			cheques:        []*paychan.Cheque{cheque(101)},
			wantDeliverErr: errors.ErrOverflow,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			db := store.MemStore()
			migration.MustInitPkg(db, "paychan", "cash")
			saveConf(t, db, 10)
			setBalance(t, bank, db, paychan.PoolAccount(), coin.NewCoin(10000, 0, "IOV"))

			initialSeq := uint64(0)
			if tc.wantDeliverErr != nil {
				initialSeq = tc.wantSeq
			}
			_, err := bucket.Put(db, sender.address(), &paychan.PaymentChannel{
				Metadata: &weave.Metadata{Schema: 1},
				Operator: weavetest.NewCondition().Address(),
				Recipients: []*paychan.Recipient{
					{
						RecipientKey:       recipient.address(),
						MaxAmount:          coin.NewCoinp(10000, 0, "IOV"),
						FaceValue:          coin.NewCoinp(100, 0, "IOV"),
						WithdrawalSequence: initialSeq,
						ApproveSigners:     []weave.Address{approved.Address()},
					},
				},
			})
			assert.Nil(t, err)

			ctx := weave.WithHeight(context.Background(), 100)
			ctx = weave.WithBlockTime(ctx, blockNow)
			ctx = authenticator.SetConditions(ctx, tc.signers...)

			tx := &weavetest.Tx{Msg: &paychan.CashChequesMsg{
				Metadata:     &weave.Metadata{Schema: 1},
				RecipientKey: recipient.address(),
				Cheques:      tc.cheques,
			}}

			if _, err := r.Deliver(ctx, db, tx); !tc.wantDeliverErr.Is(err) {
				t.Fatalf("deliver expected %v, got %+v", tc.wantDeliverErr, err)
			}

			var pc paychan.PaymentChannel
			assert.Nil(t, bucket.One(db, sender.address(), &pc))
			assert.Equal(t, tc.wantSeq, pc.Recipients[0].WithdrawalSequence)

			if tc.wantDeliverErr == nil {
				assert.Equal(t, tc.wantPaid, balance(t, ctrl, db, tc.payee.Address()))
				wantPool, err := coin.NewCoin(10000, 0, "IOV").Subtract(tc.wantPaid)
				assert.Nil(t, err)
				assert.Equal(t, wantPool, balance(t, ctrl, db, paychan.PoolAccount()))
			} else {
				// A rejected batch must not move a single coin.
				assert.Equal(t, coin.NewCoin(10000, 0, "IOV"), balance(t, ctrl, db, paychan.PoolAccount()))
			}
		})
	}
}

func TestCashChequesGasAllocation(t *testing.T) {
	recipient := weavetest.NewCondition()
	channelKey := weavetest.NewCondition().Address()

	r := app.NewRouter()
	authenticator := &weavetest.CtxAuth{Key: "auth"}
	auth := x.ChainAuth(authenticator)
	ctrl := cash.NewController(cash.NewBucket())
	paychan.RegisterRoutes(r, auth, ctrl, paychan.Ed25519Verifier{}, paychan.DenyTokenMover{})

	newTx := func(cheques int) weave.Tx {
		msg := &paychan.CashChequesMsg{
			Metadata:     &weave.Metadata{Schema: 1},
			RecipientKey: recipient.Address(),
		}
		for i := 0; i < cheques; i++ {
			msg.Cheques = append(msg.Cheques, &paychan.Cheque{
				ChannelKey: channelKey,
				Sequence:   uint64(i + 1),
				Commitment: []byte("pending verification"),
			})
		}
		return &weavetest.Tx{Msg: msg}
	}

	db := store.MemStore()
	migration.MustInitPkg(db, "paychan", "cash")
	saveConf(t, db, 10)

	ctx := weave.WithHeight(context.Background(), 100)
	ctx = weave.WithBlockTime(ctx, blockNow)
	ctx = authenticator.SetConditions(ctx, recipient)

	one, err := r.Check(ctx, db, newTx(1))
	assert.Nil(t, err)
	three, err := r.Check(ctx, db, newTx(3))
	assert.Nil(t, err)

	if one.GasAllocated <= 0 {
		t.Fatalf("expected a positive gas allocation, got %d", one.GasAllocated)
	}
	// Gas must grow with the batch, a flat price would let a huge batch
	// underpay.
	assert.Equal(t, 3*one.GasAllocated, three.GasAllocated)
}

func TestCloseChannelHandler(t *testing.T) {
	sender := genIdentity(t)
	recipient := genIdentity(t)
	operator := weavetest.NewCondition()

	bank := cash.NewBucket()
	ctrl := cash.NewController(bank)
	bucket := paychan.NewBucket()

	r := app.NewRouter()
	authenticator := &weavetest.CtxAuth{Key: "auth"}
	auth := x.ChainAuth(authenticator)
	paychan.RegisterRoutes(r, auth, ctrl, paychan.Ed25519Verifier{}, paychan.DenyTokenMover{})

	setup := func(t *testing.T) weave.KVStore {
		db := store.MemStore()
		migration.MustInitPkg(db, "paychan", "cash")
		saveConf(t, db, 10)
		setBalance(t, bank, db, paychan.PoolAccount(), coin.NewCoin(10000, 0, "IOV"))

		_, err := bucket.Put(db, sender.address(), &paychan.PaymentChannel{
			Metadata: &weave.Metadata{Schema: 1},
			Operator: operator.Address(),
			Recipients: []*paychan.Recipient{
				{
					RecipientKey: recipient.address(),
					MaxAmount:    coin.NewCoinp(10000, 0, "IOV"),
					FaceValue:    coin.NewCoinp(100, 0, "IOV"),
				},
			},
		})
		assert.Nil(t, err)
		return db
	}

	closeTx := func(commitment []byte) weave.Tx {
		return &weavetest.Tx{Msg: &paychan.CloseChannelMsg{
			Metadata:   &weave.Metadata{Schema: 1},
			ChannelKey: sender.address(),
			Closures: []*paychan.Closure{
				{RecipientKey: recipient.address(), Commitment: commitment},
			},
		}}
	}

	atTime := func(now time.Time) weave.Context {
		ctx := weave.WithHeight(context.Background(), 100)
		ctx = weave.WithBlockTime(ctx, now)
		return authenticator.SetConditions(ctx, operator)
	}

	t.Run("cooperative close settles immediately", func(t *testing.T) {
		db := setup(t)
		approval := paychan.BuildCommitment(recipient.priv, paychan.ClaimCloseChannel, nil)
		_, err := r.Deliver(atTime(blockNow), db, closeTx(approval))
		assert.Nil(t, err)

		var pc paychan.PaymentChannel
		assert.Nil(t, bucket.One(db, sender.address(), &pc))
		assert.Equal(t, 0, len(pc.Recipients))
		assert.Equal(t, coin.NewCoin(10000, 0, "IOV"), balance(t, ctrl, db, operator.Address()))
	})

	t.Run("non operator cannot close", func(t *testing.T) {
		db := setup(t)
		ctx := weave.WithHeight(context.Background(), 100)
		ctx = weave.WithBlockTime(ctx, blockNow)
		ctx = authenticator.SetConditions(ctx, weavetest.NewCondition())
		_, err := r.Deliver(ctx, db, closeTx(nil))
		assert.IsErr(t, errors.ErrUnauthorized, err)
	})

	t.Run("closing an absent recipient is a no-op", func(t *testing.T) {
		db := setup(t)
		tx := &weavetest.Tx{Msg: &paychan.CloseChannelMsg{
			Metadata:   &weave.Metadata{Schema: 1},
			ChannelKey: sender.address(),
			Closures: []*paychan.Closure{
				{RecipientKey: weavetest.NewCondition().Address()},
			},
		}}
		_, err := r.Deliver(atTime(blockNow), db, tx)
		assert.Nil(t, err)
		assert.Equal(t, coin.NewCoin(10000, 0, "IOV"), balance(t, ctrl, db, paychan.PoolAccount()))
	})

	t.Run("unilateral close waits out the dispute window", func(t *testing.T) {
		db := setup(t)

		// First request starts the window.
		_, err := r.Deliver(atTime(blockNow), db, closeTx(nil))
		assert.Nil(t, err)
		var pc paychan.PaymentChannel
		assert.Nil(t, bucket.One(db, sender.address(), &pc))
		wantRelease := weave.AsUnixTime(blockNow).Add(time.Hour)
		assert.Equal(t, wantRelease, pc.Recipients[0].AutoRelease)
		assert.Equal(t, coin.NewCoin(10000, 0, "IOV"), balance(t, ctrl, db, paychan.PoolAccount()))

		// Before the window elapsed nothing changes.
		_, err = r.Deliver(atTime(blockNow.Add(30*time.Minute)), db, closeTx(nil))
		assert.Nil(t, err)
		assert.Nil(t, bucket.One(db, sender.address(), &pc))
		assert.Equal(t, wantRelease, pc.Recipients[0].AutoRelease)

		// The recipient can still cash outstanding cheques.
		cashCtx := weave.WithHeight(context.Background(), 101)
		cashCtx = weave.WithBlockTime(cashCtx, blockNow.Add(40*time.Minute))
		cashCtx = authenticator.SetConditions(cashCtx, recipient.cond)
		cashTx := &weavetest.Tx{Msg: &paychan.CashChequesMsg{
			Metadata:     &weave.Metadata{Schema: 1},
			RecipientKey: recipient.address(),
			Cheques: []*paychan.Cheque{
				{
					ChannelKey: sender.address(),
					Sequence:   3,
					Commitment: paychan.BuildCommitment(sender.priv, paychan.ClaimCheque, nil),
				},
			},
		}}
		_, err = r.Deliver(cashCtx, db, cashTx)
		assert.Nil(t, err)
		assert.Equal(t, coin.NewCoin(300, 0, "IOV"), balance(t, ctrl, db, recipient.address()))

		// Once elapsed, the remainder refunds to the operator.
		_, err = r.Deliver(atTime(blockNow.Add(2*time.Hour)), db, closeTx(nil))
		assert.Nil(t, err)
		assert.Nil(t, bucket.One(db, sender.address(), &pc))
		assert.Equal(t, 0, len(pc.Recipients))
		assert.Equal(t, coin.NewCoin(9700, 0, "IOV"), balance(t, ctrl, db, operator.Address()))
		assert.Equal(t, coin.NewCoin(0, 0, "IOV"), balance(t, ctrl, db, paychan.PoolAccount()))
	})
}

func TestUpdateConfigurationHandler(t *testing.T) {
	owner := weavetest.NewCondition()
	stranger := weavetest.NewCondition()

	r := app.NewRouter()
	authenticator := &weavetest.CtxAuth{Key: "auth"}
	auth := x.ChainAuth(authenticator)
	ctrl := cash.NewController(cash.NewBucket())
	paychan.RegisterRoutes(r, auth, ctrl, paychan.Ed25519Verifier{}, paychan.DenyTokenMover{})

	newTx := func() weave.Tx {
		return &weavetest.Tx{Msg: &paychan.UpdateConfigurationMsg{
			Metadata: &weave.Metadata{Schema: 1},
			Patch: &paychan.Configuration{
				Metadata:      &weave.Metadata{Schema: 1},
				MaxRecipients: 25,
			},
		}}
	}

	t.Run("owner can patch", func(t *testing.T) {
		db := store.MemStore()
		migration.MustInitPkg(db, "paychan", "cash")
		saveConfOwned(t, db, owner.Address(), 10)

		ctx := weave.WithHeight(context.Background(), 100)
		ctx = weave.WithBlockTime(ctx, blockNow)
		ctx = authenticator.SetConditions(ctx, owner)

		_, err := r.Deliver(ctx, db, newTx())
		assert.Nil(t, err)

		var conf paychan.Configuration
		assert.Nil(t, gconf.Load(db, "paychan", &conf))
		assert.Equal(t, uint32(25), conf.MaxRecipients)
		// Fields left empty in the patch keep their value.
		assert.Equal(t, "IOV", conf.Denom.Ticker)
	})

	t.Run("stranger cannot patch", func(t *testing.T) {
		db := store.MemStore()
		migration.MustInitPkg(db, "paychan", "cash")
		saveConfOwned(t, db, owner.Address(), 10)

		ctx := weave.WithHeight(context.Background(), 100)
		ctx = weave.WithBlockTime(ctx, blockNow)
		ctx = authenticator.SetConditions(ctx, stranger)

		_, err := r.Deliver(ctx, db, newTx())
		assert.IsErr(t, errors.ErrUnauthorized, err)
	})
}

func saveConf(t testing.TB, db weave.KVStore, maxRecipients uint32) {
	saveConfOwned(t, db, weavetest.NewCondition().Address(), maxRecipients)
}

func saveConfOwned(t testing.TB, db weave.KVStore, owner weave.Address, maxRecipients uint32) {
	t.Helper()
	err := gconf.Save(db, "paychan", &paychan.Configuration{
		Metadata:        &weave.Metadata{Schema: 1},
		Owner:           owner,
		Denom:           &paychan.Denom{Ticker: "IOV"},
		AutoReleaseTime: weave.AsUnixDuration(time.Hour),
		MaxRecipients:   maxRecipients,
	})
	assert.Nil(t, err)
}

func setBalance(t testing.TB, bank cash.Bucket, db weave.KVStore, addr weave.Address, c coin.Coin) {
	t.Helper()
	wallet, err := cash.WalletWith(addr, &c)
	assert.Nil(t, err)
	assert.Nil(t, bank.Save(db, wallet))
}

func balance(t testing.TB, ctrl cash.Controller, db weave.KVStore, addr weave.Address) coin.Coin {
	t.Helper()
	switch coins, err := ctrl.Balance(db, addr); {
	case err == nil:
		if len(coins) == 0 {
			return coin.NewCoin(0, 0, "IOV")
		}
		return *coins[0]
	case errors.ErrNotFound.Is(err):
		return coin.Coin{}
	default:
		t.Fatalf("cannot read balance: %+v", err)
		return coin.Coin{}
	}
}
