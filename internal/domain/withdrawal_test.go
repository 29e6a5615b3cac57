package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		name     string
		from, to WithdrawalStatus
		wantNoop bool
		wantErr  bool
	}{
		{name: "approve requested", from: WithdrawalStatusRequested, to: WithdrawalStatusApproved},
		{name: "reject requested", from: WithdrawalStatusRequested, to: WithdrawalStatusRejected},
		{name: "pay approved", from: WithdrawalStatusApproved, to: WithdrawalStatusPaid},
		{name: "approve twice", from: WithdrawalStatusApproved, to: WithdrawalStatusApproved, wantNoop: true},
		{name: "pay twice", from: WithdrawalStatusPaid, to: WithdrawalStatusPaid, wantNoop: true},
		{name: "pay requested", from: WithdrawalStatusRequested, to: WithdrawalStatusPaid, wantErr: true},
		{name: "reject approved", from: WithdrawalStatusApproved, to: WithdrawalStatusRejected, wantErr: true},
		{name: "approve rejected", from: WithdrawalStatusRejected, to: WithdrawalStatusApproved, wantErr: true},
		{name: "back to requested", from: WithdrawalStatusApproved, to: WithdrawalStatusRequested, wantErr: true},
		{name: "reject paid", from: WithdrawalStatusPaid, to: WithdrawalStatusRejected, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			noop, err := tt.from.CheckTransition(tt.to)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidStateTransition)
				assert.False(t, noop)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNoop, noop)
		})
	}
}

func TestWithdrawalStatusTerminal(t *testing.T) {
	assert.False(t, WithdrawalStatusRequested.IsTerminal())
	assert.False(t, WithdrawalStatusApproved.IsTerminal())
	assert.True(t, WithdrawalStatusRejected.IsTerminal())
	assert.True(t, WithdrawalStatusPaid.IsTerminal())
	assert.False(t, WithdrawalStatus("pending").IsValid())
}

func TestPayoutDetailsMasked(t *testing.T) {
	tests := []struct {
		card string
		want string
	}{
		{"4111111111111234", "****1234"},
		{"4111 1111 1111 9876", "****9876"},
		{"12", "****12"},
		{"", "****"},
	}

	for _, tt := range tests {
		t.Run(tt.card, func(t *testing.T) {
			d := PayoutDetails{Method: PayoutMethodCard, BankName: "Bank", CardNumber: tt.card, RecipientName: "A. Artist"}
			masked := d.Masked()
			assert.Equal(t, tt.want, masked.CardNumber)
			assert.Equal(t, "Bank", masked.BankName)
			assert.Equal(t, tt.card, d.CardNumber, "original must be untouched")
		})
	}
}
