package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestAccount_ValidateDebit(t *testing.T) {
	tests := []struct {
		name        string
		balance     decimal.Decimal
		debitAmount decimal.Decimal
		expectError bool
	}{
		{
			name:        "debit more than balance",
			balance:     decimal.NewFromInt(100),
			debitAmount: decimal.NewFromInt(150),
			expectError: true,
		},
		{
			name:        "debit exact balance",
			balance:     decimal.NewFromInt(100),
			debitAmount: decimal.NewFromInt(100),
			expectError: false,
		},
		{
			name:        "debit less than balance",
			balance:     decimal.NewFromInt(100),
			debitAmount: decimal.NewFromInt(50),
			expectError: false,
		},
		{
			name:        "debit one unit over",
			balance:     decimal.RequireFromString("1.00000000"),
			debitAmount: decimal.RequireFromString("1.00000001"),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := &Account{ID: "acc-1", Balance: tt.balance}
			err := acc.ValidateDebit(tt.debitAmount)
			if tt.expectError {
				if !errors.Is(err, ErrInsufficientBalance) {
					t.Fatalf("expected ErrInsufficientBalance, got %v", err)
				}
				if ReasonCode(err) != ReasonInsufficientBalance {
					t.Fatalf("expected reason %s, got %s", ReasonInsufficientBalance, ReasonCode(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestAccount_ApplyCreditDebit(t *testing.T) {
	acc := &Account{Balance: decimal.RequireFromString("10.5")}

	if got := acc.ApplyCredit(decimal.RequireFromString("0.00000001")); !got.Equal(decimal.RequireFromString("10.50000001")) {
		t.Fatalf("unexpected credit result %s", got)
	}
	if got := acc.ApplyDebit(decimal.RequireFromString("0.5")); !got.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected debit result %s", got)
	}
}

func TestAccount_Validate(t *testing.T) {
	valid := &Account{Name: "main_operating", Type: AccountTypeOperating, Balance: decimal.Zero}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid account, got %v", err)
	}

	negative := &Account{Name: "reserve", Type: AccountTypeReserve, Balance: decimal.NewFromInt(-1)}
	if err := negative.Validate(); !errors.Is(err, ErrNegativeBalance) {
		t.Fatalf("expected ErrNegativeBalance, got %v", err)
	}

	noType := &Account{Name: "reserve"}
	if err := noType.Validate(); err == nil {
		t.Fatalf("expected error for missing type")
	}
}
