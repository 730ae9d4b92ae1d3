package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestValidateAccountName(t *testing.T) {
	t.Parallel()

	t.Run("valid name", func(t *testing.T) {
		if err := ValidateAccountName("reserve_fund"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("empty name rejected", func(t *testing.T) {
		err := ValidateAccountName("   ")
		if !errors.Is(err, ErrInvalidAccountName) {
			t.Fatalf("expected ErrInvalidAccountName, got %v", err)
		}
	})

	t.Run("name too long", func(t *testing.T) {
		err := ValidateAccountName(strings.Repeat("a", MaxNameLength+1))
		if !errors.Is(err, ErrInvalidAccountName) {
			t.Fatalf("expected ErrInvalidAccountName, got %v", err)
		}
	})

	t.Run("forbidden characters", func(t *testing.T) {
		err := ValidateAccountName("reserve; --")
		if !errors.Is(err, ErrInvalidAccountName) {
			t.Fatalf("expected ErrInvalidAccountName, got %v", err)
		}
	})
}

func TestValidateMetadata(t *testing.T) {
	t.Parallel()

	if err := ValidateMetadata(map[string]any{"source": "custodian"}); err != nil {
		t.Fatalf("expected small metadata to pass, got %v", err)
	}

	big := map[string]any{"blob": strings.Repeat("x", MaxMetadataSize+1)}
	if err := ValidateMetadata(big); !errors.Is(err, ErrMetadataTooLarge) {
		t.Fatalf("expected ErrMetadataTooLarge, got %v", err)
	}
}

func TestValidatePagination(t *testing.T) {
	t.Parallel()

	limit, offset := ValidatePagination(0, -5)
	if limit != DefaultPageSize || offset != 0 {
		t.Fatalf("expected defaults, got limit=%d offset=%d", limit, offset)
	}

	limit, _ = ValidatePagination(MaxPageSize+10, 0)
	if limit != MaxPageSize {
		t.Fatalf("expected limit clamped to %d, got %d", MaxPageSize, limit)
	}
}

func TestReasonCode(t *testing.T) {
	t.Parallel()

	wrapped := NewReasonError(ErrInvalidPercentageSum, ReasonPercentageSum, "entries", "sum 90")
	if ReasonCode(wrapped) != ReasonPercentageSum {
		t.Fatalf("expected reason from ReasonError, got %s", ReasonCode(wrapped))
	}
	if ReasonCode(ErrRuleNotFound) != ReasonNotFound {
		t.Fatalf("expected NOT_FOUND for sentinel, got %s", ReasonCode(ErrRuleNotFound))
	}
	if ReasonCode(errors.New("boom")) != ReasonInternal {
		t.Fatalf("expected INTERNAL for unknown error")
	}
}

func TestActorFromContext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if got := ActorFromContext(ctx, SystemActor); got != SystemActor {
		t.Fatalf("expected fallback actor, got %s", got)
	}

	ctx = WithPrincipal(ctx, Principal{ID: "ops-1", Role: RoleOperator})
	if got := ActorFromContext(ctx, SystemActor); got != "ops-1" {
		t.Fatalf("expected principal id, got %s", got)
	}

	if !RoleAdmin.Allows(RoleOperator) || RoleViewer.Allows(RoleOperator) {
		t.Fatalf("unexpected role ordering")
	}
}
