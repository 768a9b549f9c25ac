package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Posting is one side of a ledger entry, addressed by account code.
type Posting struct {
	Account   LedgerAccountCode
	Direction LedgerEntryDirection
	Amount    int64
}

type Service interface {
	// PostTx writes the entry inside tx. A second posting for the same source is
	// ignored and reported as false.
	PostTx(ctx context.Context, tx *gorm.DB, sourceType LedgerSourceType, sourceID snowflake.ID, occurredAt time.Time, postings []Posting) (bool, error)
	AccountBalance(ctx context.Context, code LedgerAccountCode) (int64, error)
}

var (
	ErrInvalidSourceType    = errors.New("invalid_source_type")
	ErrInvalidSourceID      = errors.New("invalid_source_id")
	ErrInvalidOccurredAt    = errors.New("invalid_occurred_at")
	ErrInvalidEntryLines    = errors.New("invalid_entry_lines")
	ErrInvalidLineDirection = errors.New("invalid_line_direction")
	ErrInvalidLineAmount    = errors.New("invalid_line_amount")
	ErrUnbalancedEntry      = errors.New("unbalanced_entry")
	ErrAccountNotFound      = errors.New("ledger_account_not_found")
)

// ValidateBalanced checks that debits equal credits and the entry moves money.
func ValidateBalanced(postings []Posting) error {
	var debit, credit int64
	for _, p := range postings {
		switch p.Direction {
		case LedgerEntryDirectionDebit:
			debit += p.Amount
		case LedgerEntryDirectionCredit:
			credit += p.Amount
		default:
			return ErrInvalidLineDirection
		}
	}
	if debit == 0 || debit != credit {
		return ErrUnbalancedEntry
	}
	return nil
}
