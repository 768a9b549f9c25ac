package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/vetbill/internal/clock"
	ledgerdomain "github.com/smallbiznis/vetbill/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (s *Service) PostTx(
	ctx context.Context,
	tx *gorm.DB,
	sourceType ledgerdomain.LedgerSourceType,
	sourceID snowflake.ID,
	occurredAt time.Time,
	postings []ledgerdomain.Posting,
) (bool, error) {
	if strings.TrimSpace(string(sourceType)) == "" {
		return false, ledgerdomain.ErrInvalidSourceType
	}
	if sourceID == 0 {
		return false, ledgerdomain.ErrInvalidSourceID
	}
	if occurredAt.IsZero() {
		return false, ledgerdomain.ErrInvalidOccurredAt
	}
	if len(postings) < 2 {
		return false, ledgerdomain.ErrInvalidEntryLines
	}

	normalized := make([]ledgerdomain.Posting, 0, len(postings))
	codes := make([]ledgerdomain.LedgerAccountCode, 0, len(postings))
	for _, p := range postings {
		direction, err := normalizeDirection(p.Direction)
		if err != nil {
			return false, err
		}
		if p.Amount < 0 {
			return false, ledgerdomain.ErrInvalidLineAmount
		}
		if p.Amount == 0 {
			continue
		}
		normalized = append(normalized, ledgerdomain.Posting{
			Account:   p.Account,
			Direction: direction,
			Amount:    p.Amount,
		})
		codes = append(codes, p.Account)
	}
	if err := ledgerdomain.ValidateBalanced(normalized); err != nil {
		return false, err
	}

	accounts, err := loadAccounts(ctx, tx, codes)
	if err != nil {
		return false, fmt.Errorf("load ledger accounts: %w", err)
	}

	now := s.clock.Now()
	entry := ledgerdomain.LedgerEntry{
		ID:         s.genID.Generate(),
		SourceType: sourceType,
		SourceID:   sourceID,
		OccurredAt: occurredAt.UTC(),
		CreatedAt:  now,
	}
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_type"}, {Name: "source_id"}},
			DoNothing: true,
		}).
		Create(&entry)
	if result.Error != nil {
		return false, fmt.Errorf("insert ledger entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		s.log.Info("ledger entry already exists",
			zap.String("source_type", string(sourceType)),
			zap.String("source_id", sourceID.String()),
		)
		return false, nil
	}

	for _, p := range normalized {
		account, ok := accounts[p.Account]
		if !ok {
			return false, fmt.Errorf("%w: %s", ledgerdomain.ErrAccountNotFound, p.Account)
		}
		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO ledger_entry_lines (
				id, ledger_entry_id, account_id, direction, amount, created_at
			) VALUES (?, ?, ?, ?, ?, ?)`,
			s.genID.Generate(),
			entry.ID,
			account.ID,
			string(p.Direction),
			p.Amount,
			now,
		).Error; err != nil {
			return false, fmt.Errorf("insert ledger entry line: %w", err)
		}
	}

	s.log.Debug("posted ledger entry",
		zap.String("ledger_entry_id", entry.ID.String()),
		zap.String("source_type", string(sourceType)),
		zap.String("source_id", sourceID.String()),
	)
	return true, nil
}

// AccountBalance returns debits minus credits for the account, in cents.
func (s *Service) AccountBalance(ctx context.Context, code ledgerdomain.LedgerAccountCode) (int64, error) {
	var balance int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(CASE WHEN l.direction = ? THEN l.amount ELSE -l.amount END), 0)
		 FROM ledger_entry_lines l
		 JOIN ledger_accounts a ON a.id = l.account_id
		 WHERE a.code = ?`,
		string(ledgerdomain.LedgerEntryDirectionDebit),
		string(code),
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func loadAccounts(ctx context.Context, tx *gorm.DB, codes []ledgerdomain.LedgerAccountCode) (map[ledgerdomain.LedgerAccountCode]ledgerdomain.LedgerAccount, error) {
	var accounts []ledgerdomain.LedgerAccount
	if err := tx.WithContext(ctx).
		Where("code IN ?", codes).
		Find(&accounts).Error; err != nil {
		return nil, err
	}

	result := make(map[ledgerdomain.LedgerAccountCode]ledgerdomain.LedgerAccount, len(accounts))
	for _, acc := range accounts {
		result[acc.Code] = acc
	}
	return result, nil
}

func normalizeDirection(direction ledgerdomain.LedgerEntryDirection) (ledgerdomain.LedgerEntryDirection, error) {
	normalized := strings.ToLower(strings.TrimSpace(string(direction)))
	switch normalized {
	case string(ledgerdomain.LedgerEntryDirectionDebit):
		return ledgerdomain.LedgerEntryDirectionDebit, nil
	case string(ledgerdomain.LedgerEntryDirectionCredit):
		return ledgerdomain.LedgerEntryDirectionCredit, nil
	default:
		return "", ledgerdomain.ErrInvalidLineDirection
	}
}

// EnsureChartOfAccounts inserts any missing account from the default chart.
func EnsureChartOfAccounts(ctx context.Context, db *gorm.DB, genID *snowflake.Node, now time.Time) error {
	for code, name := range ledgerdomain.DefaultChart() {
		account := ledgerdomain.LedgerAccount{
			ID:        genID.Generate(),
			Code:      code,
			Name:      name,
			CreatedAt: now,
		}
		err := db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "code"}},
				DoNothing: true,
			}).
			Create(&account).Error
		if err != nil {
			return fmt.Errorf("seed ledger account %s: %w", code, err)
		}
	}
	return nil
}
