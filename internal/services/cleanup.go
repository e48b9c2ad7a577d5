package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/vvka-141/pgbulk/pkg/pgbulk"
)

// CleanupConfig selects the staging tables to remove.
type CleanupConfig struct {
	// Table is the target table whose leftover staging tables are dropped.
	Table string

	// DryRun lists the tables without dropping them.
	DryRun bool

	// Approver confirms the drop. Nil drops without asking.
	Approver pgbulk.Approver
}

// Cleanup drops staging tables left behind by loads into cfg.Table whose
// coordinator died before it could promote or drop them. It returns the
// tables found. Only run it when no load into the table is in progress.
func (s *LoadService) Cleanup(ctx context.Context, connConfig *pgbulk.ConnectionConfig, cfg CleanupConfig) ([]pgbulk.TableName, error) {
	if connConfig == nil {
		return nil, fmt.Errorf("connection is required: %w", pgbulk.ErrInvalidConfig)
	}
	target, err := pgbulk.ParseTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	conn, closeConn, err := s.connect(ctx, connConfig, 1)
	if err != nil {
		return nil, err
	}
	defer closeConn()

	tables, err := s.tables.ListStaging(ctx, conn, target)
	if err != nil {
		return nil, err
	}
	if len(tables) == 0 {
		s.logger.Info("No staging tables of %s found", target)
		return tables, nil
	}

	if !cfg.DryRun && cfg.Approver != nil {
		approved, err := cfg.Approver.RequestApproval(ctx, target.String(), tables)
		if err != nil {
			return tables, fmt.Errorf("approval failed: %w", err)
		}
		if !approved {
			return tables, fmt.Errorf("dropping staging tables of %s: %w", target, pgbulk.ErrApprovalDenied)
		}
	}

	var errs []error
	for _, t := range tables {
		if cfg.DryRun {
			s.logger.Info("Would drop %s", t)
			continue
		}
		if err := s.tables.Drop(ctx, conn, t); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Info("Dropped %s", t)
	}
	return tables, errors.Join(errs...)
}
