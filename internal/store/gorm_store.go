package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/gormdb"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
	bizConsts "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/model"
)

// GormStore persists task instances in MySQL 8 or Postgres through the gorm components.
type GormStore struct {
	*core.BaseComponent
	source      *gormdb.Component
	dsName      string
	autoMigrate bool
	db          *gorm.DB
}

func NewGormStore(source *gormdb.Component, dsName string, autoMigrate bool) *GormStore {
	return &GormStore{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_STORE_TASK, consts.COMPONENT_LOGGING, source.Name()),
		source:        source,
		dsName:        dsName,
		autoMigrate:   autoMigrate,
	}
}

// NewGormStoreWithDB wraps an already opened db; used by tooling that manages its own connection.
func NewGormStoreWithDB(db *gorm.DB) *GormStore {
	return &GormStore{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_STORE_TASK),
		db:            db,
	}
}

func (s *GormStore) Start(ctx context.Context) error {
	if err := s.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if s.db == nil {
		db, err := s.source.GetDB(s.dsName)
		if err != nil {
			return fmt.Errorf("get gorm db %s failed: %w", s.dsName, err)
		}
		s.db = db
	}
	if s.autoMigrate {
		if err := s.db.WithContext(ctx).AutoMigrate(&model.TaskInstance{}); err != nil {
			return fmt.Errorf("auto migrate task_instances failed: %w", err)
		}
		logging.Info(ctx, "task_instances migrated", zap.String("datasource", s.dsName))
	}
	return nil
}

// Create inserts instances; BeforeCreate fills the partition.
func (s *GormStore) Create(ctx context.Context, tasks ...*model.TaskInstance) error {
	if len(tasks) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(tasks).Error
}

type lockedRow struct {
	ID     string
	Status bizConsts.TaskStatus
}

// UpdateByQuery locks up to q.Limit eligible rows with FOR UPDATE SKIP LOCKED and claims them
// in the same transaction. Rows locked by another node are skipped rather than waited on.
func (s *GormStore) UpdateByQuery(ctx context.Context, q ClaimQuery, u ClaimUpdate) (UpdateByQueryResult, error) {
	var res UpdateByQueryResult
	if q.Limit <= 0 || len(q.TaskTypes) == 0 {
		return res, nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []lockedRow
		err := s.eligible(tx, q).
			Select("id", "status").
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Find(&rows).Error
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]string, 0, len(rows))
		stale := 0
		for _, r := range rows {
			ids = append(ids, r.ID)
			if r.Status == bizConsts.StatusClaiming || r.Status == bizConsts.StatusRunning {
				stale++
			}
		}
		res.Total = len(ids)
		upd := tx.Model(&model.TaskInstance{}).Where("id IN ?", ids).Updates(claimColumns(u))
		if upd.Error != nil {
			return upd.Error
		}
		res.Updated = int(upd.RowsAffected)
		res.Stale = stale
		return nil
	})
	if err != nil {
		if IsLockConflict(err) {
			// 整个事务被数据库回滚, 视作冲突
			return UpdateByQueryResult{Total: res.Total, Conflicts: res.Total}, nil
		}
		return UpdateByQueryResult{}, fmt.Errorf("update by query: %w", err)
	}
	return res, nil
}

func (s *GormStore) Search(ctx context.Context, q ClaimQuery) ([]*model.TaskInstance, error) {
	if q.Limit <= 0 || len(q.TaskTypes) == 0 {
		return nil, nil
	}
	var out []*model.TaskInstance
	if err := s.eligible(s.db.WithContext(ctx), q).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("search claimable: %w", err)
	}
	return out, nil
}

func (s *GormStore) ConditionalUpdate(ctx context.Context, id string, version int64, u ClaimUpdate) (*model.TaskInstance, error) {
	db := s.db.WithContext(ctx)
	res := db.Model(&model.TaskInstance{}).
		Where("id = ? AND version = ?", id, version).
		Updates(claimColumns(u))
	if res.Error != nil {
		if IsLockConflict(res.Error) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("conditional update %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := db.Model(&model.TaskInstance{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("conditional update %s: %w", id, err)
		}
		if n == 0 {
			return nil, ErrNotFound
		}
		return nil, ErrConflict
	}
	var t model.TaskInstance
	if err := db.Where("id = ?", id).Take(&t).Error; err != nil {
		return nil, fmt.Errorf("reload %s: %w", id, err)
	}
	return &t, nil
}

func (s *GormStore) FetchClaimed(ctx context.Context, q ClaimedQuery) ([]*model.TaskInstance, error) {
	if len(q.TaskTypes) == 0 {
		return nil, nil
	}
	var out []*model.TaskInstance
	err := s.db.WithContext(ctx).
		Where("status = ? AND owner = ? AND retry_at = ?", bizConsts.StatusClaiming, q.Owner, q.Until).
		Where("task_type IN ?", q.TaskTypes).
		Order(claimOrder).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("fetch claimed: %w", err)
	}
	return out, nil
}

func (s *GormStore) CountRunning(ctx context.Context, q RunningQuery) (map[string]int, error) {
	var rows []struct {
		TaskType string
		N        int
	}
	db := s.db.WithContext(ctx).Model(&model.TaskInstance{}).
		Select("task_type, COUNT(*) AS n").
		Where("status IN ?", bizConsts.OwnedStatuses).
		Where("retry_at > ?", q.ActiveAfter)
	if q.Owner != "" {
		db = db.Where("owner = ?", q.Owner)
	}
	if err := db.Group("task_type").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count running: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.TaskType] = r.N
	}
	return out, nil
}

func (s *GormStore) SearchExhausted(ctx context.Context, q ExhaustedQuery) ([]*model.TaskInstance, error) {
	db := s.db.WithContext(ctx).
		Where("enabled = ?", true).
		Where("status IN ?", bizConsts.ClaimableStatuses)
	var cond *gorm.DB
	types := make([]string, 0, len(q.TypeMaxAttempts))
	for t := range q.TypeMaxAttempts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		limit := q.TypeMaxAttempts[t]
		if limit <= 0 {
			continue
		}
		if cond == nil {
			cond = s.db.Where("task_type = ? AND attempts >= ?", t, limit)
		} else {
			cond = cond.Or("task_type = ? AND attempts >= ?", t, limit)
		}
	}
	if cond == nil {
		return nil, nil
	}
	db = db.Where(cond)
	if q.Partitions != nil {
		db = db.Where("partition_no IN ?", q.Partitions)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	var out []*model.TaskInstance
	if err := db.Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("search exhausted: %w", err)
	}
	return out, nil
}

func (s *GormStore) MarkUnrecognized(ctx context.Context, q UnrecognizedQuery) (int, error) {
	if len(q.KnownTypes) == 0 {
		return 0, nil
	}
	db := s.db.WithContext(ctx).Model(&model.TaskInstance{}).
		Where("status = ?", bizConsts.StatusIdle).
		Where("task_type NOT IN ?", q.KnownTypes).
		Where("run_at <= ?", q.Now)
	if q.Partitions != nil {
		db = db.Where("partition_no IN ?", q.Partitions)
	}
	res := db.Updates(map[string]any{
		"status":  bizConsts.StatusUnrecognized,
		"version": gorm.Expr("version + 1"),
	})
	if res.Error != nil {
		return 0, fmt.Errorf("mark unrecognized: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

const claimOrder = "run_at ASC, priority DESC, id ASC"

// eligible builds the ClaimQuery predicate; IsClaimable is the in-memory twin.
func (s *GormStore) eligible(db *gorm.DB, q ClaimQuery) *gorm.DB {
	db = db.Model(&model.TaskInstance{}).
		Where("enabled = ?", true).
		Where("run_at <= ?", q.Now).
		Where("task_type IN ?", q.TaskTypes).
		Where(
			s.db.Where("status IN ?", bizConsts.ClaimableStatuses).
				Or("status IN ? AND (retry_at IS NULL OR retry_at <= ?)", bizConsts.OwnedStatuses, q.StaleBefore),
		)
	if q.Partitions != nil {
		db = db.Where("partition_no IN ?", q.Partitions)
	}
	for _, t := range q.TaskTypes {
		if limit := q.TypeMaxAttempts[t]; limit > 0 {
			db = db.Where("NOT (task_type = ? AND attempts >= ?)", t, limit)
		}
	}
	return db.Order(claimOrder).Limit(q.Limit)
}

// claimColumns are assigned in key order; attempts is read before status changes.
func claimColumns(u ClaimUpdate) map[string]any {
	return map[string]any{
		"attempts": gorm.Expr("CASE WHEN status = ? THEN attempts + 1 ELSE attempts END", bizConsts.StatusFailed),
		"owner":    u.Owner,
		"retry_at": u.Until,
		"status":   bizConsts.StatusClaiming,
		"version":  gorm.Expr("version + 1"),
	}
}

// IsLockConflict reports deadlocks, lock wait timeouts and serialization failures.
// These lose a race the same way a version mismatch does.
func IsLockConflict(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1205, 1213: // lock wait timeout, deadlock
			return true
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
			return true
		}
	}
	return false
}
