package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	bizConsts "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/model"
)

// mockStore backs a GormStore with sqlmock; statements are matched by regexp.
func mockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 logger.Discard,
	})
	if err != nil {
		t.Fatalf("open gorm on sqlmock: %v", err)
	}
	return NewGormStoreWithDB(db), mock
}

func checkExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

var claimUpd = ClaimUpdate{Owner: "node-a", Until: time.Now().UTC().Truncate(time.Millisecond)}

func TestGormConditionalUpdateClaims(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectExec("UPDATE `task_instances` SET .* WHERE .*id = \\? AND version = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT \\* FROM `task_instances` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "task_type", "status", "owner", "version"}).
			AddRow("t1", "report", string(bizConsts.StatusClaiming), "node-a", 4))

	doc, err := s.ConditionalUpdate(context.Background(), "t1", 3, claimUpd)
	if err != nil {
		t.Fatal(err)
	}
	if doc.ID != "t1" || doc.Owner != "node-a" || doc.Version != 4 {
		t.Fatalf("reloaded doc=%+v", doc)
	}
	checkExpectations(t, mock)
}

func TestGormConditionalUpdateNoRows(t *testing.T) {
	cases := []struct {
		name  string
		count int
		want  error
	}{
		{"version moved", 1, ErrConflict},
		{"row gone", 0, ErrNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s, mock := mockStore(t)
			mock.ExpectExec("UPDATE `task_instances` SET").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery("SELECT count\\(\\*\\) FROM `task_instances` WHERE id = \\?").
				WithArgs("t1").
				WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(c.count))

			doc, err := s.ConditionalUpdate(context.Background(), "t1", 3, claimUpd)
			if doc != nil || !errors.Is(err, c.want) {
				t.Fatalf("doc=%v err=%v want %v", doc, err, c.want)
			}
			checkExpectations(t, mock)
		})
	}
}

func TestGormConditionalUpdateErrors(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectExec("UPDATE `task_instances` SET").
		WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})
	if _, err := s.ConditionalUpdate(context.Background(), "t1", 3, claimUpd); !errors.Is(err, ErrConflict) {
		t.Fatalf("deadlock should read as a conflict, got %v", err)
	}

	mock.ExpectExec("UPDATE `task_instances` SET").
		WillReturnError(errors.New("connection reset"))
	_, err := s.ConditionalUpdate(context.Background(), "t1", 3, claimUpd)
	if err == nil || errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		t.Fatalf("driver failure must surface as an error, got %v", err)
	}
	checkExpectations(t, mock)
}

func claimQuery() ClaimQuery {
	now := time.Now().UTC()
	return ClaimQuery{TaskTypes: []string{"report"}, Now: now, StaleBefore: now, Limit: 5}
}

func TestGormUpdateByQueryClaimsLockedRows(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT `id`,`status` FROM `task_instances` WHERE .* FOR UPDATE SKIP LOCKED").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).
			AddRow("a", string(bizConsts.StatusIdle)).
			AddRow("b", string(bizConsts.StatusRunning)))
	mock.ExpectExec("UPDATE `task_instances` SET .* WHERE id IN \\(\\?,\\?\\)").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	res, err := s.UpdateByQuery(context.Background(), claimQuery(), claimUpd)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 2 || res.Updated != 2 || res.Stale != 1 || res.Conflicts != 0 {
		t.Fatalf("res=%+v", res)
	}
	checkExpectations(t, mock)
}

func TestGormUpdateByQueryNothingEligible(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}))
	mock.ExpectCommit()

	res, err := s.UpdateByQuery(context.Background(), claimQuery(), claimUpd)
	if err != nil || res != (UpdateByQueryResult{}) {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	checkExpectations(t, mock)
}

func TestGormUpdateByQueryLockConflict(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE SKIP LOCKED").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).
			AddRow("a", string(bizConsts.StatusIdle)).
			AddRow("b", string(bizConsts.StatusFailed)))
	mock.ExpectExec("UPDATE `task_instances` SET").
		WillReturnError(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"})
	mock.ExpectRollback()

	res, err := s.UpdateByQuery(context.Background(), claimQuery(), claimUpd)
	if err != nil {
		t.Fatal(err)
	}
	// 事务整体回滚, 全部计为冲突
	if res != (UpdateByQueryResult{Total: 2, Conflicts: 2}) {
		t.Fatalf("res=%+v", res)
	}
	checkExpectations(t, mock)
}

func TestGormCreateFillsPartition(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectExec("INSERT INTO `task_instances`").
		WillReturnResult(sqlmock.NewResult(0, 2))

	tasks := []*model.TaskInstance{
		{ID: "seed-1", TaskType: "report", Status: bizConsts.StatusIdle, Enabled: true},
		{ID: "seed-2", TaskType: "report", Status: bizConsts.StatusIdle, Enabled: true},
	}
	if err := s.Create(context.Background(), tasks...); err != nil {
		t.Fatal(err)
	}
	for _, task := range tasks {
		if task.Partition == nil || *task.Partition != task.PartitionNo() {
			t.Fatalf("%s: partition not derived before insert", task.ID)
		}
	}
	if err := s.Create(context.Background()); err != nil {
		t.Fatal(err)
	}
	checkExpectations(t, mock)
}
