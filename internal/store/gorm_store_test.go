package store

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/model"
)

func TestIsLockConflict(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&mysql.MySQLError{Number: 1213, Message: "Deadlock found"}, true},
		{fmt.Errorf("wrapped: %w", &mysql.MySQLError{Number: 1205}), true},
		{&mysql.MySQLError{Number: 1062}, false},
		{&pgconn.PgError{Code: "40001"}, true},
		{&pgconn.PgError{Code: "40P01"}, true},
		{&pgconn.PgError{Code: "23505"}, false},
		{errors.New("connection refused"), false},
	}
	for i, c := range cases {
		if got := IsLockConflict(c.err); got != c.want {
			t.Errorf("case %d: IsLockConflict(%v)=%v want %v", i, c.err, got, c.want)
		}
	}
}

// dryRunDB builds statements without a server.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormmysql.New(gormmysql.Config{
		DSN:                       "tm:tm@tcp(127.0.0.1:3306)/taskmanager?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open dry run db: %v", err)
	}
	return db
}

func TestGormEligibleQuery(t *testing.T) {
	db := dryRunDB(t)
	s := NewGormStoreWithDB(db)
	now := time.Now().UTC()
	q := ClaimQuery{
		TaskTypes:       []string{"report", "email"},
		TypeMaxAttempts: map[string]int{"report": 3},
		Partitions:      []int{1, 2},
		Now:             now,
		StaleBefore:     now,
		Limit:           5,
	}
	var out []*model.TaskInstance
	stmt := s.eligible(db, q).Find(&out).Statement
	sql := stmt.SQL.String()
	for _, frag := range []string{
		"task_instances",
		"enabled = ?",
		"run_at <= ?",
		"task_type IN (?,?)",
		"retry_at IS NULL OR retry_at <= ?",
		"partition_no IN (?,?)",
		"NOT (task_type = ? AND attempts >= ?)",
		"ORDER BY run_at ASC, priority DESC, id ASC",
		"LIMIT",
	} {
		if !strings.Contains(sql, frag) {
			t.Errorf("query missing %q: %s", frag, sql)
		}
	}
	if strings.Count(sql, "NOT (task_type") != 1 {
		t.Errorf("only capped types get an attempts filter: %s", sql)
	}
}

func TestClaimColumns(t *testing.T) {
	cols := claimColumns(ClaimUpdate{Owner: "n", Until: time.Now()})
	for _, k := range []string{"attempts", "owner", "retry_at", "status", "version"} {
		if _, ok := cols[k]; !ok {
			t.Fatalf("missing column %s", k)
		}
	}
}
