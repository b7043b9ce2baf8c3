package persist

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/acronis/perfkit/entitydb/criteria"
	"github.com/acronis/perfkit/entitydb/db"
	_ "github.com/acronis/perfkit/entitydb/db/sql" // sqlite connector
	"github.com/acronis/perfkit/entitydb/entity"
	"github.com/acronis/perfkit/entitydb/entity/entitytest"
)

type ConnectionSuite struct {
	suite.Suite
	ctx     context.Context
	path    string
	catalog *entity.Catalog
	conn    *Connection
}

func TestConnectionSuite(t *testing.T) {
	suite.Run(t, new(ConnectionSuite))
}

func (s *ConnectionSuite) SetupTest() {
	s.ctx = context.Background()
	s.path = filepath.Join(s.T().TempDir(), "persist_test.db")
	s.catalog = entitytest.Catalog()
	s.conn = s.open(DefaultOptions())

	for _, ddl := range entitytest.SQLiteSchema {
		var _, err = s.conn.conn.ExecContext(s.ctx, ddl)
		s.Require().NoError(err, ddl)
	}
}

func (s *ConnectionSuite) TearDownTest() {
	s.Require().NoError(s.conn.Close())
}

func (s *ConnectionSuite) open(opts Options) *Connection {
	var conn, err = Open(s.ctx, db.Config{ConnString: "sqlite://" + s.path}, s.catalog, opts)
	s.Require().NoError(err)

	return conn
}

func (s *ConnectionSuite) def(entityType string) *entity.Definition {
	return s.catalog.MustDefinition(entityType)
}

type fixture struct {
	loc    *entity.Entity
	dept   *entity.Entity
	boss   *entity.Entity
	worker *entity.Entity
}

var hired = time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)

func (s *ConnectionSuite) insert(entities ...*entity.Entity) []entity.Key {
	var keys, err = s.conn.Insert(s.ctx, entities...)
	s.Require().NoError(err)
	s.Require().Len(keys, len(entities))

	return keys
}

// seed stores: location HQ <- department 10 <- boss <- worker (managed by boss)
func (s *ConnectionSuite) seed() fixture {
	var f fixture

	f.loc = s.def(entitytest.Location).New().MustSet("name", "HQ").MustSet("city", "Berlin")
	s.insert(f.loc)

	f.dept = s.def(entitytest.Department).New().
		MustSet("deptno", 10).
		MustSet("name", "R&D").
		MustSet("location", f.loc).
		MustSet("active", true)
	s.insert(f.dept)

	f.boss = s.employee("Boss", 3000, f.dept, nil)
	s.insert(f.boss)
	f.worker = s.employee("Worker", 1500, f.dept, f.boss)
	s.insert(f.worker)

	return f
}

func (s *ConnectionSuite) employee(name string, salary float64, dept *entity.Entity, manager *entity.Entity) *entity.Entity {
	var e = s.def(entitytest.Employee).New().
		MustSet("name", name).
		MustSet("grade", 'B').
		MustSet("salary", salary).
		MustSet("hired", hired).
		MustSet("department", dept)
	if manager != nil {
		e.MustSet("manager", manager)
	}

	return e
}

func (s *ConnectionSuite) statements(conn *Connection, prefix string) []string {
	var found []string
	for _, rec := range conn.Trace() {
		if strings.HasPrefix(rec.Text, prefix) {
			found = append(found, rec.Text)
		}
	}

	return found
}

func (s *ConnectionSuite) TestRoundTrip() {
	var f = s.seed()
	var updated = time.Date(2021, 3, 4, 5, 6, 7, 123456000, time.UTC)

	var e = s.employee("Alice", 2500.5, f.dept, f.boss).
		MustSet("updated", updated).
		MustSet("signature", []byte{0xca, 0xfe})
	var keys = s.insert(e)

	var loaded, err = s.conn.SelectSingle(s.ctx, keys[0])
	s.Require().NoError(err)
	s.False(loaded.IsModified())

	for _, p := range s.def(entitytest.Employee).Selected() {
		s.True(entity.Equal(e.Get(p.ID), loaded.Get(p.ID)), "property %s: %v != %v", p.ID, e.Get(p.ID), loaded.Get(p.ID))
	}

	s.Equal(2500.5*12, loaded.Get("annual"))
	s.Equal("R&D", loaded.Get("department_name"))
	s.Equal("HQ", loaded.Referenced("department").Referenced("location").Get("name"))
	s.Equal("Boss", loaded.Referenced("manager").Get("name"))
	s.False(loaded.Contains("photo"), "lazy blob")
}

func (s *ConnectionSuite) TestGeneratedKeys() {
	var loc1 = s.def(entitytest.Location).New().MustSet("name", "A")
	var loc2 = s.def(entitytest.Location).New().MustSet("name", "B")
	var keys = s.insert(loc1, loc2)
	s.Equal(int64(1), keys[0].Value("id"))
	s.Equal(int64(2), keys[1].Value("id"))
	s.Equal(int64(2), loc2.Get("id"))
	s.Len(s.statements(s.conn, "select last_insert_rowid()"), 2, "generated key reads are traced")

	var f = s.seed()
	s.Equal(int64(1), f.boss.Get("id"), "max plus one")
	s.Equal(int64(2), f.worker.Get("id"))

	var project = s.def(entitytest.Project).New().MustSet("name", "Apollo")
	var projectKeys = s.insert(project)
	var code, _ = projectKeys[0].Value("code").(string)
	s.Len(code, 36, "uuid")

	var t1 = s.def(entitytest.Task).New().MustSet("title", "design").MustSet("project", project)
	var t2 = s.def(entitytest.Task).New().MustSet("title", "build")
	s.conn.ResetTrace()
	var taskKeys = s.insert(t1, t2)
	s.Equal(int64(1), taskKeys[0].Value("id"), "sequence")
	s.Equal(int64(2), taskKeys[1].Value("id"))
	s.Len(s.statements(s.conn, "select value from task_seq"), 2)
	s.Len(s.statements(s.conn, "update task_seq"), 2)

	s.conn.ResetTrace()
	var task, err = s.conn.SelectSingle(s.ctx, taskKeys[0])
	s.Require().NoError(err)
	s.Len(s.conn.Trace(), 1, "lazy references are not read")

	var ref = task.Referenced("project")
	s.Require().NotNil(ref)
	s.Equal(code, ref.Get("code"))
	s.False(ref.Contains("name"))

	task, err = s.conn.SelectSingle(s.ctx, taskKeys[1])
	s.Require().NoError(err)
	s.True(task.Contains("project"))
	s.Nil(task.Referenced("project"))
}

func (s *ConnectionSuite) TestInsertRejected() {
	s.conn.ResetTrace()

	var _, err = s.conn.Insert(s.ctx, s.def(entitytest.Location).New())
	s.ErrorIs(err, ErrValidation)

	_, err = s.conn.Insert(s.ctx, s.def(entitytest.Audit).New().MustSet("id", 1).MustSet("message", "x"))
	s.ErrorIs(err, ErrReadOnly)

	s.Empty(s.conn.Trace(), "rejected before any statement")
	s.False(s.conn.conn.InTransaction())
}

func (s *ConnectionSuite) TestInsertFailureRollsBack() {
	var f = s.seed()

	var duplicate = s.def(entitytest.Department).New().MustSet("deptno", 10).MustSet("name", "Again")
	var fresh = s.def(entitytest.Department).New().MustSet("deptno", 30).MustSet("name", "Fresh")

	var _, err = s.conn.Insert(s.ctx, fresh, duplicate)
	s.ErrorIs(err, ErrStorage)

	var storageErr *StorageError
	s.Require().True(errors.As(err, &storageErr))
	s.Contains(storageErr.Statement, "insert into department")
	s.NotEmpty(storageErr.Values)

	n, err := s.conn.SelectRowCount(s.ctx, entitytest.Department, nil)
	s.Require().NoError(err)
	s.Equal(int64(1), n, "first insert rolled back with the failing one")
	s.Equal(int64(10), f.dept.Get("deptno"))
}

func (s *ConnectionSuite) TestUpdateWritesModifiedOnly() {
	var f = s.seed()

	var boss, err = s.conn.SelectSingle(s.ctx, f.boss.Key())
	s.Require().NoError(err)
	boss.MustSet("salary", 3500.0)

	s.conn.ResetTrace()
	updated, err := s.conn.Update(s.ctx, boss)
	s.Require().NoError(err)
	s.Require().Len(updated, 1)

	s.Equal([]string{"update employee set salary = ? where id = ?"}, s.statements(s.conn, "update"))
	s.Equal(3500.0, updated[0].Get("salary"))
	s.False(updated[0].IsModified())
	s.Equal("R&D", updated[0].Get("department_name"), "re-selected with references")
	s.True(boss.IsModified(), "caller entity untouched")

	s.conn.ResetTrace()
	_, err = s.conn.Update(s.ctx, updated[0])
	s.ErrorIs(err, ErrValidation)
	s.Empty(s.conn.Trace())

	hiredOnly, err := s.conn.SelectSingle(s.ctx, f.boss.Key())
	s.Require().NoError(err)
	hiredOnly.MustSet("hired", hired.AddDate(1, 0, 0))
	_, err = s.conn.Update(s.ctx, hiredOnly)
	s.ErrorIs(err, ErrValidation, "non-updatable property only")
}

func (s *ConnectionSuite) TestUpdateChangesKey() {
	var f = s.seed()

	var dept, err = s.conn.SelectSingle(s.ctx, f.dept.Key())
	s.Require().NoError(err)
	dept.MustSet("deptno", 11)

	updated, err := s.conn.Update(s.ctx, dept)
	s.Require().NoError(err)
	s.Equal(int64(11), updated[0].Get("deptno"))

	_, err = s.conn.SelectSingle(s.ctx, f.dept.Key())
	s.ErrorIs(err, ErrNotFound)
}

func (s *ConnectionSuite) TestModifiedConflict() {
	var f = s.seed()
	var other = s.open(DefaultOptions())
	defer other.Close()

	var mine, err = s.conn.SelectSingle(s.ctx, f.boss.Key())
	s.Require().NoError(err)
	theirs, err := other.SelectSingle(s.ctx, f.boss.Key())
	s.Require().NoError(err)

	theirs.MustSet("salary", 3500.0)
	_, err = other.Update(s.ctx, theirs)
	s.Require().NoError(err)

	mine.MustSet("name", "Chief")
	_, err = s.conn.Update(s.ctx, mine)
	s.Require().ErrorIs(err, ErrConcurrencyConflict)

	var conflict *ConflictError
	s.Require().True(errors.As(err, &conflict))
	s.Equal(Modified, conflict.Kind)
	s.Equal("salary", conflict.Property)
	s.Equal("Chief", conflict.Stale.Get("name"))
	s.Require().NotNil(conflict.Current)
	s.Equal(3500.0, conflict.Current.Get("salary"))
	s.False(s.conn.conn.InTransaction(), "lock released")

	current, err := other.SelectSingle(s.ctx, f.boss.Key())
	s.Require().NoError(err)
	s.Equal("Boss", current.Get("name"))
}

func (s *ConnectionSuite) TestDeletedConflict() {
	var f = s.seed()
	var other = s.open(DefaultOptions())
	defer other.Close()

	var mine, err = s.conn.SelectSingle(s.ctx, f.worker.Key())
	s.Require().NoError(err)

	s.Require().NoError(other.Delete(s.ctx, f.worker.Key()))

	mine.MustSet("salary", 1600.0)
	_, err = s.conn.Update(s.ctx, mine)

	var conflict *ConflictError
	s.Require().True(errors.As(err, &conflict))
	s.Equal(Deleted, conflict.Kind)
	s.Nil(conflict.Current)
}

func (s *ConnectionSuite) TestUpdateWithoutOptimisticLocking() {
	var f = s.seed()
	var opts = DefaultOptions()
	opts.OptimisticLocking = false
	var blind = s.open(opts)
	defer blind.Close()

	var stale, err = blind.SelectSingle(s.ctx, f.boss.Key())
	s.Require().NoError(err)

	fresh, err := s.conn.SelectSingle(s.ctx, f.boss.Key())
	s.Require().NoError(err)
	fresh.MustSet("salary", 3500.0)
	_, err = s.conn.Update(s.ctx, fresh)
	s.Require().NoError(err)

	stale.MustSet("name", "Chief")
	updated, err := blind.Update(s.ctx, stale)
	s.Require().NoError(err, "last writer wins")
	s.Equal("Chief", updated[0].Get("name"))
	s.Equal(3500.0, updated[0].Get("salary"), "only modified values written")

	s.Require().NoError(s.conn.Delete(s.ctx, f.boss.Key()))
	updated[0].MustSet("name", "Gone")
	_, err = blind.Update(s.ctx, updated[0])

	var conflict *ConflictError
	s.Require().True(errors.As(err, &conflict))
	s.Equal(Deleted, conflict.Kind)
}

func (s *ConnectionSuite) TestFetchDepth() {
	var f = s.seed()
	for _, name := range []string{"a", "b", "c", "d"} {
		s.insert(s.employee(name, 1000, f.dept, f.worker))
	}

	s.conn.ResetTrace()
	var all, err = s.conn.Select(s.ctx, criteria.All(entitytest.Employee))
	s.Require().NoError(err)
	s.Len(all, 6)
	s.Len(s.conn.Trace(), 4, "one select per entity type and level")

	for _, e := range all {
		var dept = e.Referenced("department")
		s.Require().NotNil(dept)
		s.Equal("HQ", dept.Referenced("location").Get("name"), "department fetch depth is 2")
	}

	s.conn.ResetTrace()
	all, err = s.conn.Select(s.ctx, criteria.All(entitytest.Employee).WithFetchDepth(1))
	s.Require().NoError(err)
	s.Len(s.conn.Trace(), 3)

	for _, e := range all {
		var dept = e.Referenced("department")
		s.Require().NotNil(dept)
		s.Equal("R&D", dept.Get("name"))
		s.False(dept.Contains("location"), "second hop left unset")
		var key, ok = dept.ReferencedKey("location")
		s.True(ok)
		s.Equal(f.loc.Key(), key)

		if manager := e.Referenced("manager"); manager != nil {
			s.False(manager.Contains("manager"), "managers of managers are not read")
		}
	}

	s.conn.ResetTrace()
	all, err = s.conn.Select(s.ctx, criteria.All(entitytest.Employee).
		WithFetchDepth(0).
		WithForeignKeyFetchDepth("manager", 1))
	s.Require().NoError(err)
	s.Len(s.conn.Trace(), 2)
	s.False(all[0].Contains("department"))

	_, err = s.conn.Select(s.ctx, criteria.All(entitytest.Employee).WithForeignKeyFetchDepth("manager", -1))
	s.ErrorIs(err, ErrValidation, "unbounded depth on a cycle")
}

func (s *ConnectionSuite) TestUnlimitedFetchDepth() {
	var f = s.seed()
	var opts = DefaultOptions()
	opts.LimitFetchDepth = false
	var conn = s.open(opts)
	defer conn.Close()

	var worker, err = conn.SelectSingle(s.ctx, f.worker.Key())
	s.Require().NoError(err)
	s.Equal("HQ", worker.Referenced("department").Referenced("location").Get("name"))
	s.False(worker.Referenced("manager").Contains("manager"), "cycles keep their fetch depth")
}

func (s *ConnectionSuite) TestUnlimitedFetchDepthLockRead() {
	var f = s.seed()
	var opts = DefaultOptions()
	opts.LimitFetchDepth = false
	var conn = s.open(opts)
	defer conn.Close()

	var boss, err = conn.SelectSingle(s.ctx, f.boss.Key())
	s.Require().NoError(err)
	boss.MustSet("salary", 3600.0)

	conn.ResetTrace()
	updated, err := conn.Update(s.ctx, boss)
	s.Require().NoError(err)
	s.Equal("HQ", updated[0].Referenced("department").Referenced("location").Get("name"), "re-select is unlimited")

	var before []string
	for _, rec := range conn.Trace() {
		if strings.HasPrefix(rec.Text, "update") {
			break
		}
		if strings.HasPrefix(rec.Text, "select") {
			before = append(before, rec.Text)
		}
	}
	s.Require().Len(before, 1, "conflict check reads the locked rows only: %v", before)
	s.Contains(before[0], "from employee")
}

func (s *ConnectionSuite) TestDanglingReference() {
	var f = s.seed()

	var closed = s.def(entitytest.Department).New().MustSet("deptno", 20).MustSet("name", "Closed").MustSet("active", false)
	s.insert(closed)
	var keys = s.insert(s.employee("Leftover", 900, closed, nil))

	var e, err = s.conn.SelectSingle(s.ctx, keys[0])
	s.Require().NoError(err)

	var ref = e.Referenced("department")
	s.Require().NotNil(ref, "dangling reference is a stub")
	s.Equal(closed.Key(), ref.Key())
	s.False(ref.Contains("name"))
	s.Nil(e.Get("department_name"))

	s.True(e.Contains("manager"), "null reference is loaded")
	s.Nil(e.Referenced("manager"))

	n, err := s.conn.SelectRowCount(s.ctx, entitytest.Department, nil)
	s.Require().NoError(err)
	s.Equal(int64(1), n, "counts read the view")

	depts, err := s.conn.Select(s.ctx, criteria.All(entitytest.Department).Locking())
	s.Require().NoError(err)
	s.Len(depts, 2, "locking selects read the table")
	s.Equal(int64(10), f.dept.Get("deptno"))
}

func (s *ConnectionSuite) TestSelectSingle() {
	var f = s.seed()

	var _, err = s.conn.SelectSingle(s.ctx, s.def(entitytest.Employee).MustKey(99))
	s.ErrorIs(err, ErrNotFound)

	var emp = s.def(entitytest.Employee)
	_, err = s.conn.SelectSingleWhere(s.ctx,
		criteria.Matching(entitytest.Employee, criteria.Where(emp.MustProperty("department"), criteria.Equal, f.dept)))
	s.ErrorIs(err, ErrAmbiguous)

	var ambiguous *AmbiguousError
	s.Require().True(errors.As(err, &ambiguous))
	s.Equal(entitytest.Employee, ambiguous.EntityType)

	worker, err := s.conn.SelectSingleWhere(s.ctx,
		criteria.Matching(entitytest.Employee, criteria.Where(emp.MustProperty("manager"), criteria.Equal, f.boss)))
	s.Require().NoError(err)
	s.Equal("Worker", worker.Get("name"))
}

func (s *ConnectionSuite) TestSelectByKeys() {
	var f = s.seed()

	var found, err = s.conn.SelectByKeys(s.ctx, f.worker.Key(), f.dept.Key(), f.boss.Key())
	s.Require().NoError(err)
	s.Require().Len(found, 3)
	s.Equal(entitytest.Employee, found[0].Type())
	s.Equal(entitytest.Employee, found[1].Type())
	s.Equal(entitytest.Department, found[2].Type())
}

func (s *ConnectionSuite) TestSelectValuesAndCount() {
	var f = s.seed()
	var emp = s.def(entitytest.Employee)
	s.insert(s.employee("Anna", 1500, f.dept, nil))

	var names, err = s.conn.SelectValues(s.ctx, entitytest.Employee, "name", nil, true)
	s.Require().NoError(err)
	s.Equal([]interface{}{"Anna", "Boss", "Worker"}, names)

	salaries, err := s.conn.SelectValues(s.ctx, entitytest.Employee, "salary",
		criteria.Where(emp.MustProperty("salary"), criteria.Less, 2000), true)
	s.Require().NoError(err)
	s.Equal([]interface{}{1500.0}, salaries)

	n, err := s.conn.SelectRowCount(s.ctx, entitytest.Employee, criteria.Where(emp.MustProperty("salary"), criteria.Equal, 1500))
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	_, err = s.conn.SelectValues(s.ctx, entitytest.Employee, "department", nil, false)
	s.ErrorIs(err, ErrValidation)
	_, err = s.conn.SelectRowCount(s.ctx, "nobody", nil)
	s.ErrorIs(err, ErrValidation)
}

func (s *ConnectionSuite) TestSelectDependents() {
	var f = s.seed()

	var dependents, err = s.conn.SelectDependents(s.ctx, f.dept)
	s.Require().NoError(err)
	s.Len(dependents[entitytest.Employee], 2)

	dependents, err = s.conn.SelectDependents(s.ctx, f.boss, f.worker)
	s.Require().NoError(err)
	s.Require().Len(dependents[entitytest.Employee], 1)
	s.Equal("Worker", dependents[entitytest.Employee][0].Get("name"))

	dependents, err = s.conn.SelectDependents(s.ctx, f.loc)
	s.Require().NoError(err)
	s.Len(dependents[entitytest.Department], 1)
	s.NotContains(dependents, entitytest.Employee)
}

func (s *ConnectionSuite) TestDelete() {
	var f = s.seed()
	var missing = s.def(entitytest.Employee).MustKey(99)

	var err = s.conn.Delete(s.ctx, f.worker.Key(), missing)
	s.ErrorIs(err, ErrNotFound)

	n, err := s.conn.SelectRowCount(s.ctx, entitytest.Employee, nil)
	s.Require().NoError(err)
	s.Equal(int64(2), n, "nothing deleted")

	s.Require().NoError(s.conn.Delete(s.ctx, f.worker.Key(), f.dept.Key()))

	var emp = s.def(entitytest.Employee)
	deleted, err := s.conn.DeleteWhere(s.ctx, entitytest.Employee, criteria.Where(emp.MustProperty("name"), criteria.Like, "B%"))
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)

	n, err = s.conn.SelectRowCount(s.ctx, entitytest.Employee, nil)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *ConnectionSuite) TestReadOnly() {
	var _, err = s.conn.conn.ExecContext(s.ctx, "insert into audit (id, message) values (1, 'started')")
	s.Require().NoError(err)

	var audit = s.def(entitytest.Audit)
	rows, err := s.conn.Select(s.ctx, criteria.All(entitytest.Audit))
	s.Require().NoError(err)
	s.Require().Len(rows, 1)
	s.Equal("started", rows[0].Get("message"))

	rows[0].MustSet("message", "changed")
	_, err = s.conn.Update(s.ctx, rows[0])
	s.ErrorIs(err, ErrReadOnly)
	s.ErrorIs(s.conn.Delete(s.ctx, audit.MustKey(1)), ErrReadOnly)
	_, err = s.conn.DeleteWhere(s.ctx, entitytest.Audit, nil)
	s.ErrorIs(err, ErrReadOnly)
}

func (s *ConnectionSuite) TestBlobs() {
	var f = s.seed()
	var photo = []byte{1, 2, 3, 4}

	var data, err = s.conn.ReadBlob(s.ctx, f.boss.Key(), "photo")
	s.Require().NoError(err)
	s.Nil(data)

	s.Require().NoError(s.conn.WriteBlob(s.ctx, f.boss.Key(), "photo", photo))
	data, err = s.conn.ReadBlob(s.ctx, f.boss.Key(), "photo")
	s.Require().NoError(err)
	s.Equal(photo, data)

	var missing = s.def(entitytest.Employee).MustKey(99)
	_, err = s.conn.ReadBlob(s.ctx, missing, "photo")
	s.ErrorIs(err, ErrNotFound)
	s.ErrorIs(s.conn.WriteBlob(s.ctx, missing, "photo", photo), ErrNotFound)
	s.ErrorIs(s.conn.WriteBlob(s.ctx, f.boss.Key(), "name", photo), ErrValidation)
}

func (s *ConnectionSuite) TestCallerManagedTransaction() {
	var loc = s.def(entitytest.Location).New().MustSet("name", "Temp")

	s.Require().NoError(s.conn.BeginTransaction(s.ctx))
	s.ErrorIs(s.conn.BeginTransaction(s.ctx), ErrTransactionOpen)
	s.insert(loc)
	s.True(s.conn.IsTransactionOpen())
	s.Require().NoError(s.conn.RollbackTransaction())
	s.False(s.conn.IsTransactionOpen())

	var n, err = s.conn.SelectRowCount(s.ctx, entitytest.Location, nil)
	s.Require().NoError(err)
	s.Zero(n)
	s.ErrorIs(s.conn.CommitTransaction(), ErrNoTransaction)

	s.Require().NoError(s.conn.BeginTransaction(s.ctx))
	s.insert(s.def(entitytest.Location).New().MustSet("name", "Kept"))
	s.Require().NoError(s.conn.Reset(s.ctx), "reset commits")
	s.False(s.conn.IsTransactionOpen())

	n, err = s.conn.SelectRowCount(s.ctx, entitytest.Location, nil)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *ConnectionSuite) TestConflictLeavesCallerTransactionOpen() {
	var f = s.seed()
	var other = s.open(DefaultOptions())
	defer other.Close()

	var mine, err = s.conn.SelectSingle(s.ctx, f.boss.Key())
	s.Require().NoError(err)

	theirs, err := other.SelectSingle(s.ctx, f.boss.Key())
	s.Require().NoError(err)
	theirs.MustSet("grade", 'A')
	_, err = other.Update(s.ctx, theirs)
	s.Require().NoError(err)

	s.Require().NoError(s.conn.BeginTransaction(s.ctx))
	mine.MustSet("salary", 1.0)
	_, err = s.conn.Update(s.ctx, mine)
	s.ErrorIs(err, ErrConcurrencyConflict)
	s.True(s.conn.IsTransactionOpen())
	s.True(s.conn.conn.InTransaction())
	s.Require().NoError(s.conn.RollbackTransaction())
}

func (s *ConnectionSuite) TestLiteralStyle() {
	var conn, err = Open(s.ctx, db.Config{ConnString: "sqlite://" + s.path, QueryStringInterpolation: true},
		s.catalog, DefaultOptions())
	s.Require().NoError(err)
	defer conn.Close()

	var loc = s.def(entitytest.Location).New().MustSet("name", "O'Hara").MustSet("city", "Dublin")
	keys, err := conn.Insert(s.ctx, loc)
	s.Require().NoError(err)

	found, err := conn.Select(s.ctx, criteria.Matching(entitytest.Location,
		criteria.Where(s.def(entitytest.Location).MustProperty("name"), criteria.Equal, "O'Hara")))
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(keys[0], found[0].Key())
}

func (s *ConnectionSuite) TestClosed() {
	var conn = s.open(DefaultOptions())
	s.True(conn.IsValid(s.ctx))
	s.Positive(conn.ID())

	s.Require().NoError(conn.Close())
	s.NoError(conn.Close())
	s.False(conn.IsValid(s.ctx))

	var _, err = conn.Select(s.ctx, criteria.All(entitytest.Location))
	s.ErrorIs(err, ErrClosed)
	s.ErrorIs(conn.BeginTransaction(s.ctx), ErrClosed)
}
