// Package entitytest provides a small schema shared by the tests of the persistence packages.
package entitytest

import (
	"github.com/acronis/perfkit/entitydb/entity"
)

// Entity type names
const (
	Location   = "location"
	Department = "department"
	Employee   = "employee"
	Project    = "project"
	Task       = "task"
	Audit      = "audit"
)

// YesNo stores department.active as 'Y' / 'N'
var YesNo = entity.BooleanLiterals{True: "Y", False: "N"}

// Catalog returns a fresh catalog:
//
//	employee -> department -> location
//	employee -> employee (manager, cyclic)
//	task -> project (lazy)
//	audit (read-only)
func Catalog() *entity.Catalog {
	var location = &entity.Definition{
		Name:         Location,
		IDGeneration: entity.AutoIncrement,
		OrderBy:      []string{"name"},
		Properties: []*entity.Property{
			entity.PrimaryKeyProperty("id", entity.Integer, 0),
			entity.ColumnProperty("name", entity.String),
			entity.ColumnProperty("city", entity.String),
		},
	}

	var active = entity.ColumnProperty("active", entity.Boolean)
	active.Codec = YesNo

	var department = &entity.Definition{
		Name:        Department,
		SelectTable: "department_view",
		Properties: []*entity.Property{
			entity.PrimaryKeyProperty("deptno", entity.Integer, 0),
			entity.ColumnProperty("name", entity.String),
			entity.ColumnProperty("location_id", entity.Integer),
			entity.ForeignKeyProperty("location", Location, "location_id"),
			active,
			entity.TransientProperty("selected", entity.Boolean),
		},
	}

	var deptFK = entity.ForeignKeyProperty("department", Department, "department_id")
	deptFK.FetchDepth = entity.Depth(2)

	var hired = entity.ColumnProperty("hired", entity.Date)
	hired.NonUpdatable = true

	var employee = &entity.Definition{
		Name:         Employee,
		IDGeneration: entity.MaxPlusOne,
		OrderBy:      []string{"name"},
		Properties: []*entity.Property{
			entity.PrimaryKeyProperty("id", entity.Integer, 0),
			entity.ColumnProperty("name", entity.String),
			entity.ColumnProperty("grade", entity.Char),
			entity.ColumnProperty("salary", entity.Double),
			hired,
			entity.ColumnProperty("updated", entity.Timestamp),
			entity.ColumnProperty("department_id", entity.Integer),
			entity.ColumnProperty("manager_id", entity.Integer),
			deptFK,
			entity.ForeignKeyProperty("manager", Employee, "manager_id"),
			entity.BlobProperty("photo", true),
			entity.BlobProperty("signature", false),
			entity.DerivedProperty("annual", entity.Double, annualSalary, "salary"),
			entity.DenormalizedProperty("department_name", entity.String, "department", "name"),
		},
	}

	var project = &entity.Definition{
		Name:         Project,
		IDGeneration: entity.UUID,
		Properties: []*entity.Property{
			entity.PrimaryKeyProperty("code", entity.String, 0),
			entity.ColumnProperty("name", entity.String),
		},
	}

	var projectFK = entity.ForeignKeyProperty("project", Project, "project_code")
	projectFK.Lazy = true

	var task = &entity.Definition{
		Name:         Task,
		IDGeneration: entity.Sequence,
		Sequence:     "task_seq",
		Properties: []*entity.Property{
			entity.PrimaryKeyProperty("id", entity.Integer, 0),
			entity.ColumnProperty("title", entity.String),
			entity.ColumnProperty("project_code", entity.String),
			projectFK,
		},
	}

	var audit = &entity.Definition{
		Name:     Audit,
		ReadOnly: true,
		Properties: []*entity.Property{
			entity.PrimaryKeyProperty("id", entity.Integer, 0),
			entity.ColumnProperty("message", entity.String),
		},
	}

	var c, err = entity.NewCatalog(location, department, employee, project, task, audit)
	if err != nil {
		panic(err)
	}

	return c
}

func annualSalary(sources map[string]interface{}) interface{} {
	if salary, ok := sources["salary"].(float64); ok {
		return salary * 12
	}

	return nil
}

// SQLiteSchema creates the tables of Catalog
var SQLiteSchema = []string{
	`create table location (id integer primary key autoincrement, name varchar(64) not null, city varchar(64))`,
	`create table department (deptno integer primary key, name varchar(64) not null, location_id integer, active char(1))`,
	`create view department_view as select * from department where active is null or active <> 'N'`,
	`create table employee (id integer primary key, name varchar(64) not null, grade char(1), salary double,
		hired date, updated timestamp, department_id integer, manager_id integer, photo blob, signature blob)`,
	`create table project (code varchar(36) primary key, name varchar(64))`,
	`create table task_seq (sequence_id integer primary key, value integer)`,
	`insert into task_seq (sequence_id, value) values (1, 1)`,
	`create table task (id integer primary key, title varchar(64), project_code varchar(36))`,
	`create table audit (id integer primary key, message varchar(256))`,
}
