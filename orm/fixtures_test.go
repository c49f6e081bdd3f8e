package orm_test

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/yanizio/keel/appctx"
	"github.com/yanizio/keel/orm"
)

type User struct{ orm.Model }

func (u *User) Name() string { return u.GetString("name") }

func (u *User) Posts() *orm.HasMany[*Post] { return orm.NewHasMany[*Post](u, "posts", "", "") }

func (u *User) Profile() *orm.HasOne[*Profile] {
	return orm.NewHasOne[*Profile](u, "profile", "", "")
}

type Post struct{ orm.Model }

func (p *Post) Title() string     { return p.GetString("title") }
func (p *Post) SetTitle(s string) { p.Set("title", s) }
func (p *Post) UserID() int64     { return p.GetInt("user_id") }

func (p *Post) User() *orm.BelongsTo[*User] { return orm.NewBelongsTo[*User](p, "user", "", "") }

type Profile struct{ orm.Model }

func (p *Profile) Bio() string { return p.GetString("bio") }

var (
	_ = orm.Register[*User]("User",
		orm.WithRelation("posts", func(u *User) orm.Relation { return u.Posts() }),
		orm.WithRelation("profile", func(u *User) orm.Relation { return u.Profile() }),
	)
	_ = orm.Register[*Post]("Post",
		orm.Timestamps(),
		orm.WithRelation("user", func(p *Post) orm.Relation { return p.User() }),
	)
	_ = orm.Register[*Profile]("Profile")
)

// mockContext binds a sqlmock connection as the default connection.
func mockContext(t *testing.T, driver string) (context.Context, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { raw.Close() })

	c, err := appctx.NewBuilder().Connection("", sqlx.NewDb(raw, driver)).Build()
	if err != nil {
		t.Fatal(err)
	}
	return appctx.With(context.Background(), c), mock
}

const schema = `
CREATE TABLE users (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT
);
CREATE TABLE posts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER,
	title      TEXT,
	body       TEXT,
	created_at DATETIME,
	updated_at DATETIME
);
CREATE TABLE profiles (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER,
	bio     TEXT
);`

// sqliteDB opens a private in-memory database with the test schema.
func sqliteDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection keeps the in-memory database alive across statements.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("schema: %v", err)
		}
	}
	return db
}

func sqliteContext(t *testing.T) context.Context {
	t.Helper()
	c, err := appctx.NewBuilder().Name(t.Name()).Connection("", sqliteDB(t)).Build()
	if err != nil {
		t.Fatal(err)
	}
	return appctx.With(context.Background(), c)
}
