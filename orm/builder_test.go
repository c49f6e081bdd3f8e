package orm_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/yanizio/keel/appctx"
	"github.com/yanizio/keel/orm"
)

// Two users with 2 and 1 posts load with one users query and one batched
// posts query.
func TestEagerLoadBatches(t *testing.T) {
	ctx, mock := mockContext(t, "sqlmock")

	mock.ExpectQuery(regexp.QuoteMeta(`select * from users`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "ann").
			AddRow(2, "bob"))
	mock.ExpectQuery(regexp.QuoteMeta(`select * from posts where user_id in (?, ?)`)).
		WithArgs(1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title"}).
			AddRow(10, 1, "a").
			AddRow(11, 1, "b").
			AddRow(12, 2, "c"))

	users, err := orm.Query[*User]().With("posts").Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("users = %d", len(users))
	}

	// Cached: any further query would be unexpected and fail.
	p0, err := users[0].Posts().Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	p1, err := users[1].Posts().Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(p0) != 2 || len(p1) != 1 || p1[0].Title() != "c" {
		t.Fatalf("posts = %d, %d", len(p0), len(p1))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEagerLoadSkippedWithoutParents(t *testing.T) {
	ctx, mock := mockContext(t, "sqlmock")
	mock.ExpectQuery(regexp.QuoteMeta(`select * from users where name = ?`)).
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	users, err := orm.Where[*User]("name", "nobody").With("posts").Get(ctx)
	if err != nil || len(users) != 0 {
		t.Fatalf("Get = %v, %v", users, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBelongsToCaches(t *testing.T) {
	ctx, mock := mockContext(t, "sqlmock")
	mock.ExpectQuery(regexp.QuoteMeta(`select * from posts where id = ? limit 1`)).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title"}).AddRow(10, 1, "a"))
	mock.ExpectQuery(regexp.QuoteMeta(`select * from users where id = ? limit 1`)).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "ann"))

	post, err := orm.Find[*Post](ctx, 10)
	if err != nil || post == nil {
		t.Fatalf("Find = %v, %v", post, err)
	}
	for i := 0; i < 2; i++ {
		u, err := post.User().Get(ctx)
		if err != nil {
			t.Fatalf("User #%d: %v", i, err)
		}
		if u == nil || u.Name() != "ann" {
			t.Fatalf("User #%d = %v", i, u)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBelongsToNullKeySkipsQuery(t *testing.T) {
	ctx, mock := mockContext(t, "sqlmock")
	post := orm.New[*Post](orm.Attrs{"title": "orphan"})

	u, err := post.User().Get(ctx)
	if err != nil || u != nil {
		t.Fatalf("User = %v, %v", u, err)
	}
	if !post.RelationLoaded("user") {
		t.Fatal("nil owner must still be cached")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected queries: %v", err)
	}
}

func TestCreateAndUpdateStatements(t *testing.T) {
	ctx, mock := mockContext(t, "sqlmock")
	mock.ExpectExec(regexp.QuoteMeta(`insert into users (name) values (?)`)).
		WithArgs("ann").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec(regexp.QuoteMeta(`update users set name = ? where id = ?`)).
		WithArgs("bob", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u, err := orm.Create[*User](ctx, orm.Attrs{"name": "ann"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID() != 5 || !u.Exists() {
		t.Fatalf("id = %d exists = %v", u.ID(), u.Exists())
	}

	u.Set("name", "bob")
	if err := u.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Clean model: no statement.
	if err := u.Save(ctx); err != nil {
		t.Fatalf("Save clean: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertReturningOnPostgres(t *testing.T) {
	ctx, mock := mockContext(t, "pgx")
	mock.ExpectQuery(regexp.QuoteMeta(`insert into users (name) values ($1) returning id`)).
		WithArgs("ann").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta(`select * from users where name = $1 and id > $2 limit 1`)).
		WithArgs("ann", 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(7, "ann"))

	id, err := orm.Query[*User]().Insert(ctx, orm.Attrs{"name": "ann"})
	if err != nil || id != 7 {
		t.Fatalf("Insert = %d, %v", id, err)
	}
	u, err := orm.Where[*User]("name", "ann").Where("id", ">", 0).First(ctx)
	if err != nil || u.ID() != 7 {
		t.Fatalf("First = %v, %v", u, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCountAndDelete(t *testing.T) {
	ctx, mock := mockContext(t, "sqlmock")
	mock.ExpectQuery(regexp.QuoteMeta(`select count(*) as aggregate from posts where title = ?`)).
		WithArgs("B").
		WillReturnRows(sqlmock.NewRows([]string{"aggregate"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta(`delete from posts where user_id = ?`)).
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := orm.Where[*Post]("title", "=", "B").Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Count = %d, %v", n, err)
	}
	gone, err := orm.Where[*Post]("user_id", 1).Delete(ctx)
	if err != nil || gone != 2 {
		t.Fatalf("Delete = %d, %v", gone, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDatabaseErrorWrapsCause(t *testing.T) {
	ctx, mock := mockContext(t, "sqlmock")
	cause := errors.New("connection reset")
	mock.ExpectQuery(regexp.QuoteMeta(`select * from users`)).WillReturnError(cause)

	_, err := orm.All[*User](ctx)
	var dbErr *orm.DatabaseError
	if !errors.As(err, &dbErr) {
		t.Fatalf("want *DatabaseError, got %v", err)
	}
	if dbErr.SQL != "select * from users" || dbErr.Op != "select" {
		t.Fatalf("unexpected error fields: %+v", dbErr)
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause must be reachable with errors.Is")
	}
}

func TestUnknownRelationFailsBeforeQuery(t *testing.T) {
	ctx, mock := mockContext(t, "sqlmock")

	_, err := orm.Query[*User]().With("comments").Get(ctx)
	var relErr *orm.RelationError
	if !errors.As(err, &relErr) || relErr.Relation != "comments" || relErr.Model != "User" {
		t.Fatalf("want RelationError, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no query may run: %v", err)
	}
}

func TestBuilderSingleUse(t *testing.T) {
	ctx, mock := mockContext(t, "sqlmock")
	mock.ExpectQuery(regexp.QuoteMeta(`select * from users`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	b := orm.Query[*User]()
	if _, err := b.Get(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Get(ctx); !errors.Is(err, orm.ErrBuilderReused) {
		t.Fatalf("want ErrBuilderReused, got %v", err)
	}
}

func TestFirstNoRowIsNil(t *testing.T) {
	ctx, mock := mockContext(t, "sqlmock")
	mock.ExpectQuery(regexp.QuoteMeta(`select * from posts where title = ? limit 1`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}))

	p, err := orm.Where[*Post]("title", "=", "missing").First(ctx)
	if err != nil || p != nil {
		t.Fatalf("First = %v, %v", p, err)
	}
}

func TestQueryWithoutContext(t *testing.T) {
	_, err := orm.All[*User](context.Background())
	if !errors.Is(err, appctx.ErrNoContext) {
		t.Fatalf("want ErrNoContext, got %v", err)
	}

	c, _ := appctx.NewBuilder().Build()
	_, err = orm.All[*User](appctx.With(context.Background(), c))
	var ce *appctx.ConfigurationError
	if !errors.As(err, &ce) || ce.Name != "default" || ce.Resource != appctx.ResourceConnection {
		t.Fatalf("want missing default connection, got %v", err)
	}
}

type Ghost struct{ orm.Model }

func TestUnregisteredModel(t *testing.T) {
	ctx, _ := mockContext(t, "sqlmock")
	_, err := orm.All[*Ghost](ctx)
	var nr *orm.NotRegisteredError
	if !errors.As(err, &nr) {
		t.Fatalf("want NotRegisteredError, got %v", err)
	}
	if err := orm.New[*Ghost](nil).Save(ctx); !errors.Is(err, orm.ErrDetached) {
		t.Fatalf("Save detached: %v", err)
	}
}

func TestAfterCallbacks(t *testing.T) {
	ctx, mock := mockContext(t, "sqlmock")
	mock.ExpectQuery(regexp.QuoteMeta(`select * from users`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "ann"))

	var seen []*User
	_, err := orm.Query[*User]().After(func(us []*User) { seen = us }).Get(ctx)
	if err != nil || len(seen) != 1 || seen[0].Name() != "ann" {
		t.Fatalf("After saw %v, err %v", seen, err)
	}
}
