package pg

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"licentia.dev/internal/licensing"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func payloadJSON(user, product string, expiresAt time.Time) []byte {
	return []byte(fmt.Sprintf(
		`{"provider":"provider::1","user":%q,"productId":%q,"expiresAt":%q}`,
		user, product, expiresAt.UTC().Format(time.RFC3339)))
}

func licenseColumns() []string {
	return []string{"contract_id", "create_arguments", "created_at"}
}

func TestFindByIDFound(t *testing.T) {
	store, mock := newMockStore(t)
	expires := time.Now().Add(48 * time.Hour)
	created := time.Now().Add(-time.Hour)

	mock.ExpectQuery("select contract_id, create_arguments, created_at").
		WithArgs("00abc", string(licensing.Template)).
		WillReturnRows(sqlmock.NewRows(licenseColumns()).
			AddRow("00abc", payloadJSON("u1", "prod-1", expires), created))

	res := store.FindByID(context.Background(), "00abc")
	if !res.IsOk() {
		t.Fatalf("find: %v", res.Err())
	}
	l := res.Value()
	if l == nil {
		t.Fatal("expected row")
	}
	if l.ContractID != "00abc" || l.User != "u1" || l.ProductID != "prod-1" {
		t.Fatalf("license = %+v", l)
	}
	if l.Status != licensing.StatusActive {
		t.Fatalf("status = %s", l.Status)
	}
	if !l.CreatedAt.Equal(created) {
		t.Fatalf("createdAt = %s, want row timestamp %s", l.CreatedAt, created)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFindByIDAbsenceIsSuccess(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select contract_id, create_arguments, created_at").
		WithArgs("00missing", string(licensing.Template)).
		WillReturnRows(sqlmock.NewRows(licenseColumns()))

	res := store.FindByID(context.Background(), "00missing")
	if !res.IsOk() {
		t.Fatalf("absence must not be an error: %v", res.Err())
	}
	if res.Value() != nil {
		t.Fatal("expected nil license")
	}
}

func TestFindByIDStoreFailureIsDBError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select contract_id, create_arguments, created_at").
		WillReturnError(errors.New("connection reset"))

	res := store.FindByID(context.Background(), "00abc")
	if res.IsOk() {
		t.Fatal("expected failure")
	}
	if res.Err().Code != "DB_ERROR" {
		t.Fatalf("code = %s", res.Err().Code)
	}
}

func TestFindByIDMalformedPayloadFailsClosed(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select contract_id, create_arguments, created_at").
		WillReturnRows(sqlmock.NewRows(licenseColumns()).
			AddRow("00abc", []byte(`{"user":"u1"}`), time.Now()))

	res := store.FindByID(context.Background(), "00abc")
	if res.IsOk() {
		t.Fatal("malformed payload must not produce a license")
	}
	if res.Err().Code != "DB_ERROR" {
		t.Fatalf("code = %s", res.Err().Code)
	}
}

func TestFindByQueryComposesPredicates(t *testing.T) {
	store, mock := newMockStore(t)
	expires := time.Now().Add(24 * time.Hour)

	mock.ExpectQuery("and create_arguments->>'user' = \\$2 and create_arguments->>'productId' = \\$3 order by created_at desc limit \\$4 offset \\$5").
		WithArgs(string(licensing.Template), "u1", "prod-1", 10, 20).
		WillReturnRows(sqlmock.NewRows(licenseColumns()).
			AddRow("001", payloadJSON("u1", "prod-1", expires), time.Now()))

	res := store.FindByQuery(context.Background(), licensing.Query{
		UserID:    "u1",
		ProductID: "prod-1",
		Limit:     10,
		Offset:    20,
	})
	if !res.IsOk() {
		t.Fatalf("query: %v", res.Err())
	}
	if len(res.Value()) != 1 {
		t.Fatalf("rows = %d", len(res.Value()))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFindByQueryDefaultsPagination(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("order by created_at desc limit \\$2 offset \\$3").
		WithArgs(string(licensing.Template), licensing.DefaultQueryLimit, 0).
		WillReturnRows(sqlmock.NewRows(licenseColumns()))

	res := store.FindByQuery(context.Background(), licensing.Query{Limit: 0, Offset: -5})
	if !res.IsOk() {
		t.Fatalf("query: %v", res.Err())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFindByQueryStatusFilterAppliesAfterTranslation(t *testing.T) {
	store, mock := newMockStore(t)
	active := time.Now().Add(24 * time.Hour)
	expired := time.Now().Add(-24 * time.Hour)

	mock.ExpectQuery("order by created_at desc").
		WillReturnRows(sqlmock.NewRows(licenseColumns()).
			AddRow("001", payloadJSON("u1", "p", active), time.Now()).
			AddRow("002", payloadJSON("u1", "p", expired), time.Now().Add(-time.Minute)))

	res := store.FindByQuery(context.Background(), licensing.Query{Status: licensing.StatusExpired})
	if !res.IsOk() {
		t.Fatalf("query: %v", res.Err())
	}
	got := res.Value()
	if len(got) != 1 || got[0].ContractID != "002" {
		t.Fatalf("filtered = %+v", got)
	}
}

func TestFindActiveByUserDropsExpired(t *testing.T) {
	store, mock := newMockStore(t)
	active := time.Now().Add(24 * time.Hour)
	expired := time.Now().Add(-24 * time.Hour)

	mock.ExpectQuery("create_arguments->>'user' = \\$2").
		WithArgs(string(licensing.Template), "u1").
		WillReturnRows(sqlmock.NewRows(licenseColumns()).
			AddRow("001", payloadJSON("u1", "p", active), time.Now()).
			AddRow("002", payloadJSON("u1", "p", expired), time.Now().Add(-time.Minute)))

	res := store.FindActiveByUser(context.Background(), "u1")
	if !res.IsOk() {
		t.Fatalf("query: %v", res.Err())
	}
	got := res.Value()
	if len(got) != 1 || got[0].Status != licensing.StatusActive {
		t.Fatalf("active = %+v", got)
	}
}
