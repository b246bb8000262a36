package db

// This file contains tests that take a long time to run due to the tests
// testing the ability to operate on a large number of records.

import (
	"errors"
	"os"
	"testing"
)

func TestInsertAndSelectManyRows(t *testing.T) {
	if os.Getenv("LONG_TEST") == "" {
		t.Skip("skipped long test")
	}
	err := os.Remove("many_rows.db")
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		t.Fatal("could not remove existing many_rows.db database file")
	}
	// Create database with a file for this test since it cannot be all in
	// memory.
	db, err := New(false, "many_rows.db")
	if err != nil {
		t.Fatalf("err creating db: %s", err)
	}
	mustExecute(t, db, "CREATE TABLE test (id INTEGER PRIMARY KEY, junk TEXT)")
	inserts := 200_000
	t.Log("inserting many rows")
	for i := 0; i < inserts; i++ {
		mustExecute(t, db, "INSERT INTO test (junk) VALUES ('asdf')")
	}
	t.Log("inserted many rows")

	t.Log("selecting from many rows")
	selectRes := mustExecute(t, db, "SELECT id FROM test WHERE id > 199995")
	t.Log("selected from many rows")
	selectExpects := []string{"199996", "199997", "199998", "199999", "200000"}
	if got, want := len(selectRes.ResultRows), len(selectExpects); got != want {
		t.Fatalf("got %d rows want %d", got, want)
	}
	for i, se := range selectExpects {
		if got := *selectRes.ResultRows[i][0]; got != se {
			t.Fatalf("select failed got: %s want: %s", got, se)
		}
	}

	if err := os.Remove("many_rows.db"); err != nil {
		t.Fatal("could not cleanup many_rows.db database file")
	}
}
