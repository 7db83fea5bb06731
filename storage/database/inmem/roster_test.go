package inmemdb_test

import (
	"testing"

	inmemdb "github.com/trezcool/roster/storage/database/inmem"
	"github.com/trezcool/roster/tests"
)

func TestRosterRepository(t *testing.T) {
	testutil.TestRepository(t, inmemdb.NewRosterRepository(inmemdb.Open()))
}
