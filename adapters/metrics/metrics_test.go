package metrics_test

import (
	"database/sql"
	"strings"
	"testing"

	"github.com/artpar/recordbase/adapters/metrics"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersWithGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObjectWrites.WithLabelValues("create").Inc()
	m.ObjectWrites.WithLabelValues("create").Inc()
	m.WriteRejections.WithLabelValues("unique").Inc()

	if got := testutil.ToFloat64(m.ObjectWrites.WithLabelValues("create")); got != 2 {
		t.Errorf("object_writes_total{op=create} = %v, want 2", got)
	}

	expected := `
# HELP recordbase_write_rejections_total Writes refused by validation, uniqueness, workflow or configuration checks.
# TYPE recordbase_write_rejections_total counter
recordbase_write_rejections_total{kind="unique"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "recordbase_write_rejections_total"); err != nil {
		t.Error(err)
	}
}

func TestNew_SeparateRegistriesDoNotConflict(t *testing.T) {
	a := metrics.New(prometheus.NewRegistry())
	b := metrics.New(prometheus.NewRegistry())

	a.SharePurged.Add(3)
	if got := testutil.ToFloat64(b.SharePurged); got != 0 {
		t.Errorf("second collector saw %v purged links", got)
	}
}

func TestWatchDB(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if err := m.WatchDB(db, "main"); err != nil {
		t.Fatalf("WatchDB: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "go_sql_open_connections" {
			found = true
		}
	}
	if !found {
		t.Error("db stats not exported")
	}
}
