package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/openfroyo/factopt/pkg/engine"
	"github.com/openfroyo/factopt/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path: ":memory:", // Use in-memory database for example
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_ListRuns demonstrates saving runs and listing them by
// scenario.
func ExampleSQLiteStore_ListRuns() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, sc := range []string{"baseline", "grid.cost=high"} {
		_ = store.SaveRun(ctx, &engine.Run{
			ID:        fmt.Sprintf("run-%03d", i+1),
			Factory:   "brewery",
			Scenario:  sc,
			Status:    engine.RunStatusSucceeded,
			Objective: float64(100 * (i + 1)),
			StartedAt: start.Add(time.Duration(i) * time.Hour),
		})
	}

	runs, err := store.ListRuns(ctx, stores.RunFilter{Factory: "brewery"})
	if err != nil {
		log.Fatal(err)
	}
	for _, run := range runs {
		fmt.Printf("%s %s %.0f\n", run.ID, run.Scenario, run.Objective)
	}
	// Output:
	// run-002 grid.cost=high 200
	// run-001 baseline 100
}
