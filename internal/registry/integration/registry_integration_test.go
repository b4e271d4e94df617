package integration_test

import (
	"context"
	"database/sql"
	"os"
	"sort"
	"sync"
	"testing"

	"fuel-registry/internal/docstore/postgres"
	registryapp "fuel-registry/internal/registry/application"
	registry "fuel-registry/internal/registry/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

func openStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := postgres.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := db.Exec("DELETE FROM documents"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	store, err := postgres.NewStore(db, postgres.WithMaxRetries(50))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return store
}

func submission(name string) registry.Submission {
	return registry.Submission{
		Name:              name,
		Latitude:          "34.0531",
		Longitude:         "-6.7985",
		BrandName:         "NewBrand",
		ProvinceName:      "Rabat-Salé",
		CommuneName:       "Salé",
		ManagerNationalID: "AB123",
		Owner:             registry.OwnerInput{Kind: registry.OwnerIndividual, FirstName: "Omar", LastName: "Idrissi"},
		DieselLiters:      "5000",
	}
}

func TestRegistry_ConcurrentCreatesOnPostgres(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	resolver, _ := registryapp.NewResolver(store)
	codes, _ := registryapp.NewCodeAllocator(store)
	writer, err := registryapp.NewWriter(store, resolver, codes)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	reader, _ := registryapp.NewReader(store, zerolog.Nop())
	deleter, _ := registryapp.NewDeleter(store, zerolog.Nop())

	// Seed the references so concurrent creates only race on the code counter.
	first, err := writer.Create(ctx, submission("seed"))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := writer.Create(ctx, submission("concurrent")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("create: %v", err)
	}

	views, err := reader.ListAll(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != n+1 {
		t.Fatalf("expected %d stations, got %d", n+1, len(views))
	}
	got := make([]int64, 0, len(views))
	for _, v := range views {
		got = append(got, v.Station.Code)
		if v.Brand.Name != "NewBrand" {
			t.Fatalf("unexpected brand %q", v.Brand.Name)
		}
	}
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	for i, code := range got {
		if code != registryapp.CodeBase+int64(i)+1 {
			t.Fatalf("codes not gapless: %v", got)
		}
	}

	brands, err := store.List(ctx, registry.CollectionBrands)
	if err != nil {
		t.Fatalf("brands: %v", err)
	}
	if len(brands) != 1 {
		t.Fatalf("expected one brand, got %d", len(brands))
	}

	if err := deleter.Delete(ctx, first); err != nil {
		t.Fatalf("delete: %v", err)
	}
	caps, err := store.FindEqual(ctx, registry.CollectionCapacities, "station_id", first)
	if err != nil {
		t.Fatalf("capacities: %v", err)
	}
	if len(caps) != 0 {
		t.Fatalf("expected capacities removed, got %d", len(caps))
	}
}
