package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"fuel-registry/internal/docstore"
	"fuel-registry/internal/docstore/memory"
	registry "fuel-registry/internal/registry/domain"

	"github.com/rs/zerolog"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func sequence(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%04d", prefix, n)
	}
}

type services struct {
	store    *memory.Store
	resolver *Resolver
	writer   *Writer
	reader   *Reader
	deleter  *Deleter
}

func newServices(t *testing.T) services {
	t.Helper()
	store := memory.NewStore()
	return newServicesWithStore(t, store, store)
}

// newServicesWithStore lets a test wrap the store the writer commits through.
func newServicesWithStore(t *testing.T, mem *memory.Store, writeStore docstore.Store) services {
	t.Helper()
	resolver, err := NewResolver(writeStore, WithIDGenerator(sequence("ref")))
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	codes, err := NewCodeAllocator(writeStore)
	if err != nil {
		t.Fatalf("codes: %v", err)
	}
	writer, err := NewWriter(writeStore, resolver, codes,
		WithWriterClock(fixedClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}),
		WithWriterIDGenerator(sequence("row")),
	)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	reader, err := NewReader(mem, zerolog.Nop())
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	deleter, err := NewDeleter(mem, zerolog.Nop())
	if err != nil {
		t.Fatalf("deleter: %v", err)
	}
	return services{store: mem, resolver: resolver, writer: writer, reader: reader, deleter: deleter}
}

func sampleSubmission() registry.Submission {
	return registry.Submission{
		Name:              "Station Salé Centre",
		Address:           "Av. Mohammed V",
		Latitude:          "34.0531",
		Longitude:         "-6.7985",
		Status:            "active",
		Type:              "urban",
		ManagementType:    "lease",
		BrandName:         "NewBrand",
		BrandLegalName:    "NewBrand SA",
		ProvinceName:      "Rabat-Salé",
		CommuneName:       "Salé",
		ManagerNationalID: "AB123",
		ManagerFirstName:  "Youssef",
		ManagerLastName:   "Alaoui",
		ManagerPhone:      "0600000000",
		Owner: registry.OwnerInput{
			Kind:      registry.OwnerIndividual,
			FirstName: "Omar",
			LastName:  "Idrissi",
		},
		DieselLiters: "5000",
	}
}

func countRows(t *testing.T, store docstore.Store, collection string) int {
	t.Helper()
	docs, err := store.List(context.Background(), collection)
	if err != nil {
		t.Fatalf("list %s: %v", collection, err)
	}
	return len(docs)
}

func rowsOf[T any](t *testing.T, store docstore.Store, collection, stationID string) []T {
	t.Helper()
	docs, err := store.FindEqual(context.Background(), collection, "station_id", stationID)
	if err != nil {
		t.Fatalf("find %s: %v", collection, err)
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var row T
		if err := doc.Decode(&row); err != nil {
			t.Fatalf("decode %s: %v", collection, err)
		}
		out = append(out, row)
	}
	return out
}
