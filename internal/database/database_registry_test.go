package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"threatreg/internal/domain"
	"threatreg/internal/netmatch"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupRegistryTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: silentLogger()})
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	// Shared-cache in-memory databases report table locks instead of waiting.
	sqlDB.SetMaxOpenConns(1)

	if _, err := SetupDB(WithExistingDB(db), WithMigrations(defaultMigrations()...), WithAutoMigrate(true)); err != nil {
		t.Fatalf("setup database: %v", err)
	}

	t.Cleanup(func() {
		_ = sqlDB.Close()
		DB = nil
	})

	return db
}

func strPtr(s string) *string {
	return &s
}

func TestInsertNetworkAssignsID(t *testing.T) {
	setupRegistryTestDB(t)
	ctx := context.Background()

	record := domain.NetworkRecord{Network: "192.168.0.0/24", Company: "acme", Description: strPtr("office")}
	if err := InsertNetwork(ctx, &record); err != nil {
		t.Fatalf("insert network: %v", err)
	}
	if record.ID == 0 {
		t.Fatalf("expected generated id")
	}

	stored, err := GetNetwork(ctx, record.ID)
	if err != nil {
		t.Fatalf("get network: %v", err)
	}
	if stored.Network != record.Network || stored.Company != "acme" || stored.Description == nil || *stored.Description != "office" {
		t.Fatalf("stored network = %+v", stored)
	}
}

func TestInsertNetworkConflict(t *testing.T) {
	db := setupRegistryTestDB(t)
	ctx := context.Background()

	first := domain.NetworkRecord{Network: "10.0.0.0/8", Company: "acme"}
	if err := InsertNetwork(ctx, &first); err != nil {
		t.Fatalf("first insert: %v", err)
	}

	second := domain.NetworkRecord{Network: "10.0.0.0/8", Company: "acme", Description: strPtr("dup")}
	if err := InsertNetwork(ctx, &second); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second insert returned %v, want ErrConflict", err)
	}

	other := domain.NetworkRecord{Network: "10.0.0.0/8", Company: "globex"}
	if err := InsertNetwork(ctx, &other); err != nil {
		t.Fatalf("same block for another company should be allowed: %v", err)
	}

	var count int64
	if err := db.Model(&domain.NetworkRecord{}).Where("network = ? AND company = ?", "10.0.0.0/8", "acme").Count(&count).Error; err != nil {
		t.Fatalf("count networks: %v", err)
	}
	if count != 1 {
		t.Fatalf("network rows = %d, want 1", count)
	}
}

func TestConcurrentInsertsKeepOneRow(t *testing.T) {
	db := setupRegistryTestDB(t)
	ctx := context.Background()

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			record := domain.IndicatorRecord{Kind: domain.KindDomainName, Value: "evil.example.com"}
			err := InsertIndicator(ctx, &record)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected insert error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || conflicts != writers-1 {
		t.Fatalf("succeeded=%d conflicts=%d, want 1 and %d", succeeded, conflicts, writers-1)
	}

	var count int64
	if err := db.Model(&domain.IndicatorRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count indicators: %v", err)
	}
	if count != 1 {
		t.Fatalf("indicator rows = %d, want 1", count)
	}
}

func TestNetworkRoundTripSearch(t *testing.T) {
	setupRegistryTestDB(t)
	ctx := context.Background()

	for _, r := range []domain.NetworkRecord{
		{Network: "192.168.0.0/24", Company: "acme"},
		{Network: "192.168.0.0/16", Company: "acme"},
		{Network: "192.168.0.0/24", Company: "globex"},
	} {
		record := r
		if err := InsertNetwork(ctx, &record); err != nil {
			t.Fatalf("insert %s: %v", record.Network, err)
		}
	}

	records, err := ListNetworks(ctx)
	if err != nil {
		t.Fatalf("list networks: %v", err)
	}
	if len(records) != 3 || records[0].Network != "192.168.0.0/24" || records[2].Company != "globex" {
		t.Fatalf("list networks not in insertion order: %+v", records)
	}

	q, err := netmatch.ParseQuery("192.168.0.0/24", "acme")
	if err != nil {
		t.Fatalf("parse query: %v", err)
	}
	got := netmatch.Match(q, records)

	exact := make([]domain.NetworkRecord, 0)
	for _, r := range got {
		if r.Network == "192.168.0.0/24" {
			exact = append(exact, r)
		}
	}
	if len(exact) != 1 || exact[0].Company != "acme" {
		t.Fatalf("exact block search returned %+v", got)
	}
}

func TestDeleteNetwork(t *testing.T) {
	setupRegistryTestDB(t)
	ctx := context.Background()

	a := domain.NetworkRecord{Network: "10.0.0.0/8", Company: "acme"}
	b := domain.NetworkRecord{Network: "172.16.0.0/12", Company: "acme"}
	for _, r := range []*domain.NetworkRecord{&a, &b} {
		if err := InsertNetwork(ctx, r); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	if n, err := DeleteNetwork(ctx, "10.0.0.0/8", "acme"); err != nil || n != 1 {
		t.Fatalf("DeleteNetwork = %d, %v", n, err)
	}
	if _, err := DeleteNetwork(ctx, "10.0.0.0/8", "acme"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete returned %v, want ErrNotFound", err)
	}
	if n, err := DeleteNetworkByID(ctx, b.ID); err != nil || n != 1 {
		t.Fatalf("DeleteNetworkByID = %d, %v", n, err)
	}
	if _, err := DeleteNetworkByID(ctx, b.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("delete missing id returned %v, want ErrNotFound", err)
	}
	if _, err := GetNetwork(ctx, a.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get deleted network returned %v, want ErrNotFound", err)
	}
}

func TestListCompanies(t *testing.T) {
	setupRegistryTestDB(t)
	ctx := context.Background()

	for _, r := range []domain.NetworkRecord{
		{Network: "10.0.0.0/8", Company: "globex"},
		{Network: "10.1.0.0/16", Company: "acme"},
		{Network: "10.2.0.0/16", Company: "acme"},
	} {
		record := r
		if err := InsertNetwork(ctx, &record); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	companies, err := ListCompanies(ctx)
	if err != nil {
		t.Fatalf("list companies: %v", err)
	}
	if len(companies) != 2 || companies[0] != "acme" || companies[1] != "globex" {
		t.Fatalf("companies = %v, want [acme globex]", companies)
	}
}

func TestSearchIndicators(t *testing.T) {
	setupRegistryTestDB(t)
	ctx := context.Background()

	seed := []domain.IndicatorRecord{
		{Kind: domain.KindDomainName, Value: "Evil.Example.com"},
		{Kind: domain.KindDomainName, Value: "good.example.org"},
		{Kind: domain.KindFilename, Value: "100%_evil.exe"},
		{Kind: domain.KindAddressSrc, Value: "10.0.0.1"},
	}
	for i := range seed {
		if err := InsertIndicator(ctx, &seed[i]); err != nil {
			t.Fatalf("insert %s: %v", seed[i].Value, err)
		}
	}

	cases := []struct {
		kind  domain.IndicatorKind
		value string
		want  int
	}{
		{"", "", 4},
		{domain.KindDomainName, "", 2},
		{"", "evil", 2},
		{domain.KindDomainName, "EVIL", 1},
		{"", "%", 1},
		{"", "_", 1},
		{domain.KindHashMD5, "", 0},
	}

	for _, tc := range cases {
		got, err := SearchIndicators(ctx, tc.kind, tc.value)
		if err != nil {
			t.Fatalf("SearchIndicators(%q, %q): %v", tc.kind, tc.value, err)
		}
		if len(got) != tc.want {
			t.Fatalf("SearchIndicators(%q, %q) returned %d rows, want %d", tc.kind, tc.value, len(got), tc.want)
		}
	}
}

func TestDeliveryOutcomes(t *testing.T) {
	setupRegistryTestDB(t)
	ctx := context.Background()

	indicator := domain.IndicatorRecord{Kind: domain.KindHashMD5, Value: "d41d8cd98f00b204e9800998ecf8427e"}
	if err := InsertIndicator(ctx, &indicator); err != nil {
		t.Fatalf("insert indicator: %v", err)
	}

	status := 200
	recorder := Outcomes{}
	if err := recorder.RecordDeliveryOutcome(ctx, domain.DeliveryOutcome{IndicatorID: indicator.ID, Destination: "kuma", Status: &status}); err != nil {
		t.Fatalf("record outcome: %v", err)
	}
	if err := recorder.RecordDeliveryOutcome(ctx, domain.DeliveryOutcome{IndicatorID: indicator.ID, Destination: "arcsight", Error: strPtr("timeout")}); err != nil {
		t.Fatalf("record outcome: %v", err)
	}

	outcomes, err := ListDeliveryOutcomes(ctx, indicator.ID)
	if err != nil {
		t.Fatalf("list outcomes: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes = %d, want 2", len(outcomes))
	}
	if !outcomes[0].Succeeded() || outcomes[1].Succeeded() {
		t.Fatalf("unexpected outcome states: %+v", outcomes)
	}

	if _, err := ListDeliveryOutcomes(ctx, indicator.ID+100); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("outcomes for missing indicator returned %v, want ErrNotFound", err)
	}

	if _, err := DeleteIndicatorByID(ctx, indicator.ID); err != nil {
		t.Fatalf("delete indicator: %v", err)
	}
	var remaining int64
	if err := DB.Model(&domain.DeliveryOutcome{}).Count(&remaining).Error; err != nil {
		t.Fatalf("count outcomes: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("outcomes remaining after indicator delete = %d, want 0", remaining)
	}
}

func TestDeleteIndicator(t *testing.T) {
	setupRegistryTestDB(t)
	ctx := context.Background()

	indicator := domain.IndicatorRecord{Kind: domain.KindAddressPortSrc, Value: "10.0.0.1|8080"}
	if err := InsertIndicator(ctx, &indicator); err != nil {
		t.Fatalf("insert indicator: %v", err)
	}

	if _, err := DeleteIndicator(ctx, domain.KindAddressPortDst, "10.0.0.1|8080"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("delete with wrong type returned %v, want ErrNotFound", err)
	}
	if n, err := DeleteIndicator(ctx, domain.KindAddressPortSrc, "10.0.0.1|8080"); err != nil || n != 1 {
		t.Fatalf("DeleteIndicator = %d, %v", n, err)
	}
	if _, err := GetIndicator(ctx, indicator.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("get deleted indicator returned %v, want ErrNotFound", err)
	}
}

func TestStoreRequiresSetup(t *testing.T) {
	DB = nil
	if _, err := ListNetworks(context.Background()); !errors.Is(err, errNotInitialised) {
		t.Fatalf("ListNetworks without database returned %v", err)
	}
}
