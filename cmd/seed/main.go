// seed is a one-shot tool to load the framework-agreement catalog.
// Run it after migrations on a fresh database, or to restore the catalog
// after it has been accidentally wiped.
//
// Usage: go run ./cmd/seed
package main

import (
	"context"
	"log"

	"eps-procurement/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx := context.Background()
	pool, err := db.NewPool(ctx)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	log.Println("Restoring framework agreement catalog...")
	_, err = tx.Exec(ctx, `
		INSERT INTO skus (sku_code, name, unit_price, supplier, category) VALUES
		('DELL-LAT-5540',  'Dell Latitude 5540 15.6" i7',        1450.00, 'Dell',   'laptop'),
		('DELL-PRE-3680',  'Dell Precision 3680 Tower',          2100.00, 'Dell',   'workstation'),
		('DELL-U2723QE',   'Dell UltraSharp 27" 4K Monitor',      620.00, 'Dell',   'monitor'),
		('DELL-WD22TB4',   'Dell Thunderbolt Dock WD22TB4',       280.00, 'Dell',   'accessory'),
		('HP-EB-860G11',   'HP EliteBook 860 G11 16" i7',        1520.00, 'HP',     'laptop'),
		('HP-Z2-G9',       'HP Z2 G9 Tower Workstation',         1980.00, 'HP',     'workstation'),
		('HP-E27U-G5',     'HP E27u G5 QHD Monitor',              340.00, 'HP',     'monitor'),
		('LEN-T14S-G5',    'Lenovo ThinkPad T14s Gen 5',         1380.00, 'Lenovo', 'laptop'),
		('LEN-P3-TOWER',   'Lenovo ThinkStation P3 Tower',       1850.00, 'Lenovo', 'workstation'),
		('LEN-T27H-30',    'Lenovo ThinkVision T27h-30 Monitor',  310.00, 'Lenovo', 'monitor')
		ON CONFLICT (sku_code) DO UPDATE
		  SET name       = EXCLUDED.name,
		      unit_price = EXCLUDED.unit_price,
		      supplier   = EXCLUDED.supplier,
		      category   = EXCLUDED.category;
	`)
	if err != nil {
		log.Fatalf("Failed to seed catalog: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit: %v", err)
	}
	log.Println("Catalog seeded.")
}
