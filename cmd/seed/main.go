package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"coursegen-pipeline/internal/config"
	pg "coursegen-pipeline/internal/infra/db/postgres"
)

const schemaPath = "deploy/postgres/init.sql"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	schema, err := os.ReadFile(schemaPath)
	if err != nil {
		log.Fatalf("read schema %s: %v", schemaPath, err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		log.Fatalf("apply schema: %v", err)
	}

	var tables int
	err = pool.QueryRow(ctx,
		`SELECT count(*) FROM information_schema.tables
		 WHERE table_schema = 'public'
		   AND table_name IN ('generation_jobs','course_plans','research_sessions','module_contents','quality_assessments','handoff_records')`,
	).Scan(&tables)
	if err != nil {
		log.Fatalf("verify schema: %v", err)
	}

	fmt.Printf("schema applied, %d pipeline tables present\n", tables)
}
