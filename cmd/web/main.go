package main

import (
	"fmt"
	"log"

	"github.com/cps-schoolcrime/internal/config"
	"github.com/cps-schoolcrime/internal/db"
	"github.com/cps-schoolcrime/internal/web"
)

func main() {
	config.LoadEnv()

	fmt.Println("=== Chicago School Crime Dashboard ===")

	cfg, err := config.Load(config.GetEnv("SCHOOLCRIME_CONFIG", ""))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	host := config.GetEnv("WEB_HOST", "localhost")
	port := config.GetEnvInt("WEB_PORT", 8080)

	dbConn, err := db.NewConnection(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open working store: %v", err)
	}
	defer dbConn.Close()

	var schools int
	if err := dbConn.DB.QueryRow("SELECT COUNT(*) FROM schools").Scan(&schools); err != nil {
		log.Fatalf("Working store check failed: %v", err)
	}
	fmt.Printf("Working store: %s (%d boundary rows)\n", cfg.DBPath, schools)

	server := web.NewServer(dbConn.DB, host, port)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
