package main

import (
	"log"
	"os"
	"time"

	"docmark/internal/api"
	"docmark/internal/artifact"
	"docmark/internal/config"
	"docmark/internal/converter"
	"docmark/internal/redis"
	"docmark/internal/service"
	"docmark/internal/session"
	"docmark/internal/storage"
	"docmark/internal/sweeper"
	"docmark/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("DOCMARK_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	basic := cfg.BasicConfig

	window := time.Duration(basic.RetentionMinutes) * time.Minute
	if window <= 0 {
		window = session.DefaultRetention
	}
	sweepInterval := time.Duration(basic.SweepIntervalMinutes) * time.Minute

	mode := artifact.DetectMode(basic.DataDir)
	log.Printf("output mode: %s", mode)
	store := artifact.NewStore(basic.DataDir, mode)

	var records *storage.Records
	dbType := os.Getenv("DOCMARK_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	if mode == artifact.ModeDisk {
		db, err := storage.Open(dbType, cfg)
		if err != nil {
			log.Printf("conversion index disabled: %v", err)
		} else {
			defer db.Close()
			if err := storage.Migrate(db, dbType); err != nil {
				log.Fatalf("migrate database: %v", err)
			}
			records = storage.NewRecords(db)
		}
	}

	rdb, err := redis.NewClient(cfg)
	if err != nil {
		log.Printf("result cache disabled: %v", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	conv, err := converter.NewExecConverter(basic.ConverterCommand)
	if err != nil {
		log.Fatalf("init converter: %v", err)
	}

	pool := worker.NewDispatcher(worker.Config{
		MinWorkers:        basic.MinWorkers,
		MaxWorkers:        basic.MaxWorkers,
		QueueSize:         basic.QueueSize,
		WorkerIdleTimeout: time.Duration(basic.WorkerIdleTimeout) * time.Minute,
	})
	sw := sweeper.New(window, sweepInterval)
	svc := service.New(store, conv, pool, sw, records, service.NewResultCache(rdb), window)
	resolver := artifact.NewResolver(store.PublicRoot(), window)

	maxUpload := int64(basic.MaxUploadMB) << 20
	handlers := api.NewHandler(svc, resolver, maxUpload)

	router := gin.Default()
	router.MaxMultipartMemory = 8 << 20
	handlers.RegisterRoutes(router)

	addr := basic.ServerAddress
	if addr == "" {
		addr = ":8090"
	}

	if err := router.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}
