package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callcore/internal/amiclient"
	"callcore/internal/config"
	"callcore/internal/controlapi"
	"callcore/internal/controlauth"
	"callcore/internal/correlator"
	"callcore/internal/crmsink"
	"callcore/internal/database"
	"callcore/internal/dispatcher"
	"callcore/internal/notifystore"
	"callcore/internal/pushgateway"
	"callcore/internal/settings"
	"callcore/internal/supervisor"
)

const defaultConfigPath = "/etc/callcore/callcore.yaml"

func main() {
	log.Println("[Main] callcore starting")

	configPath := os.Getenv("CALLCORE_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("[Main] error loading config: %v", err)
	}

	dbConn, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatalf("[Main] error connecting to database: %v", err)
	}
	defer dbConn.Close()

	store := notifystore.New(dbConn.DB)
	if err := store.EnsureSchema(); err != nil {
		log.Fatalf("[Main] error preparing notification schema: %v", err)
	}
	log.Println("[Main] notification store ready")

	rules := settings.FromConfig(cfg.Settings)
	monitored := settings.MonitoredExtensions(cfg.Settings)

	crmPublisher := crmsink.New(cfg.CRM.Endpoint, time.Duration(cfg.CRM.TimeoutMS)*time.Millisecond, cfg.CRM.QueueCapacity)
	crmPublisher.Start()
	defer crmPublisher.Stop()
	log.Println("[Main] CRM publisher started")

	var gw *pushgateway.Gateway

	corr := correlator.New(monitored, rules, crmPublisher, store, func(extension string) {
		if gw != nil {
			gw.NotifyCall(extension)
		}
	})

	amiClient := amiclient.NewClient(&cfg.AMI)
	if err := amiClient.Connect(); err != nil {
		log.Fatalf("[Main] error connecting to AMI: %v", err)
	}
	defer amiClient.Close()
	log.Println("[Main] AMI client connected")

	d := dispatcher.New(amiClient)

	if err := corr.Resync(d, monitored); err != nil {
		log.Printf("[Main] initial resync incomplete: %v", err)
	}

	go runEventLoop(amiClient, corr)

	gw = pushgateway.New(corr, time.Duration(cfg.Gateway.BroadcastEveryMS)*time.Millisecond)
	go gw.Run()
	defer gw.Stop()
	log.Println("[Main] push gateway running")

	sup := supervisor.New(corr, d)
	guard := controlauth.New(cfg.ControlAPI.JWTSecret)
	controlServer := controlapi.New(cfg.ControlAPI, guard, sup, gw)

	go func() {
		if err := controlServer.Start(); err != nil {
			log.Fatalf("[Main] control API server stopped: %v", err)
		}
	}()
	log.Println("[Main] control API listening")

	log.Println("[Main] ========================================")
	log.Println("[Main] callcore is running. Press Ctrl+C to stop.")
	log.Println("[Main] ========================================")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Println("[Main] shutdown signal received")
	case <-amiClient.Done():
		log.Println("[Main] AMI session ended, shutting down")
	}
}

// runEventLoop feeds every frame the AMI client's event stream produces into
// the correlator, in the order received (spec.md §4.3.1 ordering guarantee).
func runEventLoop(client *amiclient.Client, corr *correlator.Correlator) {
	events := client.Subscribe()
	for frame := range events {
		corr.Dispatch(frame)
	}
}
