package main

import (
	"flag"
	"log"

	"tupledb/pkg/api"
	"tupledb/pkg/config"
	"tupledb/pkg/core"
	"tupledb/pkg/network"
)

func main() {
	configPath := flag.String("config", "", "Path to tupledb.yaml (empty: search defaults)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("[TupleDB] Starting (key width: %d slots / %d bytes)", cfg.Index.KeySlots, cfg.Index.KeySlots*8)

	store := core.NewStore(cfg)
	defer store.Close()

	tcpServer := network.NewTCPServer(store)
	go func() {
		if err := tcpServer.Start(cfg.Server.TCPAddr); err != nil {
			log.Fatalf("[TCP] Server failed: %v", err)
		}
	}()

	httpServer := api.NewServer(store)
	httpServer.Start(cfg.Server.Addr)
}
