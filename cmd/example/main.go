package main

import (
	"fmt"
	"log"
	"time"

	"tupledb/pkg/client"
	"tupledb/pkg/key"
)

func main() {
	fmt.Println("Connecting to TupleDB...")
	cli, err := client.Dial("localhost:9090")
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer cli.Close()

	// A 2-slot composite key: signed order ID in the first slot, an
	// unsigned sequence number in the second. The encoding keeps byte
	// order equal to (orderID, seq) tuple order.
	k := key.New(2)
	k.AddInt64(-42, 0)
	k.AddUint64(7, 8)
	value := "Hello, TupleDB SDK!"

	fmt.Printf("Writing: Key=%s, Val=%s\n", k, value)
	start := time.Now()
	if err := cli.Put(k, []byte(value)); err != nil {
		log.Fatalf("Put failed: %v", err)
	}
	fmt.Printf("Put done in %v\n", time.Since(start))

	fmt.Printf("Reading Key=%s...\n", k)
	start = time.Now()
	val, err := cli.Get(k)
	if err != nil {
		log.Fatalf("Get failed: %v", err)
	}
	fmt.Printf("Got Value: %s (in %v)\n", string(val), time.Since(start))

	// Range scan across the second column for the same order ID.
	startKey := key.New(2)
	startKey.AddInt64(-42, 0)
	endKey := key.New(2)
	endKey.AddInt64(-42, 0)
	endKey.AddUint64(100, 8)

	records, err := cli.Scan(startKey, endKey)
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}
	fmt.Printf("Scan found %d record(s)\n", len(records))
	for _, r := range records {
		fmt.Printf("  %s => %s\n", r.Key, string(r.Value))
	}
}
