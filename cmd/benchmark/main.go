package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"tupledb/pkg/key"
	"tupledb/pkg/protocol"
)

func main() {
	httpAddr := flag.String("http", "http://localhost:8080", "HTTP API base URL")
	tcpAddr := flag.String("tcp", "localhost:9090", "TCP server address")
	nReq := flag.Int("n", 5000, "Number of requests per run")
	slots := flag.Int("slots", 2, "Composite key width in 8-byte slots")
	flag.Parse()

	fmt.Printf("TupleDB Protocol Benchmark (N=%d)\n", *nReq)
	fmt.Printf("  HTTP=%s  TCP=%s\n", *httpAddr, *tcpAddr)
	fmt.Println("---------------------------------------------------")

	fmt.Println(">> Starting HTTP Benchmark (JSON over HTTP 1.1)...")
	httpDuration := runHTTPBenchmark(*httpAddr, *nReq)
	fmt.Printf("   HTTP Time: %v | QPS: %.0f\n\n", httpDuration, float64(*nReq)/httpDuration.Seconds())

	fmt.Println(">> Starting TCP Benchmark (Binary Protocol)...")
	tcpDuration := runTCPBenchmark(*tcpAddr, *nReq, *slots)
	fmt.Printf("   TCP  Time: %v | QPS: %.0f\n", tcpDuration, float64(*nReq)/tcpDuration.Seconds())

	fmt.Println("---------------------------------------------------")
	speedup := httpDuration.Seconds() / tcpDuration.Seconds()
	fmt.Printf("Conclusion: TCP is %.2fx faster than HTTP!\n", speedup)
}

func runHTTPBenchmark(httpAddr string, n int) time.Duration {
	start := time.Now()
	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 100,
		},
	}

	for i := 0; i < n; i++ {
		data := map[string]interface{}{
			"key":   fmt.Sprintf("%d,%d", i/100, i%100),
			"value": fmt.Sprintf("payload-%d", i),
		}
		body, _ := json.Marshal(data)

		resp, err := client.Post(httpAddr+"/api/put", "application/json", bytes.NewReader(body))
		if err != nil {
			log.Fatalf("HTTP put failed at i=%d: %v", i, err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return time.Since(start)
}

func runTCPBenchmark(tcpAddr string, n, slots int) time.Duration {
	conn, err := net.DialTimeout("tcp", tcpAddr, 5*time.Second)
	if err != nil {
		log.Fatalf("TCP connect failed: %v", err)
	}
	defer conn.Close()

	start := time.Now()
	k := key.New(slots)
	for i := 0; i < n; i++ {
		k.ZeroOut()
		k.AddUint64(uint64(i/100), 0)
		if slots > 1 {
			k.AddUint64(uint64(i%100), 8)
		}
		val := []byte(fmt.Sprintf("payload-%d", i))

		if err := protocol.Encode(conn, protocol.OpPut, k.Raw(), val); err != nil {
			log.Fatalf("TCP put failed at i=%d: %v", i, err)
		}
		if _, err := protocol.Decode(conn); err != nil {
			log.Fatalf("TCP response failed at i=%d: %v", i, err)
		}
	}
	return time.Since(start)
}
