package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"tupledb/pkg/client"
	"tupledb/pkg/key"
)

const Prompt = "tuple> "

var keySlots int

func main() {
	serverAddr := flag.String("addr", "localhost:9090", "TupleDB TCP Server Address")
	flag.IntVar(&keySlots, "slots", 2, "Composite key width in 8-byte slots (must match the server)")
	flag.Parse()

	fmt.Printf("TupleDB CLI (Target: %s, Key: %d slots)\n", *serverAddr, keySlots)
	fmt.Println("Connecting...")

	cli, err := client.Dial(*serverAddr)
	if err != nil {
		fmt.Printf("Connection failed: %v\n", err)
		fmt.Println("Tip: Ensure the server is running (e.g. go run cmd/server/main.go).")
		return
	}
	defer cli.Close()
	fmt.Println("Connected! Type 'help' for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(Prompt)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])

		switch cmd {
		case "put", "set":
			handlePut(cli, parts)
		case "get":
			handleGet(cli, parts)
		case "del", "rm":
			handleDel(cli, parts)
		case "scan":
			handleScan(cli, parts)
		case "help":
			printHelp()
		case "exit", "quit":
			fmt.Println("Bye!")
			return
		default:
			fmt.Printf("Unknown command: '%s'. Type 'help'.\n", cmd)
		}
	}
}

func parseKey(text string) (key.Key, bool) {
	k, err := key.Parse(text, keySlots)
	if err != nil {
		fmt.Printf("Error: Key must be comma-separated integers (e.g. 1,2): %v\n", err)
		return key.Key{}, false
	}
	return k, true
}

func handlePut(cli *client.Client, parts []string) {
	if len(parts) < 3 {
		fmt.Println("Usage: put <key_tuple> <value_string>   (e.g. put 1,2 hello)")
		return
	}

	k, ok := parseKey(parts[1])
	if !ok {
		return
	}

	value := strings.Join(parts[2:], " ")

	start := time.Now()
	if err := cli.Put(k, []byte(value)); err != nil {
		fmt.Printf("Put failed: %v\n", err)
		return
	}
	fmt.Printf("OK (%v)\n", time.Since(start))
}

func handleGet(cli *client.Client, parts []string) {
	if len(parts) < 2 {
		fmt.Println("Usage: get <key_tuple>   (e.g. get 1,2)")
		return
	}

	k, ok := parseKey(parts[1])
	if !ok {
		return
	}

	start := time.Now()
	val, err := cli.Get(k)
	if err != nil {
		fmt.Printf("Get failed: %v\n", err)
		return
	}
	fmt.Printf("%s (%v)\n", string(val), time.Since(start))
}

func handleDel(cli *client.Client, parts []string) {
	if len(parts) < 2 {
		fmt.Println("Usage: del <key_tuple>")
		return
	}

	k, ok := parseKey(parts[1])
	if !ok {
		return
	}

	if err := cli.Delete(k); err != nil {
		fmt.Printf("Delete failed: %v\n", err)
		return
	}
	fmt.Println("OK")
}

func handleScan(cli *client.Client, parts []string) {
	if len(parts) < 3 {
		fmt.Println("Usage: scan <start_tuple> <end_tuple>   (e.g. scan 1,0 1,99)")
		return
	}

	start, ok := parseKey(parts[1])
	if !ok {
		return
	}
	end, ok := parseKey(parts[2])
	if !ok {
		return
	}

	t0 := time.Now()
	records, err := cli.Scan(start, end)
	if err != nil {
		fmt.Printf("Scan failed: %v\n", err)
		return
	}
	for _, r := range records {
		fmt.Printf("  %s => %s\n", r.Key, string(r.Value))
	}
	fmt.Printf("%d record(s) (%v)\n", len(records), time.Since(t0))
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  put <key_tuple> <value>   Write a value (key: comma-separated slot values)")
	fmt.Println("  get <key_tuple>           Read a value")
	fmt.Println("  del <key_tuple>           Delete a key")
	fmt.Println("  scan <start> <end>        Range scan, endpoints inclusive")
	fmt.Println("  exit                      Quit")
}
