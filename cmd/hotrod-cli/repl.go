package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pior/hotrod"
	"github.com/pior/hotrod/protocol"
)

const replHelp = `Commands:
  get <key>                          - Get a value
  getv <key>                         - Get a value with its version
  put <key> <value> [lifespan]       - Store a value, lifespan in seconds
  putifabsent <key> <value>          - Store a value if the key is absent
  replace <key> <value>              - Store a value if the key is present
  replacev <key> <value> <version>   - Store a value if the version matches
  remove <key>                       - Remove a key
  removev <key> <version>            - Remove a key if the version matches
  contains <key>                     - Check whether a key is present
  clear                              - Remove every entry of the cache
  bulk [count]                       - Dump entries, all of them by default
  stats                              - Show server statistics
  clientstats                        - Show client counters
  ping                               - Ping the server
  quit                               - Exit the CLI`

func (a *app) repl(in io.Reader, client *hotrod.RemoteCache) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(a.out, "> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		if quit := a.dispatch(client, strings.ToLower(parts[0]), parts[1:]); quit {
			fmt.Fprintln(a.out, "Goodbye!")
			return nil
		}
	}

	return scanner.Err()
}

// dispatch runs one shell command and reports whether the shell should exit.
func (a *app) dispatch(client *hotrod.RemoteCache, command string, args []string) bool {
	ctx, cancel := a.opContext()
	defer cancel()

	usage := func(u string) { fmt.Fprintf(a.out, "Usage: %s\n", u) }

	switch command {
	case "get":
		if len(args) != 1 {
			usage("get <key>")
			return false
		}
		a.handleGet(ctx, client, args[0])

	case "getv":
		if len(args) != 1 {
			usage("getv <key>")
			return false
		}
		a.handleGetVersioned(ctx, client, args[0])

	case "put", "set":
		if len(args) < 2 || len(args) > 3 {
			usage("put <key> <value> [lifespan_seconds]")
			return false
		}
		item := hotrod.Item{Key: args[0], Value: []byte(args[1])}
		if len(args) == 3 {
			secs, err := strconv.Atoi(args[2])
			if err != nil {
				fmt.Fprintf(a.out, "Invalid lifespan: %v\n", err)
				return false
			}
			item.Lifespan = time.Duration(secs) * time.Second
		}
		a.handlePut(ctx, client, item)

	case "putifabsent", "replace":
		if len(args) != 2 {
			usage(command + " <key> <value>")
			return false
		}
		a.handleTwoWay(ctx, client, command, hotrod.Item{Key: args[0], Value: []byte(args[1])})

	case "replacev":
		if len(args) != 3 {
			usage("replacev <key> <value> <version>")
			return false
		}
		version, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			fmt.Fprintf(a.out, "Invalid version: %v\n", err)
			return false
		}
		a.handleReplaceWithVersion(ctx, client, hotrod.Item{Key: args[0], Value: []byte(args[1])}, version)

	case "remove", "delete", "del":
		if len(args) != 1 {
			usage("remove <key>")
			return false
		}
		a.handleRemove(ctx, client, args[0])

	case "removev":
		if len(args) != 2 {
			usage("removev <key> <version>")
			return false
		}
		version, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			fmt.Fprintf(a.out, "Invalid version: %v\n", err)
			return false
		}
		a.handleRemoveWithVersion(ctx, client, args[0], version)

	case "contains":
		if len(args) != 1 {
			usage("contains <key>")
			return false
		}
		a.handleContains(ctx, client, args[0])

	case "clear":
		a.handleClear(ctx, client)

	case "bulk":
		count := 0
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				fmt.Fprintf(a.out, "Invalid count: %v\n", err)
				return false
			}
			count = n
		}
		a.handleBulk(ctx, client, count)

	case "stats":
		a.handleStats(ctx, client)

	case "clientstats":
		a.handleClientStats(client)

	case "ping":
		a.handlePing(ctx, client)

	case "help":
		fmt.Fprintln(a.out, replHelp)

	case "quit", "exit":
		return true

	default:
		fmt.Fprintf(a.out, "Unknown command: %s. Type 'help' for available commands.\n", command)
	}

	return false
}

func (a *app) printError(err error, duration time.Duration) {
	var protoErr *protocol.ProtocolError
	if errors.As(err, &protoErr) {
		fmt.Fprintf(a.out, "Server error %s: %s (took %v)\n", protoErr.Status, protoErr.Message, duration)
		return
	}
	fmt.Fprintf(a.out, "Error: %v (took %v)\n", err, duration)
}

func (a *app) handleGet(ctx context.Context, client *hotrod.RemoteCache, key string) {
	start := time.Now()
	item, err := client.Get(ctx, key)
	duration := time.Since(start)

	if err != nil {
		a.printError(err, duration)
		return
	}
	if !item.Found {
		fmt.Fprintf(a.out, "Key not found (took %v)\n", duration)
		return
	}
	fmt.Fprintf(a.out, "Value: %s (took %v)\n", item.Value, duration)
}

func (a *app) handleGetVersioned(ctx context.Context, client *hotrod.RemoteCache, key string) {
	start := time.Now()
	vv, err := client.GetVersioned(ctx, key)
	duration := time.Since(start)

	if err != nil {
		a.printError(err, duration)
		return
	}
	if !vv.Found {
		fmt.Fprintf(a.out, "Key not found (took %v)\n", duration)
		return
	}
	fmt.Fprintf(a.out, "Value: %s\nVersion: %d (took %v)\n", vv.Value, vv.Version, duration)
}

func (a *app) handlePut(ctx context.Context, client *hotrod.RemoteCache, item hotrod.Item) {
	start := time.Now()
	_, err := client.Put(ctx, item)
	duration := time.Since(start)

	if err != nil {
		a.printError(err, duration)
		return
	}
	fmt.Fprintf(a.out, "Stored successfully (took %v)\n", duration)
}

func (a *app) handleTwoWay(ctx context.Context, client *hotrod.RemoteCache, command string, item hotrod.Item) {
	start := time.Now()
	var result hotrod.TwoWayResult
	var err error
	if command == "replace" {
		result, err = client.Replace(ctx, item, hotrod.ReturnPrevious())
	} else {
		result, err = client.PutIfAbsent(ctx, item, hotrod.ReturnPrevious())
	}
	duration := time.Since(start)

	if err != nil {
		a.printError(err, duration)
		return
	}
	a.printOutcome(result.Outcome, result.Previous, duration)
}

func (a *app) handleReplaceWithVersion(ctx context.Context, client *hotrod.RemoteCache, item hotrod.Item, version uint64) {
	start := time.Now()
	result, err := client.ReplaceWithVersion(ctx, item, version, hotrod.ReturnPrevious())
	duration := time.Since(start)

	if err != nil {
		a.printError(err, duration)
		return
	}
	a.printOutcome(result.Outcome, result.Previous, duration)
}

func (a *app) handleRemove(ctx context.Context, client *hotrod.RemoteCache, key string) {
	start := time.Now()
	result, err := client.Remove(ctx, key, hotrod.ReturnPrevious())
	duration := time.Since(start)

	if err != nil {
		a.printError(err, duration)
		return
	}
	if result.Outcome == hotrod.KeyAbsent {
		fmt.Fprintf(a.out, "Key not found (took %v)\n", duration)
		return
	}
	a.printOutcome(result.Outcome, result.Previous, duration)
}

func (a *app) handleRemoveWithVersion(ctx context.Context, client *hotrod.RemoteCache, key string, version uint64) {
	start := time.Now()
	result, err := client.RemoveWithVersion(ctx, key, version, hotrod.ReturnPrevious())
	duration := time.Since(start)

	if err != nil {
		a.printError(err, duration)
		return
	}
	a.printOutcome(result.Outcome, result.Previous, duration)
}

func (a *app) printOutcome(outcome hotrod.Outcome, previous []byte, duration time.Duration) {
	if previous != nil {
		fmt.Fprintf(a.out, "Outcome: %s, previous: %s (took %v)\n", outcome, previous, duration)
		return
	}
	fmt.Fprintf(a.out, "Outcome: %s (took %v)\n", outcome, duration)
}

func (a *app) handleContains(ctx context.Context, client *hotrod.RemoteCache, key string) {
	start := time.Now()
	found, err := client.ContainsKey(ctx, key)
	duration := time.Since(start)

	if err != nil {
		a.printError(err, duration)
		return
	}
	fmt.Fprintf(a.out, "Contains: %t (took %v)\n", found, duration)
}

func (a *app) handleClear(ctx context.Context, client *hotrod.RemoteCache) {
	start := time.Now()
	_, err := client.Clear(ctx)
	duration := time.Since(start)

	if err != nil {
		a.printError(err, duration)
		return
	}
	fmt.Fprintf(a.out, "Cache cleared (took %v)\n", duration)
}

func (a *app) handleBulk(ctx context.Context, client *hotrod.RemoteCache, count int) {
	start := time.Now()
	entries, err := client.BulkGet(ctx, count)
	duration := time.Since(start)

	if err != nil {
		a.printError(err, duration)
		return
	}

	for _, key := range slices.Sorted(maps.Keys(entries)) {
		fmt.Fprintf(a.out, "  %s: %s\n", key, entries[key])
	}
	fmt.Fprintf(a.out, "Retrieved %d entries (took %v)\n", len(entries), duration)
}

func (a *app) handleStats(ctx context.Context, client *hotrod.RemoteCache) {
	start := time.Now()
	stats, err := client.Stats(ctx)
	duration := time.Since(start)

	if err != nil {
		a.printError(err, duration)
		return
	}
	if len(stats) == 0 {
		fmt.Fprintln(a.out, "No statistics available")
		return
	}

	fmt.Fprintln(a.out, "Server Statistics:")
	for _, name := range slices.Sorted(maps.Keys(stats)) {
		fmt.Fprintf(a.out, "  %s: %s\n", name, stats[name])
	}
}

func (a *app) handleClientStats(client *hotrod.RemoteCache) {
	stats := client.ClientStats()

	fmt.Fprintln(a.out, "Client Statistics:")
	fmt.Fprintf(a.out, "  Gets: %d (hits %d)\n", stats.Gets, stats.GetHits)
	fmt.Fprintf(a.out, "  Writes: %d\n", stats.Writes)
	fmt.Fprintf(a.out, "  Removes: %d\n", stats.Removes)
	fmt.Fprintf(a.out, "  Not Applied: %d\n", stats.NotApplied)
	fmt.Fprintf(a.out, "  Others: %d\n", stats.Others)
	fmt.Fprintf(a.out, "  Errors: %d (server %d)\n", stats.Errors, stats.ServerErrors)
	fmt.Fprintf(a.out, "  Circuit Breaker: %s\n", client.CircuitBreakerState())
}

func (a *app) handlePing(ctx context.Context, client *hotrod.RemoteCache) {
	start := time.Now()
	_, err := client.Ping(ctx)
	duration := time.Since(start)

	if err != nil {
		fmt.Fprintf(a.out, "Ping failed: %v (took %v)\n", err, duration)
		return
	}

	fmt.Fprintf(a.out, "Ping successful (took %v)\n", duration)
}
