package main

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pior/hotrod"
)

type OperationType string

const (
	CacheHit    OperationType = "cache-hit"
	CacheMiss   OperationType = "cache-miss"
	Conditional OperationType = "conditional"
	Remove      OperationType = "remove"
	All         OperationType = "all"
)

type BenchCmd struct {
	Operation   string        `kong:"short='o',default='all',enum='cache-hit,cache-miss,conditional,remove,all',help='Operation to benchmark'"`
	Duration    time.Duration `kong:"short='d',default='5s',help='Duration of each benchmark'"`
	Concurrency int           `kong:"short='n',default='1',help='Number of workers, each with its own connection'"`
}

type BenchmarkResult struct {
	Operation    OperationType
	Duration     time.Duration
	TotalOps     int64
	Successes    int64
	Failures     int64
	AvgLatency   time.Duration
	OpsPerSecond float64
	Correctness  bool
	ErrorMessage string
}

// benchOp runs one operation for worker and reports whether it succeeded
// with the expected result.
type benchOp func(ctx context.Context, client *hotrod.RemoteCache, worker, i int) (bool, error)

func (c *BenchCmd) Run(a *app) error {
	fmt.Fprintf(a.out, "Hot Rod Benchmark Tool\n")
	fmt.Fprintf(a.out, "======================\n")
	fmt.Fprintf(a.out, "Operation: %s\n", c.Operation)
	fmt.Fprintf(a.out, "Duration: %v\n", c.Duration)
	fmt.Fprintf(a.out, "Concurrency: %d\n", c.Concurrency)
	fmt.Fprintf(a.out, "Server: %s\n", a.addr)
	fmt.Fprintln(a.out)

	clients := make([]*hotrod.RemoteCache, c.Concurrency)
	for i := range clients {
		client, err := a.dial(context.Background())
		if err != nil {
			return fmt.Errorf("failed to connect worker %d: %w", i, err)
		}
		defer client.Close()
		clients[i] = client
	}
	a.serveMetrics(clients...)

	operations := []OperationType{OperationType(c.Operation)}
	if OperationType(c.Operation) == All {
		operations = []OperationType{CacheHit, CacheMiss, Conditional, Remove}
	}

	for _, op := range operations {
		fmt.Fprintf(a.out, "--- Running %s benchmark ---\n", op)
		result := a.runBenchmark(clients, op, c.Duration)
		a.printResult(result)
	}
	return nil
}

func (a *app) runBenchmark(clients []*hotrod.RemoteCache, operation OperationType, duration time.Duration) *BenchmarkResult {
	value := []byte("bench-value")
	run := strconv.FormatInt(time.Now().UnixNano(), 36)

	var op benchOp
	switch operation {
	case CacheHit:
		// 1 put then gets
		op = func(ctx context.Context, client *hotrod.RemoteCache, worker, i int) (bool, error) {
			key := "bench-hit-" + strconv.Itoa(worker)
			if i == 0 {
				if _, err := client.Put(ctx, hotrod.Item{Key: key, Value: value, Lifespan: time.Hour}); err != nil {
					return false, err
				}
			}
			item, err := client.Get(ctx, key)
			return item.Found && bytes.Equal(item.Value, value), err
		}
	case CacheMiss:
		op = func(ctx context.Context, client *hotrod.RemoteCache, worker, i int) (bool, error) {
			item, err := client.Get(ctx, "bench-miss-"+strconv.Itoa(worker)+"-"+strconv.Itoa(i))
			return !item.Found, err
		}
	case Conditional:
		// even iterations store, odd ones must be rejected
		op = func(ctx context.Context, client *hotrod.RemoteCache, worker, i int) (bool, error) {
			key := "bench-cond-" + run + "-" + strconv.Itoa(worker) + "-" + strconv.Itoa(i/2)
			result, err := client.PutIfAbsent(ctx, hotrod.Item{Key: key, Value: value, Lifespan: time.Minute})
			return result.Applied() == (i%2 == 0), err
		}
	case Remove:
		op = func(ctx context.Context, client *hotrod.RemoteCache, worker, i int) (bool, error) {
			key := "bench-remove-" + strconv.Itoa(worker)
			if _, err := client.Put(ctx, hotrod.Item{Key: key, Value: value}); err != nil {
				return false, err
			}
			result, err := client.Remove(ctx, key)
			return result.Applied(), err
		}
	default:
		return &BenchmarkResult{
			Operation:    operation,
			ErrorMessage: fmt.Sprintf("Unknown operation: %s", operation),
		}
	}

	result := &BenchmarkResult{Operation: operation, Correctness: true}
	var totalOps, successes, failures, incorrect, totalLatency int64
	var firstErr atomic.Value

	startTime := time.Now()
	var wg sync.WaitGroup

	for worker, client := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for i := 0; time.Since(startTime) < duration; i++ {
				ctx, cancel := a.opContext()
				opStart := time.Now()
				ok, err := op(ctx, client, worker, i)
				latency := time.Since(opStart)
				cancel()

				atomic.AddInt64(&totalOps, 1)
				atomic.AddInt64(&totalLatency, int64(latency))

				switch {
				case err != nil:
					atomic.AddInt64(&failures, 1)
					firstErr.CompareAndSwap(nil, err.Error())
				case !ok:
					atomic.AddInt64(&successes, 1)
					atomic.AddInt64(&incorrect, 1)
				default:
					atomic.AddInt64(&successes, 1)
				}
			}
		}()
	}

	wg.Wait()

	result.Duration = time.Since(startTime)
	result.TotalOps = totalOps
	result.Successes = successes
	result.Failures = failures
	if totalOps > 0 {
		result.AvgLatency = time.Duration(totalLatency / totalOps)
		result.OpsPerSecond = float64(totalOps) / result.Duration.Seconds()
	}
	if incorrect > 0 {
		result.Correctness = false
		result.ErrorMessage = fmt.Sprintf("%d unexpected results", incorrect)
	}
	if msg, ok := firstErr.Load().(string); ok && result.ErrorMessage == "" {
		result.ErrorMessage = msg
	}

	return result
}

func (a *app) printResult(result *BenchmarkResult) {
	fmt.Fprintf(a.out, "Operation: %s\n", result.Operation)
	fmt.Fprintf(a.out, "Duration: %v\n", result.Duration)
	fmt.Fprintf(a.out, "Total Operations: %d\n", result.TotalOps)
	fmt.Fprintf(a.out, "Successes: %d\n", result.Successes)
	fmt.Fprintf(a.out, "Failures: %d\n", result.Failures)
	if result.TotalOps > 0 {
		fmt.Fprintf(a.out, "Success Rate: %.2f%%\n", float64(result.Successes)/float64(result.TotalOps)*100)
		fmt.Fprintf(a.out, "Ops/sec: %.2f\n", result.OpsPerSecond)
		fmt.Fprintf(a.out, "Avg Latency: %v\n", result.AvgLatency)
	}
	fmt.Fprintf(a.out, "Correctness: %t\n", result.Correctness)
	if result.ErrorMessage != "" {
		fmt.Fprintf(a.out, "Error: %s\n", result.ErrorMessage)
	}
	fmt.Fprintln(a.out)
}
