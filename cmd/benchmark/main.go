package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	maxPage     int
	pageSize    int
)

// Metrics
var (
	totalRequests uint64
	success200    uint64
	fail4xx       uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.IntVar(&maxPage, "max-page", 20, "Highest donation page to request")
	flag.IntVar(&pageSize, "page-size", 10, "Donation page size")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark | Workers: %d | Duration: %s | Pages: 1..%d", concurrency, duration, maxPage)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		page := 1 + rand.Intn(maxPage)
		url := fmt.Sprintf("%s/api/v1/donations?page=%d&page_size=%d", targetURL, page, pageSize)

		resp, err := client.Get(url)
		atomic.AddUint64(&totalRequests, 1)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			atomic.AddUint64(&success200, 1)
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			atomic.AddUint64(&fail4xx, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

func printResults(elapsed time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	rps := float64(total) / elapsed.Seconds()

	fmt.Println("\n--- Benchmark Results ---")
	fmt.Printf("Elapsed:    %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Requests:   %d (%.1f req/s)\n", total, rps)
	fmt.Printf("200 OK:     %d\n", atomic.LoadUint64(&success200))
	fmt.Printf("4xx:        %d\n", atomic.LoadUint64(&fail4xx))
	fmt.Printf("Other/Err:  %d\n", atomic.LoadUint64(&failOther))
}
