// Command bench load-tests a chaingate instance: N concurrent WebSocket
// connections each issue get_dynamic_global_properties calls back to back
// for the configured duration, and the tool reports throughput, latency
// percentiles, and the cache-hit ratio read back from /status.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type requestFrame struct {
	ID     int    `json:"id"`
	Method string `json:"method"`
}

type statusDoc struct {
	Cache struct {
		Hits   int64 `json:"hits"`
		Misses int64 `json:"misses"`
	} `json:"cache"`
}

func main() {
	var (
		addr        = flag.String("addr", "127.0.0.1:8765", "gateway HOST:PORT")
		concurrency = flag.Int("concurrency", 50, "number of concurrent WebSocket connections")
		duration    = flag.Duration("duration", 10*time.Second, "how long to run")
		timeout     = flag.Duration("timeout", 2*time.Second, "per-request timeout")
	)
	flag.Parse()

	before := fetchStatus(*addr)

	lat := make([]float64, 0, 1024)
	var latMu sync.Mutex
	var successes, failures int64
	var countMu sync.Mutex

	deadline := time.Now().Add(*duration)
	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(*addr, deadline, *timeout, &lat, &latMu, &successes, &failures, &countMu)
		}()
	}
	wg.Wait()

	after := fetchStatus(*addr)

	if len(lat) == 0 {
		fmt.Println("no successful requests")
		return
	}
	sort.Float64s(lat)
	qps := float64(len(lat)) / duration.Seconds()

	fmt.Printf("addr=%s concurrency=%d duration=%s\n", *addr, *concurrency, *duration)
	fmt.Printf("requests=%d failures=%d qps=%.1f\n", successes, failures, qps)
	fmt.Printf("latency_ms p50=%.3f p95=%.3f p99=%.3f min=%.3f max=%.3f\n",
		percentile(lat, 50), percentile(lat, 95), percentile(lat, 99), lat[0], lat[len(lat)-1])

	if before != nil && after != nil {
		hitDelta := after.Cache.Hits - before.Cache.Hits
		missDelta := after.Cache.Misses - before.Cache.Misses
		total := hitDelta + missDelta
		ratio := 0.0
		if total > 0 {
			ratio = float64(hitDelta) / float64(total) * 100
		}
		fmt.Printf("cache hit_ratio=%.1f%% (hits=%d misses=%d)\n", ratio, hitDelta, missDelta)
	}
}

func runWorker(addr string, deadline time.Time, timeout time.Duration, lat *[]float64, latMu *sync.Mutex, successes, failures *int64, countMu *sync.Mutex) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		countMu.Lock()
		*failures++
		countMu.Unlock()
		return
	}
	defer conn.Close()
	_, _, _ = conn.ReadMessage() // drain hello

	req, _ := json.Marshal(requestFrame{ID: 1, Method: "get_dynamic_global_properties"})

	for time.Now().Before(deadline) {
		start := time.Now()
		_ = conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
			countMu.Lock()
			*failures++
			countMu.Unlock()
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(timeout))
		if _, _, err := conn.ReadMessage(); err != nil {
			countMu.Lock()
			*failures++
			countMu.Unlock()
			return
		}
		ms := float64(time.Since(start).Microseconds()) / 1000.0

		latMu.Lock()
		*lat = append(*lat, ms)
		latMu.Unlock()

		countMu.Lock()
		*successes++
		countMu.Unlock()
	}
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}
	idx := int(float64(len(sorted))*float64(p)/100.0) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func fetchStatus(addr string) *statusDoc {
	resp, err := http.Get("http://" + addr + "/status")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	var doc statusDoc
	if json.NewDecoder(resp.Body).Decode(&doc) != nil {
		return nil
	}
	return &doc
}
