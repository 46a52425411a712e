// Command smmallocstats runs a small allocator instance behind a single
// introspection endpoint, giving pool.Stats a concrete, running home.
package main

import (
	"flag"
	"log"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"

	"github.com/mkbeh/smmalloc/pool"
)

var (
	listenAddr      = flag.String("addr", ":8080", "address to listen on")
	bucketsCount    = flag.Int("buckets", 32, "number of size-class buckets")
	bucketSizeBytes = flag.Int("bucket-size", 1<<20, "bytes reserved per bucket")
	warmupThreads   = flag.Int("warm-threads", 4, "number of warmed-up demo thread caches to keep alive")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	flag.Parse()

	stats := pool.NewStats()
	a, err := pool.New(pool.Config{
		BucketsCount:    *bucketsCount,
		BucketSizeBytes: uintptr(*bucketSizeBytes),
		Stats:           stats,
	})
	if err != nil {
		log.Fatalf("smmallocstats: failed to create allocator: %v", err)
	}
	defer a.Close()

	caches := make([]*pool.ThreadCache, *warmupThreads)
	for i := range caches {
		caches[i] = a.NewThreadCache(pool.Warm, 4096)
	}
	defer func() {
		for _, tc := range caches {
			tc.Close()
		}
	}()

	handler := func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/stats":
			serveStats(ctx, stats, *bucketsCount)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}

	log.Printf("smmallocstats: listening on %s", *listenAddr)
	if err := fasthttp.ListenAndServe(*listenAddr, handler); err != nil {
		log.Fatalf("smmallocstats: server stopped: %v", err)
	}
}

func serveStats(ctx *fasthttp.RequestCtx, stats *pool.Stats, bucketsCount int) {
	snap := stats.Snapshot(bucketsCount)
	body, err := json.Marshal(snap)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
