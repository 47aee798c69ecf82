// Command schedulerdemo runs the scheduler against a real OS-backed
// host, serving Prometheus metrics and a devtools websocket stream so
// its dispatch behavior can be watched live.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fluxsched/scheduler/devtools"
	"github.com/fluxsched/scheduler/priority"
	"github.com/fluxsched/scheduler/scheduler"
	"github.com/fluxsched/scheduler/timeline"
	"github.com/fluxsched/scheduler/yield"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := timeline.NewStore()
	hub := devtools.NewHub(store, log.Default(), 50)
	go hub.Run(ctx)

	cfg := scheduler.DefaultConfig()
	cfg.Timeline = store
	cfg.Publisher = hub
	sched := scheduler.New(cfg)
	continuator := yield.NewPolyfillContinuator(sched)

	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/devtools/stream", hub.ServeWS)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	go demoWorkload(ctx, sched, continuator)

	server := &http.Server{Addr: ":8080"}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Println("scheduler demo listening on :8080 (metrics at /metrics, live stream at /devtools/stream)")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("listen: %v", err)
	}
}

// demoWorkload continuously posts a mix of priorities so the devtools
// stream and metrics endpoint have something to show.
func demoWorkload(ctx context.Context, sched *scheduler.Scheduler, continuator *yield.Continuator) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	n := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n++
			p := priority.UserVisible
			switch n % 3 {
			case 0:
				p = priority.UserBlocking
			case 2:
				p = priority.Background
			}
			i := n
			sched.PostTask(func() (any, error) {
				if err := continuator.Yield(ctx, yield.Options{}); err != nil {
					return nil, err
				}
				return fmt.Sprintf("task-%d done", i), nil
			}, scheduler.Options{Priority: p})
		}
	}
}
