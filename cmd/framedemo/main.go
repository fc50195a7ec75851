// Command framedemo drives a frame loop on a registered device backend,
// uploading a fresh vertex buffer every frame and retiring the old one
// through the delete queue.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gogpu/frameloop"
	"github.com/gogpu/frameloop/backend"
	"github.com/gogpu/frameloop/backend/simulated"
)

func main() {
	var (
		name     = flag.String("backend", backend.Simulated, "device backend ("+strings.Join(backend.Available(), ", ")+")")
		frames   = flag.Int("frames", 120, "frames to run before closing (0 runs until interrupted)")
		threads  = flag.Int("threads", 2, "recording workers (0 records on the main goroutine)")
		tasks    = flag.Int("tasks", 3, "record and submit tasks")
		fps      = flag.Float64("fps", 60, "maximum frame rate (0 is unpaced)")
		latency  = flag.Duration("latency", 4*time.Millisecond, "simulated device latency per submission")
		upload   = flag.Int("upload", 4096, "bytes uploaded per frame")
		inFlight = flag.Int("in-flight", frameloop.DefaultMaxFramesInFlight, "maximum frames in flight")
		verbose  = flag.Bool("v", false, "log per-frame diagnostics")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	frameloop.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	b, err := backend.Open(*name)
	if err != nil {
		log.Fatalf("Failed to open backend: %v", err)
	}
	device := b.Device()
	sim, isSim := simulated.FromBackend(b)
	if isSim {
		sim.SetLatency(*latency)
	}

	pool := frameloop.NewStagingPool(b.Staging(), frameloop.StagingPoolConfig{BudgetBytes: 64 << 20})

	viewer, err := frameloop.NewViewer(
		frameloop.WithThreads(*threads),
		frameloop.WithMaxFrameRate(*fps),
		frameloop.WithMaxFramesInFlight(*inFlight),
		frameloop.WithRetentionWindow(uint64(*inFlight)+1),
	)
	if err != nil {
		log.Fatalf("Failed to create viewer: %v", err)
	}

	window := simulated.NewWindow("main")
	viewer.AddPresentationTarget(window)
	viewer.AddEventHandler(frameloop.CloseHandler(viewer))

	transfers := frameloop.NewTransferQueue(frameloop.WithStagingAllocator(pool))
	for i := range max(*tasks, 1) {
		task := frameloop.NewRecordAndSubmitTask(taskName(i), device)
		if i == 0 {
			task.AddTransferQueue(transfers)
		}
		viewer.AddTask(task)
	}
	viewer.SetupThreading()

	payload := make([]byte, max(*upload, 1))
	var vertices backend.DeviceBuffer
	viewer.AddUpdateOperation(frameloop.UpdateFunc(func(stamp frameloop.FrameStamp) {
		for i := range payload {
			payload[i] = byte(stamp.FrameCount)
		}
		next, err := b.CreateBuffer("vertices", uint64(len(payload)))
		if err != nil {
			frameloop.Logger().Warn("create buffer failed", "frame", stamp.FrameCount, "err", err)
			return
		}
		if _, err := transfers.Copy(payload, frameloop.Whole(next)); err != nil {
			frameloop.Logger().Warn("upload failed", "frame", stamp.FrameCount, "err", err)
			next.Release()
			return
		}
		if vertices != nil {
			viewer.DeleteQueue().Add(vertices)
		}
		vertices = next

		if *frames > 0 && stamp.FrameCount+1 >= uint64(*frames) {
			window.RequestClose()
		}
	}), frameloop.RunEveryFrame)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	if err := viewer.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("Run: %v", err)
	}
	elapsed := time.Since(start)

	if err := viewer.Shutdown(); err != nil {
		log.Printf("Shutdown: %v", err)
	}
	if vertices != nil {
		vertices.Release()
	}
	pool.Close()
	if err := b.Close(); err != nil {
		log.Printf("Close backend: %v", err)
	}

	n := len(window.Presented())
	log.Printf("Presented %d frames in %v (%.1f fps)", n, elapsed.Round(time.Millisecond), float64(n)/elapsed.Seconds())
	log.Printf("%v", pool.Stats())
	log.Printf("%v", transfers.Stats())
	if isSim {
		s := sim.Stats()
		log.Printf("%v", s)
		if s.UseAfterRelease > 0 {
			log.Fatalf("%d copies touched released buffers", s.UseAfterRelease)
		}
	}
}

func taskName(i int) string {
	names := []string{"upload", "opaque", "transparent", "overlay"}
	if i < len(names) {
		return names[i]
	}
	return "pass" + strconv.Itoa(i)
}
