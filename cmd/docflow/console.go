package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/altafino/docflow/internal/app"
	"github.com/altafino/docflow/internal/engine"
	"github.com/altafino/docflow/internal/models"
	"github.com/altafino/docflow/internal/worker"
)

// consoleListener prints run events as they are dispatched.
func consoleListener[R any](w io.Writer) worker.Listener[R] {
	return worker.Listener[R]{
		OnPhaseChange: func(p engine.Phase) {
			fmt.Fprintf(w, "== %s\n", p)
		},
		OnLog: func(e engine.LogEntry) {
			fmt.Fprintf(w, "%s %-5s %s\n", e.Time.Format("15:04:05"), e.Severity, e.Message)
		},
		OnProgress: func(p engine.ProgressEvent) {
			if p.Total == 0 || p.Detail == "" {
				return
			}
			fmt.Fprintf(w, "   [%3d%%] %d/%d %s\n", p.Percent(), p.Current, p.Total, p.Detail)
		},
	}
}

func consoleListeners(w io.Writer) app.Listeners {
	return app.Listeners{
		Extract:  consoleListener[models.AttachmentRecord](w),
		Classify: consoleListener[models.ClassificationRecord](w),
	}
}

// follow drives the dispatch loop on the calling goroutine until the job is
// over. The first interrupt cancels the run, a second one exits.
func follow(ctx context.Context, w io.Writer, job *app.Job, loop *worker.Loop) (*app.Summary, error) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	stop := make(chan struct{})
	go func() {
		defer close(stop)
		cancelled := false
		for {
			select {
			case <-sigs:
				if cancelled {
					fmt.Fprintln(w, "interrupted again, exiting")
					os.Exit(130)
				}
				cancelled = true
				fmt.Fprintln(w, "cancelling, waiting for the current item")
				job.Cancel()
			case <-job.Done():
				return
			}
		}
	}()
	loop.Run(stop)

	return job.Wait(ctx)
}

func printSummary(w io.Writer, s *app.Summary) {
	if s == nil {
		return
	}
	fmt.Fprintf(w, "\n%s %s: %s in %s\n", s.Engine, s.JobID, s.State, s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  processed %d, skipped %d, errored %d\n", s.Counts.Processed, s.Counts.Skipped, s.Counts.Errored)
	for _, p := range s.Reports {
		fmt.Fprintf(w, "  list: %s\n", p)
	}
	fmt.Fprintf(w, "  run id: %s\n", s.RunID)
}
