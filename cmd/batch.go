package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/config"
	"github.com/nmthangdn2000/web-automation-tools/internal/engine"
)

// batchFile is the on-disk list of jobs for the batch command.
type batchFile struct {
	Jobs []engine.Job `yaml:"jobs"`
}

// batchResult is one line of batch output, in file order.
type batchResult struct {
	JobID  string             `json:"job_id"`
	Recipe string             `json:"recipe"`
	Report *schemas.RunReport `json:"report,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// loadBatch decodes a jobs file, assigns missing IDs and rejects duplicates.
func loadBatch(data []byte) ([]engine.Job, error) {
	var file batchFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: jobs file is empty", schemas.ErrValidation)
		}
		return nil, fmt.Errorf("%w: jobs file: %v", schemas.ErrValidation, err)
	}
	if len(file.Jobs) == 0 {
		return nil, fmt.Errorf("%w: jobs file lists no jobs", schemas.ErrValidation)
	}

	seen := make(map[string]bool, len(file.Jobs))
	for i := range file.Jobs {
		job := &file.Jobs[i]
		if job.Recipe == "" {
			return nil, fmt.Errorf("%w: job %d has no recipe", schemas.ErrValidation, i+1)
		}
		if job.ID == "" {
			job.ID = uuid.New().String()
		}
		if seen[job.ID] {
			return nil, fmt.Errorf("%w: duplicate job id %q", schemas.ErrValidation, job.ID)
		}
		seen[job.ID] = true
	}
	return file.Jobs, nil
}

func newBatchCmd(factory ComponentFactory) *cobra.Command {
	var sf sessionFlags

	batchCmd := &cobra.Command{
		Use:   "batch <jobs.yaml>",
		Short: "Run many recipe jobs concurrently, one session each",
		Long: `Reads a YAML file of jobs (recipe, params, session) and runs them on the job
engine's worker pool. Session fields a job leaves empty come from the
configuration and the session flags. Profile directories must not be shared
between jobs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading jobs file: %w", err)
			}
			jobs, err := loadBatch(data)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			cfg := config.Get()
			base := sf.apply(cmd, cfg.SessionConfig())
			for i := range jobs {
				jobs[i].Session = mergeSession(base, jobs[i].Session)
			}

			components, err := factory.Create(ctx, cfg)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			out := runBatch(cmd, components.Engine, jobs)
			if err := writeJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}

			failed := 0
			for _, r := range out {
				if r.Error != "" {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d jobs failed", failed, len(out))
			}
			return nil
		},
	}
	sf.register(batchCmd)
	return batchCmd
}

// runBatch feeds the engine and collects its results concurrently.
func runBatch(cmd *cobra.Command, e *engine.Engine, jobs []engine.Job) []batchResult {
	order := make(map[string]int, len(jobs))
	out := make([]batchResult, len(jobs))
	for i, job := range jobs {
		order[job.ID] = i
		out[i] = batchResult{JobID: job.ID, Recipe: job.Recipe, Error: "not started"}
	}

	queue := make(chan engine.Job)
	results := e.Start(cmd.Context(), queue)

	var g errgroup.Group
	g.Go(func() error {
		defer close(queue)
		for _, job := range jobs {
			select {
			case queue <- job:
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
		}
		return nil
	})
	g.Go(func() error {
		for res := range results {
			i := order[res.Job.ID]
			r := batchResult{JobID: res.Job.ID, Recipe: res.Job.Recipe}
			if res.Report.RunID != "" {
				report := res.Report
				r.Report = &report
			}
			if res.Err != nil {
				r.Error = res.Err.Error()
			}
			out[i] = r
		}
		return nil
	})
	_ = g.Wait()
	e.Stop()
	return out
}
