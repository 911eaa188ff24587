package preflight

import (
	"context"

	"shelfscan/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Media directory", cfg.Paths.MediaDir),
		CheckDirectoryAccess("Label directory", cfg.Paths.LabelDir),
	}

	switch cfg.Camera.Source {
	case "ffmpeg":
		results = append(results, CheckCameraDevice(cfg.Camera.Device))
		for _, status := range CheckSystemDeps(cfg) {
			res := Result{Name: status.Name, Passed: status.Available, Detail: status.Command}
			if !status.Available {
				res.Detail = status.Detail
			}
			results = append(results, res)
		}
	case "replay":
		results = append(results, CheckDirectoryAccess("Replay directory", cfg.Camera.ReplayDir))
	}

	results = append(results, CheckDatabase(ctx, cfg))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, res := range results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}
