package jobs

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-scraper/internal/checkpoint"
	"github.com/sells-group/lead-scraper/internal/export"
	"github.com/sells-group/lead-scraper/internal/model"
	"github.com/sells-group/lead-scraper/internal/pipeline"
)

// JobDir returns the checkpoint directory of a job under root.
func JobDir(root, niche, region, id string) string {
	return filepath.Join(root, export.Slug(niche, region)+"_"+id)
}

// DiscoverResumable scans root for job directories with a meta record and
// returns the jobs that can be resumed, in directory order. Complete jobs and
// unreadable directories are skipped.
func DiscoverResumable(root string, log *zap.Logger) ([]*pipeline.Job, error) {
	if log == nil {
		log = zap.L()
	}
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "jobs: read storage root %s", root)
	}

	var out []*pipeline.Job
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		meta, err := checkpoint.LoadMeta(dir)
		if err != nil {
			log.Warn("jobs: skipping unreadable job meta", zap.String("dir", dir), zap.Error(err))
			continue
		}
		if meta == nil || meta.Status.Is(model.PhaseComplete) {
			continue
		}
		if meta.LocalID == "" {
			meta.LocalID = e.Name()
		}

		store, err := checkpoint.Open(dir)
		if err != nil {
			log.Warn("jobs: skipping unreadable checkpoint", zap.String("dir", dir), zap.Error(err))
			continue
		}
		job := pipeline.RestoreJob(*meta, store, log)
		if job.CanResume() {
			out = append(out, job)
		}
	}
	return out, nil
}
