package pipeline

import (
	"log/slog"

	"github.com/Luiz-Frias/semcode/internal/domain"
	"github.com/Luiz-Frias/semcode/internal/ports"
	"github.com/Luiz-Frias/semcode/internal/reqctx"
)

// ReindexOutput summarizes one incremental reindex run.
type ReindexOutput struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
}

// ReindexDeps extends the pipeline deps with the file sync port.
type ReindexDeps struct {
	Deps
	FileSync ports.FileSync
}

// deleteQueryLimit bounds one page of the delete-by-path query.
const deleteQueryLimit = 1000

// ReindexByChange diffs the tree against the last snapshot, deletes
// chunks of removed and modified files, then indexes added and modified
// files through the regular pipeline.
func ReindexByChange(req *reqctx.Request, deps ReindexDeps, input IndexInput, ignorePatterns []string) (ReindexOutput, error) {
	if err := deps.FileSync.Initialize(req.Context(), ports.FileSyncInitOptions{
		IgnorePatterns: ignorePatterns,
	}); err != nil {
		return ReindexOutput{}, err
	}

	changes, err := deps.FileSync.CheckForChanges(req.Context())
	if err != nil {
		return ReindexOutput{}, err
	}
	output := ReindexOutput{
		Added:    len(changes.Added),
		Removed:  len(changes.Removed),
		Modified: len(changes.Modified),
	}
	if changes.Empty() {
		return output, nil
	}

	if err := req.EnsureNotCancelled("pipeline.reindex_delete"); err != nil {
		return ReindexOutput{}, err
	}
	stale := append(append([]string(nil), changes.Removed...), changes.Modified...)
	if err := deleteChunksForPaths(req, deps.Deps, input.Collection, stale); err != nil {
		return ReindexOutput{}, err
	}

	toIndex := append(append([]string(nil), changes.Added...), changes.Modified...)
	if len(toIndex) == 0 {
		return output, nil
	}

	indexInput := input
	indexInput.ForceReindex = false
	indexInput.FileList = toIndex
	if _, err := IndexCodebase(req, deps.Deps, indexInput); err != nil {
		return ReindexOutput{}, err
	}
	return output, nil
}

// deleteChunksForPaths removes every stored chunk whose relativePath is
// in paths.
func deleteChunksForPaths(req *reqctx.Request, deps Deps, collection domain.CollectionName, paths []string) error {
	has, err := deps.VectorDB.HasCollection(req.Context(), collection)
	if err != nil {
		return err
	}
	if !has {
		return nil
	}

	for _, relativePath := range paths {
		if err := req.EnsureNotCancelled("pipeline.delete_chunks"); err != nil {
			return err
		}
		for {
			docs, err := deps.VectorDB.Query(req.Context(), collection,
				ports.Filter{Field: "relativePath", Equals: relativePath},
				[]string{"id"}, deleteQueryLimit)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				break
			}
			ids := make([]domain.DocumentID, 0, len(docs))
			for _, doc := range docs {
				ids = append(ids, doc.ID)
			}
			if err := deps.VectorDB.Delete(req.Context(), collection, ids); err != nil {
				return err
			}
			slog.Debug("deleted stale chunks",
				slog.String("path", relativePath),
				slog.Int("count", len(ids)))
			if len(docs) < deleteQueryLimit {
				break
			}
		}
	}
	return nil
}

// ClearDeps are the collaborators of ClearIndex.
type ClearDeps struct {
	VectorDB  ports.VectorDB
	FileSync  ports.FileSync
	Telemetry ports.Telemetry
}

// ClearIndex drops the collection and deletes the snapshot. Both steps
// are idempotent; cancellation is honored between them.
func ClearIndex(req *reqctx.Request, deps ClearDeps, collection domain.CollectionName) error {
	count := func(name string) {
		if deps.Telemetry != nil {
			deps.Telemetry.Counter("clear."+name, 1, nil)
		}
	}

	if err := req.EnsureNotCancelled("pipeline.clear"); err != nil {
		count("aborted")
		return err
	}

	has, err := deps.VectorDB.HasCollection(req.Context(), collection)
	if err != nil {
		count("failed")
		return err
	}
	if has {
		if err := deps.VectorDB.DropCollection(req.Context(), collection); err != nil {
			count("failed")
			return err
		}
	}

	if err := req.EnsureNotCancelled("pipeline.clear"); err != nil {
		count("aborted")
		return err
	}
	if deps.FileSync != nil {
		if err := deps.FileSync.DeleteSnapshot(req.Context()); err != nil {
			count("failed")
			return err
		}
	}

	count("executed")
	return nil
}
