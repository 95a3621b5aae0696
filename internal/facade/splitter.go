package facade

import (
	"github.com/Luiz-Frias/semcode/internal/config"
	"github.com/Luiz-Frias/semcode/internal/ports"
	"github.com/Luiz-Frias/semcode/internal/splitter"
)

// newSplitter maps config onto splitter options.
func newSplitter(cfg config.Config) ports.Splitter {
	return splitter.NewWithOptions(splitter.Options{
		ChunkSize:    cfg.Index.ChunkSize,
		ChunkOverlap: cfg.Index.ChunkOverlap,
	})
}
