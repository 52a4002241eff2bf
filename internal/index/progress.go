package index

// Phase names reported during a full index.
type Phase string

const (
	PhaseScanning  Phase = "scanning"
	PhaseChunking  Phase = "chunking"
	PhaseEmbedding Phase = "embedding"
	PhaseStoring   Phase = "storing"
)

// Progress is one progress update.
type Progress struct {
	Phase       Phase
	Current     int
	Total       int
	CurrentFile string
}

// ProgressFunc receives progress updates. May be nil.
type ProgressFunc func(Progress)

func report(fn ProgressFunc, p Progress) {
	if fn != nil {
		fn(p)
	}
}
