package store

// Run is a row in the runs table
type Run struct {
	ID         string  `json:"id"`
	StartedAt  int64   `json:"started_at"` // Unix millis
	FinishedAt *int64  `json:"finished_at"`
	Mode       string  `json:"mode"` // "approx" or "exact"
	UserCap    int     `json:"user_cap"`
	Workers    int     `json:"workers"`
	Sparse     bool    `json:"sparse"`
	Threshold  float64 `json:"threshold"`
	Seed       uint64  `json:"seed"`
	Subjects   int     `json:"subjects"`
	Pairs      int     `json:"pairs"`
	Status     string  `json:"status"` // "running", "done", "failed"
	Error      *string `json:"error"`
}

const (
	RunRunning = "running"
	RunDone    = "done"
	RunFailed  = "failed"
)

// MatrixMeta describes the stored matrix
type MatrixMeta struct {
	Rows      int   `json:"rows"`
	Cols      int   `json:"cols"`
	Sparse    bool  `json:"sparse"`
	CreatedAt int64 `json:"created_at"` // Unix millis
}

// Mapping selects the user or entity id table.
type Mapping string

const (
	UserMapping   Mapping = "user_ids"
	EntityMapping Mapping = "entity_ids"
)

// Similarity is one stored neighbor of a subject
type Similarity struct {
	CandidateID int     `json:"candidate_id"`
	Score       float64 `json:"score"`
}
