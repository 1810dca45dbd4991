package batch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"edgar_facts/pkg/models"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"github.com/rotisserie/eris"
)

// Checkpoint records the low-water mark of a run: every filing at or before
// FilingID in the input list reached a terminal state.
type Checkpoint struct {
	RunID     string          `json:"run_id"`
	FilingID  models.FilingID `json:"filing_id"`
	Position  int             `json:"position"`
	Persisted int             `json:"persisted"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LoadCheckpoint reads a checkpoint file. A truncated or hand-edited file is
// repaired before decoding.
func LoadCheckpoint(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, eris.Wrapf(err, "batch: read checkpoint %s", path)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err == nil {
		return cp, nil
	}

	repaired, err := jsonrepair.RepairJSON(string(data))
	if err != nil {
		return Checkpoint{}, eris.Wrapf(err, "batch: repair checkpoint %s", path)
	}
	if err := json.Unmarshal([]byte(repaired), &cp); err != nil {
		return Checkpoint{}, eris.Wrapf(err, "batch: decode checkpoint %s", path)
	}
	if cp.FilingID == "" {
		return Checkpoint{}, eris.Errorf("batch: checkpoint %s has no filing id", path)
	}
	return cp, nil
}

// SaveCheckpoint writes cp through a temp file.
func SaveCheckpoint(path string, cp Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return eris.Wrap(err, "batch: marshal checkpoint")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return eris.Wrap(err, "batch: create checkpoint dir")
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return eris.Wrap(err, "batch: write checkpoint")
	}
	return eris.Wrap(os.Rename(tmp, path), "batch: commit checkpoint")
}

// progress tracks which input positions are terminal and the resulting
// low-water mark.
type progress struct {
	mu   sync.Mutex
	ids  []models.FilingID
	done []bool
	next int // first position not yet terminal
}

func newProgress(ids []models.FilingID) *progress {
	return &progress{ids: ids, done: make([]bool, len(ids))}
}

// markDone records position i and reports the new low-water mark, or -1 when
// position 0 is still open.
func (p *progress) markDone(i int) (int, models.FilingID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done[i] = true
	for p.next < len(p.done) && p.done[p.next] {
		p.next++
	}
	if p.next == 0 {
		return -1, ""
	}
	return p.next - 1, p.ids[p.next-1]
}
