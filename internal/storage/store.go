package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/quadkit/descent/internal/experiment"
)

// Store keeps one directory per run: metadata.json plus ticks.csv.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type RunMetadata struct {
	ID         string             `json:"id"`
	Controller string             `json:"controller"`
	Timestamp  time.Time          `json:"timestamp"`
	Dt         float64            `json:"dt"`
	Duration   float64            `json:"duration"`
	FinalMode  string             `json:"final_mode"`
	Metrics    map[string]float64 `json:"metrics"`
}

func (s *Store) Save(result *experiment.Result) (string, error) {
	runID := fmt.Sprintf("%s_%d", result.Controller, time.Now().Unix())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := RunMetadata{
		ID:         runID,
		Controller: result.Controller,
		Timestamp:  time.Now(),
		Dt:         result.Dt,
		Duration:   result.Duration,
		FinalMode:  result.FinalMode,
		Metrics:    result.Metrics,
	}

	metaFile, err := os.Create(filepath.Join(runDir, "metadata.json"))
	if err != nil {
		return "", err
	}
	defer metaFile.Close()

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(meta); err != nil {
		return "", err
	}

	csvFile, err := os.Create(filepath.Join(runDir, "ticks.csv"))
	if err != nil {
		return "", err
	}
	defer csvFile.Close()

	w := csv.NewWriter(csvFile)
	defer w.Flush()

	header := []string{"time", "z", "target_z", "thrust", "roll", "pitch"}
	if err := w.Write(header); err != nil {
		return "", err
	}

	ff := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	for i := range result.Times {
		row := []string{
			ff(result.Times[i]),
			ff(result.Heights[i]),
			ff(result.Targets[i]),
			ff(result.Thrusts[i]),
			ff(result.Rolls[i]),
			ff(result.Pitches[i]),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}

	return runID, nil
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "metadata.json"))
	if err != nil {
		return nil, err
	}
	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// LoadTicks returns the recorded columns of a run keyed by header name.
func (s *Store) LoadTicks(runID string) (map[string][]float64, error) {
	file, err := os.Open(filepath.Join(s.baseDir, runID, "ticks.csv"))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 1 {
		return nil, fmt.Errorf("run %s: empty ticks file", runID)
	}

	header := rows[0]
	cols := make(map[string][]float64, len(header))
	for _, row := range rows[1:] {
		for i, cell := range row {
			if i >= len(header) {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("run %s: bad value %q: %w", runID, cell, err)
			}
			cols[header[i]] = append(cols[header[i]], v)
		}
	}
	return cols, nil
}
