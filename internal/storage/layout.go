package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout resolves the on-disk data layout:
//
//	<dataDir>/jobs.sqlite3          job records
//	<dataDir>/jobs/<referenceID>/   uploaded inputs (base.jpg, selfie.jpg)
//	<dataDir>/outputs/              completed output images
type Layout struct {
	dataDir string
}

func NewLayout(dataDir string) (*Layout, error) {
	l := &Layout{dataDir: dataDir}
	for _, dir := range []string{l.jobsDir(), l.OutputsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir %s: %w", dir, err)
		}
	}
	return l, nil
}

func (l *Layout) DataDir() string    { return l.dataDir }
func (l *Layout) DBPath() string     { return filepath.Join(l.dataDir, "jobs.sqlite3") }
func (l *Layout) jobsDir() string    { return filepath.Join(l.dataDir, "jobs") }
func (l *Layout) OutputsDir() string { return filepath.Join(l.dataDir, "outputs") }

func (l *Layout) jobDir(referenceID string) string {
	return filepath.Join(l.jobsDir(), referenceID)
}

func (l *Layout) basePath(referenceID string) string {
	return filepath.Join(l.jobDir(referenceID), "base.jpg")
}

func (l *Layout) selfiePath(referenceID string) string {
	return filepath.Join(l.jobDir(referenceID), "selfie.jpg")
}

// SaveInputs writes both uploaded images under the job's input directory. The
// executor reads them back from disk, so a restart between create and run
// loses nothing.
func (l *Layout) SaveInputs(referenceID string, base, selfie []byte) error {
	dir := l.jobDir(referenceID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create job dir: %w", err)
	}
	if err := os.WriteFile(l.basePath(referenceID), base, 0o644); err != nil {
		return fmt.Errorf("failed to save base image: %w", err)
	}
	if err := os.WriteFile(l.selfiePath(referenceID), selfie, 0o644); err != nil {
		return fmt.Errorf("failed to save selfie image: %w", err)
	}
	return nil
}

// ReadInputs loads the two input images for a job.
func (l *Layout) ReadInputs(referenceID string) (base, selfie []byte, err error) {
	base, err = os.ReadFile(l.basePath(referenceID))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read base image: %w", err)
	}
	selfie, err = os.ReadFile(l.selfiePath(referenceID))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read selfie image: %w", err)
	}
	return base, selfie, nil
}
