// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package bench

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/gomlx/clbench/pkg/support/fsutil"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Record is one row of the results log.
//
// Durations are stored in microseconds, since the CSV output keeps only 6 decimal places.
type Record struct {
	RunID            string  `dataframe:"run_id"`
	Time             string  `dataframe:"time"`
	Tag              string  `dataframe:"tag"`
	BuildString      string  `dataframe:"build_string"`
	Backend          string  `dataframe:"backend"`
	NMB              int     `dataframe:"nmb"`
	LocalSize        int     `dataframe:"local_size"`
	WorkGroups       int     `dataframe:"work_groups"`
	Iterations       int     `dataframe:"iterations"`
	BestMicros       float64 `dataframe:"best_us"`
	MeanMicros       float64 `dataframe:"mean_us"`
	GigaOpsPerSecond float64 `dataframe:"giga_ops_per_second"`
	GFLOPS           float64 `dataframe:"gflops"`
	Checksum         float64 `dataframe:"checksum"`
}

// recordTypes are the column types of the results log, used when reading it back.
var recordTypes = map[string]series.Type{
	"run_id":              series.String,
	"time":                series.String,
	"tag":                 series.String,
	"build_string":        series.String,
	"backend":             series.String,
	"nmb":                 series.Int,
	"local_size":          series.Int,
	"work_groups":         series.Int,
	"iterations":          series.Int,
	"best_us":             series.Float,
	"mean_us":             series.Float,
	"giga_ops_per_second": series.Float,
	"gflops":              series.Float,
	"checksum":            series.Float,
}

// NewRunID returns a unique identifier to group the records of one execution of the benchmark.
func NewRunID() string {
	return uuid.NewString()
}

// Record returns the results log row for the measurement.
func (m *Measurement) Record(runID, tag string) Record {
	return Record{
		RunID:            runID,
		Time:             time.Now().UTC().Format(time.RFC3339),
		Tag:              tag,
		BuildString:      m.Config.BuildString,
		Backend:          m.Backend,
		NMB:              m.Config.NMB,
		LocalSize:        m.Config.LocalSize,
		WorkGroups:       m.Config.NumWorkGroups(),
		Iterations:       len(m.Durations),
		BestMicros:       float64(m.Best().Nanoseconds()) / 1e3,
		MeanMicros:       float64(m.Mean().Nanoseconds()) / 1e3,
		GigaOpsPerSecond: m.GigaOpsPerSecond(),
		GFLOPS:           m.GFLOPS(),
		Checksum:         m.Checksum,
	}
}

// ResultsFileName returns the path of the results log in dir: "results.csv", or "results_<tag>.csv"
// if a tag is given. Characters of the tag other than letters, digits, '-' and '_' are replaced by '_'.
func ResultsFileName(dir, tag string) string {
	if tag == "" {
		return filepath.Join(dir, "results.csv")
	}
	tag = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, tag)
	return filepath.Join(dir, "results_"+tag+".csv")
}

// LoadResults reads a results log written by AppendCSV.
func LoadResults(path string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, errors.Wrapf(err, "failed to open results %q", path)
	}
	defer func() { _ = f.Close() }()
	df := dataframe.ReadCSV(f, dataframe.WithTypes(recordTypes))
	if df.Err != nil {
		return df, errors.Wrapf(df.Err, "failed to parse results %q", path)
	}
	return df, nil
}

// AppendCSV appends the records to the results log in path, creating it (and its directory) if needed.
func AppendCSV(path string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	df := dataframe.LoadStructs(records)
	if df.Err != nil {
		return errors.Wrap(df.Err, "failed to convert records")
	}
	exists, err := fsutil.FileExists(path)
	if err != nil {
		return err
	}
	if exists {
		previous, err := LoadResults(path)
		if err != nil {
			return err
		}
		df = previous.RBind(df)
		if df.Err != nil {
			return errors.Wrapf(df.Err, "failed to append to results %q", path)
		}
	} else if err := fsutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create results %q", path)
	}
	if err := df.WriteCSV(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write results %q", path)
	}
	return errors.Wrapf(f.Close(), "failed to close results %q", path)
}
