package dataset

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rohankatakam/defectset/internal/errors"
	"github.com/rohankatakam/defectset/internal/models"
)

// Sink writes dataset files under Dir, named after Project
type Sink struct {
	Dir     string
	Project string
}

// Paths lists the files written by one WriteAll call
type Paths struct {
	All        string
	PerRelease map[int]string
	ARFF       map[int]string
}

// AllPath is the all-releases dataset file
func (s Sink) AllPath() string {
	return filepath.Join(s.Dir, s.Project+"_Bugginess.csv")
}

// ReleasePath is the dataset file of release index
func (s Sink) ReleasePath(index int, ext string) string {
	return filepath.Join(s.Dir, "releases", fmt.Sprintf("%s_release_%d.%s", s.Project, index, ext))
}

// ReleasesPath is the release listing file
func (s Sink) ReleasesPath() string {
	return filepath.Join(s.Dir, s.Project+"_Releases.csv")
}

// WriteAll writes the combined table of releases and one CSV and ARFF file per release.
// Empty releases get no per-release file.
func (s Sink) WriteAll(releases []*models.Release) (Paths, error) {
	paths := Paths{
		All:        s.AllPath(),
		PerRelease: make(map[int]string),
		ARFF:       make(map[int]string),
	}

	all := FromReleases(releases)
	if err := writeFile(paths.All, func(w io.Writer) error { return WriteCSV(w, all) }); err != nil {
		return paths, err
	}

	for _, r := range releases {
		table := FromRelease(r)
		if len(table) == 0 {
			continue
		}

		csvPath := s.ReleasePath(r.Index, "csv")
		if err := writeFile(csvPath, func(w io.Writer) error { return WriteCSV(w, table) }); err != nil {
			return paths, err
		}
		paths.PerRelease[r.Index] = csvPath

		arffPath := s.ReleasePath(r.Index, "arff")
		relation := fmt.Sprintf("%s_release_%d", s.Project, r.Index)
		if err := writeFile(arffPath, func(w io.Writer) error { return WriteARFF(w, relation, table) }); err != nil {
			return paths, err
		}
		paths.ARFF[r.Index] = arffPath
	}
	return paths, nil
}

// WriteReleases writes the release listing: Index, Version ID, Version Name, Date
func (s Sink) WriteReleases(releases []*models.Release) error {
	return writeFile(s.ReleasesPath(), func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"Index", "Version ID", "Version Name", "Date"}); err != nil {
			return err
		}
		for _, r := range releases {
			if err := cw.Write([]string{
				strconv.Itoa(r.Index), r.ExternalID, r.Name, r.Date.Format("2006-01-02"),
			}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// ReadTable loads a dataset file written by the sink
func ReadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.FileSystemErrorf(err, "open dataset %s", path)
	}
	defer f.Close()
	return ReadCSV(f)
}

// writeFile renders into a temporary sibling and renames it into place, so a
// failed write never leaves a truncated dataset behind.
func writeFile(path string, render func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.FileSystemErrorf(err, "create directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.FileSystemErrorf(err, "create %s", path)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := render(bw); err != nil {
		tmp.Close()
		return errors.FileSystemErrorf(err, "write %s", path)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return errors.FileSystemErrorf(err, "write %s", path)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return errors.FileSystemErrorf(err, "chmod %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.FileSystemErrorf(err, "close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.FileSystemErrorf(err, "rename %s", path)
	}
	return nil
}
