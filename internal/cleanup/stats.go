package cleanup

import (
	"errors"
	"io/fs"
	"math"
	"path/filepath"

	"github.com/aatumaykin/ecardcut/internal/logger"
)

// Stats reports the current contents of every watched directory, keyed by
// directory name. It never modifies the filesystem.
func (s *Sweeper) Stats() map[string]DirStats {
	now := s.now()
	out := make(map[string]DirStats, len(s.dirs))

	for _, dir := range s.dirs {
		entries, err := s.fs.ReadDir(dir.Path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				s.logger.Warn("failed to list watched directory for stats",
					logger.Field{Key: "dir", Value: dir.Name},
					logger.Field{Key: "error", Value: err})
			}
			out[dir.Name] = DirStats{}
			continue
		}

		st := DirStats{Exists: true}
		first := true
		for _, entry := range entries {
			if !entry.Type().IsRegular() || s.ignored(entry.Name()) {
				continue
			}
			info, err := s.fs.Lstat(filepath.Join(dir.Path, entry.Name()))
			if err != nil || !info.Mode().IsRegular() {
				continue
			}

			age := ageMinutes(now, info.ModTime())
			st.FileCount++
			st.TotalSizeBytes += info.Size()
			if first || age > st.OldestAgeMinutes {
				st.OldestAgeMinutes = age
			}
			if first || age < st.NewestAgeMinutes {
				st.NewestAgeMinutes = age
			}
			first = false
			if now.Sub(info.ModTime()) > s.retention {
				st.EligibleCount++
			}
		}

		st.TotalSizeMB = round2(float64(st.TotalSizeBytes) / (1024 * 1024))
		st.OldestAgeMinutes = round2(st.OldestAgeMinutes)
		st.NewestAgeMinutes = round2(st.NewestAgeMinutes)
		out[dir.Name] = st
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
