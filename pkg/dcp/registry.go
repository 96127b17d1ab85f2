package dcp

import(
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// A Registry holds every profile we know about. It is built once (see
// LoadDir) and then read from many goroutines.
type Registry struct {
	log      logrus.FieldLogger

	mu       sync.RWMutex
	profiles []*Profile
}

func NewRegistry(log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{log: log}
}

// LoadDir walks a directory tree, loading every .dcp file. Hidden files
// and directories are skipped. Files that don't parse, or that don't
// name a camera model, are logged and left out; they never fail the walk.
func (r *Registry)LoadDir(dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			r.log.WithError(err).WithField("path", path).Warn("dcp: can't read")
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || strings.ToLower(filepath.Ext(path)) != ".dcp" {
			return nil
		}

		p, err := Load(path)
		if err != nil {
			r.log.WithError(err).WithField("path", path).Warn("dcp: skipping profile")
			return nil
		}
		r.Add(p)
		n++
		return nil
	})

	r.log.WithFields(logrus.Fields{"dir": dir, "profiles": n}).Info("dcp: loaded profiles")
	return n, err
}

func (r *Registry)Add(p *Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles = append(r.profiles, p)
	r.log.WithFields(logrus.Fields{"model": p.Model, "name": p.Name, "id": p.ID}).Debug("dcp: added")
}

func (r *Registry)All() []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Profile{}, r.profiles...)
}

// FindByID looks up a profile by its unique ID. If the same ID shows
// up more than once, the most recently added one wins.
func (r *Registry)FindByID(id string) *Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var found *Profile
	for _, p := range r.profiles {
		if p.UniqueID() == id {
			if found != nil {
				r.log.WithFields(logrus.Fields{"id": id, "first": found.Filename, "second": p.Filename}).Warn("dcp: duplicate profile id")
			}
			found = p
		}
	}
	return found
}

// FindByName matches the profile name, ignoring case
func (r *Registry)FindByName(name string) *Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.profiles {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// Compatible returns the profiles made for a camera. DCPs name cameras
// like "Nikon D750", while EXIF says "NIKON CORPORATION" / "NIKON D750",
// so the comparison is on normalized names, with or without the make.
func (r *Registry)Compatible(camMake, model string) []*Profile {
	want := map[string]bool{ normalizeName(model): true }
	if fields := strings.Fields(camMake); len(fields) > 0 {
		want[normalizeName(fields[0] + " " + model)] = true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ret := []*Profile{}
	for _, p := range r.profiles {
		if want[normalizeName(p.Model)] {
			ret = append(ret, p)
		}
	}
	return ret
}

// normalizeName lowercases, collapses whitespace, and drops a repeated
// leading word ("nikon nikon d750" -> "nikon d750")
func normalizeName(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) > 1 && fields[0] == fields[1] {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}
