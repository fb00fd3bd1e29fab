package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// reservedPrefixes mark directories and files discovery never loads
var reservedPrefixes = []string{"__", "."}

// entryStem is the file name (without extension) that, when present, is the
// only file loaded from a plugin directory
const entryStem = "index"

// Candidate is a file discovery selected for loading
type Candidate struct {
	Key    string // "<directory>/<file stem>", or "<file stem>" for a file in the root
	Path   string
	Loader ModuleLoader
}

// PluginDiscovery scans a plugin root for candidate module files
type PluginDiscovery struct {
	logger  zerolog.Logger
	loaders []ModuleLoader
}

// NewPluginDiscovery creates a discovery over the given module loaders.
// Loader order decides which canonical entry wins when several exist.
func NewPluginDiscovery(logger zerolog.Logger, loaders ...ModuleLoader) *PluginDiscovery {
	return &PluginDiscovery{
		logger:  logger.With().Str("component", "plugin-discovery").Logger(),
		loaders: loaders,
	}
}

// Discover walks root and its immediate subdirectories and returns the files to
// load. Loadable files directly in root are keyed by their stem alone.
// A missing root yields no candidates and no error.
func (d *PluginDiscovery) Discover(root string) ([]Candidate, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			d.logger.Warn().Str("dir", root).Msg("Plugin directory does not exist, skipping")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", root, err)
	}

	var candidates []Candidate
	for _, entry := range entries {
		if isReserved(entry.Name()) {
			continue
		}
		if !entry.IsDir() {
			if loader, stem, ok := d.match(entry.Name()); ok {
				candidates = append(candidates, Candidate{
					Key:    stem,
					Path:   filepath.Join(root, entry.Name()),
					Loader: loader,
				})
			}
			continue
		}

		found, err := d.scanPluginDir(filepath.Join(root, entry.Name()))
		if err != nil {
			d.logger.Warn().Err(err).Str("dir", entry.Name()).Msg("Failed to scan plugin directory")
			continue
		}
		candidates = append(candidates, found...)
	}

	d.logger.Debug().Str("dir", root).Int("count", len(candidates)).Msg("Plugin discovery completed")
	return candidates, nil
}

// scanPluginDir selects the canonical entry file of a directory, or every
// loadable file when there is none
func (d *PluginDiscovery) scanPluginDir(dir string) ([]Candidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	dirName := filepath.Base(dir)

	for _, loader := range d.loaders {
		for _, ext := range loader.Extensions() {
			path := filepath.Join(dir, entryStem+ext)
			if st, err := os.Stat(path); err == nil && !st.IsDir() {
				return []Candidate{{
					Key:    dirName + "/" + entryStem,
					Path:   path,
					Loader: loader,
				}}, nil
			}
		}
	}

	var candidates []Candidate
	for _, entry := range entries {
		if entry.IsDir() || isReserved(entry.Name()) {
			continue
		}
		loader, stem, ok := d.match(entry.Name())
		if !ok {
			continue
		}
		candidates = append(candidates, Candidate{
			Key:    dirName + "/" + stem,
			Path:   filepath.Join(dir, entry.Name()),
			Loader: loader,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Path < candidates[j].Path
	})
	return candidates, nil
}

// match finds the loader for a file name, preferring the longest extension
// so ".skill.json" is not mistaken for a plain ".json"
func (d *PluginDiscovery) match(name string) (ModuleLoader, string, bool) {
	var (
		best    ModuleLoader
		bestExt string
	)
	for _, loader := range d.loaders {
		for _, ext := range loader.Extensions() {
			if strings.HasSuffix(name, ext) && len(name) > len(ext) && len(ext) > len(bestExt) {
				best, bestExt = loader, ext
			}
		}
	}
	if best == nil {
		return nil, "", false
	}
	return best, strings.TrimSuffix(name, bestExt), true
}

func isReserved(name string) bool {
	for _, prefix := range reservedPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
