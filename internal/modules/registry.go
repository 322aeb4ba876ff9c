package modules

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Ext is the file extension of loadable modules.
const Ext = ".wasm"

// ModuleInfo stores metadata about a loaded guest module.
type ModuleInfo struct {
	Name      string
	Path      string
	Digest    string
	Size      int64
	LoadedAt  time.Time
	SwappedAt time.Time
	Swaps     int
}

// Registry tracks the modules a manager serves.
type Registry struct {
	modules map[string]*ModuleInfo
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modules: make(map[string]*ModuleInfo),
	}
}

// Register adds or replaces module metadata.
func (r *Registry) Register(info ModuleInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.modules[info.Name] = &info
}

// Swapped records a hot swap of name to a module with the given digest and size.
func (r *Registry) Swapped(name, digest string, size int64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.modules[name]
	if !ok {
		return
	}
	info.Digest = digest
	info.Size = size
	info.SwappedAt = at
	info.Swaps++
}

// Remove drops name from the registry.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.modules, name)
}

// Get returns a copy of the metadata for name.
func (r *Registry) Get(name string) (ModuleInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.modules[name]
	if !ok {
		return ModuleInfo{}, false
	}

	return *info, true
}

// List returns all registered modules sorted by name.
func (r *Registry) List() []ModuleInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ModuleInfo, 0, len(r.modules))
	for _, info := range r.modules {
		result = append(result, *info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result
}

// moduleFile is a module read from disk.
type moduleFile struct {
	info ModuleInfo
	code []byte
}

// Digest returns the hex SHA-256 of code.
func Digest(code []byte) string {
	sum := sha256.Sum256(code)
	return hex.EncodeToString(sum[:])
}

// readDir reads every module file in dir, keyed by name.
func readDir(dir string) (map[string]moduleFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make(map[string]moduleFile)
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != Ext {
			continue
		}

		path := filepath.Join(dir, e.Name())
		code, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		name := strings.TrimSuffix(e.Name(), Ext)
		files[name] = moduleFile{
			info: ModuleInfo{
				Name:   name,
				Path:   path,
				Digest: Digest(code),
				Size:   int64(len(code)),
			},
			code: code,
		}
	}

	return files, nil
}

// Scan lists the modules in dir without loading them.
func Scan(dir string) ([]ModuleInfo, error) {
	files, err := readDir(dir)
	if err != nil {
		return nil, err
	}

	result := make([]ModuleInfo, 0, len(files))
	for _, f := range files {
		result = append(result, f.info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}
