package destination

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskbot/internal/logging"
)

// maxFileSize bounds destination files.
const maxFileSize = 4 * 1024 * 1024

// fileSchema is the on-disk layout. Users overrides Destinations per user id.
type fileSchema struct {
	Destinations []Destination       `yaml:"destinations" toml:"destinations"`
	Users        map[string]Snapshot `yaml:"users" toml:"users"`
}

// FileProvider serves snapshots from a YAML or TOML file:
//
//	destinations:
//	  - id: shop
//	    name: Shop
//	    sub_lists:
//	      - {id: todo, name: To Do}
//	users:
//	  "42":
//	    destinations: [...]
type FileProvider struct {
	path   string
	logger *logging.Logger

	mu     sync.RWMutex
	shared Snapshot
	users  map[string]Snapshot
}

// NewFileProvider loads path. The format follows the extension: .toml is
// TOML, anything else YAML.
func NewFileProvider(path string, logger *logging.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	p := &FileProvider{path: path, logger: logger.Named("destinations")}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// Snapshot implements Provider.
func (p *FileProvider) Snapshot(ctx context.Context, userID string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.users[userID]; ok {
		return s.clone(), nil
	}
	if len(p.shared.Destinations) == 0 {
		return Snapshot{}, ErrNoSnapshot
	}
	return p.shared.clone(), nil
}

// Reload re-reads the file. On error the previous snapshots stay in place.
func (p *FileProvider) Reload() error {
	schema, err := readFile(p.path)
	if err != nil {
		return err
	}
	if err := schema.validate(); err != nil {
		return fmt.Errorf("%s: %w", p.path, err)
	}

	p.mu.Lock()
	p.shared = Snapshot{Destinations: schema.Destinations}
	p.users = schema.Users
	p.mu.Unlock()
	return nil
}

// Watch reloads the file whenever it changes until ctx is done. The parent
// directory is watched so atomic replace-by-rename is seen.
func (p *FileProvider) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(p.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Clean(p.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if err := p.Reload(); err != nil {
				p.logger.Warn(ctx, "destination reload failed, keeping previous snapshot", zap.Error(err))
				continue
			}
			p.logger.Info(ctx, "destinations reloaded", zap.String("path", p.path))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			p.logger.Warn(ctx, "destination watcher error", zap.Error(err))
		}
	}
}

func readFile(path string) (*fileSchema, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat destinations file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("destinations file too large: %d bytes", info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read destinations file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("destinations file %s is empty", path)
	}

	var schema fileSchema
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &schema); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return &schema, nil
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := k.UnmarshalWithConf("", &schema, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &schema, nil
}

func (f *fileSchema) validate() error {
	var errs []error
	if err := (Snapshot{Destinations: f.Destinations}).Validate(); err != nil {
		errs = append(errs, err)
	}
	for user, s := range f.Users {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", user, err))
		}
	}
	return errors.Join(errs...)
}
