// Package config loads the configuration file of an entity database:
// the connection, the pool bounds, the persistence options and the catalog.
//
// Config file locations (priority order):
//  1. the path given on the command line
//  2. $ENTITYDB_CONFIG
//  3. ./entitydb.yaml
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/acronis/perfkit/entitydb/db"
	"github.com/acronis/perfkit/entitydb/persist"
	"github.com/acronis/perfkit/entitydb/pool"
)

// EnvPath names the environment variable holding the config file path
const EnvPath = "ENTITYDB_CONFIG"

// DefaultPath is the config file looked up in the working directory
const DefaultPath = "./entitydb.yaml"

// File is the content of a configuration file
type File struct {
	Database db.Config       `yaml:"database"`
	Pool     pool.Config     `yaml:"pool"`
	Persist  persist.Options `yaml:"persist"`
	Catalog  []EntityType    `yaml:"catalog"`
}

// Default returns the configuration used for keys a file leaves out
func Default() *File {
	return &File{
		Pool:    pool.DefaultConfig(),
		Persist: persist.DefaultOptions(),
	}
}

// FindPath returns the config file path to use, empty when there is none
func FindPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvPath); env != "" {
		return env
	}
	if _, err := os.Stat(DefaultPath); err == nil {
		return DefaultPath
	}

	return ""
}

// Load reads the config file found by FindPath
func Load(explicit string) (*File, string, error) {
	var path = FindPath(explicit)
	if path == "" {
		return nil, "", errors.New("config: no config file given and none found")
	}

	var f, err = LoadFromPath(path)

	return f, path, err
}

// LoadFromPath reads and validates one config file
func LoadFromPath(path string) (*File, error) {
	var data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	return Parse(data)
}

// Parse decodes a configuration over the defaults and validates it
func Parse(data []byte) (*File, error) {
	var f = Default()
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	f.Pool = f.Pool.WithDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}

	return f, nil
}

// Validate checks the parts that can be checked without connecting
func (f *File) Validate() error {
	if f.Database.ConnString == "" {
		return errors.New("config: database connection-string is required")
	}
	if _, _, err := db.ParseScheme(f.Database.ConnString); err != nil {
		return fmt.Errorf("config: database connection-string: %w", err)
	}
	if err := f.Pool.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if f.Persist.TraceSize < 0 {
		return fmt.Errorf("config: persist trace-size must not be negative, got %d", f.Persist.TraceSize)
	}

	return nil
}
