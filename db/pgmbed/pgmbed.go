// Package pgmbed runs a process-wide embedded PostgreSQL server shared by all
// connections whose connection string carries embedded-postgres=true.
package pgmbed

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"

	"github.com/acronis/perfkit/entitydb/logger"
)

var (
	embeddedPostgresRefCount int
	embeddedPostgresMutex    sync.Mutex

	// Only one instance of embedded Postgres is allowed
	embeddedPostgresInstance *embeddedpostgres.EmbeddedPostgres
)

// Opts is a structure to store all the embedded postgresql options
type Opts struct {
	Enabled        bool
	Port           int
	DataDir        string
	MaxConnections int
}

const (
	paramEnabled        = "embedded-postgres"
	paramPort           = "ep-port"
	paramDataDir        = "ep-data-dir"
	paramMaxConnections = "ep-max-connections"
)

// ParseOptions parses the CS string to extract the embedded Postgres options and returns a cleaned CS.
func ParseOptions(cs string) (string, *Opts, error) {
	parsedURL, err := url.Parse(cs)
	if err != nil {
		return "", nil, fmt.Errorf("pgmbed: invalid connection string: %v", err)
	}

	queryParams := parsedURL.Query()

	opts := &Opts{
		Port:           5433,
		MaxConnections: 512,
	}

	if enabled, exists := queryParams[paramEnabled]; exists {
		if opts.Enabled, err = strconv.ParseBool(enabled[0]); err != nil {
			return "", nil, fmt.Errorf("invalid value for %s: %v", paramEnabled, err)
		}
		delete(queryParams, paramEnabled)
	}

	if port, exists := queryParams[paramPort]; exists {
		if opts.Port, err = strconv.Atoi(port[0]); err != nil {
			return "", nil, fmt.Errorf("invalid value for %s: %v", paramPort, err)
		}
		delete(queryParams, paramPort)
	}

	if dataDir, exists := queryParams[paramDataDir]; exists {
		opts.DataDir = dataDir[0]
		delete(queryParams, paramDataDir)
	}

	if maxConns, exists := queryParams[paramMaxConnections]; exists {
		if opts.MaxConnections, err = strconv.Atoi(maxConns[0]); err != nil {
			return "", nil, fmt.Errorf("invalid value for %s: %v", paramMaxConnections, err)
		}
		delete(queryParams, paramMaxConnections)
	}

	parsedURL.RawQuery = queryParams.Encode()

	return parsedURL.String(), opts, nil
}

// packConnectionString points cs at the embedded server, keeping its query parameters
func packConnectionString(cs string, opts *Opts) string {
	if cs == "" || opts == nil {
		return cs
	}

	var u, err = url.Parse(cs)
	if err != nil {
		return cs
	}

	u.Host = fmt.Sprintf("localhost:%d", opts.Port)
	u.User = url.UserPassword("postgres", "postgres")
	u.Path = "/postgres"

	return u.String()
}

type embeddedPostgresLogger struct {
	logger logger.Logger
}

func (l embeddedPostgresLogger) Write(p []byte) (n int, err error) {
	if l.logger == nil {
		return len(p), nil
	}

	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		l.logger.Debug("-- embedded postgres: %s", line)
	}

	return len(p), nil
}

func dataDir(dir string, logger logger.Logger) (string, error) {
	if dir == "" {
		dir = ".embedded-postgres-go"
		if userHome, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(userHome, dir)
		}
		dir = filepath.Join(dir, "entitydb-data")
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if logger != nil {
			logger.Info("creating embedded postgres data dir: %s", dir)
		}
		if err = os.MkdirAll(dir, os.ModePerm); err != nil {
			return "", fmt.Errorf("failed to create data directory: %v", err)
		}
	}

	return dir, nil
}

// Launch starts the embedded Postgres instance when the first connection asks for it.
// Every successful Launch must be paired with a Terminate.
func Launch(cs string, opts *Opts, logger logger.Logger) (string, error) {
	if opts == nil || !opts.Enabled {
		return cs, nil
	}

	embeddedPostgresMutex.Lock()
	defer embeddedPostgresMutex.Unlock()

	if embeddedPostgresRefCount == 0 {
		var dir, err = dataDir(opts.DataDir, logger)
		if err != nil {
			return "", err
		}

		var port = uint32(opts.Port)
		var instance = embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
			Port(port).
			DataPath(dir).
			Logger(embeddedPostgresLogger{logger: logger}).
			StartParameters(map[string]string{
				"max_connections": strconv.Itoa(opts.MaxConnections),
				"jit":             "off",
			}))

		if err = instance.Start(); err != nil {
			if err.Error() != fmt.Sprintf("process already listening on port %d", port) {
				return "", fmt.Errorf("embedded Postgres DB start error: %v", err)
			}
			// somebody else owns the server on that port
			instance = nil
		}
		embeddedPostgresInstance = instance
	}

	embeddedPostgresRefCount++

	return packConnectionString(cs, opts), nil
}

// Terminate stops the embedded Postgres instance once its last user is gone
func Terminate() error {
	embeddedPostgresMutex.Lock()
	defer embeddedPostgresMutex.Unlock()

	if embeddedPostgresRefCount == 0 {
		return nil
	}

	embeddedPostgresRefCount--
	if embeddedPostgresRefCount > 0 || embeddedPostgresInstance == nil {
		return nil
	}

	var err = embeddedPostgresInstance.Stop()
	embeddedPostgresInstance = nil

	if err != nil {
		return fmt.Errorf("embedded Postgres DB stop error: %v", err)
	}

	return nil
}
