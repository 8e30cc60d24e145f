// Package secretreader supplies the HMAC secret the oauth2 filter signs and
// verifies session and CSRF cookies with, re-reading it from disk on an
// interval so the secret can be rotated without restarting the process.
package secretreader

import (
	"errors"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const defaultRefreshInterval = 10 * time.Minute

// ErrEmptySecret is returned by GetSecret when the last successful read of
// the secret file produced an empty secret.
var ErrEmptySecret = errors.New("secretreader: secret not yet loaded")

// FileSecretReader implements oauth2.SecretReader by re-reading path on a
// fixed interval. A trailing newline, as commonly left by a Kubernetes
// Secret volume mount or `echo > file`, is stripped.
type FileSecretReader struct {
	mu     sync.RWMutex
	secret []byte
	err    error

	path            string
	refreshInterval time.Duration
	quit            chan struct{}

	// group collapses concurrent reloads into one: the periodic ticker
	// and an operator-triggered Reload (e.g. a SIGHUP handler in
	// cmd/oauth2gate) can race, and there is no reason to stat() and
	// read the file twice for the same rotation.
	group singleflight.Group
}

// NewFileSecretReader builds a FileSecretReader, performing a synchronous
// first read of path so construction fails fast on a missing or unreadable
// file. d <= 0 selects the default 10 minute refresh interval. Callers must
// call Close when done to stop the background refresher.
func NewFileSecretReader(path string, d time.Duration) (*FileSecretReader, error) {
	if d <= 0 {
		d = defaultRefreshInterval
	}

	sr := &FileSecretReader{
		path:            path,
		refreshInterval: d,
		quit:            make(chan struct{}),
	}

	if err := sr.reload(); err != nil {
		return nil, err
	}

	go sr.run()
	return sr, nil
}

// GetSecret implements oauth2.SecretReader.
func (sr *FileSecretReader) GetSecret() ([]byte, error) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	if sr.err != nil {
		return nil, sr.err
	}
	if len(sr.secret) == 0 {
		return nil, ErrEmptySecret
	}
	return sr.secret, nil
}

// Reload forces an immediate re-read of the secret file, collapsing
// concurrent callers (ticker + operator trigger) into a single stat()+read
// via singleflight.
func (sr *FileSecretReader) Reload() error {
	_, err, _ := sr.group.Do("reload", func() (interface{}, error) {
		return nil, sr.reload()
	})
	return err
}

func (sr *FileSecretReader) reload() error {
	dat, err := os.ReadFile(sr.path)
	if err != nil {
		sr.mu.Lock()
		sr.err = err
		sr.mu.Unlock()
		return err
	}

	if len(dat) > 0 && dat[len(dat)-1] == '\n' {
		dat = dat[:len(dat)-1]
	}

	sr.mu.Lock()
	sr.secret = dat
	sr.err = nil
	sr.mu.Unlock()
	return nil
}

func (sr *FileSecretReader) run() {
	log.Infof("secretreader: refreshing %s every %s", sr.path, sr.refreshInterval)
	ticker := time.NewTicker(sr.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := sr.Reload(); err != nil {
				log.Errorf("secretreader: failed to reload %s: %v", sr.path, err)
			}
		case <-sr.quit:
			log.Infoln("secretreader: stopping background refresher")
			return
		}
	}
}

// Close stops the background refresher.
func (sr *FileSecretReader) Close() {
	close(sr.quit)
}

// StaticSecretReader implements oauth2.SecretReader over a fixed in-memory
// secret, for tests and for configurations that source the secret once at
// startup (e.g. from an environment variable) rather than from a rotating
// file.
type StaticSecretReader []byte

func (s StaticSecretReader) GetSecret() ([]byte, error) {
	return []byte(s), nil
}
