package staging

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockFileName is created inside the staging directory.
const LockFileName = ".stemsplit.lock"

// ErrBusy reports that the staging directory is held by a conflicting lock.
var ErrBusy = errors.New("staging directory is in use")

// Lock guards a staging directory. Batches hold it shared so several may run
// side by side; cleanup holds it exclusively so it never removes a live
// batch's work directories.
type Lock struct {
	lock *flock.Flock
}

// AcquireShared takes the staging lock for a batch run.
func AcquireShared(stagingDir string) (*Lock, error) {
	l := &Lock{lock: flock.New(filepath.Join(stagingDir, LockFileName))}
	ok, err := l.lock.TryRLock()
	if err != nil {
		return nil, fmt.Errorf("acquire staging lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: staging clean is running", ErrBusy)
	}
	return l, nil
}

// AcquireExclusive takes the staging lock for cleanup.
func AcquireExclusive(stagingDir string) (*Lock, error) {
	l := &Lock{lock: flock.New(filepath.Join(stagingDir, LockFileName))}
	ok, err := l.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire staging lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: a batch is running", ErrBusy)
	}
	return l, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
