// Storage provides an interface for accessing the filesystem. This allows the
// database to run on an in memory buffer if desired.
package pager

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type storage interface {
	io.ReaderAt
	io.WriterAt
	CreateJournal() error
	DeleteJournal() error
}

type memoryStorage struct {
	buf []byte
}

func newMemoryStorage() storage {
	return &memoryStorage{
		buf: make([]byte, PAGE_SIZE),
	}
}

func (mf *memoryStorage) WriteAt(p []byte, off int64) (n int, err error) {
	for len(mf.buf) < int(off)+len(p) {
		mf.buf = append(mf.buf, make([]byte, PAGE_SIZE)...)
	}
	copy(mf.buf[off:len(p)+int(off)], p)
	return 0, nil
}

func (mf *memoryStorage) ReadAt(p []byte, off int64) (n int, err error) {
	for len(mf.buf) < int(off)+len(p) {
		mf.buf = append(mf.buf, make([]byte, PAGE_SIZE)...)
	}
	copy(p, mf.buf[off:len(p)+int(off)])
	return 0, nil
}

func (mf *memoryStorage) CreateJournal() error {
	// journal does not matter in memory since all data is lost on a crash
	return nil
}

func (mf *memoryStorage) DeleteJournal() error {
	// journal does not matter in memory since all data is lost on a crash
	return nil
}

const DEFAULT_DB_FILE_NAME = "db.db"

func journalFileName(dbFileName string) string {
	return dbFileName + ".journal"
}

// fileStorage is a storage backed by a single database file on disk, guarded
// by an advisory flock so a second process opening the same file observes the
// same read/write exclusion the in-process RWMutex provides within one
// process.
type fileStorage struct {
	file     *os.File
	filename string
	lock     lock
}

func newFileStorage(filename string) (storage, error) {
	if filename == "" {
		filename = DEFAULT_DB_FILE_NAME
	}
	jflName := journalFileName(filename)
	jfl, err := os.OpenFile(jflName, os.O_RDWR, 0644)
	// if journal file doesn't exist open normal db file
	if err != nil && os.IsNotExist(err) {
		fl, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return nil, fmt.Errorf("error opening db file: %w", err)
		}
		return &fileStorage{
			file:     fl,
			filename: filename,
			lock:     newPlatformLock(fl.Fd()),
		}, nil
	}
	// if journal file has an error
	if err != nil {
		return nil, fmt.Errorf("error opening journal: %w", err)
	}
	// if no error opening journal use journal as main file
	logrus.WithField("file", filename).Warn("restoring database from journal after unclean shutdown")
	fl, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("error opening db file to restore journal: %w", err)
	}
	_, err = io.Copy(fl, jfl)
	if err != nil {
		return nil, fmt.Errorf("error copying journal to db file: %w", err)
	}
	os.Remove(jflName)
	return &fileStorage{
		file:     fl,
		filename: filename,
		lock:     newPlatformLock(fl.Fd()),
	}, nil
}

func (s *fileStorage) WriteAt(p []byte, off int64) (n int, err error) {
	if err := s.lock.Lock(); err != nil {
		return 0, err
	}
	defer s.lock.Unlock()
	return s.file.WriteAt(p, off)
}

func (s *fileStorage) ReadAt(p []byte, off int64) (n int, err error) {
	if err := s.lock.RLock(); err != nil {
		return 0, err
	}
	defer s.lock.RUnlock()
	return s.file.ReadAt(p, off)
}

func (s *fileStorage) CreateJournal() error {
	f, err := os.OpenFile(journalFileName(s.filename), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	if f.Close() != nil {
		return err
	}
	return nil
}

func (s *fileStorage) DeleteJournal() error {
	err := os.Remove(journalFileName(s.filename))
	if err != nil {
		return err
	}
	return nil
}
