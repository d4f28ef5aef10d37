package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cuemby/warren/pkg/types"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketSuffixJobs       = ".jobs"
	bucketSuffixFiles      = ".files"
	bucketSuffixAccounting = ".accounting"
	globalAccountingUser   = "__global__"
)

// BoltStore implements Store on top of a single bbolt file. Every user gets
// its own set of buckets (<user>.jobs, <user>.files, <user>.accounting) so
// that no write transaction ever touches more than one user's records;
// buckets are created lazily on first write. FindUnfinishedAllUsers and
// ListUsers are read-only sweeps across every user's buckets.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the bbolt file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "orchestrator.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func jobsBucket(user string) []byte       { return []byte(user + bucketSuffixJobs) }
func filesBucket(user string) []byte      { return []byte(user + bucketSuffixFiles) }
func accountingBucket(user string) []byte { return []byte(user + bucketSuffixAccounting) }

// InsertJob creates or overwrites job.JobID in user's job bucket.
func (s *BoltStore) InsertJob(user string, job *types.Job) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(jobsBucket(user))
		if err != nil {
			return fmt.Errorf("failed to create job bucket for %s: %w", user, err)
		}
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		return b.Put([]byte(job.JobID), data)
	})
}

// UpdateJob is an alias for InsertJob: both are whole-record upserts, the
// caller is responsible for merging partial fields before calling.
func (s *BoltStore) UpdateJob(user string, job *types.Job) error {
	return s.InsertJob(user, job)
}

// FindJob looks up one job by id within user's partition.
func (s *BoltStore) FindJob(user, jobID string) (*types.Job, error) {
	var job types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(jobsBucket(user))
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(jobID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindJobByPid scans user's job bucket for the record with a matching
// scheduler-assigned pid. Job buckets are small per user; a full scan is
// acceptable and keeps the on-disk schema to one index.
func (s *BoltStore) FindJobByPid(user, pid string) (*types.Job, error) {
	var found *types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(jobsBucket(user))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if job.Pid == pid {
				found = &job
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

// FindJobs lists user's jobs matching filter; zero-value fields of filter
// are not applied.
func (s *BoltStore) FindJobs(user string, filter JobFilter) ([]*types.Job, error) {
	var jobs []*types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(jobsBucket(user))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			if matchesFilter(&job, filter) {
				jobs = append(jobs, &job)
			}
			return nil
		})
	})
	return jobs, err
}

func matchesFilter(job *types.Job, filter JobFilter) bool {
	if filter.App != "" && job.App != filter.App {
		return false
	}
	if filter.Scheduler != "" && job.Scheduler != filter.Scheduler {
		return false
	}
	if filter.State != "" && job.State != filter.State {
		return false
	}
	if filter.Tag != "" && job.Tag != filter.Tag {
		return false
	}
	return true
}

// FindUnfinishedAllUsers scans every <user>.jobs bucket for jobs whose
// state is PENDING, STARTED or RUNNING. This is the reconciliation
// engine's single entry point into the store and the only operation that
// legitimately crosses user partitions.
func (s *BoltStore) FindUnfinishedAllUsers() ([]*types.Job, error) {
	var jobs []*types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			if !strings.HasSuffix(string(name), bucketSuffixJobs) {
				return nil
			}
			return b.ForEach(func(k, v []byte) error {
				var job types.Job
				if err := json.Unmarshal(v, &job); err != nil {
					return err
				}
				if job.State.Unfinished() {
					jobs = append(jobs, &job)
				}
				return nil
			})
		})
	})
	return jobs, err
}

// InsertFile creates or overwrites file.FileID in user's file bucket.
func (s *BoltStore) InsertFile(user string, file *types.File) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(filesBucket(user))
		if err != nil {
			return fmt.Errorf("failed to create file bucket for %s: %w", user, err)
		}
		data, err := json.Marshal(file)
		if err != nil {
			return err
		}
		return b.Put([]byte(file.FileID), data)
	})
}

// FindFile looks up one file by id within user's partition.
func (s *BoltStore) FindFile(user, fileID string) (*types.File, error) {
	var file types.File
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(filesBucket(user))
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte(fileID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &file)
	})
	if err != nil {
		return nil, err
	}
	return &file, nil
}

// FindFiles lists user's files, optionally narrowed to one tag.
func (s *BoltStore) FindFiles(user string, tag string) ([]*types.File, error) {
	var files []*types.File
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(filesBucket(user))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var file types.File
			if err := json.Unmarshal(v, &file); err != nil {
				return err
			}
			if tag == "" || file.Tag == tag {
				files = append(files, &file)
			}
			return nil
		})
	})
	return files, err
}

// DeleteFile removes a file record from user's partition. Deleting an
// already-absent id is not an error.
func (s *BoltStore) DeleteFile(user, fileID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(filesBucket(user))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(fileID))
	})
}

// PutAccounting stores the latest snapshot for user, overwriting any prior
// one. An empty user stores the cross-tenant aggregate.
func (s *BoltStore) PutAccounting(user string, acc *types.Accounting) error {
	key := user
	if key == "" {
		key = globalAccountingUser
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(accountingBucket(key))
		if err != nil {
			return fmt.Errorf("failed to create accounting bucket for %s: %w", user, err)
		}
		data, err := json.Marshal(acc)
		if err != nil {
			return err
		}
		return b.Put([]byte("latest"), data)
	})
}

// GetAccounting returns user's latest snapshot.
func (s *BoltStore) GetAccounting(user string) (*types.Accounting, error) {
	key := user
	if key == "" {
		key = globalAccountingUser
	}
	var acc types.Accounting
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(accountingBucket(key))
		if b == nil {
			return ErrNotFound
		}
		data := b.Get([]byte("latest"))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &acc)
	})
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// ListUsers returns every tenant with at least one job or file bucket.
func (s *BoltStore) ListUsers() ([]string, error) {
	seen := map[string]struct{}{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			n := string(name)
			switch {
			case strings.HasSuffix(n, bucketSuffixJobs):
				seen[strings.TrimSuffix(n, bucketSuffixJobs)] = struct{}{}
			case strings.HasSuffix(n, bucketSuffixFiles):
				seen[strings.TrimSuffix(n, bucketSuffixFiles)] = struct{}{}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	return users, nil
}
