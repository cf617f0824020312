package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/sriram-pr/article-scraper/pkg/log"
	"github.com/sriram-pr/article-scraper/pkg/models"
	"github.com/sriram-pr/article-scraper/pkg/utils"
)

const (
	articleKeyPrefix     = "article:"   // Prefix for article URL keys in DB
	fingerprintKeyPrefix = "fp:"        // Prefix for content fingerprint keys in DB
	cacheKeyPrefix       = "cache:"     // Prefix for TTL'd response cache keys in DB
	harvestDBDir         = "harvest_db" // Subdirectory name within stateDir for Badger DB files
)

// BadgerStore implements the HarvestStore interface using BadgerDB
type BadgerStore struct {
	db       *badger.DB
	log      *logrus.Entry
	ctx      context.Context // Parent context
	keyCount atomic.Int64    // Cached article key count for O(1) GetVisitedCount
}

// NewBadgerStore initializes and returns a new BadgerStore
func NewBadgerStore(ctx context.Context, stateDir, sourceDomain string, resume bool, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{
		log: logger,
		ctx: ctx,
	}

	// Create a unique directory path for this source's DB within the base state directory
	dbDirName := utils.SanitizeFilename(sourceDomain) + "_" + harvestDBDir
	dbPath := filepath.Join(stateDir, dbDirName)

	if !resume {
		logger.Warnf("Resume flag is false. REMOVING existing state directory: %s", dbPath)
		if err := os.RemoveAll(dbPath); err != nil {
			// Log error but attempt to continue; Badger might recover or create new files
			logger.Errorf("Failed to remove existing state directory %s: %v", dbPath, err)
		}
	}

	logger.Infof("Initializing harvest state database at: %s (Resume: %v)", dbPath, resume)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("cannot create state directory %s: %w", dbPath, err)
	}

	// Configure Badger options
	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger). // Use custom logrus adapter
		WithNumVersionsToKeep(1)  // Only keep the latest state

	// Open the database
	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", dbPath, err)
	}

	// Initialize article key count from existing data (matters for resume mode)
	if resume {
		count, err := store.countArticleKeys()
		if err != nil {
			logger.Warnf("Failed to count existing keys on resume: %v", err)
		} else {
			store.keyCount.Store(int64(count))
			logger.Infof("Loaded existing article key count on resume: %d", count)
		}
	}

	logger.Info("Harvest state database initialized successfully.")
	return store, nil
}

// countArticleKeys performs a one-time article-prefix scan (used only during
// initialization on resume).
func (s *BadgerStore) countArticleKeys() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(articleKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent MVCC transactions on overlapping keys can return badger.ErrConflict;
// these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

// MarkArticleVisited implements the HarvestStore interface
func (s *BadgerStore) MarkArticleVisited(normalizedURL string) (bool, error) {
	if s.db == nil {
		return false, errors.New("harvest DB not initialized")
	}
	added := false
	key := []byte(articleKeyPrefix + normalizedURL)

	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			// Key doesn't exist, add it with an empty value.
			e := badger.NewEntry(key, []byte{})
			errSet := txn.SetEntry(e)
			if errSet == nil {
				added = true
			}
			return errSet
		}
		// Key already exists or another error occurred
		return errGet // Return the original error (could be nil if key exists)
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in MarkArticleVisited: %v", err)
		return false, fmt.Errorf("%w: marking article key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if added {
		s.keyCount.Add(1)
	}

	return added, nil
}

// CheckArticleStatus implements the HarvestStore interface
func (s *BadgerStore) CheckArticleStatus(normalizedURL string) (models.ArticleStatus, *models.ArticleDBEntry, error) {
	status := models.ArticleStatusNotFound
	var entry *models.ArticleDBEntry = nil
	key := []byte(articleKeyPrefix + normalizedURL)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			status = models.ArticleStatusNotFound // Explicitly set status
			return nil                            // Key not found is not an error for this function's purpose
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting article key '%s': %w", utils.ErrDatabase, string(key), errGet)
		}

		// Key found, now get the value
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				status = models.ArticleStatusPending // Key exists but has no data yet
				return nil
			}

			// Value is not empty, try to decode
			var decodedEntry models.ArticleDBEntry
			if errJson := json.Unmarshal(val, &decodedEntry); errJson != nil {
				s.log.Warnf("Failed to unmarshal ArticleDBEntry for key '%s': %v. Treating as 'pending'.", string(key), errJson)
				status = models.ArticleStatusPending // Treat unmarshal error as pending state
				return nil                           // Return nil to continue View, status is set
			}

			// Successfully decoded
			entry = &decodedEntry
			status = decodedEntry.Status
			s.log.Debugf("Article key '%s' found, decoded status: %s", string(key), status)
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in CheckArticleStatus for key '%s': %v", string(key), errView)
		status = models.ArticleStatusDBError // Set status to indicate DB error
		return status, nil, errView          // Return the DB error
	}

	// No DB error occurred during View/Get/Value
	return status, entry, nil
}

// UpdateArticleStatus implements the HarvestStore interface
func (s *BadgerStore) UpdateArticleStatus(normalizedURL string, entry *models.ArticleDBEntry) error {
	if s.db == nil {
		return errors.New("harvest DB not initialized")
	}
	key := []byte(articleKeyPrefix + normalizedURL)

	entryBytes, errJson := json.Marshal(entry)
	if errJson != nil {
		wrappedErr := fmt.Errorf("%w: failed to marshal ArticleDBEntry for key '%s': %w", utils.ErrParsing, string(key), errJson)
		s.log.Error(wrappedErr)
		return wrappedErr
	}

	isNew := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			isNew = true
		}
		e := badger.NewEntry(key, entryBytes)
		return txn.SetEntry(e)
	})

	if err != nil {
		s.log.WithField("key", string(key)).Errorf("DB Update error in UpdateArticleStatus: %v", err)
		return fmt.Errorf("%w: failed setting article status for key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	if isNew {
		s.keyCount.Add(1)
	}

	s.log.Debugf("Successfully updated article status for key '%s' to '%s'", string(key), entry.Status)
	return nil
}

// GetArticleContentHash retrieves the content hash for a previously harvested article.
// Returns the hash string, whether it exists, and any error.
func (s *BadgerStore) GetArticleContentHash(normalizedURL string) (hash string, exists bool, err error) {
	status, entry, checkErr := s.CheckArticleStatus(normalizedURL)
	if checkErr != nil {
		return "", false, checkErr
	}

	// Only return hash for successfully processed articles
	if status == models.ArticleStatusSuccess && entry != nil && entry.ContentHash != "" {
		return entry.ContentHash, true, nil
	}

	return "", false, nil
}

// AddFingerprint implements the HarvestStore interface.
// The first writer of a hash wins; later writers see added=false.
func (s *BadgerStore) AddFingerprint(fp models.ContentFingerprint) (bool, error) {
	if s.db == nil {
		return false, errors.New("harvest DB not initialized")
	}
	key := []byte(fingerprintKeyPrefix + fp.Hash)

	fpBytes, errJson := json.Marshal(fp)
	if errJson != nil {
		return false, fmt.Errorf("%w: failed to marshal fingerprint '%s': %w", utils.ErrParsing, fp.Hash, errJson)
	}

	added := false
	err := s.dbUpdate(func(txn *badger.Txn) error {
		_, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			e := badger.NewEntry(key, fpBytes)
			errSet := txn.SetEntry(e)
			if errSet == nil {
				added = true
			}
			return errSet
		}
		return errGet
	})

	if err != nil {
		s.log.WithField("hash", fp.Hash).Errorf("DB Update error in AddFingerprint: %v", err)
		return false, fmt.Errorf("%w: recording fingerprint '%s': %w", utils.ErrDatabase, fp.Hash, err)
	}

	return added, nil
}

// GetFingerprint implements the HarvestStore interface
func (s *BadgerStore) GetFingerprint(hash string) (*models.ContentFingerprint, bool, error) {
	var fp *models.ContentFingerprint
	key := []byte(fingerprintKeyPrefix + hash)

	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting fingerprint '%s': %w", utils.ErrDatabase, hash, errGet)
		}

		return item.Value(func(val []byte) error {
			var decoded models.ContentFingerprint
			if errJson := json.Unmarshal(val, &decoded); errJson != nil {
				s.log.Warnf("Failed to unmarshal fingerprint for hash '%s': %v. Treating as absent.", hash, errJson)
				return nil
			}
			fp = &decoded
			return nil
		})
	})

	if errView != nil {
		s.log.Errorf("DB View error in GetFingerprint for hash '%s': %v", hash, errView)
		return nil, false, errView
	}

	return fp, fp != nil, nil
}

// SetKV implements the HarvestStore interface.
// A positive ttl uses Badger's native entry expiry; expired keys surface as absent.
func (s *BadgerStore) SetKV(kvKey string, value []byte, ttl time.Duration) error {
	if s.db == nil {
		return errors.New("harvest DB not initialized")
	}
	key := []byte(cacheKeyPrefix + kvKey)

	err := s.dbUpdate(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})

	if err != nil {
		s.log.WithField("key", kvKey).Errorf("DB Update error in SetKV: %v", err)
		return fmt.Errorf("%w: setting cache key '%s': %w", utils.ErrDatabase, kvKey, err)
	}
	return nil
}

// GetKV implements the HarvestStore interface
func (s *BadgerStore) GetKV(kvKey string) ([]byte, bool, error) {
	if s.db == nil {
		return nil, false, errors.New("harvest DB not initialized")
	}
	key := []byte(cacheKeyPrefix + kvKey)

	var value []byte
	found := false
	errView := s.db.View(func(txn *badger.Txn) error {
		item, errGet := txn.Get(key)
		if errors.Is(errGet, badger.ErrKeyNotFound) {
			return nil
		}
		if errGet != nil {
			return fmt.Errorf("%w: failed getting cache key '%s': %w", utils.ErrDatabase, kvKey, errGet)
		}

		val, errVal := item.ValueCopy(nil)
		if errVal != nil {
			return fmt.Errorf("%w: reading cache value for key '%s': %w", utils.ErrDatabase, kvKey, errVal)
		}
		value = val
		found = true
		return nil
	})

	if errView != nil {
		s.log.Errorf("DB View error in GetKV for key '%s': %v", kvKey, errView)
		return nil, false, errView
	}

	return value, found, nil
}

// DeleteKV implements the HarvestStore interface
func (s *BadgerStore) DeleteKV(kvKey string) error {
	if s.db == nil {
		return errors.New("harvest DB not initialized")
	}
	key := []byte(cacheKeyPrefix + kvKey)

	err := s.dbUpdate(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})

	if err != nil {
		s.log.WithField("key", kvKey).Errorf("DB Update error in DeleteKV: %v", err)
		return fmt.Errorf("%w: deleting cache key '%s': %w", utils.ErrDatabase, kvKey, err)
	}
	return nil
}

// GetVisitedCount implements the HarvestStore interface.
// Returns the cached article key count (O(1)) maintained by atomic increments on writes.
func (s *BadgerStore) GetVisitedCount() (int, error) {
	return int(s.keyCount.Load()), nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute // Default interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("BadgerDB GC goroutine started.")

	for {
		select {
		case <-ticker.C:
			// Check if DB is valid before running GC
			if s.db == nil || s.db.IsClosed() {
				s.log.Info("DB GC: Database is nil or closed, skipping GC cycle.")
				continue
			}

			s.log.Info("Running BadgerDB value log garbage collection...")
			var err error
			// Loop GC until it returns ErrNoRewrite or another error
			for {
				// Run GC if log is at least 50% reclaimable space
				err = s.db.RunValueLogGC(0.5)
				if err == nil {
					s.log.Info("BadgerDB GC cycle completed.")
				} else {
					break // Exit loop if GC finished (ErrNoRewrite) or encountered an error
				}
			}

			// Log outcome
			if errors.Is(err, badger.ErrNoRewrite) {
				s.log.Info("BadgerDB GC finished (no rewrite needed).")
			} else {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}

		case <-ctx.Done(): // Check if stop signal received via context cancellation
			s.log.Infof("Stopping BadgerDB garbage collection goroutine due to context cancellation: %v", ctx.Err())
			return
		}
	}
}

// RequeueIncomplete implements the HarvestStore interface
func (s *BadgerStore) RequeueIncomplete(ctx context.Context, workChan chan<- models.WorkItem) (int, int, error) {
	s.log.Info("Resume Mode: Scanning database for incomplete tasks to requeue...")
	requeuedCount := 0
	scanErrors := 0
	scanStartTime := time.Now()

	scanErr := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true // Need values to check status
		it := txn.NewIterator(opts)
		defer it.Close()

		keyPrefixBytes := []byte(articleKeyPrefix)

		for it.Seek(keyPrefixBytes); it.ValidForPrefix(keyPrefixBytes); it.Next() {
			// Check context cancellation within the loop
			select {
			case <-ctx.Done():
				s.log.Warnf("Resume scan interrupted by context cancellation: %v", ctx.Err())
				return ctx.Err() // Stop iteration
			default:
				// Continue processing item
			}

			item := it.Item()
			keyBytesWithPrefix := item.KeyCopy(nil)
			keyBytes := keyBytesWithPrefix[len(keyPrefixBytes):] // Strip prefix
			urlToRequeue := string(keyBytes)

			errGetValue := item.Value(func(valBytes []byte) error {
				valCopy := make([]byte, len(valBytes))
				copy(valCopy, valBytes)
				shouldRequeue := false
				requeueDepth := 0

				if len(valCopy) == 0 { // Case 1: Empty value (implicitly pending)
					s.log.Debugf("Resume Scan: Found empty value for '%s'. Requeueing (Depth 0).", urlToRequeue)
					shouldRequeue = true
					requeueDepth = 0 // Fallback depth
				} else { // Case 2: Decode ArticleDBEntry
					var entry models.ArticleDBEntry
					if errJson := json.Unmarshal(valCopy, &entry); errJson != nil {
						s.log.Errorf("Resume Scan: Failed unmarshal ArticleDBEntry for '%s': %v. Skipping.", urlToRequeue, errJson)
						scanErrors++
						return nil // Continue iteration
					}
					// Case 3: Check status
					if entry.Status == models.ArticleStatusFailure || entry.Status == models.ArticleStatusPending {
						s.log.Debugf("Resume Scan: Requeueing '%s' (Status: %s, Depth: %d)", urlToRequeue, entry.Status, entry.Depth)
						shouldRequeue = true
						requeueDepth = entry.Depth // Use stored depth
					}
				}

				if shouldRequeue {
					// Send to channel, respecting context cancellation
					select {
					case workChan <- models.WorkItem{URL: urlToRequeue, Depth: requeueDepth}:
						requeuedCount++
					case <-ctx.Done():
						s.log.Warnf("Resume scan interrupted while sending '%s' to queue: %v", urlToRequeue, ctx.Err())
						return ctx.Err() // Stop iteration
					}
				}
				return nil
			})

			if errGetValue != nil {
				// Check if the error was context cancellation propagated from Value func
				if errors.Is(errGetValue, context.Canceled) || errors.Is(errGetValue, context.DeadlineExceeded) {
					return errGetValue // Propagate context error to stop iteration
				}
				s.log.Errorf("Resume Scan: Error getting value for key '%s': %v", urlToRequeue, errGetValue)
				scanErrors++
			}
		}
		return nil
	})

	durationScan := time.Since(scanStartTime)
	if scanErr != nil && !errors.Is(scanErr, context.Canceled) && !errors.Is(scanErr, context.DeadlineExceeded) {
		// Log scan error only if it wasn't a context cancellation
		s.log.Errorf("Error during DB scan for resume: %v.", scanErr)
	}
	s.log.Infof("Resume Scan Complete: Requeued %d tasks in %v. Errors: %d.", requeuedCount, durationScan, scanErrors)

	return requeuedCount, scanErrors, scanErr
}

// WriteVisitedLog implements the HarvestStore interface.
func (s *BadgerStore) WriteVisitedLog(filePath string) error {
	s.log.Info("Writing list of visited article URLs (from DB)...")
	file, err := os.Create(filePath)
	if err != nil {
		s.log.Errorf("Failed create visited log '%s': %v", filePath, err)
		return fmt.Errorf("create visited log '%s': %w", filePath, err)
	}
	defer file.Close() // Ensure file is closed

	writer := bufio.NewWriter(file)
	s.log.Info("Iterating harvest DB to write log file...")
	var dbErr error
	writtenCount := 0

	iterErr := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		articlePrefixBytes := []byte(articleKeyPrefix)

		for it.Seek(articlePrefixBytes); it.ValidForPrefix(articlePrefixBytes); it.Next() {
			// Check context cancellation within the loop
			select {
			case <-s.ctx.Done():
				s.log.Warnf("WriteVisitedLog scan interrupted by context cancellation: %v", s.ctx.Err())
				return s.ctx.Err() // Stop iteration
			default:
				// Continue processing item
			}

			item := it.Item()
			keyBytesWithPrefix := item.KeyCopy(nil) // Copy key with prefix
			if !bytes.HasPrefix(keyBytesWithPrefix, articlePrefixBytes) {
				continue
			}
			keyToWrite := string(keyBytesWithPrefix[len(articlePrefixBytes):])

			_, writeErr := writer.WriteString(keyToWrite + "\n") // Write stripped key
			if writeErr != nil {
				if dbErr == nil { // Store first write error
					dbErr = writeErr
				}
				s.log.Errorf("Error writing URL '%s' to visited log: %v", keyToWrite, writeErr)
				// Continue writing other URLs if possible
			}
			writtenCount++
			if writtenCount%5000 == 0 {
				s.log.Debugf("Flushing visited writer after %d entries...", writtenCount)
				if flushErr := writer.Flush(); flushErr != nil {
					if dbErr == nil { // Store first flush error
						dbErr = flushErr
					}
					s.log.Errorf("Error flushing visited writer: %v", flushErr)
					// Continue if possible
				}
			}
		}
		return nil
	})

	// Handle errors after iteration
	if iterErr != nil && !errors.Is(iterErr, context.Canceled) && !errors.Is(iterErr, context.DeadlineExceeded) {
		s.log.Errorf("Error during harvest DB iteration for log: %v", iterErr)
		if dbErr == nil {
			dbErr = iterErr
		}
	}

	// Final flush
	if flushErr := writer.Flush(); flushErr != nil {
		s.log.Errorf("Failed final flush for visited log '%s': %v", filePath, flushErr)
		if dbErr == nil {
			dbErr = flushErr
		}
	}

	// Sync to disk before closing
	if syncErr := file.Sync(); syncErr != nil {
		s.log.Errorf("Failed to sync visited log '%s': %v", filePath, syncErr)
		if dbErr == nil {
			dbErr = syncErr
		}
	}

	if iterErr == nil && dbErr == nil {
		s.log.Infof("Finished writing %d URLs to visited log: %s", writtenCount, filePath)
	} else {
		s.log.Warnf("Finished writing visited log with errors. Wrote ~%d URLs to %s", writtenCount, filePath)
	}

	// Return context error if iteration was cancelled, otherwise return first IO/DB error
	if errors.Is(iterErr, context.Canceled) || errors.Is(iterErr, context.DeadlineExceeded) {
		return iterErr
	}
	return dbErr
}

// Close implements the HarvestStore interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		s.log.Info("Closing harvest DB...")
		err := s.db.Close()
		if err != nil {
			s.log.Errorf("Error closing harvest DB: %v", err)
			return err
		}
		s.log.Info("Harvest DB closed.")
		return nil
	}
	s.log.Info("Harvest DB already closed or was not initialized.")
	return nil
}
