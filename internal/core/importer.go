package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/geoimport/internal/logging"
)

// ContextCheckInterval is how often (in records) to check for cancellation.
var ContextCheckInterval = 100

// Defaults for Importer options.
const (
	DefaultLogEvery      = 1000
	DefaultMaxRejections = 100

	// cleanupTimeout bounds rollback and statement release after the import
	// context is already canceled.
	cleanupTimeout = 10 * time.Second
)

// Option configures an Importer.
type Option func(*Importer)

// WithLockWait sets how long Import waits for a running import on the same
// store (default DefaultLockWait). Zero or negative means fail immediately.
func WithLockWait(d time.Duration) Option {
	return func(im *Importer) { im.lockWait = d }
}

// WithBufferSize sets the read buffer between the source and the decompressor.
func WithBufferSize(n int) Option {
	return func(im *Importer) { im.bufSize = n }
}

// WithLogEvery sets the debug log interval in inserted records. 0 disables it.
func WithLogEvery(n int) Option {
	return func(im *Importer) { im.logEvery = n }
}

// WithMaxRejections caps how many rejected rows are kept in Result.Rejections.
func WithMaxRejections(n int) Option {
	return func(im *Importer) { im.maxRejections = n }
}

// WithFormatName labels results and log entries with the input format.
func WithFormatName(name string) Option {
	return func(im *Importer) { im.format = name }
}

// Importer loads gzip-compressed record files into one store, one file per
// transaction. It is safe for concurrent use; imports on the same Importer
// run one at a time.
type Importer struct {
	store  Store
	parser Parser
	lock   *ImportLock

	lockWait      time.Duration
	bufSize       int
	logEvery      int
	maxRejections int
	format        string
}

// New creates an Importer for store using parser to decode every source.
func New(store Store, parser Parser, opts ...Option) *Importer {
	im := &Importer{
		store:         store,
		parser:        parser,
		lockWait:      DefaultLockWait,
		bufSize:       DefaultBufferSize,
		logEvery:      DefaultLogEvery,
		maxRejections: DefaultMaxRejections,
	}
	for _, opt := range opts {
		opt(im)
	}
	im.lock = NewImportLock(im.lockWait)
	return im
}

// Lock exposes the import lock for status reporting.
func (im *Importer) Lock() *ImportLock { return im.lock }

// Import streams src through gzip decompression and the parser into the
// store inside one transaction.
//
// Either every accepted record becomes visible or none does. Records the
// store rejects (duplicate keys) are counted and skipped without aborting.
// sink, when non-nil, receives compressed-byte progress on the calling
// goroutine.
//
// On failure the returned error is an *ImportError and the Result still
// describes how far the import got; nothing it wrote is visible.
func (im *Importer) Import(ctx context.Context, src Source, sink ProgressSink) (res *Result, err error) {
	start := time.Now()
	importID := uuid.New().String()
	ctx = logging.WithImportID(ctx, importID)
	log := logging.WithFields(ctx, "source", src.Name(), "format", im.format)

	res = &Result{
		ImportID: importID,
		Source:   src.Name(),
		Format:   im.format,
	}
	defer func() { res.Duration = time.Since(start) }()

	if err := im.lock.Acquire(ctx, importID); err != nil {
		if ctx.Err() != nil {
			return res, im.fail(ctx, StageLock, ErrCanceled, err)
		}
		return res, im.fail(ctx, StageLock, ErrImportInProgress,
			fmt.Errorf("store busy with import %s", im.lock.Status().ImportID))
	}
	defer im.lock.Release()

	chain, err := OpenChain(src, sink, im.bufSize)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			return res, im.fail(ctx, StageOpen, ErrDecode, err)
		}
		return res, im.fail(ctx, StageOpen, ErrSource, err)
	}
	defer func() {
		err = im.release(ctx, err, "close source", chain.Close())
	}()
	res.BytesTotal = chain.Total()

	log.Info("import started", "bytes_total", chain.Total())

	tx, err := im.store.Begin(ctx)
	if err != nil {
		return res, im.fail(ctx, StageBegin, im.storageKind(ctx), err)
	}
	txDone := false
	defer func() {
		if txDone {
			return
		}
		cctx, cancel := cleanupContext(ctx)
		defer cancel()
		rerr := tx.Rollback(cctx)
		if rerr == nil {
			log.Info("import rolled back", "discarded", res.Inserted)
		}
		err = im.release(ctx, err, "rollback", rerr)
	}()

	writer, err := tx.PrepareWriter(ctx)
	if err != nil {
		return res, im.fail(ctx, StagePrepare, im.storageKind(ctx), err)
	}
	writerOpen := true
	defer func() {
		if !writerOpen {
			return
		}
		cctx, cancel := cleanupContext(ctx)
		defer cancel()
		err = im.release(ctx, err, "close writer", writer.Close(cctx))
	}()

	var (
		storeErr error
		seen     int
	)
	deliver := func(rec Record) error {
		seen++
		if seen%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		werr := writer.Write(ctx, rec)
		switch {
		case werr == nil:
			res.Inserted++
			if im.logEvery > 0 && res.Inserted%im.logEvery == 0 {
				log.Debug("import progress",
					"inserted", res.Inserted,
					"rejected", res.Rejected,
					"bytes_read", chain.BytesRead(),
					"bytes_total", chain.Total(),
				)
			}
			return nil
		case IsRejected(werr):
			res.Rejected++
			if len(res.Rejections) < im.maxRejections {
				res.Rejections = append(res.Rejections, Rejection{
					RecordID: rec.ID,
					Reason:   werr.Error(),
				})
			}
			log.Warn("record rejected", "record_id", rec.ID, "error", werr)
			return nil
		default:
			storeErr = werr
			return werr
		}
	}

	perr := im.parser.Parse(chain, deliver)
	if perr == nil {
		// Consume the gzip trailer so a checksum mismatch fails the import.
		_, perr = chain.Drain()
	}
	res.BytesRead = chain.BytesRead()
	if perr != nil {
		return res, im.fail(ctx, StageImport, classify(ctx, chain, storeErr, perr), perr)
	}

	if err := ctx.Err(); err != nil {
		return res, im.fail(ctx, StageCommit, ErrCanceled, err)
	}

	writerOpen = false
	if err := writer.Close(ctx); err != nil {
		return res, im.fail(ctx, StageCommit, im.storageKind(ctx), fmt.Errorf("release statement: %w", err))
	}

	txDone = true
	if err := tx.Commit(ctx); err != nil {
		return res, im.fail(ctx, StageCommit, im.storageKind(ctx), err)
	}
	res.Committed = true

	log.Info("import committed",
		"inserted", res.Inserted,
		"rejected", res.Rejected,
		"bytes_read", res.BytesRead,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// classify maps a failed Parse to a fault class. A source failure underlies
// any decode or parse symptom it caused, so it is checked first.
func classify(ctx context.Context, chain *Chain, storeErr, err error) error {
	var de *DecodeError
	switch {
	case chain.SourceErr() != nil:
		return ErrSource
	case ctx.Err() != nil:
		return ErrCanceled
	case storeErr != nil:
		return ErrStorage
	case errors.As(err, &de):
		return ErrDecode
	default:
		return ErrParse
	}
}

func (im *Importer) storageKind(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCanceled
	}
	return ErrStorage
}

func (im *Importer) fail(ctx context.Context, stage Stage, kind, err error) error {
	logging.FromContext(ctx).Error("import failed",
		"stage", string(stage),
		"kind", kind.Error(),
		"error", err,
	)
	return &ImportError{Stage: stage, Kind: kind, Err: err}
}

// release logs a cleanup failure. It is added to err only when the import
// already failed; a committed import stays successful.
func (im *Importer) release(ctx context.Context, err error, what string, cerr error) error {
	if cerr == nil {
		return err
	}
	logging.FromContext(ctx).Error("release failed", "resource", what, "error", cerr)

	var ie *ImportError
	if errors.As(err, &ie) {
		ie.Err = errors.Join(ie.Err, fmt.Errorf("%s: %w", what, cerr))
	}
	return err
}

func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}
