// Package core provides the business logic for gzip city-file imports.
//
// This package contains the import pipeline independent of any store
// driver, input format or frontend. The CLI, the store packages and the
// tests all drive it through the same small interfaces.
//
// # Architecture
//
// One import is a single synchronous pipeline:
//
//	Source -> bufio -> ProgressReader -> gzip -> Parser -> DeliverFunc -> RecordWriter
//
//   - [Source]: a finite local byte container with a known size.
//   - [ProgressReader]: counts compressed bytes and reports them to a [ProgressSink].
//   - [Chain]: the decompressed view; gzip faults surface as [*DecodeError].
//   - [Parser]: pushes each record into a [DeliverFunc] as soon as it is parsed.
//   - [RecordWriter]: one prepared insert statement reused for every record.
//
// [Importer] ties them together inside one store transaction and an
// [ImportLock], so imports on one store never interleave.
//
// # Atomicity
//
// Every record of a file becomes visible, or none does. A record the store
// refuses on its own (a duplicate key) is skipped and counted without
// aborting; any other fault rolls the whole import back:
//
//	imp := core.New(store, parser)
//	res, err := imp.Import(ctx, core.FileSource("cities.json.gz"), nil)
//	if errors.Is(err, core.ErrDecode) {
//	    // corrupt or truncated gzip; nothing was written
//	}
//
// # Formats
//
// Parser packages register themselves with [RegisterFormat] at init time.
// The CLI resolves --format or the file name with [LookupFormat] and
// [DetectFormat]; the Importer itself only ever sees a [Parser].
//
// # Error Handling
//
// Fatal faults are returned as [*ImportError] matching one of [ErrSource],
// [ErrDecode], [ErrParse], [ErrStorage], [ErrCanceled] or
// [ErrImportInProgress]. [MapError] turns them into user-facing messages:
//
//   - IMP001-IMP004: Import control (busy, cancelled, timeout, format)
//   - SRC001-SRC003: Source file errors
//   - DEC001-DEC004: Gzip errors (header, checksum, truncation)
//   - PRS001-PRS003: Record syntax errors
//   - DB001-DB009: Database errors
package core
