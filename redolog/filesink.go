package redolog

import (
	"context"
	"encoding/base32"
	"encoding/binary"
	"encoding/json"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/ncw/directio"

	"github.com/sharedcode/vtm"
	"github.com/sharedcode/vtm/fs"
	"github.com/sharedcode/vtm/redolog/erasure"
)

// rotationFilenameEncoding renders a monotonic rotation id (8 bytes, big-endian) as a fixed-length
// 13-symbol base-32 name. The RFC 4648 "base32hex" alphabet lists its 32 symbols in ASCII order, so
// rotated log files sort lexically in creation order.
var rotationFilenameEncoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// defaultTransactionsPerFile matches the teacher's own rotation policy: a rotation file is
// retired after this many committed transactions land in it, regardless of how few bytes that
// turns out to be.
const defaultTransactionsPerFile = 5

// FileSink is a durable, rotating redo-log sink (C5). Each rotation is one file under dir, named
// from a monotonically increasing id so `ls` order is commit order. Writes are appended using
// direct, block-aligned I/O (bypassing the page cache) so a commit's Flush genuinely reaches the
// platter rather than just the kernel's write-back buffer. When an ErasureConfig is supplied,
// every appended record is additionally Reed-Solomon encoded across ErasureConfig.DataShardsCount
// data shards plus ErasureConfig.ParityShardsCount parity shards before being written, so the log
// tolerates losing or corrupting up to ParityShardsCount of those shards.
//
// Rotation is a creation policy, not a size cap: a file is retired once it holds
// transactionsPerFile committed transactions, and each new rotation file is preallocated to
// segmentSize bytes up front, mirroring FileRotationOptions' fixed _segment_size per file.
type FileSink struct {
	dir                 string
	segmentSize         int64
	transactionsPerFile int

	mu         sync.Mutex
	file       *os.File
	written    int64
	rotID      uint64
	txnsInFile int

	nextSeq uint64

	erasure *erasure.Erasure
}

// ErasureConfig enables Reed-Solomon-coded durability for a FileSink.
type ErasureConfig struct {
	DataShardsCount   int
	ParityShardsCount int
}

// NewFileSink opens (or creates) dir and starts a fresh rotation file. A rotation file is cut
// over to the next one after transactionsPerFile commits land in it (defaultTransactionsPerFile
// if <= 0); segmentSize, if > 0, preallocates each rotation file to that fixed size up front.
func NewFileSink(dir string, segmentSize int64, transactionsPerFile int, ec *ErasureConfig) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, vtm.ErrFileOpen(err)
	}
	if transactionsPerFile <= 0 {
		transactionsPerFile = defaultTransactionsPerFile
	}
	s := &FileSink{dir: dir, segmentSize: segmentSize, transactionsPerFile: transactionsPerFile}
	if ec != nil {
		enc, err := erasure.NewErasure(ec.DataShardsCount, ec.ParityShardsCount)
		if err != nil {
			return nil, vtm.ErrFileOpen(err)
		}
		s.erasure = enc
	}
	if err := s.rotateLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSink) rotationName(id uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return rotationFilenameEncoding.EncodeToString(b[:])
}

// rotateLocked fsyncs and closes the current rotation file (if any) and opens the next one using
// direct I/O. Caller must hold s.mu.
func (s *FileSink) rotateLocked() error {
	if s.file != nil {
		if err := s.file.Sync(); err != nil {
			return vtm.ErrWriteFile(err)
		}
		if err := s.file.Close(); err != nil {
			return vtm.ErrWriteFile(err)
		}
	}
	s.rotID++
	path := filepath.Join(s.dir, s.rotationName(s.rotID))
	f, err := directio.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		log.Warn(fmt.Sprintf("redolog: direct I/O open failed for %s, falling back to buffered: %v", path, err))
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			return vtm.ErrFileOpen(err)
		}
	}
	s.file = f
	s.written = 0
	s.txnsInFile = 0
	if s.segmentSize > 0 {
		if err := s.file.Truncate(s.segmentSize); err != nil {
			return vtm.ErrWriteFile(err)
		}
	}
	return nil
}

// AppendTransaction serializes writes as one JSON record (optionally erasure-coded), pads it to
// directio.BlockSize, and appends it to the current rotation file, rotating to a fresh file first
// once the current one already holds transactionsPerFile commits.
func (s *FileSink) AppendTransaction(_ context.Context, txnID uint64, writes []fs.WriteRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.txnsInFile >= s.transactionsPerFile {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}

	seq := atomic.AddUint64(&s.nextSeq, 1)
	rec := Record{SequenceID: seq, TxnID: txnID, Writes: writes}
	payload, err := json.Marshal(rec)
	if err != nil {
		return vtm.ErrWriteFile(err)
	}

	block, err := s.encodeBlock(payload)
	if err != nil {
		return err
	}

	n, err := s.file.Write(block)
	if err != nil {
		return vtm.ErrWriteFile(err)
	}
	s.written += int64(n)
	s.txnsInFile++
	return nil
}

// encodeBlock frames payload with a length prefix and pads to a directio.BlockSize boundary (the
// sector/page size the platform requires for O_DIRECT I/O); if erasure coding is configured, the
// frame is built from the joined shard bytes instead of the raw payload, each shard prefixed with
// its erasure.MetaDataSize-byte ComputeShardMetadata (pad length + md5 checksum), so a later reader
// of the rotation file has everything Decode needs to detect and repair a damaged shard.
func (s *FileSink) encodeBlock(payload []byte) ([]byte, error) {
	data := payload
	if s.erasure != nil {
		shards, err := s.erasure.Encode(payload)
		if err != nil {
			return nil, vtm.ErrWriteFile(err)
		}
		// A fresh buffer: the data shards alias payload's backing array.
		data = make([]byte, 0, len(shards)*(erasure.MetaDataSize+len(shards[0])))
		for i, sh := range shards {
			meta := s.erasure.ComputeShardMetadata(len(payload), shards, i)
			data = append(data, meta...)
			data = append(data, sh...)
		}
	}

	framed := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(framed, uint32(len(data)))
	copy(framed[4:], data)

	blockSize := directio.BlockSize
	padded := ((len(framed) + blockSize - 1) / blockSize) * blockSize
	block := directio.AlignedBlock(padded)
	copy(block, framed)
	return block, nil
}

// Flush fsyncs the current rotation file, per spec.md §4.3's durability contract: commit calls
// Flush synchronously before releasing locks, so a crash after Flush never loses the transaction.
func (s *FileSink) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		return vtm.ErrWriteFile(err)
	}
	return nil
}

// Close flushes and closes the current rotation file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		return vtm.ErrWriteFile(err)
	}
	if err := s.file.Close(); err != nil {
		return vtm.ErrWriteFile(err)
	}
	s.file = nil
	return nil
}
