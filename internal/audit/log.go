package audit

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

// Log is an append-only, gob-encoded lifecycle event log with a CRC32
// checksum per record for corruption detection.
type Log struct {
	file        *os.File
	writer      *bufio.Writer
	encoder     *gob.Encoder
	mu          sync.Mutex
	sequenceNum uint64
	syncMode    bool
	path        string
}

// Config configures the audit log.
type Config struct {
	Path string
	// SyncMode fsyncs after every Append. Slower, but survives a crash
	// between the write and the next flush.
	SyncMode bool
}

// Open creates or appends to the audit log at config.Path.
func Open(config Config) (*Log, error) {
	file, err := os.OpenFile(config.Path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}

	writer := bufio.NewWriter(file)
	l := &Log{
		file:     file,
		writer:   writer,
		encoder:  gob.NewEncoder(writer),
		syncMode: config.SyncMode,
		path:     config.Path,
	}

	if err := l.recover(); err != nil {
		file.Close()
		return nil, fmt.Errorf("audit: recover log: %w", err)
	}
	return l, nil
}

type record struct {
	SequenceNum uint64
	Data        interface{}
	Checksum    uint32
}

// Append writes event to the log, stamping it with the next sequence
// number, and returns that number.
func (l *Log) Append(event interface{}) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sequenceNum++
	seq := l.sequenceNum

	switch e := event.(type) {
	case *EngineStartedEvent:
		e.SequenceNum = seq
	case *ConfigLoadedEvent:
		e.SequenceNum = seq
	case *ConfigReloadFailedEvent:
		e.SequenceNum = seq
	case *HooksInstalledEvent:
		e.SequenceNum = seq
	case *HooksRemovedEvent:
		e.SequenceNum = seq
	case *RehookedEvent:
		e.SequenceNum = seq
	case *UnlockTimeoutFiredEvent:
		e.SequenceNum = seq
	case *EngineStoppedEvent:
		e.SequenceNum = seq
	}

	rec := record{
		SequenceNum: seq,
		Data:        event,
		Checksum:    crc32.ChecksumIEEE([]byte(fmt.Sprintf("%v", event))),
	}

	if err := l.encoder.Encode(rec); err != nil {
		return 0, fmt.Errorf("audit: encode record: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return 0, fmt.Errorf("audit: flush: %w", err)
	}
	if l.syncMode {
		if err := l.file.Sync(); err != nil {
			return 0, fmt.Errorf("audit: sync: %w", err)
		}
	}
	return seq, nil
}

// Replay reads every record in sequence order and calls handler for each,
// stopping at the first error handler returns or the first gap/checksum
// mismatch detected.
func (l *Log) Replay(handler func(seqNum uint64, event interface{}) error) error {
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("audit: open for replay: %w", err)
	}
	defer file.Close()

	decoder := gob.NewDecoder(file)
	var lastSeq uint64
	for {
		var rec record
		if err := decoder.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("audit: decode record: %w", err)
		}
		if lastSeq > 0 && rec.SequenceNum != lastSeq+1 {
			return fmt.Errorf("audit: sequence gap: expected %d, got %d", lastSeq+1, rec.SequenceNum)
		}
		lastSeq = rec.SequenceNum

		want := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%v", rec.Data)))
		if rec.Checksum != want {
			return fmt.Errorf("audit: checksum mismatch at sequence %d", rec.SequenceNum)
		}
		if err := handler(rec.SequenceNum, rec.Data); err != nil {
			return fmt.Errorf("audit: handler error at sequence %d: %w", rec.SequenceNum, err)
		}
	}
	return nil
}

func (l *Log) recover() error {
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	decoder := gob.NewDecoder(file)
	for {
		var rec record
		if err := decoder.Decode(&rec); err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		l.sequenceNum = rec.SequenceNum
	}
	return nil
}

// LastSequence returns the most recently assigned sequence number.
func (l *Log) LastSequence() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sequenceNum
}

// Sync forces a flush and fsync regardless of SyncMode.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Sync()
}

// Close flushes and closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.writer.Flush(); err != nil {
		return err
	}
	return l.file.Close()
}

func init() {
	gob.Register(&EngineStartedEvent{})
	gob.Register(&ConfigLoadedEvent{})
	gob.Register(&ConfigReloadFailedEvent{})
	gob.Register(&HooksInstalledEvent{})
	gob.Register(&HooksRemovedEvent{})
	gob.Register(&RehookedEvent{})
	gob.Register(&UnlockTimeoutFiredEvent{})
	gob.Register(&EngineStoppedEvent{})
}
