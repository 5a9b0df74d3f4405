package collector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/golang/snappy"
)

// Journal is an append-only history of snapshots, one compressed entry
// per poll cycle. It exists for post-incident analysis: replaying the
// journal shows exactly what the cluster looked like to the collector
// before and during a failover.
//
// Entry format: [Seq:8][DataLen:4][SnappyData:N][Checksum:4][UnixTs:8]
type Journal struct {
	mu         sync.Mutex
	file       *os.File
	writer     *bufio.Writer
	path       string
	currentSeq uint64
}

// JournalEntry is one recovered journal record.
type JournalEntry struct {
	Seq       uint64
	Timestamp int64
	Snapshot  *Snapshot
}

// OpenJournal opens or creates the journal at path and positions the
// sequence counter after the last valid entry.
func OpenJournal(path string) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	j := &Journal{
		file:   file,
		writer: bufio.NewWriter(file),
		path:   path,
	}

	entries, err := j.readAllLocked()
	if err != nil {
		file.Close()
		return nil, err
	}
	if n := len(entries); n > 0 {
		j.currentSeq = entries[n-1].Seq
	}

	return j, nil
}

// Append writes one snapshot to the journal and syncs it to disk.
func (j *Journal) Append(snap *Snapshot) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	compressed := snappy.Encode(nil, data)

	j.currentSeq++
	seq := j.currentSeq

	if err := j.writeEntry(seq, compressed, snap.CollectedAt.Unix()); err != nil {
		j.currentSeq--
		return 0, fmt.Errorf("failed to write journal entry: %w", err)
	}

	if err := j.writer.Flush(); err != nil {
		return 0, fmt.Errorf("failed to flush journal: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync journal: %w", err)
	}

	return seq, nil
}

func (j *Journal) writeEntry(seq uint64, compressed []byte, ts int64) error {
	if err := binary.Write(j.writer, binary.BigEndian, seq); err != nil {
		return err
	}
	if err := binary.Write(j.writer, binary.BigEndian, uint32(len(compressed))); err != nil {
		return err
	}
	if _, err := j.writer.Write(compressed); err != nil {
		return err
	}
	if err := binary.Write(j.writer, binary.BigEndian, crc32.ChecksumIEEE(compressed)); err != nil {
		return err
	}
	return binary.Write(j.writer, binary.BigEndian, ts)
}

// ReadAll returns every valid entry in the journal. A torn tail entry
// from a crash mid-write is dropped, not treated as corruption.
func (j *Journal) ReadAll() ([]*JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush journal: %w", err)
	}
	return j.readAllLocked()
}

func (j *Journal) readAllLocked() ([]*JournalEntry, error) {
	file, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	var entries []*JournalEntry

	for {
		var seq uint64
		if err := binary.Read(reader, binary.BigEndian, &seq); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to read journal seq: %w", err)
		}

		var dataLen uint32
		if err := binary.Read(reader, binary.BigEndian, &dataLen); err != nil {
			break // torn entry
		}

		compressed := make([]byte, dataLen)
		if _, err := io.ReadFull(reader, compressed); err != nil {
			break // torn entry
		}

		var checksum uint32
		if err := binary.Read(reader, binary.BigEndian, &checksum); err != nil {
			break // torn entry
		}
		if crc32.ChecksumIEEE(compressed) != checksum {
			return nil, fmt.Errorf("journal entry %d checksum mismatch", seq)
		}

		var ts int64
		if err := binary.Read(reader, binary.BigEndian, &ts); err != nil {
			break // torn entry
		}

		data, err := snappy.Decode(nil, compressed)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress journal entry %d: %w", seq, err)
		}

		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal journal entry %d: %w", seq, err)
		}

		entries = append(entries, &JournalEntry{Seq: seq, Timestamp: ts, Snapshot: &snap})
	}

	return entries, nil
}

// Close flushes and closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.writer.Flush(); err != nil {
		return err
	}
	return j.file.Close()
}
