// Package audit keeps a persistent journal of DHCP exchange outcomes.
// Every acquisition run appends one record: bound, nak, offer_mismatch or timeout.
package audit

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Records live in bucketExchanges under an 8-byte sequence key. bucketByIP
// holds empty values keyed by the 4-byte address followed by that sequence.
var (
	bucketExchanges = []byte("exchanges")
	bucketByIP      = []byte("exchanges_by_ip")
)

// Event types.
const (
	EventBound         = "bound"
	EventNak           = "nak"
	EventOfferMismatch = "offer_mismatch"
	EventTimeout       = "timeout"
)

// DefaultQueryLimit caps Query when QueryParams.Limit is zero.
const DefaultQueryLimit = 1000

// Record is a single journal entry.
type Record struct {
	ID           uint64 `json:"id"`
	Timestamp    string `json:"timestamp"`
	Event        string `json:"event"`
	Interface    string `json:"interface,omitempty"`
	MAC          string `json:"mac"`
	XID          string `json:"xid,omitempty"`
	IP           string `json:"ip,omitempty"`
	RequestedIP  string `json:"requested_ip,omitempty"`
	ServerID     string `json:"server_id,omitempty"`
	LeaseSeconds int64  `json:"lease_seconds,omitempty"`
	Attempts     int    `json:"attempts,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// QueryParams selects records. Zero fields match everything.
type QueryParams struct {
	IP    string
	MAC   string
	Event string
	From  time.Time // inclusive
	To    time.Time // inclusive
	Limit int
}

// Log is an append-only exchange journal.
type Log struct {
	db     *bolt.DB
	logger *slog.Logger
	owned  bool
}

// Open opens (or creates) the journal database at path. The returned Log
// owns the database and closes it on Close.
func Open(path string, logger *slog.Logger) (*Log, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening audit database %s: %w", path, err)
	}
	l, err := NewLog(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	l.owned = true
	return l, nil
}

// NewLog creates a journal on an already-open BoltDB.
func NewLog(db *bolt.DB, logger *slog.Logger) (*Log, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketExchanges, bucketByIP} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Log{db: db, logger: logger}, nil
}

func (l *Log) Close() error {
	if !l.owned {
		return nil
	}
	return l.db.Close()
}

// Append stores rec under the next sequence number. An empty Timestamp is
// set to the current UTC time.
func (l *Log) Append(rec Record) error {
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExchanges)
		id, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("allocating record id: %w", err)
		}
		rec.ID = id

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encoding record: %w", err)
		}
		if err := b.Put(seqKey(id), data); err != nil {
			return fmt.Errorf("storing record %d: %w", id, err)
		}

		if prefix := ipPrefix(rec.IP); prefix != nil {
			if err := tx.Bucket(bucketByIP).Put(append(prefix, seqKey(id)...), nil); err != nil {
				return fmt.Errorf("indexing record %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.Debug("audit record written", "id", rec.ID, "event", rec.Event, "ip", rec.IP, "mac", rec.MAC)
	return nil
}

// Query returns matching records, newest first.
func (l *Log) Query(params QueryParams) ([]Record, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	var results []Record
	collect := func(data []byte) bool {
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return true
		}
		if params.matches(rec) {
			results = append(results, rec)
		}
		return len(results) < limit
	}

	err := l.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketExchanges)

		if params.IP == "" {
			c := records.Cursor()
			for k, v := c.Last(); k != nil; k, v = c.Prev() {
				if !collect(v) {
					break
				}
			}
			return nil
		}

		prefix := ipPrefix(params.IP)
		if prefix == nil {
			return nil
		}
		var ids [][]byte
		c := tx.Bucket(bucketByIP).Cursor()
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			ids = append(ids, k[len(prefix):])
		}
		for i := len(ids) - 1; i >= 0; i-- {
			if v := records.Get(ids[i]); v != nil && !collect(v) {
				break
			}
		}
		return nil
	})
	return results, err
}

// Recent returns the newest limit records.
func (l *Log) Recent(limit int) ([]Record, error) {
	return l.Query(QueryParams{Limit: limit})
}

// Count returns the number of stored records.
func (l *Log) Count() int {
	var n int
	_ = l.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketExchanges).Stats().KeyN
		return nil
	})
	return n
}

func (p QueryParams) matches(rec Record) bool {
	if p.MAC != "" && rec.MAC != p.MAC {
		return false
	}
	if p.Event != "" && rec.Event != p.Event {
		return false
	}
	if p.From.IsZero() && p.To.IsZero() {
		return true
	}
	at, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
	if err != nil {
		return false
	}
	return !at.Before(p.From) && (p.To.IsZero() || !at.After(p.To))
}

func seqKey(id uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, id)
}

// ipPrefix is the index prefix for an address string, nil when it is not IPv4.
func ipPrefix(s string) []byte {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return nil
	}
	return append([]byte(nil), ip...)
}

// IPString formats ip for a record, empty for nil.
func IPString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

// MACString formats mac for a record, empty for nil.
func MACString(mac net.HardwareAddr) string {
	if mac == nil {
		return ""
	}
	return mac.String()
}
