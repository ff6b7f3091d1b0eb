package audit

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CSVHeaders names the columns written by WriteCSV, in order.
var CSVHeaders = []string{
	"id", "timestamp", "event", "interface", "mac", "xid", "ip",
	"requested_ip", "server_id", "lease_seconds", "attempts", "reason",
}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeaders); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(r.csvRow()); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (r Record) csvRow() []string {
	return []string{
		strconv.FormatUint(r.ID, 10), r.Timestamp, r.Event, r.Interface, r.MAC, r.XID, r.IP,
		r.RequestedIP, r.ServerID, blankZero(r.LeaseSeconds), blankZero(int64(r.Attempts)), r.Reason,
	}
}

func blankZero(v int64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatInt(v, 10)
}
