package registry

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/fumetsu/hibiki/internal/domain"
)

// ExportFormat names a supported registry export encoding
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatCSV  ExportFormat = "csv"
	FormatXML  ExportFormat = "xml"
)

// exportDocument is the envelope written by Export.  Records carry the full
// aggregate; index entries are kept alongside so an import restores both.
type exportDocument struct {
	Version string        `json:"version"`
	API     string        `json:"api"`
	Entries []exportEntry `json:"entries"`
}

type exportEntry struct {
	Key    string              `json:"key"`
	Entry  *domain.IndexEntry  `json:"entry"`
	Record *domain.MediaRecord `json:"record,omitempty"`
}

// xmlDocument mirrors exportDocument for encoding/xml, which cannot marshal
// maps.  Each record rides as its JSON encoding inside a CDATA payload so the
// round trip stays lossless.
type xmlDocument struct {
	XMLName xml.Name   `xml:"registry"`
	Version string     `xml:"version,attr"`
	API     string     `xml:"api,attr"`
	Entries []xmlEntry `xml:"entry"`
}

type xmlEntry struct {
	Key     string `xml:"key,attr"`
	Payload string `xml:",cdata"`
}

// Export writes the whole registry to w in the requested format
func (s *Store) Export(w io.Writer, format ExportFormat) error {
	doc, err := s.buildExportDocument()
	if err != nil {
		return err
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)

	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"key", "payload"}); err != nil {
			return err
		}
		for _, entry := range doc.Entries {
			payload, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			if err := cw.Write([]string{entry.Key, string(payload)}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()

	case FormatXML:
		xdoc := xmlDocument{Version: doc.Version, API: doc.API}
		for _, entry := range doc.Entries {
			payload, err := json.Marshal(entry)
			if err != nil {
				return err
			}
			xdoc.Entries = append(xdoc.Entries, xmlEntry{Key: entry.Key, Payload: string(payload)})
		}
		if _, err := io.WriteString(w, xml.Header); err != nil {
			return err
		}
		enc := xml.NewEncoder(w)
		enc.Indent("", "  ")
		return enc.Encode(xdoc)

	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func (s *Store) buildExportDocument() (*exportDocument, error) {
	idx, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	doc := &exportDocument{Version: RegistryVersion, API: s.api}

	keys := make([]string, 0, len(idx.MediaIndex))
	for key := range idx.MediaIndex {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		entry := idx.MediaIndex[key]
		doc.Entries = append(doc.Entries, exportEntry{
			Key:    key,
			Entry:  entry,
			Record: s.MediaRecord(entry.MediaID),
		})
	}
	return doc, nil
}

// Import reads an export document and writes it into the registry.  With merge
// false the existing registry content is replaced; with merge true incoming
// entries overwrite only the keys they name.
func (s *Store) Import(r io.Reader, format ExportFormat, merge bool) error {
	entries, err := decodeExport(r, format)
	if err != nil {
		return err
	}

	if !merge {
		idx, err := s.loadIndex()
		if err != nil {
			return err
		}
		for _, entry := range idx.MediaIndex {
			if err := s.RemoveRecord(entry.MediaID); err != nil {
				return err
			}
		}
	}

	for _, entry := range entries {
		if entry.Entry == nil {
			continue
		}
		if err := s.SaveIndexEntry(entry.Entry); err != nil {
			return err
		}
		if entry.Record != nil && entry.Record.MediaItem != nil {
			if err := s.SaveRecord(entry.Record); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeExport(r io.Reader, format ExportFormat) ([]exportEntry, error) {
	switch format {
	case FormatJSON:
		doc := &exportDocument{}
		if err := json.NewDecoder(r).Decode(doc); err != nil {
			return nil, fmt.Errorf("parsing JSON export: %w", err)
		}
		if !compatibleVersion(doc.Version) {
			return nil, &VersionMismatchError{Have: doc.Version, Want: RegistryVersion}
		}
		return doc.Entries, nil

	case FormatCSV:
		rows, err := csv.NewReader(r).ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parsing CSV export: %w", err)
		}
		var entries []exportEntry
		for i, row := range rows {
			if i == 0 || len(row) < 2 {
				continue // header
			}
			var entry exportEntry
			if err := json.Unmarshal([]byte(row[1]), &entry); err != nil {
				return nil, fmt.Errorf("parsing CSV payload for %s: %w", row[0], err)
			}
			entries = append(entries, entry)
		}
		return entries, nil

	case FormatXML:
		doc := &xmlDocument{}
		if err := xml.NewDecoder(r).Decode(doc); err != nil {
			return nil, fmt.Errorf("parsing XML export: %w", err)
		}
		if !compatibleVersion(doc.Version) {
			return nil, &VersionMismatchError{Have: doc.Version, Want: RegistryVersion}
		}
		var entries []exportEntry
		for _, xe := range doc.Entries {
			var entry exportEntry
			if err := json.Unmarshal([]byte(xe.Payload), &entry); err != nil {
				return nil, fmt.Errorf("parsing XML payload for %s: %w", xe.Key, err)
			}
			entries = append(entries, entry)
		}
		return entries, nil

	default:
		return nil, fmt.Errorf("unsupported import format %q", format)
	}
}

// ExportToFile writes an export atomically to path
func (s *Store) ExportToFile(path string, format ExportFormat) error {
	tmp, err := os.CreateTemp("", "hibiki-export-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := s.Export(tmp, format); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

// CleanCompletedOlderThan removes terminal episode rows older than maxAge.
// Returns the number of rows removed.  A zero maxAge removes nothing.
func (s *Store) CleanCompletedOlderThan(maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, record := range s.allRecords() {
		kept := record.MediaEpisodes[:0]
		changed := false
		for _, ep := range record.MediaEpisodes {
			terminal := ep.DownloadStatus == domain.DownloadCompleted || ep.DownloadStatus == domain.DownloadCancelled
			old := ep.CompletedAt != nil && ep.CompletedAt.Before(cutoff)
			if terminal && old {
				removed++
				changed = true
				continue
			}
			kept = append(kept, ep)
		}
		if changed {
			record.MediaEpisodes = kept
			if err := s.SaveRecord(record); err != nil {
				return removed, err
			}
		}
	}
	return removed, nil
}
