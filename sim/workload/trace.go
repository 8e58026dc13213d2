package workload

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// TraceFiles points a workload spec at a fragment trace on disk. Relative
// paths are resolved against the workload file's directory.
type TraceFiles struct {
	Header string `yaml:"header,omitempty"`
	Data   string `yaml:"data"`
}

// TraceHeader captures metadata for fragment trace files.
type TraceHeader struct {
	Version   int    `yaml:"trace_version"`
	TimeUnit  string `yaml:"time_unit"` // "ms" (default) or "s"
	CreatedAt string `yaml:"created_at,omitempty"`
	Source    string `yaml:"source,omitempty"`
}

// scale returns the factor converting trace times to milliseconds.
func (h TraceHeader) scale() (int64, error) {
	switch h.TimeUnit {
	case "", "ms":
		return 1, nil
	case "s":
		return 1000, nil
	default:
		return 0, fmt.Errorf("unknown trace time_unit %q; valid: ms, s", h.TimeUnit)
	}
}

// TraceRecord is one row of a fragment trace: a constant-demand slice of
// one server. Server attributes repeat on every row of that server.
type TraceRecord struct {
	ServerID      string
	SubmitMs      int64
	Cores         int
	MemoryMiB     int64
	OffsetMs      int64
	DurationMs    int64
	RateMHz       float64
	FragmentCores int
}

// Trace combines header and records for a complete trace.
type Trace struct {
	Header  TraceHeader
	Records []TraceRecord
}

// CSV column headers for the fragment trace format.
var traceColumns = []string{
	"server_id", "submit_ms", "cores", "memory_mib",
	"offset_ms", "duration_ms", "rate_mhz", "fragment_cores",
}

// ExportTrace writes the servers' fragments as a trace: header (YAML) and
// data (CSV) in separate files. Burst servers have no fragments and are
// skipped. An empty headerPath writes only the data.
func ExportTrace(header *TraceHeader, servers []ServerSpec, headerPath, dataPath string) error {
	if headerPath != "" {
		headerData, err := yaml.Marshal(header)
		if err != nil {
			return fmt.Errorf("marshaling trace header: %w", err)
		}
		if err := os.WriteFile(headerPath, headerData, 0644); err != nil {
			return fmt.Errorf("writing trace header: %w", err)
		}
	}

	file, err := os.Create(dataPath)
	if err != nil {
		return fmt.Errorf("creating trace data file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := csv.NewWriter(file)
	if err := writer.Write(traceColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, s := range servers {
		for _, f := range s.Fragments {
			row := []string{
				s.ID,
				strconv.FormatInt(s.SubmitMs, 10),
				strconv.Itoa(s.Cores),
				strconv.FormatInt(s.MemoryMiB, 10),
				strconv.FormatInt(f.OffsetMs, 10),
				strconv.FormatInt(f.DurationMs, 10),
				strconv.FormatFloat(f.RateMHz, 'f', -1, 64),
				strconv.Itoa(f.Cores),
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("writing CSV row for %s: %w", s.ID, err)
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

// LoadTrace reads a trace header (YAML, optional) and data (CSV).
func LoadTrace(headerPath, dataPath string) (*Trace, error) {
	var header TraceHeader
	if headerPath != "" {
		headerData, err := os.ReadFile(headerPath)
		if err != nil {
			return nil, fmt.Errorf("reading trace header: %w", err)
		}
		if err := yaml.Unmarshal(headerData, &header); err != nil {
			return nil, fmt.Errorf("parsing trace header: %w", err)
		}
	}

	file, err := os.Open(dataPath)
	if err != nil {
		return nil, fmt.Errorf("opening trace data: %w", err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	if _, err := reader.Read(); err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	var records []TraceRecord
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}
		if len(row) < len(traceColumns)-1 {
			return nil, fmt.Errorf("CSV line %d has %d columns, expected %d", line, len(row), len(traceColumns))
		}
		r, err := parseTraceRecord(row)
		if err != nil {
			return nil, fmt.Errorf("CSV line %d: %w", line, err)
		}
		records = append(records, *r)
	}
	return &Trace{Header: header, Records: records}, nil
}

func parseTraceRecord(row []string) (*TraceRecord, error) {
	r := &TraceRecord{ServerID: strings.TrimSpace(row[0])}
	var err error
	if r.SubmitMs, err = strconv.ParseInt(strings.TrimSpace(row[1]), 10, 64); err != nil {
		return nil, fmt.Errorf("submit_ms: %w", err)
	}
	if r.Cores, err = strconv.Atoi(strings.TrimSpace(row[2])); err != nil {
		return nil, fmt.Errorf("cores: %w", err)
	}
	if r.MemoryMiB, err = strconv.ParseInt(strings.TrimSpace(row[3]), 10, 64); err != nil {
		return nil, fmt.Errorf("memory_mib: %w", err)
	}
	if r.OffsetMs, err = strconv.ParseInt(strings.TrimSpace(row[4]), 10, 64); err != nil {
		return nil, fmt.Errorf("offset_ms: %w", err)
	}
	if r.DurationMs, err = strconv.ParseInt(strings.TrimSpace(row[5]), 10, 64); err != nil {
		return nil, fmt.Errorf("duration_ms: %w", err)
	}
	if r.RateMHz, err = strconv.ParseFloat(strings.TrimSpace(row[6]), 64); err != nil {
		return nil, fmt.Errorf("rate_mhz: %w", err)
	}
	if len(row) > 7 && strings.TrimSpace(row[7]) != "" {
		if r.FragmentCores, err = strconv.Atoi(strings.TrimSpace(row[7])); err != nil {
			return nil, fmt.Errorf("fragment_cores: %w", err)
		}
	}
	return r, nil
}

// Servers groups the records into servers in order of first appearance.
// Times are converted to milliseconds and every server is validated.
func (t *Trace) Servers() ([]ServerSpec, error) {
	scale, err := t.Header.scale()
	if err != nil {
		return nil, err
	}
	index := make(map[string]int)
	var out []ServerSpec
	for _, r := range t.Records {
		i, ok := index[r.ServerID]
		if !ok {
			i = len(out)
			index[r.ServerID] = i
			out = append(out, ServerSpec{ID: r.ServerID, SubmitMs: r.SubmitMs * scale, Cores: r.Cores, MemoryMiB: r.MemoryMiB})
		}
		s := &out[i]
		if s.SubmitMs != r.SubmitMs*scale || s.Cores != r.Cores || s.MemoryMiB != r.MemoryMiB {
			return nil, fmt.Errorf("trace server %q: submit_ms, cores and memory_mib must agree across rows", r.ServerID)
		}
		s.Fragments = append(s.Fragments, FragmentSpec{
			OffsetMs:   r.OffsetMs * scale,
			DurationMs: r.DurationMs * scale,
			RateMHz:    r.RateMHz,
			Cores:      r.FragmentCores,
		})
	}
	for i := range out {
		if err := out[i].Validate(); err != nil {
			return nil, fmt.Errorf("trace: %w", err)
		}
	}
	return out, nil
}
