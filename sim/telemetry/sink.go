package telemetry

// Sink receives telemetry records as the simulation emits them.
type Sink interface {
	RecordHost(r HostRecord)
	RecordServer(r ServerRecord)
	RecordFault(r FaultRecord)
}

// Level controls which records a Recorder keeps.
type Level string

const (
	// LevelNone keeps nothing.
	LevelNone Level = "none"
	// LevelEvents keeps server transitions and faults.
	LevelEvents Level = "events"
	// LevelFull additionally keeps every host sample.
	LevelFull Level = "full"
)

// validLevels maps accepted level strings.
var validLevels = map[Level]bool{
	LevelNone:   true,
	LevelEvents: true,
	LevelFull:   true,
	"":          true, // empty defaults to full
}

// IsValidLevel returns true if the given level string is recognized.
func IsValidLevel(level string) bool {
	return validLevels[Level(level)]
}

// Recorder keeps records in memory.
type Recorder struct {
	Level   Level
	Hosts   []HostRecord
	Servers []ServerRecord
	Faults  []FaultRecord
}

// NewRecorder creates a Recorder ready for recording.
func NewRecorder(level Level) *Recorder {
	if level == "" {
		level = LevelFull
	}
	return &Recorder{
		Level:   level,
		Hosts:   make([]HostRecord, 0),
		Servers: make([]ServerRecord, 0),
		Faults:  make([]FaultRecord, 0),
	}
}

// RecordHost appends a host sample.
func (r *Recorder) RecordHost(rec HostRecord) {
	if r.Level == LevelFull {
		r.Hosts = append(r.Hosts, rec)
	}
}

// RecordServer appends a server transition.
func (r *Recorder) RecordServer(rec ServerRecord) {
	if r.Level != LevelNone {
		r.Servers = append(r.Servers, rec)
	}
}

// RecordFault appends a fault record.
func (r *Recorder) RecordFault(rec FaultRecord) {
	if r.Level != LevelNone {
		r.Faults = append(r.Faults, rec)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordHost(HostRecord)     {}
func (Nop) RecordServer(ServerRecord) {}
func (Nop) RecordFault(FaultRecord)   {}

type multi []Sink

func (m multi) RecordHost(r HostRecord) {
	for _, s := range m {
		s.RecordHost(r)
	}
}

func (m multi) RecordServer(r ServerRecord) {
	for _, s := range m {
		s.RecordServer(r)
	}
}

func (m multi) RecordFault(r FaultRecord) {
	for _, s := range m {
		s.RecordFault(r)
	}
}

// Multi fans records out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return Nop{}
	case 1:
		return out[0]
	}
	return out
}
