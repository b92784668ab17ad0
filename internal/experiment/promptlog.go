package experiment

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PromptLogEntry records one LLM interaction for reproducibility.
type PromptLogEntry struct {
	Timestamp     time.Time      `json:"timestamp"`
	ExperimentID  string         `json:"experiment_id"`
	ExampleID     string         `json:"example_id"`
	TechniqueName string         `json:"technique_name"`
	ModelName     string         `json:"model_name"`
	Prompt        string         `json:"prompt"`
	Response      string         `json:"response"`
	TokensUsed    int            `json:"tokens_used"`
	Latency       float64        `json:"latency"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// PromptLogger appends interactions to a JSONL file as they happen, so a
// crashed run still leaves a usable log.
type PromptLogger struct {
	mu           sync.Mutex
	experimentID string
	path         string
	file         *os.File
	entries      []PromptLogEntry
}

func NewPromptLogger(dir, experimentID string) (*PromptLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating prompt log dir: %w", err)
	}
	path := filepath.Join(dir, experimentID+"_prompts.jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening prompt log: %w", err)
	}
	return &PromptLogger{experimentID: experimentID, path: path, file: file}, nil
}

// Log records one interaction. Timestamp and experiment ID are filled in.
func (l *PromptLogger) Log(entry PromptLogEntry) error {
	entry.Timestamp = time.Now()
	entry.ExperimentID = l.experimentID

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding prompt log entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing prompt log entry: %w", err)
	}
	return nil
}

// Entries returns the entries logged in this session.
func (l *PromptLogger) Entries() []PromptLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]PromptLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// EntriesForExample filters entries by example ID.
func (l *PromptLogger) EntriesForExample(exampleID string) []PromptLogEntry {
	var out []PromptLogEntry
	for _, e := range l.Entries() {
		if e.ExampleID == exampleID {
			out = append(out, e)
		}
	}
	return out
}

// TotalTokens sums tokens across all entries.
func (l *PromptLogger) TotalTokens() int {
	total := 0
	for _, e := range l.Entries() {
		total += e.TokensUsed
	}
	return total
}

// TotalLatency sums latency (seconds) across all entries.
func (l *PromptLogger) TotalLatency() float64 {
	total := 0.0
	for _, e := range l.Entries() {
		total += e.Latency
	}
	return total
}

// Path returns the log file location.
func (l *PromptLogger) Path() string {
	return l.path
}

// Close flushes and closes the log file.
func (l *PromptLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// LoadPromptLog reads entries back from a JSONL file.
func LoadPromptLog(path string) ([]PromptLogEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []PromptLogEntry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry PromptLogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("parsing prompt log line: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
