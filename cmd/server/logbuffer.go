package main

import (
	"strings"
	"sync"
)

// LogBuffer keeps the most recent log lines in memory for GET /logs.
type LogBuffer struct {
	mu    sync.Mutex
	lines []string
	limit int
}

func NewLogBuffer(limit int) *LogBuffer {
	return &LogBuffer{lines: make([]string, 0, limit), limit: limit}
}

func (lb *LogBuffer) Write(p []byte) (int, error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		lb.lines = append(lb.lines, line)
	}
	if len(lb.lines) > lb.limit {
		lb.lines = append(lb.lines[:0:0], lb.lines[len(lb.lines)-lb.limit:]...)
	}
	return len(p), nil
}

// Lines returns a copy of the buffered lines, oldest first.
func (lb *LogBuffer) Lines() []string {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	out := make([]string, len(lb.lines))
	copy(out, lb.lines)
	return out
}
