package recorder

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/andresmejia3/feelcam/internal/types"
)

// Row is one parsed session sample.
type Row struct {
	Timestamp float64
	Scores    []float64
}

// ReadRows parses a session file. Every line must have a timestamp and one
// score per emotion.
func ReadRows(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []Row
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		fields := strings.Split(text, string(Delimiter))
		if len(fields) != types.NumEmotions+1 {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", line, types.NumEmotions+1, len(fields))
		}
		vals := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d field %d: %w", line, i+1, err)
			}
			vals[i] = v
		}
		rows = append(rows, Row{Timestamp: vals[0], Scores: vals[1:]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

// Summary aggregates a recorded session.
type Summary struct {
	Rows       int
	Start, End float64
	Mean       [types.NumEmotions]float64
	Dominant   string // label with the highest mean score
}

// Summarize computes per-emotion means over rows.
func Summarize(rows []Row) Summary {
	s := Summary{Rows: len(rows)}
	if len(rows) == 0 {
		return s
	}
	s.Start, s.End = rows[0].Timestamp, rows[0].Timestamp
	for _, r := range rows {
		if r.Timestamp < s.Start {
			s.Start = r.Timestamp
		}
		if r.Timestamp > s.End {
			s.End = r.Timestamp
		}
		for i, v := range r.Scores {
			s.Mean[i] += v
		}
	}
	best := 0
	for i := range s.Mean {
		s.Mean[i] /= float64(len(rows))
		if s.Mean[i] > s.Mean[best] {
			best = i
		}
	}
	s.Dominant = types.EmotionLabels[best]
	return s
}
