package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"readmit/dataset"
	"readmit/schema"
	"readmit/scoring"
)

const chunkSize = 500

func main() {
	input := flag.String("input", "", "CSV of rows to score")
	output := flag.String("output", "", "output CSV with probabilities")
	modelPath := flag.String("model", "artifacts/model.bundle", "model bundle path")
	encoding := flag.String("encoding", "", "CSV encoding (utf8 or latin1)")
	flag.Parse()

	if *input == "" || *output == "" {
		log.Fatal("input and output are required")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	service := scoring.NewService(logger, nil, 0)
	if err := service.Load(*modelPath); err != nil {
		log.Fatalf("failed to load model: %v", err)
	}

	table, err := dataset.ReadCSV(*input, *encoding)
	if err != nil {
		log.Fatalf("failed to read input: %v", err)
	}

	rows := make([]schema.Row, len(table.Rows))
	for i := range table.Rows {
		row := make(schema.Row, len(table.Columns))
		for _, c := range table.Columns {
			if v, ok := table.Cell(i, c); ok {
				row[c] = v
			}
		}
		rows[i] = row
	}

	results := make([]scoring.RowResult, 0, len(rows))
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk, err := service.ScoreBatch(rows[start:end])
		if err != nil {
			log.Fatalf("failed to score rows %d-%d: %v", start, end, err)
		}
		results = append(results, chunk...)
	}

	if err := writeOutput(*output, table, results); err != nil {
		log.Fatalf("failed to write output: %v", err)
	}

	fmt.Printf("wrote %d scores to %s\n", len(results), *output)
}

// writeOutput copies the input columns and appends readmitted_proba plus a
// score_error column for rows that could not be scored.
func writeOutput(path string, table *dataset.Table, results []scoring.RowResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := append(append([]string{}, table.Columns...), "readmitted_proba", "score_error")
	if err := writer.Write(header); err != nil {
		return err
	}

	for i, record := range table.Rows {
		out := append([]string{}, record...)
		for len(out) < len(table.Columns) {
			out = append(out, "")
		}
		probability := ""
		scoreError := ""
		if i < len(results) {
			if results[i].Probability != nil {
				probability = strconv.FormatFloat(*results[i].Probability, 'f', 6, 64)
			}
			scoreError = results[i].Error
		}
		out = append(out, probability, scoreError)
		if err := writer.Write(out); err != nil {
			return err
		}
	}
	return writer.Error()
}
