package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0Ankit0-0/quorum/pkg/logdata"
)

// NewIngestCommand loads pre-parsed log records into the local store. The
// input is JSON: either an array of records or one record per line. Parsing
// raw OS log formats is the collectors' job, not ours.
func NewIngestCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "ingest <records.json>...",
		Short: "Load parsed log records (JSON) into the store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := OpenApp(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			total := int64(0)

			for _, path := range args {
				records, readErr := readRecords(path)
				if readErr != nil {
					return readErr
				}

				if len(records) == 0 {
					continue
				}

				_, insertErr := app.Store.InsertLogs(cmd.Context(), records)
				if insertErr != nil {
					return insertErr
				}

				app.Metrics.LogsIngested.Add(float64(len(records)))
				total += int64(len(records))

				fmt.Fprintf(out, "%s: %s records\n", path, count(int64(len(records))))
			}

			fmt.Fprintf(out, "Ingested %s records total.\n", count(total))

			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")

	return cmd
}

// readRecords accepts a JSON array or JSON-lines stream of records.
func readRecords(path string) ([]logdata.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open records file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)

	first, err := firstByte(reader)
	if err != nil {
		return nil, fmt.Errorf("read records file %s: %w", path, err)
	}

	if first == '[' {
		var records []logdata.Record

		decodeErr := json.NewDecoder(reader).Decode(&records)
		if decodeErr != nil {
			return nil, fmt.Errorf("decode records array %s: %w", path, decodeErr)
		}

		return records, nil
	}

	var records []logdata.Record

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var record logdata.Record

		decodeErr := json.Unmarshal([]byte(text), &record)
		if decodeErr != nil {
			return nil, fmt.Errorf("decode record %s:%d: %w", path, line, decodeErr)
		}

		records = append(records, record)
	}

	if scanErr := scanner.Err(); scanErr != nil {
		return nil, fmt.Errorf("scan records file %s: %w", path, scanErr)
	}

	return records, nil
}

// firstByte peeks past leading whitespace without consuming content.
func firstByte(reader *bufio.Reader) (byte, error) {
	for {
		data, err := reader.Peek(1)
		if err == io.EOF {
			return 0, nil
		}

		if err != nil {
			return 0, err
		}

		switch data[0] {
		case ' ', '\t', '\n', '\r':
			_, _ = reader.ReadByte()
		default:
			return data[0], nil
		}
	}
}
