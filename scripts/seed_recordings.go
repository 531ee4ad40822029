// seed_recordings.go loads a CSV manifest of call recordings into a running
// CallAudit instance, standing in for the discovery collaborator during local
// testing.
//
// Usage:
//
//	go run scripts/seed_recordings.go -csv recordings.csv -api http://localhost:8700 -token $CALLAUDIT_ADMIN_TOKEN
//
// The CSV needs a header row. Recognised columns: id, client_code, agent_id,
// agent_name, project_id, call_duration_seconds, file_size_bytes, file_date
// (YYYY-MM-DD), file_name. Empty optional cells are left unset.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type recording struct {
	ID                  int64     `json:"id"`
	ClientCode          string    `json:"client_code"`
	AgentID             string    `json:"agent_id"`
	AgentName           string    `json:"agent_name,omitempty"`
	ProjectID           *int      `json:"project_id,omitempty"`
	CallDurationSeconds *int      `json:"call_duration_seconds,omitempty"`
	FileSizeBytes       int64     `json:"file_size_bytes"`
	FileDate            time.Time `json:"file_date"`
	FileName            string    `json:"file_name,omitempty"`
}

func main() {
	csvPath := flag.String("csv", "recordings.csv", "path to the recordings manifest")
	apiURL := flag.String("api", "http://localhost:8700", "CallAudit API base URL")
	token := flag.String("token", "", "admin bearer token")
	batch := flag.Int("batch", 500, "recordings per request")
	dryRun := flag.Bool("dry-run", false, "print recordings without posting")
	flag.Parse()

	f, err := os.Open(*csvPath)
	if err != nil {
		log.Fatalf("open manifest: %v", err)
	}
	defer f.Close()

	recs, skipped, err := parseManifest(f)
	if err != nil {
		log.Fatalf("parse manifest: %v", err)
	}
	log.Printf("parsed %d recordings from %s (%d rows skipped)", len(recs), *csvPath, skipped)

	if *dryRun {
		for i, r := range recs {
			dur := "?"
			if r.CallDurationSeconds != nil {
				dur = strconv.Itoa(*r.CallDurationSeconds)
			}
			fmt.Printf("[%d] %d %s agent=%s date=%s duration=%ss size=%d\n",
				i+1, r.ID, r.ClientCode, r.AgentID, r.FileDate.Format("2006-01-02"), dur, r.FileSizeBytes)
		}
		return
	}

	if *batch <= 0 {
		*batch = len(recs)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	upserted := 0
	for start := 0; start < len(recs); start += *batch {
		end := min(start+*batch, len(recs))
		n, err := post(client, *apiURL, *token, recs[start:end])
		if err != nil {
			log.Printf("batch %d-%d failed: %v", start, end, err)
			continue
		}
		upserted += n
	}

	log.Printf("done: %d upserted", upserted)
}

func parseManifest(r io.Reader) ([]recording, int, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"id", "client_code", "agent_id", "file_date"} {
		if _, ok := col[required]; !ok {
			return nil, 0, fmt.Errorf("missing column %q", required)
		}
	}
	get := func(row []string, name string) string {
		if i, ok := col[name]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var recs []recording
	skipped := 0
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", line, err)
		}

		id, err := strconv.ParseInt(get(row, "id"), 10, 64)
		if err != nil {
			log.Printf("line %d: invalid id, skipped", line)
			skipped++
			continue
		}
		day, err := time.Parse("2006-01-02", get(row, "file_date"))
		if err != nil {
			log.Printf("line %d: invalid file_date, skipped", line)
			skipped++
			continue
		}
		rec := recording{
			ID:         id,
			ClientCode: get(row, "client_code"),
			AgentID:    get(row, "agent_id"),
			AgentName:  get(row, "agent_name"),
			FileDate:   day,
			FileName:   get(row, "file_name"),
		}
		if rec.ClientCode == "" || rec.AgentID == "" {
			log.Printf("line %d: client_code and agent_id required, skipped", line)
			skipped++
			continue
		}
		if v, err := strconv.Atoi(get(row, "project_id")); err == nil {
			rec.ProjectID = &v
		}
		if v, err := strconv.Atoi(get(row, "call_duration_seconds")); err == nil {
			rec.CallDurationSeconds = &v
		}
		if v, err := strconv.ParseInt(get(row, "file_size_bytes"), 10, 64); err == nil {
			rec.FileSizeBytes = v
		}
		recs = append(recs, rec)
	}
	return recs, skipped, nil
}

func post(client *http.Client, apiURL, token string, recs []recording) (int, error) {
	body, err := json.Marshal(map[string][]recording{"recordings": recs})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequest("POST", apiURL+"/api/v1/recordings", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Upserted int `json:"upserted"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return out.Upserted, nil
}
