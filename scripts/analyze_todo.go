// analyze_todo.go: standalone script to parse a TODO.md checklist and rank it via the Triage API.
//
// Usage:
//
//	go run scripts/analyze_todo.go -todo /path/to/TODO.md -api http://localhost:8700 -strategy deadline
//
// Open items ("- [ ] ...") become tasks; checked items are skipped. Inline
// annotations are recognised anywhere in the line:
//
//	id:api-auth  due:2026-02-01  est:3h  after:db-migrate,api-spec
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type todoTask struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	DueDate        string   `json:"due_date,omitempty"`
	EstimatedHours float64  `json:"estimated_hours,omitempty"`
	Importance     int      `json:"importance,omitempty"`
	Dependencies   []string `json:"dependencies,omitempty"`
}

// Priority emoji to importance mapping
var importanceMap = map[string]int{
	"🔴": 10, // P0
	"🟠": 8,  // P1
	"🟡": 5,  // P2
	"🟢": 3,  // P3
}

var annotation = regexp.MustCompile(`\b(id|due|est|after):(\S+)`)

func main() {
	todoPath := flag.String("todo", "TODO.md", "path to TODO.md file")
	apiURL := flag.String("api", "http://localhost:8700", "Triage API base URL")
	clientID := flag.String("client", "todo-script", "X-Client-ID header value")
	strategy := flag.String("strategy", "smart", "weight preset")
	top := flag.Int("top", 0, "only show the first N suggestions")
	dryRun := flag.Bool("dry-run", false, "print parsed tasks without posting")
	flag.Parse()

	f, err := os.Open(*todoPath)
	if err != nil {
		log.Fatalf("open TODO.md: %v", err)
	}
	defer f.Close()

	var tasks []todoTask
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if !strings.HasPrefix(line, "- [ ] ") {
			continue
		}
		tasks = append(tasks, parseItem(strings.TrimPrefix(line, "- [ ] "), len(tasks)+1))
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("scan TODO.md: %v", err)
	}

	log.Printf("parsed %d open items from %s", len(tasks), *todoPath)

	if *dryRun {
		for i, t := range tasks {
			fmt.Printf("[%d] %s id=%s due=%s est=%.1fh importance=%d after=%v\n",
				i+1, t.Title, t.ID, t.DueDate, t.EstimatedHours, t.Importance, t.Dependencies)
		}
		return
	}

	body, _ := json.Marshal(map[string]any{"tasks": tasks, "strategy": *strategy})
	endpoint := *apiURL + "/api/v1/tasks/analyze"
	if *top > 0 {
		endpoint = *apiURL + "/api/v1/tasks/suggest?" + url.Values{
			"top":      {strconv.Itoa(*top)},
			"strategy": {*strategy},
		}.Encode()
	}

	req, err := http.NewRequest("POST", endpoint, bytes.NewReader(body))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-ID", *clientID)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("post tasks: %v", err)
	}
	defer resp.Body.Close()

	var result struct {
		Error       string       `json:"error"`
		Tasks       []rankedTask `json:"tasks"`
		Suggestions []rankedTask `json:"suggestions"`
		Meta        struct {
			Cycles [][]string `json:"cycles"`
		} `json:"meta"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatalf("decode response (status %d): %v", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("triage returned %d: %s", resp.StatusCode, result.Error)
	}

	ranked := result.Tasks
	if *top > 0 {
		ranked = result.Suggestions
	}
	for i, t := range ranked {
		fmt.Printf("%2d. %.4f  %s\n", i+1, t.Score, t.Title)
		if t.SuggestionReason != "" {
			fmt.Printf("           %s\n", t.SuggestionReason)
		}
	}
	for _, c := range result.Meta.Cycles {
		fmt.Printf("warning: circular dependency %s\n", strings.Join(c, " -> "))
	}
}

type rankedTask struct {
	Title            string  `json:"title"`
	Score            float64 `json:"score"`
	SuggestionReason string  `json:"suggestion_reason"`
}

// parseItem pulls the priority emoji and annotations out of a checklist line.
func parseItem(text string, n int) todoTask {
	task := todoTask{ID: fmt.Sprintf("todo-%d", n)}

	for emoji, imp := range importanceMap {
		if strings.Contains(text, emoji) {
			task.Importance = imp
			text = strings.ReplaceAll(text, emoji, "")
			break
		}
	}

	for _, m := range annotation.FindAllStringSubmatch(text, -1) {
		switch m[1] {
		case "id":
			task.ID = m[2]
		case "due":
			task.DueDate = m[2]
		case "est":
			if h, err := strconv.ParseFloat(strings.TrimSuffix(m[2], "h"), 64); err == nil {
				task.EstimatedHours = h
			}
		case "after":
			task.Dependencies = strings.Split(m[2], ",")
		}
	}
	task.Title = strings.Join(strings.Fields(annotation.ReplaceAllString(text, "")), " ")
	return task
}
