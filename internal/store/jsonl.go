package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/mperelman/chronicle/models"
)

// LoadJSONL reads a corpus file with one JSON chunk per line. Blank lines are
// skipped. A chunk without an id gets a generated one, so hand-written corpus
// files stay minimal.
func LoadJSONL(path string) ([]models.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus %s: %w", path, err)
	}
	defer f.Close()

	var chunks []models.Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var c models.Chunk
		if err := json.Unmarshal([]byte(text), &c); err != nil {
			return nil, fmt.Errorf("corpus %s line %d: %w", path, line, err)
		}
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		chunks = append(chunks, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading corpus %s: %w", path, err)
	}
	return chunks, nil
}
