// Package importer moves subscribers in and out of a database as CSV.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/haywire-mail/relay-crm/internal/domain"
	"github.com/haywire-mail/relay-crm/internal/repository"
)

var (
	ErrEmptyFile          = errors.New("file is empty")
	ErrMissingEmailColumn = errors.New("email column is required")
)

// Store is the persistence surface the importer needs.
type Store interface {
	GetDatabaseContents(ctx context.Context, databaseID string) (*domain.DatabaseContents, error)
	AddSubscriber(ctx context.Context, databaseID string, sub *domain.Subscriber) (string, error)
	AddTag(ctx context.Context, databaseID string, tag *domain.Tag) (string, error)
}

// Importer reads and writes the subscriber CSV format: email, name, tags.
// Tags in a cell are separated with ";" and matched to existing tags by
// name, creating the tag when no match exists.
type Importer struct {
	store Store
}

func New(store Store) *Importer { return &Importer{store: store} }

// Result summarizes one import run.
type Result struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	TagsMade int      `json:"tags_created"`
	Errors   []string `json:"errors,omitempty"`
}

// Common header spellings accepted during import.
var headerAliases = map[string][]string{
	"email": {"email", "email_address", "e-mail", "mail"},
	"name":  {"name", "full_name", "fullname", "subscriber_name"},
	"tags":  {"tags", "labels", "categories"},
}

func matchHeader(raw string) string {
	h := strings.ToLower(strings.TrimSpace(raw))
	for field, aliases := range headerAliases {
		for _, a := range aliases {
			if h == a {
				return field
			}
		}
	}
	return ""
}

// Import reads CSV rows from r into the database. Rows with an invalid or
// duplicate email are skipped and reported, never fatal; one bad row must
// not sink a 10k-row file.
func (im *Importer) Import(ctx context.Context, databaseID string, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := map[string]int{}
	for i, h := range header {
		if field := matchHeader(h); field != "" {
			cols[field] = i
		}
	}
	emailCol, ok := cols["email"]
	if !ok {
		return nil, ErrMissingEmailColumn
	}

	contents, err := im.store.GetDatabaseContents(ctx, databaseID)
	if err != nil {
		return nil, fmt.Errorf("load database: %w", err)
	}
	tagsByName := map[string]string{}
	for _, t := range contents.Tags {
		tagsByName[strings.ToLower(t.Name)] = t.ID
	}

	result := &Result{}
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))
			continue
		}

		email := strings.TrimSpace(cell(record, emailCol))
		if !validEmail(email) {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: invalid email %q", line, email))
			continue
		}

		sub := &domain.Subscriber{Email: email}
		if i, ok := cols["name"]; ok {
			sub.Name = strings.TrimSpace(cell(record, i))
		}
		if i, ok := cols["tags"]; ok {
			ids, created, err := im.resolveTags(ctx, databaseID, cell(record, i), tagsByName)
			if err != nil {
				return result, err
			}
			sub.TagIDs = ids
			result.TagsMade += created
		}

		if _, err := im.store.AddSubscriber(ctx, databaseID, sub); err != nil {
			if errors.Is(err, repository.ErrDuplicateEmail) {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("line %d: duplicate email %q", line, email))
				continue
			}
			return result, fmt.Errorf("line %d: %w", line, err)
		}
		result.Imported++
	}
	return result, nil
}

// resolveTags maps semicolon-separated tag names to ids, creating missing
// tags once per run via the shared tagsByName cache.
func (im *Importer) resolveTags(ctx context.Context, databaseID, raw string, tagsByName map[string]string) ([]string, int, error) {
	var ids []string
	created := 0
	for _, name := range strings.Split(raw, ";") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		id, ok := tagsByName[key]
		if !ok {
			var err error
			id, err = im.store.AddTag(ctx, databaseID, &domain.Tag{Name: name})
			if err != nil {
				return nil, created, fmt.Errorf("create tag %q: %w", name, err)
			}
			tagsByName[key] = id
			created++
		}
		ids = append(ids, id)
	}
	return ids, created, nil
}

// Export writes every subscriber in the database to w in the same format
// Import accepts, so an export re-imports cleanly into another database.
func (im *Importer) Export(ctx context.Context, databaseID string, w io.Writer) error {
	contents, err := im.store.GetDatabaseContents(ctx, databaseID)
	if err != nil {
		return fmt.Errorf("load database: %w", err)
	}
	tagNames := map[string]string{}
	for _, t := range contents.Tags {
		tagNames[t.ID] = t.Name
	}

	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"email", "name", "tags"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, sub := range contents.Subscribers {
		var names []string
		for _, id := range sub.TagIDs {
			if name, ok := tagNames[id]; ok {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		if err := writer.Write([]string{sub.Email, sub.Name, strings.Join(names, ";")}); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 {
		return false
	}
	dom := email[at+1:]
	return strings.Contains(dom, ".") && !strings.ContainsAny(email, " \t")
}
