package importer

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/haywire-mail/relay-crm/internal/domain"
	"github.com/haywire-mail/relay-crm/internal/repository/memory"
)

func setup(t *testing.T) (*Importer, *memory.Store, string) {
	t.Helper()
	store := memory.NewStore()
	dbID, err := store.AddDatabase(context.Background(), &domain.Database{Name: "test"})
	if err != nil {
		t.Fatalf("AddDatabase() error: %v", err)
	}
	return New(store), store, dbID
}

func TestImport_CreatesSubscribersAndTags(t *testing.T) {
	im, store, dbID := setup(t)

	csv := strings.Join([]string{
		"email,name,tags",
		"alice@example.com,Alice,vip;beta",
		"bob@example.com,Bob,vip",
	}, "\n")

	result, err := im.Import(context.Background(), dbID, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if result.Imported != 2 {
		t.Errorf("Imported = %d, want 2", result.Imported)
	}
	if result.TagsMade != 2 {
		t.Errorf("TagsMade = %d, want 2 (vip created once)", result.TagsMade)
	}

	contents, err := store.GetDatabaseContents(context.Background(), dbID)
	if err != nil {
		t.Fatalf("GetDatabaseContents() error: %v", err)
	}
	if len(contents.Subscribers) != 2 {
		t.Fatalf("subscribers = %d, want 2", len(contents.Subscribers))
	}
	if len(contents.Tags) != 2 {
		t.Fatalf("tags = %d, want 2", len(contents.Tags))
	}

	var alice domain.Subscriber
	for _, s := range contents.Subscribers {
		if s.Email == "alice@example.com" {
			alice = s
		}
	}
	if len(alice.TagIDs) != 2 {
		t.Errorf("alice tag count = %d, want 2", len(alice.TagIDs))
	}
}

func TestImport_ReusesExistingTagsByName(t *testing.T) {
	im, store, dbID := setup(t)
	if _, err := store.AddTag(context.Background(), dbID, &domain.Tag{Name: "VIP"}); err != nil {
		t.Fatalf("AddTag() error: %v", err)
	}

	csv := "email,tags\nalice@example.com,vip"
	result, err := im.Import(context.Background(), dbID, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if result.TagsMade != 0 {
		t.Errorf("TagsMade = %d, want 0 (name match is case-insensitive)", result.TagsMade)
	}
}

func TestImport_SkipsBadRowsWithoutAborting(t *testing.T) {
	im, _, dbID := setup(t)

	csv := strings.Join([]string{
		"email,name",
		"not-an-email,Broken",
		"ok@example.com,Fine",
		"ok@example.com,Again",
	}, "\n")

	result, err := im.Import(context.Background(), dbID, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("Imported = %d, want 1", result.Imported)
	}
	if result.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", result.Skipped)
	}
	if len(result.Errors) != 2 {
		t.Errorf("Errors = %v, want 2 entries", result.Errors)
	}
}

func TestImport_HeaderAliases(t *testing.T) {
	im, _, dbID := setup(t)

	csv := "Email_Address,Full_Name,Labels\nalice@example.com,Alice,vip"
	result, err := im.Import(context.Background(), dbID, strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("Imported = %d, want 1", result.Imported)
	}
}

func TestImport_MissingEmailColumn(t *testing.T) {
	im, _, dbID := setup(t)

	_, err := im.Import(context.Background(), dbID, strings.NewReader("name\nAlice"))
	if err != ErrMissingEmailColumn {
		t.Errorf("error = %v, want ErrMissingEmailColumn", err)
	}
}

func TestImport_EmptyFile(t *testing.T) {
	im, _, dbID := setup(t)

	_, err := im.Import(context.Background(), dbID, strings.NewReader(""))
	if err != ErrEmptyFile {
		t.Errorf("error = %v, want ErrEmptyFile", err)
	}
}

func TestExportRoundTrip(t *testing.T) {
	im, store, dbID := setup(t)

	seed := "email,name,tags\nalice@example.com,Alice,beta;vip\nbob@example.com,Bob,"
	if _, err := im.Import(context.Background(), dbID, strings.NewReader(seed)); err != nil {
		t.Fatalf("Import() error: %v", err)
	}

	var buf bytes.Buffer
	if err := im.Export(context.Background(), dbID, &buf); err != nil {
		t.Fatalf("Export() error: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "email,name,tags\n") {
		t.Errorf("missing header in export:\n%s", out)
	}
	if !strings.Contains(out, "alice@example.com,Alice,beta;vip") {
		t.Errorf("alice row missing or tags unsorted:\n%s", out)
	}

	// Re-import into a fresh database. Same rows, tags re-created by name.
	db2, err := store.AddDatabase(context.Background(), &domain.Database{Name: "copy"})
	if err != nil {
		t.Fatalf("AddDatabase() error: %v", err)
	}
	result, err := im.Import(context.Background(), db2, strings.NewReader(out))
	if err != nil {
		t.Fatalf("re-Import() error: %v", err)
	}
	if result.Imported != 2 {
		t.Errorf("re-imported = %d, want 2", result.Imported)
	}
	if result.TagsMade != 2 {
		t.Errorf("TagsMade = %d, want 2", result.TagsMade)
	}
}
