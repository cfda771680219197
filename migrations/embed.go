// Package migrations embeds the PackageFacts schema migrations and validates their layout.
package migrations

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
)

//go:embed *.sql
var files embed.FS

// FS returns the embedded migration files.
func FS() fs.FS {
	return files
}

var (
	// ErrNoMigrations is returned when the file system holds no migration files.
	ErrNoMigrations = errors.New("no migration files found")
	// ErrInvalidMigration is returned for misnamed, unpaired or out-of-sequence migrations.
	ErrInvalidMigration = errors.New("invalid migration set")
)

// filenamePattern matches 001_name.up.sql and 001_name.down.sql.
var filenamePattern = regexp.MustCompile(`^(\d{3})_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// Info describes a single migration file.
type Info struct {
	Sequence  int
	Name      string
	Direction string
	Filename  string
	Checksum  string
}

// List returns the migration files of fsys in apply order. Files that do not follow
// the naming standard are ignored.
func List(fsys fs.FS) ([]Info, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var out []Info

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, ok := parseFilename(entry.Name())
		if !ok {
			continue
		}

		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}

		sum := sha256.Sum256(content)
		info.Checksum = hex.EncodeToString(sum[:])
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })

	return out, nil
}

func parseFilename(filename string) (Info, bool) {
	m := filenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return Info{}, false
	}

	seq, err := strconv.Atoi(m[1])
	if err != nil {
		return Info{}, false
	}

	return Info{Sequence: seq, Name: m[2], Direction: m[3], Filename: filename}, true
}

// Validate checks that fsys holds at least one migration, that every up migration has
// a down migration and that sequence numbers start at 001 without gaps.
func Validate(fsys fs.FS) error {
	infos, err := List(fsys)
	if err != nil {
		return err
	}

	if len(infos) == 0 {
		return ErrNoMigrations
	}

	pairs := make(map[string]map[string]bool)
	sequences := make(map[int]struct{})

	for _, info := range infos {
		key := fmt.Sprintf("%03d_%s", info.Sequence, info.Name)
		if pairs[key] == nil {
			pairs[key] = make(map[string]bool)
		}

		pairs[key][info.Direction] = true
		sequences[info.Sequence] = struct{}{}
	}

	keys := make([]string, 0, len(pairs))
	for key := range pairs {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		if !pairs[key]["up"] {
			return fmt.Errorf("%w: orphaned down migration %s", ErrInvalidMigration, key)
		}

		if !pairs[key]["down"] {
			return fmt.Errorf("%w: orphaned up migration %s", ErrInvalidMigration, key)
		}
	}

	if len(sequences) != len(pairs) {
		return fmt.Errorf("%w: sequence numbers are reused", ErrInvalidMigration)
	}

	for seq := 1; seq <= len(sequences); seq++ {
		if _, ok := sequences[seq]; !ok {
			return fmt.Errorf("%w: gap in migration sequence at %03d", ErrInvalidMigration, seq)
		}
	}

	return nil
}

// Latest returns the highest migration sequence number in fsys, or zero.
func Latest(fsys fs.FS) int {
	infos, err := List(fsys)
	if err != nil {
		return 0
	}

	latest := 0
	for _, info := range infos {
		latest = max(latest, info.Sequence)
	}

	return latest
}
