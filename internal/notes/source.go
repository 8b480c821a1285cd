package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	storageAdapter "github.com/tigerroll/notepipe/pkg/batch/adapter/storage"
	model "github.com/tigerroll/notepipe/pkg/batch/core/domain/model"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/exception"
	"github.com/tigerroll/notepipe/pkg/batch/support/util/logger"
)

const (
	moduleSource = "note_source"

	// noteSuffix selects the objects under the source prefix that are notes.
	noteSuffix = ".json"
)

// Source is the ordered set of exported notes. Item id i is the i-th note object in lexical
// order, so the mapping is stable for as long as the exported set does not change.
type Source struct {
	conn   storageAdapter.StorageConnection
	prefix string
	names  []string
}

// LoadSource lists the notes under prefix on conn.
//
// Parameters:
//
//	ctx: The context for the listing.
//	conn: The storage connection holding the exported notes.
//	prefix: The object prefix of the exported notes. An empty prefix lists the whole bucket.
//
// Returns:
//
//	The Source, or a ConfigurationError when the listing fails.
func LoadSource(ctx context.Context, conn storageAdapter.StorageConnection, prefix string) (*Source, error) {
	listPrefix := strings.TrimSuffix(prefix, "/")
	if listPrefix != "" {
		listPrefix += "/"
	}

	var names []string
	err := conn.ListObjects(ctx, "", listPrefix, func(objectName string) error {
		if strings.HasSuffix(objectName, noteSuffix) {
			names = append(names, objectName)
		}
		return nil
	})
	if err != nil {
		return nil, exception.NewConfigurationError(moduleSource, fmt.Sprintf("failed to list notes under '%s'", listPrefix), err)
	}

	logger.Infof("NoteSource: found %d notes under '%s' on storage '%s'.", len(names), listPrefix, conn.Name())
	return &Source{conn: conn, prefix: listPrefix, names: names}, nil
}

// Count returns the number of notes, which is the pipeline's totalItems.
func (s *Source) Count() int {
	return len(s.names)
}

// ObjectName returns the object name of the note with the given id.
func (s *Source) ObjectName(id model.ItemID) (string, error) {
	if int(id) < 0 || int(id) >= len(s.names) {
		return "", exception.NewItemError(moduleSource, fmt.Sprintf("item %s is outside the %d exported notes", id, len(s.names)), nil)
	}
	return s.names[id], nil
}

// Read downloads and decodes the note with the given id. A note that is missing or
// unreadable is an ItemError.
func (s *Source) Read(ctx context.Context, id model.ItemID) (*Note, string, error) {
	name, err := s.ObjectName(id)
	if err != nil {
		return nil, "", err
	}

	rc, err := s.conn.Download(ctx, "", name)
	if err != nil {
		if errors.Is(err, storageAdapter.ErrObjectNotFound) {
			return nil, name, exception.NewItemError(moduleSource, fmt.Sprintf("note '%s' no longer exists", name), err)
		}
		return nil, name, fmt.Errorf("failed to download note '%s': %w", name, err)
	}
	defer rc.Close()

	var note Note
	if err := json.NewDecoder(rc).Decode(&note); err != nil {
		if ctx.Err() != nil {
			return nil, name, ctx.Err()
		}
		return nil, name, exception.NewItemError(moduleSource, fmt.Sprintf("note '%s' is not valid JSON", name), err)
	}
	if strings.TrimSpace(note.Body) == "" && strings.TrimSpace(note.Title) == "" {
		return nil, name, exception.NewItemError(moduleSource, fmt.Sprintf("note '%s' has neither title nor body", name), nil)
	}
	return &note, name, nil
}
