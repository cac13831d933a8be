package aws

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/structs"
	"github.com/google/uuid"
	"questbot.io/questbot/internal/database"
	"questbot.io/questbot/pkg/errors"
)

// ObjectPutter stores a blob under a key. *Clients implements it.
type ObjectPutter interface {
	PutObject(ctx context.Context, key, contentType string, body io.Reader) error
}

// QuestArchiver keeps a copy of quests about to be bulk deleted.
type QuestArchiver struct {
	objects ObjectPutter
	now     func() time.Time
}

func NewQuestArchiver(objects ObjectPutter) *QuestArchiver {
	return &QuestArchiver{objects: objects, now: time.Now}
}

func archiveKey(guildID string) string {
	return fmt.Sprintf("quests/%s/%s.json", guildID, uuid.NewString())
}

// Archive writes the quests as one JSON array and returns the object key.
func (a *QuestArchiver) Archive(ctx context.Context, guildID string, quests []*database.Quest) (string, error) {
	archivedAt := a.now().UTC().Format(time.RFC3339)
	rows := make([]map[string]interface{}, 0, len(quests))
	for _, q := range quests {
		row := structs.Map(q)
		// time.Time has no exported fields, structs would flatten it to {}
		row["CreatedAt"] = q.CreatedAt.UTC().Format(time.RFC3339)
		row["ArchivedAt"] = archivedAt
		rows = append(rows, row)
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", errors.Wrap(err, "encode quest archive")
	}
	key := archiveKey(guildID)
	if err := a.objects.PutObject(ctx, key, "application/json", bytes.NewReader(data)); err != nil {
		return "", err
	}
	return key, nil
}
