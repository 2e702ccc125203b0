package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/supremind/svcaccess/types"
)

type metadataRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

func (t *tx) Metadata(target types.EntityRef) (types.Metadata, error) {
	var rows []metadataRow
	e := t.SelectContext(t.ctx, &rows, `
		SELECT key, value FROM metadata WHERE target_kind = $1 AND target_id = $2`,
		string(target.Kind), target.ID)
	if e != nil {
		return nil, mapError(e, "metadata of "+target.String())
	}
	if len(rows) == 0 {
		return nil, nil
	}

	md := make(types.Metadata, len(rows))
	for _, row := range rows {
		var v interface{}
		if e := json.Unmarshal([]byte(row.Value), &v); e != nil {
			return nil, fmt.Errorf("decode metadata %s of %s: %w", row.Key, target, e)
		}
		md[row.Key] = v
	}
	return md, nil
}

func (t *tx) ReplaceMetadata(target types.EntityRef, md types.Metadata) error {
	if _, e := t.exec("drop metadata of "+target.String(), `
		DELETE FROM metadata WHERE target_kind = $1 AND target_id = $2`,
		string(target.Kind), target.ID); e != nil {
		return e
	}

	for k, v := range md {
		value, e := json.Marshal(v)
		if e != nil {
			return fmt.Errorf("encode metadata %s of %s: %w", k, target, e)
		}
		if _, e := t.exec("save metadata of "+target.String(), `
			INSERT INTO metadata (target_kind, target_id, key, value) VALUES ($1, $2, $3, $4)`,
			string(target.Kind), target.ID, k, string(value)); e != nil {
			return e
		}
	}
	return nil
}

func (t *tx) HasJoined(behaviourID, userID int64) (bool, error) {
	var joined bool
	e := t.get("mailing list join", &joined, `
		SELECT EXISTS (SELECT 1 FROM mailing_list_joins WHERE behaviour_id = $1 AND user_id = $2)`,
		behaviourID, userID)
	return joined, e
}

func (t *tx) RecordJoined(behaviourID, userID int64) error {
	_, e := t.exec("record mailing list join", `
		INSERT INTO mailing_list_joins (behaviour_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, behaviourID, userID)
	return e
}
