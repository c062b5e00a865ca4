package database

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/jsyadav90/abcd-backend2/internal/models"
)

// NormalizeLegacyPermissions rewrites every role whose stored permissions are
// not in the canonical []PermissionGrant shape. Older rows hold plain action
// strings, loosely keyed objects, or objects keyed by character index left
// behind by a serialization bug. Run once; reads afterwards assume the
// canonical shape. Returns the number of rows rewritten.
func NormalizeLegacyPermissions(db *gorm.DB) (int, error) {
	type rawRole struct {
		ID          uint
		Permissions string
	}

	var rows []rawRole
	if err := db.Table("roles").Select("id, permissions").Scan(&rows).Error; err != nil {
		return 0, err
	}

	rewritten := 0
	for _, r := range rows {
		grants, changed, err := normalizePermissions([]byte(r.Permissions))
		if err != nil {
			return rewritten, fmt.Errorf("role %d: %w", r.ID, err)
		}
		if !changed {
			continue
		}
		out, err := json.Marshal(grants)
		if err != nil {
			return rewritten, err
		}
		if err := db.Table("roles").Where("id = ?", r.ID).Update("permissions", string(out)).Error; err != nil {
			return rewritten, err
		}
		rewritten++
	}
	return rewritten, nil
}

// normalizePermissions parses one stored permissions value. changed is false
// when the value is already canonical.
func normalizePermissions(raw []byte) ([]models.PermissionGrant, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []models.PermissionGrant{}, len(raw) == 0, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		// {"users.read": true, ...}
		var byAction map[string]bool
		if err2 := json.Unmarshal(raw, &byAction); err2 != nil {
			return nil, false, fmt.Errorf("unrecognised permissions value: %w", err)
		}
		grants := make([]models.PermissionGrant, 0, len(byAction))
		for action, granted := range byAction {
			grants = append(grants, models.PermissionGrant{Action: action, Granted: granted})
		}
		sort.Slice(grants, func(i, j int) bool { return grants[i].Action < grants[j].Action })
		return grants, true, nil
	}

	grants := make([]models.PermissionGrant, 0, len(items))
	changed := false
	for _, item := range items {
		g, canonical, err := normalizeGrant(item)
		if err != nil {
			return nil, false, err
		}
		if g.Action == "" {
			changed = true
			continue
		}
		if !canonical {
			changed = true
		}
		grants = append(grants, g)
	}
	return grants, changed, nil
}

func normalizeGrant(item json.RawMessage) (models.PermissionGrant, bool, error) {
	var action string
	if err := json.Unmarshal(item, &action); err == nil {
		return models.PermissionGrant{Action: action, Granted: true}, false, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(item, &obj); err != nil {
		return models.PermissionGrant{}, false, fmt.Errorf("unrecognised permission entry %s", string(item))
	}

	if _, ok := obj["action"]; ok {
		var g models.PermissionGrant
		if err := json.Unmarshal(item, &g); err != nil {
			return models.PermissionGrant{}, false, err
		}
		_, hasGranted := obj["granted"]
		if !hasGranted {
			g.Granted = true
		}
		return g, hasGranted, nil
	}

	for _, key := range []string{"name", "permission"} {
		if v, ok := obj[key]; ok {
			g := models.PermissionGrant{Granted: true}
			if err := json.Unmarshal(v, &g.Action); err != nil {
				return models.PermissionGrant{}, false, err
			}
			readGranted(obj, &g)
			return g, false, nil
		}
	}

	// {"0":"u","1":"s",...}: an action string spread into an object
	type indexed struct {
		idx int
		ch  string
	}
	var chars []indexed
	for k, v := range obj {
		i, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		var ch string
		if err := json.Unmarshal(v, &ch); err != nil {
			return models.PermissionGrant{}, false, err
		}
		chars = append(chars, indexed{idx: i, ch: ch})
	}
	sort.Slice(chars, func(i, j int) bool { return chars[i].idx < chars[j].idx })
	var b bytes.Buffer
	for _, c := range chars {
		b.WriteString(c.ch)
	}
	g := models.PermissionGrant{Action: b.String(), Granted: true}
	readGranted(obj, &g)
	return g, false, nil
}

func readGranted(obj map[string]json.RawMessage, g *models.PermissionGrant) {
	for _, key := range []string{"granted", "allowed"} {
		if v, ok := obj[key]; ok {
			_ = json.Unmarshal(v, &g.Granted)
		}
	}
	if v, ok := obj["modifiedAt"]; ok {
		var t time.Time
		if json.Unmarshal(v, &t) == nil {
			g.ModifiedAt = t
		}
	}
}
